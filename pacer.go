package compositor

import (
	"context"
	"sync"
	"time"
)

// DefaultRefreshHz is the refresh rate used when none is configured.
const DefaultRefreshHz = 60

// RefreshPacer emits a refresh signal at a fixed display rate.
//
// Ticks that nobody waits for are dropped by the underlying ticker, so a
// slow cycle resumes on the next refresh instead of catching up.
type RefreshPacer struct {
	ticker   *time.Ticker
	interval time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

// NewRefreshPacer creates a pacer ticking hz times per second.
// hz <= 0 uses DefaultRefreshHz.
func NewRefreshPacer(hz int) *RefreshPacer {
	if hz <= 0 {
		hz = DefaultRefreshHz
	}
	interval := time.Second / time.Duration(hz)
	return &RefreshPacer{
		ticker:   time.NewTicker(interval),
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Wait blocks until the next refresh.
func (p *RefreshPacer) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPacerStopped
	case <-p.ticker.C:
		return nil
	}
}

// Interval returns the refresh period.
func (p *RefreshPacer) Interval() time.Duration {
	return p.interval
}

// Stop releases the ticker. Idempotent.
func (p *RefreshPacer) Stop() {
	p.stopOnce.Do(func() {
		p.ticker.Stop()
		close(p.done)
	})
}

// PacerFunc adapts a function to the Pacer interface.
type PacerFunc func(ctx context.Context) error

// Wait calls f(ctx).
func (f PacerFunc) Wait(ctx context.Context) error {
	return f(ctx)
}
