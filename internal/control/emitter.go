package control

import (
	"context"
	"log/slog"
	"sync"
	"time"

	compositor "github.com/e7canasta/chroma-compositor"
)

// StatusEmitterConfig configures status publication.
type StatusEmitterConfig struct {
	InstanceID string
	Topic      string
	QoS        byte
	// Interval republishes the latest status as a heartbeat (0 disables)
	Interval time.Duration
}

// StatusEmitter publishes session status changes and a periodic heartbeat.
//
// Update never blocks: it can be called from the compositing loop. The
// latest status wins, intermediate ones are coalesced.
type StatusEmitter struct {
	cfg       StatusEmitterConfig
	transport Transport
	codec     Codec

	mu      sync.Mutex
	latest  compositor.Status
	hasNew  bool
	seq     uint64
	signal  chan struct{}
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	started bool
}

// NewStatusEmitter creates an emitter. Call Start to begin publishing.
func NewStatusEmitter(cfg StatusEmitterConfig, transport Transport, codec Codec) *StatusEmitter {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &StatusEmitter{
		cfg:       cfg,
		transport: transport,
		codec:     codec,
		signal:    make(chan struct{}, 1),
	}
}

// Update records a new status and wakes the publisher.
func (e *StatusEmitter) Update(st compositor.Status) {
	e.mu.Lock()
	e.latest = st
	e.hasNew = true
	e.mu.Unlock()

	select {
	case e.signal <- struct{}{}:
	default:
	}
}

// Start launches the publisher goroutine.
func (e *StatusEmitter) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true

	ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(1)
	go e.run(ctx)

	slog.Info("control: status emitter started",
		"topic", e.cfg.Topic,
		"interval", e.cfg.Interval,
		"codec", e.codec.Name(),
	)
}

// Stop publishes any pending status and stops the publisher. Idempotent.
func (e *StatusEmitter) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	e.wg.Wait()
	slog.Info("control: status emitter stopped")
}

func (e *StatusEmitter) run(ctx context.Context) {
	defer e.wg.Done()

	var tick <-chan time.Time
	if e.cfg.Interval > 0 {
		ticker := time.NewTicker(e.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			e.flush(false)
			return
		case <-e.signal:
			e.flush(false)
		case <-tick:
			e.flush(true)
		}
	}
}

// flush publishes the latest status if it changed, or always on heartbeat.
func (e *StatusEmitter) flush(heartbeat bool) {
	e.mu.Lock()
	if !e.hasNew && !heartbeat {
		e.mu.Unlock()
		return
	}
	e.seq++
	msg := StatusMessage{
		Status:     e.latest,
		InstanceID: e.cfg.InstanceID,
		Seq:        e.seq,
		SentAt:     time.Now().UTC(),
	}
	e.hasNew = false
	e.mu.Unlock()

	payload, err := e.codec.Marshal(msg)
	if err != nil {
		slog.Error("control: failed to encode status", "error", err)
		return
	}
	if err := e.transport.Publish(e.cfg.Topic, e.cfg.QoS, payload); err != nil {
		slog.Debug("control: status publish failed", "error", err)
		return
	}

	slog.Debug("control: status published",
		"seq", msg.Seq,
		"state", msg.State,
		"frame_rate", msg.FrameRate,
		"heartbeat", heartbeat,
	)
}
