package compositor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/chroma-compositor/internal/chroma"
	"github.com/e7canasta/chroma-compositor/internal/perf"
)

const (
	// DefaultStopTimeout bounds how long Detach waits for the loop to exit.
	DefaultStopTimeout = 3 * time.Second

	// pacerRetryDelay throttles the loop when the pacer keeps failing.
	pacerRetryDelay = 100 * time.Millisecond

	cadenceWindow = 120
)

// SessionConfig configures a Session. Surface, Pacer and Options are required.
type SessionConfig struct {
	// Name identifies the session in logs
	Name string

	// Surface receives composited frames
	Surface Surface

	// Pacer drives the loop (display refresh signal)
	Pacer Pacer

	// Options provides a snapshot of the keying options on every cycle
	Options OptionsSource

	// Clock feeds the performance monitor. nil uses time.Now.
	Clock perf.Clock

	// OnStatus is called synchronously on every status change. It must not
	// block and must not call back into the Session.
	OnStatus func(Status)

	// StopTimeout bounds Detach/Close waits (default 3s)
	StopTimeout time.Duration

	// KeyingDisabled starts the session in pass-through mode
	KeyingDisabled bool
}

// Session drives the compositing loop for one source at a time.
//
// Goroutine topology:
//   - 1 loop goroutine per attached source (spawned by Attach, stopped by
//     Detach, Close or the next Attach)
//
// Thread-safety: All methods are safe for concurrent use. Attach, Detach and
// Close serialize on an internal mutex.
type Session struct {
	cfg SessionConfig

	mu      sync.Mutex // serializes Attach/Detach/Close
	closed  bool
	current *runner

	active atomic.Pointer[runner]
	keying atomic.Bool

	statusMu sync.Mutex
	status   Status
}

// runner owns everything tied to one attachment: the source, both buffers,
// the processor scratch and the counters.
type runner struct {
	src    VideoSource
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Loop-owned
	capture   chroma.Buffer
	output    chroma.Buffer
	processor chroma.Processor
	monitor   *perf.Monitor
	seq       uint64
	lastFault string

	cadence    *perf.CadenceTracker
	attachedAt time.Time

	cycles    atomic.Uint64
	processed atomic.Uint64
	skipped   atomic.Uint64
	faults    atomic.Uint64
	resizes   atomic.Uint64
}

// NewSession creates an idle session.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Surface == nil {
		return nil, fmt.Errorf("compositor: surface is required")
	}
	if cfg.Pacer == nil {
		return nil, fmt.Errorf("compositor: pacer is required")
	}
	if cfg.Options == nil {
		return nil, fmt.Errorf("compositor: options source is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}

	s := &Session{cfg: cfg}
	s.keying.Store(!cfg.KeyingDisabled)
	s.status = Status{
		State:     StateIdle,
		Keying:    !cfg.KeyingDisabled,
		UpdatedAt: cfg.Clock(),
	}
	return s, nil
}

// Attach starts compositing src.
//
// Setup faults are returned and leave the current state untouched:
//   - ErrSessionClosed after Close
//   - ErrNoSource when src is nil
//   - ErrSurfaceUnavailable when the surface is not ready
//
// Otherwise the loop of the previous source (if any) is cancelled and awaited,
// so no frame of the old source is processed after Attach returns. Buffers,
// monitor and cadence start fresh, the state becomes processing and a new
// loop starts. The loop stops when ctx is cancelled or on Detach.
func (s *Session) Attach(ctx context.Context, src VideoSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if src == nil {
		return ErrNoSource
	}
	if err := s.cfg.Surface.Ready(); err != nil {
		return fmt.Errorf("%w: %w", ErrSurfaceUnavailable, err)
	}

	if s.current != nil {
		slog.Info("compositor: replacing source", "session", s.cfg.Name)
		s.stopLocked()
	}

	rctx, cancel := context.WithCancel(ctx)
	r := &runner{
		src:        src,
		ctx:        rctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		monitor:    perf.NewMonitor(s.cfg.Clock),
		cadence:    perf.NewCadenceTracker(cadenceWindow),
		attachedAt: s.cfg.Clock(),
	}
	s.current = r

	s.statusMu.Lock()
	s.active.Store(r)
	s.status.State = StateProcessing
	s.status.IsProcessing = true
	s.status.Error = nil
	s.status.FrameRate = 0
	s.status.Width, s.status.Height = 0, 0
	s.emitLocked()
	s.statusMu.Unlock()

	go s.loop(r)

	slog.Info("compositor: source attached",
		"session", s.cfg.Name,
		"keying", s.keying.Load(),
	)
	return nil
}

// Detach stops the loop and returns to idle. The source is not closed.
// Idempotent.
func (s *Session) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return
	}
	s.stopLocked()
	slog.Info("compositor: source detached", "session", s.cfg.Name)
}

// Close detaches the source and refuses further attaches. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	if s.current != nil {
		s.stopLocked()
	}
	s.closed = true
	slog.Info("compositor: session closed", "session", s.cfg.Name)
	return nil
}

// stopLocked publishes the idle state, cancels the current loop and waits
// for it (bounded by StopTimeout). Caller holds s.mu.
func (s *Session) stopLocked() {
	r := s.current
	s.current = nil

	s.markIdle(r)
	r.cancel()

	select {
	case <-r.done:
		slog.Debug("compositor: loop stopped cleanly", "session", s.cfg.Name)
	case <-time.After(s.cfg.StopTimeout):
		slog.Warn("compositor: stop timeout exceeded, loop may still be running",
			"session", s.cfg.Name,
			"timeout", s.cfg.StopTimeout,
		)
	}
}

// markIdle publishes the idle state if r is still the active runner. Once
// active no longer points at r, status writes from r are ignored.
func (s *Session) markIdle(r *runner) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	if s.active.Load() != r {
		return
	}
	s.active.Store(nil)
	s.status.State = StateIdle
	s.status.IsProcessing = false
	s.status.Error = nil
	s.status.FrameRate = 0
	s.status.Width, s.status.Height = 0, 0
	s.emitLocked()
}

// Status returns the current status snapshot.
func (s *Session) Status() Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	st := s.status
	if st.Error != nil {
		msg := *st.Error
		st.Error = &msg
	}
	return st
}

// Stats returns counters of the current attachment (zero value when idle).
func (s *Session) Stats() Stats {
	r := s.active.Load()
	if r == nil {
		return Stats{}
	}
	return Stats{
		Attached:        true,
		AttachedAt:      r.attachedAt,
		Cycles:          r.cycles.Load(),
		FramesProcessed: r.processed.Load(),
		CyclesSkipped:   r.skipped.Load(),
		Faults:          r.faults.Load(),
		Resizes:         r.resizes.Load(),
		Cadence:         r.cadence.Stats(),
	}
}

// SetKeying switches keying on or off. With keying off frames are passed
// through fully opaque. Takes effect on the next cycle.
func (s *Session) SetKeying(enabled bool) {
	if s.keying.Swap(enabled) == enabled {
		return
	}

	s.statusMu.Lock()
	s.status.Keying = enabled
	s.emitLocked()
	s.statusMu.Unlock()

	slog.Info("compositor: keying toggled", "session", s.cfg.Name, "enabled", enabled)
}

// Keying reports whether keying is enabled.
func (s *Session) Keying() bool {
	return s.keying.Load()
}

// emitLocked stamps and publishes the status. Caller holds statusMu.
func (s *Session) emitLocked() {
	s.status.UpdatedAt = s.cfg.Clock()
	if s.cfg.OnStatus != nil {
		st := s.status
		if st.Error != nil {
			msg := *st.Error
			st.Error = &msg
		}
		s.cfg.OnStatus(st)
	}
}

// loop is the scheduler: check the token, wait for the refresh, check the
// token again, run one cycle.
func (s *Session) loop(r *runner) {
	defer func() {
		r.capture.Release()
		r.output.Release()
		// Cancelled by the caller's context rather than Detach.
		s.markIdle(r)
		close(r.done)
	}()

	for {
		if r.ctx.Err() != nil {
			return
		}

		if err := s.cfg.Pacer.Wait(r.ctx); err != nil {
			if r.ctx.Err() != nil {
				return
			}
			s.recordFault(r, &FrameFault{Stage: StagePace, Err: err})
			select {
			case <-r.ctx.Done():
				return
			case <-time.After(pacerRetryDelay):
			}
			continue
		}

		if r.ctx.Err() != nil {
			return
		}

		s.cycle(r)
	}
}

// cycle runs one synchronous frame cycle.
func (s *Session) cycle(r *runner) {
	r.cycles.Add(1)

	presented, err := s.compose(r)
	switch {
	case err != nil:
		s.recordFault(r, err)
	case !presented:
		r.skipped.Add(1)
	default:
		r.processed.Add(1)
		s.recordSuccess(r)
	}
}

// compose reads, keys and presents one frame. It returns false with a nil
// error when the cycle was skipped for a transient reason. Panics are
// recovered into a FrameFault of the stage that raised them.
func (s *Session) compose(r *runner) (presented bool, err error) {
	stage := StageRead
	defer func() {
		if p := recover(); p != nil {
			presented = false
			err = &FrameFault{Stage: stage, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	if s.cfg.Surface.Ready() != nil {
		return false, nil
	}

	width, height := r.src.Dimensions()
	if width <= 0 || height <= 0 {
		return false, nil
	}

	if r.capture.Resize(width, height) {
		r.resizes.Add(1)
		slog.Debug("compositor: buffers resized",
			"session", s.cfg.Name,
			"width", width,
			"height", height,
		)
	}
	r.output.Resize(width, height)

	if err := r.src.ReadFrame(r.capture.Pix); err != nil {
		if errors.Is(err, ErrFrameNotReady) {
			return false, nil
		}
		return false, &FrameFault{Stage: StageRead, Err: err}
	}

	stage = StageProcess
	if s.keying.Load() {
		err = r.processor.Process(&r.capture, &r.output, s.cfg.Options.Snapshot())
	} else {
		err = chroma.CopyFrame(&r.capture, &r.output)
	}
	if err != nil {
		return false, &FrameFault{Stage: StageProcess, Err: err}
	}

	r.monitor.RecordFrame()
	now := s.cfg.Clock()

	// Detached while processing: the frame is dropped.
	if r.ctx.Err() != nil {
		return false, nil
	}

	stage = StagePresent
	r.seq++
	frame := &Frame{
		Seq:       r.seq,
		Timestamp: now,
		Width:     width,
		Height:    height,
		Pix:       r.output.Pix,
		TraceID:   uuid.NewString(),
	}
	if err := s.cfg.Surface.Present(frame); err != nil {
		return false, &FrameFault{Stage: StagePresent, Err: err}
	}
	r.cadence.Record(now)

	return true, nil
}

// recordSuccess clears any error and publishes rate and size changes.
func (s *Session) recordSuccess(r *runner) {
	if r.lastFault != "" {
		slog.Info("compositor: recovered", "session", s.cfg.Name, "after", r.lastFault)
		r.lastFault = ""
	}

	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	if s.active.Load() != r {
		return
	}

	rate := r.monitor.Rate()
	st := &s.status
	if st.State == StateProcessing && st.Error == nil && st.FrameRate == rate &&
		st.Width == r.output.Width && st.Height == r.output.Height {
		return
	}

	st.State = StateProcessing
	st.Error = nil
	st.FrameRate = rate
	st.Width, st.Height = r.output.Width, r.output.Height
	s.emitLocked()
}

// recordFault moves the session to StateError. The loop keeps running.
func (s *Session) recordFault(r *runner, err error) {
	r.faults.Add(1)

	msg := err.Error()
	if msg != r.lastFault {
		slog.Warn("compositor: frame fault",
			"session", s.cfg.Name,
			"error", err,
		)
		r.lastFault = msg
	}

	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	if s.active.Load() != r {
		return
	}
	if s.status.State == StateError && s.status.Error != nil && *s.status.Error == msg {
		return
	}

	s.status.State = StateError
	s.status.Error = &msg
	s.emitLocked()
}
