// Package gstsource decodes a live video stream with GStreamer and exposes
// the latest frame as RGBA to the compositor.
//
// Any URI uridecodebin understands works (rtsp://, http(s)://, file://, or
// a plain file path). Frames are converted, optionally scaled and rate
// limited inside the pipeline, and the appsink keeps a single buffer so the
// compositor always reads the newest frame.
//
// The pipeline is rebuilt on failure with exponential backoff (5 attempts,
// 1s to 30s). While no frame is available Dimensions reports (0, 0), which
// the compositor treats as a stream that has not warmed up yet.
package gstsource

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	compositor "github.com/e7canasta/chroma-compositor"
)

// stopTimeout bounds how long Stop waits for the pipeline goroutine.
const stopTimeout = 3 * time.Second

// Config configures a GStreamer source.
type Config struct {
	// URI of the stream (rtsp://, http://, file:// or a file path)
	URI string
	// Width/Height force scaling; 0 keeps the decoded size
	Width  int
	Height int
	// FPS limits the frame rate; 0 keeps the decoded rate
	FPS int
	// Reconnect controls pipeline rebuilds (zero values use defaults)
	Reconnect ReconnectConfig
}

// Stats contains source statistics.
type Stats struct {
	FramesReceived  uint64    `json:"frames_received"`
	FramesRead      uint64    `json:"frames_read"`
	FramesMalformed uint64    `json:"frames_malformed"`
	BytesRead       uint64    `json:"bytes_read"`
	Resolution      string    `json:"resolution"`
	LatencyMS       int64     `json:"latency_ms"`
	Reconnects      uint32    `json:"reconnects"`
	IsPlaying       bool      `json:"is_playing"`
	StartedAt       time.Time `json:"started_at"`
	LastError       string    `json:"last_error,omitempty"`

	ErrorsNetwork uint64 `json:"errors_network"`
	ErrorsCodec   uint64 `json:"errors_codec"`
	ErrorsAuth    uint64 `json:"errors_auth"`
	ErrorsUnknown uint64 `json:"errors_unknown"`
}

// Source implements compositor.VideoSource on top of a GStreamer pipeline.
type Source struct {
	uri      string
	width    int
	height   int
	fps      int
	retryCfg ReconnectConfig

	slot      frameSlot
	errors    errorCounters
	reconnect reconnectState
	playing   atomic.Bool
	read      atomic.Uint64

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	started   time.Time
	lastError string
}

// New validates the configuration. The pipeline is built by Start.
func New(cfg Config) (*Source, error) {
	uri, err := normalizeURI(cfg.URI)
	if err != nil {
		return nil, err
	}
	if (cfg.Width > 0) != (cfg.Height > 0) || cfg.Width < 0 || cfg.Height < 0 {
		return nil, fmt.Errorf("gstsource: width and height must both be set or both be 0, got %dx%d",
			cfg.Width, cfg.Height)
	}
	if cfg.FPS < 0 {
		return nil, fmt.Errorf("gstsource: invalid fps %d", cfg.FPS)
	}

	return &Source{
		uri:      uri,
		width:    cfg.Width,
		height:   cfg.Height,
		fps:      cfg.FPS,
		retryCfg: cfg.Reconnect.withDefaults(),
	}, nil
}

// Start launches the pipeline goroutine and returns immediately. Frames
// become available once the pipeline reaches PLAYING.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("gstsource: source already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = time.Now()
	s.lastError = ""

	go s.run(runCtx, s.done)

	slog.Info("gstsource: source started",
		"uri", s.uri,
		"width", s.width,
		"height", s.height,
		"fps", s.fps,
	)
	return nil
}

// Stop cancels the pipeline and waits for it (up to 3s). Idempotent.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		slog.Debug("gstsource: source not started, nothing to stop")
		return nil
	}

	s.cancel()
	select {
	case <-s.done:
		slog.Debug("gstsource: pipeline goroutine stopped cleanly")
	case <-time.After(stopTimeout):
		slog.Warn("gstsource: stop timeout exceeded, pipeline may still be running")
	}

	s.cancel = nil
	s.playing.Store(false)
	s.slot.clear()

	slog.Info("gstsource: source stopped",
		"uri", s.uri,
		"frames_received", s.slot.received.Load(),
		"uptime", time.Since(s.started),
	)
	return nil
}

func (s *Source) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	err := runWithReconnect(ctx, s.runPipeline, s.retryCfg, &s.reconnect)
	if err != nil && ctx.Err() == nil {
		s.setLastError(err)
		slog.Error("gstsource: pipeline stopped after reconnection failure",
			"error", err,
			"uri", s.uri,
			"frames_received", s.slot.received.Load(),
			"reconnects", s.reconnect.reconnects.Load(),
		)
	}
}

// runPipeline builds and plays one pipeline and monitors it until failure
// or cancellation. The pipeline is always torn down on return.
func (s *Source) runPipeline(ctx context.Context) error {
	elements, err := createPipeline(pipelineConfig{
		URI:    s.uri,
		Width:  s.width,
		Height: s.height,
		FPS:    s.fps,
	})
	if err != nil {
		s.setLastError(err)
		return err
	}
	defer func() {
		s.playing.Store(false)
		s.slot.clear()
		if err := destroyPipeline(elements); err != nil {
			slog.Error("gstsource: failed to destroy pipeline", "error", err)
		}
	}()

	width, height := s.width, s.height
	elements.AppSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return onNewSample(sink, &s.slot, width, height)
		},
	})

	converter := elements.Converter
	elements.Decode.Connect("pad-added", func(self *gst.Element, srcPad *gst.Pad) {
		onPadAdded(srcPad, converter)
	})

	if err := elements.Pipeline.SetState(gst.StatePlaying); err != nil {
		err = fmt.Errorf("failed to start pipeline: %w", err)
		s.setLastError(err)
		return err
	}

	if err := s.monitorBus(ctx, elements.Pipeline); err != nil {
		s.setLastError(err)
		return err
	}
	return nil
}

func (s *Source) setLastError(err error) {
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
}

// Dimensions returns the size of the latest frame, (0, 0) before the first.
func (s *Source) Dimensions() (int, int) {
	return s.slot.dimensions()
}

// ReadFrame copies the latest frame into dst.
//
// Returns compositor.ErrFrameNotReady when no frame has been decoded yet or
// the size changed since the caller last asked for Dimensions.
func (s *Source) ReadFrame(dst []byte) error {
	s.slot.mu.RLock()
	defer s.slot.mu.RUnlock()

	if s.slot.width == 0 || s.slot.height == 0 {
		return compositor.ErrFrameNotReady
	}
	if len(dst) != len(s.slot.pix) {
		return fmt.Errorf("%w: frame is %dx%d, destination holds %d bytes",
			compositor.ErrFrameNotReady, s.slot.width, s.slot.height, len(dst))
	}

	copy(dst, s.slot.pix)
	s.read.Add(1)
	return nil
}

// Stats returns source statistics. Thread-safe.
func (s *Source) Stats() Stats {
	s.mu.Lock()
	started, lastError := s.started, s.lastError
	s.mu.Unlock()

	width, height := s.slot.dimensions()

	var latency int64
	if last := s.slot.lastUpdate(); !last.IsZero() {
		latency = time.Since(last).Milliseconds()
	}

	return Stats{
		FramesReceived:  s.slot.received.Load(),
		FramesRead:      s.read.Load(),
		FramesMalformed: s.slot.malformed.Load(),
		BytesRead:       s.slot.bytesRead.Load(),
		Resolution:      fmt.Sprintf("%dx%d", width, height),
		LatencyMS:       latency,
		Reconnects:      s.reconnect.reconnects.Load(),
		IsPlaying:       s.playing.Load(),
		StartedAt:       started,
		LastError:       lastError,
		ErrorsNetwork:   s.errors.network.Load(),
		ErrorsCodec:     s.errors.codec.Load(),
		ErrorsAuth:      s.errors.auth.Load(),
		ErrorsUnknown:   s.errors.unknown.Load(),
	}
}
