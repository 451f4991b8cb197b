// Package synth generates a synthetic avatar stream: a head and shoulders
// silhouette bobbing in front of a near-white studio backdrop. It stands in
// for the avatar rendering service in demos and tests.
package synth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	compositor "github.com/e7canasta/chroma-compositor"
)

// Config configures a synthetic source.
type Config struct {
	Width  int
	Height int
	FPS    int

	// WarmupFrames is the number of generated frames during which the source
	// still reports (0, 0), like a player that has not decoded metadata yet.
	WarmupFrames int
}

// Stats contains generator statistics.
type Stats struct {
	FramesGenerated uint64    `json:"frames_generated"`
	FramesRead      uint64    `json:"frames_read"`
	FPSTarget       int       `json:"fps_target"`
	FPSReal         float64   `json:"fps_real"`
	Resolution      string    `json:"resolution"`
	IsRunning       bool      `json:"is_running"`
	StartedAt       time.Time `json:"started_at"`
}

// Source is a compositor.VideoSource rendering frames at a fixed rate.
type Source struct {
	cfg Config

	mu        sync.RWMutex
	pix       []uint8
	generated uint64
	read      uint64
	isRunning bool
	startTime time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a synthetic source. Call Start to begin generating frames.
func New(cfg Config) (*Source, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("synth: invalid size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("synth: fps must be > 0, got %d", cfg.FPS)
	}
	if cfg.WarmupFrames < 0 {
		cfg.WarmupFrames = 0
	}
	return &Source{
		cfg: cfg,
		pix: make([]uint8, cfg.Width*cfg.Height*4),
	}, nil
}

// Start begins generating frames. Returns immediately.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("synth: source already running")
	}
	s.isRunning = true
	s.startTime = time.Now()
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	slog.Info("synth: source starting",
		"width", s.cfg.Width,
		"height", s.cfg.Height,
		"fps", s.cfg.FPS,
		"warmup_frames", s.cfg.WarmupFrames,
	)

	s.wg.Add(1)
	go s.generate(ctx, s.stopCh)
	return nil
}

// Stop stops the generator. Idempotent.
func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()

	slog.Info("synth: source stopped",
		"frames_generated", s.Stats().FramesGenerated,
		"duration", time.Since(s.startTime),
	)
	return nil
}

func (s *Source) generate(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	frameDuration := time.Second / time.Duration(s.cfg.FPS)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	slog.Debug("synth: generator started", "frame_duration", frameDuration)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.Advance()
		}
	}
}

// Advance renders the next frame. The generator calls it on every tick;
// tests call it directly.
func (s *Source) Advance() {
	s.mu.Lock()
	defer s.mu.Unlock()

	Render(s.pix, s.cfg.Width, s.cfg.Height, s.generated, s.cfg.FPS)
	s.generated++
}

func (s *Source) warm() bool {
	return s.generated > uint64(s.cfg.WarmupFrames)
}

// Dimensions returns (0, 0) until the warmup frames have been generated.
func (s *Source) Dimensions() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.warm() {
		return 0, 0
	}
	return s.cfg.Width, s.cfg.Height
}

// ReadFrame copies the latest frame into dst.
func (s *Source) ReadFrame(dst []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.warm() {
		return compositor.ErrFrameNotReady
	}
	if len(dst) < len(s.pix) {
		return fmt.Errorf("synth: destination too short: got %d bytes, want %d", len(dst), len(s.pix))
	}
	copy(dst, s.pix)
	s.read++
	return nil
}

// Stats returns generator statistics.
func (s *Source) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var fpsReal float64
	if s.isRunning && s.generated > 0 {
		if elapsed := time.Since(s.startTime).Seconds(); elapsed > 0 {
			fpsReal = float64(s.generated) / elapsed
		}
	}

	return Stats{
		FramesGenerated: s.generated,
		FramesRead:      s.read,
		FPSTarget:       s.cfg.FPS,
		FPSReal:         fpsReal,
		Resolution:      fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height),
		IsRunning:       s.isRunning,
		StartedAt:       s.startTime,
	}
}
