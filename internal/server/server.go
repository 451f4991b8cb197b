// Package server exposes the compositor over HTTP: liveness and readiness
// probes, a JSON status document, a PNG snapshot of the latest composite and
// a websocket live viewer.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	compositor "github.com/e7canasta/chroma-compositor"
	"github.com/e7canasta/chroma-compositor/internal/display"
)

// Session is the part of the compositing session the server reports on.
type Session interface {
	Status() compositor.Status
	Stats() compositor.Stats
}

// Frames is the display hub the viewer endpoints read from.
type Frames interface {
	Latest() *display.Frame
	Subscribe(viewerID string) func() *display.Frame
	Unsubscribe(viewerID string)
	Stats() display.HubStats
}

// Config configures the HTTP server.
type Config struct {
	Addr string
	// ViewerMaxWidth downscales snapshots and viewer frames wider than this (0 disables)
	ViewerMaxWidth int
	// ViewerFPS caps the websocket frame rate (default: 15)
	ViewerFPS int
	// InstanceID is reported by /health
	InstanceID string
}

// Deps are the components the endpoints report on.
type Deps struct {
	Session Session
	Frames  Frames
	Options compositor.OptionsSource
	// MQTTConnected reports the control plane connection (nil when MQTT is disabled)
	MQTTConnected func() bool
}

// Server serves the HTTP endpoints.
type Server struct {
	cfg     Config
	deps    Deps
	started time.Time

	mu       sync.Mutex
	httpSrv  *http.Server
	listener net.Listener
	viewers  sync.WaitGroup
	stopping chan struct{}
}

// New creates a server. Session, Frames and Options are required.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Session == nil || deps.Frames == nil || deps.Options == nil {
		return nil, errors.New("server: session, frames and options are required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ViewerFPS <= 0 {
		cfg.ViewerFPS = 15
	}
	return &Server{
		cfg:      cfg,
		deps:     deps,
		started:  time.Now(),
		stopping: make(chan struct{}),
	}, nil
}

// Handler returns the endpoint mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.livenessHandler)
	mux.HandleFunc("/readiness", s.readinessHandler)
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/snapshot.png", s.snapshotHandler)
	mux.HandleFunc("/ws", s.viewerHandler)
	return mux
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpSrv != nil {
		return errors.New("server: already started")
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
	}

	s.listener = ln
	s.httpSrv = &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	slog.Info("server: starting",
		"addr", ln.Addr().String(),
		"endpoints", []string{"/health", "/readiness", "/status", "/snapshot.png", "/ws"},
	)

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server: serve failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the listening address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// Shutdown closes viewer connections and stops the server. Idempotent.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	select {
	case <-s.stopping:
		s.mu.Unlock()
		return nil
	default:
		close(s.stopping)
	}
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	// Hijacked websocket connections are not tracked by http.Server.
	err := srv.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.viewers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("server: viewers did not close before timeout")
	}

	slog.Info("server: stopped")
	return err
}
