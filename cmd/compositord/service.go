package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	compositor "github.com/e7canasta/chroma-compositor"
	"github.com/e7canasta/chroma-compositor/internal/chroma"
	"github.com/e7canasta/chroma-compositor/internal/config"
	"github.com/e7canasta/chroma-compositor/internal/control"
	"github.com/e7canasta/chroma-compositor/internal/display"
	"github.com/e7canasta/chroma-compositor/internal/gstsource"
	"github.com/e7canasta/chroma-compositor/internal/server"
	"github.com/e7canasta/chroma-compositor/internal/synth"
)

// videoSource is a source with its own capture lifecycle.
type videoSource interface {
	compositor.VideoSource
	Start(ctx context.Context) error
	Stop() error
}

// service wires the compositing session to its source, display hub, MQTT
// control plane and HTTP server.
type service struct {
	cfg *config.Config

	store   *config.Store
	hub     *display.Hub
	source  videoSource
	pacer   *compositor.RefreshPacer
	session *compositor.Session
	http    *server.Server

	mqtt    *control.Client
	handler *control.Handler
	emitter *control.StatusEmitter

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

func newService(cfg *config.Config) (*service, error) {
	store, err := config.NewStore(cfg.Keying.Options)
	if err != nil {
		return nil, err
	}

	src, err := newVideoSource(cfg.Source)
	if err != nil {
		return nil, err
	}

	s := &service{
		cfg:        cfg,
		store:      store,
		hub:        display.NewHub(),
		source:     src,
		pacer:      compositor.NewRefreshPacer(int(cfg.Display.RefreshHz)),
		shutdownCh: make(chan struct{}),
	}

	if cfg.MQTT.Enabled {
		if err := s.setupMQTT(); err != nil {
			return nil, err
		}
	}

	s.session, err = compositor.NewSession(compositor.SessionConfig{
		Name:           cfg.InstanceID,
		Surface:        s.hub,
		Pacer:          s.pacer,
		Options:        store,
		OnStatus:       s.onStatus,
		KeyingDisabled: !cfg.KeyingEnabled(),
	})
	if err != nil {
		return nil, err
	}

	s.http, err = server.New(server.Config{
		Addr:           cfg.HTTP.Addr,
		ViewerMaxWidth: cfg.HTTP.ViewerMaxWidth,
		ViewerFPS:      cfg.HTTP.ViewerFPS,
		InstanceID:     cfg.InstanceID,
	}, server.Deps{
		Session:       s.session,
		Frames:        s.hub,
		Options:       store,
		MQTTConnected: s.mqttConnected(),
	})
	if err != nil {
		return nil, err
	}

	store.OnChange(func(o chroma.Options) {
		slog.Info("service: keying options changed", "options", config.OptionsMap(o))
	})

	return s, nil
}

func newVideoSource(cfg config.SourceConfig) (videoSource, error) {
	switch cfg.Type {
	case config.SourceGStreamer:
		return gstsource.New(gstsource.Config{
			URI:    cfg.URI,
			Width:  cfg.Width,
			Height: cfg.Height,
			FPS:    int(cfg.FPS),
			Reconnect: gstsource.ReconnectConfig{
				MaxRetries:    cfg.Reconnect.MaxRetries,
				RetryDelay:    time.Duration(cfg.Reconnect.RetryDelayMS) * time.Millisecond,
				MaxRetryDelay: time.Duration(cfg.Reconnect.MaxRetryDelayMS) * time.Millisecond,
			},
		})
	case config.SourceSynthetic:
		return synth.New(synth.Config{
			Width:        cfg.Width,
			Height:       cfg.Height,
			FPS:          int(cfg.FPS),
			WarmupFrames: cfg.WarmupFrames,
		})
	default:
		return nil, fmt.Errorf("unknown source type %q", cfg.Type)
	}
}

func (s *service) setupMQTT() error {
	m := s.cfg.MQTT

	codec, err := control.NewCodec(m.Codec)
	if err != nil {
		return err
	}

	s.mqtt = control.NewClient(m.Broker, "compositor-"+s.cfg.InstanceID)
	s.handler = control.NewHandler(control.HandlerConfig{
		ControlTopic:   m.Topics.Control,
		ResponsesTopic: m.Topics.Responses,
		ControlQoS:     m.QoS["control"],
		ResponsesQoS:   m.QoS["responses"],
	}, s.mqtt, codec, control.Callbacks{
		OnGetStatus: s.statusSnapshot,
		OnSetOptions: func(update map[string]interface{}) (chroma.Options, []string, error) {
			return s.store.Update(update, true)
		},
		OnResetOptions: s.store.Reset,
		OnSetKeying: func(enabled bool) error {
			s.session.SetKeying(enabled)
			return nil
		},
		OnShutdown: func() error {
			s.requestShutdown()
			return nil
		},
	})
	s.emitter = control.NewStatusEmitter(control.StatusEmitterConfig{
		InstanceID: s.cfg.InstanceID,
		Topic:      m.Topics.Status,
		QoS:        m.QoS["status"],
		Interval:   time.Duration(m.StatusIntervalS) * time.Second,
	}, s.mqtt, codec)
	return nil
}

func (s *service) mqttConnected() func() bool {
	if s.mqtt == nil {
		return nil
	}
	return func() bool { return s.mqtt.Stats().Connected }
}

// onStatus runs on the compositing goroutine and must not block.
func (s *service) onStatus(st compositor.Status) {
	if s.emitter != nil {
		s.emitter.Update(st)
	}
}

func (s *service) statusSnapshot() map[string]interface{} {
	st := s.session.Status()
	return map[string]interface{}{
		"isProcessing": st.IsProcessing,
		"error":        st.Error,
		"frameRate":    st.FrameRate,
		"state":        st.State,
		"keying":       st.Keying,
		"width":        st.Width,
		"height":       st.Height,
		"options":      config.OptionsMap(s.store.Snapshot()),
		"stats":        s.session.Stats(),
	}
}

func (s *service) requestShutdown() {
	s.shutdownOnce.Do(func() {
		slog.Info("service: shutdown requested")
		close(s.shutdownCh)
	})
}

// Run starts every component and blocks until ctx is cancelled or a
// shutdown command arrives.
func (s *service) Run(ctx context.Context) error {
	if err := s.hub.Start(ctx); err != nil {
		return fmt.Errorf("display: %w", err)
	}

	if s.mqtt != nil {
		if err := s.mqtt.Connect(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		if err := s.handler.Start(ctx); err != nil {
			return fmt.Errorf("control: %w", err)
		}
		s.emitter.Start(ctx)
	}

	if err := s.source.Start(ctx); err != nil {
		return fmt.Errorf("source: %w", err)
	}

	if err := s.session.Attach(ctx, s.source); err != nil {
		return fmt.Errorf("session: %w", err)
	}

	if err := s.http.Start(); err != nil {
		return err
	}

	slog.Info("service: running",
		"instance_id", s.cfg.InstanceID,
		"source", s.cfg.Source.Type,
		"refresh_hz", s.cfg.Display.RefreshHz,
		"mqtt", s.cfg.MQTT.Enabled,
		"http", s.http.Addr(),
	)

	select {
	case <-ctx.Done():
	case <-s.shutdownCh:
	}
	return nil
}

// Shutdown stops components in reverse dependency order.
func (s *service) Shutdown(ctx context.Context) error {
	var errs []error

	if err := s.session.Close(); err != nil {
		errs = append(errs, fmt.Errorf("session: %w", err))
	}
	if err := s.source.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("source: %w", err))
	}
	s.pacer.Stop()

	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}

	if s.mqtt != nil {
		if err := s.handler.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("control: %w", err))
		}
		s.emitter.Stop()
		s.mqtt.Disconnect()
	}

	if err := s.hub.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("display: %w", err))
	}

	return errors.Join(errs...)
}
