package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/chroma-compositor/internal/chroma"
	"github.com/e7canasta/chroma-compositor/internal/config"
)

const commandQueueSize = 10

// Callbacks connect commands to the service. A nil callback answers the
// command with a "not implemented" error.
type Callbacks struct {
	OnGetStatus    func() map[string]interface{}
	OnSetOptions   func(update map[string]interface{}) (chroma.Options, []string, error)
	OnResetOptions func() chroma.Options
	OnSetKeying    func(enabled bool) error
	OnShutdown     func() error
}

// HandlerConfig configures the command handler.
type HandlerConfig struct {
	ControlTopic   string
	ResponsesTopic string
	ControlQoS     byte
	ResponsesQoS   byte
}

// Handler receives commands on the control topic, runs them one at a time
// and publishes a Response for each.
type Handler struct {
	cfg       HandlerConfig
	transport Transport
	codec     Codec
	callbacks Callbacks

	queueMu  sync.Mutex
	stopped  bool
	commands chan Command
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHandler creates a handler. Call Start to subscribe.
func NewHandler(cfg HandlerConfig, transport Transport, codec Codec, callbacks Callbacks) *Handler {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &Handler{
		cfg:       cfg,
		transport: transport,
		codec:     codec,
		callbacks: callbacks,
		commands:  make(chan Command, commandQueueSize),
	}
}

// Start subscribes to the control topic and starts processing commands.
func (h *Handler) Start(ctx context.Context) error {
	slog.Info("control: subscribing to control topic",
		"topic", h.cfg.ControlTopic,
		"qos", h.cfg.ControlQoS,
		"codec", h.codec.Name(),
	)

	if err := h.transport.Subscribe(h.cfg.ControlTopic, h.cfg.ControlQoS, h.onMessage); err != nil {
		return err
	}

	h.wg.Add(1)
	go h.processCommands(ctx)

	slog.Info("control: handler started")
	return nil
}

// Stop unsubscribes and waits for the command in flight. Idempotent.
func (h *Handler) Stop() error {
	var err error
	h.stopOnce.Do(func() {
		err = h.transport.Unsubscribe(h.cfg.ControlTopic)

		h.queueMu.Lock()
		h.stopped = true
		close(h.commands)
		h.queueMu.Unlock()

		h.wg.Wait()
		slog.Info("control: handler stopped")
	})
	return err
}

// onMessage decodes a command and queues it. Runs on the MQTT callback
// goroutine, so it never blocks.
func (h *Handler) onMessage(payload []byte) {
	var cmd Command
	if err := h.codec.Unmarshal(payload, &cmd); err != nil {
		slog.Error("control: failed to parse command", "error", err)
		h.sendResponse(Response{
			RequestID:  uuid.NewString(),
			CommandAck: "unknown",
			Status:     StatusError,
			Error:      fmt.Sprintf("invalid %s payload", h.codec.Name()),
			Timestamp:  now(),
		})
		return
	}

	slog.Info("control: command received", "command", cmd.Command, "request_id", cmd.RequestID)

	h.queueMu.Lock()
	defer h.queueMu.Unlock()

	if h.stopped {
		slog.Debug("control: handler stopped, dropping command", "command", cmd.Command)
		return
	}

	select {
	case h.commands <- cmd:
	default:
		slog.Warn("control: command queue full, dropping command", "command", cmd.Command)
	}
}

func (h *Handler) processCommands(ctx context.Context) {
	defer h.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-h.commands:
			if !ok {
				return
			}
			h.sendResponse(h.handleCommand(cmd))
		}
	}
}

func (h *Handler) sendResponse(resp Response) {
	if h.cfg.ResponsesTopic == "" {
		return
	}
	payload, err := h.codec.Marshal(resp)
	if err != nil {
		slog.Error("control: failed to encode response", "error", err)
		return
	}
	if err := h.transport.Publish(h.cfg.ResponsesTopic, h.cfg.ResponsesQoS, payload); err != nil {
		slog.Error("control: failed to publish response",
			"command", resp.CommandAck,
			"error", err,
		)
	}
}

// handleCommand executes a command and builds its response.
func (h *Handler) handleCommand(cmd Command) Response {
	resp := Response{
		RequestID:  cmd.RequestID,
		CommandAck: cmd.Command,
		Timestamp:  now(),
	}
	if resp.RequestID == "" {
		resp.RequestID = uuid.NewString()
	}

	var (
		data map[string]interface{}
		err  error
	)

	switch cmd.Command {
	case CmdGetStatus:
		if h.callbacks.OnGetStatus == nil {
			err = notImplemented(cmd.Command)
			break
		}
		data = h.callbacks.OnGetStatus()

	case CmdSetOptions:
		data, err = h.setOptions(cmd.Command, cmd.Params)

	case CmdUpdateConfig:
		// Accepts {"keying": {...}} or the option map itself.
		update := cmd.Config
		if nested, ok := update["keying"].(map[string]interface{}); ok {
			update = nested
		}
		data, err = h.setOptions(cmd.Command, update)

	case CmdResetOptions:
		if h.callbacks.OnResetOptions == nil {
			err = notImplemented(cmd.Command)
			break
		}
		opts := h.callbacks.OnResetOptions()
		data = map[string]interface{}{"options": config.OptionsMap(opts)}

	case CmdEnableKeying, CmdDisableKeying:
		enabled := cmd.Command == CmdEnableKeying
		if h.callbacks.OnSetKeying == nil {
			err = notImplemented(cmd.Command)
			break
		}
		if err = h.callbacks.OnSetKeying(enabled); err == nil {
			data = map[string]interface{}{"keying": enabled}
		}

	case CmdShutdown:
		if h.callbacks.OnShutdown == nil {
			err = notImplemented(cmd.Command)
			break
		}
		if err = h.callbacks.OnShutdown(); err == nil {
			data = map[string]interface{}{"message": "shutdown initiated"}
		}

	default:
		err = fmt.Errorf("unknown command: %s", cmd.Command)
	}

	if err != nil {
		resp.Status = StatusError
		resp.Error = err.Error()
		slog.Warn("control: command failed", "command", cmd.Command, "error", err)
		return resp
	}

	resp.Status = StatusSuccess
	resp.Data = data
	return resp
}

func (h *Handler) setOptions(command string, update map[string]interface{}) (map[string]interface{}, error) {
	if h.callbacks.OnSetOptions == nil {
		return nil, notImplemented(command)
	}
	if len(update) == 0 {
		return nil, fmt.Errorf("no options given")
	}

	opts, changes, err := h.callbacks.OnSetOptions(update)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"options": config.OptionsMap(opts),
		"changes": changes,
	}, nil
}

func notImplemented(command string) error {
	return fmt.Errorf("%s not implemented", command)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
