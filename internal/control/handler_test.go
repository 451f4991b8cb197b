package control

import (
	"context"
	"errors"
	"testing"

	"github.com/e7canasta/chroma-compositor/internal/chroma"
	"github.com/e7canasta/chroma-compositor/internal/config"
)

const (
	controlTopic   = "compositor/control/test"
	responsesTopic = "compositor/responses/test"
)

// fakeService backs the callbacks with a real options store.
type fakeService struct {
	store    *config.Store
	keying   bool
	shutdown bool
}

func newFakeService() *fakeService {
	return &fakeService{store: config.NewDefaultStore(), keying: true}
}

func (s *fakeService) callbacks() Callbacks {
	return Callbacks{
		OnGetStatus: func() map[string]interface{} {
			return map[string]interface{}{
				"isProcessing": true,
				"keying":       s.keying,
				"options":      config.OptionsMap(s.store.Snapshot()),
			}
		},
		OnSetOptions: func(update map[string]interface{}) (chroma.Options, []string, error) {
			return s.store.Update(update, true)
		},
		OnResetOptions: s.store.Reset,
		OnSetKeying: func(enabled bool) error {
			s.keying = enabled
			return nil
		},
		OnShutdown: func() error {
			if s.shutdown {
				return errors.New("already shutting down")
			}
			s.shutdown = true
			return nil
		},
	}
}

func newTestHandler(svc *fakeService) *Handler {
	return NewHandler(HandlerConfig{
		ControlTopic:   controlTopic,
		ResponsesTopic: responsesTopic,
		ControlQoS:     1,
		ResponsesQoS:   1,
	}, newFakeTransport(), JSONCodec{}, svc.callbacks())
}

func TestHandleCommand(t *testing.T) {
	svc := newFakeService()
	h := newTestHandler(svc)

	tests := []struct {
		name       string
		cmd        Command
		wantStatus string
		check      func(t *testing.T, resp Response)
	}{
		{
			name:       "get_status",
			cmd:        Command{Command: CmdGetStatus, RequestID: "req-1"},
			wantStatus: StatusSuccess,
			check: func(t *testing.T, resp Response) {
				if resp.RequestID != "req-1" {
					t.Errorf("RequestID = %q, want req-1", resp.RequestID)
				}
				if resp.Data["isProcessing"] != true {
					t.Errorf("data = %v", resp.Data)
				}
			},
		},
		{
			name: "set_options",
			cmd: Command{Command: CmdSetOptions, Params: map[string]interface{}{
				"whiteThreshold": 0.9,
				"tolerance":      0.08,
			}},
			wantStatus: StatusSuccess,
			check: func(t *testing.T, resp Response) {
				if got := svc.store.Snapshot().WhiteThreshold; got != 0.9 {
					t.Errorf("WhiteThreshold = %v, want 0.9", got)
				}
				changes, _ := resp.Data["changes"].([]string)
				if len(changes) != 2 {
					t.Errorf("changes = %v, want 2 entries", resp.Data["changes"])
				}
			},
		},
		{
			name: "set_options clamps to control range",
			cmd: Command{Command: CmdSetOptions, Params: map[string]interface{}{
				"smoothing": 0.9,
			}},
			wantStatus: StatusSuccess,
			check: func(t *testing.T, resp Response) {
				if got := svc.store.Snapshot().Smoothing; got != 0.5 {
					t.Errorf("Smoothing = %v, want clamped 0.5", got)
				}
			},
		},
		{
			name:       "set_options unknown key",
			cmd:        Command{Command: CmdSetOptions, Params: map[string]interface{}{"hue": 0.2}},
			wantStatus: StatusError,
		},
		{
			name:       "set_options empty",
			cmd:        Command{Command: CmdSetOptions},
			wantStatus: StatusError,
		},
		{
			name: "update_config nested keying",
			cmd: Command{Command: CmdUpdateConfig, Config: map[string]interface{}{
				"keying": map[string]interface{}{"saturation_threshold": 0.2},
			}},
			wantStatus: StatusSuccess,
			check: func(t *testing.T, resp Response) {
				if got := svc.store.Snapshot().SaturationThreshold; got != 0.2 {
					t.Errorf("SaturationThreshold = %v, want 0.2", got)
				}
			},
		},
		{
			name:       "reset_options",
			cmd:        Command{Command: CmdResetOptions},
			wantStatus: StatusSuccess,
			check: func(t *testing.T, resp Response) {
				if got := svc.store.Snapshot(); got != chroma.DefaultOptions() {
					t.Errorf("options after reset = %+v", got)
				}
			},
		},
		{
			name:       "disable_keying",
			cmd:        Command{Command: CmdDisableKeying},
			wantStatus: StatusSuccess,
			check: func(t *testing.T, resp Response) {
				if svc.keying {
					t.Error("keying should be disabled")
				}
			},
		},
		{
			name:       "enable_keying",
			cmd:        Command{Command: CmdEnableKeying},
			wantStatus: StatusSuccess,
			check: func(t *testing.T, resp Response) {
				if !svc.keying || resp.Data["keying"] != true {
					t.Error("keying should be enabled")
				}
			},
		},
		{
			name:       "shutdown",
			cmd:        Command{Command: CmdShutdown},
			wantStatus: StatusSuccess,
		},
		{
			name:       "shutdown twice",
			cmd:        Command{Command: CmdShutdown},
			wantStatus: StatusError,
		},
		{
			name:       "unknown command",
			cmd:        Command{Command: "pause_inference"},
			wantStatus: StatusError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.handleCommand(tt.cmd)
			if resp.Status != tt.wantStatus {
				t.Fatalf("Status = %s (%s), want %s", resp.Status, resp.Error, tt.wantStatus)
			}
			if resp.CommandAck != tt.cmd.Command {
				t.Errorf("CommandAck = %q", resp.CommandAck)
			}
			if resp.RequestID == "" || resp.Timestamp == "" {
				t.Errorf("response missing id or timestamp: %+v", resp)
			}
			if tt.wantStatus == StatusError && resp.Error == "" {
				t.Error("error response without message")
			}
			if tt.check != nil {
				tt.check(t, resp)
			}
		})
	}
}

func TestHandleCommandNotImplemented(t *testing.T) {
	h := NewHandler(HandlerConfig{}, newFakeTransport(), nil, Callbacks{})

	for _, name := range []string{CmdGetStatus, CmdSetOptions, CmdResetOptions, CmdEnableKeying, CmdShutdown} {
		cmd := Command{Command: name, Params: map[string]interface{}{"smoothing": 0.1}}
		if resp := h.handleCommand(cmd); resp.Status != StatusError {
			t.Errorf("%s without callback: status %s, want error", name, resp.Status)
		}
	}
}

func TestHandlerEndToEnd(t *testing.T) {
	svc := newFakeService()
	transport := newFakeTransport()

	for _, codec := range []Codec{JSONCodec{}, MsgpackCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			h := NewHandler(HandlerConfig{
				ControlTopic:   controlTopic,
				ResponsesTopic: responsesTopic,
				ResponsesQoS:   1,
			}, transport, codec, svc.callbacks())

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if err := h.Start(ctx); err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			defer h.Stop()

			payload, err := codec.Marshal(Command{
				Command:   CmdSetOptions,
				RequestID: "req-" + codec.Name(),
				Params:    map[string]interface{}{"whiteThreshold": 0.88},
			})
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			transport.deliver(t, controlTopic, payload)

			pub := transport.next(t)
			if pub.topic != responsesTopic || pub.qos != 1 {
				t.Errorf("published to %s qos %d", pub.topic, pub.qos)
			}

			var resp Response
			if err := codec.Unmarshal(pub.payload, &resp); err != nil {
				t.Fatalf("Unmarshal response failed: %v", err)
			}
			if resp.Status != StatusSuccess || resp.RequestID != "req-"+codec.Name() {
				t.Errorf("response = %+v", resp)
			}
			if got := svc.store.Snapshot().WhiteThreshold; got != 0.88 {
				t.Errorf("WhiteThreshold = %v, want 0.88", got)
			}
		})
	}
}

func TestHandlerInvalidPayload(t *testing.T) {
	transport := newFakeTransport()
	h := NewHandler(HandlerConfig{
		ControlTopic:   controlTopic,
		ResponsesTopic: responsesTopic,
	}, transport, JSONCodec{}, Callbacks{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	transport.deliver(t, controlTopic, []byte("{not json"))

	var resp Response
	if err := (JSONCodec{}).Unmarshal(transport.next(t).payload, &resp); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if resp.Status != StatusError || resp.CommandAck != "unknown" {
		t.Errorf("response = %+v", resp)
	}

	if err := h.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if err := h.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func TestNewCodec(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"", "json", false},
		{"json", "json", false},
		{"msgpack", "msgpack", false},
		{"protobuf", "", true},
	}
	for _, tt := range tests {
		c, err := NewCodec(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("NewCodec(%q) error = %v", tt.name, err)
			continue
		}
		if err == nil && c.Name() != tt.want {
			t.Errorf("NewCodec(%q).Name() = %q, want %q", tt.name, c.Name(), tt.want)
		}
	}
}
