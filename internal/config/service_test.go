package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("instance_id: studio-1\n"))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	if cfg.Source.Type != SourceSynthetic || cfg.Source.Width != 640 || cfg.Source.Height != 480 {
		t.Errorf("source defaults = %+v", cfg.Source)
	}
	if cfg.Display.RefreshHz != 60 {
		t.Errorf("refresh_hz = %v, want 60", cfg.Display.RefreshHz)
	}
	if cfg.Keying.Options.WhiteThreshold != 0.85 || !cfg.KeyingEnabled() {
		t.Errorf("keying defaults = %+v", cfg.Keying)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.ShutdownTimeout().Seconds() != 5 {
		t.Errorf("http/shutdown defaults = %+v, %v", cfg.HTTP, cfg.ShutdownTimeout())
	}
}

func TestLoadFullConfig(t *testing.T) {
	yml := `
instance_id: booth-7
source:
  type: gstreamer
  uri: rtsp://avatar.local/stream
  fps: 25
  reconnect:
    max_retries: 3
keying:
  enabled: false
  white_threshold: 0.9
  smoothing: 0
mqtt:
  enabled: true
  broker: localhost:1883
  codec: msgpack
http:
  addr: ":9090"
  viewer_max_width: 320
`
	path := filepath.Join(t.TempDir(), "compositor.yaml")
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Source.Width != 0 || cfg.Source.URI != "rtsp://avatar.local/stream" {
		t.Errorf("source = %+v", cfg.Source)
	}
	if cfg.Source.Reconnect.MaxRetries != 3 || cfg.Source.Reconnect.RetryDelayMS != 1000 {
		t.Errorf("reconnect = %+v", cfg.Source.Reconnect)
	}
	if cfg.KeyingEnabled() {
		t.Error("keying.enabled: false ignored")
	}
	opts := cfg.Keying.Options
	if opts.WhiteThreshold != 0.9 || opts.Smoothing != 0 || opts.Tolerance != 0.05 {
		t.Errorf("keying options = %+v", opts)
	}
	if cfg.MQTT.Topics.Control != "compositor/control/booth-7" || cfg.MQTT.Codec != CodecMsgpack {
		t.Errorf("mqtt = %+v", cfg.MQTT)
	}
	if cfg.MQTT.QoS["control"] != 1 {
		t.Errorf("qos defaults = %v", cfg.MQTT.QoS)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad instance id", "instance_id: Studio_1\n", "instance_id"},
		{"gstreamer without uri", "source:\n  type: gstreamer\n", "uri"},
		{"unknown source", "source:\n  type: webcam\n", "unknown type"},
		{"options out of range", "keying:\n  tolerance: 3\n", "tolerance"},
		{"mqtt without broker", "mqtt:\n  enabled: true\n", "broker"},
		{"bad codec", "mqtt:\n  enabled: true\n  broker: b:1883\n  codec: xml\n", "codec"},
		{"refresh too high", "display:\n  refresh_hz: 1000\n", "refresh_hz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of a missing file succeeded")
	}
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "compositor.yaml"))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Source.Type != SourceGStreamer || cfg.Source.URI == "" {
		t.Errorf("source = %+v", cfg.Source)
	}
	if cfg.MQTT.Topics.Control != "compositor/control/studio-1" {
		t.Errorf("control topic = %q", cfg.MQTT.Topics.Control)
	}
	if cfg.Keying.Options.Smoothing != 0.10 {
		t.Errorf("smoothing = %v", cfg.Keying.Options.Smoothing)
	}
}
