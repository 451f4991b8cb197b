// Package config loads the service configuration and owns the runtime
// keying options.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/e7canasta/chroma-compositor/internal/chroma"
)

// Source types.
const (
	SourceGStreamer = "gstreamer"
	SourceSynthetic = "synthetic"
)

// Status payload codecs.
const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// Config represents the complete service configuration.
type Config struct {
	InstanceID       string        `yaml:"instance_id"`
	ShutdownTimeoutS int           `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	Source           SourceConfig  `yaml:"source"`
	Display          DisplayConfig `yaml:"display"`
	Keying           KeyingConfig  `yaml:"keying"`
	MQTT             MQTTConfig    `yaml:"mqtt"`
	HTTP             HTTPConfig    `yaml:"http"`
}

// SourceConfig selects and configures the video source.
type SourceConfig struct {
	Type   string  `yaml:"type"`   // gstreamer, synthetic
	URI    string  `yaml:"uri"`    // any URI uridecodebin accepts (rtsp://, file://, http://)
	Width  int     `yaml:"width"`  // 0 keeps the negotiated width
	Height int     `yaml:"height"` // 0 keeps the negotiated height
	FPS    float64 `yaml:"fps"`    // 0 keeps the source rate

	// WarmupFrames is the number of zero-size reads a synthetic source
	// reports before producing frames.
	WarmupFrames int `yaml:"warmup_frames"`

	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig mirrors the GStreamer source backoff settings.
type ReconnectConfig struct {
	MaxRetries      int `yaml:"max_retries"`        // default: 5
	RetryDelayMS    int `yaml:"retry_delay_ms"`     // default: 1000
	MaxRetryDelayMS int `yaml:"max_retry_delay_ms"` // default: 30000
}

// DisplayConfig controls the refresh signal driving the compositing loop.
type DisplayConfig struct {
	RefreshHz float64 `yaml:"refresh_hz"` // default: 60
}

// KeyingConfig holds the initial keying options.
type KeyingConfig struct {
	Enabled *bool          `yaml:"enabled"` // default: true
	Options chroma.Options `yaml:",inline"`
}

// MQTTConfig contains MQTT broker settings.
type MQTTConfig struct {
	Enabled         bool            `yaml:"enabled"`
	Broker          string          `yaml:"broker"`
	Topics          MQTTTopics      `yaml:"topics"`
	QoS             map[string]byte `yaml:"qos"`
	Codec           string          `yaml:"codec"`             // json, msgpack
	StatusIntervalS int             `yaml:"status_interval_s"` // default: 5
}

// MQTTTopics contains topic names.
type MQTTTopics struct {
	Control   string `yaml:"control"`
	Status    string `yaml:"status"`
	Responses string `yaml:"responses"`
}

// HTTPConfig configures the health and viewer server.
type HTTPConfig struct {
	Addr           string `yaml:"addr"`             // default: ":8080"
	ViewerMaxWidth int    `yaml:"viewer_max_width"` // 0 disables downscaling
	ViewerFPS      int    `yaml:"viewer_fps"`       // default: 15
}

// ShutdownTimeout returns the graceful shutdown timeout.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

// KeyingEnabled reports whether keying starts enabled.
func (c *Config) KeyingEnabled() bool {
	return c.Keying.Enabled == nil || *c.Keying.Enabled
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with every default filled in, before
// validation derives topic names.
func Default() *Config {
	return &Config{
		InstanceID:       "compositor",
		ShutdownTimeoutS: 5,
		Source: SourceConfig{
			Type:         SourceSynthetic,
			WarmupFrames: 3,
		},
		Display: DisplayConfig{RefreshHz: 60},
		Keying:  KeyingConfig{Options: chroma.DefaultOptions()},
		MQTT: MQTTConfig{
			Codec:           CodecJSON,
			StatusIntervalS: 5,
		},
		HTTP: HTTPConfig{
			Addr:      ":8080",
			ViewerFPS: 15,
		},
	}
}

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks the configuration and fills derived defaults.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}
	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}

	if err := validateSource(&cfg.Source); err != nil {
		return fmt.Errorf("source: %w", err)
	}

	if cfg.Display.RefreshHz <= 0 {
		cfg.Display.RefreshHz = 60
	}
	if cfg.Display.RefreshHz > 240 {
		return fmt.Errorf("display.refresh_hz must be <= 240, got %v", cfg.Display.RefreshHz)
	}

	if err := ValidateOptions(cfg.Keying.Options); err != nil {
		return fmt.Errorf("keying: %w", err)
	}

	if err := validateMQTT(cfg); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.ViewerFPS <= 0 {
		cfg.HTTP.ViewerFPS = 15
	}
	if cfg.HTTP.ViewerMaxWidth < 0 {
		return fmt.Errorf("http.viewer_max_width must be >= 0")
	}

	return nil
}

func validateSource(src *SourceConfig) error {
	switch src.Type {
	case SourceGStreamer:
		if src.URI == "" {
			return fmt.Errorf("uri is required for gstreamer sources")
		}
	case SourceSynthetic:
		if src.Width == 0 && src.Height == 0 {
			src.Width, src.Height = 640, 480
		}
		if src.Width <= 0 || src.Height <= 0 {
			return fmt.Errorf("synthetic source needs width and height, got %dx%d", src.Width, src.Height)
		}
		if src.FPS == 0 {
			src.FPS = 30
		}
	default:
		return fmt.Errorf("unknown type %q (must be %q or %q)", src.Type, SourceGStreamer, SourceSynthetic)
	}

	if src.Width < 0 || src.Height < 0 || src.FPS < 0 {
		return fmt.Errorf("width, height and fps must not be negative")
	}
	if src.FPS > 120 {
		return fmt.Errorf("fps must be <= 120, got %v", src.FPS)
	}
	if src.WarmupFrames < 0 {
		src.WarmupFrames = 0
	}

	if src.Reconnect.MaxRetries <= 0 {
		src.Reconnect.MaxRetries = 5
	}
	if src.Reconnect.RetryDelayMS <= 0 {
		src.Reconnect.RetryDelayMS = 1000
	}
	if src.Reconnect.MaxRetryDelayMS <= 0 {
		src.Reconnect.MaxRetryDelayMS = 30000
	}
	return nil
}

func validateMQTT(cfg *Config) error {
	m := &cfg.MQTT
	if !m.Enabled {
		return nil
	}
	if m.Broker == "" {
		return fmt.Errorf("broker is required when mqtt is enabled")
	}

	if m.Topics.Control == "" {
		m.Topics.Control = fmt.Sprintf("compositor/control/%s", cfg.InstanceID)
	}
	if m.Topics.Status == "" {
		m.Topics.Status = fmt.Sprintf("compositor/status/%s", cfg.InstanceID)
	}
	if m.Topics.Responses == "" {
		m.Topics.Responses = fmt.Sprintf("compositor/responses/%s", cfg.InstanceID)
	}

	if m.QoS == nil {
		m.QoS = map[string]byte{
			"control":   1,
			"status":    0,
			"responses": 1,
		}
	}
	for name, qos := range m.QoS {
		if qos > 2 {
			return fmt.Errorf("qos[%s] must be 0, 1 or 2, got %d", name, qos)
		}
	}

	switch m.Codec {
	case "":
		m.Codec = CodecJSON
	case CodecJSON, CodecMsgpack:
	default:
		return fmt.Errorf("codec must be %q or %q, got %q", CodecJSON, CodecMsgpack, m.Codec)
	}

	if m.StatusIntervalS <= 0 {
		m.StatusIntervalS = 5
	}
	return nil
}
