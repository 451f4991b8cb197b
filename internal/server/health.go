package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	compositor "github.com/e7canasta/chroma-compositor"
	"github.com/e7canasta/chroma-compositor/internal/config"
	"github.com/e7canasta/chroma-compositor/internal/display"
)

// Health values reported by /readiness.
const (
	HealthReady    = "ready"
	HealthDegraded = "degraded"
	HealthNotReady = "not_ready"
)

// HealthStatus is the /readiness document.
type HealthStatus struct {
	Status        string           `json:"status"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	State         compositor.State `json:"state"`
	FrameRate     float64          `json:"frame_rate"`
	Error         *string          `json:"error"`
	MQTTConnected *bool            `json:"mqtt_connected,omitempty"`
	Viewers       int              `json:"viewers"`
	Stable        bool             `json:"cadence_stable"`
}

// StatusDocument is the /status document.
type StatusDocument struct {
	Status  compositor.Status       `json:"status"`
	Stats   compositor.Stats        `json:"stats"`
	Options map[string]interface{}  `json:"options"`
	Ranges  map[string]config.Range `json:"ranges"`
	Display display.HubStats        `json:"display"`
}

// HealthCheck derives readiness from the session state.
//
//   - idle: not ready, nothing is being composited
//   - error or MQTT down: degraded, still serving the last good output
//   - processing: ready
func (s *Server) HealthCheck() HealthStatus {
	st := s.deps.Session.Status()
	stats := s.deps.Session.Stats()

	h := HealthStatus{
		Status:        HealthReady,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		State:         st.State,
		FrameRate:     st.FrameRate,
		Error:         st.Error,
		Viewers:       len(s.deps.Frames.Stats().Viewers),
	}
	if stats.Cadence != nil {
		h.Stable = stats.Cadence.IsStable
	}
	if s.deps.MQTTConnected != nil {
		connected := s.deps.MQTTConnected()
		h.MQTTConnected = &connected
	}

	switch {
	case st.State == compositor.StateIdle:
		h.Status = HealthNotReady
	case st.State == compositor.StateError:
		h.Status = HealthDegraded
	case h.MQTTConnected != nil && !*h.MQTTConnected:
		h.Status = HealthDegraded
	}
	return h
}

// livenessHandler answers /health: 200 while the process runs.
func (s *Server) livenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "alive",
		"instance_id": s.cfg.InstanceID,
		"uptime":      int64(time.Since(s.started).Seconds()),
	})
}

// readinessHandler answers /readiness: 503 while idle.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	h := s.HealthCheck()
	code := http.StatusOK
	if h.Status == HealthNotReady {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, h)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusDocument{
		Status:  s.deps.Session.Status(),
		Stats:   s.deps.Session.Stats(),
		Options: config.OptionsMap(s.deps.Options.Snapshot()),
		Ranges:  config.Ranges(),
		Display: s.deps.Frames.Stats(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("server: failed to write response", "error", err)
	}
}
