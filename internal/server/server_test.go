package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	compositor "github.com/e7canasta/chroma-compositor"
	"github.com/e7canasta/chroma-compositor/internal/config"
	"github.com/e7canasta/chroma-compositor/internal/display"
	"github.com/e7canasta/chroma-compositor/internal/perf"
)

type fakeSession struct {
	mu     sync.Mutex
	status compositor.Status
	stats  compositor.Stats
}

func (f *fakeSession) Status() compositor.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeSession) Stats() compositor.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *fakeSession) set(st compositor.Status) {
	f.mu.Lock()
	f.status = st
	f.mu.Unlock()
}

func newTestServer(t *testing.T, cfg Config, mqtt func() bool) (*Server, *fakeSession, *display.Hub) {
	t.Helper()

	hub := display.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	if err := hub.Start(ctx); err != nil {
		t.Fatalf("hub Start failed: %v", err)
	}
	t.Cleanup(func() {
		hub.Stop()
		cancel()
	})

	sess := &fakeSession{status: compositor.Status{State: compositor.StateIdle}}
	srv, err := New(cfg, Deps{
		Session:       sess,
		Frames:        hub,
		Options:       config.NewDefaultStore(),
		MQTTConnected: mqtt,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return srv, sess, hub
}

func testFrame(seq uint64, w, h int) *display.Frame {
	pix := make([]uint8, w*h*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = 200, 40, 40, 255
	}
	return &display.Frame{Seq: seq, Width: w, Height: h, Pix: pix, TraceID: "trace-1", Timestamp: time.Now()}
}

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(Config{}, Deps{}); err == nil {
		t.Error("expected error without dependencies")
	}
}

func TestLiveness(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{InstanceID: "studio-1"}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body["status"] != "alive" || body["instance_id"] != "studio-1" {
		t.Errorf("body = %v", body)
	}
}

func TestReadiness(t *testing.T) {
	msg := "compositor: read failed"
	mqttUp := true

	tests := []struct {
		name     string
		status   compositor.Status
		mqttUp   bool
		wantCode int
		want     string
	}{
		{"idle", compositor.Status{State: compositor.StateIdle}, true, http.StatusServiceUnavailable, HealthNotReady},
		{"processing", compositor.Status{IsProcessing: true, State: compositor.StateProcessing, FrameRate: 30}, true, http.StatusOK, HealthReady},
		{"faulted", compositor.Status{IsProcessing: true, State: compositor.StateError, Error: &msg}, true, http.StatusOK, HealthDegraded},
		{"mqtt down", compositor.Status{IsProcessing: true, State: compositor.StateProcessing}, false, http.StatusOK, HealthDegraded},
	}

	srv, sess, _ := newTestServer(t, Config{}, func() bool { return mqttUp })

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess.set(tt.status)
			mqttUp = tt.mqttUp

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readiness", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var h HealthStatus
			if err := json.Unmarshal(rec.Body.Bytes(), &h); err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if h.Status != tt.want {
				t.Errorf("status = %s, want %s", h.Status, tt.want)
			}
			if h.State != tt.status.State {
				t.Errorf("state = %s, want %s", h.State, tt.status.State)
			}
		})
	}
}

func TestStatusDocument(t *testing.T) {
	srv, sess, _ := newTestServer(t, Config{}, nil)
	sess.mu.Lock()
	sess.status = compositor.Status{IsProcessing: true, State: compositor.StateProcessing, FrameRate: 60, Keying: true}
	sess.stats = compositor.Stats{Attached: true, FramesProcessed: 42, Cadence: &perf.CadenceStats{Frames: 10}}
	sess.mu.Unlock()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	var doc map[string]map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if doc["status"]["isProcessing"] != true || doc["status"]["frameRate"] != 60.0 {
		t.Errorf("status = %v", doc["status"])
	}
	if v, ok := doc["status"]["error"]; !ok || v != nil {
		t.Errorf("error should be null, got %v", v)
	}
	if doc["stats"]["frames_processed"] != 42.0 {
		t.Errorf("stats = %v", doc["stats"])
	}
	if doc["options"]["whiteThreshold"] != 0.85 {
		t.Errorf("options = %v", doc["options"])
	}
	if _, ok := doc["ranges"]["smoothing"]; !ok {
		t.Errorf("ranges = %v", doc["ranges"])
	}
}

func TestSnapshot(t *testing.T) {
	srv, _, hub := newTestServer(t, Config{ViewerMaxWidth: 32}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshot.png", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("before first frame: code = %d, want 503", rec.Code)
	}

	if err := hub.Present(testFrame(7, 64, 48)); err != nil {
		t.Fatalf("Present failed: %v", err)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshot.png", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if rec.Header().Get("X-Frame-Seq") != "7" {
		t.Errorf("X-Frame-Seq = %q", rec.Header().Get("X-Frame-Seq"))
	}

	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("png decode failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 24 {
		t.Errorf("snapshot size = %v, want 32x24", b)
	}
}

func TestScaleToWidth(t *testing.T) {
	img := testFrame(1, 100, 50).Image()

	if got := scaleToWidth(img, 0); got != img {
		t.Error("maxWidth 0 should return the image unchanged")
	}
	if got := scaleToWidth(img, 200); got != img {
		t.Error("narrower image should be returned unchanged")
	}

	got := scaleToWidth(img, 10)
	if got.Bounds().Dx() != 10 || got.Bounds().Dy() != 5 {
		t.Errorf("scaled bounds = %v, want 10x5", got.Bounds())
	}
	if a := got.NRGBAAt(5, 2).A; a != 255 {
		t.Errorf("scaled alpha = %d, want 255", a)
	}
}

func TestViewerStreamsFrames(t *testing.T) {
	srv, _, hub := newTestServer(t, Config{ViewerFPS: 100}, nil)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for len(hub.Stats().Viewers) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("viewer never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := hub.Present(testFrame(1, 16, 8)); err != nil {
		t.Fatalf("Present failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Errorf("message type = %d, want binary", kind)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png decode failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 8 {
		t.Errorf("frame size = %v", b)
	}

	// Closing the client unsubscribes the viewer.
	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for len(hub.Stats().Viewers) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("viewer not unsubscribed after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Logf("✅ viewer received frame and unsubscribed on disconnect")
}

func TestShutdownClosesViewers(t *testing.T) {
	srv, _, hub := newTestServer(t, Config{Addr: "127.0.0.1:0"}, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := srv.Start(); err == nil {
		t.Error("second Start should fail")
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for len(hub.Stats().Viewers) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("viewer never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal close, got %v", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown failed: %v", err)
	}
}

// captureLogs routes the default logger into a buffer at debug level.
func captureLogs(t *testing.T) *syncBuffer {
	t.Helper()
	buf := &syncBuffer{}
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return buf
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// failingWriter accepts headers but rejects the body.
type failingWriter struct {
	header http.Header
}

func (w *failingWriter) Header() http.Header       { return w.header }
func (w *failingWriter) WriteHeader(int)           {}
func (w *failingWriter) Write([]byte) (int, error) { return 0, errors.New("client went away") }

func TestSnapshotWriteFailureLogged(t *testing.T) {
	logs := captureLogs(t)
	srv, _, hub := newTestServer(t, Config{}, nil)
	if err := hub.Present(testFrame(3, 8, 8)); err != nil {
		t.Fatalf("Present failed: %v", err)
	}

	srv.snapshotHandler(&failingWriter{header: http.Header{}}, httptest.NewRequest(http.MethodGet, "/snapshot.png", nil))

	if out := logs.String(); !strings.Contains(out, "snapshot write failed") || !strings.Contains(out, "client went away") {
		t.Errorf("missing debug log for failed write, got:\n%s", out)
	}
}

func TestCloseViewerFailureLogged(t *testing.T) {
	logs := captureLogs(t)

	done := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(done)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		// Close the transport first so the close frame cannot be written.
		conn.Close()
		closeViewer(conn, "ws-test")
	}))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not finish")
	}

	if out := logs.String(); !strings.Contains(out, "viewer close handshake failed") || !strings.Contains(out, "ws-test") {
		t.Errorf("missing debug log for failed close, got:\n%s", out)
	}
}
