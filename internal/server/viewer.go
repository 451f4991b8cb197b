package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/e7canasta/chroma-compositor/internal/display"
)

const (
	viewerWriteWait = 5 * time.Second
	viewerPongWait  = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// snapshotHandler answers /snapshot.png with the latest composite.
func (s *Server) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	frame := s.deps.Frames.Latest()
	if frame == nil {
		http.Error(w, "no frame presented yet", http.StatusServiceUnavailable)
		return
	}

	data, err := encodePreview(frame, s.cfg.ViewerMaxWidth)
	if err != nil {
		slog.Error("server: snapshot encode failed", "error", err)
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(frame.Seq, 10))
	w.Header().Set("X-Trace-Id", frame.TraceID)
	if _, err := w.Write(data); err != nil {
		slog.Debug("server: snapshot write failed", "seq", frame.Seq, "error", err)
	}
}

// viewerHandler upgrades to a websocket and streams PNG frames as binary
// messages, at most ViewerFPS per second. Frames arriving faster are
// dropped in the hub slot.
func (s *Server) viewerHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("server: websocket upgrade failed", "error", err)
		return
	}

	viewerID := "ws-" + uuid.NewString()
	read := s.deps.Frames.Subscribe(viewerID)

	s.viewers.Add(1)
	defer s.viewers.Done()

	slog.Info("server: viewer connected", "viewer_id", viewerID, "remote", r.RemoteAddr)

	// The reader detects the client going away and unblocks the frame read.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		defer s.deps.Frames.Unsubscribe(viewerID)

		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(viewerPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(viewerPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			conn.SetReadDeadline(time.Now().Add(viewerPongWait))
		}
	}()

	go func() {
		select {
		case <-s.stopping:
			s.deps.Frames.Unsubscribe(viewerID)
		case <-closed:
		}
	}()

	sent := s.streamFrames(conn, viewerID, read)

	closeViewer(conn, viewerID)
	<-closed

	slog.Info("server: viewer disconnected", "viewer_id", viewerID, "frames_sent", sent)
}

// closeViewer sends a normal close frame and closes the connection.
func closeViewer(conn *websocket.Conn, viewerID string) {
	err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(viewerWriteWait))
	if err != nil {
		slog.Debug("server: viewer close handshake failed", "viewer_id", viewerID, "error", err)
	}
	conn.Close()
}

// streamFrames writes frames until read returns nil or a write fails.
func (s *Server) streamFrames(conn *websocket.Conn, viewerID string, read func() *display.Frame) uint64 {
	interval := time.Second / time.Duration(s.cfg.ViewerFPS)
	var (
		sent     uint64
		lastSent time.Time
	)

	for {
		frame := read()
		if frame == nil {
			return sent
		}

		if wait := interval - time.Since(lastSent); wait > 0 {
			time.Sleep(wait)
		}

		data, err := encodePreview(frame, s.cfg.ViewerMaxWidth)
		if err != nil {
			slog.Error("server: viewer encode failed", "viewer_id", viewerID, "error", err)
			continue
		}

		conn.SetWriteDeadline(time.Now().Add(viewerWriteWait))
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			slog.Debug("server: viewer write failed", "viewer_id", viewerID, "error", err)
			s.deps.Frames.Unsubscribe(viewerID)
			return sent
		}
		lastSent = time.Now()
		sent++
	}
}
