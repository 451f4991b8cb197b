// Package display is the output surface of the compositor: it takes
// composited frames from the session and fans them out to viewers with
// latest-frame-wins mailboxes.
//
// Philosophy: "Drop frames, never queue." A slow viewer sees fewer frames,
// it never slows down the compositing loop.
package display

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrNotStarted is returned by Ready and Present when the hub is not running.
var ErrNotStarted = errors.New("display: hub not started")

// fanoutBatchSize is the viewer count above which distribution is split
// across goroutines.
const fanoutBatchSize = 8

// Hub distributes composited frames to subscribed viewers.
//
// Goroutine topology:
//   - 1 fixed: distributionLoop (spawned by Start, stopped by Stop)
//   - 0-N/8 transient: batch goroutines when more than 8 viewers are subscribed
//   - N external: viewer goroutines (owned by the viewers)
//
// Thread-safety: All methods safe for concurrent use.
type Hub struct {
	// Session → Hub
	inboxMu    sync.Mutex
	inboxCond  *sync.Cond
	inboxFrame *Frame
	inboxDrops atomic.Uint64

	// Hub → Viewers
	slots sync.Map // viewerID (string) → *viewerSlot

	latest    atomic.Pointer[Frame]
	presented atomic.Uint64

	// Lifecycle
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedMu sync.Mutex
	started   bool
	stopping  atomic.Bool
}

// NewHub creates a hub. Call Start before presenting frames.
func NewHub() *Hub {
	h := &Hub{}
	h.inboxCond = sync.NewCond(&h.inboxMu)
	return h
}

// Start begins the distribution loop. Returns immediately.
func (h *Hub) Start(ctx context.Context) error {
	h.startedMu.Lock()
	defer h.startedMu.Unlock()

	if h.started {
		return fmt.Errorf("display: hub already started")
	}

	h.ctx, h.cancel = context.WithCancel(ctx)
	h.started = true
	h.stopping.Store(false)

	h.wg.Add(1)
	go h.distributionLoop()

	slog.Info("display: hub started")
	return nil
}

// Stop shuts down the distribution loop and wakes every viewer with nil.
// Idempotent.
func (h *Hub) Stop() error {
	h.startedMu.Lock()
	defer h.startedMu.Unlock()

	if !h.started {
		return nil
	}

	h.stopping.Store(true)
	h.cancel()

	h.inboxMu.Lock()
	h.inboxCond.Broadcast()
	h.inboxMu.Unlock()

	h.wg.Wait()

	h.slots.Range(func(key, value interface{}) bool {
		value.(*viewerSlot).close()
		h.slots.Delete(key)
		return true
	})

	h.started = false
	slog.Info("display: hub stopped",
		"frames_presented", h.presented.Load(),
		"inbox_drops", h.inboxDrops.Load(),
	)
	return nil
}

// Ready reports whether the hub accepts frames.
func (h *Hub) Ready() error {
	h.startedMu.Lock()
	defer h.startedMu.Unlock()

	if !h.started || h.stopping.Load() {
		return ErrNotStarted
	}
	return nil
}

// Present copies the frame and hands it to the distribution loop
// (non-blocking). The caller may reuse frame.Pix as soon as Present returns.
//
// A frame that has not been distributed yet is overwritten and counted in
// InboxDrops.
func (h *Hub) Present(frame *Frame) error {
	if frame == nil {
		return fmt.Errorf("display: nil frame")
	}
	if h.stopping.Load() {
		return ErrNotStarted
	}

	published := frame.Clone()
	h.latest.Store(published)
	h.presented.Add(1)

	h.inboxMu.Lock()
	if h.inboxFrame != nil {
		h.inboxDrops.Add(1)
	}
	h.inboxFrame = published
	h.inboxCond.Signal()
	h.inboxMu.Unlock()

	return nil
}

// Latest returns the most recently presented frame, or nil.
func (h *Hub) Latest() *Frame {
	return h.latest.Load()
}

// distributionLoop waits for frames in the inbox and fans them out.
func (h *Hub) distributionLoop() {
	defer h.wg.Done()

	for {
		h.inboxMu.Lock()
		for h.inboxFrame == nil {
			if h.ctx.Err() != nil {
				h.inboxMu.Unlock()
				return
			}
			h.inboxCond.Wait()
			if h.ctx.Err() != nil {
				h.inboxMu.Unlock()
				return
			}
		}

		frame := h.inboxFrame
		h.inboxFrame = nil
		h.inboxMu.Unlock()

		h.distribute(frame)
	}
}

// distribute publishes a frame to every viewer slot. Above fanoutBatchSize
// viewers the slots are split into batches handled by transient goroutines
// (fire-and-forget: a frame interval is far longer than a fan-out).
func (h *Hub) distribute(frame *Frame) {
	var slots []*viewerSlot
	h.slots.Range(func(_, value interface{}) bool {
		slots = append(slots, value.(*viewerSlot))
		return true
	})

	if len(slots) <= fanoutBatchSize {
		for _, slot := range slots {
			slot.publish(frame)
		}
		return
	}

	for i := 0; i < len(slots); i += fanoutBatchSize {
		batch := slots[i:min(i+fanoutBatchSize, len(slots))]
		go func(b []*viewerSlot) {
			for _, slot := range b {
				slot.publish(frame)
			}
		}(batch)
	}
}
