package display

import (
	"sync"
	"time"
)

// viewerSlot is a per-viewer single-frame mailbox.
//
//   - new frame replaces an unconsumed one (drop counted)
//   - read blocks on a sync.Cond until a frame arrives or the slot closes
type viewerSlot struct {
	mu    sync.Mutex
	cond  *sync.Cond
	frame *Frame

	subscribedAt     time.Time
	lastConsumedAt   time.Time
	lastConsumedSeq  uint64
	consumed         uint64
	consecutiveDrops uint64
	totalDrops       uint64

	closed bool
}

func newViewerSlot() *viewerSlot {
	s := &viewerSlot{subscribedAt: time.Now()}
	s.cond = sync.NewCond(&s.mu)
	s.lastConsumedAt = s.subscribedAt
	return s
}

func (s *viewerSlot) publish(frame *Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.frame != nil {
		s.consecutiveDrops++
		s.totalDrops++
	}
	s.frame = frame
	s.cond.Signal()
}

func (s *viewerSlot) read() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.frame == nil && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return nil
	}

	frame := s.frame
	s.frame = nil
	s.lastConsumedAt = time.Now()
	s.lastConsumedSeq = frame.Seq
	s.consumed++
	s.consecutiveDrops = 0
	return frame
}

func (s *viewerSlot) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Subscribe registers a viewer and returns a blocking read function that
// yields the newest frame, or nil once the viewer is unsubscribed or the hub
// stops. The read function must be called from a single goroutine.
func (h *Hub) Subscribe(viewerID string) func() *Frame {
	if h.stopping.Load() {
		return func() *Frame { return nil }
	}

	slot := newViewerSlot()
	if old, loaded := h.slots.Swap(viewerID, slot); loaded {
		old.(*viewerSlot).close()
	}
	return slot.read
}

// Unsubscribe removes a viewer and wakes its read function with nil.
// Idempotent.
func (h *Hub) Unsubscribe(viewerID string) {
	val, ok := h.slots.LoadAndDelete(viewerID)
	if !ok {
		return
	}
	val.(*viewerSlot).close()
}
