package display

import "time"

// idleThreshold marks a viewer idle when it has not consumed for this long.
const idleThreshold = 30 * time.Second

// HubStats is a snapshot of hub operational state.
type HubStats struct {
	// FramesPresented counts frames accepted by Present.
	FramesPresented uint64 `json:"frames_presented"`

	// InboxDrops counts frames overwritten before distribution.
	// Should stay near zero: distribution is far faster than a frame interval.
	InboxDrops uint64 `json:"inbox_drops"`

	// Viewers maps viewer ID to per-viewer statistics.
	Viewers map[string]ViewerStats `json:"viewers"`
}

// ViewerStats tracks per-viewer delivery.
type ViewerStats struct {
	SubscribedAt     time.Time `json:"subscribed_at"`
	LastConsumedAt   time.Time `json:"last_consumed_at"`
	LastConsumedSeq  uint64    `json:"last_consumed_seq"`
	Consumed         uint64    `json:"consumed"`
	ConsecutiveDrops uint64    `json:"consecutive_drops"`
	TotalDrops       uint64    `json:"total_drops"`
	IsIdle           bool      `json:"is_idle"`
}

// Stats returns an operational snapshot. Non-blocking apart from short
// per-slot locks.
func (h *Hub) Stats() HubStats {
	viewers := make(map[string]ViewerStats)

	h.slots.Range(func(key, value interface{}) bool {
		slot := value.(*viewerSlot)

		slot.mu.Lock()
		viewers[key.(string)] = ViewerStats{
			SubscribedAt:     slot.subscribedAt,
			LastConsumedAt:   slot.lastConsumedAt,
			LastConsumedSeq:  slot.lastConsumedSeq,
			Consumed:         slot.consumed,
			ConsecutiveDrops: slot.consecutiveDrops,
			TotalDrops:       slot.totalDrops,
			IsIdle:           time.Since(slot.lastConsumedAt) > idleThreshold,
		}
		slot.mu.Unlock()

		return true
	})

	return HubStats{
		FramesPresented: h.presented.Load(),
		InboxDrops:      h.inboxDrops.Load(),
		Viewers:         viewers,
	}
}
