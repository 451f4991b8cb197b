package compositor

import (
	"time"

	"github.com/e7canasta/chroma-compositor/internal/chroma"
	"github.com/e7canasta/chroma-compositor/internal/display"
	"github.com/e7canasta/chroma-compositor/internal/perf"
)

// Options are the four keying tunables.
type Options = chroma.Options

// Frame is a composited frame handed to the Surface.
type Frame = display.Frame

// State is the session lifecycle state.
type State string

const (
	// StateIdle means no source is attached.
	StateIdle State = "idle"
	// StateProcessing means the loop is running and frames are flowing.
	StateProcessing State = "processing"
	// StateError means the last cycle faulted. Not sticky: the next good
	// cycle returns to StateProcessing.
	StateError State = "error"
)

// Status is the observable state published to the host.
//
// The first three fields are the status object consumed by status UIs
// ({isProcessing, error, frameRate}).
type Status struct {
	// IsProcessing is true while a source is attached (processing or error)
	IsProcessing bool `json:"isProcessing" msgpack:"isProcessing"`
	// Error is the last fault message, nil when the last cycle succeeded
	Error *string `json:"error" msgpack:"error"`
	// FrameRate is the last finalized one-second frame rate
	FrameRate float64 `json:"frameRate" msgpack:"frameRate"`

	// State is the lifecycle state
	State State `json:"state" msgpack:"state"`
	// Keying is false when frames are passed through unkeyed
	Keying bool `json:"keying" msgpack:"keying"`
	// Width of the current frame (0 before the first processed frame)
	Width int `json:"width" msgpack:"width"`
	// Height of the current frame
	Height int `json:"height" msgpack:"height"`
	// UpdatedAt is when the status last changed
	UpdatedAt time.Time `json:"updatedAt" msgpack:"updatedAt"`
}

// ErrorMessage returns the error text or "".
func (s Status) ErrorMessage() string {
	if s.Error == nil {
		return ""
	}
	return *s.Error
}

// Stats contains counters of the current attachment. Counters restart on
// every Attach.
type Stats struct {
	// Attached indicates if a source is currently attached
	Attached bool `json:"attached" msgpack:"attached"`
	// AttachedAt is when the current source was attached
	AttachedAt time.Time `json:"attached_at" msgpack:"attached_at"`
	// Cycles is the number of scheduled cycles that ran
	Cycles uint64 `json:"cycles" msgpack:"cycles"`
	// FramesProcessed is the number of frames keyed and presented
	FramesProcessed uint64 `json:"frames_processed" msgpack:"frames_processed"`
	// CyclesSkipped counts transient skips (zero size, frame or surface not ready)
	CyclesSkipped uint64 `json:"cycles_skipped" msgpack:"cycles_skipped"`
	// Faults counts processing faults
	Faults uint64 `json:"faults" msgpack:"faults"`
	// Resizes counts buffer reallocations caused by dimension changes
	Resizes uint64 `json:"resizes" msgpack:"resizes"`
	// Cadence describes the timing of presented frames (nil when idle)
	Cadence *perf.CadenceStats `json:"cadence,omitempty" msgpack:"cadence,omitempty"`
}
