package compositor

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSource is returned by Attach when the source is nil.
	ErrNoSource = errors.New("compositor: no video source")

	// ErrSurfaceUnavailable is returned by Attach when the output surface
	// is not attached to a live display.
	ErrSurfaceUnavailable = errors.New("compositor: output surface unavailable")

	// ErrSessionClosed is returned by Attach after Close.
	ErrSessionClosed = errors.New("compositor: session closed")

	// ErrFrameNotReady is returned by VideoSource.ReadFrame while the source
	// has no decoded frame yet. The cycle is skipped, nothing is surfaced.
	ErrFrameNotReady = errors.New("compositor: frame not ready")

	// ErrPacerStopped is returned by RefreshPacer.Wait after Stop.
	ErrPacerStopped = errors.New("compositor: pacer stopped")
)

// Stage names the part of a cycle where a fault happened.
type Stage string

const (
	StageRead    Stage = "read"
	StageProcess Stage = "process"
	StagePresent Stage = "present"
	StagePace    Stage = "pace"
)

// FrameFault is a processing fault caught at the cycle boundary. It puts the
// session in StateError until the next good cycle.
type FrameFault struct {
	Stage Stage
	Err   error
}

func (f *FrameFault) Error() string {
	return fmt.Sprintf("compositor: %s failed: %v", f.Stage, f.Err)
}

func (f *FrameFault) Unwrap() error {
	return f.Err
}
