package compositor

import "context"

// VideoSource is a live video handle owned by an external provider.
//
// Implementations must guarantee:
//   - Dimensions() reports (0, 0) until the stream has warmed up
//   - ReadFrame() copies the current frame as RGBA (stride width*4) into dst,
//     which is exactly width*height*4 bytes for the last reported dimensions
//   - ReadFrame() returns ErrFrameNotReady when no frame is available yet
//
// The session never closes a source. Stopping it is the provider's job.
type VideoSource interface {
	// Dimensions returns the current frame width and height in pixels.
	Dimensions() (width, height int)

	// ReadFrame copies the current frame into dst.
	ReadFrame(dst []byte) error
}

// Surface is where composited frames are displayed.
//
// Present must not retain frame.Pix after returning: the session reuses the
// buffer on the next cycle.
type Surface interface {
	// Ready returns nil when the surface is attached to a live display.
	Ready() error

	// Present displays a composited frame.
	Present(frame *Frame) error
}

// Pacer paces the loop on the display refresh signal.
type Pacer interface {
	// Wait blocks until the next refresh, or until ctx is done.
	Wait(ctx context.Context) error
}

// OptionsSource hands out immutable options snapshots. A config.Store
// satisfies it.
type OptionsSource interface {
	Snapshot() Options
}

// StaticOptions is an OptionsSource that never changes.
type StaticOptions Options

// Snapshot returns the options.
func (o StaticOptions) Snapshot() Options {
	return Options(o)
}
