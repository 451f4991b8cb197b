package display

import (
	"image"
	"time"
)

// Frame is a composited RGBA frame published to viewers.
//
// IMMUTABILITY CONTRACT:
//   - The hub copies Pix on Present, the publisher keeps its buffer
//   - Viewers MUST NOT modify Pix (the same frame is shared by every viewer)
type Frame struct {
	// Seq is assigned by the session, monotonically increasing per attachment.
	Seq uint64

	// Timestamp is when the frame finished compositing.
	Timestamp time.Time

	// Width of the frame in pixels
	Width int

	// Height of the frame in pixels
	Height int

	// Pix holds non-premultiplied RGBA, stride Width*4.
	Pix []uint8

	// TraceID identifies the frame across logs and viewers.
	TraceID string
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	c := *f
	c.Pix = make([]uint8, len(f.Pix))
	copy(c.Pix, f.Pix)
	return &c
}

// Image wraps the frame as an image.NRGBA without copying.
func (f *Frame) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    f.Pix,
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}
