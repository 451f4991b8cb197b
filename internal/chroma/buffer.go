package chroma

import (
	"fmt"
	"image"
)

// BytesPerPixel is the size of one RGBA pixel.
const BytesPerPixel = 4

// Buffer is a 2-D grid of RGBA pixels (non-premultiplied), row-major with a
// stride of Width*4 bytes.
type Buffer struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewBuffer allocates a zeroed buffer of the given size.
func NewBuffer(width, height int) *Buffer {
	b := &Buffer{}
	b.Resize(width, height)
	return b
}

// Resize makes the buffer match width×height. The backing array is reused
// when it is large enough. Returns true when the dimensions changed.
func (b *Buffer) Resize(width, height int) bool {
	if width < 0 || height < 0 {
		width, height = 0, 0
	}
	n := width * height * BytesPerPixel
	if b.Width == width && b.Height == height && len(b.Pix) == n {
		return false
	}
	if cap(b.Pix) >= n {
		b.Pix = b.Pix[:n]
	} else {
		b.Pix = make([]uint8, n)
	}
	b.Width, b.Height = width, height
	return true
}

// Release drops the pixel storage so it can be reclaimed.
func (b *Buffer) Release() {
	b.Pix = nil
	b.Width, b.Height = 0, 0
}

// Empty reports whether the buffer has no pixels.
func (b *Buffer) Empty() bool {
	return b == nil || b.Width == 0 || b.Height == 0
}

// Image wraps the buffer as an image.NRGBA without copying.
func (b *Buffer) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    b.Pix,
		Stride: b.Width * BytesPerPixel,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

// BufferFromImage copies any image into a new RGBA buffer (non-premultiplied).
func BufferFromImage(img image.Image) *Buffer {
	bounds := img.Bounds()
	buf := NewBuffer(bounds.Dx(), bounds.Dy())
	dst := buf.Image()
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			dst.Set(x, y, img.At(bounds.Min.X+x, bounds.Min.Y+y))
		}
	}
	return buf
}

// validate checks that Pix covers Width×Height pixels.
func (b *Buffer) validate(name string) error {
	if b == nil {
		return fmt.Errorf("chroma: %s buffer is nil", name)
	}
	if want := b.Width * b.Height * BytesPerPixel; len(b.Pix) < want {
		return fmt.Errorf("chroma: %s buffer too short: got %d bytes, want %d: %w",
			name, len(b.Pix), want, ErrShortBuffer)
	}
	return nil
}
