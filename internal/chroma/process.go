package chroma

import (
	"errors"
	"fmt"
)

var (
	// ErrSizeMismatch is returned when source and output dimensions differ.
	ErrSizeMismatch = errors.New("chroma: buffer size mismatch")

	// ErrShortBuffer is returned when Pix does not cover Width×Height pixels.
	ErrShortBuffer = errors.New("chroma: short buffer")
)

// Processor runs the classifier and the smoother over whole frames.
//
// It keeps a scratch alpha plane between frames, so a Processor must not be
// shared between goroutines. The zero value is ready to use.
type Processor struct {
	scratch []uint8
}

// Process classifies every pixel of src into dst and then smooths the alpha
// plane of dst. dst is complete when Process returns nil; on error dst is
// left untouched.
//
// Both buffers must have identical dimensions. Resizing is the caller's job.
func (p *Processor) Process(src, dst *Buffer, opts Options) error {
	if err := checkPair(src, dst); err != nil {
		return err
	}

	s := src.Pix[:src.Width*src.Height*BytesPerPixel]
	d := dst.Pix[:len(s)]
	for i := 0; i < len(s); i += BytesPerPixel {
		r, g, b := s[i], s[i+1], s[i+2]
		d[i] = r
		d[i+1] = g
		d[i+2] = b
		d[i+3] = Classify(r, g, b, opts).Alpha
	}

	p.scratch = smoothAlpha(d, dst.Width, dst.Height, opts.Smoothing, p.scratch)
	return nil
}

// ProcessFrame is Process with a one-shot processor.
func ProcessFrame(src, dst *Buffer, opts Options) error {
	var p Processor
	return p.Process(src, dst, opts)
}

// CopyFrame copies src into dst with every pixel fully opaque. Used when
// keying is switched off.
func CopyFrame(src, dst *Buffer) error {
	if err := checkPair(src, dst); err != nil {
		return err
	}
	n := src.Width * src.Height * BytesPerPixel
	copy(dst.Pix[:n], src.Pix[:n])
	for i := 3; i < n; i += BytesPerPixel {
		dst.Pix[i] = 255
	}
	return nil
}

func checkPair(src, dst *Buffer) error {
	if err := src.validate("source"); err != nil {
		return err
	}
	if err := dst.validate("output"); err != nil {
		return err
	}
	if src.Width != dst.Width || src.Height != dst.Height {
		return fmt.Errorf("%w: source %dx%d, output %dx%d",
			ErrSizeMismatch, src.Width, src.Height, dst.Width, dst.Height)
	}
	return nil
}
