package server

import (
	"bytes"
	"image"
	"image/png"

	"golang.org/x/image/draw"

	"github.com/e7canasta/chroma-compositor/internal/display"
)

// previewEncoder encodes frames as PNG, keeping the alpha channel.
// BestSpeed: viewers re-encode every frame.
var previewEncoder = png.Encoder{CompressionLevel: png.BestSpeed}

// scaleToWidth downscales img to maxWidth keeping the aspect ratio. Images
// already narrower, or maxWidth <= 0, are returned as is.
func scaleToWidth(img *image.NRGBA, maxWidth int) *image.NRGBA {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}

	h := b.Dy() * maxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewNRGBA(image.Rect(0, 0, maxWidth, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// encodePreview renders a frame as PNG bytes.
func encodePreview(f *display.Frame, maxWidth int) ([]byte, error) {
	var buf bytes.Buffer
	if err := previewEncoder.Encode(&buf, scaleToWidth(f.Image(), maxWidth)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
