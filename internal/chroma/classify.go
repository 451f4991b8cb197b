package chroma

import "math"

// Perceptual luminance weights (ITU-R BT.601).
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

// Result is the classification of a single pixel.
type Result struct {
	// Background is true when the pixel is removed entirely.
	Background bool

	// Fade is the transparency factor in [0,1] (0 = opaque, 1 = removed).
	Fade float64

	// Alpha is the output alpha in 0-255.
	Alpha uint8
}

// Luminance returns the perceptual brightness of a pixel in [0,1].
func Luminance(r, g, b uint8) float64 {
	return (lumaR*float64(r) + lumaG*float64(g) + lumaB*float64(b)) / 255
}

// Saturation returns (max-min)/max in [0,1], or 0 for pure black.
func Saturation(r, g, b uint8) float64 {
	hi := max(r, g, b)
	if hi == 0 {
		return 0
	}
	lo := min(r, g, b)
	return float64(hi-lo) / float64(hi)
}

// Classify decides whether a pixel belongs to the near-white background.
//
// Rules, in order:
//  1. lum >= WhiteThreshold and sat <= SaturationThreshold: background, alpha 0
//  2. lum > WhiteThreshold-Tolerance: fade factor (lum-low)/Tolerance clamped
//     to [0,1], so saturated pixels at or above WhiteThreshold fade out fully
//  3. anything else: opaque, alpha 255
//
// With a zero Tolerance the band collapses: pixels brighter than
// WhiteThreshold are removed, the rest stay opaque.
func Classify(r, g, b uint8, opts Options) Result {
	lum := Luminance(r, g, b)
	sat := Saturation(r, g, b)

	if lum >= opts.WhiteThreshold && sat <= opts.SaturationThreshold {
		return Result{Background: true, Fade: 1, Alpha: 0}
	}

	low := opts.WhiteThreshold - opts.Tolerance
	if lum > low {
		fade := 1.0
		if opts.Tolerance > 0 {
			fade = clamp01((lum - low) / opts.Tolerance)
		}
		return Result{Fade: fade, Alpha: uint8(math.Round(255 * (1 - fade)))}
	}

	return Result{Alpha: 255}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
