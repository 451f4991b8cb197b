package chroma

import "math"

// Smooth diffuses alpha into fully transparent pixels that touch at least one
// pixel with alpha > 0 among their 8 neighbours. pix is an RGBA plane of
// width×height pixels; only alpha bytes are written.
//
// Constraints:
//   - pixels with alpha > 0 are never modified
//   - the outermost rows and columns are never modified
//   - neighbours are read from the alpha plane as it was before the pass
//   - strength == 0 returns immediately
//
// New alpha = round(255 * strength * mean(neighbour alpha / 255)), where the
// mean runs over the neighbours with alpha > 0.
//
// Smoothing is a single pass and is not idempotent: running it again over its
// own output softens edges further.
func Smooth(pix []uint8, width, height int, strength float64) {
	smoothAlpha(pix, width, height, strength, nil)
}

// smoothAlpha is Smooth with a caller-owned scratch plane. It returns the
// (possibly grown) scratch slice for reuse.
func smoothAlpha(pix []uint8, width, height int, strength float64, scratch []uint8) []uint8 {
	if strength == 0 {
		return scratch
	}
	if width < 3 || height < 3 || len(pix) < width*height*BytesPerPixel {
		return scratch
	}

	n := width * height
	if cap(scratch) < n {
		scratch = make([]uint8, n)
	}
	scratch = scratch[:n]
	for i := 0; i < n; i++ {
		scratch[i] = pix[i*BytesPerPixel+3]
	}

	for y := 1; y < height-1; y++ {
		row := y * width
		for x := 1; x < width-1; x++ {
			i := row + x
			if scratch[i] != 0 {
				continue
			}

			sum, count := 0, 0
			for _, j := range [8]int{
				i - width - 1, i - width, i - width + 1,
				i - 1, i + 1,
				i + width - 1, i + width, i + width + 1,
			} {
				if a := scratch[j]; a > 0 {
					sum += int(a)
					count++
				}
			}
			if count == 0 {
				continue
			}

			mean := float64(sum) / float64(count) / 255
			pix[i*BytesPerPixel+3] = uint8(math.Round(255 * clamp01(strength*mean)))
		}
	}

	return scratch
}
