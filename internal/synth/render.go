package synth

import "math"

// Palette of the synthetic scene.
var (
	backdrop = [3]float64{247, 247, 244}
	skin     = [3]float64{224, 172, 140}
	hair     = [3]float64{58, 40, 30}
	shirt    = [3]float64{40, 70, 140}
	eye      = [3]float64{30, 30, 36}
)

// Render draws frame number n of the scene into pix (RGBA, stride width*4).
// The head bobs on a two-second cycle. Shape edges are blended over one
// pixel so the matte has a soft rim to work with.
func Render(pix []uint8, width, height int, n uint64, fps int) {
	if fps <= 0 {
		fps = 30
	}
	w, h := float64(width), float64(height)
	phase := 2 * math.Pi * float64(n) / float64(2*fps)
	bob := math.Sin(phase) * h * 0.015

	headX, headY := w/2, h*0.38+bob
	headR := h * 0.16
	bodyX, bodyY := w/2, h*1.02+bob/2
	bodyRX, bodyRY := w*0.30, h*0.42
	eyeDX, eyeY, eyeR := headR*0.38, headY-headR*0.1, headR*0.09

	for y := 0; y < height; y++ {
		fy := float64(y) + 0.5
		// Backdrop darkens slightly toward the floor.
		shade := 1 - 0.02*fy/h
		for x := 0; x < width; x++ {
			fx := float64(x) + 0.5

			c := [3]float64{backdrop[0] * shade, backdrop[1] * shade, backdrop[2] * shade}

			c = blend(c, shirt, coverage(ellipseDist(fx, fy, bodyX, bodyY, bodyRX, bodyRY)))
			c = blend(c, skin, coverage(circleDist(fx, fy, headX, headY, headR)))
			if fy < headY-headR*0.35 {
				c = blend(c, hair, coverage(circleDist(fx, fy, headX, headY-headR*0.05, headR*1.04)))
			}
			c = blend(c, eye, coverage(circleDist(fx, fy, headX-eyeDX, eyeY, eyeR)))
			c = blend(c, eye, coverage(circleDist(fx, fy, headX+eyeDX, eyeY, eyeR)))

			i := (y*width + x) * 4
			pix[i] = uint8(c[0] + 0.5)
			pix[i+1] = uint8(c[1] + 0.5)
			pix[i+2] = uint8(c[2] + 0.5)
			pix[i+3] = 255
		}
	}
}

// circleDist is the signed distance to a circle edge (negative inside).
func circleDist(x, y, cx, cy, r float64) float64 {
	return math.Hypot(x-cx, y-cy) - r
}

// ellipseDist approximates the signed distance to an ellipse edge.
func ellipseDist(x, y, cx, cy, rx, ry float64) float64 {
	dx, dy := (x-cx)/rx, (y-cy)/ry
	return (math.Sqrt(dx*dx+dy*dy) - 1) * math.Min(rx, ry)
}

// coverage maps a signed distance to pixel coverage in [0,1].
func coverage(d float64) float64 {
	return math.Max(0, math.Min(1, 0.5-d))
}

func blend(dst, src [3]float64, a float64) [3]float64 {
	if a == 0 {
		return dst
	}
	return [3]float64{
		dst[0] + (src[0]-dst[0])*a,
		dst[1] + (src[1]-dst[1])*a,
		dst[2] + (src[2]-dst[2])*a,
	}
}
