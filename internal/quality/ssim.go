package quality

import (
	"image"
)

// Structural similarity defaults for 8-bit luminance.
const (
	DefaultWindow    = 7
	DefaultK1        = 0.01
	DefaultK2        = 0.03
	DefaultDataRange = 255.0
)

// Scorer computes a perceptual similarity score in [0, 1] between two
// luminance buffers. 1.0 means identical structure.
type Scorer interface {
	Score(a, b *image.Gray) float64
}

// SSIM is the default Scorer: mean structural similarity over every
// Window x Window block position, using sample covariance.
//
// When the dimensions differ, b is stretched to a's exact width and height
// before comparison. Score is therefore not symmetric: Score(a, b) and
// Score(b, a) may differ whenever the sizes do.
type SSIM struct {
	Window    int
	K1        float64
	K2        float64
	DataRange float64
}

// NewSSIM returns an SSIM scorer with the standard constants.
func NewSSIM() *SSIM {
	return &SSIM{
		Window:    DefaultWindow,
		K1:        DefaultK1,
		K2:        DefaultK2,
		DataRange: DefaultDataRange,
	}
}

// Score implements Scorer.
func (s *SSIM) Score(a, b *image.Gray) float64 {
	width := a.Bounds().Dx()
	height := a.Bounds().Dy()
	if width == 0 || height == 0 {
		return 0
	}
	if b.Bounds().Dx() != width || b.Bounds().Dy() != height {
		b = resizeGray(b, width, height)
	}

	win := s.windowFor(width, height)
	n := float64(win * win)
	covNorm := 1.0
	if win > 1 {
		covNorm = n / (n - 1)
	}
	c1 := (s.K1 * s.DataRange) * (s.K1 * s.DataRange)
	c2 := (s.K2 * s.DataRange) * (s.K2 * s.DataRange)

	// Column sums over the current band of win rows, kept exact in int64.
	cx := make([]int64, width)
	cy := make([]int64, width)
	cxx := make([]int64, width)
	cyy := make([]int64, width)
	cxy := make([]int64, width)
	addRow := func(y int, sign int64) {
		for x := range width {
			px := int64(grayAt(a, x, y))
			py := int64(grayAt(b, x, y))
			cx[x] += sign * px
			cy[x] += sign * py
			cxx[x] += sign * px * px
			cyy[x] += sign * py * py
			cxy[x] += sign * px * py
		}
	}
	for y := range win {
		addRow(y, 1)
	}

	var total float64
	var windows int
	for top := 0; top+win <= height; top++ {
		if top > 0 {
			addRow(top-1, -1)
			addRow(top+win-1, 1)
		}

		var sx, sy, sxx, syy, sxy int64
		for x := range win {
			sx += cx[x]
			sy += cy[x]
			sxx += cxx[x]
			syy += cyy[x]
			sxy += cxy[x]
		}
		for left := 0; left+win <= width; left++ {
			if left > 0 {
				out, in := left-1, left+win-1
				sx += cx[in] - cx[out]
				sy += cy[in] - cy[out]
				sxx += cxx[in] - cxx[out]
				syy += cyy[in] - cyy[out]
				sxy += cxy[in] - cxy[out]
			}

			ux := float64(sx) / n
			uy := float64(sy) / n
			vx := covNorm * (float64(sxx)/n - ux*ux)
			vy := covNorm * (float64(syy)/n - uy*uy)
			vxy := covNorm * (float64(sxy)/n - ux*uy)

			num := (2*ux*uy + c1) * (2*vxy + c2)
			den := (ux*ux + uy*uy + c1) * (vx + vy + c2)
			total += num / den
			windows++
		}
	}

	score := total / float64(windows)
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}

// windowFor shrinks the window for images smaller than it; the window stays odd.
func (s *SSIM) windowFor(width, height int) int {
	win := s.Window
	if win <= 0 {
		win = DefaultWindow
	}
	win = min(win, width, height)
	if win%2 == 0 {
		win--
	}
	return max(win, 1)
}

func grayAt(g *image.Gray, x, y int) uint8 {
	return g.Pix[g.PixOffset(g.Rect.Min.X+x, g.Rect.Min.Y+y)]
}
