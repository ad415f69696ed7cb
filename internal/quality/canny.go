package quality

import (
	"fmt"
	"image"
	"math"
)

// Reference hysteresis thresholds on the 0-255 intensity scale.
const (
	DefaultCannyLow  = 100
	DefaultCannyHigh = 200
)

// EdgeDetector measures detail as a count of edge pixels.
type EdgeDetector interface {
	Density(gray *image.Gray) int
}

// Canny is the default EdgeDetector: 3x3 Sobel gradients with replicated
// borders, L1 magnitude, non-maximum suppression and two-threshold
// hysteresis.
type Canny struct {
	Low  float64
	High float64
}

// NewCanny returns a Canny detector. Inverted or negative thresholds are a
// programming error and panic.
func NewCanny(low, high float64) *Canny {
	if low < 0 || high < 0 || low > high {
		panic(fmt.Sprintf("quality: invalid canny thresholds low=%v high=%v", low, high))
	}
	return &Canny{Low: low, High: high}
}

// tan(22.5) and tan(67.5), used to bucket gradient direction.
var (
	tan22 = math.Tan(math.Pi / 8)
	tan67 = math.Tan(3 * math.Pi / 8)
)

const (
	edgeNone uint8 = iota
	edgeWeak
	edgeStrong
)

// Density implements EdgeDetector.
func (c *Canny) Density(gray *image.Gray) int {
	edges := c.Edges(gray)
	count := 0
	for _, v := range edges.Pix {
		if v != 0 {
			count++
		}
	}
	return count
}

// Edges returns a binary edge map (255 = edge) of the same size as gray.
func (c *Canny) Edges(gray *image.Gray) *image.Gray {
	width := gray.Bounds().Dx()
	height := gray.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, width, height))
	if width == 0 || height == 0 {
		return out
	}

	gx := make([]int, width*height)
	gy := make([]int, width*height)
	mag := make([]int, width*height)
	at := func(x, y int) int {
		x = min(max(x, 0), width-1)
		y = min(max(y, 0), height-1)
		return int(grayAt(gray, x, y))
	}
	for y := range height {
		for x := range width {
			dx := (at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)) -
				(at(x-1, y-1) + 2*at(x-1, y) + at(x-1, y+1))
			dy := (at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)) -
				(at(x-1, y-1) + 2*at(x, y-1) + at(x+1, y-1))
			i := y*width + x
			gx[i] = dx
			gy[i] = dy
			mag[i] = abs(dx) + abs(dy)
		}
	}

	// Magnitude outside the image counts as zero for suppression.
	m := func(x, y int) int {
		if x < 0 || y < 0 || x >= width || y >= height {
			return 0
		}
		return mag[y*width+x]
	}

	state := make([]uint8, width*height)
	var stack []int
	for y := range height {
		for x := range width {
			i := y*width + x
			v := mag[i]
			if float64(v) <= c.Low {
				continue
			}
			ax := float64(abs(gx[i]))
			ay := float64(abs(gy[i]))

			var isMax bool
			switch {
			case ay < ax*tan22:
				isMax = v > m(x-1, y) && v >= m(x+1, y)
			case ay > ax*tan67:
				isMax = v > m(x, y-1) && v >= m(x, y+1)
			default:
				s := 1
				if (gx[i] < 0) != (gy[i] < 0) {
					s = -1
				}
				isMax = v > m(x-s, y-1) && v > m(x+s, y+1)
			}
			if !isMax {
				continue
			}
			if float64(v) > c.High {
				state[i] = edgeStrong
				stack = append(stack, i)
			} else {
				state[i] = edgeWeak
			}
		}
	}

	// Hysteresis: promote weak pixels 8-connected to a strong one.
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%width, i/width
		for ny := y - 1; ny <= y+1; ny++ {
			for nx := x - 1; nx <= x+1; nx++ {
				if nx < 0 || ny < 0 || nx >= width || ny >= height {
					continue
				}
				j := ny*width + nx
				if state[j] == edgeWeak {
					state[j] = edgeStrong
					stack = append(stack, j)
				}
			}
		}
	}

	for i, s := range state {
		if s == edgeStrong {
			out.Pix[i] = 255
		}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
