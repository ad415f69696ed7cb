// Package quality holds the perceptual measurements used by the curation
// engine: luminance conversion, structural similarity and edge density.
package quality

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// Luminance converts an image to a single-channel 8-bit luminance buffer
// using the ITU-R BT.601 luma formula. The result always starts at (0,0).
func Luminance(img image.Image) *image.Gray {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	gray := image.NewGray(image.Rect(0, 0, width, height))

	switch src := img.(type) {
	case *image.Gray:
		for y := range height {
			srcRow := src.Pix[src.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
			copy(gray.Pix[y*gray.Stride:y*gray.Stride+width], srcRow[:width])
		}
		return gray
	case *image.YCbCr:
		// JPEG frames already carry luma in the Y plane.
		for y := range height {
			for x := range width {
				gray.Pix[y*gray.Stride+x] = src.Y[src.YOffset(bounds.Min.X+x, bounds.Min.Y+y)]
			}
		}
		return gray
	case *image.NRGBA:
		for y := range height {
			row := src.Pix[src.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
			for x := range width {
				gray.Pix[y*gray.Stride+x] = luma601(row[x*4], row[x*4+1], row[x*4+2])
			}
		}
		return gray
	}

	// Alpha is ignored: transparent pixels keep their stored color.
	for y := range height {
		for x := range width {
			r, g, b := straightRGB(img.At(bounds.Min.X+x, bounds.Min.Y+y))
			gray.Pix[y*gray.Stride+x] = luma601(r, g, b)
		}
	}
	return gray
}

// straightRGB returns 8-bit color channels without alpha premultiplication.
func straightRGB(c color.Color) (r, g, b uint8) {
	switch c := c.(type) {
	case color.NRGBA:
		return c.R, c.G, c.B
	case color.NRGBA64:
		return uint8(c.R >> 8), uint8(c.G >> 8), uint8(c.B >> 8)
	}
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return n.R, n.G, n.B
}

func luma601(r, g, b uint8) uint8 {
	luma := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
	return uint8(math.Min(255, math.Round(luma)))
}

// resizeGray scales a luminance buffer to exactly width x height with
// bilinear interpolation. Aspect ratio is not preserved.
func resizeGray(src *image.Gray, width, height int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
