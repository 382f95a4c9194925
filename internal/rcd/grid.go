package rcd

import (
	"image"
	"image/color"
)

// Grid is a row-major image of 16-bit samples
type Grid struct {
	Width  int
	Height int
	Pix    []uint16
}

func NewGrid(width, height int) *Grid {
	return &Grid{
		Width:  width,
		Height: height,
		Pix:    make([]uint16, width*height),
	}
}

// At returns the sample at zero-based column x and row y
func (g *Grid) At(x, y int) uint16 {
	return g.Pix[y*g.Width+x]
}

// Gray16 converts the grid into a standard library image
func (g *Grid) Gray16() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, g.Width, g.Height))
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			img.SetGray16(x, y, color.Gray16{Y: g.Pix[y*g.Width+x]})
		}
	}
	return img
}
