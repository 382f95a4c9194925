package app

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

const (
	GrayscaleTheme ColorTheme = "grayscale"
	ThermalTheme   ColorTheme = "thermal"
)

type ColorTheme string

var validThemes = map[ColorTheme]struct{}{
	GrayscaleTheme: {},
	ThermalTheme:   {},
}

var (
	centreColor = colorful.Hsv(0, 0.85, 1)
	targetColor = colorful.Hsv(190, 0.85, 1)
)

// Black -> Red -> Yellow -> White
var thermalStops = []struct {
	pos float64
	col colorful.Color
}{
	{0, colorful.Color{}},
	{0.4, colorful.Color{R: 0.85}},
	{0.75, colorful.Color{R: 1, G: 0.9}},
	{1, colorful.Color{R: 1, G: 1, B: 1}},
}

// Palette maps normalised intensity [0-1] to a colour
type Palette [256]color.RGBA

func NewPalette(theme ColorTheme) *Palette {
	var p Palette
	for i := range p {
		v := float64(i) / float64(len(p)-1)

		switch theme {
		case ThermalTheme:
			p[i] = rgba(thermal(v))
		default:
			g := uint8(math.Round(math.Pow(v, 0.7) * 255))
			p[i] = color.RGBA{R: g, G: g, B: g, A: 0xff}
		}
	}
	return &p
}

func (p *Palette) Color(v float64) color.RGBA {
	v = math.Max(0, math.Min(1, v))
	return p[int(math.Round(v*float64(len(p)-1)))]
}

func thermal(v float64) colorful.Color {
	for i := 1; i < len(thermalStops); i++ {
		a, b := thermalStops[i-1], thermalStops[i]
		if v <= b.pos {
			return a.col.BlendLab(b.col, (v-a.pos)/(b.pos-a.pos)).Clamped()
		}
	}
	return thermalStops[len(thermalStops)-1].col
}

func rgba(c colorful.Color) color.RGBA {
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}
