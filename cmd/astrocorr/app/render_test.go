package app

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"testing"

	_ "golang.org/x/image/tiff"

	"github.com/colibri-telescope/astrocorr/internal/rcd"
)

func TestStretchBounds(t *testing.T) {
	pix := make([]uint16, 1000)
	for i := range pix {
		pix[i] = uint16(i)
	}

	lo, hi := stretchBounds(pix, 1, 99)
	if lo != 9 || hi != 990 {
		t.Errorf("Expected bounds 9-990, got %d-%d", lo, hi)
	}

	lo, hi = stretchBounds(pix, 0, 100)
	if lo != 0 || hi != 999 {
		t.Errorf("Expected full range, got %d-%d", lo, hi)
	}

	if lo, hi = stretchBounds(nil, 1, 99); lo != 0 || hi != 0 {
		t.Errorf("Expected zero bounds for empty input, got %d-%d", lo, hi)
	}
}

func TestPalette(t *testing.T) {
	for theme := range validThemes {
		p := NewPalette(theme)

		black, white := p.Color(0), p.Color(1)
		if black.R != 0 || black.G != 0 || black.B != 0 {
			t.Errorf("%s: expected black at 0, got %v", theme, black)
		}
		if white.R != 255 || white.G != 255 || white.B != 255 {
			t.Errorf("%s: expected white at 1, got %v", theme, white)
		}
		if p.Color(-3) != black || p.Color(7) != white {
			t.Errorf("%s: expected out of range values to clamp", theme)
		}
	}
}

func TestRender(t *testing.T) {
	grid := rcd.NewGrid(120, 80)
	for i := range grid.Pix {
		grid.Pix[i] = uint16(i % 4096)
	}

	overlay := Overlay{
		Centre: Marker{X: 60, Y: 40, Label: "centre"},
		Target: &Marker{X: 100, Y: 10, Label: "target"},
		Info:   []string{"RA offset: 0.5  Dec offset: -0.5", "Centre: 5h35m 5°"},
	}

	img, err := Render(grid, overlay, RenderConfig{Theme: ThermalTheme, LowPercentile: 1, HighPercentile: 99})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	size := img.Bounds().Size()
	if size.X != 120 || size.Y <= 80 {
		t.Fatalf("Expected frame plus info bar, got %v", size)
	}
	if c := img.RGBAAt(60, 40); c != rgba(centreColor) {
		t.Errorf("Expected centre marker colour at the centre, got %v", c)
	}
	if c := img.RGBAAt(100, 10); c != rgba(targetColor) {
		t.Errorf("Expected target marker colour at the target, got %v", c)
	}

	dir := t.TempDir()
	for format := range validImageFormats {
		path := filepath.Join(dir, "diag."+string(format))
		if err := WriteImage(path, img, format); err != nil {
			t.Fatalf("WriteImage %s failed: %v", format, err)
		}

		f, err := os.Open(path)
		if err != nil {
			t.Fatalf("Opening %s failed: %v", path, err)
		}
		_, decoded, err := image.DecodeConfig(f)
		f.Close()
		if err != nil || decoded != string(format) {
			t.Errorf("Expected %s image, got %q (%v)", format, decoded, err)
		}
	}
}
