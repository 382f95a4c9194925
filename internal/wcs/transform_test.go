package wcs_test

import (
	"errors"
	"math"
	"testing"

	"github.com/astrogo/fitsio"

	"github.com/colibri-telescope/astrocorr/internal/wcs"
	"github.com/colibri-telescope/astrocorr/internal/wcs/wcstest"
)

func transformFor(t *testing.T, cards []fitsio.Card) *wcs.Transform {
	t.Helper()

	d, err := wcs.ParseDescriptor(wcstest.Encode(t, cards))
	if err != nil {
		t.Fatalf("ParseDescriptor failed: %v", err)
	}
	tr, err := wcs.NewTransform(d)
	if err != nil {
		t.Fatalf("NewTransform failed: %v", err)
	}
	return tr
}

func withoutPrefix(cards []fitsio.Card, prefixes ...string) []fitsio.Card {
	var out []fitsio.Card
next:
	for _, c := range cards {
		for _, p := range prefixes {
			if len(c.Name) >= len(p) && c.Name[:len(p)] == p {
				continue next
			}
		}
		out = append(out, c)
	}
	return out
}

func TestParseDescriptor(t *testing.T) {
	data := wcstest.Solution(t)

	d, err := wcs.ParseDescriptor(data)
	if err != nil {
		t.Fatalf("ParseDescriptor failed: %v", err)
	}
	if len(d.Raw) != len(data) {
		t.Errorf("Expected raw bytes to be kept")
	}
	if v, _ := d.String("CTYPE1"); v != "RA---TAN-SIP" {
		t.Errorf("Unexpected CTYPE1 %q", v)
	}
	if v, ok := d.Float("CRVAL1"); !ok || math.Abs(v-wcstest.RA) > 1e-12 {
		t.Errorf("Unexpected CRVAL1 %v", v)
	}
	if v, ok := d.Int("A_ORDER"); !ok || v != 2 {
		t.Errorf("Unexpected A_ORDER %v", v)
	}

	if _, err := wcs.ParseDescriptor([]byte("not a fits file")); !errors.Is(err, wcs.ErrDescriptor) {
		t.Errorf("Expected ErrDescriptor, got %v", err)
	}
}

func TestTransform_ReferencePixel(t *testing.T) {
	tr := wcstest.Transform(t)

	// CRPIX is 1-based
	ra, dec := tr.PixelToSky(1023.5, 1023.5)
	if math.Abs(ra-wcstest.RA) > 1e-9 || math.Abs(dec-wcstest.Dec) > 1e-9 {
		t.Errorf("Expected reference pixel at (%v, %v), got (%v, %v)", wcstest.RA, wcstest.Dec, ra, dec)
	}
}

func TestTransform_RoundTrip(t *testing.T) {
	transforms := map[string]*wcs.Transform{
		"sip":      wcstest.Transform(t),
		"tan":      transformFor(t, append(withoutPrefix(wcstest.Cards(), "A_", "B_", "CTYPE"), fitsio.Card{Name: "CTYPE1", Value: "RA---TAN"}, fitsio.Card{Name: "CTYPE2", Value: "DEC--TAN"})),
		"near-ra0": transformFor(t, append(withoutPrefix(wcstest.Cards(), "CRVAL"), fitsio.Card{Name: "CRVAL1", Value: 0.05}, fitsio.Card{Name: "CRVAL2", Value: 41.2})),
	}

	points := [][2]float64{
		{0, 0}, {2047, 0}, {0, 2047}, {2047, 2047},
		{1024, 1024}, {1023.5, 1023.5}, {17.25, 1900.75}, {1500.1, 3.9},
	}

	for name, tr := range transforms {
		for _, p := range points {
			ra, dec := tr.PixelToSky(p[0], p[1])
			if ra < 0 || ra >= 360 {
				t.Errorf("%s: RA %v not normalised", name, ra)
			}

			x, y, err := tr.SkyToPixel(ra, dec)
			if err != nil {
				t.Fatalf("%s: SkyToPixel(%v, %v) failed: %v", name, ra, dec, err)
			}
			if math.Abs(x-p[0]) > 1e-6 || math.Abs(y-p[1]) > 1e-6 {
				t.Errorf("%s: round trip of %v gave (%.9f, %.9f)", name, p, x, y)
			}
		}
	}
}

func TestTransform_Scale(t *testing.T) {
	tr := transformFor(t, append(withoutPrefix(wcstest.Cards(), "A_", "B_", "CTYPE"), fitsio.Card{Name: "CTYPE1", Value: "RA---TAN"}, fitsio.Card{Name: "CTYPE2", Value: "DEC--TAN"}))

	_, dec0 := tr.PixelToSky(1023.5, 1023.5)
	_, dec1 := tr.PixelToSky(1023.5, 1024.5)

	// one pixel up moves Dec by CD2_2
	if d := dec1 - dec0; math.Abs(d-6.6512e-4) > 1e-8 {
		t.Errorf("Expected Dec step of 6.6512e-4, got %v", d)
	}
}

func TestTransform_NotProjectable(t *testing.T) {
	tr := wcstest.Transform(t)

	if _, _, err := tr.SkyToPixel(wcstest.RA+180, -wcstest.Dec); !errors.Is(err, wcs.ErrNotProjectable) {
		t.Errorf("Expected ErrNotProjectable, got %v", err)
	}
}

func TestNewTransform_CDELTFallback(t *testing.T) {
	cards := append(withoutPrefix(wcstest.Cards(), "CD", "A_", "B_", "CTYPE"),
		fitsio.Card{Name: "CTYPE1", Value: "RA---TAN"},
		fitsio.Card{Name: "CTYPE2", Value: "DEC--TAN"},
		fitsio.Card{Name: "CDELT1", Value: -6.6675e-4},
		fitsio.Card{Name: "CDELT2", Value: 6.6675e-4},
		fitsio.Card{Name: "CROTA2", Value: 4.0},
	)
	tr := transformFor(t, cards)

	ra, dec := tr.PixelToSky(100, 200)
	x, y, err := tr.SkyToPixel(ra, dec)
	if err != nil {
		t.Fatalf("SkyToPixel failed: %v", err)
	}
	if math.Abs(x-100) > 1e-6 || math.Abs(y-200) > 1e-6 {
		t.Errorf("Round trip gave (%v, %v)", x, y)
	}
}

func TestNewTransform_Rejects(t *testing.T) {
	cases := map[string][]fitsio.Card{
		"projection": append(withoutPrefix(wcstest.Cards(), "CTYPE"), fitsio.Card{Name: "CTYPE1", Value: "RA---SIN"}, fitsio.Card{Name: "CTYPE2", Value: "DEC--SIN"}),
		"crval":      withoutPrefix(wcstest.Cards(), "CRVAL"),
		"crpix":      withoutPrefix(wcstest.Cards(), "CRPIX"),
		"linear":     withoutPrefix(wcstest.Cards(), "CD"),
		"sip":        withoutPrefix(wcstest.Cards(), "B_"),
	}

	for name, cards := range cases {
		d, err := wcs.ParseDescriptor(wcstest.Encode(t, cards))
		if err != nil {
			t.Fatalf("%s: ParseDescriptor failed: %v", name, err)
		}
		if _, err := wcs.NewTransform(d); !errors.Is(err, wcs.ErrDescriptor) {
			t.Errorf("%s: expected ErrDescriptor, got %v", name, err)
		}
	}
}
