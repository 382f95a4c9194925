// Package wcstest provides solver WCS files for tests.
package wcstest

import (
	"testing"

	"github.com/astrogo/fitsio"

	"github.com/colibri-telescope/astrocorr/internal/wcs"
)

// Centre of the solved field returned by Cards
const (
	RA  = 83.822
	Dec = -5.391
)

// Cards returns the header of a TAN-SIP solution for a 2048x2048 frame at
// roughly 2.4 arcsec per pixel, rotated by a few degrees.
func Cards() []fitsio.Card {
	return []fitsio.Card{
		{Name: "WCSAXES", Value: 2},
		{Name: "CTYPE1", Value: "RA---TAN-SIP"},
		{Name: "CTYPE2", Value: "DEC--TAN-SIP"},
		{Name: "EQUINOX", Value: 2000.0},
		{Name: "CRVAL1", Value: RA},
		{Name: "CRVAL2", Value: Dec},
		{Name: "CRPIX1", Value: 1024.5},
		{Name: "CRPIX2", Value: 1024.5},
		{Name: "CUNIT1", Value: "deg"},
		{Name: "CUNIT2", Value: "deg"},
		{Name: "CD1_1", Value: -6.6512e-4},
		{Name: "CD1_2", Value: 4.6530e-5},
		{Name: "CD2_1", Value: 4.6530e-5},
		{Name: "CD2_2", Value: 6.6512e-4},
		{Name: "IMAGEW", Value: 2048},
		{Name: "IMAGEH", Value: 2048},
		{Name: "A_ORDER", Value: 2},
		{Name: "A_0_2", Value: 2.1e-7},
		{Name: "A_1_1", Value: -3.4e-7},
		{Name: "A_2_0", Value: 1.2e-7},
		{Name: "B_ORDER", Value: 2},
		{Name: "B_0_2", Value: -1.7e-7},
		{Name: "B_1_1", Value: 2.6e-7},
		{Name: "B_2_0", Value: 4.0e-8},
	}
}

// Encode encodes cards as a solver WCS file
func Encode(tb testing.TB, cards []fitsio.Card) []byte {
	tb.Helper()

	data, err := wcs.Encode(cards)
	if err != nil {
		tb.Fatalf("Encoding WCS header failed: %v", err)
	}
	return data
}

// Solution returns the encoded default solution
func Solution(tb testing.TB) []byte {
	tb.Helper()
	return Encode(tb, Cards())
}

// Transform returns the default solution as a transform
func Transform(tb testing.TB) *wcs.Transform {
	tb.Helper()

	d, err := wcs.ParseDescriptor(Solution(tb))
	if err != nil {
		tb.Fatalf("Parsing WCS header failed: %v", err)
	}
	t, err := wcs.NewTransform(d)
	if err != nil {
		tb.Fatalf("Building transform failed: %v", err)
	}
	return t
}
