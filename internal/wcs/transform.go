// Package wcs maps between zero-based image pixels and equatorial sky
// coordinates using the gnomonic (TAN) projection with optional SIP distortion.
package wcs

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/soniakeys/unit"
)

var (
	// ErrNotProjectable is returned for sky positions on the far hemisphere of the tangent point
	ErrNotProjectable = errors.New("wcs: position not projectable onto the tangent plane")

	ErrNotConverged = errors.New("wcs: inverse distortion did not converge")
)

const (
	inverseTolerance = 1e-10 // pixels
	inverseMaxIter   = 50
)

// Transform is a solved TAN(-SIP) mapping. It is immutable and safe for concurrent use.
type Transform struct {
	crpix [2]float64 // FITS 1-based reference pixel
	ra0   unit.Angle
	dec0  unit.Angle

	cd    [2][2]float64
	cdInv [2][2]float64

	a, b   *polynomial
	ap, bp *polynomial
}

// NewTransform builds a transform from a solved descriptor
func NewTransform(d *Descriptor) (*Transform, error) {
	ctype1, _ := d.String("CTYPE1")
	ctype2, _ := d.String("CTYPE2")
	ctype1, ctype2 = strings.TrimSpace(ctype1), strings.TrimSpace(ctype2)
	if !strings.HasPrefix(ctype1, "RA---TAN") || !strings.HasPrefix(ctype2, "DEC--TAN") {
		return nil, fmt.Errorf("%w: unsupported projection %q/%q", ErrDescriptor, ctype1, ctype2)
	}

	var t Transform
	for i, key := range []string{"CRPIX1", "CRPIX2"} {
		v, ok := d.Float(key)
		if !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrDescriptor, key)
		}
		t.crpix[i] = v
	}

	crval1, ok1 := d.Float("CRVAL1")
	crval2, ok2 := d.Float("CRVAL2")
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("%w: missing CRVAL1/CRVAL2", ErrDescriptor)
	}
	t.ra0, t.dec0 = unit.AngleFromDeg(crval1), unit.AngleFromDeg(crval2)

	cd, err := linearPart(d)
	if err != nil {
		return nil, err
	}
	det := cd[0][0]*cd[1][1] - cd[0][1]*cd[1][0]
	if det == 0 || math.IsNaN(det) {
		return nil, fmt.Errorf("%w: singular CD matrix", ErrDescriptor)
	}
	t.cd = cd
	t.cdInv = [2][2]float64{
		{cd[1][1] / det, -cd[0][1] / det},
		{-cd[1][0] / det, cd[0][0] / det},
	}

	if strings.HasSuffix(ctype1, "-SIP") {
		t.a = parsePolynomial(d, "A")
		t.b = parsePolynomial(d, "B")
		t.ap = parsePolynomial(d, "AP")
		t.bp = parsePolynomial(d, "BP")

		if t.a == nil || t.b == nil {
			return nil, fmt.Errorf("%w: SIP projection without both A and B terms", ErrDescriptor)
		}
	}

	return &t, nil
}

// linearPart returns the CD matrix, deriving it from CDELT with PC or CROTA2
// when the descriptor carries no CDi_j cards.
func linearPart(d *Descriptor) ([2][2]float64, error) {
	var cd [2][2]float64

	if _, ok := d.Float("CD1_1"); ok {
		for i := 0; i < 2; i++ {
			for j := 0; j < 2; j++ {
				cd[i][j], _ = d.Float(fmt.Sprintf("CD%d_%d", i+1, j+1))
			}
		}
		return cd, nil
	}

	cdelt1, ok1 := d.Float("CDELT1")
	cdelt2, ok2 := d.Float("CDELT2")
	if !ok1 || !ok2 {
		return cd, fmt.Errorf("%w: neither CD nor CDELT present", ErrDescriptor)
	}

	if _, ok := d.Float("PC1_1"); ok {
		pc := [2][2]float64{{1, 0}, {0, 1}}
		for i := 0; i < 2; i++ {
			for j := 0; j < 2; j++ {
				if v, ok := d.Float(fmt.Sprintf("PC%d_%d", i+1, j+1)); ok {
					pc[i][j] = v
				}
			}
		}
		cd[0][0], cd[0][1] = cdelt1*pc[0][0], cdelt1*pc[0][1]
		cd[1][0], cd[1][1] = cdelt2*pc[1][0], cdelt2*pc[1][1]
		return cd, nil
	}

	crota, _ := d.Float("CROTA2")
	s, c := unit.AngleFromDeg(crota).Sincos()
	cd[0][0], cd[0][1] = cdelt1*c, -cdelt2*s
	cd[1][0], cd[1][1] = cdelt1*s, cdelt2*c
	return cd, nil
}

// PixelToSky converts zero-based pixel coordinates into RA and Dec in decimal degrees
func (t *Transform) PixelToSky(x, y float64) (ra, dec float64) {
	u := x + 1 - t.crpix[0]
	v := y + 1 - t.crpix[1]
	if t.a != nil {
		u, v = u+t.a.eval(u, v), v+t.b.eval(u, v)
	}

	xi := unit.AngleFromDeg(t.cd[0][0]*u + t.cd[0][1]*v).Rad()
	eta := unit.AngleFromDeg(t.cd[1][0]*u + t.cd[1][1]*v).Rad()

	sd0, cd0 := t.dec0.Sincos()
	den := cd0 - eta*sd0

	alpha := unit.RAFromRad(t.ra0.Rad() + math.Atan2(xi, den))
	delta := unit.Angle(math.Atan2(sd0+eta*cd0, math.Hypot(xi, den)))

	return alpha.Deg(), delta.Deg()
}

// SkyToPixel converts RA and Dec in decimal degrees into zero-based pixel coordinates
func (t *Transform) SkyToPixel(ra, dec float64) (x, y float64, err error) {
	dra := unit.AngleFromDeg(ra) - t.ra0
	sd, cd := unit.AngleFromDeg(dec).Sincos()
	sd0, cd0 := t.dec0.Sincos()
	sra, cra := dra.Sincos()

	cosc := sd0*sd + cd0*cd*cra
	if cosc <= 0 {
		return 0, 0, ErrNotProjectable
	}

	xi := unit.Angle(cd * sra / cosc).Deg()
	eta := unit.Angle((cd0*sd - sd0*cd*cra) / cosc).Deg()

	// intermediate pixel offsets including distortion
	U := t.cdInv[0][0]*xi + t.cdInv[0][1]*eta
	V := t.cdInv[1][0]*xi + t.cdInv[1][1]*eta

	u, v := U, V
	if t.a != nil {
		if u, v, err = t.undistort(U, V); err != nil {
			return 0, 0, err
		}
	}

	return u + t.crpix[0] - 1, v + t.crpix[1] - 1, nil
}

// undistort solves u + A(u,v) = U, v + B(u,v) = V with Newton's method,
// seeded from the inverse polynomials when present.
func (t *Transform) undistort(U, V float64) (u, v float64, err error) {
	u, v = U, V
	if t.ap != nil && t.bp != nil {
		u, v = U+t.ap.eval(U, V), V+t.bp.eval(U, V)
	}

	for i := 0; i < inverseMaxIter; i++ {
		fu := u + t.a.eval(u, v) - U
		fv := v + t.b.eval(u, v) - V

		au, av := t.a.grad(u, v)
		bu, bv := t.b.grad(u, v)
		j11, j12, j21, j22 := 1+au, av, bu, 1+bv

		det := j11*j22 - j12*j21
		if det == 0 {
			break
		}
		du := (j22*fu - j12*fv) / det
		dv := (j11*fv - j21*fu) / det
		u, v = u-du, v-dv

		if math.Abs(du) < inverseTolerance && math.Abs(dv) < inverseTolerance {
			return u, v, nil
		}
	}

	return 0, 0, ErrNotConverged
}
