// Package offset computes the pointing correction between a solved frame and a target.
package offset

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	sexa "github.com/soniakeys/sexagesimal"
	"github.com/soniakeys/unit"
)

// FailSafe is printed instead of an offset when none could be computed, so a
// caller that ignores the exit status applies no correction.
const FailSafe = "0.0 0.0"

// ErrNoTransform is returned when there is no solved transform to compute from
var ErrNoTransform = errors.New("offset: no transform available")

// Transformer maps zero-based pixel coordinates to RA/Dec in decimal degrees
type Transformer interface {
	PixelToSky(x, y float64) (ra, dec float64)
}

// Coordinates is an equatorial position in decimal degrees
type Coordinates struct {
	RA  float64
	Dec float64
}

// String formats the position as sexagesimal RA and Dec
func (c Coordinates) String() string {
	return fmt.Sprintf("%.1d %+.0d",
		sexa.FmtRA(unit.RAFromDeg(c.RA)),
		sexa.FmtAngle(unit.AngleFromDeg(c.Dec)))
}

// Offset is target minus reference in decimal degrees
type Offset struct {
	RA  float64
	Dec float64
}

// String formats the offset as "<ΔRA> <ΔDec>"
func (o Offset) String() string {
	return FormatFloat(o.RA) + " " + FormatFloat(o.Dec)
}

// Centre returns the sky position of the geometric centre pixel (width/2, height/2)
func Centre(t Transformer, width, height int) (Coordinates, error) {
	if t == nil {
		return Coordinates{}, ErrNoTransform
	}

	ra, dec := t.PixelToSky(float64(width)/2, float64(height)/2)
	return Coordinates{RA: ra, Dec: dec}, nil
}

// Between returns target minus centre. RA is not wrapped at 0/360.
func Between(centre, target Coordinates) Offset {
	return Offset{
		RA:  target.RA - centre.RA,
		Dec: target.Dec - centre.Dec,
	}
}

// Compute returns the offset from the frame centre to target
func Compute(t Transformer, width, height int, target Coordinates) (Offset, Coordinates, error) {
	centre, err := Centre(t, width, height)
	if err != nil {
		return Offset{}, Coordinates{}, err
	}

	return Between(centre, target), centre, nil
}

// FormatFloat prints v the way the observatory scripts expect: shortest
// round-trip digits, whole numbers with a trailing ".0", and exponent notation
// only for very small or very large magnitudes.
func FormatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}

	if v != 0 {
		sci := strconv.FormatFloat(v, 'e', -1, 64)
		exp, _ := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
		if exp < -4 || exp >= 16 {
			return sci
		}
	}

	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
