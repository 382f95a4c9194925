package site

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/sidereal"
	"github.com/soniakeys/unit"
)

var ErrTimestamp = errors.New("site: unparseable exposure timestamp")

// timestamp layouts written by the camera and by FITS producers
var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp reads an exposure timestamp. Values without a zone are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
	s = strings.TrimSuffix(s, "Z")
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrTimestamp, s)
}

// Horizontal is a position on the local sky. Azimuth is measured from north
// through east.
type Horizontal struct {
	Altitude unit.Angle
	Azimuth  unit.Angle
}

// AboveHorizon reports whether the position has positive altitude
func (h Horizontal) AboveHorizon() bool {
	return h.Altitude > 0
}

// LocalSiderealTime is the apparent sidereal time at longitude lon (degrees east)
func LocalSiderealTime(t time.Time, lon float64) unit.Time {
	gst := sidereal.Apparent(julian.TimeToJD(t.UTC()))
	return (gst + unit.TimeFromHour(lon/15)).Mod1()
}

// TargetPosition places equatorial coordinates ra, dec (degrees) on the horizon
// of s at time t.
func TargetPosition(s *Site, ra, dec float64, t time.Time) Horizontal {
	phi := unit.AngleFromDeg(s.Latitude)
	delta := unit.AngleFromDeg(dec)

	ha := LocalSiderealTime(t, s.Longitude).Rad() - unit.AngleFromDeg(ra).Rad()

	sinPhi, cosPhi := phi.Sincos()
	sinDelta, cosDelta := delta.Sincos()
	sinH, cosH := math.Sincos(ha)

	alt := math.Asin(math.Max(-1, math.Min(1, sinPhi*sinDelta+cosPhi*cosDelta*cosH)))
	az := math.Atan2(-cosDelta*sinH, sinDelta*cosPhi-cosDelta*cosH*sinPhi)
	if az < 0 {
		az += 2 * math.Pi
	}

	return Horizontal{Altitude: unit.Angle(alt), Azimuth: unit.Angle(az)}
}
