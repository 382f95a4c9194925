// Package geodetic decodes the fixed-point site coordinates stored in raw frame headers.
//
// Each coordinate is a big-endian unsigned 32-bit word. Bit 31 carries the direction
// (set for north/east, clear for south/west) and the remaining 31 bits hold the
// magnitude in units of 1/600000 of a degree.
package geodetic

import (
	"encoding/binary"
	"fmt"
)

const (
	// Divisor converts the 31-bit magnitude into decimal degrees.
	Divisor = 600000.0

	directionMask uint32 = 0x80000000
	magnitudeMask uint32 = 0x7fffffff

	MaxLatitude  = 90.0
	MaxLongitude = 180.0
)

// RangeError is returned when a decoded coordinate falls outside its valid range
type RangeError struct {
	Field string
	Value float64
	Limit float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("geodetic: %s %.6f outside [-%g, %g]", e.Field, e.Value, e.Limit, e.Limit)
}

// DecodeUint32 converts a raw header word into decimal degrees
func DecodeUint32(raw uint32) float64 {
	degrees := float64(raw&magnitudeMask) / Divisor
	if raw&directionMask == 0 {
		return -degrees
	}
	return degrees
}

// Decode converts a 4-byte big-endian header field into decimal degrees
func Decode(field [4]byte) float64 {
	return DecodeUint32(binary.BigEndian.Uint32(field[:]))
}

// DecodeLatLon decodes both site fields and checks them against the valid
// latitude and longitude ranges.
func DecodeLatLon(lat, lon [4]byte) (latitude, longitude float64, err error) {
	latitude = Decode(lat)
	longitude = Decode(lon)

	if latitude < -MaxLatitude || latitude > MaxLatitude {
		return 0, 0, &RangeError{Field: "latitude", Value: latitude, Limit: MaxLatitude}
	}
	if longitude < -MaxLongitude || longitude > MaxLongitude {
		return 0, 0, &RangeError{Field: "longitude", Value: longitude, Limit: MaxLongitude}
	}

	return latitude, longitude, nil
}
