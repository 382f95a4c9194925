package rcd

import (
	"errors"
	"fmt"
)

// Fixed byte offsets of the raw frame header fields
const (
	ExposureOffset  = 85
	TimestampOffset = 152
	TimestampLength = 29
	LatitudeOffset  = 182
	LongitudeOffset = 186
	PayloadOffset   = 384

	// SupportedBitDepth is the only packed sample depth the sensor produces
	SupportedBitDepth = 12

	// readoutGains is the number of interleaved rows per image row (low and high gain)
	readoutGains = 2
)

// Layout describes the sensor geometry of a raw frame
type Layout struct {
	Width    int `yaml:"width" json:"width"`
	Height   int `yaml:"height" json:"height"`
	BitDepth int `yaml:"bitDepth" json:"bitDepth"`
}

// DefaultLayout is the 2048x2048 12-bit dual-gain readout
func DefaultLayout() Layout {
	return Layout{
		Width:    2048,
		Height:   2048,
		BitDepth: SupportedBitDepth,
	}
}

func (l Layout) Validate() error {
	if l.Width <= 0 || l.Height <= 0 {
		return fmt.Errorf("rcd.Layout: width and height must be positive: %dx%d given", l.Width, l.Height)
	}
	if l.BitDepth != SupportedBitDepth {
		return fmt.Errorf("rcd.Layout: unsupported bit depth %d, only %d-bit frames are supported", l.BitDepth, SupportedBitDepth)
	}
	if l.PayloadSize()%3 != 0 {
		return errors.New("rcd.Layout: payload size is not a whole number of packed sample pairs")
	}

	return nil
}

// PayloadSize is the packed pixel payload length in bytes, covering both gain readouts
func (l Layout) PayloadSize() int {
	return l.Width * l.Height * readoutGains * l.BitDepth / 8
}

// FileSize is the minimum size of a raw file with this layout
func (l Layout) FileSize() int64 {
	return int64(PayloadOffset + l.PayloadSize())
}
