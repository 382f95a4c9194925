package rcd

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/colibri-telescope/astrocorr/internal/geodetic"
)

var (
	// ErrFormat is returned when a frame cannot be decoded with the configured layout
	ErrFormat = errors.New("rcd: malformed frame")

	// ErrTruncated is returned when a file ends before the pixel payload does
	ErrTruncated = errors.New("rcd: truncated frame")
)

// TruncatedError reports how short a raw file is
type TruncatedError struct {
	Size int64
	Want int64
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("rcd: truncated frame: %d bytes, layout requires %d", e.Size, e.Want)
}

func (e *TruncatedError) Is(target error) bool {
	return target == ErrTruncated
}

// Header holds the fields read from the fixed-layout raw file header
type Header struct {
	ExposureTime float32
	Timestamp    string
	RawLatitude  [4]byte
	RawLongitude [4]byte
	Latitude     float64 // decimal degrees, positive north
	Longitude    float64 // decimal degrees, positive east; 0,0 when the header carries no usable site
}

// Frame is a decoded raw file: header and the high-gain pixel grid
type Frame struct {
	Header Header
	Grid   *Grid
}

// WithLogger sets the logger for the decoder
func WithLogger(logger *slog.Logger) func(d *Decoder) {
	return func(d *Decoder) {
		d.logger = logger.With(slog.String("component", "rcd"))
	}
}

// WithWorkers sets the number of goroutines used to unpack the payload
func WithWorkers(n int) func(d *Decoder) {
	return func(d *Decoder) {
		d.workers = n
	}
}

// Decoder reads raw frames of a fixed sensor layout
type Decoder struct {
	layout  Layout
	workers int
	logger  *slog.Logger
}

// NewDecoder creates a decoder for the given layout with a discard logger
func NewDecoder(layout Layout, options ...func(d *Decoder)) (*Decoder, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	d := Decoder{
		layout:  layout,
		workers: runtime.GOMAXPROCS(0),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&d)
	}

	return &d, nil
}

// Layout returns the sensor layout the decoder was created with
func (d *Decoder) Layout() Layout {
	return d.layout
}

// ReadFile decodes the raw frame stored at path
func (d *Decoder) ReadFile(path string) (frame *Frame, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening raw frame: %w", err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing raw frame: %w", cErr)
		}
	}()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("reading raw frame size: %w", err)
	}

	return d.Decode(f, stat.Size())
}

// Decode reads a raw frame of the given size from r
func (d *Decoder) Decode(r io.ReaderAt, size int64) (*Frame, error) {
	want := d.layout.FileSize()
	if size < want {
		return nil, &TruncatedError{Size: size, Want: want}
	}

	start := time.Now()

	header, err := d.readHeader(r)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, d.layout.PayloadSize())
	if n, err := r.ReadAt(payload, PayloadOffset); err != nil && !(errors.Is(err, io.EOF) && n == len(payload)) {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &TruncatedError{Size: PayloadOffset + int64(n), Want: want}
		}
		return nil, fmt.Errorf("reading pixel payload: %w", err)
	}

	samples, err := unpack12(payload, d.workers)
	if err != nil {
		return nil, err
	}

	grid, err := HighGainRows(samples, d.layout.Width, d.layout.Height)
	if err != nil {
		return nil, err
	}

	d.logger.Debug("decoded raw frame",
		slog.String("payload", humanize.Bytes(uint64(len(payload)))),
		slog.Int("width", grid.Width),
		slog.Int("height", grid.Height),
		slog.Int("workers", d.workers),
		slog.Duration("elapsed", time.Since(start)))

	return &Frame{Header: *header, Grid: grid}, nil
}

func (d *Decoder) readHeader(r io.ReaderAt) (*Header, error) {
	buf := make([]byte, PayloadOffset)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	var h Header
	h.ExposureTime = math.Float32frombits(binary.LittleEndian.Uint32(buf[ExposureOffset : ExposureOffset+4]))
	h.Timestamp = string(bytes.TrimRight(buf[TimestampOffset:TimestampOffset+TimestampLength], "\x00 "))
	copy(h.RawLatitude[:], buf[LatitudeOffset:LatitudeOffset+4])
	copy(h.RawLongitude[:], buf[LongitudeOffset:LongitudeOffset+4])

	// the site is informational; a bad one leaves the frame usable without it
	lat, lon, err := geodetic.DecodeLatLon(h.RawLatitude, h.RawLongitude)
	if err != nil {
		d.logger.Warn("ignoring header site", slog.String("error", err.Error()))
	} else {
		h.Latitude, h.Longitude = lat, lon
	}

	return &h, nil
}
