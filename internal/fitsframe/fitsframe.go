// Package fitsframe stores decoded frames in FITS containers for the plate solver
// and reads them back when a FITS file is given as input.
package fitsframe

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/astrogo/fitsio"

	"github.com/colibri-telescope/astrocorr/internal/geodetic"
	"github.com/colibri-telescope/astrocorr/internal/rcd"
)

// Header keywords written for every frame
const (
	KeyExposure  = "EXPTIME"
	KeyDateObs   = "DATE-OBS"
	KeyLatitude  = "SITELAT"
	KeyLongitude = "SITELONG"
)

var ErrNoImage = errors.New("fitsframe: primary HDU holds no 2D image")

// Write stores the frame at path, truncating any existing file
func Write(path string, frame *rcd.Frame) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating FITS container: %w", err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing FITS container: %w", cErr)
		}
	}()

	return Encode(f, frame)
}

// Encode writes the frame as a single 16-bit primary image. The site fields are
// decoded from the raw header words and left out when they are out of range.
func Encode(w io.Writer, frame *rcd.Frame) error {
	cards := []fitsio.Card{
		{Name: KeyExposure, Value: float64(frame.Header.ExposureTime), Comment: "exposure time [s]"},
		{Name: KeyDateObs, Value: frame.Header.Timestamp, Comment: "start of exposure"},
	}
	if lat, lon, err := geodetic.DecodeLatLon(frame.Header.RawLatitude, frame.Header.RawLongitude); err == nil {
		cards = append(cards,
			fitsio.Card{Name: KeyLatitude, Value: lat, Comment: "site latitude [deg]"},
			fitsio.Card{Name: KeyLongitude, Value: lon, Comment: "site longitude [deg]"},
		)
	}

	fits, err := fitsio.Create(w)
	if err != nil {
		return fmt.Errorf("creating FITS stream: %w", err)
	}

	grid := frame.Grid
	img := fitsio.NewImage(16, []int{grid.Width, grid.Height})
	defer img.Close()

	if err = img.Header().Append(cards...); err != nil {
		return fmt.Errorf("appending header cards: %w", err)
	}

	// 12-bit samples fit BITPIX 16 without a BZERO shift
	data := make([]int16, len(grid.Pix))
	for i, v := range grid.Pix {
		data[i] = int16(v)
	}
	if err := img.Write(data); err != nil {
		return fmt.Errorf("writing image data: %w", err)
	}
	if err := fits.Write(img); err != nil {
		return fmt.Errorf("writing primary HDU: %w", err)
	}

	return fits.Close()
}

// Read loads a frame from a FITS container. Header fields missing from the file
// are left at their zero values.
func Read(path string) (frame *rcd.Frame, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening FITS container: %w", err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing FITS container: %w", cErr)
		}
	}()

	return Decode(f)
}

// Decode reads the primary image and frame header cards from r
func Decode(r io.Reader) (*rcd.Frame, error) {
	fits, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("opening FITS stream: %w", err)
	}
	defer fits.Close()

	img, ok := fits.HDU(0).(fitsio.Image)
	if !ok {
		return nil, ErrNoImage
	}

	hdr := img.Header()
	axes := hdr.Axes()
	if len(axes) != 2 || axes[0] <= 0 || axes[1] <= 0 {
		return nil, fmt.Errorf("%w: axes %v", ErrNoImage, axes)
	}

	grid := rcd.NewGrid(axes[0], axes[1])
	if err := readPixels(img, grid.Pix); err != nil {
		return nil, err
	}

	var h rcd.Header
	if v, ok := Float(hdr, KeyExposure); ok {
		h.ExposureTime = float32(v)
	}
	if c := hdr.Get(KeyDateObs); c != nil {
		h.Timestamp, _ = c.Value.(string)
	}
	h.Latitude, _ = Float(hdr, KeyLatitude)
	h.Longitude, _ = Float(hdr, KeyLongitude)

	return &rcd.Frame{Header: h, Grid: grid}, nil
}

func readPixels(img fitsio.Image, dst []uint16) error {
	hdr := img.Header()

	bzero, ok := Float(hdr, "BZERO")
	if !ok {
		bzero = 0
	}
	bscale, ok := Float(hdr, "BSCALE")
	if !ok {
		bscale = 1
	}

	store := func(i int, raw float64) {
		v := bzero + bscale*raw
		switch {
		case math.IsNaN(v) || v < 0:
			dst[i] = 0
		case v > math.MaxUint16:
			dst[i] = math.MaxUint16
		default:
			dst[i] = uint16(math.Round(v))
		}
	}

	n := len(dst)
	switch bitpix := hdr.Bitpix(); bitpix {
	case 8:
		return readAs[uint8](img, n, store)
	case 16:
		return readAs[int16](img, n, store)
	case 32:
		return readAs[int32](img, n, store)
	case -32:
		return readAs[float32](img, n, store)
	case -64:
		return readAs[float64](img, n, store)
	default:
		return fmt.Errorf("fitsframe: unsupported BITPIX %d", bitpix)
	}
}

func readAs[T uint8 | int16 | int32 | float32 | float64](img fitsio.Image, n int, store func(i int, raw float64)) error {
	data := make([]T, n)
	if err := img.Read(&data); err != nil {
		return fmt.Errorf("reading image data: %w", err)
	}
	if len(data) < n {
		return fmt.Errorf("%w: %d samples for %d pixels", ErrNoImage, len(data), n)
	}

	for i := 0; i < n; i++ {
		store(i, float64(data[i]))
	}

	return nil
}

// Float returns a numeric header value regardless of whether the card was
// written as an integer or a real.
func Float(hdr *fitsio.Header, key string) (float64, bool) {
	c := hdr.Get(key)
	if c == nil {
		return 0, false
	}

	switch v := c.Value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	default:
		return 0, false
	}
}
