package wcs

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/astrogo/fitsio"
)

var ErrDescriptor = errors.New("wcs: invalid descriptor")

// Descriptor is the FITS header produced by a plate solve. Raw keeps the file
// exactly as the solver wrote it so it can be cached byte for byte.
type Descriptor struct {
	Raw      []byte
	Keywords map[string]any
}

// ParseDescriptor reads the primary header of a solver WCS file
func ParseDescriptor(data []byte) (*Descriptor, error) {
	f, err := fitsio.Open(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDescriptor, err)
	}
	defer f.Close()

	if len(f.HDUs()) == 0 {
		return nil, fmt.Errorf("%w: no header", ErrDescriptor)
	}

	hdr := f.HDU(0).Header()
	d := Descriptor{
		Raw:      data,
		Keywords: make(map[string]any, len(hdr.Keys())),
	}
	for _, key := range hdr.Keys() {
		switch key {
		case "", "COMMENT", "HISTORY", "END":
			continue
		}
		if c := hdr.Get(key); c != nil && c.Value != nil {
			d.Keywords[key] = c.Value
		}
	}

	return &d, nil
}

// Encode writes cards as a header-only FITS file, the shape of a solver WCS file
func Encode(cards []fitsio.Card) ([]byte, error) {
	var buf bytes.Buffer

	f, err := fitsio.Create(&buf)
	if err != nil {
		return nil, err
	}

	hdu := fitsio.NewImage(8, []int{})
	defer hdu.Close()

	if err := hdu.Header().Append(cards...); err != nil {
		return nil, fmt.Errorf("appending WCS cards: %w", err)
	}
	if err := f.Write(hdu); err != nil {
		return nil, fmt.Errorf("writing WCS header: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Float returns a numeric keyword. Integer-valued cards are converted.
func (d *Descriptor) Float(key string) (float64, bool) {
	switch v := d.Keywords[key].(type) {
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

// String returns a string keyword
func (d *Descriptor) String(key string) (string, bool) {
	v, ok := d.Keywords[key].(string)
	return v, ok
}

// Int returns an integer keyword
func (d *Descriptor) Int(key string) (int, bool) {
	v, ok := d.Float(key)
	return int(v), ok
}
