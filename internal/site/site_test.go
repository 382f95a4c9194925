package site

import (
	"math"
	"testing"
	"time"

	"github.com/colibri-telescope/astrocorr/internal/rcd"
)

func fptr(v float64) *float64 { return &v }

func TestProviders(t *testing.T) {
	header := NewFromHeader(rcd.Header{Latitude: 43.19, Longitude: -81.32})
	config := NewStatic(fptr(1), fptr(2))

	s := First{header, config}.Get()
	if s == nil || s.Source != SourceHeader || s.Latitude != 43.19 || s.Longitude != -81.32 {
		t.Fatalf("Expected header site, got %+v", s)
	}

	s = First{NewFromHeader(rcd.Header{}), config}.Get()
	if s == nil || s.Source != SourceConfig || s.Latitude != 1 || s.Longitude != 2 {
		t.Fatalf("Expected configured site, got %+v", s)
	}

	if s := (First{NewFromHeader(rcd.Header{}), NewStatic(nil, fptr(2)), nil}).Get(); s != nil {
		t.Errorf("Expected no site, got %+v", s)
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2022, 5, 6, 3, 4, 5, 123456789, time.UTC)
	for _, in := range []string{
		"2022-05-06T03:04:05.123456789",
		"2022-05-06T03:04:05.123456789Z",
		"2022-05-06 03:04:05.123456789\x00\x00",
	} {
		got, err := ParseTimestamp(in)
		if err != nil {
			t.Errorf("ParseTimestamp(%q) failed: %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Errorf("Expected error for unparseable timestamp")
	}
}

func TestLocalSiderealTime_Greenwich(t *testing.T) {
	// 1987 April 10, 0h UT: apparent sidereal time 13h10m46.1351s
	st := LocalSiderealTime(time.Date(1987, 4, 10, 0, 0, 0, 0, time.UTC), 0)
	want := 13*3600 + 10*60 + 46.1351
	if math.Abs(st.Sec()-want) > 0.01 {
		t.Errorf("Expected %.4fs, got %.4fs", want, st.Sec())
	}
}

func TestTargetPosition(t *testing.T) {
	s := &Site{Latitude: 43.19, Longitude: -81.32}
	at := time.Date(2022, 5, 6, 3, 4, 5, 0, time.UTC)
	lst := LocalSiderealTime(at, s.Longitude).Hour() * 15

	zenith := TargetPosition(s, lst, s.Latitude, at)
	if math.Abs(zenith.Altitude.Deg()-90) > 1e-6 {
		t.Errorf("Expected target on the meridian at dec=lat to be at zenith, got %f", zenith.Altitude.Deg())
	}

	pole := TargetPosition(s, 123, 90, at)
	if math.Abs(pole.Altitude.Deg()-s.Latitude) > 1e-6 {
		t.Errorf("Expected pole altitude %f, got %f", s.Latitude, pole.Altitude.Deg())
	}
	if az := pole.Azimuth.Deg(); az > 1e-6 && az < 360-1e-6 {
		t.Errorf("Expected pole due north, got azimuth %f", az)
	}

	south := TargetPosition(s, lst, 0, at)
	if math.Abs(south.Azimuth.Deg()-180) > 1e-6 || math.Abs(south.Altitude.Deg()-(90-s.Latitude)) > 1e-6 {
		t.Errorf("Expected equator transit due south, got %+v", south)
	}

	below := TargetPosition(s, lst+180, -60, at)
	if below.AboveHorizon() {
		t.Errorf("Expected southern target at lower culmination to be below the horizon, got %f", below.Altitude.Deg())
	}
}
