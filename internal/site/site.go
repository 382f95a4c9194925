// Package site resolves the observing site and places the target on the local
// horizon at exposure time.
package site

import (
	"github.com/colibri-telescope/astrocorr/internal/rcd"
)

// Source names where a site came from
const (
	SourceHeader = "header"
	SourceConfig = "config"
)

type Provider interface {
	Get() *Site
}

// Site is a geodetic position in degrees, longitude positive east
type Site struct {
	Latitude  float64
	Longitude float64
	Source    string
}

// Static always yields the same configured site
type Static struct {
	site *Site
}

// NewStatic returns a provider for a configured site. A nil configuration
// yields a provider without a site.
func NewStatic(lat, lon *float64) *Static {
	if lat == nil || lon == nil {
		return &Static{}
	}
	return &Static{site: &Site{Latitude: *lat, Longitude: *lon, Source: SourceConfig}}
}

func (s *Static) Get() *Site {
	if s.site == nil {
		return nil
	}
	c := *s.site
	return &c
}

// FromHeader yields the site recorded by the camera. A header holding 0,0 is
// treated as carrying no site.
type FromHeader struct {
	header rcd.Header
}

func NewFromHeader(h rcd.Header) *FromHeader {
	return &FromHeader{header: h}
}

func (p *FromHeader) Get() *Site {
	if p.header.Latitude == 0 && p.header.Longitude == 0 {
		return nil
	}
	return &Site{Latitude: p.header.Latitude, Longitude: p.header.Longitude, Source: SourceHeader}
}

// First yields the site of the first provider that has one
type First []Provider

func (f First) Get() *Site {
	for _, p := range f {
		if p == nil {
			continue
		}
		if s := p.Get(); s != nil {
			return s
		}
	}
	return nil
}
