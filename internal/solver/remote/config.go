package remote

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/colibri-telescope/astrocorr/internal/solver"
)

const (
	DefaultBaseURL        = "http://nova.astrometry.net"
	DefaultTimeout        = 10 * time.Minute
	DefaultPollInterval   = 5 * time.Second
	DefaultRequestTimeout = 2 * time.Minute
	DefaultMaxRetries     = 3

	// APIKeyEnv overrides an empty configured API key
	APIKeyEnv = "ASTROMETRY_API_KEY"
)

// Config is the astrometry.net web API configuration
type Config struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	BaseURL string `yaml:"baseURL" json:"baseURL"`
	APIKey  string `yaml:"apiKey" json:"-"`

	// Scale hints in arcsec per pixel, omitted when zero
	ScaleLow  float64 `yaml:"scaleLow" json:"scaleLow"`
	ScaleHigh float64 `yaml:"scaleHigh" json:"scaleHigh"`

	Timeout        solver.Duration `yaml:"timeout" json:"timeout"`               // whole solve, upload to download
	PollInterval   solver.Duration `yaml:"pollInterval" json:"pollInterval"`     // submission and job status polling
	RequestTimeout solver.Duration `yaml:"requestTimeout" json:"requestTimeout"` // single HTTP request
	MaxRetries     int             `yaml:"maxRetries" json:"maxRetries"`         // idempotent requests on transient errors
}

func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		BaseURL:        DefaultBaseURL,
		ScaleLow:       2.2,
		ScaleHigh:      2.6,
		Timeout:        solver.NewDuration(DefaultTimeout),
		PollInterval:   solver.NewDuration(DefaultPollInterval),
		RequestTimeout: solver.NewDuration(DefaultRequestTimeout),
		MaxRetries:     DefaultMaxRetries,
	}
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("remote.Config: invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("remote.Config: base URL must be http or https: %q given", c.BaseURL)
	}
	if c.ScaleLow < 0 || c.ScaleHigh < 0 || (c.ScaleHigh > 0 && c.ScaleLow >= c.ScaleHigh) {
		return fmt.Errorf("remote.Config: invalid scale bounds %g-%g", c.ScaleLow, c.ScaleHigh)
	}
	if err := c.Timeout.Validate(); err != nil {
		return fmt.Errorf("remote.Config: timeout: %w", err)
	}
	if err := c.PollInterval.Validate(); err != nil {
		return fmt.Errorf("remote.Config: poll interval: %w", err)
	}
	if err := c.RequestTimeout.Validate(); err != nil {
		return fmt.Errorf("remote.Config: request timeout: %w", err)
	}
	if c.MaxRetries < 0 {
		return errors.New("remote.Config: max retries must not be negative")
	}

	return nil
}
