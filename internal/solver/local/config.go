package local

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/colibri-telescope/astrocorr/internal/solver"
)

const (
	DefaultBinary    = "solve-field"
	DefaultScaleLow  = 2.2 // arcsec per pixel
	DefaultScaleHigh = 2.6
	DefaultTimeout   = 2 * time.Minute
)

// Usage from the astrometry.net documentation:
// https://astrometry.net/doc/readme.html#solving

/*
	localConfig := local.Config{
		Binary:    "solve-field",
		Wrapper:   []string{"wsl"},
		WSLPaths:  true,
		ScaleLow:  2.2,
		ScaleHigh: 2.6,
	}
	// Executes: wsl solve-field --no-plots -D /mnt/d/tmp -O -o frame -N /mnt/d/tmp/frame.new -t 4
	//           --scale-units arcsecperpix --scale-low 2.2 --scale-high 2.6 /mnt/d/tmp/frame.fits
*/

// Config is the `solve-field` invocation configuration
type Config struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	Binary  string   `yaml:"binary" json:"binary"`   // solver executable, looked up in PATH
	Wrapper []string `yaml:"wrapper" json:"wrapper"` // optional launcher prepended to the command, e.g. ["wsl"]

	// WSLPaths rewrites Windows drive paths (D:\tmp\x.fits) into their WSL mounts
	// (/mnt/d/tmp/x.fits) for solvers launched through a WSL wrapper
	WSLPaths bool `yaml:"wslPaths" json:"wslPaths"`

	ScaleLow  float64 `yaml:"scaleLow" json:"scaleLow"`   // --scale-low, arcsec per pixel
	ScaleHigh float64 `yaml:"scaleHigh" json:"scaleHigh"` // --scale-high, arcsec per pixel

	Timeout   solver.Duration `yaml:"timeout" json:"timeout"`
	OutputDir string          `yaml:"outputDir" json:"outputDir"` // -D, defaults to the image directory
	ExtraArgs []string        `yaml:"extraArgs" json:"extraArgs"` // appended before the image path
}

func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Binary:    DefaultBinary,
		ScaleLow:  DefaultScaleLow,
		ScaleHigh: DefaultScaleHigh,
		Timeout:   solver.NewDuration(DefaultTimeout),
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Binary) == "" {
		return errors.New("local.Config: solver binary must be set")
	}
	if c.ScaleLow <= 0 || c.ScaleHigh <= 0 {
		return fmt.Errorf("local.Config: scale bounds must be positive: %g-%g given", c.ScaleLow, c.ScaleHigh)
	}
	if c.ScaleLow >= c.ScaleHigh {
		return fmt.Errorf("local.Config: scale low must be below scale high: %g-%g given", c.ScaleLow, c.ScaleHigh)
	}
	if err := c.Timeout.Validate(); err != nil {
		return fmt.Errorf("local.Config: timeout: %w", err)
	}
	for _, w := range c.Wrapper {
		if strings.TrimSpace(w) == "" {
			return errors.New("local.Config: wrapper entries must not be empty")
		}
	}

	return nil
}

// Command returns the program to execute and its arguments for solving image.
// Outputs are written to outDir under base.
func (c *Config) Command(image, outDir, base string, order int) (string, []string, error) {
	if err := c.Validate(); err != nil {
		return "", nil, err
	}
	if order < 0 {
		return "", nil, fmt.Errorf("local.Config: distortion order must not be negative: %d given", order)
	}

	path := func(p string) string {
		if c.WSLPaths {
			return WSLPath(p)
		}
		return p
	}

	args := []string{
		"--no-plots",
		"-D", path(outDir),
		"-O",
		"-o", base,
		"-N", path(filepath.Join(outDir, base+".new")),
		"-t", strconv.Itoa(order),
		"--scale-units", "arcsecperpix",
		"--scale-low", strconv.FormatFloat(c.ScaleLow, 'f', -1, 64),
		"--scale-high", strconv.FormatFloat(c.ScaleHigh, 'f', -1, 64),
	}
	args = append(args, c.ExtraArgs...)
	args = append(args, path(image))

	if len(c.Wrapper) == 0 {
		return c.Binary, args, nil
	}

	wrapped := append(append([]string{}, c.Wrapper[1:]...), c.Binary)
	return c.Wrapper[0], append(wrapped, args...), nil
}

// WSLPath maps a Windows drive path to its mount point inside WSL.
// Paths without a drive letter are returned with forward slashes.
func WSLPath(p string) string {
	if len(p) >= 2 && p[1] == ':' && isLetter(p[0]) {
		rest := strings.ReplaceAll(p[2:], `\`, "/")
		if !strings.HasPrefix(rest, "/") {
			rest = "/" + rest
		}
		return "/mnt/" + strings.ToLower(p[:1]) + strings.TrimSuffix(rest, "/")
	}
	return strings.ReplaceAll(p, `\`, "/")
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
