package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/colibri-telescope/astrocorr/internal/archive"
	"github.com/colibri-telescope/astrocorr/internal/rcd"
	"github.com/colibri-telescope/astrocorr/internal/solver/local"
	"github.com/colibri-telescope/astrocorr/internal/solver/remote"
)

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"
	ImageTIFF ImageFormat = "tiff"

	DefaultDistortionOrder = 4

	defaultWorkDir  = "astrocorr"
	defaultCacheDir = "cache"
)

type ImageFormat string

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
	ImageTIFF: {},
}

// Config represents the main application configuration
type Config struct {
	Settings    Settings          `yaml:"settings"`
	Sensor      rcd.Layout        `yaml:"sensor"`
	Paths       PathsConfig       `yaml:"paths"`
	Solver      SolverConfig      `yaml:"solver"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Archive     archive.Config    `yaml:"archive"`
	Site        SiteConfig        `yaml:"site"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// Level parses the configured log level, defaulting to info
func (s Settings) Level() (slog.Level, error) {
	var level slog.Level
	if s.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s.LogLevel, err)
	}
	return level, nil
}

// PathsConfig locates the working files. Empty directories resolve to
// defaults below the system temporary directory.
type PathsConfig struct {
	WorkDir  string `yaml:"workDir"`  // FITS containers and local solver output
	CacheDir string `yaml:"cacheDir"` // write-once solutions keyed by frame
	Journal  string `yaml:"journal"`  // SQLite run history, disabled when empty
}

type SolverConfig struct {
	DistortionOrder int           `yaml:"distortionOrder"`
	Local           local.Config  `yaml:"local"`
	Remote          remote.Config `yaml:"remote"`
}

type DiagnosticsConfig struct {
	Enabled bool        `yaml:"enabled"`
	Output  string      `yaml:"output"` // without extension, defaults to <workDir>/<frameID>-diag
	Format  ImageFormat `yaml:"format"`
	Theme   ColorTheme  `yaml:"theme"`

	// percentiles mapped to black and white
	LowPercentile  float64 `yaml:"lowPercentile"`
	HighPercentile float64 `yaml:"highPercentile"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // node-exporter textfile, disabled when empty
}

// SiteConfig is used when the frame header carries no site
type SiteConfig struct {
	Latitude  *float64 `yaml:"latitude"`
	Longitude *float64 `yaml:"longitude"`
}

func NewConfig() *Config {
	return &Config{
		Settings: Settings{LogLevel: "info"},
		Sensor:   rcd.DefaultLayout(),
		Solver: SolverConfig{
			DistortionOrder: DefaultDistortionOrder,
			Local:           local.DefaultConfig(),
			Remote:          remote.DefaultConfig(),
		},
		Archive: archive.DefaultConfig(),
		Diagnostics: DiagnosticsConfig{
			Format:         ImagePNG,
			Theme:          GrayscaleTheme,
			LowPercentile:  0.5,
			HighPercentile: 99.5,
		},
	}
}

// LoadConfig reads the YAML file at path over the defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	config := NewConfig()
	if err = yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err = config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	if _, err := c.Settings.Level(); err != nil {
		return err
	}
	if err := c.Sensor.Validate(); err != nil {
		return fmt.Errorf("sensor: %w", err)
	}

	for name, dir := range map[string]string{
		"work directory":  c.Paths.WorkDir,
		"cache directory": c.Paths.CacheDir,
	} {
		if err := checkDir(name, dir); err != nil {
			return err
		}
	}
	if c.Paths.Journal != "" {
		if err := checkDir("journal directory", filepath.Dir(c.Paths.Journal)); err != nil {
			return err
		}
	}
	if c.Metrics.Textfile != "" {
		if err := checkDir("metrics directory", filepath.Dir(c.Metrics.Textfile)); err != nil {
			return err
		}
	}

	if c.Solver.DistortionOrder < 0 {
		return fmt.Errorf("solver: distortion order must not be negative: %d given", c.Solver.DistortionOrder)
	}
	if !c.Solver.Local.Enabled && !c.Solver.Remote.Enabled {
		return errors.New("solver: at least one of local and remote must be enabled")
	}
	if c.Solver.Local.Enabled {
		if err := c.Solver.Local.Validate(); err != nil {
			return fmt.Errorf("solver: %w", err)
		}
	}
	if c.Solver.Remote.Enabled {
		if err := c.Solver.Remote.Validate(); err != nil {
			return fmt.Errorf("solver: %w", err)
		}
	}

	// solve-field replaces <outputDir>/<frameID>.wcs, which must never be a cache entry
	if samePath(c.CacheDir(), c.WorkDir()) {
		return fmt.Errorf("paths: cache directory '%s' must differ from the work directory", c.CacheDir())
	}
	if c.Solver.Local.Enabled && samePath(c.CacheDir(), c.localOutputDir()) {
		return fmt.Errorf("paths: cache directory '%s' must differ from the local solver output directory", c.CacheDir())
	}

	if c.Archive.Enabled() {
		if err := c.Archive.Validate(); err != nil {
			return err
		}
	}

	d := &c.Diagnostics
	d.Format = ImageFormat(strings.ToLower(string(d.Format)))
	if _, ok := validImageFormats[d.Format]; !ok {
		return fmt.Errorf("diagnostics: invalid image format: %s", d.Format)
	}
	if _, ok := validThemes[d.Theme]; !ok {
		return fmt.Errorf("diagnostics: invalid theme: %s", d.Theme)
	}
	if d.LowPercentile < 0 || d.HighPercentile > 100 || d.LowPercentile >= d.HighPercentile {
		return fmt.Errorf("diagnostics: invalid percentiles %g-%g", d.LowPercentile, d.HighPercentile)
	}

	if (c.Site.Latitude == nil) != (c.Site.Longitude == nil) {
		return errors.New("site: latitude and longitude must be set together")
	}
	if c.Site.Latitude != nil && (*c.Site.Latitude < -90 || *c.Site.Latitude > 90 ||
		*c.Site.Longitude < -180 || *c.Site.Longitude > 180) {
		return fmt.Errorf("site: coordinates out of range: %g, %g", *c.Site.Latitude, *c.Site.Longitude)
	}

	return nil
}

// WorkDir returns the configured work directory or the default one
func (c *Config) WorkDir() string {
	if c.Paths.WorkDir != "" {
		return c.Paths.WorkDir
	}
	return filepath.Join(os.TempDir(), defaultWorkDir)
}

// CacheDir returns the configured cache directory or the default one
func (c *Config) CacheDir() string {
	if c.Paths.CacheDir != "" {
		return c.Paths.CacheDir
	}
	return filepath.Join(c.WorkDir(), defaultCacheDir)
}

// localOutputDir is where solve-field writes its files
func (c *Config) localOutputDir() string {
	if c.Solver.Local.OutputDir != "" {
		return c.Solver.Local.OutputDir
	}
	return c.WorkDir()
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

// checkDir accepts an empty path, which resolves to a default created on demand
func checkDir(name, dir string) error {
	if dir == "" {
		return nil
	}

	stat, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s '%s' does not exist: %w", name, dir, err)
		}
		return fmt.Errorf("checking %s '%s': %w", name, dir, err)
	}
	if !stat.IsDir() {
		return fmt.Errorf("invalid %s '%s'", name, dir)
	}
	return nil
}
