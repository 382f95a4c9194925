package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/colibri-telescope/astrocorr/internal/archive"
	"github.com/colibri-telescope/astrocorr/internal/fitsframe"
	"github.com/colibri-telescope/astrocorr/internal/metrics"
	"github.com/colibri-telescope/astrocorr/internal/offset"
	"github.com/colibri-telescope/astrocorr/internal/rcd"
	"github.com/colibri-telescope/astrocorr/internal/site"
	"github.com/colibri-telescope/astrocorr/internal/solver"
	"github.com/colibri-telescope/astrocorr/internal/solver/local"
	"github.com/colibri-telescope/astrocorr/internal/solver/remote"
	"github.com/colibri-telescope/astrocorr/internal/storage"
)

var (
	ErrInputNotFound     = errors.New("input image not found")
	ErrUnsupportedFormat = errors.New("unsupported input format")
)

var containerExts = map[string]struct{}{
	".fits": {},
	".fit":  {},
	".fts":  {},
}

// Request is one pointing correction to compute
type Request struct {
	ImagePath string
	Target    offset.Coordinates
	Test      bool // render the diagnostic view
}

// Outcome is a computed correction and how it was obtained
type Outcome struct {
	Offset  offset.Offset
	Centre  offset.Coordinates
	FrameID string
	Solve   *solver.Result

	frame  *rcd.Frame
	target offset.Coordinates
	test   bool
}

// Run computes the offset for req and prints it to stdout. On any failure the
// fail-safe "0.0 0.0" is printed instead and the error returned.
func Run(ctx context.Context, config *Config, req Request, stdout io.Writer, logger *slog.Logger) error {
	p, err := NewPipeline(config, logger)
	if err != nil {
		_, _ = fmt.Fprintln(stdout, offset.FailSafe)
		return err
	}
	defer p.Close()

	out, err := p.Process(ctx, req)
	if err != nil {
		_, _ = fmt.Fprintln(stdout, offset.FailSafe)
		return err
	}

	// the correction goes out before archiving and diagnostics get a chance to stall it
	_, err = fmt.Fprintln(stdout, out.Offset)
	p.Publish(ctx, out)
	return err
}

// Pipeline turns one image into a pointing correction
type Pipeline struct {
	config  *Config
	decoder *rcd.Decoder
	chain   *solver.Chain
	journal *storage.SqliteStore
	metrics *metrics.Metrics
	archive *archive.Archive
	logger  *slog.Logger

	state State
}

func NewPipeline(config *Config, logger *slog.Logger) (*Pipeline, error) {
	p := Pipeline{
		config: config,
		logger: logger,
		state:  StateInit,
	}

	var err error
	if p.decoder, err = rcd.NewDecoder(config.Sensor, rcd.WithLogger(logger)); err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	workDir, cacheDir := config.WorkDir(), config.CacheDir()
	for _, dir := range []string{workDir, cacheDir} {
		if err = os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory: %w", err)
		}
	}

	strategies, err := createStrategies(&config.Solver, workDir, logger)
	if err != nil {
		return nil, err
	}

	options := []func(*solver.Chain){
		solver.WithLogger(logger),
		solver.WithCache(solver.NewCache(cacheDir)),
	}
	if config.Metrics.Textfile != "" {
		p.metrics = metrics.New()
		options = append(options, solver.WithObserver(p.metrics))
	}
	p.chain = solver.NewChain(strategies, options...)

	if config.Paths.Journal != "" {
		p.journal = storage.NewSqliteStore(config.Paths.Journal)
	}

	if config.Archive.Enabled() {
		s3Api, err := archive.NewS3(config.Archive)
		if err != nil {
			return nil, fmt.Errorf("creating archive: %w", err)
		}
		if p.archive, err = archive.New(config.Archive, s3Api, archive.WithLogger(logger)); err != nil {
			return nil, fmt.Errorf("creating archive: %w", err)
		}
	}

	return &p, nil
}

func createStrategies(config *SolverConfig, workDir string, logger *slog.Logger) ([]solver.Strategy, error) {
	var strategies []solver.Strategy

	if config.Local.Enabled {
		c := config.Local
		if c.OutputDir == "" {
			c.OutputDir = workDir
		}
		s, err := local.New(c, local.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("creating local solver: %w", err)
		}
		strategies = append(strategies, s)
	}

	if config.Remote.Enabled {
		s, err := remote.New(config.Remote, remote.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("creating remote solver: %w", err)
		}
		strategies = append(strategies, s)
	}

	if len(strategies) == 0 {
		return nil, errors.New("no solver enabled in configuration")
	}
	return strategies, nil
}

// State returns the current pipeline stage
func (p *Pipeline) State() State {
	return p.state
}

func (p *Pipeline) transition(to State, attrs ...any) {
	if !p.state.CanTransition(to) {
		p.logger.Error("invalid state transition", slog.String("from", string(p.state)), slog.String("to", string(to)))
		return
	}

	attrs = append([]any{slog.String("from", string(p.state)), slog.String("to", string(to))}, attrs...)
	p.logger.Info("state transition", attrs...)
	p.state = to
}

// Process runs the pipeline once. A Pipeline is not reusable.
func (p *Pipeline) Process(ctx context.Context, req Request) (out *Outcome, err error) {
	run := storage.Run{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		InputPath: req.ImagePath,
		TargetRA:  req.Target.RA,
		TargetDec: req.Target.Dec,
	}

	defer func() {
		if err != nil {
			p.transition(StateFailed, slog.String("error", err.Error()))
			run.Error = err.Error()
		}
		run.State = string(p.state)
		run.FinishedAt = time.Now().UTC()
		p.finish(ctx, &run, out)
	}()

	if p.state != StateInit {
		return nil, fmt.Errorf("pipeline already in state %s", p.state)
	}

	frame, container, err := p.load(req.ImagePath)
	if err != nil {
		return nil, err
	}

	frameID, err := solver.FrameID(req.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("identifying frame: %w", err)
	}
	run.FrameID = frameID

	if s := p.site(frame.Header); s != nil {
		run.SiteLatitude, run.SiteLongitude = &s.Latitude, &s.Longitude
		run.TargetAltitude = p.targetAltitude(s, frame.Header, req.Target)
	}

	p.transition(StateSolving, slog.String("container", container), slog.String("frameID", frameID))
	res, err := p.chain.Solve(ctx, solver.Request{
		ImagePath:       container,
		FrameID:         frameID,
		Width:           frame.Grid.Width,
		Height:          frame.Grid.Height,
		DistortionOrder: p.config.Solver.DistortionOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("solving frame: %w", err)
	}
	run.Strategy, run.CacheHit, run.WCS = res.Strategy, res.CacheHit, res.Descriptor.Keywords

	p.transition(StateTransformed, slog.String("strategy", res.Strategy), slog.Bool("cacheHit", res.CacheHit))

	if res.Transform == nil {
		return nil, offset.ErrNoTransform
	}
	off, centre, err := offset.Compute(res.Transform, frame.Grid.Width, frame.Grid.Height, req.Target)
	if err != nil {
		return nil, fmt.Errorf("computing offset: %w", err)
	}
	run.CentreRA, run.CentreDec = &centre.RA, &centre.Dec
	run.OffsetRA, run.OffsetDec = &off.RA, &off.Dec

	p.transition(StateOffsetComputed,
		slog.String("centre", centre.String()),
		slog.String("target", req.Target.String()),
		slog.String("offset", off.String()))

	out = &Outcome{
		Offset:  off,
		Centre:  centre,
		FrameID: frameID,
		Solve:   res,
		frame:   frame,
		target:  req.Target,
		test:    req.Test,
	}
	return out, nil
}

// Publish archives a fresh solution and renders the diagnostic view. Both are
// best effort: failures are logged and never affect the computed offset.
func (p *Pipeline) Publish(ctx context.Context, out *Outcome) {
	if !out.Solve.CacheHit && p.archive != nil {
		if _, err := p.archive.Upload(ctx, out.FrameID, out.Solve.Descriptor.Raw); err != nil {
			p.logger.Warn("archiving solution failed", slog.String("error", err.Error()))
		}
	}

	if out.test || p.config.Diagnostics.Enabled {
		if err := p.diagnose(out.frame, out.Solve, out.target, out); err != nil {
			p.logger.Warn("rendering diagnostics failed", slog.String("error", err.Error()))
		}
	}
}

// load reads the frame, containerizing raw input. It returns the path the
// solver should be given.
func (p *Pipeline) load(path string) (*rcd.Frame, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("%w: '%s'", ErrInputNotFound, path)
		}
		return nil, "", fmt.Errorf("checking input '%s': %w", path, err)
	}
	if info.IsDir() {
		return nil, "", fmt.Errorf("%w: '%s' is a directory", ErrInputNotFound, path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := containerExts[ext]; ok {
		// containers go to the solver as they are
		frame, err := fitsframe.Read(path)
		if err != nil {
			return nil, "", fmt.Errorf("reading container: %w", err)
		}
		return frame, path, nil
	}
	if ext != ".rcd" {
		return nil, "", fmt.Errorf("%w: '%s'", ErrUnsupportedFormat, path)
	}

	p.transition(StateDecoding, slog.String("size", humanize.Bytes(uint64(info.Size()))))
	frame, err := p.decoder.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("decoding '%s': %w", path, err)
	}

	container := filepath.Join(p.config.WorkDir(), strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+".fits")
	p.transition(StateContainerizing, slog.String("container", container))
	if err = fitsframe.Write(container, frame); err != nil {
		return nil, "", fmt.Errorf("writing container: %w", err)
	}

	return frame, container, nil
}

func (p *Pipeline) site(h rcd.Header) *site.Site {
	provider := site.First{
		site.NewFromHeader(h),
		site.NewStatic(p.config.Site.Latitude, p.config.Site.Longitude),
	}
	return provider.Get()
}

func (p *Pipeline) targetAltitude(s *site.Site, h rcd.Header, target offset.Coordinates) *float64 {
	at, err := site.ParseTimestamp(h.Timestamp)
	if err != nil {
		p.logger.Debug("skipping horizon check", slog.String("error", err.Error()))
		return nil
	}

	pos := site.TargetPosition(s, target.RA, target.Dec, at)
	alt := pos.Altitude.Deg()

	attrs := []any{
		slog.String("site", s.Source),
		slog.Float64("altitude", alt),
		slog.Float64("azimuth", pos.Azimuth.Deg()),
		slog.Time("exposure", at),
	}
	if pos.AboveHorizon() {
		p.logger.Debug("target position", attrs...)
	} else {
		p.logger.Warn("target below the horizon at exposure time", attrs...)
	}

	return &alt
}

func (p *Pipeline) diagnose(frame *rcd.Frame, res *solver.Result, target offset.Coordinates, out *Outcome) error {
	d := p.config.Diagnostics
	grid := frame.Grid

	overlay := Overlay{
		Centre: Marker{X: float64(grid.Width) / 2, Y: float64(grid.Height) / 2, Label: "centre"},
		Info: []string{
			fmt.Sprintf("RA offset: %s  Dec offset: %s", offset.FormatFloat(out.Offset.RA), offset.FormatFloat(out.Offset.Dec)),
			"Centre: " + out.Centre.String(),
			"Target: " + target.String(),
			fmt.Sprintf("Frame: %s  solved by %s", out.FrameID, res.Strategy),
		},
	}
	if x, y, err := res.Transform.SkyToPixel(target.RA, target.Dec); err == nil {
		overlay.Target = &Marker{X: x, Y: y, Label: "target"}
	} else {
		p.logger.Debug("target not drawn", slog.String("error", err.Error()))
	}

	img, err := Render(grid, overlay, RenderConfig{
		Theme:          d.Theme,
		LowPercentile:  d.LowPercentile,
		HighPercentile: d.HighPercentile,
	})
	if err != nil {
		return err
	}

	output := d.Output
	if output == "" {
		output = filepath.Join(p.config.WorkDir(), out.FrameID+"-diag")
	}
	output = fmt.Sprintf("%s.%s", output, d.Format)

	if err = WriteImage(output, img, d.Format); err != nil {
		return fmt.Errorf("writing diagnostics: %w", err)
	}

	p.logger.Info("diagnostics written", slog.String("path", output))
	return nil
}

// finish records the run. Failures here never change the outcome.
func (p *Pipeline) finish(ctx context.Context, run *storage.Run, out *Outcome) {
	if p.journal != nil {
		if _, err := p.journal.RecordRun(context.WithoutCancel(ctx), run); err != nil {
			p.logger.Warn("recording run failed", slog.String("error", err.Error()))
		}
	}

	if p.metrics != nil {
		p.metrics.ObserveRun(run.State)
		if out != nil {
			p.metrics.ObserveOffset(out.Offset.RA, out.Offset.Dec, run.FinishedAt)
		}
		if err := p.metrics.WriteTextfile(p.config.Metrics.Textfile); err != nil {
			p.logger.Warn("exporting metrics failed", slog.String("error", err.Error()))
		}
	}
}

func (p *Pipeline) Close() error {
	if p.journal != nil {
		return p.journal.Close()
	}
	return nil
}
