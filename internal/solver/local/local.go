// Package local solves images with a locally installed astrometry.net
// `solve-field`, optionally launched through a wrapper such as WSL.
package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/colibri-telescope/astrocorr/internal/solver"
	"github.com/colibri-telescope/astrocorr/internal/wcs"
)

const Name = "local"

const waitDelay = 5 * time.Second

// WithLogger sets the logger for the strategy
func WithLogger(logger *slog.Logger) func(s *Strategy) {
	return func(s *Strategy) {
		s.logger = logger.With(slog.String("strategy", Name))
	}
}

// Strategy runs solve-field and reads the WCS file it writes
type Strategy struct {
	config Config
	logger *slog.Logger
}

// New creates a local strategy with a discard logger
func New(config Config, options ...func(s *Strategy)) (*Strategy, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := Strategy{
		config: config,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s, nil
}

func (s *Strategy) Name() string {
	return Name
}

// Solve runs the solver bounded by the configured timeout. Failures are
// returned as *solver.StrategyError.
func (s *Strategy) Solve(ctx context.Context, req solver.Request) (*wcs.Descriptor, error) {
	outDir := s.config.OutputDir
	if outDir == "" {
		outDir = filepath.Dir(req.ImagePath)
	}
	if info, err := os.Stat(outDir); err != nil || !info.IsDir() {
		return nil, s.fail(solver.KindMisconfigured, fmt.Errorf("output directory %q is not usable: %v", outDir, err))
	}

	base := req.FrameID
	wcsPath := filepath.Join(outDir, base+".wcs")

	program, args, err := s.config.Command(req.ImagePath, outDir, base, req.DistortionOrder)
	if err != nil {
		return nil, s.fail(solver.KindMisconfigured, err)
	}

	binPath, err := FindRuntime(program)
	if err != nil {
		return nil, s.fail(solver.KindUnavailable, fmt.Errorf("`%s` not found: %w", program, err))
	}

	// a stale solution from an earlier run must not be mistaken for this one;
	// nothing is removed unless solve-field is about to replace it
	if err := os.Remove(wcsPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, s.fail(solver.KindMisconfigured, fmt.Errorf("removing stale solution: %w", err))
	}

	runCtx, cancel := context.WithTimeout(ctx, s.config.Timeout.Std())
	defer cancel()

	s.logger.Debug("running solver", slog.String("bin", binPath), slog.String("args", strings.Join(args, " ")))

	if err := s.run(exec.CommandContext(runCtx, binPath, args...)); err != nil {
		if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, s.fail(solver.KindTimeout, fmt.Errorf("no solution within %s", s.config.Timeout))
		}
		return nil, s.fail(classify(err), err)
	}

	data, err := os.ReadFile(wcsPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, s.fail(solver.KindFailed, errors.New("solver finished without writing a solution"))
		}
		return nil, s.fail(classify(err), fmt.Errorf("reading solution: %w", err))
	}

	d, err := wcs.ParseDescriptor(data)
	if err != nil {
		return nil, s.fail(solver.KindFailed, err)
	}

	return d, nil
}

// run executes cmd, logging its output line by line
func (s *Strategy) run(cmd *exec.Cmd) error {
	stdout := &lineWriter{log: s.output(slog.LevelDebug)}
	stderr := &lineWriter{log: s.output(slog.LevelWarn)}
	cmd.Stdout, cmd.Stderr = stdout, stderr

	// children that inherit the pipes must not hold Wait past a kill
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	stdout.Flush()
	stderr.Flush()

	if err != nil {
		return fmt.Errorf("command exited with error: %w", err)
	}
	return nil
}

func (s *Strategy) output(level slog.Level) func(line string) {
	return func(line string) {
		s.logger.Log(context.Background(), level, fmt.Sprintf("%s >> %s", s.config.Binary, line))
	}
}

// lineWriter passes each complete non-empty line written to it to log
type lineWriter struct {
	log func(line string)
	buf []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *lineWriter) Flush() {
	w.emit(w.buf)
	w.buf = nil
}

func (w *lineWriter) emit(line []byte) {
	if s := strings.TrimSpace(string(line)); s != "" {
		w.log(s)
	}
}

func (s *Strategy) fail(kind solver.Kind, err error) error {
	return solver.NewStrategyError(Name, kind, err)
}

// classify separates setup problems from solver failures
func classify(err error) solver.Kind {
	switch {
	case errors.Is(err, exec.ErrNotFound):
		return solver.KindUnavailable
	case errors.Is(err, fs.ErrPermission):
		return solver.KindMisconfigured
	default:
		return solver.KindFailed
	}
}
