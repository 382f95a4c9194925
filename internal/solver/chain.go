// Package solver obtains plate solutions for frames. Strategies are tried in
// order until one returns a usable solution, and fresh solutions are kept in a
// write-once cache keyed by frame identity.
package solver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"time"

	"github.com/colibri-telescope/astrocorr/internal/wcs"
)

// StrategyCache names the cache in results and observations
const StrategyCache = "cache"

// Outcomes reported to an Observer besides the failure kinds
const (
	OutcomeSuccess = "success"
	OutcomeHit     = "hit"
)

// Request describes the image to solve
type Request struct {
	ImagePath       string
	FrameID         string
	Width           int
	Height          int
	DistortionOrder int
}

// Strategy is a single way of solving an image
type Strategy interface {
	Name() string
	Solve(ctx context.Context, req Request) (*wcs.Descriptor, error)
}

// Observer receives one call per attempt, including cache lookups that hit
type Observer interface {
	ObserveAttempt(strategy, outcome string, elapsed time.Duration)
}

// Result is a usable solution and where it came from
type Result struct {
	Descriptor *wcs.Descriptor
	Transform  *wcs.Transform
	Strategy   string
	CacheHit   bool
	Stored     bool
}

// WithLogger sets the logger for the chain
func WithLogger(logger *slog.Logger) func(c *Chain) {
	return func(c *Chain) {
		c.logger = logger.With(slog.String("component", "solver"))
	}
}

// WithObserver reports every attempt to o
func WithObserver(o Observer) func(c *Chain) {
	return func(c *Chain) {
		c.observer = o
	}
}

// WithCache enables the write-once solution cache
func WithCache(cache *Cache) func(c *Chain) {
	return func(c *Chain) {
		c.cache = cache
	}
}

// Chain tries strategies in order
type Chain struct {
	strategies []Strategy
	cache      *Cache
	observer   Observer
	logger     *slog.Logger
}

// NewChain creates a chain over strategies with a discard logger and no cache
func NewChain(strategies []Strategy, options ...func(c *Chain)) *Chain {
	c := Chain{
		strategies: strategies,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// Solve returns the cached solution for the frame if one exists, otherwise the
// first usable solution from the strategies, each attempted once. A cancelled
// ctx aborts the chain.
func (c *Chain) Solve(ctx context.Context, req Request) (*Result, error) {
	logger := c.logger.With(slog.String("frameID", req.FrameID))

	if res := c.fromCache(req, logger); res != nil {
		return res, nil
	}

	var errs []error
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logger.Info("solving", slog.String("strategy", s.Name()), slog.String("image", req.ImagePath))

		start := time.Now()
		d, tr, err := c.attempt(ctx, s, req)
		elapsed := time.Since(start)

		if err != nil {
			// the parent context ending is not a strategy failure
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%s solver interrupted: %w", s.Name(), ctxErr)
			}

			kind := KindOf(err)
			c.observe(s.Name(), kind.String(), elapsed)

			level := slog.LevelWarn
			if kind == KindMisconfigured {
				level = slog.LevelError
			}
			logger.Log(ctx, level, "strategy failed, falling back",
				slog.String("strategy", s.Name()),
				slog.String("kind", kind.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()))

			errs = append(errs, err)
			continue
		}

		c.observe(s.Name(), OutcomeSuccess, elapsed)
		logger.Info("solved", slog.String("strategy", s.Name()), slog.Duration("elapsed", elapsed))

		res := Result{Descriptor: d, Transform: tr, Strategy: s.Name()}
		res.Stored = c.store(req, d, logger)

		return &res, nil
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no strategies configured", ErrAllStrategiesFailed)
	}
	return nil, fmt.Errorf("%w: %w", ErrAllStrategiesFailed, errors.Join(errs...))
}

func (c *Chain) attempt(ctx context.Context, s Strategy, req Request) (*wcs.Descriptor, *wcs.Transform, error) {
	d, err := s.Solve(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	if d == nil {
		return nil, nil, NewStrategyError(s.Name(), KindFailed, errors.New("no solution returned"))
	}

	tr, err := wcs.NewTransform(d)
	if err != nil {
		return nil, nil, NewStrategyError(s.Name(), KindFailed, err)
	}

	return d, tr, nil
}

func (c *Chain) fromCache(req Request, logger *slog.Logger) *Result {
	if c.cache == nil {
		return nil
	}

	start := time.Now()
	d, err := c.cache.Load(req.FrameID)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("ignoring unreadable cached solution",
				slog.String("path", c.cache.Path(req.FrameID)),
				slog.String("error", err.Error()))
		}
		return nil
	}

	tr, err := wcs.NewTransform(d)
	if err != nil {
		logger.Warn("ignoring unusable cached solution",
			slog.String("path", c.cache.Path(req.FrameID)),
			slog.String("error", err.Error()))
		return nil
	}

	c.observe(StrategyCache, OutcomeHit, time.Since(start))
	logger.Info("cached solution found, skipping solve", slog.String("path", c.cache.Path(req.FrameID)))

	return &Result{Descriptor: d, Transform: tr, Strategy: StrategyCache, CacheHit: true}
}

func (c *Chain) store(req Request, d *wcs.Descriptor, logger *slog.Logger) bool {
	if c.cache == nil || len(d.Raw) == 0 {
		return false
	}

	path := c.cache.Path(req.FrameID)
	stored, err := c.cache.Store(req.FrameID, d.Raw)
	switch {
	case err != nil:
		logger.Warn("failed to cache solution", slog.String("path", path), slog.String("error", err.Error()))
	case !stored:
		logger.Info("solution already cached, keeping existing entry", slog.String("path", path))
	default:
		logger.Debug("solution cached", slog.String("path", path))
	}

	return stored
}

func (c *Chain) observe(strategy, outcome string, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveAttempt(strategy, outcome, elapsed)
	}
}
