package solver

import (
	"context"
	"errors"
	"fmt"
)

// ErrAllStrategiesFailed is returned by Chain.Solve when no strategy produced a usable solution
var ErrAllStrategiesFailed = errors.New("solver: all strategies failed")

// Kind classifies why a strategy failed. Every kind falls through to the next strategy.
type Kind int

const (
	// KindFailed means the solver ran but produced no usable solution
	KindFailed Kind = iota

	// KindUnavailable means the solver could not be reached or started
	KindUnavailable

	// KindTimeout means the solver did not finish within its time budget
	KindTimeout

	// KindMisconfigured means the solver setup is wrong (bad paths, permissions,
	// rejected credentials) and needs operator attention
	KindMisconfigured
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindTimeout:
		return "timeout"
	case KindMisconfigured:
		return "misconfigured"
	default:
		return "failed"
	}
}

// StrategyError is the typed failure of a single solve strategy
type StrategyError struct {
	Strategy string
	Kind     Kind
	Err      error
}

func NewStrategyError(strategy string, kind Kind, err error) *StrategyError {
	return &StrategyError{Strategy: strategy, Kind: kind, Err: err}
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("%s solver %s: %v", e.Strategy, e.Kind, e.Err)
}

func (e *StrategyError) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, defaulting to KindFailed for untyped errors
func KindOf(err error) Kind {
	var se *StrategyError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindFailed
}
