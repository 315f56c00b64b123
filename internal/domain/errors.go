package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine. Callers match with errors.Is; the
// surrounding application maps each kind to its own response code.
var (
	ErrInsufficientData              = errors.New("insufficient data")
	ErrMisalignedSeries              = errors.New("misaligned return series")
	ErrDimensionMismatch             = errors.New("dimension mismatch")
	ErrInfeasibleConstraints         = errors.New("infeasible constraints")
	ErrNonConvergence                = errors.New("solver did not converge")
	ErrBenchmarkRequired             = errors.New("benchmark series required")
	ErrInvalidPathCount              = errors.New("invalid path count")
	ErrNonPositiveDefiniteCovariance = errors.New("covariance matrix not positive definite")
	ErrUnknownAssetInScenario        = errors.New("unknown asset in scenario")
	ErrTimeout                       = errors.New("computation budget exceeded")
)

// InfeasibleConstraintsError names the specific bound that makes the
// constraint set unsatisfiable.
type InfeasibleConstraintsError struct {
	Bound  string
	Detail string
}

func (e *InfeasibleConstraintsError) Error() string {
	return fmt.Sprintf("infeasible constraints: %s: %s", e.Bound, e.Detail)
}

func (e *InfeasibleConstraintsError) Unwrap() error {
	return ErrInfeasibleConstraints
}

// NonConvergenceError reports the objective gap of the last iterate when
// the solver hits its iteration limit.
type NonConvergenceError struct {
	Iterations   int
	ObjectiveGap float64
}

func (e *NonConvergenceError) Error() string {
	return fmt.Sprintf("solver did not converge after %d iterations (objective gap %.6g)", e.Iterations, e.ObjectiveGap)
}

func (e *NonConvergenceError) Unwrap() error {
	return ErrNonConvergence
}
