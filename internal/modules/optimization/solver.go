package optimization

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/optimize"

	"github.com/quantumvest/risk-engine/internal/domain"
)

// QPProblem is a quadratic program in canonical form:
//
//	minimize   ½ xᵗQx + cᵗx
//	subject to AEq·x = BEq
//	           AIneq·x ≤ BIneq
//	           Bounds[i][0] ≤ x_i ≤ Bounds[i][1]
//
// Initial is the starting point; when nil the solver starts from zero.
type QPProblem struct {
	Q       [][]float64
	C       []float64
	AEq     [][]float64
	BEq     []float64
	AIneq   [][]float64
	BIneq   []float64
	Bounds  [][2]float64
	Initial []float64
}

// QPSolver solves quadratic programs. Implementations must be safe for
// concurrent use; the engine issues one Solve per request.
type QPSolver interface {
	SolveQP(ctx context.Context, p QPProblem) ([]float64, error)
}

// PenaltySolver solves QPs with a quadratic-penalty reformulation driven
// by gonum's gradient-based minimizers. Constraint violations enter the
// objective as squared penalties; bounds are enforced by projection.
type PenaltySolver struct {
	penaltyWeight  float64
	iterationLimit int
	timeout        time.Duration
}

// NewPenaltySolver creates a penalty-method QP solver. Non-positive
// arguments select the defaults (1000x penalty, 1000 iterations, 30s).
func NewPenaltySolver(iterationLimit int, timeout time.Duration) *PenaltySolver {
	if iterationLimit <= 0 {
		iterationLimit = 1000
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PenaltySolver{
		penaltyWeight:  1000.0,
		iterationLimit: iterationLimit,
		timeout:        timeout,
	}
}

// SolveQP minimizes the penalized objective with BFGS, falling back to
// Nelder-Mead when the gradient-based run fails to converge. The context
// deadline and the configured timeout both bound the wall-clock budget.
func (s *PenaltySolver) SolveQP(ctx context.Context, p QPProblem) ([]float64, error) {
	n := len(p.C)
	if n == 0 {
		return nil, fmt.Errorf("empty problem: %w", domain.ErrDimensionMismatch)
	}
	if len(p.Q) != n {
		return nil, fmt.Errorf("quadratic term has %d rows for %d variables: %w", len(p.Q), n, domain.ErrDimensionMismatch)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("cancelled before solving: %w", domain.ErrTimeout)
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			xp := projectToBounds(x, p.Bounds)
			return s.rawObjective(p, xp) + s.constraintPenalty(p, xp)
		},
		Grad: func(grad, x []float64) {
			xp := projectToBounds(x, p.Bounds)

			// Gradient of ½xᵗQx + cᵗx.
			for i := 0; i < n; i++ {
				grad[i] = p.C[i]
				for j := 0; j < n; j++ {
					grad[i] += 0.5 * (p.Q[i][j] + p.Q[j][i]) * xp[j]
				}
			}

			// Gradient of equality penalties.
			for k, row := range p.AEq {
				residual := dot(row, xp) - p.BEq[k]
				for i := 0; i < n; i++ {
					grad[i] += 2 * s.penaltyWeight * residual * row[i]
				}
			}

			// Gradient of inequality penalties, active side only.
			for k, row := range p.AIneq {
				excess := dot(row, xp) - p.BIneq[k]
				if excess > 0 {
					for i := 0; i < n; i++ {
						grad[i] += 2 * s.penaltyWeight * excess * row[i]
					}
				}
			}
		},
	}

	initial := p.Initial
	if initial == nil {
		initial = make([]float64, n)
	}

	settings := &optimize.Settings{
		MajorIterations: s.iterationLimit,
		Runtime:         s.runtime(ctx),
	}

	result, err := optimize.Minimize(problem, initial, settings, &optimize.BFGS{})
	if err != nil || !converged(result.Status) {
		// Gradient-based failure on an ill-conditioned penalty surface;
		// retry derivative-free before giving up.
		fallback, ferr := optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
		if ferr == nil && converged(fallback.Status) {
			result, err = fallback, nil
		} else if err == nil {
			err = ferr
		}
	}

	if result == nil {
		return nil, fmt.Errorf("solver failed: %w", err)
	}

	xFinal := projectToBounds(result.X, p.Bounds)

	switch {
	case converged(result.Status):
		return xFinal, nil
	case result.Status == optimize.RuntimeLimit || ctx.Err() != nil:
		return nil, fmt.Errorf("solve exceeded wall-clock budget: %w", domain.ErrTimeout)
	case result.Status == optimize.IterationLimit:
		return nil, &domain.NonConvergenceError{
			Iterations:   result.MajorIterations,
			ObjectiveGap: s.constraintPenalty(p, xFinal),
		}
	default:
		if err != nil {
			return nil, fmt.Errorf("solver failed: %w", err)
		}
		return nil, &domain.NonConvergenceError{
			Iterations:   result.MajorIterations,
			ObjectiveGap: s.constraintPenalty(p, xFinal),
		}
	}
}

func (s *PenaltySolver) rawObjective(p QPProblem, x []float64) float64 {
	n := len(x)
	obj := 0.0
	for i := 0; i < n; i++ {
		obj += p.C[i] * x[i]
		for j := 0; j < n; j++ {
			obj += 0.5 * x[i] * p.Q[i][j] * x[j]
		}
	}
	return obj
}

func (s *PenaltySolver) constraintPenalty(p QPProblem, x []float64) float64 {
	penalty := 0.0
	for k, row := range p.AEq {
		residual := dot(row, x) - p.BEq[k]
		penalty += s.penaltyWeight * residual * residual
	}
	for k, row := range p.AIneq {
		excess := dot(row, x) - p.BIneq[k]
		if excess > 0 {
			penalty += s.penaltyWeight * excess * excess
		}
	}
	return penalty
}

func (s *PenaltySolver) runtime(ctx context.Context) time.Duration {
	budget := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < budget {
			budget = remaining
		}
	}
	if budget < 0 {
		budget = time.Nanosecond
	}
	return budget
}

func converged(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence, optimize.FunctionThreshold:
		return true
	}
	return false
}

// projectToBounds clamps x to its box constraints. Infinite bounds pass
// values through unchanged.
func projectToBounds(x []float64, bounds [][2]float64) []float64 {
	if len(bounds) == 0 {
		return x
	}
	proj := make([]float64, len(x))
	for i := range x {
		proj[i] = math.Max(bounds[i][0], math.Min(bounds[i][1], x[i]))
	}
	return proj
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
