package optimization

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/quantumvest/risk-engine/internal/domain"
	"github.com/quantumvest/risk-engine/pkg/formulas"
)

// ObjectiveKind names a mean-variance objective.
type ObjectiveKind string

const (
	// MinVolatility minimizes wᵗΣw.
	MinVolatility ObjectiveKind = "min_volatility"
	// MaxSharpe maximizes (wᵗμ - rf) / sqrt(wᵗΣw).
	MaxSharpe ObjectiveKind = "max_sharpe"
	// MaxUtility maximizes wᵗμ - λ·wᵗΣw.
	MaxUtility ObjectiveKind = "max_utility"
)

// Risk-tolerance bands for objective selection.
const (
	toleranceMinVolBelow    = 0.3
	toleranceMaxSharpeBelow = 0.7
)

// DefaultDustThreshold zeroes weights below one basis point of one
// percent after solving.
const DefaultDustThreshold = 1e-4

// Objective selects what the optimizer maximizes or minimizes. The zero
// value defers to the risk-tolerance policy.
type Objective struct {
	Kind         ObjectiveKind `json:"kind"`
	RiskAversion float64       `json:"risk_aversion,omitempty"`  // MaxUtility lambda
	RiskFreeRate float64       `json:"risk_free_rate,omitempty"` // MaxSharpe hurdle
}

// ObjectiveForTolerance maps a risk-tolerance scalar in [0, 1] onto an
// objective: conservative callers get minimum volatility, the middle band
// gets maximum Sharpe, aggressive callers get quadratic utility with the
// tolerance as risk aversion.
func ObjectiveForTolerance(tolerance float64) Objective {
	switch {
	case tolerance < toleranceMinVolBelow:
		return Objective{Kind: MinVolatility}
	case tolerance < toleranceMaxSharpeBelow:
		return Objective{Kind: MaxSharpe}
	default:
		return Objective{Kind: MaxUtility, RiskAversion: tolerance}
	}
}

// Result is an optimization outcome: cleaned weights plus the expected
// performance of the final vector.
type Result struct {
	Weights        domain.WeightVector `json:"weights"`
	ExpectedReturn float64             `json:"expected_return"`
	Volatility     float64             `json:"volatility"`
	SharpeRatio    float64             `json:"sharpe_ratio"`
	Objective      ObjectiveKind       `json:"objective"`
}

// Optimizer solves constrained mean-variance problems over a statistics
// bundle. The numerical work is delegated to a QPSolver so the algorithm
// is decoupled from any particular library.
type Optimizer struct {
	solver        QPSolver
	dustThreshold float64
	log           zerolog.Logger
}

// NewOptimizer creates a portfolio optimizer. A non-positive dust
// threshold selects the default.
func NewOptimizer(solver QPSolver, dustThreshold float64, log zerolog.Logger) *Optimizer {
	if dustThreshold <= 0 {
		dustThreshold = DefaultDustThreshold
	}
	return &Optimizer{
		solver:        solver,
		dustThreshold: dustThreshold,
		log:           log.With().Str("component", "optimizer").Logger(),
	}
}

// Optimize solves for the weight vector under the given constraints and
// objective. A zero-valued objective defers to the risk-tolerance policy.
func (o *Optimizer) Optimize(ctx context.Context, stats *domain.Statistics, cons Constraints, obj Objective) (*Result, error) {
	if stats == nil {
		return nil, fmt.Errorf("nil statistics: %w", domain.ErrDimensionMismatch)
	}
	if err := stats.Validate(); err != nil {
		return nil, err
	}
	if err := cons.Validate(stats.Universe); err != nil {
		return nil, err
	}

	if obj.Kind == "" {
		obj = ObjectiveForTolerance(cons.RiskTolerance)
	}

	o.log.Debug().
		Str("objective", string(obj.Kind)).
		Int("num_assets", stats.Universe.Len()).
		Msg("Solving mean-variance problem")

	var (
		x   []float64
		err error
	)
	switch obj.Kind {
	case MinVolatility:
		x, err = o.solveMinVolatility(ctx, stats, cons, nil)
	case MaxUtility:
		x, err = o.solveMaxUtility(ctx, stats, cons, obj.RiskAversion)
	case MaxSharpe:
		x, err = o.solveMaxSharpe(ctx, stats, cons, obj.RiskFreeRate)
	default:
		return nil, fmt.Errorf("unknown objective %q: %w", obj.Kind, domain.ErrDimensionMismatch)
	}
	if err != nil {
		return nil, err
	}

	weights := enforceBounds(o.CleanWeights(vectorToWeights(x, stats.Universe)), stats.Universe, cons)
	if err := weights.ValidateSum(0); err != nil {
		return nil, err
	}

	result := &Result{
		Weights:        weights,
		ExpectedReturn: PortfolioReturn(weights, stats),
		Volatility:     math.Sqrt(math.Max(PortfolioVariance(weights, stats), 0)),
		Objective:      obj.Kind,
	}
	if result.Volatility > 1e-12 {
		result.SharpeRatio = (result.ExpectedReturn - obj.RiskFreeRate) / result.Volatility
	}

	o.log.Info().
		Str("objective", string(obj.Kind)).
		Float64("expected_return", result.ExpectedReturn).
		Float64("volatility", result.Volatility).
		Int("positions", len(result.Weights)).
		Msg("Optimization complete")

	return result, nil
}

// solveMinVolatility minimizes wᵗΣw subject to Σw=1, bounds and groups.
// extraEq appends additional equality rows (used by the frontier sweep).
func (o *Optimizer) solveMinVolatility(ctx context.Context, stats *domain.Statistics, cons Constraints, extraEq *equality) ([]float64, error) {
	n := stats.Universe.Len()
	problem := QPProblem{
		Q:       scaleMatrix(stats.Covariance, 2),
		C:       make([]float64, n),
		AEq:     [][]float64{ones(n)},
		BEq:     []float64{1},
		Bounds:  cons.BoundsSlice(stats.Universe),
		Initial: inverseVarianceStart(stats),
	}
	problem.AIneq, problem.BIneq = cons.groupRows(stats.Universe)
	if extraEq != nil {
		problem.AEq = append(problem.AEq, extraEq.row)
		problem.BEq = append(problem.BEq, extraEq.value)
	}
	return o.solver.SolveQP(ctx, problem)
}

// solveMaxUtility minimizes λ·wᵗΣw - wᵗμ.
func (o *Optimizer) solveMaxUtility(ctx context.Context, stats *domain.Statistics, cons Constraints, lambda float64) ([]float64, error) {
	if lambda <= 0 {
		lambda = 1
	}
	n := stats.Universe.Len()
	c := make([]float64, n)
	for i, mu := range stats.ExpectedReturn {
		c[i] = -mu
	}
	problem := QPProblem{
		Q:       scaleMatrix(stats.Covariance, 2*lambda),
		C:       c,
		AEq:     [][]float64{ones(n)},
		BEq:     []float64{1},
		Bounds:  cons.BoundsSlice(stats.Universe),
		Initial: inverseVarianceStart(stats),
	}
	problem.AIneq, problem.BIneq = cons.groupRows(stats.Universe)
	return o.solver.SolveQP(ctx, problem)
}

// solveMaxSharpe maximizes the Sharpe ratio via the standard scaling
// transformation: solve min yᵗΣy subject to (μ-rf)ᵗy = 1 and y ≥ 0, with
// the original bounds rewritten as homogeneous inequalities in y, then
// recover w = y / Σy.
func (o *Optimizer) solveMaxSharpe(ctx context.Context, stats *domain.Statistics, cons Constraints, riskFreeRate float64) ([]float64, error) {
	n := stats.Universe.Len()

	excess := make([]float64, n)
	anyPositive := false
	for i, mu := range stats.ExpectedReturn {
		excess[i] = mu - riskFreeRate
		if excess[i] > 0 {
			anyPositive = true
		}
	}
	if !anyPositive {
		return nil, &domain.InfeasibleConstraintsError{
			Bound:  "expected returns",
			Detail: fmt.Sprintf("no asset has expected return above the risk-free rate %.4f", riskFreeRate),
		}
	}

	bounds := cons.BoundsSlice(stats.Universe)

	// Homogenized box constraints: w_i ≤ hi becomes y_i - hi·Σy ≤ 0,
	// and w_i ≥ lo becomes lo·Σy - y_i ≤ 0.
	var aineq [][]float64
	var bineq []float64
	for i := 0; i < n; i++ {
		lo, hi := bounds[i][0], bounds[i][1]
		if hi < 1 {
			row := make([]float64, n)
			for j := range row {
				row[j] = -hi
			}
			row[i] += 1
			aineq = append(aineq, row)
			bineq = append(bineq, 0)
		}
		if lo > 0 {
			row := make([]float64, n)
			for j := range row {
				row[j] = lo
			}
			row[i] -= 1
			aineq = append(aineq, row)
			bineq = append(bineq, 0)
		}
	}

	// Homogenized group constraints.
	groupRows, groupLimits := cons.groupRows(stats.Universe)
	for k, row := range groupRows {
		homogenized := make([]float64, n)
		for j := range homogenized {
			homogenized[j] = row[j] - groupLimits[k]
		}
		aineq = append(aineq, homogenized)
		bineq = append(bineq, 0)
	}

	yBounds := make([][2]float64, n)
	for i := range yBounds {
		yBounds[i] = [2]float64{0, math.Inf(1)}
	}

	// Start from the equal-weight portfolio scaled onto the (μ-rf)ᵗy = 1
	// plane; when its excess return is non-positive, start from the best
	// single asset instead.
	initial := equalWeights(n)
	denom := dot(excess, initial)
	if denom <= 0 {
		best := 0
		for i := 1; i < n; i++ {
			if excess[i] > excess[best] {
				best = i
			}
		}
		initial = make([]float64, n)
		initial[best] = 1
		denom = excess[best]
	}
	for i := range initial {
		initial[i] /= denom
	}

	problem := QPProblem{
		Q:       scaleMatrix(stats.Covariance, 2),
		C:       make([]float64, n),
		AEq:     [][]float64{excess},
		BEq:     []float64{1},
		AIneq:   aineq,
		BIneq:   bineq,
		Bounds:  yBounds,
		Initial: initial,
	}

	y, err := o.solver.SolveQP(ctx, problem)
	if err != nil {
		return nil, err
	}

	scale := 0.0
	for _, v := range y {
		scale += v
	}
	if scale <= 0 {
		return nil, &domain.NonConvergenceError{Iterations: 0, ObjectiveGap: math.Abs(scale)}
	}

	w := make([]float64, n)
	for i := range y {
		w[i] = y[i] / scale
	}
	return projectToBounds(w, bounds), nil
}

// CleanWeights zeroes dust allocations below the configured threshold and
// renormalizes the remainder to sum to 1. An explicit post-processing pass
// so its effect stays independently testable.
func (o *Optimizer) CleanWeights(weights domain.WeightVector) domain.WeightVector {
	cleaned := make(domain.WeightVector, len(weights))
	sum := 0.0
	for symbol, w := range weights {
		if w < o.dustThreshold {
			continue
		}
		cleaned[symbol] = w
		sum += w
	}
	if sum <= 0 {
		return weights
	}
	for symbol := range cleaned {
		cleaned[symbol] /= sum
	}
	return cleaned
}

// PortfolioReturn computes wᵗμ over the statistics universe.
func PortfolioReturn(weights domain.WeightVector, stats *domain.Statistics) float64 {
	w := weights.ToSlice(stats.Universe)
	return dot(stats.ExpectedReturn, w)
}

// PortfolioVariance computes wᵗΣw over the statistics universe.
func PortfolioVariance(weights domain.WeightVector, stats *domain.Statistics) float64 {
	w := weights.ToSlice(stats.Universe)
	variance := 0.0
	for i := range w {
		for j := range w {
			variance += w[i] * stats.Covariance[i][j] * w[j]
		}
	}
	return variance
}

// helpers

type equality struct {
	row   []float64
	value float64
}

func vectorToWeights(x []float64, u *domain.Universe) domain.WeightVector {
	// Clamp stray negatives from the solver and normalize before the
	// dust pass, mirroring the raw solution cleanup.
	sum := 0.0
	clamped := make([]float64, len(x))
	for i, v := range x {
		clamped[i] = math.Max(0, v)
		sum += clamped[i]
	}

	weights := make(domain.WeightVector, len(x))
	for i, symbol := range u.Symbols() {
		if sum > 0 {
			weights[symbol] = clamped[i] / sum
		}
	}
	return weights
}

// enforceBounds clips each weight to its [min, max] interval and pushes
// the resulting sum residual onto assets with remaining slack, held
// positions first so dust removal is not undone. Constraint validation
// guarantees Σmin ≤ 1 ≤ Σmax, so a feasible distribution always exists.
func enforceBounds(weights domain.WeightVector, u *domain.Universe, cons Constraints) domain.WeightVector {
	symbols := u.Symbols()
	n := len(symbols)
	w := make([]float64, n)
	lo := make([]float64, n)
	hi := make([]float64, n)
	held := make([]bool, n)
	for i, symbol := range symbols {
		lo[i], hi[i] = cons.boundsFor(symbol)
		w[i] = math.Min(math.Max(weights[symbol], lo[i]), hi[i])
		held[i] = w[i] > 0
	}

	for pass := 0; pass < 2*n; pass++ {
		residual := 1.0
		for _, v := range w {
			residual -= v
		}
		if math.Abs(residual) <= domain.DefaultWeightSumTolerance/2 {
			break
		}
		slack := boundSlack(w, lo, hi, held, residual)
		if slack <= 0 {
			for i := range held {
				held[i] = true
			}
			slack = boundSlack(w, lo, hi, held, residual)
			if slack <= 0 {
				break
			}
		}
		for i := range w {
			if !held[i] {
				continue
			}
			if residual > 0 {
				w[i] = math.Min(hi[i], w[i]+residual*(hi[i]-w[i])/slack)
			} else {
				w[i] = math.Max(lo[i], w[i]+residual*(w[i]-lo[i])/slack)
			}
		}
	}

	out := make(domain.WeightVector, n)
	for i, symbol := range symbols {
		if w[i] > 0 {
			out[symbol] = w[i]
		}
	}
	return out
}

// boundSlack sums the per-asset headroom on the side the residual needs.
func boundSlack(w, lo, hi []float64, held []bool, residual float64) float64 {
	slack := 0.0
	for i := range w {
		if !held[i] {
			continue
		}
		if residual > 0 {
			slack += hi[i] - w[i]
		} else {
			slack += w[i] - lo[i]
		}
	}
	return slack
}

func scaleMatrix(m [][]float64, factor float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			out[i][j] = factor * v
		}
	}
	return out
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func equalWeights(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1.0 / float64(n)
	}
	return out
}

// inverseVarianceStart warms the solver with risk-parity weights, which
// sit closer to the minimum-variance region than the equal-weight vector
// and are just as deterministic.
func inverseVarianceStart(stats *domain.Statistics) []float64 {
	variances := make([]float64, stats.Universe.Len())
	for i := range variances {
		variances[i] = stats.Covariance[i][i]
	}
	return formulas.InverseVarianceWeights(variances)
}
