package optimization

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumvest/risk-engine/internal/domain"
)

func newTestOptimizer() *Optimizer {
	return NewOptimizer(NewPenaltySolver(0, 0), 0, zerolog.Nop())
}

// threeAssetStats builds statistics with distinct variances and mild
// correlation so minimum volatility has an unambiguous pull toward A.
func threeAssetStats(t *testing.T) *domain.Statistics {
	t.Helper()
	universe, err := domain.NewUniverse([]string{"A", "B", "C"})
	require.NoError(t, err)

	stats := &domain.Statistics{
		Universe:       universe,
		ExpectedReturn: []float64{0.06, 0.10, 0.14},
		Covariance: [][]float64{
			{0.04, 0.006, 0.010},
			{0.006, 0.09, 0.015},
			{0.010, 0.015, 0.25},
		},
		PeriodsPerYear: 252,
		Observations:   252,
	}
	require.NoError(t, stats.Validate())
	return stats
}

func TestOptimize_MinVolatility_SumAndBounds(t *testing.T) {
	opt := newTestOptimizer()

	result, err := opt.Optimize(context.Background(), threeAssetStats(t), Constraints{}, Objective{Kind: MinVolatility})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.NoError(t, result.Weights.ValidateSum(1e-6))
	for symbol, w := range result.Weights {
		assert.GreaterOrEqual(t, w, 0.0, "weight for %s", symbol)
		assert.LessOrEqual(t, w, 1.0+1e-9, "weight for %s", symbol)
	}
}

func TestOptimize_MinVolatility_BeatsEqualWeight(t *testing.T) {
	opt := newTestOptimizer()
	stats := threeAssetStats(t)

	result, err := opt.Optimize(context.Background(), stats, Constraints{}, Objective{Kind: MinVolatility})
	require.NoError(t, err)

	equal := domain.WeightVector{"A": 1.0 / 3, "B": 1.0 / 3, "C": 1.0 / 3}
	assert.LessOrEqual(t, PortfolioVariance(result.Weights, stats), PortfolioVariance(equal, stats)+1e-9,
		"minimum-volatility portfolio must not exceed equal-weight variance")

	// The low-variance asset should dominate.
	assert.Greater(t, result.Weights["A"], result.Weights["C"])
}

func TestOptimize_RespectsPerAssetBounds(t *testing.T) {
	opt := newTestOptimizer()

	cons := Constraints{
		MaxWeights: map[string]float64{"A": 0.40},
		MinWeights: map[string]float64{"C": 0.10},
	}
	result, err := opt.Optimize(context.Background(), threeAssetStats(t), cons, Objective{Kind: MinVolatility})
	require.NoError(t, err)

	assert.LessOrEqual(t, result.Weights["A"], 0.40+1e-9)
	assert.GreaterOrEqual(t, result.Weights["C"], 0.10-1e-9)
	assert.NoError(t, result.Weights.ValidateSum(1e-6))
}

func TestOptimize_BoundsHoldAfterCleaning(t *testing.T) {
	opt := NewOptimizer(NewPenaltySolver(0, 0), DefaultDustThreshold, zerolog.Nop())

	cons := Constraints{
		MaxWeights: map[string]float64{"A": 0.30},
		MinWeights: map[string]float64{"B": 0.25},
	}
	stats := threeAssetStats(t)
	result, err := opt.Optimize(context.Background(), stats, cons, Objective{Kind: MinVolatility})
	require.NoError(t, err)

	require.NoError(t, result.Weights.ValidateSum(1e-6))
	for _, symbol := range stats.Universe.Symbols() {
		lo, hi := cons.boundsFor(symbol)
		w := result.Weights[symbol]
		assert.GreaterOrEqual(t, w, lo-1e-9, "weight for %s", symbol)
		assert.LessOrEqual(t, w, hi+1e-9, "weight for %s", symbol)
	}
}

func TestEnforceBounds_ClipsAndRedistributes(t *testing.T) {
	universe, err := domain.NewUniverse([]string{"A", "B", "C"})
	require.NoError(t, err)

	capped := enforceBounds(
		domain.WeightVector{"A": 0.40, "B": 0.35, "C": 0.25},
		universe,
		Constraints{MaxWeights: map[string]float64{"A": 0.30}},
	)
	assert.InDelta(t, 0.30, capped["A"], 1e-12)
	assert.InDelta(t, 1.0, capped["A"]+capped["B"]+capped["C"], 1e-9)
	assert.Greater(t, capped["B"], 0.35)
	assert.Greater(t, capped["C"], 0.25)

	floored := enforceBounds(
		domain.WeightVector{"A": 0.6, "B": 0.4},
		universe,
		Constraints{MinWeights: map[string]float64{"C": 0.10}},
	)
	assert.InDelta(t, 0.10, floored["C"], 1e-12)
	assert.InDelta(t, 1.0, floored["A"]+floored["B"]+floored["C"], 1e-9)
	assert.Less(t, floored["A"], 0.6)
	assert.Less(t, floored["B"], 0.4)
}

func TestOptimize_GroupConstraint(t *testing.T) {
	opt := newTestOptimizer()

	cons := Constraints{
		Groups: []GroupConstraint{
			{Name: "tech", Assets: []string{"B", "C"}, Lower: 0.3, Upper: 0.5},
		},
	}
	result, err := opt.Optimize(context.Background(), threeAssetStats(t), cons, Objective{Kind: MinVolatility})
	require.NoError(t, err)

	groupWeight := result.Weights["B"] + result.Weights["C"]
	assert.GreaterOrEqual(t, groupWeight, 0.3-1e-2)
	assert.LessOrEqual(t, groupWeight, 0.5+1e-2)
}

func TestOptimize_MaxSharpe_PrefersHigherReturn(t *testing.T) {
	opt := newTestOptimizer()

	universe, err := domain.NewUniverse([]string{"HI", "LO"})
	require.NoError(t, err)
	stats := &domain.Statistics{
		Universe:       universe,
		ExpectedReturn: []float64{0.10, 0.05},
		Covariance: [][]float64{
			{0.04, 0},
			{0, 0.04},
		},
		PeriodsPerYear: 252,
		Observations:   252,
	}

	result, err := opt.Optimize(context.Background(), stats, Constraints{}, Objective{Kind: MaxSharpe})
	require.NoError(t, err)

	// Uncorrelated equal-variance assets: optimal weights are
	// proportional to expected returns, so HI gets about two thirds.
	assert.Greater(t, result.Weights["HI"], 0.55)
	assert.NoError(t, result.Weights.ValidateSum(1e-6))
}

func TestOptimize_MaxSharpe_NoPositiveExcessReturn(t *testing.T) {
	opt := newTestOptimizer()

	universe, err := domain.NewUniverse([]string{"A", "B"})
	require.NoError(t, err)
	stats := &domain.Statistics{
		Universe:       universe,
		ExpectedReturn: []float64{-0.02, -0.05},
		Covariance:     [][]float64{{0.04, 0}, {0, 0.04}},
		PeriodsPerYear: 252,
		Observations:   252,
	}

	_, err = opt.Optimize(context.Background(), stats, Constraints{}, Objective{Kind: MaxSharpe})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInfeasibleConstraints)
}

func TestOptimize_MaxUtility_RiskAversionShiftsAllocation(t *testing.T) {
	opt := newTestOptimizer()
	stats := threeAssetStats(t)

	aggressive, err := opt.Optimize(context.Background(), stats, Constraints{}, Objective{Kind: MaxUtility, RiskAversion: 0.7})
	require.NoError(t, err)
	cautious, err := opt.Optimize(context.Background(), stats, Constraints{}, Objective{Kind: MaxUtility, RiskAversion: 20})
	require.NoError(t, err)

	// Heavier risk aversion moves weight out of the high-return,
	// high-variance asset C.
	assert.LessOrEqual(t, cautious.Weights["C"], aggressive.Weights["C"]+1e-6)
	assert.LessOrEqual(t, cautious.Volatility, aggressive.Volatility+1e-9)
}

func TestOptimize_InfeasibleMinimumWeights(t *testing.T) {
	opt := newTestOptimizer()

	cons := Constraints{
		MinWeights: map[string]float64{"A": 0.5, "B": 0.4, "C": 0.3},
	}
	_, err := opt.Optimize(context.Background(), threeAssetStats(t), cons, Objective{Kind: MinVolatility})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInfeasibleConstraints)

	var infeasible *domain.InfeasibleConstraintsError
	require.ErrorAs(t, err, &infeasible)
	assert.Equal(t, "sum of minimum weights", infeasible.Bound)
}

func TestOptimize_InfeasibleMinAboveMax(t *testing.T) {
	opt := newTestOptimizer()

	cons := Constraints{
		MinWeights: map[string]float64{"A": 0.6},
		MaxWeights: map[string]float64{"A": 0.2},
	}
	_, err := opt.Optimize(context.Background(), threeAssetStats(t), cons, Objective{Kind: MinVolatility})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInfeasibleConstraints)
}

func TestOptimize_UnknownSymbolInConstraints(t *testing.T) {
	opt := newTestOptimizer()

	cons := Constraints{MinWeights: map[string]float64{"MISSING": 0.1}}
	_, err := opt.Optimize(context.Background(), threeAssetStats(t), cons, Objective{Kind: MinVolatility})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestOptimize_Idempotent(t *testing.T) {
	opt := newTestOptimizer()
	stats := threeAssetStats(t)

	first, err := opt.Optimize(context.Background(), stats, Constraints{}, Objective{Kind: MinVolatility})
	require.NoError(t, err)
	second, err := opt.Optimize(context.Background(), stats, Constraints{}, Objective{Kind: MinVolatility})
	require.NoError(t, err)

	assert.Equal(t, first.Weights, second.Weights, "deterministic problem must yield identical weights")
	assert.Equal(t, first.Volatility, second.Volatility)
}

func TestObjectiveForTolerance(t *testing.T) {
	tests := []struct {
		tolerance float64
		want      ObjectiveKind
	}{
		{0.0, MinVolatility},
		{0.29, MinVolatility},
		{0.3, MaxSharpe},
		{0.69, MaxSharpe},
		{0.7, MaxUtility},
		{1.0, MaxUtility},
	}
	for _, tt := range tests {
		obj := ObjectiveForTolerance(tt.tolerance)
		assert.Equal(t, tt.want, obj.Kind, "tolerance %.2f", tt.tolerance)
		if tt.want == MaxUtility {
			assert.Equal(t, tt.tolerance, obj.RiskAversion)
		}
	}
}

func TestOptimize_DefaultObjectiveFollowsTolerance(t *testing.T) {
	opt := newTestOptimizer()

	result, err := opt.Optimize(context.Background(), threeAssetStats(t), Constraints{RiskTolerance: 0.1}, Objective{})
	require.NoError(t, err)
	assert.Equal(t, MinVolatility, result.Objective)
}

func TestCleanWeights(t *testing.T) {
	opt := NewOptimizer(NewPenaltySolver(0, 0), 0.01, zerolog.Nop())

	cleaned := opt.CleanWeights(domain.WeightVector{
		"A": 0.595,
		"B": 0.40,
		"C": 0.005, // dust
	})

	assert.NotContains(t, cleaned, "C")
	assert.NoError(t, cleaned.ValidateSum(1e-9))
	assert.InDelta(t, 0.595/0.995, cleaned["A"], 1e-12)
}

func TestEfficientFrontier(t *testing.T) {
	opt := newTestOptimizer()
	stats := threeAssetStats(t)

	frontier, err := opt.EfficientFrontier(context.Background(), stats, Constraints{}, 5)
	require.NoError(t, err)
	require.NotEmpty(t, frontier)

	for _, point := range frontier {
		assert.NoError(t, point.Weights.ValidateSum(1e-6))
		assert.GreaterOrEqual(t, point.Volatility, 0.0)
	}

	// Volatility grows toward the high-return end of the frontier.
	last := frontier[len(frontier)-1]
	first := frontier[0]
	assert.GreaterOrEqual(t, last.ExpectedReturn, first.ExpectedReturn)
}

func TestEfficientFrontier_RejectsTooFewPoints(t *testing.T) {
	opt := newTestOptimizer()

	_, err := opt.EfficientFrontier(context.Background(), threeAssetStats(t), Constraints{}, 1)
	require.Error(t, err)
}
