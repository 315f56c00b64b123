package optimization

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/quantumvest/risk-engine/internal/domain"
)

// FrontierPoint is one efficient-frontier sample: the minimum-volatility
// portfolio achieving a target expected return.
type FrontierPoint struct {
	ExpectedReturn float64             `json:"expected_return"`
	Volatility     float64             `json:"volatility"`
	Weights        domain.WeightVector `json:"weights"`
}

// EfficientFrontier sweeps target returns between the lowest and highest
// per-asset expected return and solves a minimum-volatility problem with a
// return-equality constraint at each target. Targets that the constraint
// set cannot reach are skipped, so the result may hold fewer than points
// entries.
func (o *Optimizer) EfficientFrontier(ctx context.Context, stats *domain.Statistics, cons Constraints, points int) ([]FrontierPoint, error) {
	if stats == nil {
		return nil, fmt.Errorf("nil statistics: %w", domain.ErrDimensionMismatch)
	}
	if err := stats.Validate(); err != nil {
		return nil, err
	}
	if err := cons.Validate(stats.Universe); err != nil {
		return nil, err
	}
	if points < 2 {
		return nil, fmt.Errorf("frontier needs at least 2 points, got %d: %w", points, domain.ErrDimensionMismatch)
	}

	low, high := returnRange(stats.ExpectedReturn)
	if high <= low {
		return nil, fmt.Errorf("degenerate expected-return range [%.6f, %.6f]: %w", low, high, domain.ErrInsufficientData)
	}

	frontier := make([]FrontierPoint, 0, points)
	step := (high - low) / float64(points-1)

	for k := 0; k < points; k++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("frontier sweep cancelled: %w", domain.ErrTimeout)
		}

		target := low + float64(k)*step
		x, err := o.solveMinVolatility(ctx, stats, cons, &equality{row: stats.ExpectedReturn, value: target})
		if err != nil {
			if errors.Is(err, domain.ErrTimeout) {
				return nil, err
			}
			// Unreachable target under the given bounds; skip the point.
			o.log.Debug().
				Float64("target_return", target).
				Err(err).
				Msg("Frontier target infeasible")
			continue
		}

		weights := enforceBounds(o.CleanWeights(vectorToWeights(x, stats.Universe)), stats.Universe, cons)
		if err := weights.ValidateSum(0); err != nil {
			continue
		}

		frontier = append(frontier, FrontierPoint{
			ExpectedReturn: PortfolioReturn(weights, stats),
			Volatility:     math.Sqrt(math.Max(PortfolioVariance(weights, stats), 0)),
			Weights:        weights,
		})
	}

	if len(frontier) == 0 {
		return nil, fmt.Errorf("no frontier target was feasible: %w", domain.ErrInfeasibleConstraints)
	}

	o.log.Info().
		Int("requested_points", points).
		Int("feasible_points", len(frontier)).
		Msg("Efficient frontier computed")

	return frontier, nil
}

func returnRange(mu []float64) (float64, float64) {
	low, high := math.Inf(1), math.Inf(-1)
	for _, v := range mu {
		low = math.Min(low, v)
		high = math.Max(high, v)
	}
	return low, high
}
