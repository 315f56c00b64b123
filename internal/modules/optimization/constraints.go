package optimization

import (
	"fmt"
	"sort"

	"github.com/quantumvest/risk-engine/internal/domain"
)

// GroupConstraint bounds the aggregate weight of a named asset group
// (sector, region, asset class).
type GroupConstraint struct {
	Name   string   `json:"name"`
	Assets []string `json:"assets"`
	Lower  float64  `json:"lower"`
	Upper  float64  `json:"upper"`
}

// Constraints configures one optimization call. The zero value means
// long-only with no per-asset caps: every weight in [0, 1].
type Constraints struct {
	// Per-asset weight bounds. Assets absent from the maps use the
	// defaults below.
	MinWeights map[string]float64 `json:"min_weights,omitempty"`
	MaxWeights map[string]float64 `json:"max_weights,omitempty"`
	DefaultMin float64            `json:"default_min"`
	DefaultMax float64            `json:"default_max"` // 0 means 1.0

	Groups []GroupConstraint `json:"groups,omitempty"`

	// RiskTolerance in [0, 1] selects the objective when the caller does
	// not name one explicitly.
	RiskTolerance float64 `json:"risk_tolerance"`
}

// boundsFor resolves the per-asset [min, max] interval.
func (c Constraints) boundsFor(symbol string) (float64, float64) {
	lo := c.DefaultMin
	hi := c.DefaultMax
	if hi == 0 {
		hi = 1.0
	}
	if v, ok := c.MinWeights[symbol]; ok {
		lo = v
	}
	if v, ok := c.MaxWeights[symbol]; ok {
		hi = v
	}
	return lo, hi
}

// BoundsSlice materializes per-asset bounds in universe order.
func (c Constraints) BoundsSlice(u *domain.Universe) [][2]float64 {
	bounds := make([][2]float64, u.Len())
	for i, symbol := range u.Symbols() {
		lo, hi := c.boundsFor(symbol)
		bounds[i] = [2]float64{lo, hi}
	}
	return bounds
}

// Validate rejects constraint sets that reference unknown assets or that
// no weight vector can satisfy. Infeasibility is reported before any
// solver runs so callers get a deterministic error naming the bound.
func (c Constraints) Validate(u *domain.Universe) error {
	for _, bounded := range []map[string]float64{c.MinWeights, c.MaxWeights} {
		for symbol := range bounded {
			if !u.Contains(symbol) {
				return fmt.Errorf("%w: bound references symbol %s outside the universe", domain.ErrDimensionMismatch, symbol)
			}
		}
	}

	minSum := 0.0
	maxSum := 0.0
	for _, symbol := range u.Symbols() {
		lo, hi := c.boundsFor(symbol)
		if lo > hi {
			return &domain.InfeasibleConstraintsError{
				Bound:  symbol,
				Detail: fmt.Sprintf("minimum weight %.4f exceeds maximum %.4f", lo, hi),
			}
		}
		if lo < 0 {
			return &domain.InfeasibleConstraintsError{
				Bound:  symbol,
				Detail: fmt.Sprintf("negative minimum weight %.4f", lo),
			}
		}
		minSum += lo
		maxSum += hi
	}
	if minSum > 1+domain.DefaultWeightSumTolerance {
		return &domain.InfeasibleConstraintsError{
			Bound:  "sum of minimum weights",
			Detail: fmt.Sprintf("minimum weights sum to %.4f, no vector can sum to 1", minSum),
		}
	}
	if maxSum < 1-domain.DefaultWeightSumTolerance {
		return &domain.InfeasibleConstraintsError{
			Bound:  "sum of maximum weights",
			Detail: fmt.Sprintf("maximum weights sum to %.4f, no vector can sum to 1", maxSum),
		}
	}

	for _, group := range c.Groups {
		if group.Lower > group.Upper {
			return &domain.InfeasibleConstraintsError{
				Bound:  "group " + group.Name,
				Detail: fmt.Sprintf("lower bound %.4f exceeds upper bound %.4f", group.Lower, group.Upper),
			}
		}
		groupMinSum := 0.0
		groupMaxSum := 0.0
		for _, symbol := range group.Assets {
			if !u.Contains(symbol) {
				return fmt.Errorf("%w: group %s references symbol %s outside the universe",
					domain.ErrDimensionMismatch, group.Name, symbol)
			}
			lo, hi := c.boundsFor(symbol)
			groupMinSum += lo
			groupMaxSum += hi
		}
		if groupMaxSum < group.Lower {
			return &domain.InfeasibleConstraintsError{
				Bound:  "group " + group.Name,
				Detail: fmt.Sprintf("member maximums sum to %.4f, below the group lower bound %.4f", groupMaxSum, group.Lower),
			}
		}
		if groupMinSum > group.Upper {
			return &domain.InfeasibleConstraintsError{
				Bound:  "group " + group.Name,
				Detail: fmt.Sprintf("member minimums sum to %.4f, above the group upper bound %.4f", groupMinSum, group.Upper),
			}
		}
	}

	return nil
}

// groupRows expands the group constraints into inequality rows over the
// universe ordering: indicator·w ≤ upper and -indicator·w ≤ -lower.
// Rows are emitted in group-name order so problems are deterministic.
func (c Constraints) groupRows(u *domain.Universe) ([][]float64, []float64) {
	if len(c.Groups) == 0 {
		return nil, nil
	}

	groups := make([]GroupConstraint, len(c.Groups))
	copy(groups, c.Groups)
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })

	var rows [][]float64
	var limits []float64

	for _, group := range groups {
		indicator := make([]float64, u.Len())
		for _, symbol := range group.Assets {
			if i, ok := u.Index(symbol); ok {
				indicator[i] = 1
			}
		}

		upper := make([]float64, len(indicator))
		copy(upper, indicator)
		rows = append(rows, upper)
		limits = append(limits, group.Upper)

		if group.Lower > 0 {
			lower := make([]float64, len(indicator))
			for i, v := range indicator {
				lower[i] = -v
			}
			rows = append(rows, lower)
			limits = append(limits, -group.Lower)
		}
	}

	return rows, limits
}
