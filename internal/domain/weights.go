package domain

import (
	"fmt"
	"math"
)

// DefaultWeightSumTolerance is the tolerance within which a weight vector
// must sum to 1.0.
const DefaultWeightSumTolerance = 1e-6

// WeightVector maps symbols to portfolio fractions.
type WeightVector map[string]float64

// Sum returns the total of all weights.
func (w WeightVector) Sum() float64 {
	total := 0.0
	for _, v := range w {
		total += v
	}
	return total
}

// ToSlice projects the weights onto the universe ordering. Symbols absent
// from the vector contribute zero.
func (w WeightVector) ToSlice(u *Universe) []float64 {
	out := make([]float64, u.Len())
	for symbol, weight := range w {
		if i, ok := u.Index(symbol); ok {
			out[i] = weight
		}
	}
	return out
}

// ValidateSum checks that weights sum to 1 within tolerance. A tolerance
// of zero selects the default.
func (w WeightVector) ValidateSum(tolerance float64) error {
	if tolerance <= 0 {
		tolerance = DefaultWeightSumTolerance
	}
	sum := w.Sum()
	if math.Abs(sum-1.0) > tolerance {
		return fmt.Errorf("%w: weights sum to %.8f, expected 1.0", ErrDimensionMismatch, sum)
	}
	return nil
}

// ValidateUniverse checks that every weighted symbol belongs to the universe.
func (w WeightVector) ValidateUniverse(u *Universe) error {
	for symbol := range w {
		if !u.Contains(symbol) {
			return fmt.Errorf("%w: weight references symbol %s outside the universe", ErrDimensionMismatch, symbol)
		}
	}
	return nil
}
