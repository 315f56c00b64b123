package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUniverse(t *testing.T) {
	u, err := NewUniverse([]string{"AAPL", "GOOGL", "TLT"})
	require.NoError(t, err)

	assert.Equal(t, 3, u.Len())
	assert.Equal(t, []string{"AAPL", "GOOGL", "TLT"}, u.Symbols())

	i, ok := u.Index("GOOGL")
	require.True(t, ok)
	assert.Equal(t, 1, i)

	assert.True(t, u.Contains("TLT"))
	assert.False(t, u.Contains("MSFT"))
}

func TestNewUniverse_Rejections(t *testing.T) {
	_, err := NewUniverse(nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = NewUniverse([]string{"AAPL", ""})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = NewUniverse([]string{"AAPL", "AAPL"})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestWeightVector_ToSlice(t *testing.T) {
	u, err := NewUniverse([]string{"AAPL", "GOOGL", "TLT"})
	require.NoError(t, err)

	w := WeightVector{"GOOGL": 0.7, "AAPL": 0.3}
	assert.Equal(t, []float64{0.3, 0.7, 0}, w.ToSlice(u))
}

func TestWeightVector_ValidateSum(t *testing.T) {
	assert.NoError(t, WeightVector{"A": 0.6, "B": 0.4}.ValidateSum(0))
	assert.NoError(t, WeightVector{"A": 0.6, "B": 0.4 + 1e-9}.ValidateSum(0))
	assert.ErrorIs(t, WeightVector{"A": 0.6}.ValidateSum(0), ErrDimensionMismatch)
}

func TestWeightsFromHoldings(t *testing.T) {
	weights, total, err := WeightsFromHoldings([]Holding{
		{Symbol: "AAPL", MarketValue: 6000},
		{Symbol: "GOOGL", MarketValue: 4000},
	})
	require.NoError(t, err)

	assert.InDelta(t, 10000.0, total, 1e-9)
	assert.InDelta(t, 0.6, weights["AAPL"], 1e-12)
	assert.InDelta(t, 0.4, weights["GOOGL"], 1e-12)
	assert.NoError(t, weights.ValidateSum(0))
}

func TestWeightsFromHoldings_MergesDuplicates(t *testing.T) {
	weights, total, err := WeightsFromHoldings([]Holding{
		{Symbol: "AAPL", MarketValue: 3000},
		{Symbol: "AAPL", MarketValue: 3000},
		{Symbol: "GOOGL", MarketValue: 4000},
	})
	require.NoError(t, err)

	assert.InDelta(t, 10000.0, total, 1e-9)
	assert.InDelta(t, 0.6, weights["AAPL"], 1e-12)
}

func TestWeightsFromHoldings_Rejections(t *testing.T) {
	_, _, err := WeightsFromHoldings(nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, _, err = WeightsFromHoldings([]Holding{{Symbol: "", MarketValue: 100}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, _, err = WeightsFromHoldings([]Holding{{Symbol: "AAPL", MarketValue: -1}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, _, err = WeightsFromHoldings([]Holding{{Symbol: "AAPL", MarketValue: 0}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestErrorWrapping(t *testing.T) {
	infeasible := &InfeasibleConstraintsError{Bound: "min_weights", Detail: "sum exceeds 1"}
	assert.ErrorIs(t, infeasible, ErrInfeasibleConstraints)

	var target *InfeasibleConstraintsError
	require.True(t, errors.As(error(infeasible), &target))
	assert.Equal(t, "min_weights", target.Bound)

	nonConv := &NonConvergenceError{Iterations: 1000, ObjectiveGap: 0.5}
	assert.ErrorIs(t, nonConv, ErrNonConvergence)
}
