package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationFromCovariance(t *testing.T) {
	cov := [][]float64{
		{0.04, 0.01},
		{0.01, 0.01},
	}

	corr, err := CorrelationFromCovariance(cov)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, corr[0][0], 1e-12)
	assert.InDelta(t, 1.0, corr[1][1], 1e-12)
	// 0.01 / sqrt(0.04 * 0.01) = 0.5
	assert.InDelta(t, 0.5, corr[0][1], 1e-12)
	assert.InDelta(t, 0.5, corr[1][0], 1e-12)
}

func TestCorrelationFromCovariance_Invalid(t *testing.T) {
	_, err := CorrelationFromCovariance(nil)
	assert.Error(t, err, "empty matrix")

	_, err = CorrelationFromCovariance([][]float64{{0.04, 0.01}})
	assert.Error(t, err, "non-square matrix")

	_, err = CorrelationFromCovariance([][]float64{{0.04, 0.0}, {0.0, 0.0}})
	assert.Error(t, err, "zero variance on diagonal")
}

func TestCorrelationFromCovariance_ClampsRoundingNoise(t *testing.T) {
	// Off-diagonal slightly above the valid bound.
	cov := [][]float64{
		{0.04, 0.0401},
		{0.0401, 0.04},
	}

	corr, err := CorrelationFromCovariance(cov)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, corr[0][1], 1e-12)
}

func TestInverseVarianceWeights(t *testing.T) {
	weights := InverseVarianceWeights([]float64{0.04, 0.01})

	// 1/0.04 = 25, 1/0.01 = 100, total 125.
	assert.InDelta(t, 0.2, weights[0], 1e-12)
	assert.InDelta(t, 0.8, weights[1], 1e-12)
}

func TestInverseVarianceWeights_ZeroVarianceGetsNoWeight(t *testing.T) {
	weights := InverseVarianceWeights([]float64{0.04, 0})

	assert.InDelta(t, 1.0, weights[0], 1e-12)
	assert.InDelta(t, 0.0, weights[1], 1e-12)
}

func TestInverseVarianceWeights_AllZeroFallsBackToEqual(t *testing.T) {
	weights := InverseVarianceWeights([]float64{0, 0})

	assert.InDelta(t, 0.5, weights[0], 1e-12)
	assert.InDelta(t, 0.5, weights[1], 1e-12)
}
