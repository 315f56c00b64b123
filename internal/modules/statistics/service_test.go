package statistics

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumvest/risk-engine/internal/domain"
)

func newTestService(minObs int) *Service {
	return NewService(252, minObs, zerolog.Nop())
}

// alternating returns around a mean, enough observations for derivation
func syntheticSeries(mean, amplitude float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = mean + amplitude
		} else {
			out[i] = mean - amplitude
		}
	}
	return out
}

func TestDerive_AnnualizesMeanReturns(t *testing.T) {
	svc := newTestService(10)

	series := map[string][]float64{
		"AAPL":  syntheticSeries(0.001, 0.01, 40),
		"GOOGL": syntheticSeries(0.002, 0.02, 40),
	}

	stats, err := svc.Derive(series)
	require.NoError(t, err)
	require.NotNil(t, stats)

	symbols := stats.Universe.Symbols()
	require.Equal(t, []string{"AAPL", "GOOGL"}, symbols, "universe should be alphabetical")

	assert.InDelta(t, 0.001*252, stats.ExpectedReturn[0], 1e-9)
	assert.InDelta(t, 0.002*252, stats.ExpectedReturn[1], 1e-9)
	assert.Equal(t, 40, stats.Observations)
}

func TestDerive_MisalignedSeries(t *testing.T) {
	svc := newTestService(10)

	series := map[string][]float64{
		"AAPL":  syntheticSeries(0.001, 0.01, 40),
		"GOOGL": syntheticSeries(0.002, 0.02, 39),
	}

	_, err := svc.Derive(series)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMisalignedSeries)
}

func TestDerive_InsufficientData(t *testing.T) {
	svc := newTestService(30)

	series := map[string][]float64{
		"AAPL": syntheticSeries(0.001, 0.01, 10),
	}

	_, err := svc.Derive(series)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestDerive_EmptyInput(t *testing.T) {
	svc := newTestService(10)

	_, err := svc.Derive(map[string][]float64{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestDerive_CovarianceSymmetricAndAligned(t *testing.T) {
	svc := newTestService(10)

	series := map[string][]float64{
		"C": syntheticSeries(0.001, 0.012, 60),
		"A": syntheticSeries(0.0005, 0.008, 60),
		"B": syntheticSeries(0.0015, 0.02, 60),
	}

	stats, err := svc.Derive(series)
	require.NoError(t, err)

	require.Equal(t, []string{"A", "B", "C"}, stats.Universe.Symbols())
	require.Len(t, stats.Covariance, 3)

	for i := 0; i < 3; i++ {
		require.Len(t, stats.Covariance[i], 3)
		assert.GreaterOrEqual(t, stats.Covariance[i][i], 0.0, "variances must be non-negative")
		for j := 0; j < 3; j++ {
			assert.InDelta(t, stats.Covariance[j][i], stats.Covariance[i][j], 1e-12, "covariance must be symmetric")
		}
	}

	require.NoError(t, stats.Validate())
}

func TestDerive_ShrinkageDampsOffDiagonals(t *testing.T) {
	svc := newTestService(10)

	// Two perfectly correlated assets so the sample off-diagonal is large.
	base := syntheticSeries(0.001, 0.015, 40)
	scaled := make([]float64, len(base))
	for i, r := range base {
		scaled[i] = 2 * r
	}
	series := map[string][]float64{"X": base, "Y": scaled}

	full, err := svc.DeriveWithIntensity(series, 0)
	require.NoError(t, err)
	damped, err := svc.DeriveWithIntensity(series, 0.5)
	require.NoError(t, err)

	assert.InDelta(t, full.Covariance[0][0], damped.Covariance[0][0], 1e-12,
		"diagonal target preserves variances")
	assert.InDelta(t, 0.5*full.Covariance[0][1], damped.Covariance[0][1], 1e-12,
		"off-diagonals shrink linearly with intensity")
}

func TestDerive_AutoShrinkageOnlyWhenDataScarce(t *testing.T) {
	svc := newTestService(5)

	// 4 assets, 40 observations: observations >= 2x assets, no shrinkage.
	rich := map[string][]float64{
		"A": syntheticSeries(0.001, 0.01, 40),
		"B": syntheticSeries(0.002, 0.02, 40),
		"C": syntheticSeries(0.0015, 0.012, 40),
		"D": syntheticSeries(0.0005, 0.018, 40),
	}
	stats, err := svc.Derive(rich)
	require.NoError(t, err)
	assert.Equal(t, 0.0, stats.Shrinkage)

	// 4 assets, 6 observations: scarce data triggers shrinkage.
	scarce := map[string][]float64{
		"A": syntheticSeries(0.001, 0.01, 6),
		"B": syntheticSeries(0.002, 0.02, 6),
		"C": syntheticSeries(0.0015, 0.012, 6),
		"D": syntheticSeries(0.0005, 0.018, 6),
	}
	stats, err = svc.Derive(scarce)
	require.NoError(t, err)
	assert.Greater(t, stats.Shrinkage, 0.0)
	assert.LessOrEqual(t, stats.Shrinkage, 1.0)
}

func TestDeriveWithIntensity_RejectsOutOfRange(t *testing.T) {
	svc := newTestService(5)
	series := map[string][]float64{"A": syntheticSeries(0.001, 0.01, 10)}

	_, err := svc.DeriveWithIntensity(series, 1.5)
	assert.Error(t, err)
	_, err = svc.DeriveWithIntensity(series, -0.1)
	assert.Error(t, err)
}

func TestHighCorrelations(t *testing.T) {
	svc := newTestService(5)

	base := syntheticSeries(0.001, 0.015, 40)
	mirrored := make([]float64, len(base))
	uncorrelated := make([]float64, len(base))
	for i, r := range base {
		mirrored[i] = r * 1.5
		// quarter-period phase shift breaks the correlation
		if (i/2)%2 == 0 {
			uncorrelated[i] = 0.001
		} else {
			uncorrelated[i] = -0.001
		}
	}

	stats, err := svc.DeriveWithIntensity(map[string][]float64{
		"A": base,
		"B": mirrored,
		"C": uncorrelated,
	}, 0)
	require.NoError(t, err)

	pairs := svc.HighCorrelations(stats, 0.9)
	require.Len(t, pairs, 1)
	assert.Equal(t, "A", pairs[0].Symbol1)
	assert.Equal(t, "B", pairs[0].Symbol2)
	assert.InDelta(t, 1.0, pairs[0].Correlation, 1e-6)
}

func TestAutoShrinkageIntensity(t *testing.T) {
	assert.Equal(t, 0.0, autoShrinkageIntensity(3, 252))
	assert.Equal(t, 0.0, autoShrinkageIntensity(5, 10)) // boundary: obs == 2*assets
	assert.InDelta(t, 5.0/9.0, autoShrinkageIntensity(5, 9), 1e-12)
	assert.InDelta(t, 1.0, autoShrinkageIntensity(10, 5), 1e-12)
	assert.False(t, math.IsNaN(autoShrinkageIntensity(0, 0)))
}
