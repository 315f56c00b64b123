package statistics

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/quantumvest/risk-engine/internal/domain"
	"github.com/quantumvest/risk-engine/pkg/formulas"
)

// Constants for statistics configuration
const (
	DefaultMinObservations   = 30
	HighCorrelationThreshold = 0.80 // 80% correlation is considered "high"
)

// Service derives expected-return vectors and covariance matrices from
// aligned return series. Every call builds a fresh domain.Statistics; no
// state is kept between calls.
type Service struct {
	periodsPerYear  float64
	minObservations int
	log             zerolog.Logger
}

// CorrelationPair records a pair of assets whose estimated correlation
// exceeds a diagnostic threshold.
type CorrelationPair struct {
	Symbol1     string  `json:"symbol1"`
	Symbol2     string  `json:"symbol2"`
	Correlation float64 `json:"correlation"`
}

// NewService creates a statistics service.
func NewService(periodsPerYear, minObservations int, log zerolog.Logger) *Service {
	if minObservations < 2 {
		minObservations = DefaultMinObservations
	}
	return &Service{
		periodsPerYear:  float64(periodsPerYear),
		minObservations: minObservations,
		log:             log.With().Str("component", "statistics").Logger(),
	}
}

// Derive computes annualized expected returns and a shrunk covariance
// matrix from per-asset return series. The shrinkage intensity is chosen
// automatically from the ratio of assets to observations.
//
// All series must cover the same window: same observation count, same
// ordering. Symbols are ordered alphabetically in the result so that the
// return vector and covariance matrix stay aligned by construction.
func (s *Service) Derive(series map[string][]float64) (*domain.Statistics, error) {
	return s.derive(series, -1)
}

// DeriveWithIntensity computes statistics with a caller-supplied shrinkage
// intensity in [0, 1] instead of the automatic heuristic.
func (s *Service) DeriveWithIntensity(series map[string][]float64, intensity float64) (*domain.Statistics, error) {
	if intensity < 0 || intensity > 1 {
		return nil, fmt.Errorf("shrinkage intensity %g outside [0, 1]", intensity)
	}
	return s.derive(series, intensity)
}

func (s *Service) derive(series map[string][]float64, intensity float64) (*domain.Statistics, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("no return series provided: %w", domain.ErrInsufficientData)
	}

	symbols := make([]string, 0, len(series))
	for symbol := range series {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	universe, err := domain.NewUniverse(symbols)
	if err != nil {
		return nil, err
	}

	// 1. Validate alignment: every series must have the same length.
	obs := len(series[symbols[0]])
	for _, symbol := range symbols {
		if got := len(series[symbol]); got != obs {
			return nil, fmt.Errorf("series for %s has %d observations, expected %d: %w",
				symbol, got, obs, domain.ErrMisalignedSeries)
		}
	}

	if obs < s.minObservations {
		return nil, fmt.Errorf("only %d observations available (need at least %d): %w",
			obs, s.minObservations, domain.ErrInsufficientData)
	}

	s.log.Debug().
		Int("num_symbols", len(symbols)).
		Int("observations", obs).
		Msg("Deriving return statistics")

	// 2. Annualized expected returns: per-period mean scaled by periodicity.
	mu := make([]float64, len(symbols))
	for i, symbol := range symbols {
		mu[i] = stat.Mean(series[symbol], nil) * s.periodsPerYear
	}

	// 3. Sample covariance, annualized by the same periodicity.
	sampleCov := sampleCovariance(series, symbols)
	for i := range sampleCov {
		for j := range sampleCov[i] {
			sampleCov[i][j] *= s.periodsPerYear
		}
	}

	// 4. Shrink toward the diagonal target for conditioning.
	if intensity < 0 {
		intensity = autoShrinkageIntensity(len(symbols), obs)
	}
	cov := shrinkTowardDiagonal(sampleCov, intensity)

	s.log.Info().
		Int("num_symbols", len(symbols)).
		Int("observations", obs).
		Float64("shrinkage", intensity).
		Msg("Derived return statistics")

	stats := &domain.Statistics{
		Universe:       universe,
		ExpectedReturn: mu,
		Covariance:     cov,
		PeriodsPerYear: int(s.periodsPerYear),
		Observations:   obs,
		Shrinkage:      intensity,
	}
	if err := stats.Validate(); err != nil {
		return nil, err
	}
	return stats, nil
}

// HighCorrelations extracts asset pairs whose correlation implied by the
// covariance matrix exceeds the threshold in absolute value.
func (s *Service) HighCorrelations(stats *domain.Statistics, threshold float64) []CorrelationPair {
	if stats == nil || stats.Universe == nil {
		return []CorrelationPair{}
	}
	if threshold <= 0 {
		threshold = HighCorrelationThreshold
	}

	symbols := stats.Universe.Symbols()
	pairs := make([]CorrelationPair, 0)

	corr, err := formulas.CorrelationFromCovariance(stats.Covariance)
	if err != nil {
		return pairs
	}

	for i := 0; i < len(corr); i++ {
		for j := i + 1; j < len(corr); j++ {
			correlation := corr[i][j]
			if math.Abs(correlation) >= threshold {
				pairs = append(pairs, CorrelationPair{
					Symbol1:     symbols[i],
					Symbol2:     symbols[j],
					Correlation: correlation,
				})

				s.log.Debug().
					Str("symbol1", symbols[i]).
					Str("symbol2", symbols[j]).
					Float64("correlation", correlation).
					Msg("High correlation detected")
			}
		}
	}

	return pairs
}

// sampleCovariance calculates the sample covariance matrix over the given
// symbol ordering. Element (i,j) is the covariance between symbols[i] and
// symbols[j], with the N-1 denominator.
func sampleCovariance(series map[string][]float64, symbols []string) [][]float64 {
	n := len(symbols)
	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		ri := series[symbols[i]]
		for j := i; j < n; j++ {
			rj := series[symbols[j]]
			c := stat.Covariance(ri, rj, nil)
			cov[i][j] = c
			if i != j {
				cov[j][i] = c
			}
		}
	}

	return cov
}

// autoShrinkageIntensity picks a shrinkage intensity from the ratio of
// assets to observations. With plenty of data (observations at least twice
// the asset count) no shrinkage is applied; otherwise the intensity grows
// with the ratio, clamped to [0, 1].
func autoShrinkageIntensity(numAssets, numObservations int) float64 {
	if numObservations <= 0 {
		return 1.0
	}
	if numObservations >= 2*numAssets {
		return 0.0
	}
	intensity := float64(numAssets) / float64(numObservations)
	return math.Min(1.0, math.Max(0.0, intensity))
}

// shrinkTowardDiagonal blends the sample covariance with its own diagonal:
// Σ_shrunk = (1-δ) * Σ_sample + δ * diag(Σ_sample). Off-diagonal noise is
// damped while per-asset variances are preserved, which keeps the matrix
// well conditioned when observations are scarce.
func shrinkTowardDiagonal(sampleCov [][]float64, intensity float64) [][]float64 {
	n := len(sampleCov)
	shrunk := make([][]float64, n)
	for i := 0; i < n; i++ {
		shrunk[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			if i == j {
				shrunk[i][j] = sampleCov[i][j]
			} else {
				shrunk[i][j] = (1 - intensity) * sampleCov[i][j]
			}
		}
	}
	return shrunk
}
