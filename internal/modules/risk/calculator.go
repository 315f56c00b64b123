package risk

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/quantumvest/risk-engine/internal/domain"
	"github.com/quantumvest/risk-engine/pkg/formulas"
)

// VaRMethod selects how Value at Risk is estimated.
type VaRMethod string

const (
	// MethodHistorical uses the empirical return distribution.
	MethodHistorical VaRMethod = "historical"
	// MethodParametric uses a normal approximation of the distribution.
	MethodParametric VaRMethod = "parametric"
	// MethodMonteCarlo resamples from the fitted mean and deviation.
	MethodMonteCarlo VaRMethod = "montecarlo"
)

// Defaults for the Monte Carlo VaR method.
const (
	DefaultMonteCarloSamples = 10000
	defaultMonteCarloSeed    = 42
)

// DefaultConfidenceLevels are used when a request does not name any.
var DefaultConfidenceLevels = []float64{0.95, 0.99}

// Request describes one risk assessment. Series values are aligned
// periodic returns; the optional benchmark must cover the same window.
type Request struct {
	Weights          domain.WeightVector
	Series           map[string][]float64
	Benchmark        []float64 // optional, required when RequireBeta is set
	ConfidenceLevels []float64
	Method           VaRMethod
	RiskFreeRate     float64 // annual, defaults to 0
	RequireBeta      bool

	// Monte Carlo VaR controls. Zero values take the defaults; the fixed
	// default seed keeps repeated assessments identical.
	MonteCarloSamples int
	Seed              int64
}

// Report is the immutable result of a risk assessment. VaR and expected
// shortfall are keyed by confidence level ("95", "99") and reported as
// positive loss magnitudes.
type Report struct {
	VaR               map[string]float64 `json:"var"`
	ExpectedShortfall map[string]float64 `json:"expected_shortfall"`
	Volatility        float64            `json:"volatility"`
	Beta              *float64           `json:"beta,omitempty"`
	SharpeRatio       float64            `json:"sharpe_ratio"`
	SortinoRatio      float64            `json:"sortino_ratio"`
	MaxDrawdown       float64            `json:"max_drawdown"`
	DownsideDeviation float64            `json:"downside_deviation"`
	Concentration     Concentration      `json:"concentration"`
	Observations      int                `json:"observations"`
	Warnings          []string           `json:"warnings,omitempty"`
}

// Calculator computes portfolio risk metrics. Stateless; every call is a
// pure function of its request.
type Calculator struct {
	periodsPerYear float64
	log            zerolog.Logger
}

// NewCalculator creates a risk metrics calculator.
func NewCalculator(periodsPerYear int, log zerolog.Logger) *Calculator {
	return &Calculator{
		periodsPerYear: float64(periodsPerYear),
		log:            log.With().Str("component", "risk").Logger(),
	}
}

// Compute produces a RiskReport for the requested weights and series.
func (c *Calculator) Compute(req Request) (*Report, error) {
	if len(req.Series) == 0 {
		return nil, fmt.Errorf("no return series provided: %w", domain.ErrInsufficientData)
	}
	if len(req.Weights) == 0 {
		return nil, fmt.Errorf("empty weight vector: %w", domain.ErrDimensionMismatch)
	}
	if err := req.Weights.ValidateSum(0); err != nil {
		return nil, err
	}
	if req.RequireBeta && len(req.Benchmark) == 0 {
		return nil, fmt.Errorf("beta requested without a benchmark series: %w", domain.ErrBenchmarkRequired)
	}

	confidences := req.ConfidenceLevels
	if len(confidences) == 0 {
		confidences = DefaultConfidenceLevels
	}
	for _, confidence := range confidences {
		if confidence <= 0 || confidence >= 1 {
			return nil, fmt.Errorf("confidence level %g outside (0, 1): %w", confidence, domain.ErrDimensionMismatch)
		}
	}

	method := req.Method
	if method == "" {
		method = MethodHistorical
	}

	portfolio, warnings, err := c.portfolioReturns(req.Weights, req.Series)
	if err != nil {
		return nil, err
	}

	if len(req.Benchmark) > 0 && len(req.Benchmark) != len(portfolio) {
		return nil, fmt.Errorf("benchmark has %d observations, portfolio has %d: %w",
			len(req.Benchmark), len(portfolio), domain.ErrMisalignedSeries)
	}

	report := &Report{
		VaR:               make(map[string]float64, len(confidences)),
		ExpectedShortfall: make(map[string]float64, len(confidences)),
		Volatility:        formulas.AnnualizedVolatility(portfolio, c.periodsPerYear),
		SharpeRatio:       formulas.SharpeRatio(portfolio, req.RiskFreeRate, c.periodsPerYear),
		SortinoRatio:      formulas.SortinoRatio(portfolio, req.RiskFreeRate, c.periodsPerYear),
		MaxDrawdown:       formulas.MaxDrawdown(portfolio),
		DownsideDeviation: formulas.DownsideDeviation(portfolio, req.RiskFreeRate, c.periodsPerYear),
		Concentration:     MeasureConcentration(req.Weights),
		Observations:      len(portfolio),
		Warnings:          warnings,
	}

	mu := formulas.Mean(portfolio)
	sigma := formulas.StdDev(portfolio)
	varSource := portfolio
	if method == MethodMonteCarlo {
		varSource = monteCarloReturns(mu, sigma, req.MonteCarloSamples, req.Seed)
	}
	for _, confidence := range confidences {
		key := ConfidenceKey(confidence)
		switch method {
		case MethodParametric:
			report.VaR[key] = formulas.ParametricVaR(mu, sigma, confidence)
		default:
			report.VaR[key] = formulas.HistoricalVaR(varSource, confidence)
		}
		report.ExpectedShortfall[key] = formulas.CalculateCVaR(varSource, confidence)
	}

	if len(req.Benchmark) > 0 {
		beta := formulas.Beta(portfolio, req.Benchmark)
		report.Beta = &beta
	}

	c.log.Debug().
		Int("observations", report.Observations).
		Float64("volatility", report.Volatility).
		Float64("sharpe", report.SharpeRatio).
		Str("method", string(method)).
		Msg("Computed risk report")

	return report, nil
}

// portfolioReturns builds the weighted portfolio return series. Weighted
// symbols missing from the series map fail hard; series without a weight
// contribute zero and are surfaced as a warning.
func (c *Calculator) portfolioReturns(weights domain.WeightVector, series map[string][]float64) ([]float64, []string, error) {
	symbols := make([]string, 0, len(weights))
	for symbol := range weights {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	obs := -1
	for _, symbol := range symbols {
		returns, ok := series[symbol]
		if !ok {
			return nil, nil, fmt.Errorf("no return series for weighted symbol %s: %w", symbol, domain.ErrDimensionMismatch)
		}
		if obs < 0 {
			obs = len(returns)
		} else if len(returns) != obs {
			return nil, nil, fmt.Errorf("series for %s has %d observations, expected %d: %w",
				symbol, len(returns), obs, domain.ErrMisalignedSeries)
		}
	}
	if obs < 1 {
		return nil, nil, fmt.Errorf("return series are empty: %w", domain.ErrInsufficientData)
	}

	var warnings []string
	for symbol := range series {
		if _, weighted := weights[symbol]; !weighted {
			warnings = append(warnings, fmt.Sprintf("series for %s ignored: no weight assigned", symbol))
		}
	}
	sort.Strings(warnings)
	if len(warnings) > 0 {
		c.log.Warn().
			Int("ignored_series", len(warnings)).
			Msg("Return series without weights ignored")
	}

	portfolio := make([]float64, obs)
	for _, symbol := range symbols {
		w := weights[symbol]
		for t, r := range series[symbol] {
			portfolio[t] += w * r
		}
	}

	return portfolio, warnings, nil
}

// monteCarloReturns resamples period returns from the fitted normal.
func monteCarloReturns(mu, sigma float64, samples int, seed int64) []float64 {
	if samples <= 0 {
		samples = DefaultMonteCarloSamples
	}
	if seed == 0 {
		seed = defaultMonteCarloSeed
	}
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, samples)
	for i := range out {
		out[i] = mu + sigma*rng.NormFloat64()
	}
	return out
}

// ConfidenceKey renders a confidence level as a report map key:
// 0.95 -> "95". Facade headlines use it to address the report.
func ConfidenceKey(confidence float64) string {
	return strconv.FormatFloat(confidence*100, 'f', -1, 64)
}
