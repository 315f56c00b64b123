package formulas

import (
	"gonum.org/v1/gonum/stat/distuv"
)

// HistoricalVaR calculates Value at Risk from an empirical return
// distribution at the given confidence level.
//
// The threshold is the linearly interpolated (1-confidence) percentile of
// the returns. The result is reported as a loss magnitude: a positive
// value means a loss, so VaR at 99% >= VaR at 95% for the same series.
//
// Args:
//   - returns: Historical periodic returns (negative values are losses)
//   - confidence: Confidence level (e.g., 0.95 for 95%)
func HistoricalVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}
	return -Quantile(returns, 1.0-confidence)
}

// ParametricVaR calculates Value at Risk under a normal approximation of
// the return distribution, reported as a loss magnitude.
//
// Formula: -(mu + sigma * z), where z is the (1-confidence) quantile of
// the standard normal distribution.
func ParametricVaR(mu, sigma, confidence float64) float64 {
	if sigma < 0 {
		return 0.0
	}
	z := distuv.Normal{Mu: 0, Sigma: 1}.Quantile(1.0 - confidence)
	return -(mu + sigma*z)
}

// CalculateCVaR calculates Conditional Value at Risk (expected shortfall)
// at the specified confidence level: the mean of all observations at or
// below the VaR threshold, reported as a loss magnitude.
//
// For any series with at least one tail observation, CVaR >= VaR at the
// same confidence level.
func CalculateCVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}
	if len(returns) == 1 {
		return -returns[0]
	}

	threshold := Quantile(returns, 1.0-confidence)

	sum := 0.0
	count := 0
	for _, r := range returns {
		if r <= threshold {
			sum += r
			count++
		}
	}

	// The interpolated threshold always sits at or above the worst
	// observation, so the tail is never empty. Guard anyway.
	if count == 0 {
		return HistoricalVaR(returns, confidence)
	}

	return -(sum / float64(count))
}
