package formulas

import (
	"math"
)

// degenerateEps guards ratio denominators: a constant series can leave
// residual variance on the order of 1e-30 from floating-point summation,
// which must still count as zero volatility.
const degenerateEps = 1e-12

// SharpeRatio calculates the annualized Sharpe ratio of a periodic return
// series: (annualized mean return - riskFreeRate) / annualized volatility.
//
// A degenerate series with zero volatility yields 0 rather than an error,
// keeping the function total for constant or empty inputs.
func SharpeRatio(returns []float64, riskFreeRate, periodsPerYear float64) float64 {
	if len(returns) == 0 || periodsPerYear <= 0 {
		return 0
	}

	vol := AnnualizedVolatility(returns, periodsPerYear)
	if vol < degenerateEps {
		return 0
	}

	annualMean := Mean(returns) * periodsPerYear
	return (annualMean - riskFreeRate) / vol
}

// SortinoRatio calculates the annualized Sortino ratio: the same numerator
// as the Sharpe ratio, with downside deviation in the denominator so that
// upside volatility is not penalized.
//
// Returns 0 when the series has no downside periods or no volatility.
func SortinoRatio(returns []float64, riskFreeRate, periodsPerYear float64) float64 {
	if len(returns) == 0 || periodsPerYear <= 0 {
		return 0
	}

	downside := DownsideDeviation(returns, riskFreeRate, periodsPerYear)
	if downside < degenerateEps {
		return 0
	}

	annualMean := Mean(returns) * periodsPerYear
	return (annualMean - riskFreeRate) / downside
}

// DownsideDeviation calculates the annualized standard deviation of only
// the periods whose excess return is negative. The per-period risk-free
// hurdle is the annual rate scaled down by periodsPerYear.
func DownsideDeviation(returns []float64, riskFreeRate, periodsPerYear float64) float64 {
	if len(returns) == 0 || periodsPerYear <= 0 {
		return 0
	}

	periodRF := riskFreeRate / periodsPerYear

	sumSq := 0.0
	count := 0
	for _, r := range returns {
		excess := r - periodRF
		if excess < 0 {
			sumSq += excess * excess
			count++
		}
	}
	if count == 0 {
		return 0
	}

	return math.Sqrt(sumSq/float64(count)) * math.Sqrt(periodsPerYear)
}

// Beta calculates the sensitivity of a portfolio return series to a
// benchmark series: covariance(portfolio, benchmark) / variance(benchmark).
//
// Both series must cover the same aligned window. Returns 0 when the
// benchmark has no variance.
func Beta(portfolio, benchmark []float64) float64 {
	if len(portfolio) == 0 || len(portfolio) != len(benchmark) {
		return 0
	}

	benchVar := Variance(benchmark)
	if benchVar < degenerateEps {
		return 0
	}

	return Covariance(portfolio, benchmark) / benchVar
}
