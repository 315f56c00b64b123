package formulas

import (
	"fmt"
	"math"
)

// CorrelationFromCovariance converts a covariance matrix into a
// correlation matrix: corr(i,j) = cov(i,j) / sqrt(cov(i,i) * cov(j,j)).
// Off-diagonal entries are clamped to [-1, 1] to absorb rounding noise.
func CorrelationFromCovariance(cov [][]float64) ([][]float64, error) {
	n := len(cov)
	if n == 0 {
		return nil, fmt.Errorf("empty covariance matrix")
	}
	for i := range cov {
		if len(cov[i]) != n {
			return nil, fmt.Errorf("covariance matrix is not square")
		}
	}

	vars := make([]float64, n)
	for i := range cov {
		v := cov[i][i]
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid variance %v on diagonal at %d", v, i)
		}
		vars[i] = v
	}

	corr := make([][]float64, n)
	for i := range corr {
		corr[i] = make([]float64, n)
		corr[i][i] = 1.0
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			val := cov[i][j] / math.Sqrt(vars[i]*vars[j])
			val = math.Max(-1.0, math.Min(1.0, val))
			corr[i][j] = val
			corr[j][i] = val
		}
	}
	return corr, nil
}

// InverseVarianceWeights computes risk-parity style weights
// w_i = (1/v_i) / Σ(1/v_j), favoring low-variance assets. Non-positive
// variances get zero weight; if no variance is usable the weights are
// equal.
func InverseVarianceWeights(variances []float64) []float64 {
	n := len(variances)
	weights := make([]float64, n)

	var totalInv float64
	for _, v := range variances {
		if v > 0 {
			totalInv += 1.0 / v
		}
	}
	if totalInv == 0 {
		for i := range weights {
			weights[i] = 1.0 / float64(n)
		}
		return weights
	}

	for i, v := range variances {
		if v > 0 {
			weights[i] = (1.0 / v) / totalInv
		}
	}
	return weights
}
