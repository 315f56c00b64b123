package formulas

// MaxDrawdown calculates the largest peak-to-trough decline of the
// cumulative wealth curve implied by a periodic return series, reported
// as a positive fraction (0.25 means a 25% drawdown).
func MaxDrawdown(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	wealth := 1.0
	peak := 1.0
	maxDD := 0.0

	for _, r := range returns {
		wealth *= (1 + r)
		if wealth > peak {
			peak = wealth
		}
		if peak > 0 {
			dd := (peak - wealth) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}

	return maxDD
}

// HerfindahlIndex calculates the Herfindahl-Hirschman concentration index
// of a weight vector: the sum of squared weights. 1/N for an equal-weight
// portfolio of N assets, 1.0 for a single-asset portfolio.
func HerfindahlIndex(weights map[string]float64) float64 {
	sum := 0.0
	for _, w := range weights {
		sum += w * w
	}
	return sum
}

// EffectiveAssetCount is the reciprocal of the Herfindahl index: the
// number of equally weighted assets with the same concentration.
func EffectiveAssetCount(weights map[string]float64) float64 {
	hhi := HerfindahlIndex(weights)
	if hhi == 0 {
		return 0
	}
	return 1.0 / hhi
}
