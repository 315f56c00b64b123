package domain

import "fmt"

// Holding is one portfolio position expressed in market value. Callers
// that track positions instead of weights pass holdings and let the
// engine derive the weight vector.
type Holding struct {
	Symbol      string  `json:"symbol"`
	MarketValue float64 `json:"market_value"`
}

// WeightsFromHoldings converts holdings into a weight vector and the
// total portfolio value. Duplicate symbols are merged.
func WeightsFromHoldings(holdings []Holding) (WeightVector, float64, error) {
	if len(holdings) == 0 {
		return nil, 0, fmt.Errorf("%w: no holdings", ErrDimensionMismatch)
	}

	values := make(map[string]float64, len(holdings))
	total := 0.0
	for _, h := range holdings {
		if h.Symbol == "" {
			return nil, 0, fmt.Errorf("%w: holding without symbol", ErrDimensionMismatch)
		}
		if h.MarketValue < 0 {
			return nil, 0, fmt.Errorf("%w: negative market value %.2f for %s", ErrDimensionMismatch, h.MarketValue, h.Symbol)
		}
		values[h.Symbol] += h.MarketValue
		total += h.MarketValue
	}
	if total <= 0 {
		return nil, 0, fmt.Errorf("%w: holdings have no value", ErrDimensionMismatch)
	}

	weights := make(WeightVector, len(values))
	for symbol, value := range values {
		weights[symbol] = value / total
	}
	return weights, total, nil
}
