package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantumvest/risk-engine/internal/domain"
	"github.com/quantumvest/risk-engine/pkg/formulas"
)

// Provider turns stored daily prices into aligned return series. Symbols
// trade on different calendars, so the provider merges every symbol's
// dates into one axis and fills gaps before differencing: missing values
// carry the last known close forward, and leading gaps take the first
// known close.
type Provider struct {
	store *Store
	log   zerolog.Logger
}

// NewProvider creates a return-series provider over a price store.
func NewProvider(store *Store, log zerolog.Logger) *Provider {
	return &Provider{store: store, log: log.With().Str("component", "history").Logger()}
}

// AlignedReturns loads prices for the symbols in [from, to] and returns
// equal-length per-symbol return series over the merged date axis.
func (p *Provider) AlignedReturns(ctx context.Context, symbols []string, from, to time.Time) (map[string][]float64, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: no symbols requested", domain.ErrInsufficientData)
	}

	prices := make(map[string][]PricePoint, len(symbols))
	dates := make(map[string]bool)
	for _, symbol := range symbols {
		points, err := p.store.PriceHistory(ctx, symbol, from, to)
		if err != nil {
			return nil, err
		}
		if len(points) == 0 {
			return nil, fmt.Errorf("%w: no price history for %s", domain.ErrInsufficientData, symbol)
		}
		prices[symbol] = points
		for _, point := range points {
			dates[point.Date.Format(dateLayout)] = true
		}
	}

	axis := make([]string, 0, len(dates))
	for d := range dates {
		axis = append(axis, d)
	}
	sort.Strings(axis)
	if len(axis) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 trading days, have %d", domain.ErrInsufficientData, len(axis))
	}

	returns := make(map[string][]float64, len(symbols))
	for symbol, points := range prices {
		filled := fillSeries(points, axis)
		returns[symbol] = formulas.CalculateReturns(filled)
	}

	p.log.Debug().
		Int("symbols", len(symbols)).
		Int("trading_days", len(axis)).
		Msg("Loaded aligned return series")

	return returns, nil
}

// fillSeries projects the points onto the date axis. Gaps after the first
// observation carry the previous close forward; gaps before it take the
// first observed close.
func fillSeries(points []PricePoint, axis []string) []float64 {
	byDate := make(map[string]float64, len(points))
	for _, p := range points {
		byDate[p.Date.Format(dateLayout)] = p.Close
	}

	filled := make([]float64, len(axis))
	last := points[0].Close
	for i, date := range axis {
		if close, ok := byDate[date]; ok {
			last = close
		}
		filled[i] = last
	}
	return filled
}
