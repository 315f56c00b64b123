package stress

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/quantumvest/risk-engine/internal/domain"
)

// Scenario is a named market shock. Shocks apply fractional moves
// directly per asset (-0.10 is a 10% drop); FactorShocks apply to factors
// and reach assets through their sensitivities.
type Scenario struct {
	Name         string             `json:"name" toml:"name"`
	Description  string             `json:"description,omitempty" toml:"description"`
	Shocks       map[string]float64 `json:"shocks,omitempty" toml:"shocks"`
	FactorShocks map[string]float64 `json:"factor_shocks,omitempty" toml:"factor_shocks"`
}

// Sensitivities maps asset -> factor -> loading, used to translate factor
// shocks into per-asset shocks.
type Sensitivities map[string]map[string]float64

// Impact is the outcome of one scenario applied to one portfolio.
type Impact struct {
	ProjectedValue float64  `json:"projected_value"`
	ImpactPercent  float64  `json:"impact"`
	Warnings       []string `json:"warnings,omitempty"`
}

// Engine applies stress scenarios to portfolio weights. Stateless; every
// scenario is evaluated independently.
type Engine struct {
	// strict turns unknown-asset references into errors instead of
	// zero-contribution warnings.
	strict bool
	log    zerolog.Logger
}

// NewEngine creates a stress-test engine using the default policy for
// unknown scenario assets: zero contribution plus a warning.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: log.With().Str("component", "stress").Logger()}
}

// NewStrictEngine creates an engine that fails when a scenario references
// an asset absent from the portfolio.
func NewStrictEngine(log zerolog.Logger) *Engine {
	engine := NewEngine(log)
	engine.strict = true
	return engine
}

// ApplyScenario projects the portfolio value under one scenario:
//
//	projected = currentValue × (1 + Σ weight_i × shock_i)
//
// Factor shocks contribute sensitivity_i × factor_shock per asset on top
// of any direct shock. Assets referenced by the scenario but absent from
// the weights contribute zero and are surfaced in Warnings.
func (e *Engine) ApplyScenario(weights domain.WeightVector, currentValue float64, scenario Scenario, sens Sensitivities) (*Impact, error) {
	if currentValue <= 0 {
		return nil, fmt.Errorf("%w: current value %.2f must be positive", domain.ErrDimensionMismatch, currentValue)
	}
	if err := weights.ValidateSum(0); err != nil {
		return nil, err
	}
	if len(scenario.Shocks) == 0 && len(scenario.FactorShocks) == 0 {
		return nil, fmt.Errorf("%w: scenario %q defines no shocks", domain.ErrDimensionMismatch, scenario.Name)
	}

	var warnings []string
	weightedShock := 0.0

	for _, symbol := range sortedKeys(scenario.Shocks) {
		weight, held := weights[symbol]
		if !held {
			if e.strict {
				return nil, fmt.Errorf("scenario %q shocks %s which is not in the portfolio: %w",
					scenario.Name, symbol, domain.ErrUnknownAssetInScenario)
			}
			warnings = append(warnings, fmt.Sprintf("asset %s in scenario %q not held; contributes zero", symbol, scenario.Name))
			continue
		}
		weightedShock += weight * scenario.Shocks[symbol]
	}

	if len(scenario.FactorShocks) > 0 {
		for _, symbol := range sortedKeys(weights) {
			weight := weights[symbol]
			loadings, ok := sens[symbol]
			if !ok {
				continue
			}
			for _, factor := range sortedKeys(scenario.FactorShocks) {
				if loading, ok := loadings[factor]; ok {
					weightedShock += weight * loading * scenario.FactorShocks[factor]
				}
			}
		}
	}

	impact := &Impact{
		ProjectedValue: currentValue * (1 + weightedShock),
		ImpactPercent:  weightedShock * 100,
		Warnings:       warnings,
	}

	if len(warnings) > 0 {
		e.log.Warn().
			Str("scenario", scenario.Name).
			Int("unknown_assets", len(warnings)).
			Msg("Scenario references assets outside the portfolio")
	}
	e.log.Debug().
		Str("scenario", scenario.Name).
		Float64("projected_value", impact.ProjectedValue).
		Float64("impact_percent", impact.ImpactPercent).
		Msg("Applied stress scenario")

	return impact, nil
}

// RunScenarios evaluates every scenario independently and returns the
// results keyed by scenario name.
func (e *Engine) RunScenarios(weights domain.WeightVector, currentValue float64, scenarios []Scenario, sens Sensitivities) (map[string]Impact, error) {
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("%w: no scenarios provided", domain.ErrDimensionMismatch)
	}

	results := make(map[string]Impact, len(scenarios))
	for _, scenario := range scenarios {
		if _, dup := results[scenario.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate scenario name %q", domain.ErrDimensionMismatch, scenario.Name)
		}
		impact, err := e.ApplyScenario(weights, currentValue, scenario, sens)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", scenario.Name, err)
		}
		results[scenario.Name] = *impact
	}
	return results, nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
