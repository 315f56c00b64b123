package risk

import (
	"github.com/quantumvest/risk-engine/internal/domain"
	"github.com/quantumvest/risk-engine/pkg/formulas"
)

// Concentration level thresholds on the Herfindahl index.
const (
	concentrationModerateAbove = 0.15
	concentrationHighAbove     = 0.25
	concentrationSevereAbove   = 0.50
)

// Concentration describes how concentrated a weight vector is.
type Concentration struct {
	HHI             float64 `json:"hhi"`
	EffectiveAssets float64 `json:"effective_assets"`
	TopWeight       float64 `json:"top_weight"`
	Level           string  `json:"level"` // "low", "moderate", "high" or "severe"
}

// MeasureConcentration computes Herfindahl-based concentration metrics
// for a weight vector. An equal-weight portfolio of n assets has
// HHI = 1/n and n effective assets.
func MeasureConcentration(weights domain.WeightVector) Concentration {
	top := 0.0
	for _, w := range weights {
		if w > top {
			top = w
		}
	}

	hhi := formulas.HerfindahlIndex(weights)
	return Concentration{
		HHI:             hhi,
		EffectiveAssets: formulas.EffectiveAssetCount(weights),
		TopWeight:       top,
		Level:           concentrationLevel(hhi),
	}
}

func concentrationLevel(hhi float64) string {
	switch {
	case hhi > concentrationSevereAbove:
		return "severe"
	case hhi > concentrationHighAbove:
		return "high"
	case hhi > concentrationModerateAbove:
		return "moderate"
	default:
		return "low"
	}
}
