package stress

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/quantumvest/risk-engine/internal/domain"
)

// Library is a TOML scenario file of the form:
//
//	[[scenario]]
//	name = "market_crash"
//	description = "broad equity selloff"
//	[scenario.shocks]
//	AAPL = -0.10
//	GOOGL = -0.05
type Library struct {
	Scenarios []Scenario `toml:"scenario"`
}

// LoadLibrary reads and validates a scenario library file. Scenario names
// must be unique and every scenario must define at least one shock.
func LoadLibrary(path string) ([]Scenario, error) {
	var library Library
	if _, err := toml.DecodeFile(path, &library); err != nil {
		return nil, fmt.Errorf("failed to decode scenario library %s: %w", path, err)
	}
	if len(library.Scenarios) == 0 {
		return nil, fmt.Errorf("scenario library %s defines no scenarios", path)
	}

	seen := make(map[string]bool, len(library.Scenarios))
	for i, scenario := range library.Scenarios {
		if scenario.Name == "" {
			return nil, fmt.Errorf("%w: scenario %d in %s has no name", domain.ErrDimensionMismatch, i, path)
		}
		if seen[scenario.Name] {
			return nil, fmt.Errorf("%w: duplicate scenario name %q in %s", domain.ErrDimensionMismatch, scenario.Name, path)
		}
		seen[scenario.Name] = true
		if len(scenario.Shocks) == 0 && len(scenario.FactorShocks) == 0 {
			return nil, fmt.Errorf("%w: scenario %q in %s defines no shocks", domain.ErrDimensionMismatch, scenario.Name, path)
		}
	}
	return library.Scenarios, nil
}
