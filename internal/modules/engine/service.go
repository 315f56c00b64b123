// Package engine is the facade over the five computational modules.
// Every operation derives what it needs from plain structured inputs,
// delegates to one module, and wraps the outcome with a result identity
// so the surrounding REST/CLI layer can render it directly.
package engine

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantumvest/risk-engine/internal/config"
	"github.com/quantumvest/risk-engine/internal/domain"
	"github.com/quantumvest/risk-engine/internal/modules/optimization"
	"github.com/quantumvest/risk-engine/internal/modules/risk"
	"github.com/quantumvest/risk-engine/internal/modules/simulation"
	"github.com/quantumvest/risk-engine/internal/modules/statistics"
	"github.com/quantumvest/risk-engine/internal/modules/stress"
)

// highCorrelationThreshold flags asset pairs worth surfacing alongside
// an allocation.
const highCorrelationThreshold = 0.80

// rebalanceBand is the drift, in absolute weight, beyond which the
// engine recommends trading instead of holding.
const rebalanceBand = 0.05

// Service wires the statistics, risk, optimization, stress and
// simulation modules behind one API. All modules are stateless, so a
// single Service is safe for concurrent use.
type Service struct {
	cfg        *config.Config
	statistics *statistics.Service
	risk       *risk.Calculator
	optimizer  *optimization.Optimizer
	stress     *stress.Engine
	simulator  *simulation.Simulator
	log        zerolog.Logger
}

// New builds the engine from configuration.
func New(cfg *config.Config, log zerolog.Logger) *Service {
	solver := optimization.NewPenaltySolver(cfg.SolverIterationLimit, cfg.SolveTimeout)
	return &Service{
		cfg:        cfg,
		statistics: statistics.NewService(cfg.PeriodsPerYear, cfg.MinObservations, log),
		risk:       risk.NewCalculator(cfg.PeriodsPerYear, log),
		optimizer:  optimization.NewOptimizer(solver, cfg.DustThreshold, log),
		stress:     stress.NewEngine(log),
		simulator:  simulation.NewSimulator(cfg.ChunkSize, cfg.MaxPaths, log),
		log:        log.With().Str("component", "engine").Logger(),
	}
}

// Recommendation is a single rebalancing action derived from the gap
// between current and recommended weights.
type Recommendation struct {
	Symbol  string  `json:"symbol"`
	Action  string  `json:"action"` // "buy", "sell" or "hold"
	Current float64 `json:"current_weight"`
	Target  float64 `json:"target_weight"`
	Delta   float64 `json:"delta"`
}

// OptimizeRequest carries everything one optimization needs. Series are
// aligned per-period returns keyed by symbol. CurrentWeights are optional
// and only drive the buy/sell/hold recommendations.
type OptimizeRequest struct {
	Series         map[string][]float64     `json:"series"`
	CurrentWeights domain.WeightVector      `json:"current_weights,omitempty"`
	Constraints    optimization.Constraints `json:"constraints"`
	Objective      optimization.Objective   `json:"objective"`
}

// OptimizeResponse is the JSON-ready optimization outcome.
type OptimizeResponse struct {
	ID                    string                       `json:"id"`
	GeneratedAt           time.Time                    `json:"generated_at"`
	RecommendedAllocation map[string]float64           `json:"recommended_allocation"`
	ExpectedReturn        float64                      `json:"expected_return"`
	Volatility            float64                      `json:"volatility"`
	SharpeRatio           float64                      `json:"sharpe_ratio"`
	Objective             optimization.ObjectiveKind   `json:"objective"`
	Recommendations       []Recommendation             `json:"recommendations,omitempty"`
	HighCorrelations      []statistics.CorrelationPair `json:"high_correlations,omitempty"`
}

// Optimize derives statistics from the return series and solves for the
// requested objective. A zero Objective falls back to the risk-tolerance
// policy encoded in the constraints.
func (s *Service) Optimize(ctx context.Context, req OptimizeRequest) (*OptimizeResponse, error) {
	stats, err := s.statistics.Derive(req.Series)
	if err != nil {
		return nil, err
	}

	obj := req.Objective
	if obj.Kind == "" {
		obj = optimization.ObjectiveForTolerance(req.Constraints.RiskTolerance)
	}
	// All objectives report Sharpe against the same hurdle the risk
	// module uses; MaxSharpe additionally optimizes against it.
	if obj.RiskFreeRate == 0 {
		obj.RiskFreeRate = s.cfg.RiskFreeRate
	}

	result, err := s.optimizer.Optimize(ctx, stats, req.Constraints, obj)
	if err != nil {
		return nil, err
	}

	resp := &OptimizeResponse{
		ID:                    uuid.NewString(),
		GeneratedAt:           time.Now().UTC(),
		RecommendedAllocation: result.Weights,
		ExpectedReturn:        result.ExpectedReturn,
		Volatility:            result.Volatility,
		SharpeRatio:           result.SharpeRatio,
		Objective:             result.Objective,
		Recommendations:       recommendations(req.CurrentWeights, result.Weights),
		HighCorrelations:      s.statistics.HighCorrelations(stats, highCorrelationThreshold),
	}

	s.log.Info().
		Str("result_id", resp.ID).
		Str("objective", string(resp.Objective)).
		Int("assets", stats.Universe.Len()).
		Float64("expected_return", resp.ExpectedReturn).
		Msg("Optimization complete")

	return resp, nil
}

// recommendations compares current against target weights. Drift within
// the rebalance band is a hold; anything larger is a buy or sell sized by
// the gap. Without current weights there is nothing to compare.
func recommendations(current domain.WeightVector, target domain.WeightVector) []Recommendation {
	if len(current) == 0 {
		return nil
	}

	symbols := make(map[string]bool, len(current)+len(target))
	for sym := range current {
		symbols[sym] = true
	}
	for sym := range target {
		symbols[sym] = true
	}
	ordered := make([]string, 0, len(symbols))
	for sym := range symbols {
		ordered = append(ordered, sym)
	}
	sort.Strings(ordered)

	recs := make([]Recommendation, 0, len(ordered))
	for _, sym := range ordered {
		cur := current[sym]
		tgt := target[sym]
		delta := tgt - cur

		action := "hold"
		switch {
		case delta > rebalanceBand:
			action = "buy"
		case delta < -rebalanceBand:
			action = "sell"
		}

		recs = append(recs, Recommendation{
			Symbol:  sym,
			Action:  action,
			Current: cur,
			Target:  tgt,
			Delta:   delta,
		})
	}
	return recs
}

// RiskRequest carries a risk assessment's inputs.
type RiskRequest struct {
	Weights          domain.WeightVector  `json:"weights"`
	Series           map[string][]float64 `json:"series"`
	Benchmark        []float64            `json:"benchmark,omitempty"`
	ConfidenceLevels []float64            `json:"confidence_levels,omitempty"`
	Method           risk.VaRMethod       `json:"method,omitempty"`
	RequireBeta      bool                 `json:"require_beta,omitempty"`
	Samples          int                  `json:"samples,omitempty"` // Monte Carlo method only
	Seed             int64                `json:"seed,omitempty"`    // Monte Carlo method only
}

// RiskResponse wraps the full report with the headline numbers the
// response shape promises.
type RiskResponse struct {
	ID                string       `json:"id"`
	GeneratedAt       time.Time    `json:"generated_at"`
	VaR95             float64      `json:"var_95"`
	VaR99             float64      `json:"var_99"`
	ExpectedShortfall float64      `json:"expected_shortfall"`
	SharpeRatio       float64      `json:"sharpe_ratio"`
	Report            *risk.Report `json:"report"`
}

// AssessRisk computes the portfolio risk report.
func (s *Service) AssessRisk(_ context.Context, req RiskRequest) (*RiskResponse, error) {
	report, err := s.risk.Compute(risk.Request{
		Weights:           req.Weights,
		Series:            req.Series,
		Benchmark:         req.Benchmark,
		ConfidenceLevels:  req.ConfidenceLevels,
		Method:            req.Method,
		RiskFreeRate:      s.cfg.RiskFreeRate,
		RequireBeta:       req.RequireBeta,
		MonteCarloSamples: req.Samples,
		Seed:              req.Seed,
	})
	if err != nil {
		return nil, err
	}

	// Headline keys follow the requested confidence levels so callers
	// with a custom list never read silent zeroes; the default levels
	// keep the documented var_95/var_99 meaning.
	levels := req.ConfidenceLevels
	if len(levels) == 0 {
		levels = risk.DefaultConfidenceLevels
	}
	primary := risk.ConfidenceKey(levels[0])
	secondary := primary
	if len(levels) > 1 {
		secondary = risk.ConfidenceKey(levels[1])
	}

	resp := &RiskResponse{
		ID:                uuid.NewString(),
		GeneratedAt:       time.Now().UTC(),
		VaR95:             report.VaR[primary],
		VaR99:             report.VaR[secondary],
		ExpectedShortfall: report.ExpectedShortfall[primary],
		SharpeRatio:       report.SharpeRatio,
		Report:            report,
	}

	s.log.Info().
		Str("result_id", resp.ID).
		Float64("var_95", resp.VaR95).
		Int("observations", report.Observations).
		Msg("Risk assessment complete")

	return resp, nil
}

// StressRequest applies named scenarios to a portfolio value. Callers
// supply either weights plus a current value, or raw holdings from which
// both are derived.
type StressRequest struct {
	Weights       domain.WeightVector  `json:"weights,omitempty"`
	CurrentValue  float64              `json:"current_value,omitempty"`
	Holdings      []domain.Holding     `json:"holdings,omitempty"`
	Scenarios     []stress.Scenario    `json:"scenarios"`
	Sensitivities stress.Sensitivities `json:"sensitivities,omitempty"`
}

// StressResponse maps scenario name to impact.
type StressResponse struct {
	ID          string                   `json:"id"`
	GeneratedAt time.Time                `json:"generated_at"`
	Impacts     map[string]stress.Impact `json:"impacts"`
}

// StressTest evaluates every scenario independently.
func (s *Service) StressTest(_ context.Context, req StressRequest) (*StressResponse, error) {
	if len(req.Weights) == 0 && len(req.Holdings) > 0 {
		weights, total, err := domain.WeightsFromHoldings(req.Holdings)
		if err != nil {
			return nil, err
		}
		req.Weights = weights
		if req.CurrentValue == 0 {
			req.CurrentValue = total
		}
	}

	impacts, err := s.stress.RunScenarios(req.Weights, req.CurrentValue, req.Scenarios, req.Sensitivities)
	if err != nil {
		return nil, err
	}

	worst := math.Inf(1)
	for _, impact := range impacts {
		if impact.ImpactPercent < worst {
			worst = impact.ImpactPercent
		}
	}

	resp := &StressResponse{
		ID:          uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Impacts:     impacts,
	}

	s.log.Info().
		Str("result_id", resp.ID).
		Int("scenarios", len(impacts)).
		Float64("worst_impact_percent", worst).
		Msg("Stress test complete")

	return resp, nil
}

// SimulateRequest carries Monte Carlo parameters. Zero PathCount and Seed
// take the configured defaults.
type SimulateRequest struct {
	Series         map[string][]float64 `json:"series"`
	Weights        domain.WeightVector  `json:"weights"`
	HorizonPeriods int                  `json:"horizon_periods"`
	PathCount      int                  `json:"path_count,omitempty"`
	Seed           int64                `json:"seed,omitempty"`
	InitialValue   float64              `json:"initial_value,omitempty"`
	Percentiles    []float64            `json:"percentiles,omitempty"`
}

// SimulateResponse is the JSON-ready simulation outcome.
type SimulateResponse struct {
	ID          string             `json:"id"`
	GeneratedAt time.Time          `json:"generated_at"`
	Result      *simulation.Result `json:"result"`
}

// Simulate derives statistics from the return series and runs the Monte
// Carlo. The shrinkage applied by the statistics module keeps the
// covariance factorizable for all but pathological inputs.
func (s *Service) Simulate(ctx context.Context, req SimulateRequest) (*SimulateResponse, error) {
	stats, err := s.statistics.Derive(req.Series)
	if err != nil {
		return nil, err
	}

	paths := req.PathCount
	if paths == 0 {
		paths = s.cfg.DefaultPaths
	}
	seed := req.Seed
	if seed == 0 {
		seed = s.cfg.SimulationSeed
	}

	result, err := s.simulator.Simulate(ctx, simulation.Request{
		Stats:          stats,
		Weights:        req.Weights,
		HorizonPeriods: req.HorizonPeriods,
		PathCount:      paths,
		Seed:           seed,
		InitialValue:   req.InitialValue,
		Percentiles:    req.Percentiles,
	})
	if err != nil {
		return nil, err
	}

	resp := &SimulateResponse{
		ID:          uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Result:      result,
	}

	s.log.Info().
		Str("result_id", resp.ID).
		Int("paths", result.Paths).
		Int64("seed", result.Seed).
		Msg("Simulation complete")

	return resp, nil
}

// Frontier sweeps the efficient frontier over the series' return range.
func (s *Service) Frontier(ctx context.Context, series map[string][]float64, cons optimization.Constraints, points int) ([]optimization.FrontierPoint, error) {
	stats, err := s.statistics.Derive(series)
	if err != nil {
		return nil, err
	}
	return s.optimizer.EfficientFrontier(ctx, stats, cons, points)
}
