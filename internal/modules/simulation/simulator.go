package simulation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/quantumvest/risk-engine/internal/domain"
	"github.com/quantumvest/risk-engine/pkg/formulas"
)

// DefaultPercentiles summarize the terminal-value distribution unless the
// request overrides them.
var DefaultPercentiles = []float64{5, 25, 50, 75, 95}

// Request parameterizes one Monte Carlo run. Weights are projected onto
// the Statistics universe; symbols absent from the weights contribute zero.
type Request struct {
	Stats          *domain.Statistics
	Weights        domain.WeightVector
	HorizonPeriods int
	PathCount      int
	// Seed fixes the random stream for reproducibility. Zero selects a
	// time-derived seed.
	Seed         int64
	InitialValue float64   // defaults to 1.0
	Percentiles  []float64 // defaults to DefaultPercentiles
}

// Result is the simulated terminal-value distribution.
type Result struct {
	// Percentiles of terminal portfolio value, keyed by the percentile
	// rank ("5", "25", ...).
	Percentiles  map[string]float64 `json:"percentiles"`
	MeanValue    float64            `json:"mean_terminal_value"`
	MeanReturn   float64            `json:"mean_return"`
	StdDevReturn float64            `json:"std_dev_return"`
	Paths        int                `json:"paths"`
	Horizon      int                `json:"horizon_periods"`
	Seed         int64              `json:"seed"`
}

// Simulator generates correlated multivariate-normal return paths and
// compounds them into terminal portfolio values. Path generation is
// partitioned into fixed-size chunks, each with its own seeded substream,
// so the output for a given seed is identical regardless of how many
// workers run the chunks.
type Simulator struct {
	chunkSize int
	maxPaths  int
	log       zerolog.Logger
}

// NewSimulator creates a simulator. chunkSize and maxPaths fall back to
// 1024 and 1,000,000 when non-positive.
func NewSimulator(chunkSize, maxPaths int, log zerolog.Logger) *Simulator {
	if chunkSize <= 0 {
		chunkSize = 1024
	}
	if maxPaths <= 0 {
		maxPaths = 1_000_000
	}
	return &Simulator{
		chunkSize: chunkSize,
		maxPaths:  maxPaths,
		log:       log.With().Str("component", "simulation").Logger(),
	}
}

// Simulate runs the Monte Carlo and summarizes the terminal distribution.
func (s *Simulator) Simulate(ctx context.Context, req Request) (*Result, error) {
	if req.PathCount < 1 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidPathCount, req.PathCount)
	}
	if req.PathCount > s.maxPaths {
		return nil, fmt.Errorf("%w: %d exceeds the limit of %d", domain.ErrInvalidPathCount, req.PathCount, s.maxPaths)
	}
	if req.HorizonPeriods < 1 {
		return nil, fmt.Errorf("%w: horizon must cover at least one period", domain.ErrDimensionMismatch)
	}
	if req.Stats == nil {
		return nil, fmt.Errorf("%w: statistics required", domain.ErrDimensionMismatch)
	}
	if err := req.Stats.Validate(); err != nil {
		return nil, err
	}
	if err := req.Weights.ValidateSum(0); err != nil {
		return nil, err
	}
	if err := req.Weights.ValidateUniverse(req.Stats.Universe); err != nil {
		return nil, err
	}
	for _, p := range req.Percentiles {
		if p < 0 || p > 100 {
			return nil, fmt.Errorf("%w: percentile %.2f outside [0, 100]", domain.ErrDimensionMismatch, p)
		}
	}

	lower, err := factorizePerPeriod(req.Stats)
	if err != nil {
		return nil, err
	}

	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	initial := req.InitialValue
	if initial <= 0 {
		initial = 1.0
	}
	percentiles := req.Percentiles
	if len(percentiles) == 0 {
		percentiles = DefaultPercentiles
	}

	periodMu := perPeriodMean(req.Stats)
	weights := req.Weights.ToSlice(req.Stats.Universe)

	terminal := make([]float64, req.PathCount)
	if err := s.runChunks(ctx, terminal, lower, periodMu, weights, req.HorizonPeriods, seed, initial); err != nil {
		return nil, err
	}

	result := summarize(terminal, initial, percentiles)
	result.Paths = req.PathCount
	result.Horizon = req.HorizonPeriods
	result.Seed = seed

	s.log.Debug().
		Int("paths", req.PathCount).
		Int("horizon_periods", req.HorizonPeriods).
		Int64("seed", seed).
		Float64("mean_terminal_value", result.MeanValue).
		Msg("Completed Monte Carlo simulation")

	return result, nil
}

// runChunks fills terminal[i] for every path. Chunk c always owns paths
// [c*chunkSize, (c+1)*chunkSize) and draws from rand.NewSource(seed+c),
// so scheduling order cannot change the output.
func (s *Simulator) runChunks(ctx context.Context, terminal []float64, lower *mat.TriDense, periodMu, weights []float64, horizon int, seed int64, initial float64) error {
	chunkCount := (len(terminal) + s.chunkSize - 1) / s.chunkSize
	workers := runtime.NumCPU()
	if workers > chunkCount {
		workers = chunkCount
	}

	chunks := make(chan int, chunkCount)
	for chunk := 0; chunk < chunkCount; chunk++ {
		chunks <- chunk
	}
	close(chunks)

	errs := make(chan error, workers)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range chunks {
				if err := ctx.Err(); err != nil {
					errs <- fmt.Errorf("%w: %v", domain.ErrTimeout, err)
					return
				}
				s.simulateChunk(terminal, chunk, lower, periodMu, weights, horizon, seed, initial)
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulator) simulateChunk(terminal []float64, chunk int, lower *mat.TriDense, periodMu, weights []float64, horizon int, seed int64, initial float64) {
	rng := rand.New(rand.NewSource(seed + int64(chunk)))
	n := len(periodMu)

	start := chunk * s.chunkSize
	end := start + s.chunkSize
	if end > len(terminal) {
		end = len(terminal)
	}

	draws := make([]float64, n)
	correlated := make([]float64, n)
	for path := start; path < end; path++ {
		value := initial
		for period := 0; period < horizon; period++ {
			for i := range draws {
				draws[i] = rng.NormFloat64()
			}
			// correlated = L · draws, exploiting the lower-triangular shape.
			for i := 0; i < n; i++ {
				sum := 0.0
				for j := 0; j <= i; j++ {
					sum += lower.At(i, j) * draws[j]
				}
				correlated[i] = sum
			}
			periodReturn := 0.0
			for i := 0; i < n; i++ {
				periodReturn += weights[i] * (periodMu[i] + correlated[i])
			}
			value *= 1 + periodReturn
		}
		terminal[path] = value
	}
}

// factorizePerPeriod Cholesky-factorizes the per-period covariance Σ/P and
// returns the lower-triangular factor.
func factorizePerPeriod(stats *domain.Statistics) (*mat.TriDense, error) {
	n := stats.Universe.Len()
	periods := float64(stats.PeriodsPerYear)
	if periods <= 0 {
		periods = 1
	}

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, stats.Covariance[i][j]/periods)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, fmt.Errorf("%w: re-derive statistics with a higher shrinkage intensity", domain.ErrNonPositiveDefiniteCovariance)
	}
	lower := mat.NewTriDense(n, mat.Lower, nil)
	chol.LTo(lower)
	return lower, nil
}

func perPeriodMean(stats *domain.Statistics) []float64 {
	periods := float64(stats.PeriodsPerYear)
	if periods <= 0 {
		periods = 1
	}
	mu := make([]float64, len(stats.ExpectedReturn))
	for i, annual := range stats.ExpectedReturn {
		mu[i] = annual / periods
	}
	return mu
}

func summarize(terminal []float64, initial float64, percentiles []float64) *Result {
	result := &Result{Percentiles: make(map[string]float64, len(percentiles))}
	for _, p := range percentiles {
		key := strconv.FormatFloat(p, 'f', -1, 64)
		result.Percentiles[key] = formulas.Quantile(terminal, p/100)
	}

	returns := make([]float64, len(terminal))
	for i, v := range terminal {
		returns[i] = v/initial - 1
	}
	result.MeanValue = formulas.Mean(terminal)
	result.MeanReturn = formulas.Mean(returns)
	if len(returns) > 1 {
		result.StdDevReturn = formulas.StdDev(returns)
	}
	if math.IsNaN(result.StdDevReturn) {
		result.StdDevReturn = 0
	}
	return result
}
