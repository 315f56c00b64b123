// Command risk-engine runs one engine operation per invocation: it reads
// a JSON request from a file or stdin, executes it, and writes the JSON
// result to stdout.
//
// Usage:
//
//	risk-engine optimize -input request.json
//	risk-engine risk -input request.json
//	risk-engine stress -input request.json
//	risk-engine simulate -input request.json
//	risk-engine frontier -input request.json -points 20
//
// Requests that name symbols instead of inline return series are served
// from the price history database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantumvest/risk-engine/internal/config"
	"github.com/quantumvest/risk-engine/internal/database"
	"github.com/quantumvest/risk-engine/internal/modules/engine"
	"github.com/quantumvest/risk-engine/internal/modules/history"
	"github.com/quantumvest/risk-engine/internal/modules/optimization"
	"github.com/quantumvest/risk-engine/internal/modules/stress"
	"github.com/quantumvest/risk-engine/pkg/logger"
)

// seriesSource lets a request name stored symbols instead of carrying
// inline series. From/To bound the history window ("2006-01-02").
type seriesSource struct {
	Symbols []string `json:"symbols,omitempty"`
	From    string   `json:"from,omitempty"`
	To      string   `json:"to,omitempty"`
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	command := os.Args[1]

	flags := flag.NewFlagSet(command, flag.ExitOnError)
	inputPath := flags.String("input", "-", "JSON request file, - for stdin")
	points := flags.Int("points", 20, "frontier points (frontier only)")
	if err := flags.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)

	raw, err := readInput(*inputPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read request")
	}

	svc := engine.New(cfg, log)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.SolveTimeout+time.Minute)
	defer cancel()

	result, err := dispatch(ctx, command, raw, svc, cfg, log, *points)
	if err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("Request failed")
	}

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")
	if err := out.Encode(result); err != nil {
		log.Fatal().Err(err).Msg("Failed to encode result")
	}
}

func dispatch(ctx context.Context, command string, raw []byte, svc *engine.Service, cfg *config.Config, log zerolog.Logger, points int) (interface{}, error) {
	switch command {
	case "optimize":
		var req struct {
			engine.OptimizeRequest
			seriesSource
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("malformed request: %w", err)
		}
		if err := resolveSeries(ctx, &req.OptimizeRequest.Series, req.seriesSource, cfg, log); err != nil {
			return nil, err
		}
		return svc.Optimize(ctx, req.OptimizeRequest)

	case "risk":
		var req struct {
			engine.RiskRequest
			seriesSource
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("malformed request: %w", err)
		}
		if err := resolveSeries(ctx, &req.RiskRequest.Series, req.seriesSource, cfg, log); err != nil {
			return nil, err
		}
		return svc.AssessRisk(ctx, req.RiskRequest)

	case "stress":
		var req engine.StressRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("malformed request: %w", err)
		}
		if len(req.Scenarios) == 0 && cfg.ScenarioLibrary != "" {
			scenarios, err := stress.LoadLibrary(cfg.ScenarioLibrary)
			if err != nil {
				return nil, err
			}
			req.Scenarios = scenarios
		}
		return svc.StressTest(ctx, req)

	case "simulate":
		var req struct {
			engine.SimulateRequest
			seriesSource
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("malformed request: %w", err)
		}
		if err := resolveSeries(ctx, &req.SimulateRequest.Series, req.seriesSource, cfg, log); err != nil {
			return nil, err
		}
		return svc.Simulate(ctx, req.SimulateRequest)

	case "frontier":
		var req struct {
			Series      map[string][]float64     `json:"series"`
			Constraints optimization.Constraints `json:"constraints"`
			seriesSource
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("malformed request: %w", err)
		}
		if err := resolveSeries(ctx, &req.Series, req.seriesSource, cfg, log); err != nil {
			return nil, err
		}
		return svc.Frontier(ctx, req.Series, req.Constraints, points)

	default:
		usage()
		return nil, fmt.Errorf("unknown command %q", command)
	}
}

// resolveSeries fills an empty series map from the history database when
// the request names symbols.
func resolveSeries(ctx context.Context, series *map[string][]float64, src seriesSource, cfg *config.Config, log zerolog.Logger) error {
	if len(*series) > 0 || len(src.Symbols) == 0 {
		return nil
	}

	db, err := database.New(database.Config{Path: cfg.HistoryDBPath, Name: "history"})
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := history.NewStore(db, log)
	if err != nil {
		return err
	}

	from, err := parseDate(src.From)
	if err != nil {
		return err
	}
	to, err := parseDate(src.To)
	if err != nil {
		return err
	}

	provider := history.NewProvider(store, log)
	loaded, err := provider.AlignedReturns(ctx, src.Symbols, from, to)
	if err != nil {
		return err
	}
	*series = loaded
	return nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed date %q, want YYYY-MM-DD: %w", s, err)
	}
	return t, nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: risk-engine <optimize|risk|stress|simulate|frontier> [-input request.json] [-points n]")
}
