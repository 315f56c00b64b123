package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir       string // Base directory for price history databases
	HistoryDBPath string // SQLite database with daily price history
	LogLevel      string
	LogPretty     bool
	DevMode       bool

	// Statistics
	PeriodsPerYear  int // Return periodicity (252 daily, 52 weekly)
	MinObservations int // Minimum aligned observations per asset

	// Risk
	RiskFreeRate float64 // Annual risk-free rate used by Sharpe/Sortino

	// Optimization
	SolverIterationLimit int
	SolveTimeout         time.Duration
	DustThreshold        float64 // Weights below this are zeroed after solving

	// Simulation
	DefaultPaths    int
	MaxPaths        int
	SimulationSeed  int64
	ChunkSize       int // Paths per worker sub-stream
	ScenarioLibrary string // Optional TOML file with named stress scenarios
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "")
	if dataDir == "" {
		if _, err := os.Stat("./data"); err == nil {
			dataDir = "./data"
		} else {
			dataDir = "../data"
		}
	}

	cfg := &Config{
		DataDir:       dataDir,
		HistoryDBPath: getEnv("HISTORY_DB_PATH", dataDir+"/history.db"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogPretty:     getEnvAsBool("LOG_PRETTY", false),
		DevMode:       getEnvAsBool("DEV_MODE", false),

		PeriodsPerYear:  getEnvAsInt("ENGINE_PERIODS_PER_YEAR", 252),
		MinObservations: getEnvAsInt("ENGINE_MIN_OBSERVATIONS", 30),

		RiskFreeRate: getEnvAsFloat("ENGINE_RISK_FREE_RATE", 0),

		SolverIterationLimit: getEnvAsInt("ENGINE_SOLVER_ITERATIONS", 1000),
		SolveTimeout:         time.Duration(getEnvAsInt("ENGINE_SOLVE_TIMEOUT_MS", 30000)) * time.Millisecond,
		DustThreshold:        getEnvAsFloat("ENGINE_DUST_THRESHOLD", 1e-4),

		DefaultPaths:    getEnvAsInt("ENGINE_DEFAULT_PATHS", 10000),
		MaxPaths:        getEnvAsInt("ENGINE_MAX_PATHS", 1000000),
		SimulationSeed:  int64(getEnvAsInt("ENGINE_SIMULATION_SEED", 42)),
		ChunkSize:       getEnvAsInt("ENGINE_CHUNK_SIZE", 1024),
		ScenarioLibrary: getEnv("ENGINE_SCENARIO_LIBRARY", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.PeriodsPerYear <= 0 {
		return fmt.Errorf("ENGINE_PERIODS_PER_YEAR must be positive, got %d", c.PeriodsPerYear)
	}
	if c.MinObservations < 2 {
		return fmt.Errorf("ENGINE_MIN_OBSERVATIONS must be at least 2, got %d", c.MinObservations)
	}
	if c.DefaultPaths <= 0 || c.DefaultPaths > c.MaxPaths {
		return fmt.Errorf("ENGINE_DEFAULT_PATHS must be in (0, %d], got %d", c.MaxPaths, c.DefaultPaths)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("ENGINE_CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.DustThreshold < 0 {
		return fmt.Errorf("ENGINE_DUST_THRESHOLD must be non-negative, got %g", c.DustThreshold)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
