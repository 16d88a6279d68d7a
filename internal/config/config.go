// Package config loads the run configuration recognized by the pipeline:
// tiers, classifier weights/thresholds, the strategy grid cap, backtest
// windows and costs, gate thresholds, and volatility targeting
// parameters. Loading reads an optional .env file via godotenv, falls
// back to environment variables with sane defaults, and runs a
// Validate() pass that rejects out-of-range values with a
// config_invalid error.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/aristath/regime-engine/internal/pipeline"
	"github.com/joho/godotenv"
)

// TierConfig describes one configured timeframe tier.
type TierConfig struct {
	Name                Tier
	BarSize             string
	LookbackDays        int
	AnnualizationFactor float64
	MBars               int
	MinObservations     int
}

// Tier mirrors pipeline.Tier to keep this package import-light for
// callers that only need configuration; orchestrator converts between
// the two where needed.
type Tier = pipeline.Tier

// ClassifierWeights are the weights applied to the three component
// signals in §4.3 (must sum to 1.0).
type ClassifierWeights struct {
	Hurst float64
	VR    float64
	ADF   float64
}

// ClassifierConfig configures the unified regime classifier (§4.3).
type ClassifierConfig struct {
	ScoreThreshold float64
	Weights        ClassifierWeights
}

// BacktestCostBps are the per-trade cost components in basis points
// (§4.7).
type BacktestCostBps struct {
	Spread   float64
	Slippage float64
	Fee      float64
}

// BacktestConfig configures the walk-forward backtester (§4.7).
type BacktestConfig struct {
	TrainWindow      int
	ValidationWindow int
	Scheme           string // "rolling" | "expanding"
	CostBps          BacktestCostBps
	SharpeBootstrapB int
}

// StrategiesConfig bounds the grid search (§4.6).
type StrategiesConfig struct {
	MaxGridSize int
}

// GatesConfig configures the risk gates (§4.8).
type GatesConfig struct {
	ConfidenceFloor      float64
	StrictMode           bool
	VolatilityPercentile float64
}

// VolTargetConfig configures the volatility-target allocator (§4.9).
type VolTargetConfig struct {
	Enabled             bool
	TargetVolatility    float64
	LookbackDays        int
	MinObservations     int
	MinWeight           float64
	MaxWeight           float64
	UseShrinkage        bool
	AnnualizationFactor float64
}

// Config is the full run configuration (§6).
type Config struct {
	LogLevel   string
	LogPretty  bool
	Tiers      []TierConfig
	Classifier ClassifierConfig
	Strategies StrategiesConfig
	Backtest   BacktestConfig
	Gates      GatesConfig
	VolTarget  VolTargetConfig

	// RollingTrackWindows is the default rolling-label history length
	// used by transition metrics (§9 open question, resolved to 200).
	RollingTrackWindows int

	// BootstrapSeed seeds every stationary-block-bootstrap draw in the
	// pipeline (Hurst CI, Sharpe CI), so identical inputs reproduce the
	// same bootstrap draws and numeric results. The RunID (a fresh UUID)
	// and the signal timestamp differ from run to run, so payloads are
	// not byte-identical.
	BootstrapSeed int64
}

// Load builds a Config from environment variables, after optionally
// loading a local .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", false),
		Tiers: []TierConfig{
			{Name: pipeline.TierLT, BarSize: "1d", LookbackDays: getEnvAsInt("LT_LOOKBACK_DAYS", 1500), AnnualizationFactor: getEnvAsFloat("LT_ANNUALIZATION_FACTOR", 252), MBars: getEnvAsInt("LT_M_BARS", 2), MinObservations: getEnvAsInt("LT_MIN_OBSERVATIONS", 300)},
			{Name: pipeline.TierMT, BarSize: "4h", LookbackDays: getEnvAsInt("MT_LOOKBACK_DAYS", 400), AnnualizationFactor: getEnvAsFloat("MT_ANNUALIZATION_FACTOR", 252*6), MBars: getEnvAsInt("MT_M_BARS", 2), MinObservations: getEnvAsInt("MT_MIN_OBSERVATIONS", 300)},
			{Name: pipeline.TierST, BarSize: "15m", LookbackDays: getEnvAsInt("ST_LOOKBACK_DAYS", 60), AnnualizationFactor: getEnvAsFloat("ST_ANNUALIZATION_FACTOR", 252*26), MBars: getEnvAsInt("ST_M_BARS", 3), MinObservations: getEnvAsInt("ST_MIN_OBSERVATIONS", 300)},
		},
		Classifier: ClassifierConfig{
			ScoreThreshold: getEnvAsFloat("CLASSIFIER_SCORE_THRESHOLD", 0.10),
			Weights: ClassifierWeights{
				Hurst: getEnvAsFloat("CLASSIFIER_WEIGHT_HURST", 0.40),
				VR:    getEnvAsFloat("CLASSIFIER_WEIGHT_VR", 0.40),
				ADF:   getEnvAsFloat("CLASSIFIER_WEIGHT_ADF", 0.20),
			},
		},
		Strategies: StrategiesConfig{
			MaxGridSize: getEnvAsInt("MAX_GRID_SIZE", 256),
		},
		Backtest: BacktestConfig{
			TrainWindow:      getEnvAsInt("BACKTEST_TRAIN_WINDOW", 500),
			ValidationWindow: getEnvAsInt("BACKTEST_VALIDATION_WINDOW", 100),
			Scheme:           getEnv("BACKTEST_SCHEME", "expanding"),
			CostBps: BacktestCostBps{
				Spread:   getEnvAsFloat("BACKTEST_SPREAD_BPS", 5),
				Slippage: getEnvAsFloat("BACKTEST_SLIPPAGE_BPS", 3),
				Fee:      getEnvAsFloat("BACKTEST_FEE_BPS", 2),
			},
			SharpeBootstrapB: getEnvAsInt("BACKTEST_SHARPE_BOOTSTRAP_B", 500),
		},
		Gates: GatesConfig{
			ConfidenceFloor:      getEnvAsFloat("GATES_CONFIDENCE_FLOOR", 0.50),
			StrictMode:           getEnvAsBool("GATES_STRICT_MODE", false),
			VolatilityPercentile: getEnvAsFloat("GATES_VOLATILITY_PERCENTILE", 0.99),
		},
		VolTarget: VolTargetConfig{
			Enabled:             getEnvAsBool("VOLTARGET_ENABLED", true),
			TargetVolatility:    getEnvAsFloat("VOLTARGET_TARGET_VOLATILITY", 0.15),
			LookbackDays:        getEnvAsInt("VOLTARGET_LOOKBACK_DAYS", 30),
			MinObservations:     getEnvAsInt("VOLTARGET_MIN_OBSERVATIONS", 20),
			MinWeight:           getEnvAsFloat("VOLTARGET_MIN_WEIGHT", -1.0),
			MaxWeight:           getEnvAsFloat("VOLTARGET_MAX_WEIGHT", 1.0),
			UseShrinkage:        getEnvAsBool("VOLTARGET_USE_SHRINKAGE", true),
			AnnualizationFactor: getEnvAsFloat("VOLTARGET_ANNUALIZATION_FACTOR", 252),
		},
		RollingTrackWindows: getEnvAsInt("ROLLING_TRACK_WINDOWS", 200),
		BootstrapSeed:       int64(getEnvAsInt("BOOTSTRAP_SEED", 1)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the ranges and invariants spec.md §7's config_invalid
// kind exists to catch: classifier weights must sum to 1, thresholds
// must be ordered, tier list must be nonempty.
func (c *Config) Validate() error {
	sum := c.Classifier.Weights.Hurst + c.Classifier.Weights.VR + c.Classifier.Weights.ADF
	if sum < 0.999 || sum > 1.001 {
		return pipeline.NewError(pipeline.ErrConfigInvalid, "config", fmt.Sprintf("classifier weights must sum to 1.0, got %.4f", sum))
	}
	if len(c.Tiers) == 0 {
		return pipeline.NewError(pipeline.ErrConfigInvalid, "config", "at least one tier must be configured")
	}
	if c.Gates.ConfidenceFloor < 0 || c.Gates.ConfidenceFloor > 1 {
		return pipeline.NewError(pipeline.ErrConfigInvalid, "config", "gates.confidence_floor must be in [0,1]")
	}
	if c.VolTarget.MinWeight > c.VolTarget.MaxWeight {
		return pipeline.NewError(pipeline.ErrConfigInvalid, "config", "voltarget.min_weight must be <= max_weight")
	}
	if c.Backtest.TrainWindow <= 0 || c.Backtest.ValidationWindow <= 0 {
		return pipeline.NewError(pipeline.ErrConfigInvalid, "config", "backtest train/validation windows must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}
