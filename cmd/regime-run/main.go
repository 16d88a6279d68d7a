package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/aristath/regime-engine/internal/config"
	"github.com/aristath/regime-engine/internal/marketdata"
	"github.com/aristath/regime-engine/internal/orchestrator"
	"github.com/aristath/regime-engine/internal/pipeline"
	"github.com/aristath/regime-engine/pkg/logger"
)

// syntheticLoader is a deterministic fixture implementation of
// marketdata.Loader, seeded by symbol and tier so repeated runs against
// the same symbol see the same prices and volumes; bar timestamps are
// anchored to time.Now() and so differ between runs. A production
// deployment injects a real collaborator here instead.
type syntheticLoader struct{}

func (syntheticLoader) GetBars(ctx context.Context, symbol string, tier pipeline.Tier, assetClass marketdata.AssetClass, barSize string, lookbackDays int) (pipeline.BarSeries, pipeline.HealthStatus, error) {
	seed := int64(0)
	for _, r := range symbol + string(tier) {
		seed = seed*31 + int64(r)
	}
	rng := rand.New(rand.NewSource(seed))

	n := lookbackDays
	if n < 300 {
		n = 300
	}
	bars := make([]pipeline.Bar, n)
	price := 100.0
	now := time.Now()
	for i := 0; i < n; i++ {
		price *= 1 + rng.NormFloat64()*0.01
		if price <= 0 {
			price = 1
		}
		bars[i] = pipeline.Bar{
			Timestamp: now.Add(time.Duration(i-n) * time.Hour),
			Open:      price,
			High:      price * 1.003,
			Low:       price * 0.997,
			Close:     price,
			Volume:    1_000_000,
		}
	}
	return pipeline.BarSeries{Symbol: symbol, Tier: tier, Bars: bars}, pipeline.HealthFresh, nil
}

func main() {
	log := logger.New(logger.Config{
		Level:  getEnv("LOG_LEVEL", "info"),
		Pretty: getEnv("LOG_PRETTY", "true") == "true",
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("starting regime engine")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	symbol := getEnv("SYMBOL", "SPY")
	loader := syntheticLoader{}

	ctx := context.Background()
	state := orchestrator.Run(ctx, cfg, loader, symbol, marketdata.AssetEquity)

	for _, t := range state.Timings {
		log.Debug().Str("node", t.Name).Dur("elapsed", t.Elapsed).Msg("node completed")
	}
	for _, e := range state.Errors {
		log.Warn().Str("kind", string(e.Kind)).Str("node", e.Node).Str("message", e.Message).Msg("node degraded")
	}

	log.Info().
		Str("run_id", state.RunID).
		Str("label", string(state.Fused.Label)).
		Float64("final_confidence", state.Fused.FinalConfidence).
		Bool("execution_ready", state.GateEval.ExecutionReady).
		Msg("run complete")

	out := map[string]any{
		"run_id":               state.RunID,
		"symbol":               state.Symbol,
		"fused":                state.Fused,
		"decisions":            state.Decisions,
		"consistency_findings": state.ConsistencyFindings,
		"consistency_score":    state.ConsistencyScore,
		"backtest":             state.BacktestResult,
		"gate_evaluation":      state.GateEval,
		"signal":               state.Signal,
		"vol_target":           state.VolTarget,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal().Err(err).Msg("failed to encode run output")
	}

	fmt.Fprintln(os.Stderr, "run", state.RunID, "complete")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
