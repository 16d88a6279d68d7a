// Package orchestrator wires every pipeline node into a fixed order:
// load, features, regime (per tier), fusion, strategy search, backtest,
// gates, sizing, consistency. There is no separate setup or reporting
// node; the caller builds the config and formats the result. It owns the run state that
// every node reads from and writes into, and records per-node timing
// and typed errors without aborting the run — gates and sizing degrade
// gracefully on an upstream failure rather than panicking (§4.10, §5).
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/regime-engine/internal/allocator"
	"github.com/aristath/regime-engine/internal/backtest"
	"github.com/aristath/regime-engine/internal/config"
	"github.com/aristath/regime-engine/internal/consistency"
	"github.com/aristath/regime-engine/internal/features"
	"github.com/aristath/regime-engine/internal/fusion"
	"github.com/aristath/regime-engine/internal/gates"
	"github.com/aristath/regime-engine/internal/marketdata"
	"github.com/aristath/regime-engine/internal/pipeline"
	"github.com/aristath/regime-engine/internal/regime"
	"github.com/aristath/regime-engine/internal/statutil"
	"github.com/aristath/regime-engine/internal/strategies"
	"github.com/aristath/regime-engine/internal/transitions"
)

// NodeTiming records one node's wall-clock execution window.
type NodeTiming struct {
	Name    string
	Started time.Time
	Ended   time.Time
	Elapsed time.Duration
}

// RunState accumulates every node's output for one run. It is owned
// exclusively by the orchestrator; node functions run one after another
// and write their output into it. The only concurrent work, the per-tier
// feature goroutines, reads from it and sends results over a channel,
// so they never write to shared state.
type RunState struct {
	RunID  string
	Symbol string

	BarSeries  map[pipeline.Tier]pipeline.BarSeries
	DataHealth map[pipeline.Tier]pipeline.HealthStatus

	Features    map[pipeline.Tier]pipeline.FeatureBundle
	Transitions map[pipeline.Tier]pipeline.TransitionMetrics
	Decisions   map[pipeline.Tier]pipeline.RegimeDecision

	// VolHistory is the per-window realized-vol series rollingLabelHistory
	// computed for each tier, kept around so gates can derive a genuine
	// historical percentile instead of a function of the current bar.
	VolHistory map[pipeline.Tier][]float64

	Fused               pipeline.FusedDecision
	ConsistencyFindings []pipeline.Finding
	ConsistencyScore    float64

	GridResults      []pipeline.StrategyEvalResult
	SelectedStrategy pipeline.StrategySpec

	BacktestResult pipeline.BacktestResult
	GateEval       pipeline.GateEvaluation
	Signal         pipeline.Signal
	VolTarget      pipeline.VolatilityTargetDiagnostics

	Timings []NodeTiming
	Errors  []*pipeline.Error
}

func newRunState(symbol string) *RunState {
	return &RunState{
		RunID:       uuid.NewString(),
		Symbol:      symbol,
		BarSeries:   make(map[pipeline.Tier]pipeline.BarSeries),
		DataHealth:  make(map[pipeline.Tier]pipeline.HealthStatus),
		Features:    make(map[pipeline.Tier]pipeline.FeatureBundle),
		Transitions: make(map[pipeline.Tier]pipeline.TransitionMetrics),
		Decisions:   make(map[pipeline.Tier]pipeline.RegimeDecision),
		VolHistory:  make(map[pipeline.Tier][]float64),
	}
}

func (s *RunState) recordError(err *pipeline.Error) {
	s.Errors = append(s.Errors, err)
}

func (s *RunState) timeNode(name string, fn func()) {
	t := NodeTiming{Name: name, Started: time.Now()}
	fn()
	t.Ended = time.Now()
	t.Elapsed = t.Ended.Sub(t.Started)
	s.Timings = append(s.Timings, t)
}

// Run executes the full pipeline for one symbol against loader and
// returns the accumulated RunState. A node-local failure is recorded in
// state.Errors and the run continues; only the two gate-consuming nodes
// (gates, sizing) are expected to surface the resulting degradation as
// blockers.
func Run(ctx context.Context, cfg *config.Config, loader marketdata.Loader, symbol string, assetClass marketdata.AssetClass) *RunState {
	state := newRunState(symbol)

	state.timeNode("load", func() { loadBars(ctx, state, cfg, loader, symbol, assetClass) })
	state.timeNode("features", func() { computeFeatures(state, cfg) })
	state.timeNode("regime", func() { classifyTiers(state, cfg) })
	state.timeNode("fusion", func() { fuseTiers(state, cfg) })
	state.timeNode("strategy_search", func() { searchStrategies(state, cfg) })
	state.timeNode("backtest", func() { runBacktest(state, cfg) })
	state.timeNode("gates", func() { evaluateGates(state, cfg) })
	state.timeNode("sizing", func() { sizePosition(state, cfg) })
	// Consistency is an independent post-fusion validator (§4.5), but one
	// of its rules (sizing_vs_gates) needs execution_ready and
	// scaled_weight, which only exist once gates and sizing have run; it
	// executes last, after reporting-relevant state is final, and never
	// mutates anything it reads.
	state.timeNode("consistency", func() { runConsistency(state) })

	return state
}

func loadBars(ctx context.Context, state *RunState, cfg *config.Config, loader marketdata.Loader, symbol string, assetClass marketdata.AssetClass) {
	for _, tc := range cfg.Tiers {
		series, health, err := loader.GetBars(ctx, symbol, tc.Name, assetClass, tc.BarSize, tc.LookbackDays)
		state.DataHealth[tc.Name] = health
		if err != nil {
			state.recordError(pipeline.NewError(pipeline.ErrDataHealthFailed, "load."+string(tc.Name), err.Error()))
			continue
		}
		state.BarSeries[tc.Name] = series
	}
}

func computeFeatures(state *RunState, cfg *config.Config) {
	type result struct {
		tier   pipeline.Tier
		bundle pipeline.FeatureBundle
		err    error
	}
	results := make(chan result, len(cfg.Tiers))

	for _, tc := range cfg.Tiers {
		tc := tc
		go func() {
			series := state.BarSeries[tc.Name]
			bundle, err := features.Compute(series, features.Config{
				MinObservations:     tc.MinObservations,
				AnnualizationFactor: tc.AnnualizationFactor,
				BootstrapB:          500,
				BootstrapSeed:       cfg.BootstrapSeed,
			})
			results <- result{tier: tc.Name, bundle: bundle, err: err}
		}()
	}

	for range cfg.Tiers {
		r := <-results
		state.Features[r.tier] = r.bundle
		if r.err != nil {
			if pipeErr, ok := r.err.(*pipeline.Error); ok {
				state.recordError(pipeErr)
			}
		}
	}
}

func classifyTiers(state *RunState, cfg *config.Config) {
	tierByName := make(map[pipeline.Tier]config.TierConfig, len(cfg.Tiers))
	for _, tc := range cfg.Tiers {
		tierByName[tc.Name] = tc
	}

	for _, tc := range cfg.Tiers {
		bundle := state.Features[tc.Name]
		series := state.BarSeries[tc.Name]

		labels, volAtBar := rollingLabelHistory(series, tc, cfg)
		trans := transitions.Compute(tc.Name, labels, volAtBar)
		state.Transitions[tc.Name] = trans
		state.VolHistory[tc.Name] = volAtBar

		volExceeds := tierVolExceedsPercentile(bundle.RealizedVolAnnualized, volAtBar, cfg.Gates.VolatilityPercentile)
		decision := regime.Classify(tc.Name, bundle, trans, cfg.Classifier.Weights, cfg.Classifier.ScoreThreshold, volExceeds)
		state.Decisions[tc.Name] = decision
	}
}

// rollingLabelHistory builds the undamped label track consumed by
// transitions.Compute, per §4.2's note that the historical track must
// avoid calling the damped classifier on itself. It slides a
// min-observations window one bar at a time, RollingTrackWindows times
// (capped by the bars available), over the bars before the latest one,
// re-running feature computation and undamped classification at each
// step.
func rollingLabelHistory(series pipeline.BarSeries, tc config.TierConfig, cfg *config.Config) ([]pipeline.RegimeLabel, []float64) {
	n := len(series.Bars)
	windowLen := tc.MinObservations
	track := cfg.RollingTrackWindows
	if windowLen <= 0 || n < windowLen+2 {
		return nil, nil
	}
	if track > n-windowLen {
		track = n - windowLen
	}
	if track < 2 {
		return nil, nil
	}

	labels := make([]pipeline.RegimeLabel, 0, track)
	vols := make([]float64, 0, track)

	start := n - track - windowLen
	for i := 0; i < track; i++ {
		lo := start + i
		hi := lo + windowLen
		window := pipeline.BarSeries{Symbol: series.Symbol, Tier: series.Tier, Bars: series.Bars[lo:hi]}
		bundle, err := features.Compute(window, features.Config{
			MinObservations:     windowLen,
			AnnualizationFactor: tc.AnnualizationFactor,
			BootstrapB:          0,
			BootstrapSeed:       cfg.BootstrapSeed,
		})
		if err != nil {
			continue
		}
		label := regime.ClassifyWithoutDamping(bundle, cfg.Classifier.Weights, cfg.Classifier.ScoreThreshold, false)
		labels = append(labels, label)
		vols = append(vols, bundle.RealizedVolAnnualized)
	}
	return applyHysteresis(labels, tc.MBars), vols
}

// applyHysteresis confirms a label change in the rolling track only
// after m_bars consecutive windows agree on the new label (§4.4), so a
// single noisy window can't flip the recorded track. The track starts
// at indeterminate, matching the pipeline's initial state.
func applyHysteresis(raw []pipeline.RegimeLabel, mBars int) []pipeline.RegimeLabel {
	if mBars <= 1 || len(raw) == 0 {
		return raw
	}

	confirmed := make([]pipeline.RegimeLabel, len(raw))
	current := pipeline.LabelIndeterminate
	var candidate pipeline.RegimeLabel
	var run int

	for i, label := range raw {
		if label == current {
			run = 0
			candidate = ""
		} else if label == candidate {
			run++
			if run >= mBars-1 {
				current = candidate
				candidate = ""
				run = 0
			}
		} else {
			candidate = label
			run = 0
		}
		confirmed[i] = current
	}
	return confirmed
}

func tierVolExceedsPercentile(currentVol float64, history []float64, percentile float64) bool {
	if len(history) < 10 {
		return false
	}
	threshold := statutil.Quantile(percentile, history)
	return currentVol > threshold
}

func fuseTiers(state *RunState, cfg *config.Config) {
	lt, mt, st := state.Decisions[pipeline.TierLT], state.Decisions[pipeline.TierMT], state.Decisions[pipeline.TierST]
	state.Fused = fusion.Fuse(lt, mt, st, fusion.Weights{LT: 0.30, MT: 0.50, ST: 0.20})
}

func runConsistency(state *RunState) {
	findings, score := consistency.Check(consistency.Input{
		Fused:          state.Fused,
		MT:             state.Features[pipeline.TierMT],
		LT:             state.Decisions[pipeline.TierLT],
		ExecutionReady: state.GateEval.ExecutionReady,
		ScaledWeight:   state.Signal.ScaledWeight,
	})
	state.ConsistencyFindings = findings
	state.ConsistencyScore = score
}

func searchStrategies(state *RunState, cfg *config.Config) {
	mtBars := state.BarSeries[pipeline.TierMT].Bars
	applicable := strategies.ApplicableTo(state.Fused.Label)
	if len(applicable) == 0 || len(mtBars) == 0 {
		state.recordError(pipeline.NewError(pipeline.ErrGridExhausted, "strategy_search", "no applicable strategies or insufficient MT bars"))
		return
	}

	results := strategies.GridSearch(mtBars, applicable, cfg.Strategies.MaxGridSize, 4)
	state.GridResults = results
	if len(results) > 0 {
		state.SelectedStrategy = results[0].Strategy
	}
}

func runBacktest(state *RunState, cfg *config.Config) {
	if state.SelectedStrategy.Name == "" {
		state.BacktestResult = pipeline.BacktestResult{Diagnostic: "no strategy selected from grid search"}
		return
	}
	var fn backtest.SignalFn
	for _, spec := range strategies.Registry {
		if spec.Name == state.SelectedStrategy.Name {
			fn = spec.Fn
			break
		}
	}
	if fn == nil {
		state.BacktestResult = pipeline.BacktestResult{Diagnostic: "selected strategy not found in registry"}
		return
	}

	stBars := state.BarSeries[pipeline.TierST].Bars
	stTier := findTier(cfg, pipeline.TierST)
	result := backtest.Run(stBars, fn, state.SelectedStrategy.Parameters, state.Fused.FinalConfidence, cfg.Backtest, stTier.AnnualizationFactor, cfg.BootstrapSeed)
	state.BacktestResult = result
	if result.NumTrades == 0 && result.Diagnostic != "" {
		state.recordError(pipeline.NewError(pipeline.ErrBacktestNoTrades, "backtest", result.Diagnostic))
	}
}

func findTier(cfg *config.Config, name pipeline.Tier) config.TierConfig {
	for _, tc := range cfg.Tiers {
		if tc.Name == name {
			return tc
		}
	}
	return config.TierConfig{AnnualizationFactor: 252}
}

func evaluateGates(state *RunState, cfg *config.Config) {
	required := make([]pipeline.Tier, 0, len(cfg.Tiers))
	for _, tc := range cfg.Tiers {
		required = append(required, tc.Name)
	}

	latestVol := state.Features[pipeline.TierMT].RealizedVolAnnualized

	state.GateEval = gates.Evaluate(gates.Input{
		Fused:             state.Fused,
		LT:                state.Decisions[pipeline.TierLT],
		MT:                state.Decisions[pipeline.TierMT],
		DataHealth:        state.DataHealth,
		RequiredTiers:     required,
		LatestRealizedVol: latestVol,
		HistoricalP99Vol:  historicalP99Vol(state, pipeline.TierMT),
		Cfg:               cfg.Gates,
	})
}

// historicalP99Vol derives the volatility_spike threshold from the
// tier's own rolling-window vol history rather than a function of the
// latest bar, so the gate can actually fire when the current reading
// is a genuine outlier against the trailing distribution.
func historicalP99Vol(state *RunState, tier pipeline.Tier) float64 {
	history := state.VolHistory[tier]
	if len(history) < 10 {
		return 0
	}
	return statutil.Quantile(0.99, history)
}

func sizePosition(state *RunState, cfg *config.Config) {
	rawWeight := 0.0
	if state.GateEval.ExecutionReady {
		rawWeight = state.Fused.FinalConfidence
	}

	scaledWeight := rawWeight
	if cfg.VolTarget.Enabled && rawWeight != 0 {
		scaled, diag := allocator.Scale(allocator.Input{
			RawWeights: map[string]float64{state.Symbol: rawWeight},
			Returns:    map[string][]float64{state.Symbol: state.BarSeries[pipeline.TierMT].LogReturns()},
			Cfg:        cfg.VolTarget,
		})
		scaledWeight = scaled[state.Symbol]
		state.VolTarget = diag
	}

	mtDecision := state.Decisions[pipeline.TierMT]
	state.Signal = pipeline.Signal{
		Symbol:                   state.Symbol,
		Tier:                     pipeline.TierST,
		Timestamp:                time.Now(),
		Label:                    state.Fused.Label,
		RawConfidence:            mtDecision.RawConfidence,
		EffectiveConfidence:      mtDecision.EffectiveConfidence,
		FinalConfidence:          state.Fused.FinalConfidence,
		StrategyName:             state.SelectedStrategy.Name,
		ParameterSet:             state.SelectedStrategy.Parameters,
		RawWeight:                rawWeight,
		ScaledWeight:             scaledWeight,
		ExecutionReady:           state.GateEval.ExecutionReady,
		Blockers:                 state.GateEval.Blockers,
		PostGateHypotheticalSize: state.GateEval.PostGatePlan.HypotheticalSize,
	}
}
