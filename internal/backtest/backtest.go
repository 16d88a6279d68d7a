package backtest

import (
	"math"

	"github.com/aristath/regime-engine/internal/config"
	"github.com/aristath/regime-engine/internal/pipeline"
)

// SignalFn is the pure strategy-evaluation function consumed by the
// walk-forward engine: bars and a fixed parameter set produce a raw
// signal series in {-1, 0, +1}. Parameters are held constant across the
// whole walk-forward (§4.7: no re-optimization inside validation
// windows, to prevent look-ahead).
type SignalFn func(bars []pipeline.Bar, params map[string]float64) []float64

// Window is one walk-forward train/validation window, expressed as bar
// index ranges into the full series.
type Window struct {
	TrainStart, TrainEnd int // [TrainStart, TrainEnd)
	ValStart, ValEnd     int // [ValStart, ValEnd)
}

// BuildWindows lays out ordered, non-overlapping validation windows of
// length V preceded by training windows of length T, advancing by V.
// scheme "expanding" grows the training window from the series start;
// "rolling" slides a fixed-length training window forward.
func BuildWindows(numBars, trainWindow, valWindow int, scheme string) []Window {
	var windows []Window
	valStart := trainWindow
	for valStart+valWindow <= numBars {
		trainStart := 0
		if scheme == "rolling" {
			trainStart = valStart - trainWindow
		}
		windows = append(windows, Window{
			TrainStart: trainStart,
			TrainEnd:   valStart,
			ValStart:   valStart,
			ValEnd:     valStart + valWindow,
		})
		valStart += valWindow
	}
	return windows
}

// Run executes the walk-forward backtest: for each window, the
// pre-selected (strategy, parameters) signal is shifted by one bar and
// scaled by finalConfidence to form the position series; returns are
// accounted with the cost model and concatenated across windows for
// metric computation. If no window fits, it returns a zero-trade result
// (never raises).
func Run(
	bars []pipeline.Bar,
	fn SignalFn,
	params map[string]float64,
	finalConfidence float64,
	cfg config.BacktestConfig,
	annualizationFactor float64,
	seed int64,
) pipeline.BacktestResult {
	windows := BuildWindows(len(bars), cfg.TrainWindow, cfg.ValidationWindow, cfg.Scheme)
	if len(windows) == 0 {
		return pipeline.BacktestResult{Diagnostic: "insufficient bars for a single walk-forward window"}
	}

	rawSignal := fn(bars, params)

	var strategyReturns []float64
	var positions []float64
	var baselineReturns []float64

	var prevPos float64
	for _, w := range windows {
		for t := w.ValStart; t < w.ValEnd && t < len(bars); t++ {
			if t == 0 || bars[t-1].Close <= 0 || bars[t].Close <= 0 {
				continue
			}
			shiftedSignalIdx := t - 1
			signalVal := 0.0
			if shiftedSignalIdx >= 0 && shiftedSignalIdx < len(rawSignal) {
				signalVal = rawSignal[shiftedSignalIdx]
			}
			pos := pipeline.Clamp(signalVal*finalConfidence, -1, 1)

			barReturn := math.Log(bars[t].Close / bars[t-1].Close)
			cost := costOfTurnover(prevPos, pos, cfg.CostBps)
			stratReturn := prevPos*barReturn - cost

			strategyReturns = append(strategyReturns, stratReturn)
			positions = append(positions, pos)
			baselineReturns = append(baselineReturns, barReturn)

			prevPos = pos
		}
	}

	if len(strategyReturns) == 0 {
		return pipeline.BacktestResult{Diagnostic: "no bars fell within a validation window"}
	}

	return ComputeMetrics(MetricsInput{
		Returns:             strategyReturns,
		Positions:           positions,
		BaselineReturns:     baselineReturns,
		AnnualizationFactor: annualizationFactor,
		SharpeBootstrapB:    cfg.SharpeBootstrapB,
		BootstrapSeed:       seed,
	})
}
