package strategies

import (
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/regime-engine/internal/pipeline"
)

// GridSearch enumerates the cartesian product of each applicable
// strategy's parameter grid (capped at maxGridSize combinations total),
// evaluates every combination on bars via a single-pass backtest, and
// returns the full comparison table ranked by Sharpe, then max-drawdown
// (smaller wins), then parameter sparsity (fewer nonzero params wins).
//
// Evaluation runs across a bounded worker pool (runtime.NumCPU would be
// the usual choice; callers pass workers explicitly to keep the function
// pure and testable). Results are collected into a slice indexed by grid
// position before sorting, so the ranking is deterministic regardless of
// goroutine completion order.
func GridSearch(bars []pipeline.Bar, applicable []Spec, maxGridSize, workers int) []pipeline.StrategyEvalResult {
	type job struct {
		spec   Spec
		params map[string]float64
	}

	var jobs []job
	for _, spec := range applicable {
		combos := cartesianProduct(spec.ParamGrid)
		for _, params := range combos {
			if len(jobs) >= maxGridSize {
				break
			}
			jobs = append(jobs, job{spec: spec, params: params})
		}
		if len(jobs) >= maxGridSize {
			break
		}
	}

	results := make([]pipeline.StrategyEvalResult, len(jobs))

	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, j := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, j job) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					results[idx] = pipeline.StrategyEvalResult{
						Strategy: pipeline.StrategySpec{Name: j.spec.Name, Parameters: j.params},
					}
				}
			}()
			results[idx] = evaluate(bars, j.spec, j.params)
		}(i, j)
	}
	wg.Wait()

	sort.SliceStable(results, func(i, k int) bool {
		if results[i].Sharpe != results[k].Sharpe {
			return results[i].Sharpe > results[k].Sharpe
		}
		if results[i].MaxDrawdown != results[k].MaxDrawdown {
			return results[i].MaxDrawdown < results[k].MaxDrawdown
		}
		return results[i].NonzeroParams < results[k].NonzeroParams
	})

	return results
}

// evaluate runs a single-pass backtest of one (strategy, parameters)
// combination: signal shifted by one bar, no cost model (§4.6's
// "simpler aggregation" relative to the full walk-forward backtester).
func evaluate(bars []pipeline.Bar, spec Spec, params map[string]float64) pipeline.StrategyEvalResult {
	signal := spec.Fn(bars, params)
	n := len(bars)

	var returns []float64
	var equity, peak, maxDD float64 = 1, 1, 0
	var totalReturn float64
	trades := 0
	var lastPos float64

	for i := 1; i < n; i++ {
		if bars[i-1].Close <= 0 || bars[i].Close <= 0 {
			continue
		}
		pos := 0.0
		if i-1 < len(signal) {
			pos = signal[i-1]
		}
		if pos != lastPos {
			trades++
		}
		lastPos = pos

		r := pos * math.Log(bars[i].Close/bars[i-1].Close)
		returns = append(returns, r)
		equity *= math.Exp(r)
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			dd := (peak - equity) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	if equity > 0 {
		totalReturn = equity - 1
	}

	var sharpe float64
	if len(returns) > 1 {
		mean := stat.Mean(returns, nil)
		sd := stat.StdDev(returns, nil)
		if sd > 0 {
			sharpe = mean / sd * math.Sqrt(252)
		}
	}

	nonzero := 0
	for _, v := range params {
		if v != 0 {
			nonzero++
		}
	}

	return pipeline.StrategyEvalResult{
		Strategy:      pipeline.StrategySpec{Name: spec.Name, Parameters: params},
		Sharpe:        sharpe,
		MaxDrawdown:   maxDD,
		NonzeroParams: nonzero,
		TotalReturn:   totalReturn,
		NumTrades:     trades,
	}
}

// cartesianProduct expands a parameter grid into every combination, in a
// deterministic order (keys sorted, values in the order given).
func cartesianProduct(grid map[string][]float64) []map[string]float64 {
	if len(grid) == 0 {
		return []map[string]float64{{}}
	}
	keys := make([]string, 0, len(grid))
	for k := range grid {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combos := []map[string]float64{{}}
	for _, k := range keys {
		var next []map[string]float64
		for _, combo := range combos {
			for _, v := range grid[k] {
				c := make(map[string]float64, len(combo)+1)
				for ck, cv := range combo {
					c[ck] = cv
				}
				c[k] = v
				next = append(next, c)
			}
		}
		combos = next
	}
	return combos
}
