// Package backtest implements the walk-forward engine of §4.7: rolling
// or expanding train/validation windows, a one-bar-shifted
// signal-to-position rule, a spread+slippage+fee cost model, trade
// extraction, and the 40+ metric set of §3.
package backtest

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/regime-engine/internal/config"
	"github.com/aristath/regime-engine/internal/pipeline"
	"github.com/aristath/regime-engine/internal/statutil"
)

// Trade is one open-to-close position interval (§4.7).
type Trade struct {
	EntryIdx, ExitIdx int
	Return            float64
	Long              bool
}

// ExtractTrades derives trades from a bar-aligned position series and
// its corresponding per-bar strategy returns. A trade opens when
// position moves away from zero or flips sign, and closes when position
// returns to zero or flips sign again; its return is the geometric sum
// of strategy_return over the holding interval.
func ExtractTrades(positions, returns []float64) []Trade {
	var trades []Trade
	entry := -1
	var entryLong bool
	var acc float64

	flush := func(exit int) {
		if entry < 0 {
			return
		}
		trades = append(trades, Trade{EntryIdx: entry, ExitIdx: exit, Return: acc, Long: entryLong})
		entry = -1
		acc = 0
	}

	for i := 0; i < len(positions); i++ {
		pos := positions[i]
		prev := 0.0
		if i > 0 {
			prev = positions[i-1]
		}

		opensNew := pos != 0 && (prev == 0 || sign(pos) != sign(prev))
		closes := prev != 0 && (pos == 0 || sign(pos) != sign(prev))

		if closes {
			flush(i)
		}
		if opensNew {
			entry = i
			entryLong = pos > 0
		}
		if entry >= 0 && i < len(returns) {
			acc += returns[i]
		}
	}
	flush(len(positions))
	return trades
}

func sign(v float64) int {
	if v > 0 {
		return 1
	}
	if v < 0 {
		return -1
	}
	return 0
}

// MetricsInput bundles everything ComputeMetrics needs.
type MetricsInput struct {
	Returns             []float64 // per-bar strategy_return_t, concatenated across validation windows
	Positions           []float64 // bar-aligned position series, same length as Returns
	BaselineReturns     []float64 // buy-and-hold log-returns over the same bars, zero cost
	AnnualizationFactor float64
	SharpeBootstrapB    int
	BootstrapSeed       int64
}

// ComputeMetrics computes the full BacktestResult. If Returns is empty,
// it returns a zero-trade result with a diagnostic flag and never
// raises (§4.7 failure mode).
func ComputeMetrics(in MetricsInput) pipeline.BacktestResult {
	if len(in.Returns) == 0 {
		return pipeline.BacktestResult{Diagnostic: "no validation-window returns available"}
	}

	equity := equityCurve(in.Returns)
	totalReturn := equity[len(equity)-1] - 1
	cagr := annualizedReturn(totalReturn, len(in.Returns), in.AnnualizationFactor)

	mean := stat.Mean(in.Returns, nil)
	vol := stat.StdDev(in.Returns, nil) * math.Sqrt(in.AnnualizationFactor)
	sharpe := sharpeRatio(in.Returns, in.AnnualizationFactor)

	sharpeLow, sharpeHigh := sharpeCI(in.Returns, in.AnnualizationFactor, in.SharpeBootstrapB, in.BootstrapSeed)

	downsideVol, sortino := sortinoRatio(in.Returns, in.AnnualizationFactor)
	omega := omegaRatio(in.Returns)

	drawdowns, maxDD, currentDD, ulcer, numDD, avgDD, avgDDDur, maxDDDur := drawdownStats(equity)

	calmar := 0.0
	if maxDD > 0 {
		calmar = cagr / maxDD
	}

	var95 := -statutil.Quantile(0.05, in.Returns)
	var99 := -statutil.Quantile(0.01, in.Returns)
	cvar95 := cvarAt(in.Returns, 0.05)

	trades := ExtractTrades(in.Positions, in.Returns)
	tradeStats := summarizeTrades(trades)

	exposure := exposureTime(in.Positions)
	turnover := annualTurnover(in.Positions, in.AnnualizationFactor)

	skew := stat.Skew(in.Returns, nil)
	kurt := stat.ExKurtosis(in.Returns, nil)

	var baselineTotal float64
	if len(in.BaselineReturns) > 0 {
		baseEquity := equityCurve(in.BaselineReturns)
		baselineTotal = baseEquity[len(baseEquity)-1] - 1
	}
	alpha := totalReturn - baselineTotal

	_ = drawdowns
	_ = mean

	return pipeline.BacktestResult{
		TotalReturn:          totalReturn,
		CAGR:                 cagr,
		Sharpe:               sharpe,
		SharpeCILow:          sharpeLow,
		SharpeCIHigh:         sharpeHigh,
		Sortino:              sortino,
		Calmar:               calmar,
		Omega:                omega,
		VolatilityAnnualized: vol,
		DownsideVol:          downsideVol,
		MaxDrawdown:          maxDD,
		CurrentDrawdown:      currentDD,
		UlcerIndex:           ulcer,
		NumDrawdowns:         numDD,
		AvgDrawdown:          avgDD,
		AvgDrawdownDuration:  avgDDDur,
		MaxDrawdownDuration:  maxDDDur,
		VaR95:                var95,
		VaR99:                var99,
		CVaR95:               cvar95,
		NumTrades:            tradeStats.numTrades,
		WinRate:              tradeStats.winRate,
		AvgWin:               tradeStats.avgWin,
		AvgLoss:              tradeStats.avgLoss,
		BestTrade:            tradeStats.bestTrade,
		WorstTrade:           tradeStats.worstTrade,
		ProfitFactor:         tradeStats.profitFactor,
		Expectancy:           tradeStats.expectancy,
		MaxConsecutiveWins:   tradeStats.maxConsecWins,
		MaxConsecutiveLosses: tradeStats.maxConsecLosses,
		AvgTradeDurationBars: tradeStats.avgDuration,
		ExposureTime:         exposure,
		AnnualTurnover:       turnover,
		ReturnsSkewness:      skew,
		ReturnsKurtosis:      kurt,
		LongTrades:           tradeStats.longTrades,
		ShortTrades:          tradeStats.shortTrades,
		LongWinRate:          tradeStats.longWinRate,
		ShortWinRate:         tradeStats.shortWinRate,
		BaselineTotalReturn:  baselineTotal,
		Alpha:                alpha,
	}
}

func equityCurve(returns []float64) []float64 {
	equity := make([]float64, len(returns))
	cum := 1.0
	for i, r := range returns {
		cum *= math.Exp(r)
		equity[i] = cum
	}
	return equity
}

func annualizedReturn(totalReturn float64, numBars int, annualizationFactor float64) float64 {
	if numBars == 0 {
		return 0
	}
	years := float64(numBars) / annualizationFactor
	if years <= 0 {
		return 0
	}
	return math.Pow(1+totalReturn, 1/years) - 1
}

func sharpeRatio(returns []float64, annualizationFactor float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := stat.Mean(returns, nil)
	sd := stat.StdDev(returns, nil)
	if sd <= 0 {
		return 0
	}
	return mean / sd * math.Sqrt(annualizationFactor)
}

func sharpeCI(returns []float64, annualizationFactor float64, b int, seed int64) (low, high float64) {
	if len(returns) < 10 || b <= 0 {
		s := sharpeRatio(returns, annualizationFactor)
		return s, s
	}
	blockLen := int(math.Round(math.Sqrt(float64(len(returns)))))
	rng := rand.New(rand.NewSource(seed))

	samples := make([]float64, 0, b)
	for i := 0; i < b; i++ {
		resample := statutil.BlockResample(returns, blockLen, rng)
		samples = append(samples, sharpeRatio(resample, annualizationFactor))
	}
	return statutil.Quantile(0.025, samples), statutil.Quantile(0.975, samples)
}

func sortinoRatio(returns []float64, annualizationFactor float64) (downsideVol, sortino float64) {
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) == 0 {
		return 0, 0
	}
	downsideVol = stat.StdDev(downside, nil) * math.Sqrt(annualizationFactor)
	if downsideVol <= 0 {
		return downsideVol, 0
	}
	mean := stat.Mean(returns, nil) * annualizationFactor
	return downsideVol, mean / downsideVol
}

func omegaRatio(returns []float64) float64 {
	var gains, losses float64
	for _, r := range returns {
		if r > 0 {
			gains += r
		} else {
			losses += -r
		}
	}
	if losses == 0 {
		if gains == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return gains / losses
}

func drawdownStats(equity []float64) (drawdowns []float64, maxDD, currentDD, ulcer float64, numDD int, avgDD, avgDDDur float64, maxDDDur int) {
	drawdowns = make([]float64, len(equity))
	peak := equity[0]
	var inDrawdown bool
	var ddStart int
	var durations []int
	var ddDepths []float64

	for i, e := range equity {
		if e > peak {
			if inDrawdown {
				durations = append(durations, i-ddStart)
				inDrawdown = false
			}
			peak = e
		}
		dd := 0.0
		if peak > 0 {
			dd = (peak - e) / peak
		}
		drawdowns[i] = dd
		if dd > 0 && !inDrawdown {
			inDrawdown = true
			ddStart = i
			ddDepths = append(ddDepths, 0)
		}
		if dd > maxDD {
			maxDD = dd
		}
		if inDrawdown && dd > ddDepths[len(ddDepths)-1] {
			ddDepths[len(ddDepths)-1] = dd
		}
	}
	if inDrawdown {
		durations = append(durations, len(equity)-ddStart)
	}
	currentDD = drawdowns[len(drawdowns)-1]

	var sqSum float64
	for _, dd := range drawdowns {
		sqSum += dd * dd
	}
	ulcer = math.Sqrt(sqSum / float64(len(drawdowns)))

	numDD = len(ddDepths)
	if numDD > 0 {
		var depthSum float64
		for _, d := range ddDepths {
			depthSum += d
		}
		avgDD = depthSum / float64(numDD)
	}
	if len(durations) > 0 {
		var durSum int
		for _, d := range durations {
			durSum += d
			if d > maxDDDur {
				maxDDDur = d
			}
		}
		avgDDDur = float64(durSum) / float64(len(durations))
	}
	return
}

func cvarAt(returns []float64, alpha float64) float64 {
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)
	cutoff := int(math.Ceil(alpha * float64(len(sorted))))
	if cutoff < 1 {
		cutoff = 1
	}
	if cutoff > len(sorted) {
		cutoff = len(sorted)
	}
	var sum float64
	for _, r := range sorted[:cutoff] {
		sum += r
	}
	return -(sum / float64(cutoff))
}

type tradeSummary struct {
	numTrades                    int
	winRate, avgWin, avgLoss     float64
	bestTrade, worstTrade        float64
	profitFactor, expectancy     float64
	maxConsecWins, maxConsecLosses int
	avgDuration                  float64
	longTrades, shortTrades      int
	longWinRate, shortWinRate    float64
}

func summarizeTrades(trades []Trade) tradeSummary {
	var s tradeSummary
	s.numTrades = len(trades)
	if s.numTrades == 0 {
		return s
	}

	var wins, losses int
	var winSum, lossSum float64
	var longWins, longTotal, shortWins, shortTotal int
	var consecWins, consecLosses int
	var durationSum int
	s.bestTrade = math.Inf(-1)
	s.worstTrade = math.Inf(1)

	for _, tr := range trades {
		durationSum += tr.ExitIdx - tr.EntryIdx
		if tr.Return > s.bestTrade {
			s.bestTrade = tr.Return
		}
		if tr.Return < s.worstTrade {
			s.worstTrade = tr.Return
		}
		if tr.Long {
			longTotal++
		} else {
			shortTotal++
		}
		if tr.Return > 0 {
			wins++
			winSum += tr.Return
			consecWins++
			consecLosses = 0
			if tr.Long {
				longWins++
			} else {
				shortWins++
			}
		} else if tr.Return < 0 {
			losses++
			lossSum += -tr.Return
			consecLosses++
			consecWins = 0
		} else {
			consecWins, consecLosses = 0, 0
		}
		if consecWins > s.maxConsecWins {
			s.maxConsecWins = consecWins
		}
		if consecLosses > s.maxConsecLosses {
			s.maxConsecLosses = consecLosses
		}
	}

	s.winRate = float64(wins) / float64(s.numTrades)
	if wins > 0 {
		s.avgWin = winSum / float64(wins)
	}
	if losses > 0 {
		s.avgLoss = lossSum / float64(losses)
	}
	if lossSum > 0 {
		s.profitFactor = winSum / lossSum
	} else if winSum > 0 {
		s.profitFactor = math.Inf(1)
	}
	s.expectancy = (winSum - lossSum) / float64(s.numTrades)
	s.avgDuration = float64(durationSum) / float64(s.numTrades)
	s.longTrades = longTotal
	s.shortTrades = shortTotal
	if longTotal > 0 {
		s.longWinRate = float64(longWins) / float64(longTotal)
	}
	if shortTotal > 0 {
		s.shortWinRate = float64(shortWins) / float64(shortTotal)
	}
	return s
}

func exposureTime(positions []float64) float64 {
	if len(positions) == 0 {
		return 0
	}
	var active int
	for _, p := range positions {
		if p != 0 {
			active++
		}
	}
	return float64(active) / float64(len(positions))
}

func annualTurnover(positions []float64, annualizationFactor float64) float64 {
	if len(positions) < 2 {
		return 0
	}
	var turnover float64
	for i := 1; i < len(positions); i++ {
		turnover += math.Abs(positions[i] - positions[i-1])
	}
	bars := float64(len(positions) - 1)
	if bars <= 0 {
		return 0
	}
	return turnover * annualizationFactor / bars
}

// costOfTurnover computes the cost (in return units) of moving from
// prevPos to pos given cost-bps configuration (§4.7).
func costOfTurnover(prevPos, pos float64, cost config.BacktestCostBps) float64 {
	turnover := math.Abs(pos - prevPos)
	return turnover * (cost.Spread + cost.Slippage + cost.Fee) / 10000
}
