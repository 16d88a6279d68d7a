// Package strategies holds the nine-strategy registry of §4.6: pure
// functions mapping a bar series and a parameter set to a signal series
// in {-1, 0, +1}, backed by go-talib indicators.
package strategies

import (
	"github.com/markcheno/go-talib"

	"github.com/aristath/regime-engine/internal/pipeline"
)

// Signal is a pure function over closing (and where needed high/low)
// prices, returning one value per bar in {-1, 0, +1}. It must not look
// ahead: signal[i] depends only on bars[0..i].
type Signal func(bars []pipeline.Bar, params map[string]float64) []float64

// Spec names one registry entry: its signal function, the regime labels
// it is applicable to, and its parameter grid (each key maps to the
// candidate values swept during grid search).
type Spec struct {
	Name         string
	Applicable   []pipeline.RegimeLabel
	ParamGrid    map[string][]float64
	Fn           Signal
}

// Registry is the fixed nine-strategy set.
var Registry = []Spec{
	{
		Name:       "ma_cross",
		Applicable: []pipeline.RegimeLabel{pipeline.LabelTrending, pipeline.LabelVolatileTrending},
		ParamGrid:  map[string][]float64{"fast": {10, 20}, "slow": {50, 100}},
		Fn:         maCross,
	},
	{
		Name:       "ema_cross",
		Applicable: []pipeline.RegimeLabel{pipeline.LabelTrending, pipeline.LabelVolatileTrending},
		ParamGrid:  map[string][]float64{"fast": {12, 26}, "slow": {50, 100}},
		Fn:         emaCross,
	},
	{
		Name:       "macd",
		Applicable: []pipeline.RegimeLabel{pipeline.LabelTrending, pipeline.LabelVolatileTrending},
		ParamGrid:  map[string][]float64{"fast": {12}, "slow": {26}, "signal": {9}},
		Fn:         macd,
	},
	{
		Name:       "donchian_breakout",
		Applicable: []pipeline.RegimeLabel{pipeline.LabelTrending, pipeline.LabelVolatileTrending},
		ParamGrid:  map[string][]float64{"period": {20, 55}},
		Fn:         donchianBreakout,
	},
	{
		Name:       "bollinger_revert",
		Applicable: []pipeline.RegimeLabel{pipeline.LabelMeanReverting, pipeline.LabelVolatileMeanReverting},
		ParamGrid:  map[string][]float64{"period": {20}, "dev": {2, 2.5}},
		Fn:         bollingerRevert,
	},
	{
		Name:       "rsi_revert",
		Applicable: []pipeline.RegimeLabel{pipeline.LabelMeanReverting, pipeline.LabelVolatileMeanReverting},
		ParamGrid:  map[string][]float64{"period": {14}, "oversold": {25, 30}, "overbought": {70, 75}},
		Fn:         rsiRevert,
	},
	{
		Name:       "keltner_revert",
		Applicable: []pipeline.RegimeLabel{pipeline.LabelMeanReverting, pipeline.LabelVolatileMeanReverting},
		ParamGrid:  map[string][]float64{"period": {20}, "atrMult": {1.5, 2.0}},
		Fn:         keltnerRevert,
	},
	{
		Name:       "atr_filtered_trend",
		Applicable: []pipeline.RegimeLabel{pipeline.LabelTrending, pipeline.LabelIndeterminate},
		ParamGrid:  map[string][]float64{"period": {20}, "atrPeriod": {14}},
		Fn:         atrFilteredTrend,
	},
	{
		Name:       "carry_hold",
		Applicable: []pipeline.RegimeLabel{pipeline.LabelIndeterminate},
		ParamGrid:  map[string][]float64{},
		Fn:         carryHold,
	},
}

// ApplicableTo returns the registry subset whose Applicable list contains
// label's base form.
func ApplicableTo(label pipeline.RegimeLabel) []Spec {
	base := label.BaseLabel()
	var out []Spec
	for _, s := range Registry {
		for _, a := range s.Applicable {
			if a.BaseLabel() == base {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

func closes(bars []pipeline.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func highsLowsCloses(bars []pipeline.Bar) (highs, lows, closesOut []float64) {
	highs = make([]float64, len(bars))
	lows = make([]float64, len(bars))
	closesOut = make([]float64, len(bars))
	for i, b := range bars {
		highs[i], lows[i], closesOut[i] = b.High, b.Low, b.Close
	}
	return
}

func maCross(bars []pipeline.Bar, params map[string]float64) []float64 {
	fast, slow := int(params["fast"]), int(params["slow"])
	c := closes(bars)
	fastMA := talib.Sma(c, fast)
	slowMA := talib.Sma(c, slow)
	return crossSignal(fastMA, slowMA)
}

func emaCross(bars []pipeline.Bar, params map[string]float64) []float64 {
	fast, slow := int(params["fast"]), int(params["slow"])
	c := closes(bars)
	fastEMA := talib.Ema(c, fast)
	slowEMA := talib.Ema(c, slow)
	return crossSignal(fastEMA, slowEMA)
}

func crossSignal(fast, slow []float64) []float64 {
	n := len(fast)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		if fast[i] == 0 && slow[i] == 0 {
			continue
		}
		if fast[i] > slow[i] {
			out[i] = 1
		} else if fast[i] < slow[i] {
			out[i] = -1
		}
	}
	return out
}

func macd(bars []pipeline.Bar, params map[string]float64) []float64 {
	fast, slow, signalPeriod := int(params["fast"]), int(params["slow"]), int(params["signal"])
	c := closes(bars)
	macdLine, signalLine, _ := talib.Macd(c, fast, slow, signalPeriod)
	return crossSignal(macdLine, signalLine)
}

func donchianBreakout(bars []pipeline.Bar, params map[string]float64) []float64 {
	period := int(params["period"])
	c := closes(bars)
	upper := talib.Max(c, period)
	lower := talib.Min(c, period)

	n := len(c)
	out := make([]float64, n)
	for i := period; i < n; i++ {
		switch {
		case c[i] >= upper[i-1] && upper[i-1] != 0:
			out[i] = 1
		case c[i] <= lower[i-1] && lower[i-1] != 0:
			out[i] = -1
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

func bollingerRevert(bars []pipeline.Bar, params map[string]float64) []float64 {
	period := int(params["period"])
	dev := params["dev"]
	c := closes(bars)
	upper, _, lower := talib.BBands(c, period, dev, dev, 0)

	n := len(c)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		if upper[i] == 0 && lower[i] == 0 {
			continue
		}
		switch {
		case c[i] >= upper[i]:
			out[i] = -1
		case c[i] <= lower[i]:
			out[i] = 1
		}
	}
	return out
}

func rsiRevert(bars []pipeline.Bar, params map[string]float64) []float64 {
	period := int(params["period"])
	oversold, overbought := params["oversold"], params["overbought"]
	c := closes(bars)
	rsi := talib.Rsi(c, period)

	n := len(c)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		switch {
		case rsi[i] != 0 && rsi[i] <= oversold:
			out[i] = 1
		case rsi[i] != 0 && rsi[i] >= overbought:
			out[i] = -1
		}
	}
	return out
}

func keltnerRevert(bars []pipeline.Bar, params map[string]float64) []float64 {
	period := int(params["period"])
	atrMult := params["atrMult"]
	highs, lows, c := highsLowsCloses(bars)
	mid := talib.Ema(c, period)
	atr := talib.Atr(highs, lows, c, period)

	n := len(c)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		if mid[i] == 0 {
			continue
		}
		upper := mid[i] + atrMult*atr[i]
		lower := mid[i] - atrMult*atr[i]
		switch {
		case c[i] >= upper:
			out[i] = -1
		case c[i] <= lower:
			out[i] = 1
		}
	}
	return out
}

func atrFilteredTrend(bars []pipeline.Bar, params map[string]float64) []float64 {
	period := int(params["period"])
	atrPeriod := int(params["atrPeriod"])
	highs, lows, c := highsLowsCloses(bars)
	ma := talib.Sma(c, period)
	atr := talib.Atr(highs, lows, c, atrPeriod)

	n := len(c)
	out := make([]float64, n)
	for i := 1; i < n; i++ {
		if ma[i] == 0 || atr[i] == 0 {
			continue
		}
		band := atr[i] * 0.5
		switch {
		case c[i] > ma[i]+band:
			out[i] = 1
		case c[i] < ma[i]-band:
			out[i] = -1
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// carryHold is the constant long baseline: always +1, so the grid
// search and backtest have a buy-and-hold reference to beat.
func carryHold(bars []pipeline.Bar, _ map[string]float64) []float64 {
	out := make([]float64, len(bars))
	for i := range out {
		out[i] = 1
	}
	return out
}
