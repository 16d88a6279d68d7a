// Package statutil collects small numerical helpers shared by the
// features, backtest, transitions, and orchestrator packages:
// winsorization, the stationary block bootstrap, linear-regression
// slopes, quantiles, and normal-CDF p-values. Centralizing them avoids
// two near-identical bootstrap loops (Hurst CI and Sharpe CI).
package statutil

import (
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Winsorize clamps each value in x to the [lowerPct, upperPct] empirical
// percentile range. lowerPct/upperPct are in [0,1], e.g. 0.01/0.99.
func Winsorize(x []float64, lowerPct, upperPct float64) []float64 {
	if len(x) == 0 {
		return x
	}
	sorted := make([]float64, len(x))
	copy(sorted, x)
	sort.Float64s(sorted)

	lo := stat.Quantile(lowerPct, stat.Empirical, sorted, nil)
	hi := stat.Quantile(upperPct, stat.Empirical, sorted, nil)

	out := make([]float64, len(x))
	for i, v := range x {
		if v < lo {
			v = lo
		}
		if v > hi {
			v = hi
		}
		out[i] = v
	}
	return out
}

// LinRegSlope returns the slope of the least-squares fit of ys on xs.
func LinRegSlope(xs, ys []float64) float64 {
	if len(xs) < 2 || len(xs) != len(ys) {
		return 0
	}
	_, beta := stat.LinearRegression(xs, ys, nil, false)
	return beta
}

// BlockResample draws a stationary block bootstrap resample of data with
// the given mean block length, using rng for block start positions and
// for the geometrically distributed block lengths (each block ends after
// any element with probability 1/blockLen; blocks wrap circularly). The
// resample has the same length as data.
func BlockResample(data []float64, blockLen int, rng *rand.Rand) []float64 {
	n := len(data)
	if n == 0 {
		return nil
	}
	if blockLen < 1 {
		blockLen = 1
	}
	pEnd := 1 / float64(blockLen)
	out := make([]float64, 0, n)
	for len(out) < n {
		start := rng.Intn(n)
		for i := 0; len(out) < n; i++ {
			out = append(out, data[(start+i)%n])
			if rng.Float64() < pEnd {
				break
			}
		}
	}
	return out
}

// Quantile returns the p-th empirical quantile of x (x need not be
// sorted; a sorted copy is made).
func Quantile(p float64, x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sorted := make([]float64, len(x))
	copy(sorted, x)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// NormalCDF evaluates the standard normal CDF at z.
func NormalCDF(z float64) float64 {
	n := distuv.Normal{Mu: 0, Sigma: 1}
	return n.CDF(z)
}

// MedianInt returns the median of a slice of ints (rounded down on ties
// between two middle values, matching the "median run-length" usage in
// §4.2 where run lengths are whole bar counts).
func MedianInt(values []int) int {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]int, len(values))
	copy(sorted, values)
	sort.Ints(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
