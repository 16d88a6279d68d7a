// Package features computes the per-tier statistical feature bundle of
// spec §4.1: Hurst exponent (R/S and DFA variants), the Lo-MacKinlay
// variance ratio, an augmented Dickey-Fuller test, lag-1 autocorrelation,
// and annualized realized volatility, plus a bootstrap confidence
// interval for the Hurst estimate. Each tier's bundle is a pure function
// of that tier's bar series, so the three tiers can be computed
// concurrently (spec §5).
package features

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/regime-engine/internal/pipeline"
	"github.com/aristath/regime-engine/internal/statutil"
	"github.com/aristath/regime-engine/pkg/formulas"
)

// subsampleSizes are the rolling-window subsample lengths used for both
// the R/S and DFA regressions (§4.1).
var subsampleSizes = []int{10, 20, 50, 100}

// varianceRatioLags are the Lo-MacKinlay lags (§4.1).
var varianceRatioLags = []int{2, 4, 8, 16}

// Config controls feature computation independent of the run's classifier
// or backtest settings.
type Config struct {
	MinObservations  int
	AnnualizationFactor float64
	BootstrapB       int
	BootstrapSeed    int64
}

// Compute builds the FeatureBundle for one tier's bar series. If the
// series has fewer than cfg.MinObservations bars, it returns a bundle
// with Insufficient=true and all statistics zeroed, plus a
// feature_insufficient error carrying the required and actual counts
// (§4.1 edge policy).
func Compute(series pipeline.BarSeries, cfg Config) (pipeline.FeatureBundle, error) {
	n := len(series.Bars)
	if n < cfg.MinObservations {
		return pipeline.FeatureBundle{Tier: series.Tier, SampleSize: n, Insufficient: true},
			pipeline.NewError(pipeline.ErrFeatureInsufficient, "features."+string(series.Tier),
				fmtInsufficient(cfg.MinObservations, n))
	}

	returns := series.LogReturns()
	closes := series.Closes()

	hurstRS := HurstRS(returns)
	hurstDFA := HurstDFA(returns)
	vrStat, vrP := VarianceRatio(returns, varianceRatioLags)
	adfStat, adfP := ADF(closes)
	acf1 := ACFLag1(returns)
	vol := RealizedVolAnnualized(returns, cfg.AnnualizationFactor)
	ciLow, ciHigh := HurstCI(returns, cfg.BootstrapB, cfg.BootstrapSeed)

	var emaDistance, bollPos float64
	if d := formulas.CalculateDistanceFromEMA(closes, 200); d != nil {
		emaDistance = *d
	}
	if b := formulas.CalculateBollingerPosition(closes, 20, 2); b != nil {
		bollPos = b.Position
	}

	return pipeline.FeatureBundle{
		Tier:                  series.Tier,
		HurstRS:               hurstRS,
		HurstDFA:              hurstDFA,
		VRStatistic:           vrStat,
		VRPValue:              vrP,
		ADFStatistic:          adfStat,
		ADFPValue:             adfP,
		ACFLag1:               acf1,
		RealizedVolAnnualized: vol,
		SampleSize:            n,
		CILowerHurst:          ciLow,
		CIUpperHurst:          ciHigh,
		EMADistance200:        emaDistance,
		BollingerPosition20:   bollPos,
	}, nil
}

func fmtInsufficient(required, actual int) string {
	return "sample_size below minimum: required=" + itoa(required) + " actual=" + itoa(actual)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// HurstRS estimates the Hurst exponent via the classical rescaled-range
// method on a winsorized return series, regressing log(R/S) on
// log(window size) across subsampleSizes.
func HurstRS(returns []float64) float64 {
	if len(returns) < subsampleSizes[0]*2 {
		return math.NaN()
	}
	winsorized := statutil.Winsorize(returns, 0.01, 0.99)
	return hurstRSFrom(winsorized)
}

func hurstRSFrom(series []float64) float64 {
	var logN, logRS []float64
	for _, n := range subsampleSizes {
		if n > len(series) {
			continue
		}
		rs := averageRescaledRange(series, n)
		if rs > 0 {
			logN = append(logN, math.Log(float64(n)))
			logRS = append(logRS, math.Log(rs))
		}
	}
	if len(logN) < 2 {
		return math.NaN()
	}
	slope := statutil.LinRegSlope(logN, logRS)
	return pipeline.Clamp(slope, 0, 1)
}

func averageRescaledRange(series []float64, n int) float64 {
	chunks := len(series) / n
	if chunks == 0 {
		return 0
	}
	var sum float64
	var count int
	for c := 0; c < chunks; c++ {
		chunk := series[c*n : (c+1)*n]
		mean := stat.Mean(chunk, nil)
		var cum, maxC, minC float64
		maxC, minC = math.Inf(-1), math.Inf(1)
		for _, v := range chunk {
			cum += v - mean
			if cum > maxC {
				maxC = cum
			}
			if cum < minC {
				minC = cum
			}
		}
		r := maxC - minC
		s := stat.StdDev(chunk, nil)
		if s > 0 {
			sum += r / s
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// HurstDFA estimates the Hurst exponent via detrended fluctuation
// analysis: integrate the mean-centered returns into a profile, detrend
// each window linearly, and regress log(F(n)) on log(n).
func HurstDFA(returns []float64) float64 {
	if len(returns) < subsampleSizes[0]*2 {
		return math.NaN()
	}
	mean := stat.Mean(returns, nil)
	profile := make([]float64, len(returns))
	var cum float64
	for i, r := range returns {
		cum += r - mean
		profile[i] = cum
	}

	var logN, logF []float64
	for _, n := range subsampleSizes {
		if n >= len(profile) {
			continue
		}
		segments := len(profile) / n
		if segments == 0 {
			continue
		}
		xs := make([]float64, n)
		for i := range xs {
			xs[i] = float64(i)
		}
		var fsq float64
		for s := 0; s < segments; s++ {
			seg := profile[s*n : (s+1)*n]
			alpha, beta := stat.LinearRegression(xs, seg, nil, false)
			var ss float64
			for i, v := range seg {
				resid := v - (alpha + beta*xs[i])
				ss += resid * resid
			}
			fsq += ss / float64(n)
		}
		f := math.Sqrt(fsq / float64(segments))
		if f > 0 {
			logN = append(logN, math.Log(float64(n)))
			logF = append(logF, math.Log(f))
		}
	}
	if len(logN) < 2 {
		return math.NaN()
	}
	slope := statutil.LinRegSlope(logN, logF)
	return pipeline.Clamp(slope, 0, 1)
}

// VarianceRatio computes the Lo-MacKinlay variance ratio aggregated
// across lags, with a heteroskedasticity-robust p-value derived from the
// average asymptotic z-statistic.
func VarianceRatio(returns []float64, lags []int) (vr, pvalue float64) {
	n := len(returns)
	if n < 20 {
		return 1.0, 1.0
	}
	mean := stat.Mean(returns, nil)
	var var1 float64
	for _, r := range returns {
		d := r - mean
		var1 += d * d
	}
	var1 /= float64(n - 1)
	if var1 <= 0 {
		return 1.0, 1.0
	}

	var vrs, zs []float64
	for _, q := range lags {
		if q >= n {
			continue
		}
		m := n - q + 1
		var varQ float64
		for i := 0; i < m; i++ {
			var sum float64
			for j := 0; j < q; j++ {
				sum += returns[i+j]
			}
			d := sum - float64(q)*mean
			varQ += d * d
		}
		varQ /= float64(q * q * m)
		v := varQ / var1
		vrs = append(vrs, v)

		// Lo-MacKinlay heteroskedasticity-consistent variance theta(q):
		// weighted sum of the autocorrelation variance estimates delta_j.
		sumSq := var1 * float64(n-1)
		var theta float64
		for j := 1; j < q; j++ {
			var num float64
			for k := j; k < n; k++ {
				a := returns[k] - mean
				b := returns[k-j] - mean
				num += a * a * b * b
			}
			delta := float64(n) * num / (sumSq * sumSq)
			w := 2 * float64(q-j) / float64(q)
			theta += w * w * delta
		}
		se := math.Sqrt(theta / float64(n))
		if se > 0 {
			zs = append(zs, (v-1)/se)
		}
	}
	if len(vrs) == 0 {
		return 1.0, 1.0
	}
	vr = stat.Mean(vrs, nil)
	if len(zs) == 0 {
		return vr, 1.0
	}
	zAvg := stat.Mean(zs, nil)
	pvalue = 2 * (1 - statutil.NormalCDF(math.Abs(zAvg)))
	return vr, pipeline.Clamp(pvalue, 0, 1)
}

// adfCriticalPoints approximate the MacKinnon (1994) response-surface
// p-values for the constant-only augmented Dickey-Fuller test,
// interpolated linearly between tabulated points. This is an engineering
// approximation, not the exact response surface; see DESIGN.md.
var adfCriticalPoints = []struct {
	t, p float64
}{
	{-4.80, 0.001}, {-4.38, 0.01}, {-3.95, 0.025}, {-3.60, 0.05},
	{-3.24, 0.10}, {-2.50, 0.25}, {-1.60, 0.50}, {-0.50, 0.75},
	{0.50, 0.90}, {1.50, 0.97}, {3.00, 0.995},
}

// ADF runs an augmented Dickey-Fuller regression on the price series
// (not returns, per §4.1) with a small fixed lag order and returns the
// t-statistic on the lagged level coefficient plus its approximate
// p-value.
func ADF(prices []float64) (statistic, pvalue float64) {
	n := len(prices)
	if n < 30 {
		return 0, 1
	}
	logPrices := make([]float64, 0, n)
	for _, p := range prices {
		if p > 0 {
			logPrices = append(logPrices, math.Log(p))
		}
	}
	if len(logPrices) < 30 {
		return 0, 1
	}

	lagOrder := 4
	if len(logPrices)/10 < lagOrder {
		lagOrder = len(logPrices) / 10
	}
	if lagOrder < 1 {
		lagOrder = 1
	}

	y := logPrices
	m := len(y) - lagOrder - 1
	if m < 10 {
		return 0, 1
	}

	// Regress Δy_t on [1, y_{t-1}, Δy_{t-1}, ..., Δy_{t-lagOrder}].
	cols := 2 + lagOrder
	x := make([][]float64, m)
	dy := make([]float64, m)
	for i := 0; i < m; i++ {
		t := i + lagOrder + 1
		row := make([]float64, cols)
		row[0] = 1
		row[1] = y[t-1]
		for l := 1; l <= lagOrder; l++ {
			row[1+l] = y[t-l] - y[t-l-1]
		}
		x[i] = row
		dy[i] = y[t] - y[t-1]
	}

	_, tstat, ok := olsCoefTStat(x, dy, 1)
	if !ok {
		return 0, 1
	}
	return tstat, adfPValue(tstat)
}

func adfPValue(t float64) float64 {
	pts := adfCriticalPoints
	if t <= pts[0].t {
		return pipeline.Clamp(pts[0].p*math.Exp(t-pts[0].t), 0, 1)
	}
	for i := 0; i < len(pts)-1; i++ {
		if t >= pts[i].t && t <= pts[i+1].t {
			frac := (t - pts[i].t) / (pts[i+1].t - pts[i].t)
			return pts[i].p + frac*(pts[i+1].p-pts[i].p)
		}
	}
	return pts[len(pts)-1].p
}

// olsCoefTStat solves the OLS normal equations (X'X)^-1 X'y via
// gonum/mat, returning the coefficient and t-statistic for column
// targetCol.
func olsCoefTStat(x [][]float64, y []float64, targetCol int) (coef, tstat float64, ok bool) {
	n := len(x)
	if n == 0 {
		return 0, 0, false
	}
	cols := len(x[0])

	flat := make([]float64, 0, n*cols)
	for _, row := range x {
		flat = append(flat, row...)
	}
	xMat := mat.NewDense(n, cols, flat)
	yVec := mat.NewVecDense(n, y)

	var xtx mat.Dense
	xtx.Mul(xMat.T(), xMat)

	var inv mat.Dense
	if err := inv.Inverse(&xtx); err != nil {
		return 0, 0, false
	}

	var xty mat.VecDense
	xty.MulVec(xMat.T(), yVec)

	var beta mat.VecDense
	beta.MulVec(&inv, &xty)

	var yhat mat.VecDense
	yhat.MulVec(xMat, &beta)

	var rss float64
	for i := 0; i < n; i++ {
		resid := y[i] - yhat.AtVec(i)
		rss += resid * resid
	}
	dof := n - cols
	if dof <= 0 {
		return beta.AtVec(targetCol), 0, false
	}
	sigma2 := rss / float64(dof)
	se := math.Sqrt(sigma2 * inv.At(targetCol, targetCol))
	if se <= 0 || math.IsNaN(se) {
		return beta.AtVec(targetCol), 0, false
	}
	return beta.AtVec(targetCol), beta.AtVec(targetCol) / se, true
}

// ACFLag1 is the lag-1 sample autocorrelation of returns.
func ACFLag1(returns []float64) float64 {
	if len(returns) < 3 {
		return 0
	}
	return stat.Correlation(returns[:len(returns)-1], returns[1:], nil)
}

// RealizedVolAnnualized is stddev(returns) * sqrt(annualizationFactor).
func RealizedVolAnnualized(returns []float64, annualizationFactor float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	return stat.StdDev(returns, nil) * math.Sqrt(annualizationFactor)
}

// HurstCI computes a stationary block-bootstrap 95% confidence interval
// for the R/S Hurst estimator, with mean block length ~= sqrt(N) and B
// resamples.
func HurstCI(returns []float64, b int, seed int64) (lower, upper float64) {
	n := len(returns)
	if n < subsampleSizes[0]*2 || b <= 0 {
		return 0, 1
	}
	blockLen := int(math.Round(math.Sqrt(float64(n))))
	rng := rand.New(rand.NewSource(seed))

	samples := make([]float64, 0, b)
	for i := 0; i < b; i++ {
		resample := statutil.BlockResample(returns, blockLen, rng)
		h := hurstRSFrom(resample)
		if !math.IsNaN(h) {
			samples = append(samples, h)
		}
	}
	if len(samples) == 0 {
		return 0, 1
	}
	return statutil.Quantile(0.025, samples), statutil.Quantile(0.975, samples)
}
