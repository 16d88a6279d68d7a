// Package allocator implements the volatility-target allocator of §4.9:
// Ledoit-Wolf covariance shrinkage, a condition-number-guarded diagonal
// fallback, and a scale-then-clamp weight transform with graceful
// degradation when symbols or observations are missing.
package allocator

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/regime-engine/internal/config"
	"github.com/aristath/regime-engine/internal/pipeline"
	"github.com/aristath/regime-engine/pkg/formulas"
)

const conditionNumberCeiling = 1e8

// Input bundles the raw weights and return history the allocator reads.
type Input struct {
	RawWeights map[string]float64
	// Returns maps symbol to its return history (most recent last).
	// Histories may differ in length or be absent for some symbols.
	Returns map[string][]float64
	Cfg     config.VolTargetConfig
}

// Scale runs the five steps of §4.9 and returns the scaled weights plus
// diagnostics. It never fails; every degraded path adds a warning. With
// no usable symbol or a near-zero portfolio volatility the input weights
// are returned unchanged; an ill-conditioned covariance falls back to its
// diagonal and scaling continues; symbols with too little return history
// keep their original weights while the others are scaled.
func Scale(in Input) (map[string]float64, pipeline.VolatilityTargetDiagnostics) {
	diag := pipeline.VolatilityTargetDiagnostics{
		OriginalWeights: copyWeights(in.RawWeights),
		TargetVol:       in.Cfg.TargetVolatility,
	}

	symbols, obs := usableSymbols(in.RawWeights, in.Returns, in.Cfg.MinObservations)
	if len(symbols) == 0 {
		diag.ScaledWeights = copyWeights(in.RawWeights)
		diag.ScalingFactor = 1.0
		diag.Warnings = append(diag.Warnings, "no symbol had sufficient observations; weights unchanged")
		return diag.ScaledWeights, diag
	}
	diag.ObservationsUsed = obs

	cov := sampleCovariance(symbols, in.Returns, obs)
	if in.Cfg.UseShrinkage {
		cov = ledoitWolfShrink(cov, symbols, in.Returns, obs)
	}

	condNumber := conditionNumber(cov)
	diag.CovarianceConditionNumber = condNumber
	if condNumber > conditionNumberCeiling {
		cov = diagonalOnly(cov)
		diag.Warnings = append(diag.Warnings, "covariance condition number exceeded 1e8; fell back to diagonal-only covariance")
	}

	w := vectorOf(symbols, in.RawWeights)
	portfolioVar := quadForm(cov, w)
	sigmaP := math.Sqrt(math.Max(portfolioVar, 0)) * math.Sqrt(in.Cfg.AnnualizationFactor)
	diag.EstimatedVol = sigmaP

	const eps = 1e-9
	if sigmaP <= eps {
		diag.ScaledWeights = copyWeights(in.RawWeights)
		diag.ScalingFactor = 1.0
		diag.Warnings = append(diag.Warnings, "portfolio volatility near zero; weights unchanged")
		return diag.ScaledWeights, diag
	}

	alpha := in.Cfg.TargetVolatility / sigmaP
	diag.ScalingFactor = alpha

	scaled := make(map[string]float64, len(in.RawWeights))
	scaledSet := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		scaledSet[s] = true
	}
	for sym, w := range in.RawWeights {
		if scaledSet[sym] {
			scaled[sym] = pipeline.Clamp(alpha*w, in.Cfg.MinWeight, in.Cfg.MaxWeight)
		} else {
			scaled[sym] = w
			diag.Warnings = append(diag.Warnings, "symbol "+sym+" retained original weight: insufficient return history")
		}
	}
	diag.ScaledWeights = scaled

	variances := make([]float64, len(symbols))
	for i := range symbols {
		variances[i] = cov.At(i, i)
	}
	baseline := formulas.InverseVarianceWeights(variances)
	diag.InverseVarianceBaseline = make(map[string]float64, len(symbols))
	for i, s := range symbols {
		diag.InverseVarianceBaseline[s] = baseline[i]
	}

	tailReturns := make(map[string][]float64, len(symbols))
	for _, s := range symbols {
		hist := in.Returns[s]
		tailReturns[s] = hist[len(hist)-obs:]
	}
	diag.TailCVaR95 = formulas.CalculatePortfolioCVaR(scaled, tailReturns, 0.95)

	return scaled, diag
}

// usableSymbols returns the symbols with at least minObservations paired
// return history, in deterministic (sorted) order, and the common
// observation count used (the minimum across usable symbols).
func usableSymbols(weights map[string]float64, returns map[string][]float64, minObservations int) ([]string, int) {
	var symbols []string
	minLen := -1
	for sym := range weights {
		hist, ok := returns[sym]
		if !ok || len(hist) < minObservations {
			continue
		}
		symbols = append(symbols, sym)
		if minLen < 0 || len(hist) < minLen {
			minLen = len(hist)
		}
	}
	sort.Strings(symbols)
	if minLen < 0 {
		minLen = 0
	}
	return symbols, minLen
}

func vectorOf(symbols []string, weights map[string]float64) *mat.VecDense {
	v := mat.NewVecDense(len(symbols), nil)
	for i, s := range symbols {
		v.SetVec(i, weights[s])
	}
	return v
}

// sampleCovariance builds the sample covariance matrix of the trailing
// obs returns for each symbol.
func sampleCovariance(symbols []string, returns map[string][]float64, obs int) *mat.SymDense {
	n := len(symbols)
	data := make([][]float64, n)
	for i, s := range symbols {
		hist := returns[s]
		data[i] = hist[len(hist)-obs:]
	}

	means := make([]float64, n)
	for i := range data {
		var sum float64
		for _, v := range data[i] {
			sum += v
		}
		means[i] = sum / float64(obs)
	}

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var sum float64
			for t := 0; t < obs; t++ {
				sum += (data[i][t] - means[i]) * (data[j][t] - means[j])
			}
			denom := float64(obs - 1)
			if denom <= 0 {
				denom = 1
			}
			cov.SetSym(i, j, sum/denom)
		}
	}
	return cov
}

// ledoitWolfShrink applies Ledoit-Wolf shrinkage toward a diagonal
// target (the sample variances on the diagonal, zero off-diagonal),
// using the closed-form shrinkage intensity that minimizes expected
// Frobenius loss against the unobservable true covariance.
func ledoitWolfShrink(sample *mat.SymDense, symbols []string, returns map[string][]float64, obs int) *mat.SymDense {
	n := sample.SymmetricDim()
	if n <= 1 || obs <= 1 {
		return sample
	}

	data := make([][]float64, n)
	means := make([]float64, n)
	for i, s := range symbols {
		hist := returns[s]
		data[i] = hist[len(hist)-obs:]
		var sum float64
		for _, v := range data[i] {
			sum += v
		}
		means[i] = sum / float64(obs)
	}

	target := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		target.SetSym(i, i, sample.At(i, i))
	}

	var piSum, rhoSum, gammaSum float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sij := sample.At(i, j)
			gammaSum += (sij - target.At(i, j)) * (sij - target.At(i, j))

			var piIJ float64
			for t := 0; t < obs; t++ {
				d := (data[i][t]-means[i])*(data[j][t]-means[j]) - sij
				piIJ += d * d
			}
			piIJ /= float64(obs)
			piSum += piIJ
			if i == j {
				rhoSum += piIJ
			}
		}
	}

	if gammaSum <= 0 {
		return sample
	}
	kappa := (piSum - rhoSum) / gammaSum
	shrinkage := math.Max(0, math.Min(1, kappa/float64(obs)))

	result := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := shrinkage*target.At(i, j) + (1-shrinkage)*sample.At(i, j)
			result.SetSym(i, j, v)
		}
	}
	return result
}

// conditionNumber returns the ratio of the largest to smallest singular
// value via SVD.
func conditionNumber(cov *mat.SymDense) float64 {
	n := cov.SymmetricDim()
	if n == 0 {
		return 0
	}
	var svd mat.SVD
	dense := mat.DenseCopyOf(cov)
	ok := svd.Factorize(dense, mat.SVDThin)
	if !ok {
		return math.Inf(1)
	}
	values := svd.Values(nil)
	if len(values) == 0 {
		return math.Inf(1)
	}
	smallest := values[len(values)-1]
	if smallest <= 0 {
		return math.Inf(1)
	}
	return values[0] / smallest
}

func diagonalOnly(cov *mat.SymDense) *mat.SymDense {
	n := cov.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetSym(i, i, cov.At(i, i))
	}
	return out
}

func quadForm(cov *mat.SymDense, w *mat.VecDense) float64 {
	var tmp mat.VecDense
	tmp.MulVec(cov, w)
	return mat.Dot(w, &tmp)
}

func copyWeights(weights map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(weights))
	for k, v := range weights {
		out[k] = v
	}
	return out
}
