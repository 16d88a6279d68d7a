package allocator

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/regime-engine/internal/config"
)

func makeReturns(n int, vol float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64() * vol
	}
	return out
}

func baseConfig() config.VolTargetConfig {
	return config.VolTargetConfig{
		Enabled:             true,
		TargetVolatility:    0.15,
		MinObservations:     20,
		MinWeight:           -1,
		MaxWeight:           1,
		UseShrinkage:        true,
		AnnualizationFactor: 252,
	}
}

func TestScale_ScalesTowardTargetVolatility(t *testing.T) {
	in := Input{
		RawWeights: map[string]float64{"AAA": 0.5, "BBB": 0.5},
		Returns: map[string][]float64{
			"AAA": makeReturns(60, 0.02, 1),
			"BBB": makeReturns(60, 0.02, 2),
		},
		Cfg: baseConfig(),
	}
	scaled, diag := Scale(in)
	require.Contains(t, scaled, "AAA")
	assert.Greater(t, diag.EstimatedVol, 0.0)
	assert.Greater(t, diag.ScalingFactor, 0.0)
	assert.InDelta(t, 1.0, diag.InverseVarianceBaseline["AAA"]+diag.InverseVarianceBaseline["BBB"], 1e-6)
}

func TestScale_InsufficientObservationsReturnsUnchanged(t *testing.T) {
	in := Input{
		RawWeights: map[string]float64{"AAA": 0.5},
		Returns:    map[string][]float64{"AAA": makeReturns(5, 0.02, 1)},
		Cfg:        baseConfig(),
	}
	scaled, diag := Scale(in)
	assert.Equal(t, 0.5, scaled["AAA"])
	assert.Equal(t, 1.0, diag.ScalingFactor)
	assert.NotEmpty(t, diag.Warnings)
}

func TestScale_MissingSymbolRetainsOriginalWeight(t *testing.T) {
	in := Input{
		RawWeights: map[string]float64{"AAA": 0.5, "CCC": 0.3},
		Returns: map[string][]float64{
			"AAA": makeReturns(60, 0.02, 1),
			"BBB": makeReturns(60, 0.02, 2),
		},
		Cfg: baseConfig(),
	}
	scaled, diag := Scale(in)
	assert.Equal(t, 0.3, scaled["CCC"])
	assert.NotEmpty(t, diag.Warnings)
}

func TestScale_ClampsToWeightBounds(t *testing.T) {
	cfg := baseConfig()
	cfg.MinWeight = 0
	cfg.MaxWeight = 0.2
	cfg.TargetVolatility = 5.0 // force a large scaling factor
	in := Input{
		RawWeights: map[string]float64{"AAA": 0.5, "BBB": 0.5},
		Returns: map[string][]float64{
			"AAA": makeReturns(60, 0.001, 1),
			"BBB": makeReturns(60, 0.001, 2),
		},
		Cfg: cfg,
	}
	scaled, _ := Scale(in)
	assert.LessOrEqual(t, scaled["AAA"], 0.2)
	assert.GreaterOrEqual(t, scaled["AAA"], 0.0)
}

func TestScale_NoUsableSymbolsReturnsUnchanged(t *testing.T) {
	in := Input{
		RawWeights: map[string]float64{"AAA": 0.5},
		Returns:    map[string][]float64{},
		Cfg:        baseConfig(),
	}
	scaled, diag := Scale(in)
	assert.Equal(t, 0.5, scaled["AAA"])
	assert.Equal(t, 1.0, diag.ScalingFactor)
}

func TestConditionNumber_SampleCovarianceIsPositive(t *testing.T) {
	symbols := []string{"AAA", "BBB"}
	returns := map[string][]float64{
		"AAA": makeReturns(100, 0.01, 1),
		"BBB": makeReturns(100, 0.01, 2),
	}
	cov := sampleCovariance(symbols, returns, 100)
	cn := conditionNumber(cov)
	assert.Greater(t, cn, 0.0)
}

func TestLedoitWolfShrink_PreservesDiagonal(t *testing.T) {
	symbols := []string{"AAA", "BBB"}
	returns := map[string][]float64{
		"AAA": makeReturns(100, 0.01, 1),
		"BBB": makeReturns(100, 0.01, 2),
	}
	cov := sampleCovariance(symbols, returns, 100)
	shrunk := ledoitWolfShrink(cov, symbols, returns, 100)
	assert.InDelta(t, cov.At(0, 0), shrunk.At(0, 0), 1e-9)
	assert.InDelta(t, cov.At(1, 1), shrunk.At(1, 1), 1e-9)
}
