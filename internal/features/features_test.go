package features

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/regime-engine/internal/pipeline"
)

func makeSeries(tier pipeline.Tier, n int, trend bool, seed int64) pipeline.BarSeries {
	rng := rand.New(rand.NewSource(seed))
	bars := make([]pipeline.Bar, n)
	price := 100.0
	for i := 0; i < n; i++ {
		drift := 0.0
		if trend {
			drift = 0.001
		}
		price *= 1 + drift + rng.NormFloat64()*0.01
		bars[i] = pipeline.Bar{Close: price}
	}
	return pipeline.BarSeries{Tier: tier, Bars: bars}
}

func TestCompute_InsufficientSample(t *testing.T) {
	series := makeSeries(pipeline.TierMT, 10, false, 1)
	cfg := Config{MinObservations: 300, AnnualizationFactor: 252, BootstrapB: 50, BootstrapSeed: 1}

	bundle, err := Compute(series, cfg)
	require.Error(t, err)
	assert.True(t, bundle.Insufficient)

	var pipeErr *pipeline.Error
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, pipeline.ErrFeatureInsufficient, pipeErr.Kind)
}

func TestCompute_SufficientSample(t *testing.T) {
	series := makeSeries(pipeline.TierMT, 400, false, 2)
	cfg := Config{MinObservations: 300, AnnualizationFactor: 252, BootstrapB: 50, BootstrapSeed: 1}

	bundle, err := Compute(series, cfg)
	require.NoError(t, err)
	assert.False(t, bundle.Insufficient)
	assert.Equal(t, 400, bundle.SampleSize)
	assert.False(t, math.IsNaN(bundle.HurstRS))
	assert.False(t, math.IsNaN(bundle.HurstDFA))
	assert.GreaterOrEqual(t, bundle.HurstRS, 0.0)
	assert.LessOrEqual(t, bundle.HurstRS, 1.0)
	assert.GreaterOrEqual(t, bundle.VRPValue, 0.0)
	assert.LessOrEqual(t, bundle.VRPValue, 1.0)
	assert.GreaterOrEqual(t, bundle.ADFPValue, 0.0)
	assert.LessOrEqual(t, bundle.ADFPValue, 1.0)
	assert.GreaterOrEqual(t, bundle.CIUpperHurst, bundle.CILowerHurst)
	assert.GreaterOrEqual(t, bundle.BollingerPosition20, 0.0)
	assert.LessOrEqual(t, bundle.BollingerPosition20, 1.0)
}

func TestCompute_Deterministic(t *testing.T) {
	series := makeSeries(pipeline.TierMT, 350, false, 3)
	cfg := Config{MinObservations: 300, AnnualizationFactor: 252, BootstrapB: 50, BootstrapSeed: 42}

	b1, err := Compute(series, cfg)
	require.NoError(t, err)
	b2, err := Compute(series, cfg)
	require.NoError(t, err)

	assert.Equal(t, b1, b2)
}

func TestHurstRS_TrendingSeriesIsFinite(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	returns := make([]float64, 400)
	for i := range returns {
		returns[i] = 0.001 + rng.NormFloat64()*0.0005
	}
	h := HurstRS(returns)
	assert.False(t, math.IsNaN(h))
}

func TestVarianceRatio_RandomWalkNearOne(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	returns := make([]float64, 500)
	for i := range returns {
		returns[i] = rng.NormFloat64() * 0.01
	}
	vr, p := VarianceRatio(returns, varianceRatioLags)
	assert.InDelta(t, 1.0, vr, 0.3)
	assert.GreaterOrEqual(t, p, 0.0)
	assert.LessOrEqual(t, p, 1.0)
}

func TestVarianceRatio_ShortSeriesReturnsNeutral(t *testing.T) {
	vr, p := VarianceRatio([]float64{0.01, -0.01, 0.02}, varianceRatioLags)
	assert.Equal(t, 1.0, vr)
	assert.Equal(t, 1.0, p)
}

func TestADF_ShortSeriesReturnsNeutral(t *testing.T) {
	stat, p := ADF([]float64{100, 101, 99})
	assert.Equal(t, 0.0, stat)
	assert.Equal(t, 1.0, p)
}

func TestADF_StationarySeriesHasNegativeStatistic(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	prices := make([]float64, 300)
	level := 100.0
	for i := range prices {
		level = 100 + 0.5*(level-100) + rng.NormFloat64()*0.5
		prices[i] = level
	}
	statistic, p := ADF(prices)
	assert.Less(t, statistic, 0.0)
	assert.GreaterOrEqual(t, p, 0.0)
	assert.LessOrEqual(t, p, 1.0)
}

func TestACFLag1_ConstantSeriesIsZero(t *testing.T) {
	returns := make([]float64, 50)
	for i := range returns {
		returns[i] = 0.01
	}
	acf := ACFLag1(returns)
	assert.True(t, math.IsNaN(acf) || acf == 0)
}

func TestRealizedVolAnnualized_NonConstantSeriesIsPositive(t *testing.T) {
	returns := []float64{0.01, -0.01, 0.01, -0.01, 0.01}
	vol := RealizedVolAnnualized(returns, 252)
	assert.Greater(t, vol, 0.0)
}

func TestHurstCI_BoundsOrderedWithinUnitInterval(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	returns := make([]float64, 300)
	for i := range returns {
		returns[i] = rng.NormFloat64() * 0.01
	}
	lower, upper := HurstCI(returns, 100, 99)
	assert.LessOrEqual(t, lower, upper)
	assert.GreaterOrEqual(t, lower, 0.0)
	assert.LessOrEqual(t, upper, 1.0)
}
