package regime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/regime-engine/internal/config"
	"github.com/aristath/regime-engine/internal/pipeline"
)

var defaultWeights = config.ClassifierWeights{Hurst: 0.40, VR: 0.40, ADF: 0.20}

func TestClassify_TrendingHighHurst(t *testing.T) {
	features := pipeline.FeatureBundle{
		HurstRS: 0.65, HurstDFA: 0.63, VRStatistic: 1.2, VRPValue: 0.02, ADFPValue: 0.50,
	}
	trans := pipeline.TransitionMetrics{FlipDensity: 0, EntropyNorm: 0}
	decision := Classify(pipeline.TierMT, features, trans, defaultWeights, 0.10, false)

	assert.Equal(t, pipeline.LabelTrending, decision.Label)
	assert.GreaterOrEqual(t, decision.RawConfidence, 0.60)
	assert.LessOrEqual(t, decision.RawConfidence, 0.80)
	assert.Equal(t, decision.RawConfidence, decision.EffectiveConfidence)
}

func TestClassify_MeanRevertingLowHurst(t *testing.T) {
	features := pipeline.FeatureBundle{
		HurstRS: 0.35, HurstDFA: 0.33, VRStatistic: 0.80, VRPValue: 0.02, ADFPValue: 0.01,
	}
	trans := pipeline.TransitionMetrics{}
	decision := Classify(pipeline.TierMT, features, trans, defaultWeights, 0.10, false)

	assert.Equal(t, pipeline.LabelMeanReverting, decision.Label)
}

func TestClassify_IndeterminateNearZeroScore(t *testing.T) {
	features := pipeline.FeatureBundle{
		HurstRS: 0.50, HurstDFA: 0.50, VRStatistic: 1.0, VRPValue: 0.50, ADFPValue: 0.50,
	}
	trans := pipeline.TransitionMetrics{}
	decision := Classify(pipeline.TierMT, features, trans, defaultWeights, 0.10, false)

	assert.Equal(t, pipeline.LabelIndeterminate, decision.Label)
	assert.LessOrEqual(t, decision.RawConfidence, 0.50)
}

func TestClassify_VolatilePrefixAppliedOnVolSpike(t *testing.T) {
	features := pipeline.FeatureBundle{
		HurstRS: 0.65, HurstDFA: 0.63, VRStatistic: 1.2, VRPValue: 0.02, ADFPValue: 0.50,
	}
	trans := pipeline.TransitionMetrics{}
	decision := Classify(pipeline.TierMT, features, trans, defaultWeights, 0.10, true)

	assert.Equal(t, pipeline.LabelVolatileTrending, decision.Label)
	assert.Equal(t, pipeline.LabelTrending, decision.Label.BaseLabel())
}

func TestClassify_VolatilePrefixNotAppliedWhenIndeterminate(t *testing.T) {
	features := pipeline.FeatureBundle{
		HurstRS: 0.50, HurstDFA: 0.50, VRStatistic: 1.0, VRPValue: 0.50, ADFPValue: 0.50,
	}
	trans := pipeline.TransitionMetrics{}
	decision := Classify(pipeline.TierMT, features, trans, defaultWeights, 0.10, true)

	assert.Equal(t, pipeline.LabelIndeterminate, decision.Label)
}

func TestClassify_PersistenceDampingReducesEffectiveConfidence(t *testing.T) {
	features := pipeline.FeatureBundle{
		HurstRS: 0.65, HurstDFA: 0.63, VRStatistic: 1.2, VRPValue: 0.02, ADFPValue: 0.50,
	}
	trans := pipeline.TransitionMetrics{FlipDensity: 0.5, EntropyNorm: 0.5}
	decision := Classify(pipeline.TierMT, features, trans, defaultWeights, 0.10, false)

	assert.Less(t, decision.EffectiveConfidence, decision.RawConfidence)
	assert.InDelta(t, decision.RawConfidence*0.25, decision.EffectiveConfidence, 1e-9)
}

func TestClassifyWithoutDamping_MatchesClassifyLabel(t *testing.T) {
	features := pipeline.FeatureBundle{
		HurstRS: 0.65, HurstDFA: 0.63, VRStatistic: 1.2, VRPValue: 0.02, ADFPValue: 0.50,
	}
	label := ClassifyWithoutDamping(features, defaultWeights, 0.10, false)
	decision := Classify(pipeline.TierMT, features, pipeline.TransitionMetrics{}, defaultWeights, 0.10, false)

	assert.Equal(t, decision.Label, label)
}

func TestHurstComponent_Monotonic(t *testing.T) {
	assert.Equal(t, -1.0, hurstComponent(0.30, 0.30))
	assert.InDelta(t, 0.0, hurstComponent(0.50, 0.50), 1e-9)
	assert.Equal(t, 1.0, hurstComponent(0.70, 0.70))
}

func TestVRComponent_ShrinksWithHighPValue(t *testing.T) {
	strong := vrComponent(1.15, 0.01)
	weak := vrComponent(1.15, 0.50)
	assert.Less(t, weak, strong)
}

func TestADFComponent_RangeIsBoundedNegative(t *testing.T) {
	v := adfComponent(0.01)
	assert.LessOrEqual(t, v, 0.0)
	assert.GreaterOrEqual(t, v, -0.5)
	assert.Equal(t, 0.0, adfComponent(0.10))
}
