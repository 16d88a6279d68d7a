package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/regime-engine/internal/pipeline"
)

var defaultWeights = Weights{LT: 0.30, MT: 0.50, ST: 0.20}

func decision(label pipeline.RegimeLabel, eff, score float64) pipeline.RegimeDecision {
	return pipeline.RegimeDecision{Label: label, EffectiveConfidence: eff, Score: score}
}

func TestFuse_FullAlignmentNoPenalty(t *testing.T) {
	lt := decision(pipeline.LabelTrending, 0.70, 0.5)
	mt := decision(pipeline.LabelTrending, 0.75, 0.6)
	st := decision(pipeline.LabelTrending, 0.72, 0.55)

	fused := Fuse(lt, mt, st, defaultWeights)
	assert.Equal(t, mt.EffectiveConfidence, fused.FinalConfidence)
	assert.True(t, fused.Alignment.LTvsMT)
	assert.True(t, fused.Alignment.MTvsST)
}

func TestFuse_MTAlignsWithSTLTDisagrees(t *testing.T) {
	lt := decision(pipeline.LabelMeanReverting, 0.70, -0.5)
	mt := decision(pipeline.LabelTrending, 0.75, 0.6)
	st := decision(pipeline.LabelTrending, 0.72, 0.55)

	fused := Fuse(lt, mt, st, defaultWeights)
	assert.InDelta(t, mt.EffectiveConfidence*0.90, fused.FinalConfidence, 1e-9)
}

func TestFuse_MTDisagreesWithST(t *testing.T) {
	lt := decision(pipeline.LabelTrending, 0.70, 0.5)
	mt := decision(pipeline.LabelTrending, 0.75, 0.6)
	st := decision(pipeline.LabelMeanReverting, 0.72, -0.55)

	fused := Fuse(lt, mt, st, defaultWeights)
	assert.InDelta(t, mt.EffectiveConfidence*0.75, fused.FinalConfidence, 1e-9)
}

func TestFuse_ThreeDistinctLabelsCapsConfidence(t *testing.T) {
	lt := decision(pipeline.LabelTrending, 0.70, 0.5)
	mt := decision(pipeline.LabelMeanReverting, 0.75, -0.6)
	st := decision(pipeline.LabelIndeterminate, 0.72, 0.0)

	fused := Fuse(lt, mt, st, defaultWeights)
	assert.LessOrEqual(t, fused.FinalConfidence, 0.50)
}

func TestFuse_VolatileLabelsMatchOnBaseLabel(t *testing.T) {
	lt := decision(pipeline.LabelVolatileTrending, 0.70, 0.5)
	mt := decision(pipeline.LabelTrending, 0.75, 0.6)
	st := decision(pipeline.LabelVolatileTrending, 0.72, 0.55)

	fused := Fuse(lt, mt, st, defaultWeights)
	assert.True(t, fused.Alignment.LTvsMT)
	assert.True(t, fused.Alignment.MTvsST)
	assert.Equal(t, mt.EffectiveConfidence, fused.FinalConfidence)
}

func TestFuse_CrosscheckIsWeightedSum(t *testing.T) {
	lt := decision(pipeline.LabelTrending, 0.70, 0.2)
	mt := decision(pipeline.LabelTrending, 0.75, 0.4)
	st := decision(pipeline.LabelTrending, 0.72, 0.6)

	fused := Fuse(lt, mt, st, defaultWeights)
	expected := 0.30*0.2 + 0.50*0.4 + 0.20*0.6
	assert.InDelta(t, expected, fused.ContinuousScoreCrosscheck, 1e-9)
}
