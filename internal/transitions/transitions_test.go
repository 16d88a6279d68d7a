package transitions

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/regime-engine/internal/pipeline"
)

func TestCompute_ShortHistoryReturnsZeroValue(t *testing.T) {
	m := Compute(pipeline.TierMT, []pipeline.RegimeLabel{pipeline.LabelTrending}, nil)
	assert.Equal(t, pipeline.TierMT, m.Tier)
	assert.Equal(t, 0.0, m.FlipDensity)
}

func TestCompute_NoFlipsZeroDensity(t *testing.T) {
	labels := make([]pipeline.RegimeLabel, 20)
	for i := range labels {
		labels[i] = pipeline.LabelTrending
	}
	m := Compute(pipeline.TierMT, labels, nil)
	assert.Equal(t, 0.0, m.FlipDensity)
	assert.Equal(t, 20, m.MedianDurationBars)
	assert.Equal(t, 0.0, m.Entropy)
}

func TestCompute_AlternatingMaximizesFlipDensity(t *testing.T) {
	labels := make([]pipeline.RegimeLabel, 10)
	for i := range labels {
		if i%2 == 0 {
			labels[i] = pipeline.LabelTrending
		} else {
			labels[i] = pipeline.LabelMeanReverting
		}
	}
	m := Compute(pipeline.TierMT, labels, nil)
	assert.Equal(t, 1.0, m.FlipDensity)
	assert.Equal(t, 1, m.MedianDurationBars)
	assert.Greater(t, m.EntropyNorm, 0.0)
}

func TestCompute_VolRatioAtFlipsHigherDuringFlips(t *testing.T) {
	labels := []pipeline.RegimeLabel{
		pipeline.LabelTrending, pipeline.LabelTrending, pipeline.LabelMeanReverting,
		pipeline.LabelMeanReverting, pipeline.LabelTrending,
	}
	vol := []float64{0.1, 0.1, 0.5, 0.1, 0.5}
	m := Compute(pipeline.TierMT, labels, vol)
	assert.Greater(t, m.VolRatioAtFlips, 1.0)
}

func TestCompute_MismatchedVolLengthIsIgnored(t *testing.T) {
	labels := []pipeline.RegimeLabel{pipeline.LabelTrending, pipeline.LabelMeanReverting}
	m := Compute(pipeline.TierMT, labels, []float64{0.1})
	assert.Equal(t, 0.0, m.VolRatioAtFlips)
}
