package gates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/regime-engine/internal/config"
	"github.com/aristath/regime-engine/internal/pipeline"
)

func baseInput() Input {
	return Input{
		Fused: pipeline.FusedDecision{Label: pipeline.LabelTrending, FinalConfidence: 0.70},
		LT:    pipeline.RegimeDecision{Label: pipeline.LabelTrending},
		MT:    pipeline.RegimeDecision{Label: pipeline.LabelTrending},
		DataHealth: map[pipeline.Tier]pipeline.HealthStatus{
			pipeline.TierLT: pipeline.HealthFresh,
			pipeline.TierMT: pipeline.HealthFresh,
			pipeline.TierST: pipeline.HealthFresh,
		},
		RequiredTiers:     []pipeline.Tier{pipeline.TierLT, pipeline.TierMT, pipeline.TierST},
		LatestRealizedVol: 0.10,
		HistoricalP99Vol:  0.30,
		Cfg:               config.GatesConfig{ConfidenceFloor: 0.50},
	}
}

func TestEvaluate_NoBlockersExecutionReady(t *testing.T) {
	eval := Evaluate(baseInput())
	assert.True(t, eval.ExecutionReady)
	assert.Empty(t, eval.Blockers)
}

func TestEvaluate_DataFailedIsFirstBlocker(t *testing.T) {
	in := baseInput()
	in.DataHealth[pipeline.TierMT] = pipeline.HealthFailed
	in.Fused.FinalConfidence = 0.20 // also triggers low_confidence
	eval := Evaluate(in)
	require.NotEmpty(t, eval.Blockers)
	assert.Equal(t, "data_failed", eval.Blockers[0])
}

func TestEvaluate_LowConfidenceBlocker(t *testing.T) {
	in := baseInput()
	in.Fused.FinalConfidence = 0.30
	eval := Evaluate(in)
	assert.Contains(t, eval.Blockers, "low_confidence")
	assert.False(t, eval.ExecutionReady)
}

func TestEvaluate_HigherTFDisagreeBlocker(t *testing.T) {
	in := baseInput()
	in.LT.Label = pipeline.LabelMeanReverting
	in.MT.Label = pipeline.LabelTrending
	eval := Evaluate(in)
	assert.Contains(t, eval.Blockers, "higher_tf_disagree")
}

func TestEvaluate_IndeterminateRegimeBlocker(t *testing.T) {
	in := baseInput()
	in.Fused.Label = pipeline.LabelIndeterminate
	eval := Evaluate(in)
	assert.Contains(t, eval.Blockers, "indeterminate_regime")
}

func TestEvaluate_VolatilitySpikeBlocker(t *testing.T) {
	in := baseInput()
	in.LatestRealizedVol = 0.40
	eval := Evaluate(in)
	assert.Contains(t, eval.Blockers, "volatility_spike")
}

func TestEvaluate_StaleDataOnlyBlocksInStrictMode(t *testing.T) {
	in := baseInput()
	in.DataHealth[pipeline.TierST] = pipeline.HealthFallback
	eval := Evaluate(in)
	assert.NotContains(t, eval.Blockers, "stale_data")

	in.Cfg.StrictMode = true
	eval = Evaluate(in)
	assert.Contains(t, eval.Blockers, "stale_data")
}

func TestEvaluate_PostGatePlanPopulatedWhenBlocked(t *testing.T) {
	in := baseInput()
	in.Fused.FinalConfidence = 0.30
	eval := Evaluate(in)
	require.False(t, eval.ExecutionReady)
	assert.True(t, eval.PostGatePlan.WouldExecute)
	assert.Equal(t, eval.Blockers, eval.PostGatePlan.BlockersToClear)
	assert.InDelta(t, 0.30, eval.PostGatePlan.HypotheticalSize, 1e-9)
}

func TestEvaluate_PostGatePlanEmptyWhenExecutionReady(t *testing.T) {
	eval := Evaluate(baseInput())
	assert.False(t, eval.PostGatePlan.WouldExecute)
}
