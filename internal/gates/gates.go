// Package gates evaluates the ordered risk blockers of §4.8 and, when
// execution is blocked, computes the post-gate plan a dry run would use
// to report what sizing would have been.
package gates

import (
	"github.com/aristath/regime-engine/internal/config"
	"github.com/aristath/regime-engine/internal/pipeline"
)

// Input bundles everything a gate evaluation reads.
type Input struct {
	Fused             pipeline.FusedDecision
	LT                pipeline.RegimeDecision
	MT                pipeline.RegimeDecision
	DataHealth        map[pipeline.Tier]pipeline.HealthStatus
	RequiredTiers     []pipeline.Tier
	LatestRealizedVol float64
	HistoricalP99Vol  float64
	Cfg               config.GatesConfig
}

// Evaluate runs the six blockers in reporting order and, if any fire,
// computes the post-gate plan.
func Evaluate(in Input) pipeline.GateEvaluation {
	var blockers []string

	if dataFailed(in) {
		blockers = append(blockers, "data_failed")
	}
	if in.Fused.FinalConfidence < in.Cfg.ConfidenceFloor {
		blockers = append(blockers, "low_confidence")
	}
	if higherTFDisagree(in.LT, in.MT) {
		blockers = append(blockers, "higher_tf_disagree")
	}
	if in.Fused.Label == pipeline.LabelIndeterminate {
		blockers = append(blockers, "indeterminate_regime")
	}
	if in.HistoricalP99Vol > 0 && in.LatestRealizedVol > in.HistoricalP99Vol {
		blockers = append(blockers, "volatility_spike")
	}
	if in.Cfg.StrictMode && staleData(in) {
		blockers = append(blockers, "stale_data")
	}

	executionReady := len(blockers) == 0

	var plan pipeline.PostGatePlan
	if !executionReady {
		hypothetical := pipeline.Clamp(in.Fused.FinalConfidence, 0, 1)
		plan = pipeline.PostGatePlan{
			WouldExecute:     true,
			HypotheticalSize: hypothetical,
			BlockersToClear:  blockers,
		}
	}

	return pipeline.GateEvaluation{
		ExecutionReady: executionReady,
		Blockers:       blockers,
		PostGatePlan:   plan,
	}
}

func dataFailed(in Input) bool {
	for _, tier := range in.RequiredTiers {
		if in.DataHealth[tier] == pipeline.HealthFailed {
			return true
		}
	}
	return false
}

func staleData(in Input) bool {
	for _, tier := range in.RequiredTiers {
		if in.DataHealth[tier] == pipeline.HealthFallback {
			return true
		}
	}
	return false
}

func higherTFDisagree(lt, mt pipeline.RegimeDecision) bool {
	ltBase, mtBase := lt.Label.BaseLabel(), mt.Label.BaseLabel()
	return (ltBase == pipeline.LabelTrending && mtBase == pipeline.LabelMeanReverting) ||
		(ltBase == pipeline.LabelMeanReverting && mtBase == pipeline.LabelTrending)
}
