// Package fusion combines the three tiers' regime decisions into one
// fused decision via the alignment rules of §4.4: MT is primary, LT and
// ST contribute alignment-based confidence penalties.
package fusion

import (
	"github.com/aristath/regime-engine/internal/pipeline"
)

// Weights are the per-tier fusion weights (default LT=0.30, MT=0.50,
// ST=0.20). They inform ContinuousScoreCrosscheck only; the label and
// confidence path is governed entirely by the alignment rules below, per
// §9's caution against inventing a second scoring path.
type Weights struct {
	LT float64
	MT float64
	ST float64
}

// Fuse combines the LT/MT/ST decisions. MT's label is authoritative;
// final_confidence depends on how LT and ST align with it.
func Fuse(lt, mt, st pipeline.RegimeDecision, weights Weights) pipeline.FusedDecision {
	ltMatch := lt.Label.BaseLabel() == mt.Label.BaseLabel()
	stMatch := st.Label.BaseLabel() == mt.Label.BaseLabel()

	alignment := pipeline.Alignment{LTvsMT: ltMatch, MTvsST: stMatch}

	distinctLabels := map[pipeline.RegimeLabel]bool{
		lt.Label.BaseLabel(): true,
		mt.Label.BaseLabel(): true,
		st.Label.BaseLabel(): true,
	}

	var finalConfidence float64
	var note string

	switch {
	case len(distinctLabels) == 3:
		finalConfidence = pipeline.Clamp(mt.EffectiveConfidence, 0, 0.50)
		note = "three distinct tier labels: confidence capped at 0.50"
	case ltMatch && stMatch:
		finalConfidence = mt.EffectiveConfidence
		note = "full tier alignment: no penalty"
	case stMatch && !ltMatch:
		finalConfidence = mt.EffectiveConfidence * 0.90
		note = "MT aligned with ST, LT disagrees: 0.90x penalty"
	default:
		finalConfidence = mt.EffectiveConfidence * 0.75
		note = "MT disagrees with ST or LT: 0.75x penalty"
	}

	crosscheck := weights.LT*lt.Score + weights.MT*mt.Score + weights.ST*st.Score

	return pipeline.FusedDecision{
		PrimaryTier:               pipeline.TierMT,
		Label:                     mt.Label,
		FinalConfidence:           pipeline.Clamp(finalConfidence, 0, 1),
		Alignment:                 alignment,
		FusionNote:                note,
		ContinuousScoreCrosscheck: crosscheck,
	}
}
