// Package regime implements the unified per-tier regime classifier of
// §4.3: a weighted score over the Hurst, variance-ratio, and ADF
// features, thresholded into trending/mean_reverting/indeterminate with
// a volatile_ qualifier, and damped by the tier's transition-track
// persistence metrics.
package regime

import (
	"fmt"

	"github.com/aristath/regime-engine/internal/config"
	"github.com/aristath/regime-engine/internal/pipeline"
)

// Classify produces a RegimeDecision for one tier from its feature
// bundle, transition metrics, weights, and the realized-vol percentile
// needed for the volatile_ qualifier.
func Classify(
	tier pipeline.Tier,
	features pipeline.FeatureBundle,
	trans pipeline.TransitionMetrics,
	weights config.ClassifierWeights,
	scoreThreshold float64,
	volExceedsPercentile bool,
) pipeline.RegimeDecision {
	hurstComp := hurstComponent(features.HurstRS, features.HurstDFA)
	vrComp := vrComponent(features.VRStatistic, features.VRPValue)
	adfComp := adfComponent(features.ADFPValue)

	score := weights.Hurst*hurstComp + weights.VR*vrComp + weights.ADF*adfComp
	score = pipeline.Clamp(score, -1, 1)

	label, rawConfidence := classifyScore(score, scoreThreshold)
	if volExceedsPercentile && label != pipeline.LabelIndeterminate {
		label = volatileLabel(label)
	}

	effectiveConfidence := rawConfidence * (1 - trans.FlipDensity) * (1 - trans.EntropyNorm)
	effectiveConfidence = pipeline.Clamp(effectiveConfidence, 0, 1)

	return pipeline.RegimeDecision{
		Tier:                tier,
		Label:               label,
		RawConfidence:       rawConfidence,
		EffectiveConfidence: effectiveConfidence,
		Score:               score,
		ComponentContributions: pipeline.ComponentContributions{
			Hurst: weights.Hurst * hurstComp,
			VR:    weights.VR * vrComp,
			ADF:   weights.ADF * adfComp,
		},
		Rationale: rationale(score, hurstComp, vrComp, adfComp, trans),
	}
}

// ClassifyWithoutDamping is the undamped classification used to build the
// rolling label track consumed by transitions.Compute (§4.2's note:
// avoid self-referential recursion by omitting persistence damping when
// constructing the history that damping itself depends on).
func ClassifyWithoutDamping(
	features pipeline.FeatureBundle,
	weights config.ClassifierWeights,
	scoreThreshold float64,
	volExceedsPercentile bool,
) pipeline.RegimeLabel {
	hurstComp := hurstComponent(features.HurstRS, features.HurstDFA)
	vrComp := vrComponent(features.VRStatistic, features.VRPValue)
	adfComp := adfComponent(features.ADFPValue)
	score := pipeline.Clamp(weights.Hurst*hurstComp+weights.VR*vrComp+weights.ADF*adfComp, -1, 1)

	label, _ := classifyScore(score, scoreThreshold)
	if volExceedsPercentile && label != pipeline.LabelIndeterminate {
		label = volatileLabel(label)
	}
	return label
}

// hurstComponent maps the averaged Hurst estimate through the
// piecewise-linear transform: H̄ ≤ 0.40 → -1, H̄ = 0.50 → 0, H̄ ≥ 0.60 → +1.
func hurstComponent(hurstRS, hurstDFA float64) float64 {
	hBar := (hurstRS + hurstDFA) / 2
	switch {
	case hBar <= 0.40:
		return -1
	case hBar >= 0.60:
		return 1
	case hBar <= 0.50:
		return -1 + (hBar-0.40)/0.10
	default:
		return (hBar - 0.50) / 0.10
	}
}

// vrComponent maps the variance ratio with pivot 1.0: VR ≤ 0.85 → -1,
// VR = 1.0 → 0, VR ≥ 1.15 → +1, shrunk toward 0 when the p-value exceeds
// 0.10.
func vrComponent(vr, pvalue float64) float64 {
	var comp float64
	switch {
	case vr <= 0.85:
		comp = -1
	case vr >= 1.15:
		comp = 1
	default:
		comp = (vr - 1.0) / 0.15
	}
	if pvalue > 0.10 {
		comp *= 0.10 / pvalue
	}
	return pipeline.Clamp(comp, -1, 1)
}

// adfComponent is mean-reverting-leaning: negative when the ADF p-value
// indicates stationarity (p < 0.05), zero otherwise, range [-0.5, 0].
func adfComponent(pvalue float64) float64 {
	if pvalue >= 0.05 {
		return 0
	}
	strength := (0.05 - pvalue) / 0.05
	return -0.5 * pipeline.Clamp(strength, 0, 1)
}

// classifyScore maps score to a label and raw confidence per §4.3.
func classifyScore(score, threshold float64) (pipeline.RegimeLabel, float64) {
	switch {
	case score >= threshold:
		return pipeline.LabelTrending, pipeline.Clamp(0.5+score/2, 0.60, 0.80)
	case score <= -threshold:
		return pipeline.LabelMeanReverting, pipeline.Clamp(0.5-score/2, 0.60, 0.80)
	default:
		return pipeline.LabelIndeterminate, pipeline.Clamp(0.5-absFloat(score), 0, 0.50)
	}
}

func volatileLabel(label pipeline.RegimeLabel) pipeline.RegimeLabel {
	switch label {
	case pipeline.LabelTrending:
		return pipeline.LabelVolatileTrending
	case pipeline.LabelMeanReverting:
		return pipeline.LabelVolatileMeanReverting
	default:
		return label
	}
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func rationale(score, hurstComp, vrComp, adfComp float64, trans pipeline.TransitionMetrics) string {
	return fmt.Sprintf(
		"score=%.3f (hurst=%.3f vr=%.3f adf=%.3f) flip_density=%.3f entropy_norm=%.3f",
		score, hurstComp, vrComp, adfComp, trans.FlipDensity, trans.EntropyNorm,
	)
}
