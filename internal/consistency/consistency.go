// Package consistency is the independent post-fusion validator of §4.5:
// it never mutates a decision, only reports ordered findings and a
// consistency score.
package consistency

import (
	"github.com/aristath/regime-engine/internal/pipeline"
)

// rule severities; higher is worse.
const (
	severityInfo    = 1
	severityWarn    = 2
	severityBlocker = 3
)

// maxSum is the sum of severities if every rule fired, used to normalize
// consistency_score into [0,1].
const maxSum = severityWarn + severityWarn + severityWarn + severityBlocker + severityWarn

// Input bundles everything the checker reads. It never writes back to
// any of these.
type Input struct {
	Fused          pipeline.FusedDecision
	MT             pipeline.FeatureBundle
	LT             pipeline.RegimeDecision
	ExecutionReady bool
	ScaledWeight   float64
}

// Check runs the five rules of §4.5 and returns ordered findings plus a
// normalized consistency score.
func Check(in Input) ([]pipeline.Finding, float64) {
	var findings []pipeline.Finding

	hBar := (in.MT.HurstRS + in.MT.HurstDFA) / 2
	if in.Fused.Label.BaseLabel() == pipeline.LabelTrending && hBar < 0.48 {
		findings = append(findings, pipeline.Finding{
			Identifier: "hurst_vs_label",
			Severity:   severityWarn,
			Message:    "label is trending but averaged Hurst is below 0.48",
		})
	}

	if in.Fused.Label.BaseLabel() == pipeline.LabelMeanReverting && in.MT.VRStatistic > 1.05 {
		findings = append(findings, pipeline.Finding{
			Identifier: "vr_vs_label",
			Severity:   severityWarn,
			Message:    "label is mean_reverting but variance ratio exceeds 1.05",
		})
	}

	if in.Fused.Label.BaseLabel() == pipeline.LabelMeanReverting && in.MT.ADFPValue > 0.20 {
		findings = append(findings, pipeline.Finding{
			Identifier: "adf_vs_label",
			Severity:   severityWarn,
			Message:    "label is mean_reverting but ADF p-value exceeds 0.20",
		})
	}

	if !in.ExecutionReady && in.ScaledWeight != 0 {
		findings = append(findings, pipeline.Finding{
			Identifier: "sizing_vs_gates",
			Severity:   severityBlocker,
			Message:    "execution is not ready but scaled weight is nonzero",
		})
	}

	if opposes(in.Fused.Label, in.LT.Label) && in.LT.EffectiveConfidence > 0.70 {
		findings = append(findings, pipeline.Finding{
			Identifier: "tier_contradiction",
			Severity:   severityWarn,
			Message:    "fused label opposes a high-confidence LT decision",
		})
	}

	var sum int
	for _, f := range findings {
		sum += f.Severity
	}
	score := 1 - float64(sum)/float64(maxSum)
	return findings, pipeline.Clamp(score, 0, 1)
}

// opposes reports whether two labels are directly contradictory
// (trending vs mean_reverting, ignoring the volatile_ qualifier).
func opposes(a, b pipeline.RegimeLabel) bool {
	aBase, bBase := a.BaseLabel(), b.BaseLabel()
	return (aBase == pipeline.LabelTrending && bBase == pipeline.LabelMeanReverting) ||
		(aBase == pipeline.LabelMeanReverting && bBase == pipeline.LabelTrending)
}
