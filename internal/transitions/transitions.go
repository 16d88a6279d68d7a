// Package transitions summarizes a rolling track of per-bar regime
// labels into the flip-density, duration, and entropy statistics that
// feed the classifier's persistence damping (§4.2, §4.3).
package transitions

import (
	"math"

	"github.com/aristath/regime-engine/internal/pipeline"
	"github.com/aristath/regime-engine/internal/statutil"
)

// Compute derives TransitionMetrics from an ordered label history and the
// per-bar realized volatility aligned to it. volAtBar may be nil, in
// which case VolRatioAtFlips is left at zero.
func Compute(tier pipeline.Tier, labels []pipeline.RegimeLabel, volAtBar []float64) pipeline.TransitionMetrics {
	if len(labels) < 2 {
		return pipeline.TransitionMetrics{Tier: tier}
	}

	flips := 0
	var runLengths []int
	runStart := 0
	for i := 1; i < len(labels); i++ {
		if labels[i] != labels[i-1] {
			flips++
			runLengths = append(runLengths, i-runStart)
			runStart = i
		}
	}
	runLengths = append(runLengths, len(labels)-runStart)

	flipDensity := float64(flips) / float64(len(labels)-1)
	medianDuration := statutil.MedianInt(runLengths)

	entropy, entropyNorm := transitionEntropy(labels)
	volRatio := volRatioAtFlips(labels, volAtBar)

	return pipeline.TransitionMetrics{
		Tier:               tier,
		FlipDensity:        flipDensity,
		MedianDurationBars: medianDuration,
		Entropy:            entropy,
		EntropyNorm:        entropyNorm,
		VolRatioAtFlips:    volRatio,
	}
}

// transitionEntropy computes the Shannon entropy of the empirical
// label-to-label transition matrix, normalized by log(K^2) where K is
// the number of distinct labels observed (§4.2).
func transitionEntropy(labels []pipeline.RegimeLabel) (entropy, entropyNorm float64) {
	counts := make(map[[2]pipeline.RegimeLabel]int)
	var total int
	distinct := make(map[pipeline.RegimeLabel]bool)
	for i := 1; i < len(labels); i++ {
		key := [2]pipeline.RegimeLabel{labels[i-1], labels[i]}
		counts[key]++
		total++
		distinct[labels[i-1]] = true
		distinct[labels[i]] = true
	}
	if total == 0 || len(distinct) < 2 {
		return 0, 0
	}

	for _, c := range counts {
		p := float64(c) / float64(total)
		if p > 0 {
			entropy -= p * math.Log(p)
		}
	}

	k := float64(len(distinct))
	maxEntropy := math.Log(k * k)
	if maxEntropy <= 0 {
		return entropy, 0
	}
	return entropy, pipeline.Clamp(entropy/maxEntropy, 0, 1)
}

// volRatioAtFlips is the average realized volatility at flip bars divided
// by the average realized volatility overall, so the classifier can tell
// whether flips cluster in high-volatility periods.
func volRatioAtFlips(labels []pipeline.RegimeLabel, volAtBar []float64) float64 {
	if len(volAtBar) != len(labels) || len(volAtBar) == 0 {
		return 0
	}

	var flipVolSum, allVolSum float64
	var flipCount int
	for i := 1; i < len(labels); i++ {
		allVolSum += volAtBar[i]
		if labels[i] != labels[i-1] {
			flipVolSum += volAtBar[i]
			flipCount++
		}
	}
	allVolSum += volAtBar[0]

	avgAll := allVolSum / float64(len(volAtBar))
	if avgAll <= 0 || flipCount == 0 {
		return 0
	}
	avgFlip := flipVolSum / float64(flipCount)
	return avgFlip / avgAll
}
