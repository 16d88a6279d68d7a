package formulas

// InverseVarianceWeights calculates risk parity weights using inverse variance weighting.
// This is a simplified baseline allocation: higher weight to lower-variance assets,
// without the full hierarchical-clustering tree of a complete HRP optimizer.
//
// Formula: w_i = (1/v_i) / Σ(1/v_j)
// where v_i is the variance of asset i.
//
// Args:
//   - variances: Vector of variances for each asset
//
// Returns:
//   - Vector of weights (sums to 1.0)
func InverseVarianceWeights(variances []float64) []float64 {
	n := len(variances)
	weights := make([]float64, n)

	var totalInvVariance float64
	for _, v := range variances {
		if v > 0 {
			totalInvVariance += 1.0 / v
		}
	}

	if totalInvVariance == 0 {
		for i := range weights {
			weights[i] = 1.0 / float64(n)
		}
		return weights
	}

	for i, v := range variances {
		if v > 0 {
			weights[i] = (1.0 / v) / totalInvVariance
		} else {
			weights[i] = 0.0
		}
	}

	return weights
}
