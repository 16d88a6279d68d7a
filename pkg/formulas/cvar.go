package formulas

import (
	"math"
	"sort"
)

// CalculateCVaR calculates Conditional Value at Risk (CVaR) at the specified confidence level.
// CVaR is the expected loss given that the loss exceeds the VaR threshold.
//
// Args:
//   - returns: Historical returns (can be negative for losses)
//   - confidence: Confidence level (e.g., 0.95 for 95%)
//
// Returns:
//   - CVaR value (negative for losses, positive for gains in tail)
func CalculateCVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}

	if len(returns) == 1 {
		return returns[0]
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	tailProbability := 1.0 - confidence
	tailCount := int(math.Ceil(float64(len(sorted)) * tailProbability))

	if tailCount == 0 {
		tailCount = 1
	}
	if tailCount > len(sorted) {
		tailCount = len(sorted)
	}

	tailReturns := sorted[:tailCount]
	sum := 0.0
	for _, r := range tailReturns {
		sum += r
	}

	return sum / float64(len(tailReturns))
}

// CalculatePortfolioCVaR calculates portfolio-level CVaR by aggregating individual security CVaRs.
// This is a simplified approach: the weighted average of each symbol's own historical CVaR,
// not a joint-distribution estimate.
//
// Args:
//   - weights: Portfolio weights by symbol
//   - returns: Historical returns by symbol
//   - confidence: Confidence level (e.g., 0.95)
//
// Returns:
//   - Portfolio CVaR
func CalculatePortfolioCVaR(weights map[string]float64, returns map[string][]float64, confidence float64) float64 {
	if len(weights) == 0 {
		return 0.0
	}

	cvarBySymbol := make(map[string]float64)
	for symbol, rets := range returns {
		cvarBySymbol[symbol] = CalculateCVaR(rets, confidence)
	}

	portfolioCVaR := 0.0
	for symbol, weight := range weights {
		if cvar, hasCVaR := cvarBySymbol[symbol]; hasCVaR {
			portfolioCVaR += weight * cvar
		}
	}

	return portfolioCVaR
}
