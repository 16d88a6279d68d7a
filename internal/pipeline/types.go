// Package pipeline holds the shared data model produced and consumed by
// every node of the regime-detection pipeline: bar series, feature
// bundles, regime decisions, the fused decision, strategy specs,
// backtest results, gate evaluations, signals, and allocator
// diagnostics. Records are produced once per run and are read-only
// afterward; the orchestrator (package orchestrator) owns the run state
// that ties them together.
package pipeline

import (
	"math"
	"time"
)

// Tier identifies one of the configured timeframe tiers (long, medium,
// short). Tiers are ordered LT, MT, ST by convention throughout the
// pipeline.
type Tier string

const (
	TierLT Tier = "LT"
	TierMT Tier = "MT"
	TierST Tier = "ST"
)

// Bar is a single OHLCV record.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// BarSeries is an ordered, monotonically timestamped sequence of bars
// for one symbol and tier.
type BarSeries struct {
	Symbol string
	Tier   Tier
	Bars   []Bar
}

// Closes extracts the closing price series.
func (s BarSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// LogReturns computes log(close_t/close_{t-1}), skipping any pair that
// would require a non-positive price (§4.1: skip non-positive prices,
// never silently impute).
func (s BarSeries) LogReturns() []float64 {
	closes := s.Closes()
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		out = append(out, math.Log(closes[i]/closes[i-1]))
	}
	return out
}

// HealthStatus describes the freshness of a tier's bar data as reported
// by the external data loader (§6).
type HealthStatus string

const (
	HealthFresh    HealthStatus = "fresh"
	HealthStale    HealthStatus = "stale"
	HealthFallback HealthStatus = "fallback"
	HealthFailed   HealthStatus = "failed"
)

// FeatureBundle is the per-tier statistical feature set computed from a
// bar series (§4.1).
type FeatureBundle struct {
	Tier                  Tier
	HurstRS               float64
	HurstDFA              float64
	VRStatistic           float64
	VRPValue              float64
	ADFStatistic          float64
	ADFPValue             float64
	ACFLag1               float64
	RealizedVolAnnualized float64
	SampleSize            int
	CILowerHurst          float64
	CIUpperHurst          float64
	Insufficient          bool
	// EMADistance200 is the percentage distance of the latest close from
	// its 200-period EMA; a coarse trend-context read the classifier
	// doesn't use directly but the consistency checker and reporting
	// layer can reference alongside the regime label.
	EMADistance200 float64
	// BollingerPosition20 places the latest close within its 20-period,
	// 2-sigma Bollinger band (0 = lower band, 1 = upper band).
	BollingerPosition20 float64
}

// TransitionMetrics summarizes a rolling regime-label track (§4.2).
type TransitionMetrics struct {
	Tier               Tier
	FlipDensity        float64
	MedianDurationBars int
	Entropy            float64
	EntropyNorm        float64
	VolRatioAtFlips    float64
}

// RegimeLabel is one of the five labels the classifier may assign.
type RegimeLabel string

const (
	LabelTrending               RegimeLabel = "trending"
	LabelMeanReverting           RegimeLabel = "mean_reverting"
	LabelIndeterminate          RegimeLabel = "indeterminate"
	LabelVolatileTrending       RegimeLabel = "volatile_trending"
	LabelVolatileMeanReverting  RegimeLabel = "volatile_mean_reverting"
)

// BaseLabel strips a "volatile_" prefix, returning the underlying
// directional label. Used where callers care about trend direction but
// not the volatility qualifier (e.g. the higher-tier-disagreement gate).
func (l RegimeLabel) BaseLabel() RegimeLabel {
	switch l {
	case LabelVolatileTrending:
		return LabelTrending
	case LabelVolatileMeanReverting:
		return LabelMeanReverting
	default:
		return l
	}
}

// ComponentContributions records the three weighted inputs to the
// classifier score (§4.3), for audit/debugging.
type ComponentContributions struct {
	Hurst float64
	VR    float64
	ADF   float64
}

// RegimeDecision is the per-tier classifier output (§3). Immutable once
// produced.
type RegimeDecision struct {
	Tier                   Tier
	Label                  RegimeLabel
	RawConfidence          float64
	EffectiveConfidence    float64
	Score                  float64
	ComponentContributions ComponentContributions
	Rationale              string
}

// Alignment records pairwise tier agreement feeding the fusion penalty.
type Alignment struct {
	LTvsMT bool
	MTvsST bool
}

// FusedDecision is the multi-tier fusion output (§4.4).
type FusedDecision struct {
	PrimaryTier               Tier
	Label                     RegimeLabel
	FinalConfidence           float64
	Alignment                 Alignment
	FusionNote                string
	ContinuousScoreCrosscheck float64
}

// StrategySpec names a registry strategy with a concrete parameter
// assignment (§3).
type StrategySpec struct {
	Name                string
	Parameters          map[string]float64
	RegimeApplicability []RegimeLabel
}

// StrategyEvalResult is one row of the grid-search comparison table.
type StrategyEvalResult struct {
	Strategy       StrategySpec
	Sharpe         float64
	MaxDrawdown    float64
	NonzeroParams  int
	TotalReturn    float64
	NumTrades      int
}

// BacktestResult is the dense walk-forward performance/risk record
// (§3).
type BacktestResult struct {
	TotalReturn            float64
	CAGR                    float64
	Sharpe                  float64
	SharpeCILow             float64
	SharpeCIHigh            float64
	Sortino                 float64
	Calmar                  float64
	Omega                   float64
	VolatilityAnnualized    float64
	DownsideVol             float64
	MaxDrawdown             float64
	CurrentDrawdown         float64
	UlcerIndex              float64
	NumDrawdowns            int
	AvgDrawdown             float64
	AvgDrawdownDuration     float64
	MaxDrawdownDuration     int
	VaR95                   float64
	VaR99                   float64
	CVaR95                  float64
	NumTrades               int
	WinRate                 float64
	AvgWin                  float64
	AvgLoss                 float64
	BestTrade               float64
	WorstTrade              float64
	ProfitFactor            float64
	Expectancy              float64
	MaxConsecutiveWins      int
	MaxConsecutiveLosses    int
	AvgTradeDurationBars    float64
	ExposureTime            float64
	AnnualTurnover          float64
	ReturnsSkewness         float64
	ReturnsKurtosis         float64
	LongTrades              int
	ShortTrades             int
	LongWinRate             float64
	ShortWinRate            float64
	BaselineTotalReturn     float64
	Alpha                   float64
	Diagnostic              string
}

// PostGatePlan describes what the system would size if the listed
// blockers cleared (§4.8).
type PostGatePlan struct {
	WouldExecute     bool
	HypotheticalSize float64
	BlockersToClear  []string
}

// GateEvaluation is the risk-gate output (§4.8/§3).
type GateEvaluation struct {
	ExecutionReady bool
	Blockers       []string
	PostGatePlan   PostGatePlan
}

// Signal is the per-symbol sized, gated decision persisted for
// downstream collaborators (§3/§6).
type Signal struct {
	Symbol             string
	Tier               Tier
	Timestamp          time.Time
	Label              RegimeLabel
	RawConfidence       float64
	EffectiveConfidence float64
	FinalConfidence     float64
	StrategyName        string
	ParameterSet        map[string]float64
	RawWeight           float64
	ScaledWeight        float64
	ExecutionReady      bool
	Blockers            []string
	PostGateHypotheticalSize float64
}

// VolatilityTargetDiagnostics is the allocator's diagnostic output
// (§3/§4.9).
type VolatilityTargetDiagnostics struct {
	OriginalWeights           map[string]float64
	ScaledWeights             map[string]float64
	EstimatedVol              float64
	TargetVol                 float64
	ScalingFactor             float64
	CovarianceConditionNumber float64
	ObservationsUsed          int
	Warnings                  []string
	// InverseVarianceBaseline is a naive risk-parity reference point
	// (weights proportional to 1/variance) reported alongside the
	// shrinkage-covariance allocation so a reviewer can sanity-check how
	// far the target-vol solution has moved from the simplest baseline.
	InverseVarianceBaseline map[string]float64
	// TailCVaR95 is the historical 95% portfolio CVaR of the scaled
	// weights, a supplementary tail-risk read that the vol-targeting
	// step itself does not optimize against.
	TailCVaR95 float64
}

// Finding is one ordered consistency-checker result (§4.5).
type Finding struct {
	Identifier string
	Severity   int
	Message    string
}

// Clamp restricts v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
