// Package marketdata declares the external data-loader contract the
// pipeline consumes (§6). The pipeline never performs I/O itself; any
// concrete loader (a REST client, a local cache, a replay fixture) lives
// outside this module and is injected by the caller.
package marketdata

import (
	"context"

	"github.com/aristath/regime-engine/internal/pipeline"
)

// AssetClass narrows which kind of instrument a symbol refers to, since
// lookback conventions and trading-calendar assumptions differ by class.
type AssetClass string

const (
	AssetEquity AssetClass = "equity"
	AssetFX     AssetClass = "fx"
	AssetCrypto AssetClass = "crypto"
)

// Loader is the external bar-data collaborator. Implementations must be
// deterministic under identical arguments when their cache is warm, and
// must return a time-sorted series or an empty series plus
// pipeline.HealthFailed — never panic.
type Loader interface {
	GetBars(ctx context.Context, symbol string, tier pipeline.Tier, assetClass AssetClass, barSize string, lookbackDays int) (pipeline.BarSeries, pipeline.HealthStatus, error)
}
