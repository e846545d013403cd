package marketdata

import (
	"math"

	"github.com/markcheno/go-talib"
)

const (
	// TrendImproving means the fast EMA sits above the slow EMA.
	TrendImproving = "improving"
	// TrendDeclining means the fast EMA sits below the slow EMA.
	TrendDeclining = "declining"
	// TrendStable means the EMAs are too close to call.
	TrendStable = "stable"

	trendFastPeriod   = 12
	trendSlowPeriod   = 26
	trendLookbackDays = 90

	// Crossovers inside this band are noise, not a trend change.
	trendDeadBand = 0.005
)

// ClassifyTrend labels recent price action by comparing a fast and a slow
// EMA of the closes. Series shorter than the slow period are stable.
func ClassifyTrend(closes []float64) string {
	if len(closes) <= trendSlowPeriod {
		return TrendStable
	}

	fast := talib.Ema(closes, trendFastPeriod)
	slow := talib.Ema(closes, trendSlowPeriod)

	f := fast[len(fast)-1]
	s := slow[len(slow)-1]
	if math.IsNaN(f) || math.IsNaN(s) || s == 0 {
		return TrendStable
	}

	switch {
	case f > s*(1+trendDeadBand):
		return TrendImproving
	case f < s*(1-trendDeadBand):
		return TrendDeclining
	default:
		return TrendStable
	}
}
