package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the annualization base for daily market data.
const TradingDaysPerYear = 252.0

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Variance calculates the variance of a slice of float64 values
func Variance(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Variance(data, nil)
}

// SimpleReturns converts a chronologically ordered price series to
// period-over-period returns. Returns[i] = (Price[i+1] - Price[i]) / Price[i].
func SimpleReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}

	return returns
}

// AnnualizedVolatility calculates annualized volatility from daily returns.
// Formula: Std Dev of Daily Returns × sqrt(252 trading days)
func AnnualizedVolatility(dailyReturns []float64) float64 {
	if len(dailyReturns) == 0 {
		return 0
	}
	return StdDev(dailyReturns) * math.Sqrt(TradingDaysPerYear)
}

// AnnualizedReturn calculates the compound annual growth rate from a series
// of daily returns.
//
// Formula: ((1+r1)*(1+r2)*...*(1+rN))^(252/N) - 1
//
// For very short series (< 3 periods) the cumulative return is returned
// directly to avoid extreme annualization.
func AnnualizedReturn(returns []float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}

	cumulative := 1.0
	for _, r := range returns {
		cumulative *= (1 + r)
	}

	numPeriods := float64(len(returns))
	if numPeriods < 3 {
		return cumulative - 1
	}

	years := numPeriods / TradingDaysPerYear
	return math.Pow(cumulative, 1.0/years) - 1
}
