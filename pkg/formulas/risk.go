package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// SharpeRatio calculates the annualized Sharpe ratio from periodic returns.
//
// Formula:
//
//	Sharpe = (Mean Return - Periodic Risk-free Rate) / Standard Deviation
//	Annualized: Sharpe × sqrt(periodsPerYear)
//
// Returns nil when there are fewer than two observations or zero dispersion.
func SharpeRatio(returns []float64, riskFreeRate float64, periodsPerYear int) *float64 {
	if len(returns) < 2 {
		return nil
	}

	stdDev := StdDev(returns)
	if stdDev == 0 {
		return nil
	}

	periodicRiskFree := riskFreeRate / float64(periodsPerYear)
	sharpe := (Mean(returns) - periodicRiskFree) / stdDev
	annualized := sharpe * math.Sqrt(float64(periodsPerYear))
	return &annualized
}

// NormalQuantile returns the inverse CDF of the standard normal distribution
// evaluated at p.
func NormalQuantile(p float64) float64 {
	return distuv.UnitNormal.Quantile(p)
}

// Percentile returns the empirical percentile of the sample at probability p
// (0..1). The input is copied and sorted.
func Percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// CVaR calculates Conditional Value at Risk at the given confidence level:
// the mean of the worst (1-confidence) fraction of the sample.
//
// Negative values are losses.
func CVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}
	if len(returns) == 1 {
		return returns[0]
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	tailCount := int(math.Ceil(float64(len(sorted)) * (1.0 - confidence)))
	if tailCount == 0 {
		tailCount = 1
	}
	if tailCount > len(sorted) {
		tailCount = len(sorted)
	}

	sum := 0.0
	for _, r := range sorted[:tailCount] {
		sum += r
	}
	return sum / float64(tailCount)
}
