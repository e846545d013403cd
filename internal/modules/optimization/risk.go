package optimization

import (
	"math"

	"golang.org/x/exp/rand"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"tigro/pkg/formulas"
)

// MonteCarloFallbackZ scales the parametric estimate used when simulation is
// impossible (dimension mismatch or a covariance the sampler rejects). The
// multiplier is the house convention for a 97% one-tailed loss.
const MonteCarloFallbackZ = 2.05

// zScores holds the house convention for one-tailed loss multipliers by
// confidence level. Unlisted confidences use the exact normal quantile.
var zScores = map[float64]float64{
	0.90: 1.28,
	0.95: 1.645,
	0.97: 2.33,
	0.99: 2.58,
}

// RiskModel computes portfolio-level risk figures from the estimated moments.
type RiskModel struct {
	settings Settings
	log      zerolog.Logger
}

// NewRiskModel creates a new risk model.
func NewRiskModel(settings Settings, log zerolog.Logger) *RiskModel {
	return &RiskModel{
		settings: settings,
		log:      log.With().Str("component", "risk").Logger(),
	}
}

// PortfolioReturn computes w'μ.
func (rm *RiskModel) PortfolioReturn(weights, mu []float64) float64 {
	total := 0.0
	for i := range weights {
		total += weights[i] * mu[i]
	}
	return total
}

// PortfolioVolatility computes sqrt(w'Σw).
func (rm *RiskModel) PortfolioVolatility(weights []float64, cov *mat.SymDense) float64 {
	n := len(weights)
	variance := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			variance += weights[i] * weights[j] * cov.At(i, j)
		}
	}
	return math.Sqrt(math.Max(variance, 0))
}

// SharpeRatio computes (w'μ - rf) / sqrt(w'Σw). Zero volatility yields 0.
func (rm *RiskModel) SharpeRatio(weights, mu []float64, cov *mat.SymDense) float64 {
	vol := rm.PortfolioVolatility(weights, cov)
	if vol == 0 {
		rm.log.Warn().Msg("Zero portfolio volatility, Sharpe ratio set to 0")
		return 0
	}
	return (rm.PortfolioReturn(weights, mu) - rm.settings.RiskFreeRate) / vol
}

// ParametricVaR computes the annual value at risk under a normal assumption:
// expected return minus z(confidence) volatilities. Negative values are
// losses.
func (rm *RiskModel) ParametricVaR(expectedReturn, volatility, confidence float64) float64 {
	return expectedReturn - zScore(confidence)*volatility
}

// MonteCarloVaR simulates annual portfolio returns from a multivariate
// normal with the estimated moments and returns the empirical percentile at
// (1 - confidence). The generator is seeded from Settings so repeated runs
// produce identical figures.
//
// When the sampler cannot be built (dimension mismatch, covariance rejected
// by the Cholesky factorization) it falls back to a scaled parametric
// estimate.
func (rm *RiskModel) MonteCarloVaR(weights, mu []float64, cov *mat.SymDense, confidence float64) float64 {
	samples, ok := rm.simulate(weights, mu, cov)
	if !ok {
		return rm.fallbackVaR(weights, mu, cov)
	}
	return formulas.Percentile(samples, 1.0-confidence)
}

// SimulatedCVaR draws the same return paths as MonteCarloVaR and averages
// the tail beyond the VaR percentile.
func (rm *RiskModel) SimulatedCVaR(weights, mu []float64, cov *mat.SymDense, confidence float64) float64 {
	samples, ok := rm.simulate(weights, mu, cov)
	if !ok {
		return rm.fallbackVaR(weights, mu, cov)
	}
	return formulas.CVaR(samples, confidence)
}

// simulate draws portfolio-level annual returns. The PCG source is re-seeded
// on every call so VaR and CVaR of the same portfolio agree on the paths.
func (rm *RiskModel) simulate(weights, mu []float64, cov *mat.SymDense) ([]float64, bool) {
	n := len(weights)
	if n == 0 || len(mu) != n || cov == nil || cov.SymmetricDim() != n {
		return nil, false
	}

	src := rand.NewSource(rm.settings.Seed)
	normal, ok := distmv.NewNormal(mu, cov, src)
	if !ok {
		return nil, false
	}

	sims := rm.settings.Simulations
	if sims <= 0 {
		sims = DefaultSimulations
	}

	portfolioReturns := make([]float64, sims)
	draw := make([]float64, n)
	for i := 0; i < sims; i++ {
		normal.Rand(draw)
		total := 0.0
		for j := 0; j < n; j++ {
			total += weights[j] * draw[j]
		}
		portfolioReturns[i] = total
	}
	return portfolioReturns, true
}

func (rm *RiskModel) fallbackVaR(weights, mu []float64, cov *mat.SymDense) float64 {
	ret := 0.0
	vol := 0.0
	if cov != nil && len(weights) == len(mu) && cov.SymmetricDim() == len(weights) {
		ret = rm.PortfolioReturn(weights, mu)
		vol = rm.PortfolioVolatility(weights, cov)
	}
	estimate := ret - MonteCarloFallbackZ*vol
	rm.log.Warn().
		Float64("expected_return", ret).
		Float64("volatility", vol).
		Float64("estimate", estimate).
		Msg("Monte Carlo simulation unavailable, using scaled parametric VaR")
	return estimate
}

func zScore(confidence float64) float64 {
	if z, ok := zScores[confidence]; ok {
		return z
	}
	return formulas.NormalQuantile(confidence)
}
