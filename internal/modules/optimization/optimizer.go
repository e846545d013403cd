package optimization

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Strategy names as they appear on results and in logs.
const (
	StrategyMinVariance   = "min_variance"
	StrategyMaxSharpe     = "max_sharpe"
	StrategyEfficientRisk = "efficient_risk"
)

// penaltyWeight scales the quadratic penalties that stand in for the
// equality and inequality constraints of the solve.
const penaltyWeight = 1000.0

// Optimizer solves the constrained mean-variance problem with a penalty
// method over gonum's unconstrained minimizers. BFGS runs first with the
// analytic gradient; Nelder-Mead is the derivative-free fallback.
type Optimizer struct {
	settings Settings
	risk     *RiskModel
	log      zerolog.Logger
}

// NewOptimizer creates a new mean-variance optimizer.
func NewOptimizer(settings Settings, risk *RiskModel, log zerolog.Logger) *Optimizer {
	return &Optimizer{
		settings: settings,
		risk:     risk,
		log:      log.With().Str("component", "optimizer").Logger(),
	}
}

// MinVariance minimizes ½w'Σw subject to w'μ = targetReturn, the weight sum
// equalling the investable fraction, and per-symbol bounds.
func (o *Optimizer) MinVariance(mu []float64, cov *mat.SymDense, symbols []string, c Constraints, targetReturn float64) (*Result, error) {
	if err := o.validate(mu, cov, symbols); err != nil {
		return nil, err
	}
	n := len(symbols)
	target := o.clampTarget(targetReturn, mu)
	sum := c.targetSum()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			w := o.projectToBounds(x, symbols, c)
			variance := quadraticForm(w, cov)
			ret := dot(mu, w)
			obj := 0.5 * variance
			obj += penaltyWeight * square(total(w)-sum)
			obj += penaltyWeight * square(ret-target)
			obj += o.sectorPenalty(w, symbols, c)
			return obj
		},
		Grad: func(grad, x []float64) {
			w := o.projectToBounds(x, symbols, c)
			ret := dot(mu, w)
			sumW := total(w)
			for i := 0; i < n; i++ {
				grad[i] = 0
				for j := 0; j < n; j++ {
					grad[i] += cov.At(i, j) * w[j]
				}
				grad[i] += 2 * penaltyWeight * (sumW - sum)
				grad[i] += 2 * penaltyWeight * (ret - target) * mu[i]
			}
			o.addSectorPenaltyGradient(grad, w, symbols, c)
		},
	}

	x, err := o.solve(problem, n, StrategyMinVariance)
	if err != nil {
		return nil, err
	}
	return o.finalize(x, mu, cov, symbols, c, StrategyMinVariance), nil
}

// MaxSharpe maximizes (w'μ - rf) / sqrt(w'Σw) subject to the weight sum and
// bounds.
func (o *Optimizer) MaxSharpe(mu []float64, cov *mat.SymDense, symbols []string, c Constraints) (*Result, error) {
	if err := o.validate(mu, cov, symbols); err != nil {
		return nil, err
	}
	n := len(symbols)
	sum := c.targetSum()
	rf := o.settings.RiskFreeRate

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			w := o.projectToBounds(x, symbols, c)
			ret := dot(mu, w)
			stdDev := math.Sqrt(math.Max(quadraticForm(w, cov), 1e-10))
			obj := -(ret - rf) / stdDev
			obj += penaltyWeight * square(total(w)-sum)
			obj += o.sectorPenalty(w, symbols, c)
			return obj
		},
		Grad: func(grad, x []float64) {
			w := o.projectToBounds(x, symbols, c)
			ret := dot(mu, w)
			variance := math.Max(quadraticForm(w, cov), 1e-10)
			stdDev := math.Sqrt(variance)
			sumW := total(w)
			for i := 0; i < n; i++ {
				var dVariance float64
				for j := 0; j < n; j++ {
					dVariance += 2 * cov.At(i, j) * w[j]
				}
				grad[i] = -mu[i]/stdDev + (ret-rf)*dVariance/(2*stdDev*variance)
				grad[i] += 2 * penaltyWeight * (sumW - sum)
			}
			o.addSectorPenaltyGradient(grad, w, symbols, c)
		},
	}

	x, err := o.solve(problem, n, StrategyMaxSharpe)
	if err != nil {
		return nil, err
	}
	return o.finalize(x, mu, cov, symbols, c, StrategyMaxSharpe), nil
}

// EfficientRisk maximizes w'μ subject to sqrt(w'Σw) ≤ targetVolatility, the
// weight sum and bounds. The volatility cap is one-sided: portfolios below
// the cap pay no penalty.
func (o *Optimizer) EfficientRisk(mu []float64, cov *mat.SymDense, symbols []string, c Constraints, targetVolatility float64) (*Result, error) {
	if err := o.validate(mu, cov, symbols); err != nil {
		return nil, err
	}
	if targetVolatility <= 0 {
		return nil, &InvalidInputError{Reason: fmt.Sprintf("target volatility must be positive, got %v", targetVolatility)}
	}
	n := len(symbols)
	sum := c.targetSum()
	maxVariance := targetVolatility * targetVolatility

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			w := o.projectToBounds(x, symbols, c)
			variance := quadraticForm(w, cov)
			obj := -dot(mu, w)
			obj += penaltyWeight * square(total(w)-sum)
			if variance > maxVariance {
				obj += penaltyWeight * square(variance-maxVariance)
			}
			obj += o.sectorPenalty(w, symbols, c)
			return obj
		},
		Grad: func(grad, x []float64) {
			w := o.projectToBounds(x, symbols, c)
			variance := quadraticForm(w, cov)
			sumW := total(w)
			for i := 0; i < n; i++ {
				grad[i] = -mu[i]
				grad[i] += 2 * penaltyWeight * (sumW - sum)
				if variance > maxVariance {
					var dVariance float64
					for j := 0; j < n; j++ {
						dVariance += 2 * cov.At(i, j) * w[j]
					}
					grad[i] += 2 * penaltyWeight * (variance - maxVariance) * dVariance
				}
			}
			o.addSectorPenaltyGradient(grad, w, symbols, c)
		},
	}

	x, err := o.solve(problem, n, StrategyEfficientRisk)
	if err != nil {
		return nil, err
	}
	return o.finalize(x, mu, cov, symbols, c, StrategyEfficientRisk), nil
}

// EfficientFrontier sweeps target returns from min(μ) to max(μ) and runs a
// minimum-variance solve per point. Points that fail to converge are
// dropped; an empty frontier is not an error.
func (o *Optimizer) EfficientFrontier(mu []float64, cov *mat.SymDense, symbols []string, c Constraints, points int) ([]FrontierPoint, error) {
	if err := o.validate(mu, cov, symbols); err != nil {
		return nil, err
	}
	if points <= 1 {
		points = o.settings.FrontierPoints
	}

	lo, hi := mu[0], mu[0]
	for _, r := range mu[1:] {
		lo = math.Min(lo, r)
		hi = math.Max(hi, r)
	}

	frontier := make([]FrontierPoint, 0, points)
	for i := 0; i < points; i++ {
		target := lo + (hi-lo)*float64(i)/float64(points-1)
		result, err := o.MinVariance(mu, cov, symbols, c, target)
		if err != nil {
			o.log.Debug().
				Float64("target_return", target).
				Err(err).
				Msg("Frontier point did not converge, skipping")
			continue
		}
		frontier = append(frontier, FrontierPoint{
			TargetReturn:   target,
			ExpectedReturn: result.ExpectedReturn,
			Volatility:     result.Volatility,
			Sharpe:         result.Sharpe,
			Weights:        result.Weights,
		})
	}

	o.log.Info().
		Int("requested", points).
		Int("converged", len(frontier)).
		Msg("Efficient frontier computed")
	return frontier, nil
}

// solve runs the minimizers over the penalty problem. BFGS exploits the
// analytic gradient; when its status is not accepted the derivative-free
// Nelder-Mead gets a try before giving up.
func (o *Optimizer) solve(problem optimize.Problem, n int, strategy string) ([]float64, error) {
	initial := make([]float64, n)
	for i := range initial {
		initial[i] = 1.0 / float64(n)
	}

	settings := &optimize.Settings{
		MajorIterations:   o.settings.MaxIterations,
		GradientThreshold: o.settings.Tolerance,
	}

	result, err := optimize.Minimize(problem, initial, settings, &optimize.BFGS{})
	if err == nil && acceptedStatus(result.Status) {
		return result.X, nil
	}

	result, nmErr := optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
	if nmErr != nil {
		if err != nil {
			return nil, fmt.Errorf("optimization failed: %w", err)
		}
		return nil, fmt.Errorf("optimization failed: %w", nmErr)
	}
	if !acceptedStatus(result.Status) {
		return nil, &NonConvergenceError{Strategy: strategy, Status: result.Status.String()}
	}
	return result.X, nil
}

func acceptedStatus(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence:
		return true
	}
	return false
}

// finalize projects the raw solution to bounds, clips negatives, rescales to
// the investable fraction and attaches the risk figures.
func (o *Optimizer) finalize(x []float64, mu []float64, cov *mat.SymDense, symbols []string, c Constraints, strategy string) *Result {
	w := o.projectToBounds(x, symbols, c)
	for i := range w {
		w[i] = math.Max(0, w[i])
	}
	sum := total(w)
	scale := c.targetSum() / math.Max(sum, 1e-10)
	for i := range w {
		w[i] *= scale
	}

	weights := make(map[string]float64, len(symbols))
	for i, symbol := range symbols {
		weights[symbol] = w[i]
	}

	expectedReturn := o.risk.PortfolioReturn(w, mu)
	volatility := o.risk.PortfolioVolatility(w, cov)
	confidence := o.settings.VaRConfidence

	result := &Result{
		RunID:          uuid.NewString(),
		Timestamp:      time.Now().UTC(),
		Strategy:       strategy,
		Weights:        weights,
		ExpectedReturn: expectedReturn,
		Volatility:     volatility,
		Sharpe:         o.risk.SharpeRatio(w, mu, cov),
		ParametricVaR:  o.risk.ParametricVaR(expectedReturn, volatility, confidence),
		MonteCarloVaR:  o.risk.MonteCarloVaR(w, mu, cov, confidence),
		CVaR:           o.risk.SimulatedCVaR(w, mu, cov, confidence),
	}

	o.log.Info().
		Str("strategy", strategy).
		Float64("expected_return", result.ExpectedReturn).
		Float64("volatility", result.Volatility).
		Float64("sharpe", result.Sharpe).
		Msg("Optimization converged")
	return result
}

func (o *Optimizer) validate(mu []float64, cov *mat.SymDense, symbols []string) error {
	n := len(symbols)
	if n == 0 {
		return &InvalidInputError{Reason: "no symbols provided"}
	}
	if len(mu) != n {
		return &InvalidInputError{Reason: fmt.Sprintf("expected returns size %d does not match %d symbols", len(mu), n)}
	}
	if cov == nil || cov.SymmetricDim() != n {
		return &InvalidInputError{Reason: "covariance matrix does not match symbols"}
	}
	return nil
}

// clampTarget pulls an unreachable target return inside [min(μ), max(μ)].
func (o *Optimizer) clampTarget(target float64, mu []float64) float64 {
	lo, hi := mu[0], mu[0]
	for _, r := range mu[1:] {
		lo = math.Min(lo, r)
		hi = math.Max(hi, r)
	}
	if target < lo || target > hi {
		clamped := math.Max(lo, math.Min(hi, target))
		o.log.Warn().
			Float64("target", target).
			Float64("clamped", clamped).
			Msg("Target return outside achievable range, clamping")
		return clamped
	}
	return target
}

func (o *Optimizer) projectToBounds(x []float64, symbols []string, c Constraints) []float64 {
	proj := make([]float64, len(x))
	for i, symbol := range symbols {
		proj[i] = math.Max(c.lower(symbol), math.Min(c.upper(symbol), x[i]))
	}
	return proj
}

func (o *Optimizer) sectorPenalty(w []float64, symbols []string, c Constraints) float64 {
	if len(c.SectorCaps) == 0 {
		return 0
	}
	sectorWeights := make(map[string]float64)
	for i, symbol := range symbols {
		if sector := c.SectorBySymbol[symbol]; sector != "" {
			sectorWeights[sector] += w[i]
		}
	}
	penalty := 0.0
	for sector, limit := range c.SectorCaps {
		if weight := sectorWeights[sector]; weight > limit {
			penalty += penaltyWeight * square(weight-limit)
		}
	}
	return penalty
}

func (o *Optimizer) addSectorPenaltyGradient(grad, w []float64, symbols []string, c Constraints) {
	if len(c.SectorCaps) == 0 {
		return
	}
	sectorWeights := make(map[string]float64)
	for i, symbol := range symbols {
		if sector := c.SectorBySymbol[symbol]; sector != "" {
			sectorWeights[sector] += w[i]
		}
	}
	for sector, limit := range c.SectorCaps {
		weight := sectorWeights[sector]
		if weight <= limit {
			continue
		}
		d := 2 * penaltyWeight * (weight - limit)
		for i, symbol := range symbols {
			if c.SectorBySymbol[symbol] == sector {
				grad[i] += d
			}
		}
	}
}

func dot(a, b []float64) float64 {
	total := 0.0
	for i := range a {
		total += a[i] * b[i]
	}
	return total
}

func total(w []float64) float64 {
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	return sum
}

func quadraticForm(w []float64, cov *mat.SymDense) float64 {
	n := len(w)
	variance := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			variance += w[i] * w[j] * cov.At(i, j)
		}
	}
	return variance
}

func square(v float64) float64 { return v * v }
