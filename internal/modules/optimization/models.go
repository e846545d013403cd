package optimization

import "time"

// Default engine parameters. Mirrors of these live in Settings so a run can
// override them; the constants are the documented baseline.
const (
	DefaultTargetReturn     = 0.07
	DefaultTargetVolatility = 0.20
	DefaultVaRConfidence    = 0.97
	DefaultMaxIterations    = 1000
	DefaultTolerance        = 1e-8
	DefaultSimulations      = 10000
	DefaultSeed             = 42
	DefaultMaxWeight        = 0.20
	DefaultFrontierPoints   = 20

	// Expected-return blend: composite = FinancialWeight * (HistWeight*hist +
	// AnalystWeight*upside) + SentimentWeight * sentiment adjustment.
	DefaultHistWeight      = 0.70
	DefaultAnalystWeight   = 0.30
	DefaultFinancialWeight = 0.80
	DefaultSentimentWeight = 0.20
)

// Settings holds the per-run parameters of the engine. Values are copied at
// construction time; a running optimization never observes changes.
type Settings struct {
	TargetReturn     float64 `json:"target_return"`
	TargetVolatility float64 `json:"target_volatility"`
	RiskFreeRate     float64 `json:"risk_free_rate"`
	VaRConfidence    float64 `json:"var_confidence"`

	MaxIterations int     `json:"max_iterations"`
	Tolerance     float64 `json:"tolerance"`
	Simulations   int     `json:"simulations"`
	Seed          uint64  `json:"seed"`

	// InvestableFraction is the required sum of weights relative to current
	// invested value: (value + new cash) / value. 1.0 means fully invested
	// with no new cash.
	InvestableFraction float64 `json:"investable_fraction"`

	MinWeight float64 `json:"min_weight"`
	MaxWeight float64 `json:"max_weight"`

	HistWeight      float64 `json:"hist_weight"`
	AnalystWeight   float64 `json:"analyst_weight"`
	FinancialWeight float64 `json:"financial_weight"`
	SentimentWeight float64 `json:"sentiment_weight"`

	FrontierPoints int `json:"frontier_points"`
}

// DefaultSettings returns the baseline engine parameters.
func DefaultSettings() Settings {
	return Settings{
		TargetReturn:       DefaultTargetReturn,
		TargetVolatility:   DefaultTargetVolatility,
		RiskFreeRate:       0.0,
		VaRConfidence:      DefaultVaRConfidence,
		MaxIterations:      DefaultMaxIterations,
		Tolerance:          DefaultTolerance,
		Simulations:        DefaultSimulations,
		Seed:               DefaultSeed,
		InvestableFraction: 1.0,
		MinWeight:          0.0,
		MaxWeight:          DefaultMaxWeight,
		HistWeight:         DefaultHistWeight,
		AnalystWeight:      DefaultAnalystWeight,
		FinancialWeight:    DefaultFinancialWeight,
		SentimentWeight:    DefaultSentimentWeight,
		FrontierPoints:     DefaultFrontierPoints,
	}
}

// Constraints bounds the weight vector during a solve.
type Constraints struct {
	// Per-symbol bounds. A symbol absent from the maps falls back to the
	// scalar Min/Max.
	MinWeights map[string]float64
	MaxWeights map[string]float64
	Min        float64
	Max        float64

	// Optional sector caps: SectorBySymbol maps a symbol to its sector,
	// SectorCaps limits the summed weight per sector.
	SectorBySymbol map[string]string
	SectorCaps     map[string]float64

	// Required sum of weights. Zero means 1.0.
	InvestableFraction float64
}

func (c Constraints) lower(symbol string) float64 {
	if w, ok := c.MinWeights[symbol]; ok {
		return w
	}
	return c.Min
}

func (c Constraints) upper(symbol string) float64 {
	if w, ok := c.MaxWeights[symbol]; ok {
		return w
	}
	if c.Max > 0 {
		return c.Max
	}
	return 1.0
}

func (c Constraints) targetSum() float64 {
	if c.InvestableFraction > 0 {
		return c.InvestableFraction
	}
	return 1.0
}

// Result is the outcome of a single solve.
type Result struct {
	RunID          string             `json:"run_id"`
	Timestamp      time.Time          `json:"timestamp"`
	Strategy       string             `json:"strategy"`
	FallbackUsed   *string            `json:"fallback_used,omitempty"`
	Weights        map[string]float64 `json:"weights"`
	ExpectedReturn float64            `json:"expected_return"`
	Volatility     float64            `json:"volatility"`
	Sharpe         float64            `json:"sharpe"`
	ParametricVaR  float64            `json:"parametric_var"`
	MonteCarloVaR  float64            `json:"monte_carlo_var"`
	CVaR           float64            `json:"cvar"`
}

// FrontierPoint is one converged point on the efficient frontier.
type FrontierPoint struct {
	TargetReturn   float64            `json:"target_return"`
	ExpectedReturn float64            `json:"expected_return"`
	Volatility     float64            `json:"volatility"`
	Sharpe         float64            `json:"sharpe"`
	Weights        map[string]float64 `json:"weights"`
}
