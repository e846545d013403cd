package optimization

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"tigro/internal/domain"
	"tigro/internal/modules/sizing"
	"tigro/internal/modules/strategy"
)

// DefaultLookbackDays is how much daily history feeds estimation.
const DefaultLookbackDays = 504 // two trading years

// DataSource supplies everything a run reads: the investable universe,
// price history, latest prices, per-symbol signals and the portfolio state.
type DataSource interface {
	Universe(ctx context.Context) ([]string, error)
	PriceHistory(ctx context.Context, symbols []string, days int) (map[string][]domain.PricePoint, error)
	LatestPrices(ctx context.Context, symbols []string) (map[string]float64, error)
	AnalystTargets(ctx context.Context, symbols []string) (map[string]domain.AnalystTarget, error)
	Sentiment(ctx context.Context, symbols []string) (map[string]domain.SentimentSnapshot, error)
	PortfolioSnapshot(ctx context.Context) (domain.PortfolioSnapshot, error)
}

// RunStore persists completed runs.
type RunStore interface {
	SaveRun(ctx context.Context, record *RunRecord) error
	LatestRun(ctx context.Context) (*RunRecord, error)
}

// RunRecord ties together everything one run produced.
type RunRecord struct {
	RunID        string            `json:"run_id"`
	Timestamp    time.Time         `json:"timestamp"`
	Optimization *Result           `json:"optimization"`
	Adjustment   *strategy.Plan    `json:"adjustment"`
	Trades       *sizing.TradePlan `json:"trades"`
}

// Service runs the full pipeline: estimate, solve with fallbacks, adjust
// strategically, size positions and persist the outcome.
type Service struct {
	settings     Settings
	lookbackDays int

	estimator *Estimator
	risk      *RiskModel
	optimizer *Optimizer
	adjuster  *strategy.Adjuster
	sizer     *sizing.Sizer

	data  DataSource
	store RunStore
	log   zerolog.Logger

	mu       sync.RWMutex
	lastRun  *RunRecord
	lastFail error
}

// NewService wires the pipeline together.
func NewService(
	settings Settings,
	lookbackDays int,
	adjuster *strategy.Adjuster,
	sizer *sizing.Sizer,
	data DataSource,
	store RunStore,
	log zerolog.Logger,
) *Service {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	risk := NewRiskModel(settings, log)
	return &Service{
		settings:     settings,
		lookbackDays: lookbackDays,
		estimator:    NewEstimator(settings, log),
		risk:         risk,
		optimizer:    NewOptimizer(settings, risk, log),
		adjuster:     adjuster,
		sizer:        sizer,
		data:         data,
		store:        store,
		log:          log.With().Str("component", "optimization").Logger(),
	}
}

// RunOnce executes a full optimization run and persists the record.
func (s *Service) RunOnce(ctx context.Context) (*RunRecord, error) {
	record, err := s.run(ctx)
	s.mu.Lock()
	if err != nil {
		s.lastFail = err
	} else {
		s.lastRun = record
		s.lastFail = nil
	}
	s.mu.Unlock()
	return record, err
}

func (s *Service) run(ctx context.Context) (*RunRecord, error) {
	started := time.Now()

	symbols, err := s.data.Universe(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading universe: %w", err)
	}
	if len(symbols) == 0 {
		return nil, &InvalidInputError{Reason: "universe is empty"}
	}

	histories, err := s.data.PriceHistory(ctx, symbols, s.lookbackDays)
	if err != nil {
		return nil, fmt.Errorf("loading price history: %w", err)
	}

	matrix, err := s.estimator.BuildReturnsMatrix(histories, symbols)
	if err != nil {
		return nil, err
	}
	histReturns := s.estimator.AnnualizedMeanReturns(matrix)
	cov, err := s.estimator.AnnualizedCovariance(matrix)
	if err != nil {
		return nil, err
	}

	prices, err := s.data.LatestPrices(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("loading prices: %w", err)
	}
	targets, err := s.data.AnalystTargets(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("loading analyst targets: %w", err)
	}
	sentiment, err := s.data.Sentiment(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("loading sentiment: %w", err)
	}

	mu, err := s.estimator.CompositeExpectedReturns(histReturns, symbols, prices, targets, sentiment)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.data.PortfolioSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading portfolio snapshot: %w", err)
	}

	newCash := math.Min(snapshot.Cash, strategy.DefaultMaxCashInvestment)
	fraction := 1.0
	if value := snapshot.TotalValue(); value > 0 {
		fraction = (value + newCash) / value
	}

	constraints := Constraints{
		Min:                s.settings.MinWeight,
		Max:                s.settings.MaxWeight,
		InvestableFraction: fraction,
	}

	result, err := s.solveWithFallbacks(mu, cov, symbols, constraints)
	if err != nil {
		return nil, err
	}

	volatilities := make(map[string]float64, len(symbols))
	for i, symbol := range symbols {
		volatilities[symbol] = math.Sqrt(math.Max(cov.At(i, i), 0))
	}

	plan := s.adjuster.Adjust(result.Weights, snapshot, sentiment, newCash, fraction)
	trades := s.sizer.BuildPlan(plan, snapshot, prices, volatilities, sentiment, newCash)

	record := &RunRecord{
		RunID:        result.RunID,
		Timestamp:    result.Timestamp,
		Optimization: result,
		Adjustment:   plan,
		Trades:       trades,
	}
	if s.store != nil {
		if err := s.store.SaveRun(ctx, record); err != nil {
			return nil, fmt.Errorf("persisting run: %w", err)
		}
	}

	s.log.Info().
		Str("run_id", record.RunID).
		Dur("elapsed", time.Since(started)).
		Int("symbols", len(symbols)).
		Int("recommendations", len(trades.Recommendations)).
		Msg("Optimization run complete")
	return record, nil
}

// solveWithFallbacks tries the strategies in preference order: a volatility
// cap first, a minimum-variance solve at the target return next, maximum
// Sharpe last. The first converged result wins; when it was not the first
// choice the result carries the fallback marker.
func (s *Service) solveWithFallbacks(mu []float64, cov *mat.SymDense, symbols []string, c Constraints) (*Result, error) {
	type attempt struct {
		name  string
		solve func() (*Result, error)
	}
	attempts := []attempt{
		{StrategyEfficientRisk, func() (*Result, error) {
			return s.optimizer.EfficientRisk(mu, cov, symbols, c, s.settings.TargetVolatility)
		}},
		{StrategyMinVariance, func() (*Result, error) {
			return s.optimizer.MinVariance(mu, cov, symbols, c, s.settings.TargetReturn)
		}},
		{StrategyMaxSharpe, func() (*Result, error) {
			return s.optimizer.MaxSharpe(mu, cov, symbols, c)
		}},
	}

	var lastErr error
	for i, a := range attempts {
		result, err := a.solve()
		if err == nil {
			if i > 0 {
				name := a.name
				result.FallbackUsed = &name
				s.log.Warn().
					Str("strategy", name).
					Msg("Primary strategy failed, fallback produced the allocation")
			}
			return result, nil
		}
		lastErr = err
		s.log.Warn().Str("strategy", a.name).Err(err).Msg("Strategy did not converge")
	}
	return nil, fmt.Errorf("all strategies failed: %w", lastErr)
}

// Frontier computes the efficient frontier from the latest estimates without
// touching the portfolio.
func (s *Service) Frontier(ctx context.Context, points int) ([]FrontierPoint, error) {
	symbols, err := s.data.Universe(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading universe: %w", err)
	}
	histories, err := s.data.PriceHistory(ctx, symbols, s.lookbackDays)
	if err != nil {
		return nil, fmt.Errorf("loading price history: %w", err)
	}
	matrix, err := s.estimator.BuildReturnsMatrix(histories, symbols)
	if err != nil {
		return nil, err
	}
	cov, err := s.estimator.AnnualizedCovariance(matrix)
	if err != nil {
		return nil, err
	}
	mu := s.estimator.AnnualizedMeanReturns(matrix)

	c := Constraints{Min: s.settings.MinWeight, Max: s.settings.MaxWeight}
	return s.optimizer.EfficientFrontier(mu, cov, symbols, c, points)
}

// LatestRun returns the most recent completed run, preferring the in-memory
// copy and falling back to the store.
func (s *Service) LatestRun(ctx context.Context) (*RunRecord, error) {
	s.mu.RLock()
	last := s.lastRun
	s.mu.RUnlock()
	if last != nil {
		return last, nil
	}
	if s.store == nil {
		return nil, nil
	}
	return s.store.LatestRun(ctx)
}

// LastError returns the failure of the most recent attempted run, if any.
func (s *Service) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFail
}
