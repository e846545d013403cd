package sizing

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tigro/internal/domain"
	"tigro/internal/modules/strategy"
)

// Sizing thresholds.
const (
	// Share deltas smaller than this are noise, not trades.
	MinShareDelta = 0.1

	// A target below a tenth of the current value is an exit, whatever the
	// share delta says.
	SellValueRatio = 0.10

	// Stop-loss parameters: the fixed stop competes with a volatility stop
	// of vol*2 capped at 15%, the tighter of the two wins.
	FixedStopPct      = 0.08
	VolatilityStopMul = 2.0
	VolatilityStopCap = 0.15

	zeroValueGuard = 1e-10
)

// Sizer builds trade plans from adjusted allocations.
type Sizer struct {
	maxCashInvestment float64
	minBackupBudget   float64
	log               zerolog.Logger
}

// NewSizer creates a new position sizer. Non-positive budgets fall back to
// the adjuster defaults.
func NewSizer(maxCashInvestment, minBackupBudget float64, log zerolog.Logger) *Sizer {
	if maxCashInvestment <= 0 {
		maxCashInvestment = strategy.DefaultMaxCashInvestment
	}
	if minBackupBudget <= 0 {
		minBackupBudget = strategy.DefaultMinBackupBudget
	}
	return &Sizer{
		maxCashInvestment: maxCashInvestment,
		minBackupBudget:   minBackupBudget,
		log:               log.With().Str("component", "sizer").Logger(),
	}
}

// BuildPlan sizes every symbol in the adjusted plan. Target values are
// weights applied to current value plus new cash; symbols without a price
// are skipped with a warning.
func (s *Sizer) BuildPlan(
	plan *strategy.Plan,
	snapshot domain.PortfolioSnapshot,
	prices map[string]float64,
	volatilities map[string]float64,
	sentiment map[string]domain.SentimentSnapshot,
	newCash float64,
) *TradePlan {
	base := snapshot.TotalValue() + newCash
	classBySymbol := make(map[string]strategy.Classification, len(plan.Classifications))
	for _, c := range plan.Classifications {
		classBySymbol[c.Symbol] = c
	}

	symbols := make([]string, 0, len(plan.Weights))
	for symbol := range plan.Weights {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	recommendations := make([]Recommendation, 0, len(symbols))
	for _, symbol := range symbols {
		price, ok := prices[symbol]
		if !ok || price <= 0 {
			s.log.Warn().Str("symbol", symbol).Msg("No price available, skipping symbol")
			continue
		}

		weight := plan.Weights[symbol]
		position, _ := snapshot.Find(symbol)

		rec := Recommendation{
			ID:            uuid.NewString(),
			Symbol:        symbol,
			Price:         price,
			TargetWeight:  weight,
			CurrentShares: position.Shares,
			CurrentValue:  position.MarketValue(),
			TargetValue:   weight * base,
		}
		rec.TargetShares = rec.TargetValue / price
		rec.SharesDelta = rec.TargetShares - rec.CurrentShares
		rec.ValueDelta = rec.TargetValue - rec.CurrentValue
		rec.Action = s.action(rec, classBySymbol[symbol])

		if rec.TargetShares > 0 {
			stop := s.stopLoss(price, volatilities[symbol])
			rec.StopLoss = &stop
		}
		rec.Rationale = rationale(position, volatilities[symbol], sentiment[symbol])

		recommendations = append(recommendations, rec)
	}

	summary := s.buildSummary(recommendations, classBySymbol, newCash)

	s.log.Info().
		Int("recommendations", len(recommendations)).
		Float64("base_value", base).
		Msg("Trade plan built")

	return &TradePlan{
		Recommendations: recommendations,
		Summary:         summary,
		GeneratedAt:     time.Now().UTC(),
	}
}

// action derives the trade action from the sized deltas. The strategic
// classification only distinguishes a fresh buy from an add on the buy side.
func (s *Sizer) action(rec Recommendation, class strategy.Classification) domain.TradeAction {
	if math.Abs(rec.SharesDelta) < MinShareDelta {
		return domain.ActionHold
	}
	if rec.CurrentValue > zeroValueGuard && rec.TargetValue < rec.CurrentValue*SellValueRatio {
		return domain.ActionSell
	}
	if rec.SharesDelta > 0 {
		if rec.CurrentShares <= zeroValueGuard || class.Action == domain.ActionBuyNew {
			return domain.ActionBuyNew
		}
		if class.Action == domain.ActionTopUpBackup {
			return domain.ActionTopUpBackup
		}
		return domain.ActionAdd
	}
	return domain.ActionTrim
}

// stopLoss returns the stop price below current: the tighter of the fixed
// stop and the volatility stop.
func (s *Sizer) stopLoss(price, volatility float64) float64 {
	stopPct := FixedStopPct
	if volatility > 0 {
		volStop := math.Min(volatility*VolatilityStopMul, VolatilityStopCap)
		stopPct = math.Min(FixedStopPct, volStop)
	}
	return price * (1 - stopPct)
}

// buildSummary groups the plan by action and promotes backup top-ups to ADD
// while the cash budget allows. The budget is the cash ceiling net of the
// primary actions: purchases consume it and sale or trim proceeds replenish
// it, so every sell is counted before any backup is evaluated. Backups are
// taken in descending top-up-cost order; once the remainder falls to the
// floor, or an item costs more than what is left, the rest stay listed as
// backups.
func (s *Sizer) buildSummary(
	recommendations []Recommendation,
	classBySymbol map[string]strategy.Classification,
	newCash float64,
) Summary {
	summary := Summary{
		Counts:        make(map[domain.TradeAction]int),
		ValueByAction: make(map[domain.TradeAction]float64),
	}

	var backups []*Recommendation
	net := 0.0
	for i := range recommendations {
		rec := &recommendations[i]
		if rec.Action == domain.ActionTopUpBackup {
			backups = append(backups, rec)
			continue
		}
		summary.Counts[rec.Action]++
		summary.ValueByAction[rec.Action] += math.Abs(rec.ValueDelta)
		net += rec.ValueDelta
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].ValueDelta > backups[j].ValueDelta
	})

	remaining := math.Min(newCash, s.maxCashInvestment) - net
	for _, rec := range backups {
		cost := math.Max(0, rec.ValueDelta)
		if remaining > s.minBackupBudget && cost <= remaining {
			rec.Action = domain.ActionAdd
			remaining -= cost
			net += cost
			summary.PromotedBackups = append(summary.PromotedBackups, rec.Symbol)
			summary.Counts[domain.ActionAdd]++
			summary.ValueByAction[domain.ActionAdd] += cost
			continue
		}
		summary.Counts[domain.ActionTopUpBackup]++
		summary.ValueByAction[domain.ActionTopUpBackup] += cost
	}
	summary.NetCashUsed = net
	summary.RemainingBudget = math.Max(0, remaining)
	return summary
}
