package strategy

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"tigro/internal/domain"
)

// Classification thresholds and weight-policy ratios.
const (
	// A symbol is a SELL when the solver leaves it at or below this fraction
	// of its current weight.
	SellFloorRatio = 0.10
	// ...or when sentiment has turned against a losing position.
	SellSentimentThreshold = -0.20
	SellReturnThreshold    = -0.10

	// TRIM when the solver cuts the weight by more than five points.
	TrimDropThreshold = 0.05

	// Weight policy per action.
	SellKeepRatio    = 0.10
	TrimFloorRatio   = 0.70
	BackupTopUpRatio = 0.50
	BackupGrowthCap  = 1.10

	// Budget rules.
	DefaultMaxCashInvestment = 10000.0
	DefaultMinBackupBudget   = 1000.0

	// Weights below this are treated as zero.
	zeroWeightGuard = 1e-10
)

// Adjuster reconciles solver weights with the live portfolio.
type Adjuster struct {
	maxCashInvestment float64
	minBackupBudget   float64
	log               zerolog.Logger
}

// NewAdjuster creates a new two-phase adjuster. Non-positive budget values
// fall back to the defaults.
func NewAdjuster(maxCashInvestment, minBackupBudget float64, log zerolog.Logger) *Adjuster {
	if maxCashInvestment <= 0 {
		maxCashInvestment = DefaultMaxCashInvestment
	}
	if minBackupBudget <= 0 {
		minBackupBudget = DefaultMinBackupBudget
	}
	return &Adjuster{
		maxCashInvestment: maxCashInvestment,
		minBackupBudget:   minBackupBudget,
		log:               log.With().Str("component", "adjuster").Logger(),
	}
}

// Adjust classifies every symbol in the union of solver and portfolio
// weights, applies the per-action weight policy, gates backup top-ups by the
// cash budget and renormalizes to the investable fraction.
//
// Classification order is fixed: SELL, then TRIM, then BUY_NEW, then
// TOP_UP_BACKUP; the first matching rule wins and everything else HOLDs.
// Overspending the cash ceiling sets BudgetExceeded on the plan rather than
// failing the run.
func (a *Adjuster) Adjust(
	phase1 map[string]float64,
	snapshot domain.PortfolioSnapshot,
	sentiment map[string]domain.SentimentSnapshot,
	newCash float64,
	investableFraction float64,
) *Plan {
	current := snapshot.Weights()
	symbols := unionSymbols(phase1, current)

	classifications := make([]Classification, 0, len(symbols))
	for _, symbol := range symbols {
		c := a.classify(symbol, phase1[symbol], current[symbol], snapshot, sentiment)
		c.AdjustedWeight = a.applyPolicy(c)
		classifications = append(classifications, c)
	}

	base := snapshot.TotalValue() + newCash
	skipped := a.gateBackups(classifications, base, newCash)
	spend := plannedSpend(classifications, base)
	net := netCashUsed(classifications, base)

	budgetExceeded := math.Abs(net) > a.maxCashInvestment
	if budgetExceeded {
		a.log.Warn().
			Float64("net_cash_used", net).
			Float64("max_cash_investment", a.maxCashInvestment).
			Msg("Net cash used exceeds cash ceiling")
	}

	weights := renormalize(classifications, investableFraction)

	a.log.Info().
		Int("symbols", len(classifications)).
		Float64("planned_spend", spend).
		Float64("net_cash_used", net).
		Bool("budget_exceeded", budgetExceeded).
		Msg("Strategic adjustment complete")

	return &Plan{
		Classifications: classifications,
		Weights:         weights,
		PlannedSpend:    spend,
		NetCashUsed:     net,
		BudgetExceeded:  budgetExceeded,
		SkippedBackups:  skipped,
	}
}

func (a *Adjuster) classify(
	symbol string,
	phase1, current float64,
	snapshot domain.PortfolioSnapshot,
	sentiment map[string]domain.SentimentSnapshot,
) Classification {
	c := Classification{
		Symbol:        symbol,
		Phase1Weight:  phase1,
		CurrentWeight: current,
		Action:        domain.ActionHold,
	}

	positionReturn := 0.0
	held := current > zeroWeightGuard
	if position, ok := snapshot.Find(symbol); ok {
		positionReturn = position.UnrealizedReturn()
	}
	score, hasSentiment := sentiment[symbol]

	switch {
	case held && phase1 <= current*SellFloorRatio:
		c.Action = domain.ActionSell
		c.Reason = "optimizer allocation collapsed"
	case held && hasSentiment && score.Score < SellSentimentThreshold && positionReturn < SellReturnThreshold:
		c.Action = domain.ActionSell
		c.Reason = "negative sentiment on losing position"
	case held && current-phase1 > TrimDropThreshold:
		c.Action = domain.ActionTrim
		c.Reason = "weight reduced by more than five points"
	case !held && phase1 > zeroWeightGuard:
		c.Action = domain.ActionBuyNew
		c.Reason = "new position"
	case held && phase1 > current && positionReturn <= 0:
		c.Action = domain.ActionBuyNew
		c.Reason = "adding to flat or losing position"
	case held && phase1 > current && positionReturn > 0:
		c.Action = domain.ActionTopUpBackup
		c.Reason = "adding to profitable position"
	}
	return c
}

// applyPolicy translates an action into the weight actually planned.
func (a *Adjuster) applyPolicy(c Classification) float64 {
	switch c.Action {
	case domain.ActionSell:
		return math.Max(0, c.Phase1Weight*SellKeepRatio)
	case domain.ActionTrim:
		return math.Max(c.Phase1Weight, c.CurrentWeight*TrimFloorRatio)
	case domain.ActionTopUpBackup:
		return math.Min(c.Phase1Weight*BackupTopUpRatio, c.CurrentWeight*BackupGrowthCap)
	default:
		return c.Phase1Weight
	}
}

// gateBackups walks backup top-ups in descending top-up-cost order and
// reverts any it cannot afford. The budget they draw on is the cash ceiling
// net of the primary actions: sells and trims free proceeds back into it,
// buys consume it. An unaffordable item is skipped whole, never partially
// filled, and processing stops once the remaining budget drops to the floor.
func (a *Adjuster) gateBackups(classifications []Classification, base, newCash float64) []string {
	type backup struct {
		index int
		cost  float64
	}
	var backups []backup
	netPrimary := 0.0
	for i, c := range classifications {
		if c.Action == domain.ActionTopUpBackup {
			cost := math.Max(0, c.AdjustedWeight-c.CurrentWeight) * base
			backups = append(backups, backup{index: i, cost: cost})
			continue
		}
		netPrimary += (c.AdjustedWeight - c.CurrentWeight) * base
	}
	if len(backups) == 0 {
		return nil
	}

	sort.Slice(backups, func(i, j int) bool { return backups[i].cost > backups[j].cost })

	remaining := math.Min(newCash, a.maxCashInvestment) - netPrimary
	var skipped []string
	for _, b := range backups {
		c := &classifications[b.index]
		cost := b.cost
		if remaining <= a.minBackupBudget || cost > remaining {
			c.AdjustedWeight = c.CurrentWeight
			c.Action = domain.ActionHold
			c.Reason = "backup top-up skipped, budget exhausted"
			skipped = append(skipped, c.Symbol)
			a.log.Debug().
				Str("symbol", c.Symbol).
				Float64("cost", cost).
				Float64("remaining", remaining).
				Msg("Skipping backup top-up")
			continue
		}
		remaining -= cost
	}
	return skipped
}

// plannedSpend totals the cash the plan wants to deploy into increased
// allocations before renormalization.
func plannedSpend(classifications []Classification, base float64) float64 {
	spend := 0.0
	for _, c := range classifications {
		if delta := c.AdjustedWeight - c.CurrentWeight; delta > 0 {
			spend += delta * base
		}
	}
	return spend
}

// netCashUsed is purchases minus sale and trim proceeds: the cash the plan
// actually consumes.
func netCashUsed(classifications []Classification, base float64) float64 {
	net := 0.0
	for _, c := range classifications {
		net += (c.AdjustedWeight - c.CurrentWeight) * base
	}
	return net
}

func renormalize(classifications []Classification, investableFraction float64) map[string]float64 {
	if investableFraction <= 0 {
		investableFraction = 1.0
	}
	sum := 0.0
	for _, c := range classifications {
		sum += c.AdjustedWeight
	}
	weights := make(map[string]float64, len(classifications))
	if sum <= zeroWeightGuard {
		return weights
	}
	scale := investableFraction / sum
	for _, c := range classifications {
		weights[c.Symbol] = c.AdjustedWeight * scale
	}
	return weights
}

func unionSymbols(phase1, current map[string]float64) []string {
	seen := make(map[string]bool, len(phase1)+len(current))
	var symbols []string
	for s := range phase1 {
		if !seen[s] {
			seen[s] = true
			symbols = append(symbols, s)
		}
	}
	for s := range current {
		if !seen[s] {
			seen[s] = true
			symbols = append(symbols, s)
		}
	}
	sort.Strings(symbols)
	return symbols
}
