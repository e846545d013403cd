// Package sizing turns an adjusted weight allocation into concrete share
// counts, stop losses and per-symbol trade recommendations.
package sizing

import (
	"time"

	"tigro/internal/domain"
)

// Recommendation is a single actionable trade.
type Recommendation struct {
	ID            string             `json:"id"`
	Symbol        string             `json:"symbol"`
	Action        domain.TradeAction `json:"action"`
	Price         float64            `json:"price"`
	TargetWeight  float64            `json:"target_weight"`
	CurrentShares float64            `json:"current_shares"`
	TargetShares  float64            `json:"target_shares"`
	SharesDelta   float64            `json:"shares_delta"`
	CurrentValue  float64            `json:"current_value"`
	TargetValue   float64            `json:"target_value"`
	ValueDelta    float64            `json:"value_delta"`
	StopLoss      *float64           `json:"stop_loss,omitempty"`
	Rationale     string             `json:"rationale,omitempty"`
}

// Summary aggregates a plan by action, with backup promotions applied.
type Summary struct {
	Counts          map[domain.TradeAction]int     `json:"counts"`
	ValueByAction   map[domain.TradeAction]float64 `json:"value_by_action"`
	PromotedBackups []string                       `json:"promoted_backups,omitempty"`
	NetCashUsed     float64                        `json:"net_cash_used"`
	RemainingBudget float64                        `json:"remaining_budget"`
}

// TradePlan is the full output of position sizing for one run.
type TradePlan struct {
	Recommendations []Recommendation `json:"recommendations"`
	Summary         Summary          `json:"summary"`
	GeneratedAt     time.Time        `json:"generated_at"`
}
