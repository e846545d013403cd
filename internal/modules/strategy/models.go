// Package strategy applies the second phase of an optimization run: the raw
// solver weights are reconciled with the live portfolio so that the plan
// respects position history, sentiment and the cash budget.
package strategy

import "tigro/internal/domain"

// Classification is the strategic verdict for one symbol.
type Classification struct {
	Symbol         string             `json:"symbol"`
	Action         domain.TradeAction `json:"action"`
	Phase1Weight   float64            `json:"phase1_weight"`
	CurrentWeight  float64            `json:"current_weight"`
	AdjustedWeight float64            `json:"adjusted_weight"`
	Reason         string             `json:"reason,omitempty"`
}

// Plan is the adjusted allocation for the whole portfolio.
type Plan struct {
	Classifications []Classification   `json:"classifications"`
	Weights         map[string]float64 `json:"weights"`
	PlannedSpend    float64            `json:"planned_spend"`
	NetCashUsed     float64            `json:"net_cash_used"`
	BudgetExceeded  bool               `json:"budget_exceeded"`
	SkippedBackups  []string           `json:"skipped_backups,omitempty"`
}
