// Package domain defines the shared types that flow through the optimization
// pipeline: price history, portfolio state and the per-symbol signals
// (analyst targets, sentiment) that feed expected-return estimation.
package domain

import "time"

// PricePoint is a single daily close for a symbol.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// Position is a currently held lot of a single symbol.
type Position struct {
	Symbol       string  `json:"symbol"`
	Shares       float64 `json:"shares"`
	CostBasis    float64 `json:"cost_basis"`    // Average cost per share
	CurrentPrice float64 `json:"current_price"` // Latest known price
}

// MarketValue returns the position's value at the current price.
func (p Position) MarketValue() float64 {
	return p.Shares * p.CurrentPrice
}

// UnrealizedReturn returns the fractional gain or loss versus cost basis.
// Zero cost basis yields 0.
func (p Position) UnrealizedReturn() float64 {
	if p.CostBasis <= 0 {
		return 0
	}
	return p.CurrentPrice/p.CostBasis - 1
}

// PortfolioSnapshot is the state of the portfolio at the start of a run.
type PortfolioSnapshot struct {
	Positions []Position `json:"positions"`
	Cash      float64    `json:"cash"`
	TakenAt   time.Time  `json:"taken_at"`
}

// TotalValue returns the market value of all positions, excluding cash.
func (s PortfolioSnapshot) TotalValue() float64 {
	total := 0.0
	for _, p := range s.Positions {
		total += p.MarketValue()
	}
	return total
}

// Weights returns current portfolio weights by symbol, relative to the
// invested value. An empty portfolio returns an empty map.
func (s PortfolioSnapshot) Weights() map[string]float64 {
	total := s.TotalValue()
	weights := make(map[string]float64, len(s.Positions))
	if total <= 0 {
		return weights
	}
	for _, p := range s.Positions {
		weights[p.Symbol] = p.MarketValue() / total
	}
	return weights
}

// Find returns the position for symbol, or false when not held.
func (s PortfolioSnapshot) Find(symbol string) (Position, bool) {
	for _, p := range s.Positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return Position{}, false
}

// AnalystTarget is the consensus 12-month price target for a symbol.
type AnalystTarget struct {
	Symbol      string    `json:"symbol"`
	TargetPrice float64   `json:"target_price"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SentimentSnapshot is an externally supplied sentiment score for a symbol,
// normalized to [-1, 1].
type SentimentSnapshot struct {
	Symbol    string    `json:"symbol"`
	Score     float64   `json:"score"`
	Trend     string    `json:"trend,omitempty"` // improving, declining, stable
	UpdatedAt time.Time `json:"updated_at"`
}

// TradeAction classifies what a run recommends doing with a symbol.
type TradeAction string

const (
	ActionBuyNew      TradeAction = "BUY_NEW"
	ActionTopUpBackup TradeAction = "TOP_UP_BACKUP"
	ActionAdd         TradeAction = "ADD"
	ActionTrim        TradeAction = "TRIM"
	ActionSell        TradeAction = "SELL"
	ActionHold        TradeAction = "HOLD"
)
