// Package marketdata persists prices, signals and portfolio state in
// SQLite, and serves them to the optimization pipeline.
package marketdata

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tigro/internal/database"
	"tigro/internal/domain"
	"tigro/internal/modules/optimization"
)

const dateLayout = "2006-01-02"

// Repository handles all market data database operations. It implements
// both the data source and the run store the optimization service needs.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a repository backed by the given database and
// ensures the schema exists.
func NewRepository(db *database.DB, log zerolog.Logger) (*Repository, error) {
	r := &Repository{
		db:  db,
		log: log.With().Str("repo", "marketdata").Logger(),
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply marketdata schema: %w", err)
	}
	return r, nil
}

// Universe returns all symbols eligible for optimization, sorted.
func (r *Repository) Universe(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT symbol FROM universe ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to query universe: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan universe symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// AddToUniverse registers symbols as eligible for optimization.
func (r *Repository) AddToUniverse(ctx context.Context, symbols ...string) error {
	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		now := time.Now().Unix()
		for _, s := range symbols {
			s = normalizeSymbol(s)
			if s == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO universe (symbol, added_at) VALUES (?, ?) ON CONFLICT(symbol) DO NOTHING",
				s, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// SavePrices upserts daily close prices for a symbol.
func (r *Repository) SavePrices(ctx context.Context, symbol string, points []domain.PricePoint) error {
	symbol = normalizeSymbol(symbol)
	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		for _, p := range points {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO price_history (symbol, date, close) VALUES (?, ?, ?)
				 ON CONFLICT(symbol, date) DO UPDATE SET close = excluded.close`,
				symbol, p.Date.Format(dateLayout), p.Close); err != nil {
				return err
			}
		}
		return nil
	})
}

// PriceHistory returns up to days most recent closes per symbol, oldest
// first. Symbols with no stored history are simply absent from the map.
func (r *Repository) PriceHistory(ctx context.Context, symbols []string, days int) (map[string][]domain.PricePoint, error) {
	out := make(map[string][]domain.PricePoint, len(symbols))
	for _, symbol := range symbols {
		points, err := r.priceHistoryOne(ctx, normalizeSymbol(symbol), days)
		if err != nil {
			return nil, err
		}
		if len(points) > 0 {
			out[symbol] = points
		}
	}
	return out, nil
}

func (r *Repository) priceHistoryOne(ctx context.Context, symbol string, days int) ([]domain.PricePoint, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT date, close FROM price_history WHERE symbol = ? ORDER BY date DESC LIMIT ?",
		symbol, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history for %s: %w", symbol, err)
	}
	defer rows.Close()

	var points []domain.PricePoint
	for rows.Next() {
		var dateStr string
		var p domain.PricePoint
		if err := rows.Scan(&dateStr, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan price for %s: %w", symbol, err)
		}
		date, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("bad date %q for %s: %w", dateStr, symbol, err)
		}
		p.Date = date
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query is newest-first so the LIMIT keeps recent rows; callers want
	// oldest-first.
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

// LatestPrices returns the most recent stored close per symbol.
func (r *Repository) LatestPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	out := make(map[string]float64, len(symbols))
	for _, symbol := range symbols {
		var close float64
		err := r.db.QueryRowContext(ctx,
			"SELECT close FROM price_history WHERE symbol = ? ORDER BY date DESC LIMIT 1",
			normalizeSymbol(symbol)).Scan(&close)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query latest price for %s: %w", symbol, err)
		}
		out[symbol] = close
	}
	return out, nil
}

// SaveAnalystTarget upserts an analyst consensus price target.
func (r *Repository) SaveAnalystTarget(ctx context.Context, target domain.AnalystTarget) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO analyst_targets (symbol, target_price, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(symbol) DO UPDATE SET target_price = excluded.target_price, updated_at = excluded.updated_at`,
		normalizeSymbol(target.Symbol), target.TargetPrice, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save analyst target: %w", err)
	}
	return nil
}

// AnalystTargets returns the stored targets for the given symbols.
func (r *Repository) AnalystTargets(ctx context.Context, symbols []string) (map[string]domain.AnalystTarget, error) {
	out := make(map[string]domain.AnalystTarget, len(symbols))
	for _, symbol := range symbols {
		var t domain.AnalystTarget
		err := r.db.QueryRowContext(ctx,
			"SELECT symbol, target_price FROM analyst_targets WHERE symbol = ?",
			normalizeSymbol(symbol)).Scan(&t.Symbol, &t.TargetPrice)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query analyst target for %s: %w", symbol, err)
		}
		out[symbol] = t
	}
	return out, nil
}

// SaveSentiment upserts a sentiment reading.
func (r *Repository) SaveSentiment(ctx context.Context, snap domain.SentimentSnapshot) error {
	updatedAt := snap.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sentiment (symbol, score, trend, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(symbol) DO UPDATE SET
			score = excluded.score, trend = excluded.trend, updated_at = excluded.updated_at`,
		normalizeSymbol(snap.Symbol), snap.Score, snap.Trend, updatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save sentiment: %w", err)
	}
	return nil
}

// Sentiment returns stored sentiment per symbol. Rows without a trend get
// one derived from the recent price series.
func (r *Repository) Sentiment(ctx context.Context, symbols []string) (map[string]domain.SentimentSnapshot, error) {
	out := make(map[string]domain.SentimentSnapshot, len(symbols))
	for _, symbol := range symbols {
		var snap domain.SentimentSnapshot
		var updatedAt int64
		err := r.db.QueryRowContext(ctx,
			"SELECT symbol, score, trend, updated_at FROM sentiment WHERE symbol = ?",
			normalizeSymbol(symbol)).Scan(&snap.Symbol, &snap.Score, &snap.Trend, &updatedAt)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query sentiment for %s: %w", symbol, err)
		}
		snap.UpdatedAt = time.Unix(updatedAt, 0)

		if snap.Trend == "" {
			trend, err := r.priceTrend(ctx, symbol)
			if err != nil {
				r.log.Warn().Str("symbol", symbol).Err(err).Msg("Failed to derive price trend")
			} else {
				snap.Trend = trend
			}
		}
		out[symbol] = snap
	}
	return out, nil
}

// priceTrend classifies a symbol's recent price action from stored closes.
func (r *Repository) priceTrend(ctx context.Context, symbol string) (string, error) {
	points, err := r.priceHistoryOne(ctx, normalizeSymbol(symbol), trendLookbackDays)
	if err != nil {
		return "", err
	}
	closes := make([]float64, len(points))
	for i, p := range points {
		closes[i] = p.Close
	}
	return ClassifyTrend(closes), nil
}

// SavePortfolio replaces the stored portfolio state with the snapshot.
func (r *Repository) SavePortfolio(ctx context.Context, snapshot domain.PortfolioSnapshot) error {
	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		now := time.Now().Unix()
		if _, err := tx.ExecContext(ctx, "DELETE FROM positions"); err != nil {
			return err
		}
		for _, pos := range snapshot.Positions {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO positions (symbol, shares, cost_basis, current_price, updated_at) VALUES (?, ?, ?, ?, ?)",
				normalizeSymbol(pos.Symbol), pos.Shares, pos.CostBasis, pos.CurrentPrice, now); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO portfolio_cash (id, cash, updated_at) VALUES (1, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET cash = excluded.cash, updated_at = excluded.updated_at`,
			snapshot.Cash, now)
		return err
	})
}

// PortfolioSnapshot loads the stored positions and cash balance.
func (r *Repository) PortfolioSnapshot(ctx context.Context) (domain.PortfolioSnapshot, error) {
	snapshot := domain.PortfolioSnapshot{TakenAt: time.Now()}

	rows, err := r.db.QueryContext(ctx,
		"SELECT symbol, shares, cost_basis, current_price, updated_at FROM positions ORDER BY symbol")
	if err != nil {
		return snapshot, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var newest int64
	for rows.Next() {
		var pos domain.Position
		var updatedAt int64
		if err := rows.Scan(&pos.Symbol, &pos.Shares, &pos.CostBasis, &pos.CurrentPrice, &updatedAt); err != nil {
			return snapshot, fmt.Errorf("failed to scan position: %w", err)
		}
		if updatedAt > newest {
			newest = updatedAt
		}
		snapshot.Positions = append(snapshot.Positions, pos)
	}
	if err := rows.Err(); err != nil {
		return snapshot, err
	}

	err = r.db.QueryRowContext(ctx, "SELECT cash FROM portfolio_cash WHERE id = 1").Scan(&snapshot.Cash)
	if err != nil && err != sql.ErrNoRows {
		return snapshot, fmt.Errorf("failed to query cash balance: %w", err)
	}
	if newest > 0 {
		snapshot.TakenAt = time.Unix(newest, 0)
	}
	return snapshot, nil
}

// SaveRun persists a completed optimization run as a JSON document.
func (r *Repository) SaveRun(ctx context.Context, record *optimization.RunRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode run record: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO optimization_runs (run_id, created_at, record) VALUES (?, ?, ?)",
		record.RunID, record.Timestamp.Unix(), string(payload))
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", record.RunID, err)
	}
	return nil
}

// LatestRun returns the most recent persisted run, or nil when none exist.
func (r *Repository) LatestRun(ctx context.Context) (*optimization.RunRecord, error) {
	var payload string
	err := r.db.QueryRowContext(ctx,
		"SELECT record FROM optimization_runs ORDER BY created_at DESC, run_id DESC LIMIT 1").Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}
	var record optimization.RunRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, fmt.Errorf("failed to decode run record: %w", err)
	}
	return &record, nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
