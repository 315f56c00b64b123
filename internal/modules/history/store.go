// Package history persists daily closing prices and serves aligned
// return series to the engine.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantumvest/risk-engine/internal/database"
)

const dateLayout = "2006-01-02"

// Schema is the daily price table, keyed by symbol and trading day.
const Schema = `
CREATE TABLE IF NOT EXISTS daily_prices (
	symbol TEXT NOT NULL,
	date   TEXT NOT NULL,
	close  REAL NOT NULL,
	PRIMARY KEY (symbol, date)
);
CREATE INDEX IF NOT EXISTS idx_daily_prices_date ON daily_prices (date);
`

// PricePoint is one closing price on one trading day.
type PricePoint struct {
	Date  time.Time
	Close float64
}

// Store reads and writes daily prices.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStore applies the schema and returns a price store.
func NewStore(db *database.DB, log zerolog.Logger) (*Store, error) {
	if err := db.Migrate(Schema); err != nil {
		return nil, err
	}
	return &Store{db: db, log: log.With().Str("component", "history").Logger()}, nil
}

// SavePrices upserts a batch of prices for one symbol in a single
// transaction.
func (s *Store) SavePrices(ctx context.Context, symbol string, points []PricePoint) error {
	if symbol == "" {
		return fmt.Errorf("symbol required")
	}
	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin price batch for %s: %w", symbol, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_prices (symbol, date, close)
		VALUES (?, ?, ?)
		ON CONFLICT (symbol, date) DO UPDATE SET close = excluded.close`)
	if err != nil {
		return fmt.Errorf("failed to prepare price insert for %s: %w", symbol, err)
	}
	defer stmt.Close()

	for _, p := range points {
		if p.Close <= 0 {
			return fmt.Errorf("non-positive close %.4f for %s on %s", p.Close, symbol, p.Date.Format(dateLayout))
		}
		if _, err := stmt.ExecContext(ctx, symbol, p.Date.Format(dateLayout), p.Close); err != nil {
			return fmt.Errorf("failed to insert price for %s: %w", symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit price batch for %s: %w", symbol, err)
	}

	s.log.Debug().Str("symbol", symbol).Int("points", len(points)).Msg("Saved price batch")
	return nil
}

// PriceHistory returns the stored prices for symbol in [from, to],
// ordered by date. Zero time bounds are open.
func (s *Store) PriceHistory(ctx context.Context, symbol string, from, to time.Time) ([]PricePoint, error) {
	query := "SELECT date, close FROM daily_prices WHERE symbol = ?"
	args := []interface{}{symbol}
	if !from.IsZero() {
		query += " AND date >= ?"
		args = append(args, from.Format(dateLayout))
	}
	if !to.IsZero() {
		query += " AND date <= ?"
		args = append(args, to.Format(dateLayout))
	}
	query += " ORDER BY date"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices for %s: %w", symbol, err)
	}
	defer rows.Close()

	var points []PricePoint
	for rows.Next() {
		var dateStr string
		var point PricePoint
		if err := rows.Scan(&dateStr, &point.Close); err != nil {
			return nil, fmt.Errorf("failed to scan price row for %s: %w", symbol, err)
		}
		point.Date, err = time.Parse(dateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("malformed date %q for %s: %w", dateStr, symbol, err)
		}
		points = append(points, point)
	}
	return points, rows.Err()
}

// Symbols lists every symbol with at least one stored price.
func (s *Store) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT symbol FROM daily_prices ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, err
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}
