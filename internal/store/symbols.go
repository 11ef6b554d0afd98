package store

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// Symbol is one universe entry. Rows are created on first sighting from any
// source and never deleted while referenced.
type Symbol struct {
	Ticker    string  `db:"ticker" json:"ticker"`
	Name      *string `db:"name" json:"name,omitempty"`
	Exchange  *string `db:"exchange" json:"exchange,omitempty"`
	Active    *bool   `db:"active" json:"active,omitempty"`
	UpdatedAt *int64  `db:"updated_at" json:"updated_at,omitempty"`
}

// UpsertSymbols merges symbol metadata: non-null incoming fields win,
// updated_at only moves forward.
func (s *Store) UpsertSymbols(ctx context.Context, rows []Symbol) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	const q = `
INSERT INTO symbols (ticker, name, exchange, active, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (ticker) DO UPDATE SET
  name = COALESCE(EXCLUDED.name, symbols.name),
  exchange = COALESCE(EXCLUDED.exchange, symbols.exchange),
  active = COALESCE(EXCLUDED.active, symbols.active),
  updated_at = GREATEST(COALESCE(symbols.updated_at, 0), COALESCE(EXCLUDED.updated_at, 0))`
	err := s.conn.TransactCtx(ctx, func(ctx context.Context, session sqlx.Session) error {
		for _, r := range rows {
			if _, err := session.ExecCtx(ctx, q, r.Ticker, r.Name, r.Exchange, r.Active, r.UpdatedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: upsert symbols: %w", err)
	}
	return len(rows), nil
}

// EnsureSymbols inserts bare ticker rows when missing, so foreign keys from
// article_symbols always resolve.
func (s *Store) EnsureSymbols(ctx context.Context, tickers []string) error {
	const q = `INSERT INTO symbols (ticker) VALUES ($1) ON CONFLICT (ticker) DO NOTHING`
	for _, t := range tickers {
		if _, err := s.conn.ExecCtx(ctx, q, t); err != nil {
			return fmt.Errorf("store: ensure symbol %s: %w", t, err)
		}
	}
	return nil
}

// UniverseTickers loads the ticker universe from the symbols table. An
// optional extra WHERE clause narrows the set; it must be a trusted,
// configuration-supplied fragment, never user input.
func (s *Store) UniverseTickers(ctx context.Context, filterClause string) ([]string, error) {
	q := `SELECT ticker FROM symbols WHERE coalesce(active, true) = true`
	if filterClause != "" {
		q += " AND (" + filterClause + ")"
	}
	q += " ORDER BY ticker"
	var out []string
	if err := s.conn.QueryRowsCtx(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("store: universe tickers: %w", err)
	}
	return out, nil
}

// KnownTickers returns every ticker in the symbols table, for the linker.
func (s *Store) KnownTickers(ctx context.Context) ([]string, error) {
	var out []string
	if err := s.conn.QueryRowsCtx(ctx, &out, `SELECT ticker FROM symbols ORDER BY ticker`); err != nil {
		return nil, fmt.Errorf("store: known tickers: %w", err)
	}
	return out, nil
}
