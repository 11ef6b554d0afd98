package store

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// FiPoint is one normalized fundamental metric observation.
type FiPoint struct {
	Ticker         string     `db:"ticker" json:"ticker"`
	Period         string     `db:"period" json:"period"`
	Statement      string     `db:"statement" json:"statement"`
	PeriodDate     string     `db:"period_date" json:"period_date"`
	PeriodDateName *string    `db:"period_date_name" json:"period_date_name,omitempty"`
	Metric         string     `db:"metric" json:"metric"`
	Value          *float64   `db:"value" json:"value"`
	FetchedAt      *time.Time `db:"fetched_at" json:"fetched_at,omitempty"`
}

// FiLatestRow is the latest-by-metric projection served by the API.
type FiLatestRow struct {
	Ticker     string     `db:"ticker" json:"ticker"`
	Period     string     `db:"period" json:"period"`
	Statement  string     `db:"statement" json:"statement"`
	PeriodDate *string    `db:"period_date" json:"period_date,omitempty"`
	Metric     string     `db:"metric" json:"metric"`
	Value      *float64   `db:"value" json:"value"`
	FetchedAt  *time.Time `db:"fetched_at" json:"fetched_at,omitempty"`
}

// UpsertFiPoints appends historical fundamental points. The pk is preserved;
// value, period_date_name and fetched_at are replaced on conflict.
func (s *Store) UpsertFiPoints(ctx context.Context, rows []FiPoint) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	const q = `
INSERT INTO fi_points (ticker, period, statement, period_date, period_date_name, metric, value, fetched_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (ticker, period, statement, period_date, metric) DO UPDATE SET
  value = EXCLUDED.value,
  period_date_name = COALESCE(EXCLUDED.period_date_name, fi_points.period_date_name),
  fetched_at = COALESCE(EXCLUDED.fetched_at, fi_points.fetched_at)`
	err := s.conn.TransactCtx(ctx, func(ctx context.Context, session sqlx.Session) error {
		for _, r := range rows {
			if _, err := session.ExecCtx(ctx, q, r.Ticker, r.Period, r.Statement,
				r.PeriodDate, r.PeriodDateName, r.Metric, r.Value, r.FetchedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: upsert fi points: %w", err)
	}
	return len(rows), nil
}

// SyncFiLatest refreshes fi_latest for one period from fi_points, keeping the
// newest period_date per (ticker, statement, metric). Runs as one statement,
// so readers never observe a partial refresh.
func (s *Store) SyncFiLatest(ctx context.Context, period string) (int, error) {
	const q = `
INSERT INTO fi_latest (ticker, period, statement, period_date, metric, value, fetched_at, ingested_at)
SELECT f.ticker, f.period, f.statement, f.period_date, f.metric, f.value, f.fetched_at, now()
FROM fi_points f
JOIN (
  SELECT ticker, period, statement, metric, MAX(period_date) AS max_period_date
  FROM fi_points
  WHERE period = $1
  GROUP BY ticker, period, statement, metric
) x ON f.ticker = x.ticker
   AND f.period = x.period
   AND f.statement = x.statement
   AND f.metric = x.metric
   AND f.period_date = x.max_period_date
ON CONFLICT (ticker, period, statement, metric) DO UPDATE SET
  period_date = EXCLUDED.period_date,
  value = EXCLUDED.value,
  fetched_at = COALESCE(EXCLUDED.fetched_at, fi_latest.fetched_at),
  ingested_at = now()`
	res, err := s.conn.ExecCtx(ctx, q, period)
	if err != nil {
		return 0, fmt.Errorf("store: sync fi_latest: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ReplaceFiLatest is the full-refresh path: inside one transaction the
// period's rows are deleted and the provided set inserted.
func (s *Store) ReplaceFiLatest(ctx context.Context, period string, rows []FiLatestRow) error {
	err := s.conn.TransactCtx(ctx, func(ctx context.Context, session sqlx.Session) error {
		if _, err := session.ExecCtx(ctx, `DELETE FROM fi_latest WHERE period = $1`, period); err != nil {
			return err
		}
		const ins = `
INSERT INTO fi_latest (ticker, period, statement, period_date, metric, value, fetched_at, ingested_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())`
		for _, r := range rows {
			if _, err := session.ExecCtx(ctx, ins, r.Ticker, r.Period, r.Statement,
				r.PeriodDate, r.Metric, r.Value, r.FetchedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: replace fi_latest: %w", err)
	}
	return nil
}

// FundamentalsLatest reads fi_latest for one ticker/period, optionally one
// statement.
func (s *Store) FundamentalsLatest(ctx context.Context, ticker, period, statement string, limit int) ([]FiLatestRow, error) {
	q := `
SELECT ticker, period, statement, period_date::text AS period_date, metric, value, fetched_at
FROM fi_latest
WHERE ticker = $1 AND period = $2`
	args := []any{ticker, period}
	if statement != "" {
		args = append(args, statement)
		q += fmt.Sprintf(" AND statement = $%d", len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY statement, metric LIMIT $%d", len(args))

	var rows []FiLatestRow
	if err := s.conn.QueryRowsCtx(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("store: fundamentals latest: %w", err)
	}
	return rows, nil
}

// ScreenerQuery filters fi_latest by metric value bounds.
type ScreenerQuery struct {
	Metric    string
	Period    string
	Statement string
	Min       *float64
	Max       *float64
	Limit     int
}

// Screener ranks tickers on one metric, value DESC NULLS LAST.
func (s *Store) Screener(ctx context.Context, sq ScreenerQuery) ([]FiLatestRow, error) {
	q := `
SELECT ticker, period, statement, period_date::text AS period_date, metric, value, fetched_at
FROM fi_latest
WHERE metric = $1 AND period = $2`
	args := []any{sq.Metric, sq.Period}
	if sq.Statement != "" {
		args = append(args, sq.Statement)
		q += fmt.Sprintf(" AND statement = $%d", len(args))
	}
	if sq.Min != nil {
		args = append(args, *sq.Min)
		q += fmt.Sprintf(" AND value >= $%d", len(args))
	}
	if sq.Max != nil {
		args = append(args, *sq.Max)
		q += fmt.Sprintf(" AND value <= $%d", len(args))
	}
	args = append(args, sq.Limit)
	q += fmt.Sprintf(" ORDER BY value DESC NULLS LAST, ticker ASC LIMIT $%d", len(args))

	var rows []FiLatestRow
	if err := s.conn.QueryRowsCtx(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("store: screener: %w", err)
	}
	return rows, nil
}
