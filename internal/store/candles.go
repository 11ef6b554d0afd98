package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// Candle is one OHLCV bar. Ts is unix milliseconds aligned to the tf grid.
type Candle struct {
	Ticker     string   `db:"ticker" json:"ticker"`
	TF         string   `db:"tf" json:"tf"`
	Ts         int64    `db:"ts" json:"ts"`
	O          float64  `db:"o" json:"o"`
	H          float64  `db:"h" json:"h"`
	L          float64  `db:"l" json:"l"`
	C          float64  `db:"c" json:"c"`
	V          *float64 `db:"v" json:"v,omitempty"`
	Source     *string  `db:"source" json:"source,omitempty"`
	IngestedAt string   `db:"-" json:"ingested_at,omitempty"`
}

// TopMover is one row of the movers ranking.
type TopMover struct {
	Ticker      string   `db:"ticker" json:"ticker"`
	TF          string   `db:"tf" json:"tf"`
	TsLatest    int64    `db:"ts_latest" json:"ts_latest"`
	CloseLatest float64  `db:"close_latest" json:"close_latest"`
	ClosePrev   *float64 `db:"close_prev" json:"close_prev"`
	PctChange   *float64 `db:"pct_change" json:"pct_change"`
}

const upsertCandlesChunk = 500

// UpsertCandles batch-upserts bars keyed on (ticker, tf, ts) and maintains
// the candles_latest snapshot inside the same transaction. Re-running the
// same batch is a no-op apart from ingested_at.
func (s *Store) UpsertCandles(ctx context.Context, rows []Candle) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	// Newest bar per (ticker, tf) in this batch drives snapshot maintenance.
	newest := make(map[[2]string]Candle, 4)
	for _, r := range rows {
		key := [2]string{r.Ticker, r.TF}
		if cur, ok := newest[key]; !ok || r.Ts > cur.Ts {
			newest[key] = r
		}
	}

	err := s.conn.TransactCtx(ctx, func(ctx context.Context, session sqlx.Session) error {
		for start := 0; start < len(rows); start += upsertCandlesChunk {
			end := start + upsertCandlesChunk
			if end > len(rows) {
				end = len(rows)
			}
			if err := upsertCandleChunk(ctx, session, rows[start:end]); err != nil {
				return err
			}
		}
		for _, r := range newest {
			if err := upsertSnapshot(ctx, session, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: upsert candles: %w", err)
	}
	return len(rows), nil
}

func upsertCandleChunk(ctx context.Context, session sqlx.Session, rows []Candle) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO candles (ticker, tf, ts, o, h, l, c, v, source) VALUES `)
	args := make([]any, 0, len(rows)*9)
	for i, r := range rows {
		if i > 0 {
			sb.WriteByte(',')
		}
		base := i * 9
		fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9)
		args = append(args, r.Ticker, r.TF, r.Ts, r.O, r.H, r.L, r.C, r.V, r.Source)
	}
	sb.WriteString(`
ON CONFLICT (ticker, tf, ts) DO UPDATE SET
  o = EXCLUDED.o,
  h = EXCLUDED.h,
  l = EXCLUDED.l,
  c = EXCLUDED.c,
  v = EXCLUDED.v,
  source = COALESCE(EXCLUDED.source, candles.source),
  ingested_at = now()`)
	_, err := session.ExecCtx(ctx, sb.String(), args...)
	return err
}

// upsertSnapshot compare-then-writes candles_latest: the snapshot only moves
// forward, so out-of-order backfill batches never regress it.
func upsertSnapshot(ctx context.Context, session sqlx.Session, r Candle) error {
	const q = `
INSERT INTO candles_latest (ticker, tf, ts, o, h, l, c, v, source, ingested_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now())
ON CONFLICT (ticker, tf) DO UPDATE SET
  ts = EXCLUDED.ts,
  o = EXCLUDED.o,
  h = EXCLUDED.h,
  l = EXCLUDED.l,
  c = EXCLUDED.c,
  v = EXCLUDED.v,
  source = COALESCE(EXCLUDED.source, candles_latest.source),
  ingested_at = now()
WHERE EXCLUDED.ts >= candles_latest.ts`
	_, err := session.ExecCtx(ctx, q, r.Ticker, r.TF, r.Ts, r.O, r.H, r.L, r.C, r.V, r.Source)
	return err
}

type candleRow struct {
	Ticker     string    `db:"ticker"`
	TF         string    `db:"tf"`
	Ts         int64     `db:"ts"`
	O          float64   `db:"o"`
	H          float64   `db:"h"`
	L          float64   `db:"l"`
	C          float64   `db:"c"`
	V          *float64  `db:"v"`
	Source     *string   `db:"source"`
	IngestedAt time.Time `db:"ingested_at"`
}

// QueryCandles returns bars newest-first. beforeTs, when non-nil, is a strict
// upper bound so pages never overlap.
func (s *Store) QueryCandles(ctx context.Context, ticker, tf string, beforeTs *int64, limit int) ([]Candle, error) {
	q := `
SELECT ticker, tf, ts, o, h, l, c, v, source, ingested_at
FROM candles
WHERE ticker = $1 AND tf = $2`
	args := []any{ticker, tf}
	if beforeTs != nil {
		q += fmt.Sprintf(" AND ts < $%d", len(args)+1)
		args = append(args, *beforeTs)
	}
	q += fmt.Sprintf(" ORDER BY ts DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	var rows []candleRow
	if err := s.conn.QueryRowsCtx(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("store: query candles: %w", err)
	}
	return toCandles(rows), nil
}

// QueryLatest reads snapshot rows for one tf, most recent bars first.
func (s *Store) QueryLatest(ctx context.Context, tf string, limit int) ([]Candle, error) {
	const q = `
SELECT ticker, tf, ts, o, h, l, c, v, source, ingested_at
FROM candles_latest
WHERE tf = $1
ORDER BY ts DESC, ticker ASC
LIMIT $2`
	var rows []candleRow
	if err := s.conn.QueryRowsCtx(ctx, &rows, q, tf, limit); err != nil {
		return nil, fmt.Errorf("store: query latest: %w", err)
	}
	return toCandles(rows), nil
}

// QueryTopMovers joins each snapshot row with its previous bar and ranks by
// percent change, nulls last.
func (s *Store) QueryTopMovers(ctx context.Context, tf string, limit int) ([]TopMover, error) {
	const q = `
SELECT cl.ticker,
       cl.tf,
       cl.ts AS ts_latest,
       cl.c AS close_latest,
       prev.c AS close_prev,
       CASE WHEN prev.c IS NOT NULL AND prev.c != 0
            THEN (cl.c - prev.c) / prev.c
       END AS pct_change
FROM candles_latest cl
LEFT JOIN LATERAL (
  SELECT c FROM candles
  WHERE ticker = cl.ticker AND tf = cl.tf AND ts < cl.ts
  ORDER BY ts DESC
  LIMIT 1
) prev ON true
WHERE cl.tf = $1
ORDER BY pct_change DESC NULLS LAST, cl.ticker ASC
LIMIT $2`
	var rows []TopMover
	if err := s.conn.QueryRowsCtx(ctx, &rows, q, tf, limit); err != nil {
		return nil, fmt.Errorf("store: query top movers: %w", err)
	}
	return rows, nil
}

// LatestTs returns the newest candle timestamp for (ticker, tf), or
// ErrNotFound when no bar exists.
func (s *Store) LatestTs(ctx context.Context, ticker, tf string) (int64, error) {
	var ts int64
	err := s.conn.QueryRowCtx(ctx, &ts,
		`SELECT ts FROM candles_latest WHERE ticker = $1 AND tf = $2`, ticker, tf)
	if err != nil {
		if notFound(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("store: latest ts: %w", err)
	}
	return ts, nil
}

// CandleTimestamps returns ascending bar timestamps for (ticker, tf) within
// [fromTs, toTs]. The gap scanner walks these.
func (s *Store) CandleTimestamps(ctx context.Context, ticker, tf string, fromTs, toTs int64) ([]int64, error) {
	var out []int64
	const q = `
SELECT ts FROM candles
WHERE ticker = $1 AND tf = $2 AND ts >= $3 AND ts <= $4
ORDER BY ts ASC`
	if err := s.conn.QueryRowsCtx(ctx, &out, q, ticker, tf, fromTs, toTs); err != nil {
		return nil, fmt.Errorf("store: candle timestamps: %w", err)
	}
	return out, nil
}

// DistinctCandleTickers lists tickers present for a tf, bounded.
func (s *Store) DistinctCandleTickers(ctx context.Context, tf string, limit int) ([]string, error) {
	var out []string
	const q = `SELECT DISTINCT ticker FROM candles WHERE tf = $1 ORDER BY ticker LIMIT $2`
	if err := s.conn.QueryRowsCtx(ctx, &out, q, tf, limit); err != nil {
		return nil, fmt.Errorf("store: distinct tickers: %w", err)
	}
	return out, nil
}

func toCandles(rows []candleRow) []Candle {
	out := make([]Candle, 0, len(rows))
	for _, r := range rows {
		out = append(out, Candle{
			Ticker: r.Ticker, TF: r.TF, Ts: r.Ts,
			O: r.O, H: r.H, L: r.L, C: r.C, V: r.V, Source: r.Source,
			IngestedAt: r.IngestedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}
