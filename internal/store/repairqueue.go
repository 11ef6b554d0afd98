package store

import (
	"context"
	"fmt"
	"time"
)

// RepairEntry is one queued missing-window repair.
type RepairEntry struct {
	ID            int64   `db:"id" json:"id"`
	Ticker        string  `db:"ticker" json:"ticker"`
	TF            string  `db:"tf" json:"tf"`
	WindowStartTs int64   `db:"window_start_ts" json:"window_start_ts"`
	WindowEndTs   int64   `db:"window_end_ts" json:"window_end_ts"`
	ExpectedBars  int     `db:"expected_bars" json:"expected_bars"`
	Note          *string `db:"note" json:"note,omitempty"`
	Status        string  `db:"status" json:"status"`
	Attempts      int     `db:"attempts" json:"attempts"`
	LastError     *string `db:"last_error" json:"last_error,omitempty"`
}

// EnqueueRepair records a missing window, deduplicated on the four-tuple.
// queued/running rows absorb updated expected_bars and note; done rows stay
// untouched for audit and are never re-queued.
func (s *Store) EnqueueRepair(ctx context.Context, ticker, tf string, windowStartTs, windowEndTs int64, expectedBars int, note string) (bool, error) {
	const q = `
INSERT INTO candle_repair_queue (ticker, tf, window_start_ts, window_end_ts, expected_bars, note, status)
VALUES ($1, $2, $3, $4, $5, $6, 'queued')
ON CONFLICT (ticker, tf, window_start_ts, window_end_ts) DO UPDATE SET
  expected_bars = EXCLUDED.expected_bars,
  note = EXCLUDED.note,
  updated_at = now()
WHERE candle_repair_queue.status IN ('queued', 'running')
RETURNING id`
	var id int64
	err := s.conn.QueryRowCtx(ctx, &id, q, ticker, tf, windowStartTs, windowEndTs, expectedBars, note)
	if err != nil {
		if notFound(err) {
			// Row exists in done/error state; left alone.
			return false, nil
		}
		return false, fmt.Errorf("store: enqueue repair: %w", err)
	}
	return true, nil
}

// ReenqueueErrored moves up to limit errored rows last updated before the
// cutoff back to queued, oldest first, clearing last_error and keeping the
// attempts counter. The errored row itself is reused: no new row is created,
// so the error state of that window is not kept as separate history.
func (s *Store) ReenqueueErrored(ctx context.Context, before time.Time, limit int) (int, error) {
	const q = `
UPDATE candle_repair_queue
SET status = 'queued', last_error = NULL, updated_at = now()
WHERE id IN (
  SELECT id FROM candle_repair_queue
  WHERE status = 'error' AND updated_at < $1
  ORDER BY updated_at ASC
  LIMIT $2
)`
	res, err := s.conn.ExecCtx(ctx, q, before, limit)
	if err != nil {
		return 0, fmt.Errorf("store: reenqueue errored: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ClaimRepairBatch atomically moves up to limit queued rows to running in
// creation order and returns them. SKIP LOCKED isolates concurrent workers.
func (s *Store) ClaimRepairBatch(ctx context.Context, limit int) ([]RepairEntry, error) {
	const q = `
WITH claimed AS (
  SELECT id FROM candle_repair_queue
  WHERE status = 'queued'
  ORDER BY created_at ASC
  LIMIT $1
  FOR UPDATE SKIP LOCKED
)
UPDATE candle_repair_queue r
SET status = 'running', attempts = r.attempts + 1, updated_at = now()
FROM claimed
WHERE r.id = claimed.id
RETURNING r.id, r.ticker, r.tf, r.window_start_ts, r.window_end_ts,
          r.expected_bars, r.note, r.status, r.attempts, r.last_error`
	var rows []RepairEntry
	if err := s.conn.QueryRowsCtx(ctx, &rows, q, limit); err != nil {
		return nil, fmt.Errorf("store: claim repair batch: %w", err)
	}
	return rows, nil
}

// MarkRepairDone finishes a repair and writes its audit row.
func (s *Store) MarkRepairDone(ctx context.Context, entry RepairEntry, missingFilled int, note string) error {
	const done = `
UPDATE candle_repair_queue
SET status = 'done', last_error = NULL, updated_at = now()
WHERE id = $1`
	if _, err := s.conn.ExecCtx(ctx, done, entry.ID); err != nil {
		return fmt.Errorf("store: mark repair done: %w", err)
	}
	const audit = `
INSERT INTO candle_repairs (ticker, tf, window_start_ts, window_end_ts, missing_count, note)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.conn.ExecCtx(ctx, audit, entry.Ticker, entry.TF,
		entry.WindowStartTs, entry.WindowEndTs, missingFilled, note); err != nil {
		return fmt.Errorf("store: repair audit: %w", err)
	}
	return nil
}

// MarkRepairError records a failed repair with a truncated message.
func (s *Store) MarkRepairError(ctx context.Context, id int64, errMsg string) error {
	if len(errMsg) > 800 {
		errMsg = errMsg[:800]
	}
	const q = `
UPDATE candle_repair_queue
SET status = 'error', last_error = $2, updated_at = now()
WHERE id = $1`
	if _, err := s.conn.ExecCtx(ctx, q, id, errMsg); err != nil {
		return fmt.Errorf("store: mark repair error: %w", err)
	}
	return nil
}

// RepairQueueDepth counts rows per status.
func (s *Store) RepairQueueDepth(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	const q = `SELECT status, count(*) AS n FROM candle_repair_queue GROUP BY status`
	if err := s.conn.QueryRowsCtx(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("store: repair queue depth: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
