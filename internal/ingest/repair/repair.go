// Package repair scans for missing candle windows and drains the repair
// queue.
package repair

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"vietmarket-api/internal/store"
	"vietmarket-api/pkg/ingest/gaps"
	"vietmarket-api/pkg/vnsource"
)

// ScanConfig bounds one gap-scan run.
type ScanConfig struct {
	TF           string
	LookbackDays int
	LimitTickers int
}

// ScanSummary reports one gap-scan run.
type ScanSummary struct {
	TF       string `json:"tf"`
	Tickers  int    `json:"tickers"`
	Enqueued int    `json:"enqueued"`
}

// Scan walks recent candles per ticker and enqueues a repair window per
// detected hole.
func Scan(ctx context.Context, st *store.Store, cfg ScanConfig) (ScanSummary, error) {
	sum := ScanSummary{TF: cfg.TF}
	step, ok := vnsource.StepMs[cfg.TF]
	if !ok {
		return sum, fmt.Errorf("repair: unsupported tf %q", cfg.TF)
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 30
	}
	if cfg.LimitTickers <= 0 {
		cfg.LimitTickers = 200
	}

	tickers, err := st.DistinctCandleTickers(ctx, cfg.TF, cfg.LimitTickers)
	if err != nil {
		return sum, err
	}
	sum.Tickers = len(tickers)

	now := time.Now().UnixMilli()
	from := now - int64(cfg.LookbackDays)*24*60*60*1000

	for _, ticker := range tickers {
		ts, err := st.CandleTimestamps(ctx, ticker, cfg.TF, from, now)
		if err != nil {
			return sum, err
		}
		for _, gap := range gaps.FindGaps(ts, step) {
			expected, err := gaps.ExpectedBars(cfg.TF, gap.StartMs, gap.EndMs)
			if err != nil {
				return sum, err
			}
			if expected <= 0 {
				// Weekend/holiday hole; nothing to repair.
				continue
			}
			note := gaps.Note(gap.StartMs-step, gap.EndMs+step, expected)
			created, err := st.EnqueueRepair(ctx, ticker, cfg.TF, gap.StartMs, gap.EndMs, expected, note)
			if err != nil {
				return sum, err
			}
			if created {
				sum.Enqueued++
			}
		}
	}
	return sum, nil
}

// WorkerConfig bounds one repair-drain run.
type WorkerConfig struct {
	Limit   int
	SleepMs int
	// PerRepairTimeout bounds each window's fetch+upsert.
	PerRepairTimeout time.Duration
}

// WorkerSummary reports one repair-drain run.
type WorkerSummary struct {
	Claimed   int `json:"claimed"`
	Repaired  int `json:"repaired"`
	Errored   int `json:"errored"`
	RowsAdded int `json:"rows_added"`
}

// Drain claims queued repairs in order and refetches each window.
func Drain(ctx context.Context, st *store.Store, vci *vnsource.VCIClient, cfg WorkerConfig) (WorkerSummary, error) {
	var sum WorkerSummary
	if cfg.Limit <= 0 {
		cfg.Limit = 5
	}
	if cfg.PerRepairTimeout <= 0 {
		cfg.PerRepairTimeout = 2 * time.Minute
	}

	batch, err := st.ClaimRepairBatch(ctx, cfg.Limit)
	if err != nil {
		return sum, err
	}
	sum.Claimed = len(batch)

	for _, entry := range batch {
		n, err := repairOne(ctx, st, vci, entry, cfg.PerRepairTimeout)
		if err != nil {
			logx.WithContext(ctx).Errorf("repair: %s %s [%d,%d]: %v",
				entry.Ticker, entry.TF, entry.WindowStartTs, entry.WindowEndTs, err)
			if markErr := st.MarkRepairError(ctx, entry.ID, err.Error()); markErr != nil {
				return sum, markErr
			}
			sum.Errored++
			continue
		}
		note := fmt.Sprintf("refetched window, upserted %d bars (expected %d)", n, entry.ExpectedBars)
		if err := st.MarkRepairDone(ctx, entry, n, note); err != nil {
			return sum, err
		}
		sum.Repaired++
		sum.RowsAdded += n

		if cfg.SleepMs > 0 {
			select {
			case <-time.After(time.Duration(cfg.SleepMs) * time.Millisecond):
			case <-ctx.Done():
				return sum, ctx.Err()
			}
		}
	}
	return sum, nil
}

func repairOne(ctx context.Context, st *store.Store, vci *vnsource.VCIClient, entry store.RepairEntry, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	step := vnsource.StepMs[entry.TF]
	// Fetch one step beyond both edges so boundary bars land too.
	bars, err := vci.FetchCandles(ctx, entry.Ticker, entry.TF,
		entry.WindowStartTs-step, entry.WindowEndTs+step, 0)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}

	src := "vci-repair"
	rows := make([]store.Candle, 0, len(bars))
	for _, b := range bars {
		rows = append(rows, store.Candle{
			Ticker: entry.Ticker, TF: entry.TF, Ts: b.Ts,
			O: b.O, H: b.H, L: b.L, C: b.C, V: b.V, Source: &src,
		})
	}
	return st.UpsertCandles(ctx, rows)
}
