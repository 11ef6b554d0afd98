// Package candles runs the scheduled sharded candle backfill: claim the
// shard lease, walk a cursor-selected batch of tickers, page OHLCV history
// into the warehouse, then advance the cursor.
package candles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"vietmarket-api/internal/store"
	"vietmarket-api/pkg/shard"
	"vietmarket-api/pkg/vnsource"
)

// Config is the per-run worker configuration. CLI flags override env which
// overrides defaults; by the time a Config reaches the worker it is final.
type Config struct {
	JobName    string
	NodeID     string
	ShardCount int
	ShardIndex int
	BatchSize  int

	TFs     []string
	StartMs map[string]int64 // lower backfill bound per tf
	Chunk   int              // bars per API page
	SleepMs int              // pause between pages
	DryRun  bool

	IncludeIndices bool
	UniverseFile   string // empty → universe from warehouse symbols

	RunTimeout   time.Duration
	StaleMinutes int
	LeaseMs      int64
	CursorDir    string
}

// Summary is the structured run result every exit path reports.
type Summary struct {
	Skipped         string `json:"skipped,omitempty"`
	TickersDone     int    `json:"tickers_done"`
	RowsUpserted    int    `json:"rows_upserted"`
	Errors          int    `json:"errors"`
	FrontierReached int    `json:"frontier_reached"`
	TimedOut        bool   `json:"timed_out,omitempty"`
}

// Worker binds the warehouse, the candle source, and the cursor store.
type Worker struct {
	cfg     Config
	store   *store.Store
	vci     *vnsource.VCIClient
	cursors *shard.CursorStore
}

// New builds a worker.
func New(cfg Config, st *store.Store, vci *vnsource.VCIClient) *Worker {
	return &Worker{cfg: cfg, store: st, vci: vci, cursors: shard.NewCursorStore(cfg.CursorDir)}
}

// frontierStalls is how many consecutive pages may fail to advance the
// newest timestamp before a (ticker, tf) window is declared exhausted.
const frontierStalls = 2

// Run executes one shard run. A denied claim or unreachable coordinator is a
// clean skip, not an error: the scheduler retries on the next tick.
func (w *Worker) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	universe, err := w.loadUniverse(ctx)
	if err != nil {
		return sum, err
	}
	mine := shard.Filter(universe, w.cfg.ShardCount, w.cfg.ShardIndex)
	if len(mine) == 0 {
		sum.Skipped = "empty_shard"
		return sum, nil
	}

	claim, err := w.store.TryClaim(ctx, w.cfg.JobName, w.cfg.ShardIndex, w.cfg.NodeID,
		w.cfg.LeaseMs, w.cfg.StaleMinutes, nil)
	if err != nil {
		if errors.Is(err, store.ErrCoordinationUnavailable) {
			logx.WithContext(ctx).Errorf("candles: lease store unreachable, skipping: %v", err)
			sum.Skipped = "lease_error"
			return sum, nil
		}
		return sum, err
	}
	if !claim.OK {
		logx.WithContext(ctx).Infof("candles: shard %d held by %s until %d, skipping",
			w.cfg.ShardIndex, claim.OwnerID, claim.LeaseUntilMs)
		sum.Skipped = "not_owner"
		return sum, nil
	}

	cursor, err := w.cursors.Load(w.cfg.JobName, w.cfg.ShardIndex)
	if err != nil {
		return sum, err
	}
	batch, _ := shard.SelectBatch(mine, cursor.NextIndex, w.cfg.BatchSize)

	deadline := time.Now().Add(w.cfg.RunTimeout)
	leaseDeadline := time.UnixMilli(claim.LeaseUntilMs)

	completed := 0
	for _, ticker := range batch {
		if w.cfg.RunTimeout > 0 && time.Until(deadline) < w.perTickerBudget() {
			// Stop cleanly between tickers; the cursor covers what finished.
			sum.TimedOut = true
			break
		}
		if time.Until(leaseDeadline) < leaseRenewFraction(w.cfg.LeaseMs) {
			if err := w.store.RenewLease(ctx, w.cfg.JobName, w.cfg.ShardIndex, w.cfg.NodeID, w.cfg.LeaseMs); err != nil {
				if errors.Is(err, store.ErrNotOwner) {
					logx.WithContext(ctx).Errorf("candles: lost lease on shard %d, abandoning", w.cfg.ShardIndex)
					sum.Skipped = "lease_lost"
					return sum, nil
				}
				sum.Skipped = "lease_error"
				return sum, nil
			}
			leaseDeadline = time.Now().Add(time.Duration(w.cfg.LeaseMs) * time.Millisecond)
		}

		if err := w.ingestTicker(ctx, ticker, &sum); err != nil {
			if errors.Is(err, store.ErrNotOwner) {
				sum.Skipped = "lease_lost"
				return sum, nil
			}
			// One bad ticker must not block shard progress.
			logx.WithContext(ctx).Errorf("candles: %s: %v", ticker, err)
			sum.Errors++
		}
		completed++
		sum.TickersDone = completed
	}

	// The cursor only moves past committed work.
	if completed > 0 && !w.cfg.DryRun {
		next := (cursor.NextIndex + completed) % len(mine)
		err := w.cursors.Save(w.cfg.JobName, w.cfg.ShardIndex, shard.Cursor{
			NextIndex:     next,
			LastBatch:     batch[:completed],
			BatchSize:     w.cfg.BatchSize,
			UniverseCount: len(mine),
		})
		if err != nil {
			return sum, err
		}
	}
	return sum, nil
}

func (w *Worker) loadUniverse(ctx context.Context) ([]string, error) {
	var tickers []string
	var err error
	if w.cfg.UniverseFile != "" {
		tickers, err = shard.LoadUniverseFile(w.cfg.UniverseFile)
	} else {
		tickers, err = w.store.UniverseTickers(ctx, "")
		tickers = shard.Normalize(tickers)
	}
	if err != nil {
		return nil, fmt.Errorf("candles: load universe: %w", err)
	}
	if w.cfg.IncludeIndices {
		tickers = shard.WithIndices(tickers)
	}
	return tickers, nil
}

// ingestTicker pages every configured tf for one ticker up to now.
func (w *Worker) ingestTicker(ctx context.Context, ticker string, sum *Summary) error {
	for _, tf := range w.cfg.TFs {
		if err := w.ingestRange(ctx, ticker, tf, sum); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) ingestRange(ctx context.Context, ticker, tf string, sum *Summary) error {
	step, ok := vnsource.StepMs[tf]
	if !ok {
		return fmt.Errorf("candles: unsupported tf %q", tf)
	}

	from := w.cfg.StartMs[tf]
	// Resume from the warehouse frontier instead of re-paging history.
	if latest, err := w.store.LatestTs(ctx, ticker, tf); err == nil && latest+step > from {
		from = latest + step
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	now := time.Now().UnixMilli()
	chunkSpan := int64(w.cfg.Chunk) * step
	stalls := 0
	var newestSeen int64

	for from <= now {
		to := from + chunkSpan - 1
		if to > now {
			to = now
		}
		bars, err := w.vci.FetchCandles(ctx, ticker, tf, from, to, w.cfg.Chunk)
		if err != nil {
			return err
		}

		if len(bars) > 0 && !w.cfg.DryRun {
			rows := make([]store.Candle, 0, len(bars))
			src := "vci"
			for _, b := range bars {
				rows = append(rows, store.Candle{
					Ticker: ticker, TF: tf, Ts: b.Ts,
					O: b.O, H: b.H, L: b.L, C: b.C, V: b.V, Source: &src,
				})
			}
			n, err := w.store.UpsertCandles(ctx, rows)
			if err != nil {
				return err
			}
			sum.RowsUpserted += n
		}

		if err := w.store.ReportProgress(ctx, w.cfg.JobName, w.cfg.ShardIndex, w.cfg.NodeID, nil); err != nil {
			return err
		}

		// Frontier detection: when short pages stop advancing the newest
		// timestamp, there is nothing more to fetch for this window.
		pageNewest := int64(0)
		if len(bars) > 0 {
			pageNewest = bars[len(bars)-1].Ts
		}
		if pageNewest <= newestSeen && len(bars) < w.cfg.Chunk {
			stalls++
			if stalls >= frontierStalls {
				sum.FrontierReached++
				return nil
			}
		} else {
			stalls = 0
		}
		if pageNewest > newestSeen {
			newestSeen = pageNewest
		}

		from = to + 1
		if w.cfg.SleepMs > 0 {
			select {
			case <-time.After(time.Duration(w.cfg.SleepMs) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// perTickerBudget estimates wall time one ticker needs, for the clean-stop
// check.
func (w *Worker) perTickerBudget() time.Duration {
	pages := 4 * len(w.cfg.TFs)
	if pages < 1 {
		pages = 1
	}
	return time.Duration(pages) * (time.Duration(w.cfg.SleepMs)*time.Millisecond + 2*time.Second)
}

func leaseRenewFraction(leaseMs int64) time.Duration {
	return time.Duration(leaseMs/3) * time.Millisecond
}

// ParseTFs validates and splits a comma list of timeframes.
func ParseTFs(raw string) ([]string, error) {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, ok := vnsource.StepMs[p]; !ok {
			return nil, fmt.Errorf("candles: unsupported tf %q", p)
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("candles: no timeframes configured")
	}
	return out, nil
}
