// Package fi orchestrates the fundamentals ingest run: fetch blocks, detect
// change by stable hash, persist raw + normalized forms, and load the
// warehouse.
package fi

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"vietmarket-api/internal/store"
	fipkg "vietmarket-api/pkg/fi"
)

// Config is one run's scope.
type Config struct {
	Tickers    []string
	Period     string // Q or Y
	OutDir     string
	TimeBudget time.Duration
	DryRun     bool
}

// Summary is the structured run result.
type Summary struct {
	Tickers      int  `json:"tickers"`
	Changed      int  `json:"changed"`
	Unchanged    int  `json:"unchanged"`
	Errors       int  `json:"errors"`
	PointsLoaded int  `json:"points_loaded"`
	Published    int  `json:"published"`
	Fallbacks    int  `json:"fallbacks"`
	TimedOut     bool `json:"timed_out,omitempty"`
}

// Worker binds the block client, the file layout, and the warehouse.
type Worker struct {
	cfg    Config
	client *fipkg.Client
	files  *fipkg.Files
	store  *store.Store // nil in file-only runs
}

// New builds a worker. st may be nil to run file-only (dry warehouse).
func New(cfg Config, client *fipkg.Client, st *store.Store) *Worker {
	return &Worker{cfg: cfg, client: client, files: fipkg.NewFiles(cfg.OutDir), store: st}
}

// Run processes every configured ticker, then refreshes fi_latest and the
// publish aggregate.
func (w *Worker) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	state, err := w.files.LoadState()
	if err != nil {
		return sum, err
	}

	deadline := time.Time{}
	if w.cfg.TimeBudget > 0 {
		deadline = time.Now().Add(w.cfg.TimeBudget)
	}

	for _, ticker := range w.cfg.Tickers {
		if !deadline.IsZero() && time.Now().After(deadline) {
			sum.TimedOut = true
			break
		}
		sum.Tickers++
		if err := w.processTicker(ctx, ticker, state, &sum); err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			logx.WithContext(ctx).Errorf("fi: %s %s: %v", ticker, w.cfg.Period, err)
			sum.Errors++
		}
	}

	// State is saved even on partial runs; hashes only exist for pairs whose
	// points committed.
	if err := w.files.SaveState(state); err != nil {
		return sum, err
	}

	if w.store != nil && !w.cfg.DryRun {
		if _, err := w.store.SyncFiLatest(ctx, w.cfg.Period); err != nil {
			return sum, err
		}
	}

	published, err := w.files.Publish()
	if err != nil {
		return sum, err
	}
	sum.Published = published
	return sum, nil
}

func (w *Worker) processTicker(ctx context.Context, ticker string, state *fipkg.State, sum *Summary) error {
	block, err := w.client.FetchBlock(ctx, ticker, w.cfg.Period)
	if err != nil {
		return err
	}
	if block.FallbackApplied {
		sum.Fallbacks++
	}

	hash, err := block.Hash()
	if err != nil {
		return err
	}

	if err := w.files.WriteRawLatest(block); err != nil {
		return err
	}

	key := fipkg.PairKey(block.Ticker, block.Period)
	if state.Hashes[key] == hash {
		sum.Unchanged++
		return nil
	}

	now := time.Now().UTC()
	if err := w.files.WriteSnapshot(block, now); err != nil {
		return err
	}
	points := fipkg.NormalizeBlock(block, now)
	if err := w.files.AppendNDJSON(block.Ticker, block.Period, points); err != nil {
		return err
	}

	if w.store != nil && !w.cfg.DryRun {
		rows := make([]store.FiPoint, 0, len(points))
		for _, p := range points {
			fetchedAt := now
			var name *string
			if p.PeriodDateName != "" {
				n := p.PeriodDateName
				name = &n
			}
			rows = append(rows, store.FiPoint{
				Ticker: p.Ticker, Period: p.Period, Statement: p.Statement,
				PeriodDate: p.PeriodDate, PeriodDateName: name,
				Metric: p.Metric, Value: p.Value, FetchedAt: &fetchedAt,
			})
		}
		n, err := w.store.UpsertFiPoints(ctx, rows)
		if err != nil {
			// The hash is not recorded, so the next run retries this pair.
			return err
		}
		sum.PointsLoaded += n
	}

	state.Hashes[key] = hash
	sum.Changed++
	return nil
}
