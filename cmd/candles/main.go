package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vietmarket-api/internal/cli"
	ingest "vietmarket-api/internal/ingest/candles"
	"vietmarket-api/pkg/journal"
	"vietmarket-api/pkg/vnsource"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		job            = flag.String("job", "vn_candles", "lease job key and cursor file name")
		node           = flag.String("node", os.Getenv("NODE_ID"), "owner id used in leases")
		shards         = flag.Int("shards", 1, "total shard count")
		shardIndex     = flag.Int("shard", 0, "this worker's shard index")
		batch          = flag.Int("batch", 40, "tickers per run")
		tfs            = flag.String("tfs", "1d,1h,15m", "timeframes to cover")
		start1d        = flag.String("start-1d", "2000-01-01", "backfill lower bound for 1d")
		start1h        = flag.String("start-1h", "2020-01-01", "backfill lower bound for 1h")
		start15m       = flag.String("start-15m", "2023-01-01", "backfill lower bound for 15m")
		chunk          = flag.Int("chunk", 1000, "bars per API page")
		sleepMs        = flag.Int("sleep-ms", 150, "pause between pages")
		includeIndices = flag.Bool("include-indices", true, "append broad market indices to the universe")
		universeFile   = flag.String("universe", os.Getenv("UNIVERSE_FILE"), "universe JSON file (empty: warehouse symbols)")
		cursorDir      = flag.String("cursor-dir", envOr("CURSOR_DIR", "cursors"), "cursor file directory")
		budgetSec      = flag.Int("time-budget-sec", 1500, "hard wall-clock ceiling per run")
		staleMinutes   = flag.Int("stale-minutes", 30, "lease stale-takeover window")
		leaseMs        = flag.Int64("lease-ms", 300_000, "lease duration")
		sourcesFile    = flag.String("sources", "", "sources config file")
		journalDir     = flag.String("journal-dir", "journal", "run journal directory")
		dryRun         = flag.Bool("dry-run", false, "fetch but do not write")
	)
	flag.Parse()

	if *node == "" {
		host, _ := os.Hostname()
		*node = host
	}

	tfList, err := ingest.ParseTFs(*tfs)
	if err != nil {
		return cli.Fail(err)
	}
	startMs := map[string]int64{}
	for tf, raw := range map[string]string{"1d": *start1d, "1h": *start1h, "15m": *start15m} {
		ms, err := cli.ParseDateMs(raw)
		if err != nil {
			return cli.Fail(err)
		}
		startMs[tf] = ms
	}

	st, err := cli.Connect()
	if err != nil {
		return cli.Fail(err)
	}
	srcCfg, err := cli.LoadSources(*sourcesFile)
	if err != nil {
		return cli.Fail(err)
	}
	vci := vnsource.NewVCIClient(srcCfg, cli.SourceClient(srcCfg))

	cfg := ingest.Config{
		JobName:        *job,
		NodeID:         *node,
		ShardCount:     *shards,
		ShardIndex:     *shardIndex,
		BatchSize:      *batch,
		TFs:            tfList,
		StartMs:        startMs,
		Chunk:          *chunk,
		SleepMs:        *sleepMs,
		DryRun:         *dryRun,
		IncludeIndices: *includeIndices,
		UniverseFile:   *universeFile,
		RunTimeout:     time.Duration(*budgetSec) * time.Second,
		StaleMinutes:   *staleMinutes,
		LeaseMs:        *leaseMs,
		CursorDir:      *cursorDir,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	sum, err := ingest.New(cfg, st, vci).Run(ctx)

	rec := &journal.RunRecord{
		Job: *job, Shard: *shardIndex, NodeID: *node,
		Skipped: sum.Skipped, TickersDone: sum.TickersDone,
		RowsUpserted: sum.RowsUpserted, Errors: sum.Errors,
		DurationMs: time.Since(started).Milliseconds(),
		Success:    err == nil,
	}
	if err != nil {
		rec.ErrorMessage = err.Error()
	}
	cli.WriteJournal(*journalDir, rec)

	if err != nil {
		return cli.Fail(fmt.Errorf("candles run: %w", err))
	}
	cli.PrintSummary(map[string]any{
		"ok": true, "job": *job, "shard": *shardIndex, "summary": sum,
	})
	if sum.TimedOut {
		return cli.ExitTimeout
	}
	return cli.ExitOK
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
