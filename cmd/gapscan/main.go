package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"vietmarket-api/internal/cli"
	"vietmarket-api/internal/ingest/repair"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		tf           = flag.String("tf", "1d", "timeframe to scan")
		lookbackDays = flag.Int("lookback-days", 30, "scan window")
		limitTickers = flag.Int("limit-tickers", 200, "tickers per run")
	)
	flag.Parse()

	st, err := cli.Connect()
	if err != nil {
		return cli.Fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := repair.Scan(ctx, st, repair.ScanConfig{
		TF: *tf, LookbackDays: *lookbackDays, LimitTickers: *limitTickers,
	})
	if err != nil {
		return cli.Fail(err)
	}
	cli.PrintSummary(map[string]any{"ok": true, "scan": sum})
	return cli.ExitOK
}
