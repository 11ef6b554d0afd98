package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"vietmarket-api/internal/cli"
	repairworker "vietmarket-api/internal/ingest/repair"
	"vietmarket-api/pkg/vnsource"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		limit       = flag.Int("limit", 5, "repairs per run")
		sleepMs     = flag.Int("sleep-ms", 200, "pause between repairs")
		sourcesFile = flag.String("sources", "", "sources config file")
	)
	flag.Parse()

	st, err := cli.Connect()
	if err != nil {
		return cli.Fail(err)
	}
	srcCfg, err := cli.LoadSources(*sourcesFile)
	if err != nil {
		return cli.Fail(err)
	}
	vci := vnsource.NewVCIClient(srcCfg, cli.SourceClient(srcCfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := repairworker.Drain(ctx, st, vci, repairworker.WorkerConfig{
		Limit: *limit, SleepMs: *sleepMs,
	})
	if err != nil {
		return cli.Fail(err)
	}
	cli.PrintSummary(map[string]any{"ok": true, "repair": sum})
	return cli.ExitOK
}
