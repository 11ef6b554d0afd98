package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vietmarket-api/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		withContext = flag.Bool("context", true, "also rebuild symbol_context_latest")
		ensure      = flag.Bool("ensure-schema", false, "run schema migrations first")
	)
	flag.Parse()

	st, err := cli.Connect()
	if err != nil {
		return cli.Fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *ensure {
		if err := st.EnsureSchema(ctx); err != nil {
			return cli.Fail(err)
		}
	}

	counts, err := st.RebuildDerived(ctx)
	if err != nil {
		return cli.Fail(err)
	}
	if *withContext {
		if err := st.RebuildContextLatest(ctx, time.Now()); err != nil {
			return cli.Fail(err)
		}
	}
	cli.PrintSummary(map[string]any{"ok": true, "derived": counts})
	return cli.ExitOK
}
