package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"vietmarket-api/internal/cli"
	"vietmarket-api/internal/store"
	"vietmarket-api/pkg/vnsource"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		floors      = flag.String("floors", "HOSE,HNX,UPCOM", "exchange floors to sync")
		pageSize    = flag.Int("page-size", 500, "symbols per API page")
		maxPages    = flag.Int("max-pages", 200, "page safety cap")
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
	client := vnsource.NewVNDirectClient(srcCfg, cli.SourceClient(srcCfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	floorList := strings.Split(strings.ToUpper(*floors), ",")
	infos, err := client.FetchAllSymbols(ctx, floorList, *pageSize, *maxPages)
	if err != nil {
		return cli.Fail(err)
	}

	now := time.Now().UTC().UnixMilli()
	rows := make([]store.Symbol, 0, len(infos))
	for _, info := range infos {
		ts := now
		rows = append(rows, store.Symbol{
			Ticker: info.Ticker, Name: info.Name, Exchange: info.Exchange,
			Active: info.Active, UpdatedAt: &ts,
		})
	}
	n, err := st.UpsertSymbols(ctx, rows)
	if err != nil {
		return cli.Fail(err)
	}
	cli.PrintSummary(map[string]any{"ok": true, "symbols": len(infos), "upserts": n, "updated_at": now})
	return cli.ExitOK
}
