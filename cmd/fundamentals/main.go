package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"vietmarket-api/internal/cli"
	fiingest "vietmarket-api/internal/ingest/fi"
	fipkg "vietmarket-api/pkg/fi"
	"vietmarket-api/pkg/shard"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		tickers      = flag.String("tickers", "", "comma-separated tickers")
		universeFile = flag.String("universe", os.Getenv("UNIVERSE_FILE"), "universe JSON file")
		size         = flag.Int("size", 0, "limit number of tickers")
		period       = flag.String("period", "Q", "Q | Y")
		outDir       = flag.String("out-dir", "data/fi", "raw/normalized/publish root")
		token        = flag.String("token", os.Getenv("SOURCE_BEARER_TOKEN"), "source bearer token")
		noFallback   = flag.Bool("no-fallback-to-q", false, "fail yearly runs without a token instead of downgrading")
		budgetSec    = flag.Int("time-budget-sec", 1200, "hard wall-clock ceiling per run")
		sourcesFile  = flag.String("sources", "", "sources config file")
		baseURL      = flag.String("base-url", "", "override fundamentals API base url")
		dryRun       = flag.Bool("dry-run", false, "skip warehouse writes")
	)
	flag.Parse()

	p := strings.ToUpper(strings.TrimSpace(*period))
	if p != "Q" && p != "Y" {
		return cli.Fail(fmt.Errorf("period must be Q or Y"))
	}

	list, err := resolveTickers(*tickers, *universeFile, *size)
	if err != nil {
		return cli.Fail(err)
	}

	st, err := cli.Connect()
	if err != nil {
		return cli.Fail(err)
	}
	srcCfg, err := cli.LoadSources(*sourcesFile)
	if err != nil {
		return cli.Fail(err)
	}
	api := *baseURL
	if api == "" {
		api = srcCfg.FiBaseURL
	}
	bearer := *token
	if bearer == "" {
		bearer = srcCfg.BearerToken
	}

	client := fipkg.NewClient(api, bearer, cli.SourceClient(srcCfg))
	client.NoFallbackToQ = *noFallback

	worker := fiingest.New(fiingest.Config{
		Tickers:    list,
		Period:     p,
		OutDir:     *outDir,
		TimeBudget: time.Duration(*budgetSec) * time.Second,
		DryRun:     *dryRun,
	}, client, st)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := worker.Run(ctx)
	if err != nil {
		return cli.Fail(err)
	}
	cli.PrintSummary(map[string]any{"ok": true, "period": p, "fi": sum})
	if sum.TimedOut {
		return cli.ExitTimeout
	}
	return cli.ExitOK
}

func resolveTickers(csv, universeFile string, size int) ([]string, error) {
	var list []string
	switch {
	case csv != "":
		list = shard.Normalize(strings.Split(csv, ","))
	case universeFile != "":
		var err error
		list, err = shard.LoadUniverseFile(universeFile)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("one of -tickers or -universe is required")
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("no valid tickers")
	}
	if size > 0 && size < len(list) {
		list = list[:size]
	}
	return list, nil
}
