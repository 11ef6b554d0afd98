package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"vietmarket-api/internal/cli"
	newsingest "vietmarket-api/internal/ingest/news"
	newspkg "vietmarket-api/pkg/news"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		mode        = flag.String("mode", "discover", "discover | fetch | migrate")
		limit       = flag.Int("limit", 0, "override fetch batch size")
		rate        = flag.Float64("rate", 0, "override requests per second")
		newsFile    = flag.String("news", "", "news config file")
		sourcesFile = flag.String("sources", "", "sources config file")
		archivePath = flag.String("archive", "", "override local archive path")
		addFeed     = flag.String("add-feed", "", "register an RSS feed url and exit")
		addSeed     = flag.String("add-seed", "", "register a listing seed url and exit")
		seedChannel = flag.Int("seed-channel", 0, "channel id for -add-seed")
		resetSeed   = flag.String("reset-seed", "", "reopen a finished seed and exit")
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

	newsCfg := newspkg.Default()
	if *newsFile != "" {
		newsCfg, err = newspkg.LoadConfig(*newsFile)
		if err != nil {
			return cli.Fail(err)
		}
	}
	if *limit > 0 {
		newsCfg.FetchLimit = *limit
	}
	if *rate > 0 {
		newsCfg.Rate = *rate
	}
	if *archivePath != "" {
		newsCfg.ArchivePath = *archivePath
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Seed-management shortcuts run and exit before any crawl mode.
	switch {
	case *addFeed != "":
		if err := st.AddFeed(ctx, *addFeed); err != nil {
			return cli.Fail(err)
		}
		cli.PrintSummary(map[string]any{"ok": true, "added_feed": *addFeed})
		return cli.ExitOK
	case *addSeed != "":
		var channel *int
		if *seedChannel > 0 {
			channel = seedChannel
		}
		if err := st.AddSeed(ctx, *addSeed, channel); err != nil {
			return cli.Fail(err)
		}
		cli.PrintSummary(map[string]any{"ok": true, "added_seed": *addSeed})
		return cli.ExitOK
	case *resetSeed != "":
		if err := st.ResetSeed(ctx, *resetSeed); err != nil {
			return cli.Fail(err)
		}
		cli.PrintSummary(map[string]any{"ok": true, "reset_seed": *resetSeed})
		return cli.ExitOK
	}

	src := cli.SourceClient(srcCfg)

	switch *mode {
	case "discover":
		sum, err := newsingest.NewDiscoverer(newsCfg, srcCfg, src, st).Run(ctx)
		if err != nil {
			return cli.Fail(err)
		}
		cli.PrintSummary(map[string]any{"ok": true, "discover": sum})

	case "fetch":
		var archive *newspkg.Archive
		if newsCfg.ArchivePath != "" {
			archive, err = newspkg.OpenArchive(newsCfg.ArchivePath)
			if err != nil {
				return cli.Fail(err)
			}
			defer archive.Close()
		}
		var headless newspkg.HeadlessRunner
		if newsCfg.HeadlessCmd != "" {
			headless = &newspkg.ExecHeadless{Command: newsCfg.HeadlessCmd}
		}
		fetcher := newspkg.NewFetcher(newsCfg, src, headless)
		sum, err := newsingest.NewFetchWorker(newsCfg, fetcher, st, archive).Run(ctx)
		if err != nil {
			return cli.Fail(err)
		}
		cli.PrintSummary(map[string]any{"ok": true, "fetch": sum})

	case "migrate":
		if newsCfg.ArchivePath == "" {
			return cli.Fail(fmt.Errorf("migrate needs an archive path"))
		}
		archive, err := newspkg.OpenArchive(newsCfg.ArchivePath)
		if err != nil {
			return cli.Fail(err)
		}
		defer archive.Close()
		sum, err := newsingest.MigrateArchive(ctx, archive, st)
		if err != nil {
			return cli.Fail(err)
		}
		cli.PrintSummary(map[string]any{"ok": true, "migrate": sum})

	default:
		return cli.Fail(fmt.Errorf("unknown mode %q", *mode))
	}
	return cli.ExitOK
}
