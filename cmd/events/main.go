package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"regexp"
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
		eventTypeID   = flag.Int("event-type", 1, "calendar tab id")
		channelID     = flag.Int("channel", 0, "group id, 0 = all")
		pageSize      = flag.Int("page-size", 50, "rows per page")
		maxPages      = flag.Int("max-pages", 5, "pages per run")
		fromDate      = flag.String("from", "", "dd/mm/yyyy (default: first of this month)")
		toDate        = flag.String("to", "", "dd/mm/yyyy (default: first of this month next year)")
		universeRegex = flag.String("universe-regex", `^[A-Z0-9]{3,4}$`, "ticker admission filter")
		sourcesFile   = flag.String("sources", "", "sources config file")
	)
	flag.Parse()

	universeRE, err := regexp.Compile(*universeRegex)
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
	client := vnsource.NewVietstockClient(srcCfg, cli.SourceClient(srcCfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	token, err := client.FetchToken(ctx)
	if err != nil {
		return cli.Fail(err)
	}

	now := time.Now().UTC()
	from := *fromDate
	if from == "" {
		from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).Format("02/01/2006")
	}
	to := *toDate
	if to == "" {
		to = time.Date(now.Year()+1, now.Month(), 1, 0, 0, 0, 0, time.UTC).Format("02/01/2006")
	}

	var all []vnsource.Event
	for page := 1; page <= *maxPages; page++ {
		events, err := client.FetchEvents(ctx, token, vnsource.EventsQuery{
			EventTypeID: *eventTypeID, ChannelID: *channelID,
			Page: page, PageSize: *pageSize, FromDate: from, ToDate: to,
		}, universeRE)
		if err != nil {
			return cli.Fail(err)
		}
		all = append(all, events...)
	}

	rows := make([]store.CorporateAction, 0, len(all))
	for _, ev := range all {
		rows = append(rows, toRow(ev))
	}
	n, err := st.UpsertCorporateActions(ctx, rows)
	if err != nil {
		return cli.Fail(err)
	}
	cli.PrintSummary(map[string]any{"ok": true, "pages": *maxPages, "events": n})
	return cli.ExitOK
}

func toRow(ev vnsource.Event) store.CorporateAction {
	row := store.CorporateAction{
		ID:         ev.ID(),
		Ticker:     ev.Ticker,
		ExDate:     ev.ExDate,
		RecordDate: ev.RecordDate,
		PayDate:    ev.PayDate,
		Source:     "vietstock",
	}
	if ev.Exchange != "" {
		row.Exchange = &ev.Exchange
	}
	if ev.Headline != "" {
		row.Headline = &ev.Headline
	}
	if ev.EventType != "" {
		row.EventType = &ev.EventType
	}
	if ev.SourceURL != "" {
		row.SourceURL = &ev.SourceURL
	}
	if raw, err := json.Marshal(ev); err == nil {
		s := string(raw)
		row.RawJSON = &s
	}
	return row
}
