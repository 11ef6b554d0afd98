// Package news orchestrates news ingestion against the warehouse: RSS and
// listing-page discovery, article fetching with symbol linking, and archive
// migration.
package news

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"vietmarket-api/internal/store"
	newspkg "vietmarket-api/pkg/news"
	"vietmarket-api/pkg/source"
	"vietmarket-api/pkg/vnsource"
)

// DiscoverSummary reports one discovery run.
type DiscoverSummary struct {
	Feeds         int  `json:"feeds"`
	Discovered    int  `json:"discovered"`
	NewURLs       int  `json:"new_urls"`
	BackfillPages int  `json:"backfill_pages"`
	BackfillDone  bool `json:"backfill_done"`
}

// Discoverer walks feeds and listing pages, enqueueing article URLs.
type Discoverer struct {
	cfg    *newspkg.Config
	srcCfg *vnsource.Config
	src    *source.Client
	store  *store.Store
}

// NewDiscoverer wires a discovery run.
func NewDiscoverer(cfg *newspkg.Config, srcCfg *vnsource.Config, src *source.Client, st *store.Store) *Discoverer {
	return &Discoverer{cfg: cfg, srcCfg: srcCfg, src: src, store: st}
}

// Run performs the RSS stage then the budgeted backfill stage.
func (d *Discoverer) Run(ctx context.Context) (DiscoverSummary, error) {
	var sum DiscoverSummary
	sleep := d.cfg.SleepBetweenRequests()

	feeds, err := d.store.ListFeeds(ctx)
	if err != nil {
		return sum, err
	}
	sum.Feeds = len(feeds)

	for _, feedURL := range feeds {
		if err := d.discoverFeed(ctx, feedURL, &sum); err != nil {
			// A broken feed must not starve the rest.
			logx.WithContext(ctx).Errorf("news: feed %s: %v", feedURL, err)
		}
		if err := pause(ctx, sleep); err != nil {
			return sum, err
		}
	}

	if err := d.backfill(ctx, &sum); err != nil {
		return sum, err
	}

	remaining, err := d.store.RemainingSeeds(ctx)
	if err != nil {
		return sum, err
	}
	if remaining == 0 {
		if err := d.store.SetKV(ctx, store.KVBackfillDone, "1"); err != nil {
			return sum, err
		}
		sum.BackfillDone = true
	}
	return sum, nil
}

func (d *Discoverer) discoverFeed(ctx context.Context, feedURL string, sum *DiscoverSummary) error {
	resp, err := d.src.Get(ctx, d.feedEndpoint(feedURL), source.CallTimeout(d.cfg.Timeout))
	if err != nil {
		return err
	}
	items, err := newspkg.ParseRSS(resp.Body)
	if err != nil {
		return err
	}
	if len(items) > d.cfg.RSSLimit {
		items = items[:d.cfg.RSSLimit]
	}

	var newest *time.Time
	for _, it := range items {
		title := it.Title
		created, err := d.store.InsertArticleIfNew(ctx, it.URL, "rss", &title, it.PublishedAt, &feedURL)
		if err != nil {
			return err
		}
		sum.Discovered++
		if created {
			sum.NewURLs++
		}
		if it.PublishedAt != nil && (newest == nil || it.PublishedAt.After(*newest)) {
			newest = it.PublishedAt
		}
	}
	return d.store.TouchFeed(ctx, feedURL, newest)
}

// feedEndpoint routes feed reads through the local relay when configured;
// the upstream blocks non-browser agents.
func (d *Discoverer) feedEndpoint(feedURL string) string {
	if d.srcCfg.RelayBaseURL == "" {
		return feedURL
	}
	return d.srcCfg.RelayBaseURL + "/fetch?url=" + url.QueryEscape(feedURL)
}

func (d *Discoverer) backfill(ctx context.Context, sum *DiscoverSummary) error {
	seeds, err := d.store.EnabledSeedsWithState(ctx)
	if err != nil {
		return err
	}
	sleep := d.cfg.SleepBetweenRequests()

	for _, seed := range seeds {
		if sum.BackfillPages >= d.cfg.BudgetPages {
			return nil
		}
		if seed.ChannelID == nil {
			continue
		}

		page := seed.NextPage
		if page < 1 {
			page = 1
		}
		listURL := fmt.Sprintf("%s/StartPage/ChannelContentPage?channelID=%d&page=%d",
			d.srcCfg.VietstockBaseURL, *seed.ChannelID, page)

		resp, err := d.src.Get(ctx, listURL, source.CallTimeout(d.cfg.Timeout))
		if err != nil {
			if recErr := d.store.RecordCrawlError(ctx, seed.SeedURL, err.Error()); recErr != nil {
				return recErr
			}
			sum.BackfillPages++
			continue
		}

		newCount := 0
		for _, u := range newspkg.ExtractArticleURLs(resp.Text()) {
			created, err := d.store.InsertArticleIfNew(ctx, u, "backfill", nil, nil, nil)
			if err != nil {
				return err
			}
			sum.Discovered++
			if created {
				newCount++
				sum.NewURLs++
			}
		}

		noNew := seed.NoNewPages
		if newCount == 0 {
			noNew++
		} else {
			noNew = 0
		}
		done := noNew >= d.cfg.NoNewStop
		if err := d.store.AdvanceCrawlState(ctx, seed.SeedURL, page+1, noNew, done); err != nil {
			return err
		}

		sum.BackfillPages++
		if err := pause(ctx, sleep); err != nil {
			return err
		}
	}
	return nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
