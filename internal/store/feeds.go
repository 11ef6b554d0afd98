package store

import (
	"context"
	"fmt"
	"time"
)

// Seed is one category-listing crawl root.
type Seed struct {
	SeedURL   string `db:"seed_url" json:"seed_url"`
	ChannelID *int   `db:"channel_id" json:"channel_id,omitempty"`
	Enabled   bool   `db:"enabled" json:"enabled"`
}

// CrawlState tracks backfill pagination progress for one seed.
type CrawlState struct {
	SeedURL               string     `db:"seed_url" json:"seed_url"`
	NextPage              int        `db:"next_page" json:"next_page"`
	Done                  bool       `db:"done" json:"done"`
	NoNewPages            int        `db:"no_new_pages" json:"no_new_pages"`
	OldestSeenPublishedAt *time.Time `db:"oldest_seen_published_at" json:"oldest_seen_published_at,omitempty"`
	LastError             *string    `db:"last_error" json:"last_error,omitempty"`
}

// AddFeed registers an RSS feed URL.
func (s *Store) AddFeed(ctx context.Context, feedURL string) error {
	const q = `INSERT INTO feeds (feed_url) VALUES ($1) ON CONFLICT (feed_url) DO NOTHING`
	if _, err := s.conn.ExecCtx(ctx, q, feedURL); err != nil {
		return fmt.Errorf("store: add feed %s: %w", feedURL, err)
	}
	return nil
}

// AddSeed registers a category-listing seed.
func (s *Store) AddSeed(ctx context.Context, seedURL string, channelID *int) error {
	const q = `
INSERT INTO seeds (seed_url, channel_id, enabled)
VALUES ($1, $2, true)
ON CONFLICT (seed_url) DO UPDATE SET
  channel_id = COALESCE(EXCLUDED.channel_id, seeds.channel_id),
  enabled = true`
	if _, err := s.conn.ExecCtx(ctx, q, seedURL, channelID); err != nil {
		return fmt.Errorf("store: add seed %s: %w", seedURL, err)
	}
	return nil
}

// ListFeeds returns RSS feed URLs in stable order.
func (s *Store) ListFeeds(ctx context.Context) ([]string, error) {
	var out []string
	if err := s.conn.QueryRowsCtx(ctx, &out, `SELECT feed_url FROM feeds ORDER BY feed_url`); err != nil {
		return nil, fmt.Errorf("store: list feeds: %w", err)
	}
	return out, nil
}

// TouchFeed records a feed check, advancing last_seen_published_at when the
// feed produced something newer.
func (s *Store) TouchFeed(ctx context.Context, feedURL string, newestPublishedAt *time.Time) error {
	const q = `
UPDATE feeds
SET last_checked_at = now(),
    last_seen_published_at = GREATEST(coalesce(last_seen_published_at, 'epoch'::timestamptz),
                                      coalesce($2, last_seen_published_at, 'epoch'::timestamptz)),
    updated_at = now()
WHERE feed_url = $1`
	if _, err := s.conn.ExecCtx(ctx, q, feedURL, newestPublishedAt); err != nil {
		return fmt.Errorf("store: touch feed %s: %w", feedURL, err)
	}
	return nil
}

// SeedWithState is an enabled seed joined with its crawl progress.
type SeedWithState struct {
	SeedURL    string  `db:"seed_url"`
	ChannelID  *int    `db:"channel_id"`
	NextPage   int     `db:"next_page"`
	NoNewPages int     `db:"no_new_pages"`
	LastError  *string `db:"last_error"`
}

// EnabledSeedsWithState returns enabled seeds joined with crawl state,
// creating missing state rows first. Seeds already done are excluded.
func (s *Store) EnabledSeedsWithState(ctx context.Context) ([]SeedWithState, error) {
	if _, err := s.conn.ExecCtx(ctx, `
INSERT INTO crawl_state (seed_url)
SELECT seed_url FROM seeds WHERE enabled = true
ON CONFLICT (seed_url) DO NOTHING`); err != nil {
		return nil, fmt.Errorf("store: ensure crawl state: %w", err)
	}

	var rows []SeedWithState
	const q = `
SELECT s.seed_url, s.channel_id, cs.next_page, cs.no_new_pages, cs.last_error
FROM seeds s
JOIN crawl_state cs ON cs.seed_url = s.seed_url
WHERE s.enabled = true AND cs.done = false
ORDER BY cs.last_crawled_at NULLS FIRST, s.seed_url`
	if err := s.conn.QueryRowsCtx(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("store: seeds with state: %w", err)
	}
	return rows, nil
}

// AdvanceCrawlState persists one page's crawl outcome.
func (s *Store) AdvanceCrawlState(ctx context.Context, seedURL string, nextPage, noNewPages int, done bool) error {
	const q = `
UPDATE crawl_state
SET next_page = $2, no_new_pages = $3, done = $4, last_crawled_at = now(), last_error = NULL
WHERE seed_url = $1`
	if _, err := s.conn.ExecCtx(ctx, q, seedURL, nextPage, noNewPages, done); err != nil {
		return fmt.Errorf("store: advance crawl state %s: %w", seedURL, err)
	}
	return nil
}

// RecordCrawlError notes a crawl failure without advancing the page.
func (s *Store) RecordCrawlError(ctx context.Context, seedURL, errMsg string) error {
	if len(errMsg) > 500 {
		errMsg = errMsg[:500]
	}
	const q = `
UPDATE crawl_state SET last_error = $2, last_crawled_at = now() WHERE seed_url = $1`
	if _, err := s.conn.ExecCtx(ctx, q, seedURL, errMsg); err != nil {
		return fmt.Errorf("store: record crawl error %s: %w", seedURL, err)
	}
	return nil
}

// RemainingSeeds counts enabled seeds not yet done.
func (s *Store) RemainingSeeds(ctx context.Context) (int, error) {
	var n int
	const q = `
SELECT count(*) FROM crawl_state cs
JOIN seeds s ON s.seed_url = cs.seed_url
WHERE s.enabled = true AND cs.done = false`
	if err := s.conn.QueryRowCtx(ctx, &n, q); err != nil {
		return 0, fmt.Errorf("store: remaining seeds: %w", err)
	}
	return n, nil
}

// ResetSeed reopens a finished seed for another backfill sweep.
func (s *Store) ResetSeed(ctx context.Context, seedURL string) error {
	const q = `
UPDATE crawl_state
SET done = false, no_new_pages = 0, next_page = 1, last_error = NULL
WHERE seed_url = $1`
	if _, err := s.conn.ExecCtx(ctx, q, seedURL); err != nil {
		return fmt.Errorf("store: reset seed %s: %w", seedURL, err)
	}
	return nil
}
