package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Article is one news row. URL is the primary key; discovery creates the row
// pending and the fetcher fills in text later.
type Article struct {
	URL           string     `db:"url" json:"url"`
	CanonicalURL  *string    `db:"canonical_url" json:"canonical_url,omitempty"`
	Source        string     `db:"source" json:"source"`
	Title         *string    `db:"title" json:"title,omitempty"`
	PublishedAt   *time.Time `db:"published_at" json:"published_at,omitempty"`
	FeedURL       *string    `db:"feed_url" json:"feed_url,omitempty"`
	FetchStatus   string     `db:"fetch_status" json:"fetch_status"`
	FetchMethod   *string    `db:"fetch_method" json:"fetch_method,omitempty"`
	FetchError    *string    `db:"fetch_error" json:"fetch_error,omitempty"`
	Text          *string    `db:"text" json:"-"`
	ContentSHA256 *string    `db:"content_sha256" json:"content_sha256,omitempty"`
	WordCount     *int       `db:"word_count" json:"word_count,omitempty"`
	Lang          *string    `db:"lang" json:"lang,omitempty"`
}

// NewsRow is the API projection of an article: snippet instead of full text,
// plus the linked tickers.
type NewsRow struct {
	URL         string         `json:"url"`
	Title       string         `json:"title"`
	Source      string         `json:"source"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
	Snippet     string         `json:"snippet"`
	Tickers     pq.StringArray `json:"tickers"`
}

// UpsertArticlePending records a discovered URL. An existing row keeps its
// fetch state; published_at and feed_url only fill gaps.
func (s *Store) UpsertArticlePending(ctx context.Context, url, source string, title *string, publishedAt *time.Time, feedURL *string) error {
	const q = `
INSERT INTO articles (url, source, title, published_at, feed_url, fetch_status, discovered_at)
VALUES ($1, $2, COALESCE($3, $1), $4, $5, 'pending', now())
ON CONFLICT (url) DO UPDATE SET
  title = COALESCE(EXCLUDED.title, articles.title),
  published_at = COALESCE(articles.published_at, EXCLUDED.published_at),
  feed_url = COALESCE(articles.feed_url, EXCLUDED.feed_url),
  ingested_at = now()`
	if _, err := s.conn.ExecCtx(ctx, q, url, source, title, publishedAt, feedURL); err != nil {
		return fmt.Errorf("store: upsert article %s: %w", url, err)
	}
	return nil
}

// InsertArticleIfNew is UpsertArticlePending plus a created flag, which the
// backfill crawler uses to detect exhausted listing pages.
func (s *Store) InsertArticleIfNew(ctx context.Context, url, source string, title *string, publishedAt *time.Time, feedURL *string) (bool, error) {
	const q = `
INSERT INTO articles (url, source, title, published_at, feed_url, fetch_status, discovered_at)
VALUES ($1, $2, COALESCE($3, $1), $4, $5, 'pending', now())
ON CONFLICT (url) DO UPDATE SET
  title = COALESCE(EXCLUDED.title, articles.title),
  published_at = COALESCE(articles.published_at, EXCLUDED.published_at),
  feed_url = COALESCE(articles.feed_url, EXCLUDED.feed_url),
  ingested_at = now()
RETURNING (xmax = 0) AS inserted`
	var inserted bool
	if err := s.conn.QueryRowCtx(ctx, &inserted, q, url, source, title, publishedAt, feedURL); err != nil {
		return false, fmt.Errorf("store: insert article %s: %w", url, err)
	}
	return inserted, nil
}

// UpsertFetchedArticle lands an already-fetched article (archive migration).
// The warehouse stays authoritative: rows it already fetched are left alone.
func (s *Store) UpsertFetchedArticle(ctx context.Context, url string, title *string, publishedAt *time.Time, content FetchedContent) error {
	const q = `
INSERT INTO articles (url, source, title, published_at, fetch_status, fetched_at,
                      text, content_sha256, word_count, fetch_method, discovered_at)
VALUES ($1, 'archive', COALESCE($2, $1), $3, 'fetched', now(), $4, $5, $6, $7, now())
ON CONFLICT (url) DO UPDATE SET
  title = COALESCE(articles.title, EXCLUDED.title),
  published_at = COALESCE(articles.published_at, EXCLUDED.published_at),
  fetch_status = 'fetched',
  fetched_at = COALESCE(articles.fetched_at, now()),
  text = COALESCE(articles.text, EXCLUDED.text),
  content_sha256 = COALESCE(articles.content_sha256, EXCLUDED.content_sha256),
  word_count = COALESCE(articles.word_count, EXCLUDED.word_count),
  fetch_method = COALESCE(articles.fetch_method, EXCLUDED.fetch_method)
WHERE articles.fetch_status != 'fetched'`
	if _, err := s.conn.ExecCtx(ctx, q, url, title, publishedAt,
		content.Text, content.ContentSHA256, content.WordCount, content.FetchMethod); err != nil {
		return fmt.Errorf("store: upsert fetched article %s: %w", url, err)
	}
	return nil
}

// ClaimPendingArticles moves up to limit pending rows to running and returns
// their URLs. SKIP LOCKED keeps concurrent fetchers off each other's batch.
func (s *Store) ClaimPendingArticles(ctx context.Context, limit int) ([]string, error) {
	const q = `
WITH claimed AS (
  SELECT url FROM articles
  WHERE fetch_status = 'pending'
  ORDER BY discovered_at ASC
  LIMIT $1
  FOR UPDATE SKIP LOCKED
)
UPDATE articles a
SET fetch_status = 'running'
FROM claimed
WHERE a.url = claimed.url
RETURNING a.url`
	var urls []string
	if err := s.conn.QueryRowsCtx(ctx, &urls, q, limit); err != nil {
		return nil, fmt.Errorf("store: claim pending articles: %w", err)
	}
	return urls, nil
}

// FetchedContent captures a successful article fetch.
type FetchedContent struct {
	Text          string
	ContentSHA256 string
	WordCount     int
	Lang          *string
	FetchMethod   string
}

// MarkArticleFetched stores the extracted text and flips the row to fetched.
func (s *Store) MarkArticleFetched(ctx context.Context, url string, content FetchedContent) error {
	const q = `
UPDATE articles
SET fetch_status = 'fetched',
    fetched_at = now(),
    text = $2,
    content_sha256 = $3,
    word_count = $4,
    lang = $5,
    fetch_method = $6,
    fetch_error = NULL
WHERE url = $1`
	if _, err := s.conn.ExecCtx(ctx, q, url, content.Text, content.ContentSHA256,
		content.WordCount, content.Lang, content.FetchMethod); err != nil {
		return fmt.Errorf("store: mark fetched %s: %w", url, err)
	}
	return nil
}

// MarkArticleFailed records a fetch failure with a truncated error message.
func (s *Store) MarkArticleFailed(ctx context.Context, url, fetchErr string) error {
	if len(fetchErr) > 800 {
		fetchErr = fetchErr[:800]
	}
	const q = `
UPDATE articles
SET fetch_status = 'failed', fetched_at = now(), fetch_error = $2
WHERE url = $1`
	if _, err := s.conn.ExecCtx(ctx, q, url, fetchErr); err != nil {
		return fmt.Errorf("store: mark failed %s: %w", url, err)
	}
	return nil
}

// GetArticleText returns title and text for linking.
func (s *Store) GetArticleText(ctx context.Context, url string) (title, text string, err error) {
	var row struct {
		Title *string `db:"title"`
		Text  *string `db:"text"`
	}
	if err := s.conn.QueryRowCtx(ctx, &row,
		`SELECT title, text FROM articles WHERE url = $1`, url); err != nil {
		if notFound(err) {
			return "", "", ErrNotFound
		}
		return "", "", fmt.Errorf("store: get article: %w", err)
	}
	if row.Title != nil {
		title = *row.Title
	}
	if row.Text != nil {
		text = *row.Text
	}
	return title, text, nil
}

// UpsertArticleSymbol links an article to a ticker. Confidence only ever
// rises on re-observation.
func (s *Store) UpsertArticleSymbol(ctx context.Context, articleURL, ticker string, confidence float64, method string) error {
	const q = `
INSERT INTO article_symbols (article_url, ticker, confidence, method)
VALUES ($1, $2, $3, $4)
ON CONFLICT (article_url, ticker) DO UPDATE SET
  confidence = GREATEST(article_symbols.confidence, EXCLUDED.confidence),
  method = CASE WHEN EXCLUDED.confidence > article_symbols.confidence
                THEN EXCLUDED.method ELSE article_symbols.method END`
	if _, err := s.conn.ExecCtx(ctx, q, articleURL, ticker, confidence, method); err != nil {
		return fmt.Errorf("store: upsert article symbol: %w", err)
	}
	return nil
}

// NewsCursor is the keyset cursor over (published_at DESC, url DESC).
type NewsCursor struct {
	BeforePublishedAt *time.Time
	BeforeURL         *string
}

type newsRow struct {
	URL         string         `db:"url"`
	Title       *string        `db:"title"`
	Source      string         `db:"source"`
	PublishedAt *time.Time     `db:"published_at"`
	Snippet     *string        `db:"snippet"`
	Tickers     pq.StringArray `db:"tickers"`
}

// NewsLatest returns fetched articles newest-first with their linked tickers.
func (s *Store) NewsLatest(ctx context.Context, cursor NewsCursor, limit int) ([]NewsRow, error) {
	return s.newsQuery(ctx, "", cursor, limit)
}

// NewsByTicker restricts NewsLatest to articles linked to one ticker.
func (s *Store) NewsByTicker(ctx context.Context, ticker string, cursor NewsCursor, limit int) ([]NewsRow, error) {
	return s.newsQuery(ctx, ticker, cursor, limit)
}

func (s *Store) newsQuery(ctx context.Context, ticker string, cursor NewsCursor, limit int) ([]NewsRow, error) {
	q := `
SELECT a.url,
       a.title,
       a.source,
       a.published_at,
       left(coalesce(a.text, ''), 220) AS snippet,
       coalesce(array_agg(s.ticker ORDER BY s.confidence DESC, s.ticker)
                FILTER (WHERE s.ticker IS NOT NULL), '{}') AS tickers
FROM articles a
LEFT JOIN article_symbols s ON s.article_url = a.url
WHERE a.fetch_status = 'fetched'`
	var args []any
	if ticker != "" {
		args = append(args, ticker)
		q += fmt.Sprintf(`
  AND EXISTS (SELECT 1 FROM article_symbols l WHERE l.article_url = a.url AND l.ticker = $%d)`, len(args))
	}
	if cursor.BeforePublishedAt != nil {
		args = append(args, *cursor.BeforePublishedAt)
		i := len(args)
		if cursor.BeforeURL != nil {
			args = append(args, *cursor.BeforeURL)
			q += fmt.Sprintf(`
  AND (a.published_at, a.url) < ($%d, $%d)`, i, i+1)
		} else {
			q += fmt.Sprintf(`
  AND a.published_at < $%d`, i)
		}
	}
	args = append(args, limit)
	q += fmt.Sprintf(`
GROUP BY a.url
ORDER BY a.published_at DESC NULLS LAST, a.url DESC
LIMIT $%d`, len(args))

	var rows []newsRow
	if err := s.conn.QueryRowsCtx(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("store: news query: %w", err)
	}
	out := make([]NewsRow, 0, len(rows))
	for _, r := range rows {
		row := NewsRow{URL: r.URL, Source: r.Source, PublishedAt: r.PublishedAt, Tickers: r.Tickers}
		if r.Title != nil {
			row.Title = *r.Title
		}
		if r.Snippet != nil {
			row.Snippet = *r.Snippet
		}
		if row.Tickers == nil {
			row.Tickers = pq.StringArray{}
		}
		out = append(out, row)
	}
	return out, nil
}
