package news

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Archive is the local-first sqlite cache of fetched articles. It survives
// warehouse outages on the ingest node and can be migrated into the
// warehouse later; the warehouse stays authoritative on conflict.
type Archive struct {
	db *sql.DB
}

// ArchiveRow is one cached article.
type ArchiveRow struct {
	URL           string
	Title         string
	PublishedAt   *time.Time
	Text          string
	ContentSHA256 string
	WordCount     int
	FetchMethod   string
	FetchedAt     time.Time
}

const archiveSchema = `
CREATE TABLE IF NOT EXISTS articles (
	url TEXT PRIMARY KEY,
	title TEXT,
	published_at TEXT,
	text TEXT,
	content_sha256 TEXT,
	word_count INTEGER,
	fetch_method TEXT,
	fetched_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS articles_fetched_at ON articles (fetched_at);
`

// OpenArchive opens (creating if needed) the archive at path.
func OpenArchive(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("news: open archive %s: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("news: archive wal: %w", err)
	}
	if _, err := db.Exec(archiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("news: archive schema: %w", err)
	}
	return &Archive{db: db}, nil
}

// Close releases the database handle.
func (a *Archive) Close() error { return a.db.Close() }

// Put upserts one article.
func (a *Archive) Put(ctx context.Context, row ArchiveRow) error {
	const q = `
INSERT INTO articles (url, title, published_at, text, content_sha256, word_count, fetch_method, fetched_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (url) DO UPDATE SET
	title = excluded.title,
	published_at = COALESCE(excluded.published_at, articles.published_at),
	text = excluded.text,
	content_sha256 = excluded.content_sha256,
	word_count = excluded.word_count,
	fetch_method = excluded.fetch_method,
	fetched_at = excluded.fetched_at`
	var published any
	if row.PublishedAt != nil {
		published = row.PublishedAt.UTC().Format(time.RFC3339)
	}
	_, err := a.db.ExecContext(ctx, q, row.URL, row.Title, published, row.Text,
		row.ContentSHA256, row.WordCount, row.FetchMethod, row.FetchedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("news: archive put %s: %w", row.URL, err)
	}
	return nil
}

// Get reads one article; found reports existence.
func (a *Archive) Get(ctx context.Context, url string) (ArchiveRow, bool, error) {
	const q = `
SELECT url, title, published_at, text, content_sha256, word_count, fetch_method, fetched_at
FROM articles WHERE url = ?`
	var (
		row       ArchiveRow
		published sql.NullString
		fetchedAt string
	)
	err := a.db.QueryRowContext(ctx, q, url).Scan(&row.URL, &row.Title, &published,
		&row.Text, &row.ContentSHA256, &row.WordCount, &row.FetchMethod, &fetchedAt)
	if err == sql.ErrNoRows {
		return ArchiveRow{}, false, nil
	}
	if err != nil {
		return ArchiveRow{}, false, fmt.Errorf("news: archive get %s: %w", url, err)
	}
	if published.Valid {
		if t, perr := time.Parse(time.RFC3339, published.String); perr == nil {
			row.PublishedAt = &t
		}
	}
	if t, perr := time.Parse(time.RFC3339, fetchedAt); perr == nil {
		row.FetchedAt = t
	}
	return row, true, nil
}

// Walk streams every archived article to fn in fetched order; fn returning
// an error stops the walk.
func (a *Archive) Walk(ctx context.Context, fn func(ArchiveRow) error) error {
	const q = `
SELECT url, title, published_at, text, content_sha256, word_count, fetch_method, fetched_at
FROM articles ORDER BY fetched_at ASC`
	rows, err := a.db.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("news: archive walk: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			row       ArchiveRow
			published sql.NullString
			fetchedAt string
		)
		if err := rows.Scan(&row.URL, &row.Title, &published, &row.Text,
			&row.ContentSHA256, &row.WordCount, &row.FetchMethod, &fetchedAt); err != nil {
			return fmt.Errorf("news: archive scan: %w", err)
		}
		if published.Valid {
			if t, perr := time.Parse(time.RFC3339, published.String); perr == nil {
				row.PublishedAt = &t
			}
		}
		if t, perr := time.Parse(time.RFC3339, fetchedAt); perr == nil {
			row.FetchedAt = t
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Count returns the number of archived articles.
func (a *Archive) Count(ctx context.Context) (int, error) {
	var n int
	if err := a.db.QueryRowContext(ctx, `SELECT count(*) FROM articles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("news: archive count: %w", err)
	}
	return n, nil
}
