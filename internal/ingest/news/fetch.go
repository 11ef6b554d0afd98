package news

import (
	"context"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"vietmarket-api/internal/store"
	"vietmarket-api/pkg/linker"
	newspkg "vietmarket-api/pkg/news"
)

// FetchSummary reports one fetch run.
type FetchSummary struct {
	Claimed  int `json:"claimed"`
	Fetched  int `json:"fetched"`
	Failed   int `json:"failed"`
	Linked   int `json:"linked"`
	Archived int `json:"archived"`
}

// FetchWorker drains pending articles: download, extract, link, archive.
type FetchWorker struct {
	cfg     *newspkg.Config
	fetcher *newspkg.Fetcher
	store   *store.Store
	archive *newspkg.Archive // optional
}

// NewFetchWorker wires a fetch run. archive may be nil.
func NewFetchWorker(cfg *newspkg.Config, fetcher *newspkg.Fetcher, st *store.Store, archive *newspkg.Archive) *FetchWorker {
	return &FetchWorker{cfg: cfg, fetcher: fetcher, store: st, archive: archive}
}

// Run claims a batch of pending URLs and processes them at the configured
// rate.
func (w *FetchWorker) Run(ctx context.Context) (FetchSummary, error) {
	var sum FetchSummary

	urls, err := w.store.ClaimPendingArticles(ctx, w.cfg.FetchLimit)
	if err != nil {
		return sum, err
	}
	sum.Claimed = len(urls)
	if len(urls) == 0 {
		return sum, nil
	}

	known, err := w.knownTickers(ctx)
	if err != nil {
		return sum, err
	}
	sleep := w.cfg.SleepBetweenRequests()

	for _, articleURL := range urls {
		if err := w.processOne(ctx, articleURL, known, &sum); err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			logx.WithContext(ctx).Errorf("news: fetch %s: %v", articleURL, err)
		}
		if err := pause(ctx, sleep); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

func (w *FetchWorker) processOne(ctx context.Context, articleURL string, known map[string]struct{}, sum *FetchSummary) error {
	res, err := w.fetcher.FetchArticle(ctx, articleURL)
	if err != nil {
		sum.Failed++
		return w.store.MarkArticleFailed(ctx, articleURL, err.Error())
	}
	// A fetched row must carry text; an empty extraction is a failure.
	if strings.TrimSpace(res.Text) == "" {
		sum.Failed++
		return w.store.MarkArticleFailed(ctx, articleURL, "empty extraction")
	}

	lang := detectLang(res.Text)
	if err := w.store.MarkArticleFetched(ctx, articleURL, store.FetchedContent{
		Text:          res.Text,
		ContentSHA256: res.SHA256,
		WordCount:     res.WordCount,
		Lang:          lang,
		FetchMethod:   res.Method,
	}); err != nil {
		return err
	}
	sum.Fetched++

	if w.archive != nil {
		title, _, _ := w.store.GetArticleText(ctx, articleURL)
		if err := w.archive.Put(ctx, newspkg.ArchiveRow{
			URL:           articleURL,
			Title:         title,
			Text:          res.Text,
			ContentSHA256: res.SHA256,
			WordCount:     res.WordCount,
			FetchMethod:   res.Method,
			FetchedAt:     time.Now(),
		}); err != nil {
			logx.WithContext(ctx).Errorf("news: archive %s: %v", articleURL, err)
		} else {
			sum.Archived++
		}
	}

	linked, err := w.linkSymbols(ctx, articleURL, known)
	if err != nil {
		return err
	}
	sum.Linked += linked
	return nil
}

func (w *FetchWorker) linkSymbols(ctx context.Context, articleURL string, known map[string]struct{}) (int, error) {
	title, text, err := w.store.GetArticleText(ctx, articleURL)
	if err != nil {
		return 0, err
	}

	best := map[string]linker.Match{}
	for _, m := range linker.FromTitle(title, known) {
		best[m.Ticker] = m
	}
	for _, m := range linker.FromBody(text, known) {
		if prev, ok := best[m.Ticker]; !ok || m.Confidence > prev.Confidence {
			best[m.Ticker] = m
		}
	}

	linked := 0
	for _, m := range best {
		if err := w.store.UpsertArticleSymbol(ctx, articleURL, m.Ticker, m.Confidence, m.Method); err != nil {
			return linked, err
		}
		linked++
	}
	return linked, nil
}

func (w *FetchWorker) knownTickers(ctx context.Context) (map[string]struct{}, error) {
	tickers, err := w.store.KnownTickers(ctx)
	if err != nil {
		return nil, err
	}
	return linker.KnownSet(tickers), nil
}

// detectLang marks obviously-Vietnamese bodies. Anything else stays untagged
// rather than guessed.
func detectLang(text string) *string {
	if len(text) == 0 {
		return nil
	}
	sample := text
	if len(sample) > 2000 {
		sample = sample[:2000]
	}
	if strings.ContainsAny(sample, "ăâđêôơưĂÂĐÊÔƠƯạảấầẩẫậắằẳẵặẹẻẽếềểễệịỉĩọỏốồổỗộớờởỡợụủứừửữựỳỵỷỹý") {
		lang := "vi"
		return &lang
	}
	return nil
}

// MigrateSummary reports one archive migration run.
type MigrateSummary struct {
	Walked   int `json:"walked"`
	Upserted int `json:"upserted"`
}

// MigrateArchive lands every locally archived article in the warehouse. The
// warehouse wins on conflict; already-fetched rows are untouched.
func MigrateArchive(ctx context.Context, archive *newspkg.Archive, st *store.Store) (MigrateSummary, error) {
	var sum MigrateSummary
	err := archive.Walk(ctx, func(row newspkg.ArchiveRow) error {
		sum.Walked++
		var title *string
		if row.Title != "" {
			title = &row.Title
		}
		if err := st.UpsertFetchedArticle(ctx, row.URL, title, row.PublishedAt, store.FetchedContent{
			Text:          row.Text,
			ContentSHA256: row.ContentSHA256,
			WordCount:     row.WordCount,
			FetchMethod:   row.FetchMethod,
		}); err != nil {
			return err
		}
		sum.Upserted++
		return nil
	})
	return sum, err
}
