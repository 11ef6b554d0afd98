package news

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vietmarket-api/pkg/source"
)

const sampleFeed = `<?xml version="1.0" encoding="utf-8"?>
<rss version="2.0"><channel>
<item>
  <title>Cổ phiếu FPT tăng mạnh</title>
  <link>http://vietstock.vn/2026/02/fpt-tang-manh-830-123.htm</link>
  <pubDate>Mon, 16 Feb 2026 08:30:00 +0700</pubDate>
</item>
<item>
  <title></title>
  <link>https://vietstock.vn/2026/02/khac-830-456.htm</link>
  <pubDate>not a date</pubDate>
</item>
<item>
  <title>no link</title>
  <link></link>
</item>
</channel></rss>`

func TestParseRSS(t *testing.T) {
	items, err := ParseRSS([]byte(sampleFeed))
	require.NoError(t, err)
	require.Len(t, items, 2, "item without link dropped")

	assert.Equal(t, "https://vietstock.vn/2026/02/fpt-tang-manh-830-123.htm", items[0].URL,
		"plain-http vietstock links upgraded")
	assert.Equal(t, "Cổ phiếu FPT tăng mạnh", items[0].Title)
	require.NotNil(t, items[0].PublishedAt)
	assert.Equal(t, time.Date(2026, 2, 16, 1, 30, 0, 0, time.UTC), *items[0].PublishedAt)

	assert.Equal(t, items[1].URL, items[1].Title, "missing title falls back to url")
	assert.Nil(t, items[1].PublishedAt)
}

func TestExtractMainTextPrefersSiteClasses(t *testing.T) {
	long := strings.Repeat("câu chuyện thị trường chứng khoán hôm nay rất đáng chú ý ", 12)
	html := `<html><head><script>junk()</script></head><body>
<div class="nav">MENU</div>
<p class="pTitle">Tiêu đề bài viết</p>
<p class="pHead">Mô tả ngắn</p>
<p class="pBody">` + long + `</p>
<p class="pBody">` + long + `</p>
<div class="footer">FOOTER</div>
</body></html>`

	text := ExtractMainText(html)
	assert.True(t, strings.HasPrefix(text, "Tiêu đề bài viết"))
	assert.Contains(t, text, "Mô tả ngắn")
	assert.NotContains(t, text, "MENU")
	assert.NotContains(t, text, "FOOTER")
	assert.NotContains(t, text, "junk()")
}

func TestExtractMainTextFallsBackToGenericStrip(t *testing.T) {
	html := `<html><body><article>` +
		strings.Repeat("thị trường tăng điểm phiên sáng với thanh khoản cải thiện rõ rệt ", 15) +
		`</article></body></html>`
	text := ExtractMainText(html)
	assert.GreaterOrEqual(t, WordCount(text), MinWordCount)
}

func TestStripTagsUnescapesEntities(t *testing.T) {
	assert.Equal(t, `lãi "ròng" & tăng`, StripTags(`<b>lãi &quot;ròng&quot; &amp; tăng</b>`))
}

func TestContentSHA256(t *testing.T) {
	a := ContentSHA256("same text")
	b := ContentSHA256("same text")
	c := ContentSHA256("other text")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestExtractArticleURLs(t *testing.T) {
	html := `
<a href="https://vietstock.vn/2026/02/bai-mot-830-1.htm">1</a>
<a href="/2026/02/bai-hai-830-2.htm">2</a>
<a href="https://fili.vn/2026/02/bai-ba-830-3.htm">3</a>
<a href="https://vietstock.vn/gioi-thieu.htm">not an article</a>
<a href="https://vietstock.vn/2026/02/bai-mot-830-1.htm">dup</a>`

	urls := ExtractArticleURLs(html)
	assert.Equal(t, []string{
		"https://vietstock.vn/2026/02/bai-mot-830-1.htm",
		"https://fili.vn/2026/02/bai-ba-830-3.htm",
		"https://vietstock.vn/2026/02/bai-hai-830-2.htm",
	}, urls)
}

func TestFetcherHTTPHappyPath(t *testing.T) {
	body := `<p class="pBody">` +
		strings.Repeat("nội dung bài viết dài với nhiều từ để vượt ngưỡng tối thiểu ", 12) + `</p>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	f := NewFetcher(Default(), source.New(source.WithoutJitter()), nil)
	res, err := f.FetchArticle(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "http", res.Method)
	assert.GreaterOrEqual(t, res.WordCount, MinWordCount)
	assert.Equal(t, ContentSHA256(res.Text), res.SHA256)
}

type fakeHeadless struct {
	calls int32
	body  string
	err   error
}

func (f *fakeHeadless) Fetch(ctx context.Context, url string) ([]byte, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.body), nil
}

func TestFetcherFallsBackOnShortBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<p class="pBody">teaser only</p>`))
	}))
	defer srv.Close()

	full := `<p class="pBody">` +
		strings.Repeat("bản đầy đủ của bài viết sau khi render bằng trình duyệt thật ", 12) + `</p>`
	headless := &fakeHeadless{body: full}

	f := NewFetcher(Default(), source.New(source.WithoutJitter()), headless)
	res, err := f.FetchArticle(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "headless", res.Method)
	assert.Equal(t, int32(1), atomic.LoadInt32(&headless.calls))
	assert.GreaterOrEqual(t, res.WordCount, MinWordCount)
}

func TestFetcherFallsBackOnBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	full := `<p class="pBody">` +
		strings.Repeat("bản đầy đủ của bài viết sau khi vượt chặn trình duyệt ", 12) + `</p>`
	headless := &fakeHeadless{body: full}

	f := NewFetcher(Default(), source.New(source.WithoutJitter()), headless)
	res, err := f.FetchArticle(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "headless", res.Method)
}

func TestFetcherTerminalWithoutFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(Default(), source.New(source.WithoutJitter()), &fakeHeadless{})
	_, err := f.FetchArticle(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, source.IsTerminal(err))
}

func TestArchiveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.sqlite")
	a, err := OpenArchive(path)
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	published := time.Date(2026, 2, 16, 1, 30, 0, 0, time.UTC)
	row := ArchiveRow{
		URL:           "https://vietstock.vn/2026/02/fpt-830-1.htm",
		Title:         "FPT tăng mạnh",
		PublishedAt:   &published,
		Text:          "nội dung",
		ContentSHA256: ContentSHA256("nội dung"),
		WordCount:     2,
		FetchMethod:   "http",
		FetchedAt:     time.Now(),
	}
	require.NoError(t, a.Put(ctx, row))
	// Re-put is an update, not a duplicate.
	row.Title = "FPT tăng rất mạnh"
	require.NoError(t, a.Put(ctx, row))

	got, found, err := a.Get(ctx, row.URL)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "FPT tăng rất mạnh", got.Title)
	require.NotNil(t, got.PublishedAt)
	assert.Equal(t, published, got.PublishedAt.UTC())

	n, err := a.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var walked int
	require.NoError(t, a.Walk(ctx, func(r ArchiveRow) error {
		walked++
		return nil
	}))
	assert.Equal(t, 1, walked)

	_, found, err = a.Get(ctx, "https://vietstock.vn/missing.htm")
	require.NoError(t, err)
	assert.False(t, found)
}
