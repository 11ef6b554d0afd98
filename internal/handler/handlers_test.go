package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/rest/pathvar"

	"vietmarket-api/internal/store"
)

func requestWithVars(r *http.Request, vars map[string]string) *http.Request {
	return pathvar.WithVars(r, vars)
}

// fakeWarehouse serves canned data so handler behavior (auth, validation,
// keyset paging, envelopes) is testable without Postgres.
type fakeWarehouse struct {
	candles map[string][]store.Candle // key ticker|tf, ts desc
	movers  []store.TopMover
	news    []store.NewsRow
	fi      []store.FiLatestRow
	events  []store.CorporateAction
	stats   []store.MarketStat
	depth   map[string]int
	kv      map[string]string
	pingErr error
}

func (f *fakeWarehouse) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeWarehouse) QueryCandles(ctx context.Context, ticker, tf string, beforeTs *int64, limit int) ([]store.Candle, error) {
	var out []store.Candle
	for _, c := range f.candles[ticker+"|"+tf] {
		if beforeTs != nil && c.Ts >= *beforeTs {
			continue
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeWarehouse) QueryLatest(ctx context.Context, tf string, limit int) ([]store.Candle, error) {
	var out []store.Candle
	for key, rows := range f.candles {
		if len(rows) > 0 && key[len(key)-len(tf):] == tf {
			out = append(out, rows[0])
		}
	}
	return out, nil
}

func (f *fakeWarehouse) QueryTopMovers(ctx context.Context, tf string, limit int) ([]store.TopMover, error) {
	return f.movers, nil
}

func (f *fakeWarehouse) NewsLatest(ctx context.Context, cursor store.NewsCursor, limit int) ([]store.NewsRow, error) {
	var out []store.NewsRow
	for _, n := range f.news {
		if cursor.BeforePublishedAt != nil && n.PublishedAt != nil && !n.PublishedAt.Before(*cursor.BeforePublishedAt) {
			continue
		}
		out = append(out, n)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeWarehouse) NewsByTicker(ctx context.Context, ticker string, cursor store.NewsCursor, limit int) ([]store.NewsRow, error) {
	var out []store.NewsRow
	for _, n := range f.news {
		for _, t := range n.Tickers {
			if t == ticker {
				out = append(out, n)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeWarehouse) FundamentalsLatest(ctx context.Context, ticker, period, statement string, limit int) ([]store.FiLatestRow, error) {
	return f.fi, nil
}

func (f *fakeWarehouse) Screener(ctx context.Context, q store.ScreenerQuery) ([]store.FiLatestRow, error) {
	return f.fi, nil
}

func (f *fakeWarehouse) CorporateActionsLatest(ctx context.Context, ticker string, cursor store.CACursor, limit int) ([]store.CorporateAction, error) {
	return f.events, nil
}

func (f *fakeWarehouse) RepairQueueDepth(ctx context.Context) (map[string]int, error) {
	return f.depth, nil
}

func (f *fakeWarehouse) MarketStats(ctx context.Context) ([]store.MarketStat, error) {
	return f.stats, nil
}

func (f *fakeWarehouse) GetSymbolContext(ctx context.Context, ticker string) (store.SymbolContext, error) {
	if ticker == "FPT" {
		return store.SymbolContext{Ticker: "FPT", ArticleCount7d: 3}, nil
	}
	return store.SymbolContext{}, store.ErrNotFound
}

func (f *fakeWarehouse) GetKV(ctx context.Context, key string) (string, error) {
	if v, ok := f.kv[key]; ok {
		return v, nil
	}
	return "", store.ErrNotFound
}

func (f *fakeWarehouse) LatestTs(ctx context.Context, ticker, tf string) (int64, error) {
	rows := f.candles[ticker+"|"+tf]
	if len(rows) == 0 {
		return 0, store.ErrNotFound
	}
	return rows[0].Ts, nil
}

func seededWarehouse() *fakeWarehouse {
	return &fakeWarehouse{
		candles: map[string][]store.Candle{
			"FPT|1d": {
				{Ticker: "FPT", TF: "1d", Ts: 3, O: 3, H: 3, L: 3, C: 3},
				{Ticker: "FPT", TF: "1d", Ts: 2, O: 2, H: 2, L: 2, C: 2},
				{Ticker: "FPT", TF: "1d", Ts: 1, O: 1, H: 1, L: 1, C: 1},
			},
		},
		depth: map[string]int{"queued": 2},
		kv:    map[string]string{store.KVBackfillDone: "1"},
	}
}

func serve(h *Handlers, apiKey string, handlerFn http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	apiKeyMiddleware(apiKey)(handlerFn)(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAuthRejectsMissingKey(t *testing.T) {
	h := NewHandlers(seededWarehouse(), nil)
	req := httptest.NewRequest(http.MethodGet, "/candles?ticker=FPT&tf=1d", nil)

	w := serve(h, "secret", h.Candles, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "unauthorized", body["error"])
}

func TestAuthRejectsWrongKey(t *testing.T) {
	h := NewHandlers(seededWarehouse(), nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("x-api-key", "nope")

	w := serve(h, "secret", h.Healthz, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRejectsWhenNoKeyConfigured(t *testing.T) {
	h := NewHandlers(seededWarehouse(), nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("x-api-key", "anything")

	w := serve(h, "", h.Healthz, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "missing server key must fail closed")
}

func authedReq(target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("x-api-key", "secret")
	return req
}

func TestHealthz(t *testing.T) {
	h := NewHandlers(seededWarehouse(), nil)
	w := serve(h, "secret", h.Healthz, authedReq("/healthz"))
	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(1), body["db"])
}

func TestCandlesKeysetPaging(t *testing.T) {
	h := NewHandlers(seededWarehouse(), nil)

	w := serve(h, "secret", h.Candles, authedReq("/candles?ticker=FPT&tf=1d&limit=2"))
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	rows := body["rows"].([]any)
	require.Len(t, rows, 2)
	assert.Equal(t, float64(3), rows[0].(map[string]any)["ts"])
	assert.Equal(t, float64(2), rows[1].(map[string]any)["ts"])

	w = serve(h, "secret", h.Candles, authedReq("/candles?ticker=FPT&tf=1d&limit=2&beforeTs=2"))
	body = decodeBody(t, w)
	rows = body["rows"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, float64(1), rows[0].(map[string]any)["ts"])

	w = serve(h, "secret", h.Candles, authedReq("/candles?ticker=FPT&tf=1d&limit=2&beforeTs=1"))
	body = decodeBody(t, w)
	assert.Equal(t, float64(0), body["count"])
}

func TestCandlesValidation(t *testing.T) {
	h := NewHandlers(seededWarehouse(), nil)

	w := serve(h, "secret", h.Candles, authedReq("/candles?ticker=bad%20ticker&tf=1d"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_ticker", decodeBody(t, w)["error"])

	w = serve(h, "secret", h.Candles, authedReq("/candles?ticker=FPT&tf=2d"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(h, "secret", h.Candles, authedReq("/candles?ticker=FPT&tf=1d&limit=5000"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_limit", decodeBody(t, w)["error"])

	w = serve(h, "secret", h.Candles, authedReq("/candles?ticker=FPT&tf=1d&limit=0"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTickerParamLowercaseNormalized(t *testing.T) {
	h := NewHandlers(seededWarehouse(), nil)
	w := serve(h, "secret", h.Candles, authedReq("/candles?ticker=fpt&tf=1d"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "FPT", decodeBody(t, w)["ticker"])
}

func TestNewsLatestEnvelopeAndCursor(t *testing.T) {
	published := time.Date(2026, 2, 16, 1, 30, 0, 0, time.UTC)
	wh := seededWarehouse()
	wh.news = []store.NewsRow{
		{URL: "https://vietstock.vn/2026/02/a.htm", Title: "A", Source: "rss",
			PublishedAt: &published, Snippet: "snippet a", Tickers: pq.StringArray{"FPT"}},
	}
	h := NewHandlers(wh, nil)

	w := serve(h, "secret", h.NewsLatest, authedReq("/news/latest"))
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["ok"])
	require.Contains(t, body, "nextCursor")
	next := body["nextCursor"].(map[string]any)
	assert.Equal(t, "2026-02-16T01:30:00Z", next["beforePublishedAt"])
	assert.Equal(t, "https://vietstock.vn/2026/02/a.htm", next["beforeUrl"])
}

func TestNewsLatestBadCursor(t *testing.T) {
	h := NewHandlers(seededWarehouse(), nil)
	w := serve(h, "secret", h.NewsLatest, authedReq("/news/latest?beforePublishedAt=yesterday"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFundamentalsDefaultsPeriodQ(t *testing.T) {
	h := NewHandlers(seededWarehouse(), nil)
	w := serve(h, "secret", h.FundamentalsLatest, authedReq("/fundamentals/latest?ticker=FPT"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Q", decodeBody(t, w)["period"])
}

func TestScreenerRequiresMetric(t *testing.T) {
	h := NewHandlers(seededWarehouse(), nil)
	w := serve(h, "secret", h.Screener, authedReq("/screener"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "missing_param", decodeBody(t, w)["error"])
}

func TestSymbolContextNotFound(t *testing.T) {
	h := NewHandlers(seededWarehouse(), nil)
	req := authedReq("/v1/context/ZZZ")
	req = requestWithVars(req, map[string]string{"ticker": "ZZZ"})
	w := serve(h, "secret", h.SymbolContext, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeBody(t, w)["error"])
}

func TestOverallHealth(t *testing.T) {
	wh := seededWarehouse()
	ts := float64(time.Now().Add(-10 * time.Minute).UnixMilli())
	wh.stats = []store.MarketStat{{Metric: "candles_max_ts", ValueNumeric: &ts}}
	h := NewHandlers(wh, nil)

	w := serve(h, "secret", h.OverallHealth, authedReq("/v1/overall/health"))
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, true, body["backfill_done"])
	queue := body["repair_queue"].(map[string]any)
	assert.Equal(t, float64(2), queue["queued"])
	candles := body["candles"].(map[string]any)
	assert.Equal(t, true, candles["ok"])
	assert.Equal(t, "fresh", candles["reason"])
}
