package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/zeromicro/go-zero/rest"

	"vietmarket-api/internal/store"
	"vietmarket-api/internal/svc"
)

// Warehouse is the read surface the API needs from the store. Mutations are
// deliberately absent: this service never writes.
type Warehouse interface {
	Ping(ctx context.Context) error
	QueryCandles(ctx context.Context, ticker, tf string, beforeTs *int64, limit int) ([]store.Candle, error)
	QueryLatest(ctx context.Context, tf string, limit int) ([]store.Candle, error)
	QueryTopMovers(ctx context.Context, tf string, limit int) ([]store.TopMover, error)
	NewsLatest(ctx context.Context, cursor store.NewsCursor, limit int) ([]store.NewsRow, error)
	NewsByTicker(ctx context.Context, ticker string, cursor store.NewsCursor, limit int) ([]store.NewsRow, error)
	FundamentalsLatest(ctx context.Context, ticker, period, statement string, limit int) ([]store.FiLatestRow, error)
	Screener(ctx context.Context, q store.ScreenerQuery) ([]store.FiLatestRow, error)
	CorporateActionsLatest(ctx context.Context, ticker string, cursor store.CACursor, limit int) ([]store.CorporateAction, error)
	RepairQueueDepth(ctx context.Context) (map[string]int, error)
	MarketStats(ctx context.Context) ([]store.MarketStat, error)
	GetSymbolContext(ctx context.Context, ticker string) (store.SymbolContext, error)
	GetKV(ctx context.Context, key string) (string, error)
	LatestTs(ctx context.Context, ticker, tf string) (int64, error)
}

// Handlers carries the read API's dependencies.
type Handlers struct {
	wh    Warehouse
	cache *responseCache
	now   func() time.Time
}

// NewHandlers builds the handler set. cache may be nil.
func NewHandlers(wh Warehouse, cache *responseCache) *Handlers {
	return &Handlers{wh: wh, cache: cache, now: time.Now}
}

// RegisterHandlers attaches every route to the rest server.
func RegisterHandlers(server *rest.Server, ctx *svc.ServiceContext) {
	h := NewHandlers(ctx.Store, newResponseCache(ctx.Redis, ctx.Config.TTL))
	auth := apiKeyMiddleware(ctx.Config.ApiKey)

	routes := []rest.Route{
		{Method: http.MethodGet, Path: "/healthz", Handler: h.Healthz},
		{Method: http.MethodGet, Path: "/candles", Handler: h.Candles},
		{Method: http.MethodGet, Path: "/latest", Handler: h.Latest},
		{Method: http.MethodGet, Path: "/top-movers", Handler: h.TopMovers},
		{Method: http.MethodGet, Path: "/news/latest", Handler: h.NewsLatest},
		{Method: http.MethodGet, Path: "/news/by-ticker", Handler: h.NewsByTicker},
		{Method: http.MethodGet, Path: "/fundamentals/latest", Handler: h.FundamentalsLatest},
		{Method: http.MethodGet, Path: "/screener", Handler: h.Screener},
		{Method: http.MethodGet, Path: "/corporate-actions/latest", Handler: h.CorporateActionsLatest},
		{Method: http.MethodGet, Path: "/corporate-actions/by-ticker", Handler: h.CorporateActionsByTicker},
		{Method: http.MethodGet, Path: "/v1/analytics/overview", Handler: h.AnalyticsOverview},
		{Method: http.MethodGet, Path: "/v1/context/:ticker", Handler: h.SymbolContext},
		{Method: http.MethodGet, Path: "/v1/overall/health", Handler: h.OverallHealth},
	}
	for i := range routes {
		routes[i].Handler = auth(routes[i].Handler)
	}
	server.AddRoutes(routes)
}
