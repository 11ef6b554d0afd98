package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/rest/pathvar"

	"vietmarket-api/internal/store"
	"vietmarket-api/pkg/freshness"
)

// Candle data older than this is flagged stale on the health surface.
const candleFreshnessWindow = 2 * time.Hour

// AnalyticsOverview composes the market-stats KPI block.
func (h *Handlers) AnalyticsOverview(w http.ResponseWriter, r *http.Request) {
	key := "vm:overview"
	var stats []store.MarketStat
	if !h.cache.get(r.Context(), key, &stats) {
		var err error
		stats, err = h.wh.MarketStats(r.Context())
		if err != nil {
			respondInternal(w, r, err)
			return
		}
		h.cache.set(r.Context(), key, stats, h.cache.mediumTTL())
	}

	byMetric := make(map[string]store.MarketStat, len(stats))
	for _, s := range stats {
		byMetric[s.Metric] = s
	}
	respondOK(w, r, map[string]any{"ok": true, "count": len(stats), "stats": byMetric})
}

// SymbolContext serves the per-ticker composed dashboard row.
func (h *Handlers) SymbolContext(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(strings.TrimSpace(pathvar.Vars(r)["ticker"]))
	if !tickerParamRE.MatchString(ticker) {
		respondError(w, r, http.StatusBadRequest, errInvalidTicker, "")
		return
	}

	ctxRow, err := h.wh.GetSymbolContext(r.Context(), ticker)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, errNotFound, "")
			return
		}
		respondInternal(w, r, err)
		return
	}
	respondOK(w, r, map[string]any{"ok": true, "context": ctxRow})
}

// OverallHealth reports pipeline liveness: repair-queue depth, candle
// frontier freshness, and the backfill flag.
func (h *Handlers) OverallHealth(w http.ResponseWriter, r *http.Request) {
	depth, err := h.wh.RepairQueueDepth(r.Context())
	if err != nil {
		respondInternal(w, r, err)
		return
	}

	now := h.now()
	candleHealth := freshness.Result{OK: false, Reason: freshness.ReasonMissingTimestamp}
	if stats, err := h.wh.MarketStats(r.Context()); err == nil {
		for _, s := range stats {
			if s.Metric == "candles_max_ts" && s.ValueNumeric != nil {
				last := time.UnixMilli(int64(*s.ValueNumeric))
				candleHealth = freshness.Evaluate(now, &last, candleFreshnessWindow)
			}
		}
	}

	backfillDone := false
	if v, err := h.wh.GetKV(r.Context(), store.KVBackfillDone); err == nil && v == "1" {
		backfillDone = true
	}

	respondOK(w, r, map[string]any{
		"ok":            true,
		"repair_queue":  depth,
		"candles":       candleHealth,
		"backfill_done": backfillDone,
		"checked_at":    now.UTC().Format(time.RFC3339),
	})
}
