package handler

import (
	"fmt"
	"net/http"

	"vietmarket-api/internal/store"
)

const (
	maxCandleLimit     = 2000
	defaultCandleLimit = 500
	defaultLatestLimit = 100
	defaultMoversLimit = 50
)

// Healthz answers SELECT 1.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.wh.Ping(r.Context()); err != nil {
		respondError(w, r, http.StatusInternalServerError, errDBUnreachable, "")
		return
	}
	respondOK(w, r, map[string]any{"ok": true, "db": 1})
}

// Candles serves keyset-paginated bars newest-first.
func (h *Handlers) Candles(w http.ResponseWriter, r *http.Request) {
	ticker, ok := tickerParam(r, "ticker")
	if !ok {
		respondError(w, r, http.StatusBadRequest, errInvalidTicker, "")
		return
	}
	tf, ok := tfParam(r)
	if !ok {
		respondError(w, r, http.StatusBadRequest, errMissingParam, "tf must be one of 15m,1h,1d")
		return
	}
	limit, ok := limitParam(r, defaultCandleLimit, maxCandleLimit)
	if !ok {
		respondError(w, r, http.StatusBadRequest, errInvalidLimit, "")
		return
	}
	beforeTs, ok := int64Param(r, "beforeTs")
	if !ok {
		respondError(w, r, http.StatusBadRequest, errMissingParam, "beforeTs must be unix ms")
		return
	}

	rows, err := h.wh.QueryCandles(r.Context(), ticker, tf, beforeTs, limit)
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	respondOK(w, r, map[string]any{
		"ok": true, "ticker": ticker, "tf": tf, "count": len(rows), "rows": rows,
	})
}

// Latest serves snapshot rows for one tf.
func (h *Handlers) Latest(w http.ResponseWriter, r *http.Request) {
	tf, ok := tfParam(r)
	if !ok {
		respondError(w, r, http.StatusBadRequest, errMissingParam, "tf must be one of 15m,1h,1d")
		return
	}
	limit, ok := limitParam(r, defaultLatestLimit, maxCandleLimit)
	if !ok {
		respondError(w, r, http.StatusBadRequest, errInvalidLimit, "")
		return
	}

	key := fmt.Sprintf("vm:latest:%s:%d", tf, limit)
	var rows []store.Candle
	if !h.cache.get(r.Context(), key, &rows) {
		var err error
		rows, err = h.wh.QueryLatest(r.Context(), tf, limit)
		if err != nil {
			respondInternal(w, r, err)
			return
		}
		h.cache.set(r.Context(), key, rows, h.cache.shortTTL())
	}
	respondOK(w, r, map[string]any{"ok": true, "tf": tf, "count": len(rows), "rows": rows})
}

// TopMovers ranks snapshot rows by percent change against the previous bar.
func (h *Handlers) TopMovers(w http.ResponseWriter, r *http.Request) {
	tf, ok := tfParam(r)
	if !ok {
		respondError(w, r, http.StatusBadRequest, errMissingParam, "tf must be one of 15m,1h,1d")
		return
	}
	limit, ok := limitParam(r, defaultMoversLimit, maxCandleLimit)
	if !ok {
		respondError(w, r, http.StatusBadRequest, errInvalidLimit, "")
		return
	}

	key := fmt.Sprintf("vm:movers:%s:%d", tf, limit)
	var rows []store.TopMover
	if !h.cache.get(r.Context(), key, &rows) {
		var err error
		rows, err = h.wh.QueryTopMovers(r.Context(), tf, limit)
		if err != nil {
			respondInternal(w, r, err)
			return
		}
		h.cache.set(r.Context(), key, rows, h.cache.shortTTL())
	}
	respondOK(w, r, map[string]any{"ok": true, "tf": tf, "count": len(rows), "rows": rows})
}
