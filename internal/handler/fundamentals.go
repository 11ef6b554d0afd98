package handler

import (
	"net/http"
	"strings"

	"vietmarket-api/internal/store"
)

const (
	defaultFundamentalsLimit = 500
	defaultScreenerLimit     = 100
)

var validStatements = map[string]struct{}{
	"is": {}, "bs": {}, "cf": {}, "ratio": {}, "kpi": {},
}

func periodParam(r *http.Request) (string, bool) {
	period := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("period")))
	if period == "" {
		return "Q", true
	}
	if period != "Q" && period != "Y" {
		return "", false
	}
	return period, true
}

func statementParam(r *http.Request) (string, bool) {
	statement := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("statement")))
	if statement == "" {
		return "", true
	}
	_, ok := validStatements[statement]
	return statement, ok
}

// FundamentalsLatest serves the latest-by-metric view for one ticker.
func (h *Handlers) FundamentalsLatest(w http.ResponseWriter, r *http.Request) {
	ticker, ok := tickerParam(r, "ticker")
	if !ok {
		respondError(w, r, http.StatusBadRequest, errInvalidTicker, "")
		return
	}
	period, ok := periodParam(r)
	if !ok {
		respondError(w, r, http.StatusBadRequest, errMissingParam, "period must be Q or Y")
		return
	}
	statement, ok := statementParam(r)
	if !ok {
		respondError(w, r, http.StatusBadRequest, errMissingParam, "statement must be one of is,bs,cf,ratio,kpi")
		return
	}
	limit, ok := limitParam(r, defaultFundamentalsLimit, maxCandleLimit)
	if !ok {
		respondError(w, r, http.StatusBadRequest, errInvalidLimit, "")
		return
	}

	rows, err := h.wh.FundamentalsLatest(r.Context(), ticker, period, statement, limit)
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	respondOK(w, r, map[string]any{
		"ok": true, "ticker": ticker, "period": period, "statement": statement,
		"count": len(rows), "rows": rows,
	})
}

// Screener filters fi_latest on numeric bounds for one metric.
func (h *Handlers) Screener(w http.ResponseWriter, r *http.Request) {
	metric := strings.TrimSpace(r.URL.Query().Get("metric"))
	if metric == "" {
		respondError(w, r, http.StatusBadRequest, errMissingParam, "metric is required")
		return
	}
	period, ok := periodParam(r)
	if !ok {
		respondError(w, r, http.StatusBadRequest, errMissingParam, "period must be Q or Y")
		return
	}
	statement, ok := statementParam(r)
	if !ok {
		respondError(w, r, http.StatusBadRequest, errMissingParam, "statement must be one of is,bs,cf,ratio,kpi")
		return
	}
	limit, ok := limitParam(r, defaultScreenerLimit, maxCandleLimit)
	if !ok {
		respondError(w, r, http.StatusBadRequest, errInvalidLimit, "")
		return
	}
	min, ok := floatParam(r, "min")
	if !ok {
		respondError(w, r, http.StatusBadRequest, errMissingParam, "min must be numeric")
		return
	}
	max, ok := floatParam(r, "max")
	if !ok {
		respondError(w, r, http.StatusBadRequest, errMissingParam, "max must be numeric")
		return
	}

	rows, err := h.wh.Screener(r.Context(), store.ScreenerQuery{
		Metric: metric, Period: period, Statement: statement,
		Min: min, Max: max, Limit: limit,
	})
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	respondOK(w, r, map[string]any{
		"ok": true, "metric": metric, "period": period, "statement": statement,
		"count": len(rows), "rows": rows,
	})
}
