package handler

import (
	"net/http"
	"time"

	"vietmarket-api/internal/store"
)

const defaultNewsLimit = 50

// newsCursorFrom parses the beforePublishedAt / beforeUrl pair.
func newsCursorFrom(r *http.Request) (store.NewsCursor, bool) {
	var cursor store.NewsCursor
	if raw := optionalString(r, "beforePublishedAt"); raw != nil {
		t, err := time.Parse(time.RFC3339, *raw)
		if err != nil {
			return cursor, false
		}
		cursor.BeforePublishedAt = &t
		cursor.BeforeURL = optionalString(r, "beforeUrl")
	}
	return cursor, true
}

func newsNextCursor(rows []store.NewsRow) map[string]any {
	if len(rows) == 0 {
		return nil
	}
	last := rows[len(rows)-1]
	if last.PublishedAt == nil {
		return nil
	}
	return map[string]any{
		"beforePublishedAt": last.PublishedAt.UTC().Format(time.RFC3339),
		"beforeUrl":         last.URL,
	}
}

// NewsLatest serves fetched articles newest-first with snippets and linked
// tickers.
func (h *Handlers) NewsLatest(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(r, defaultNewsLimit, maxCandleLimit)
	if !ok {
		respondError(w, r, http.StatusBadRequest, errInvalidLimit, "")
		return
	}
	cursor, ok := newsCursorFrom(r)
	if !ok {
		respondError(w, r, http.StatusBadRequest, errMissingParam, "beforePublishedAt must be RFC3339")
		return
	}

	rows, err := h.wh.NewsLatest(r.Context(), cursor, limit)
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	body := map[string]any{"ok": true, "count": len(rows), "rows": rows}
	if next := newsNextCursor(rows); next != nil {
		body["nextCursor"] = next
	}
	respondOK(w, r, body)
}

// NewsByTicker restricts the news feed to one linked ticker.
func (h *Handlers) NewsByTicker(w http.ResponseWriter, r *http.Request) {
	ticker, ok := tickerParam(r, "ticker")
	if !ok {
		respondError(w, r, http.StatusBadRequest, errInvalidTicker, "")
		return
	}
	limit, ok := limitParam(r, defaultNewsLimit, maxCandleLimit)
	if !ok {
		respondError(w, r, http.StatusBadRequest, errInvalidLimit, "")
		return
	}
	cursor, ok := newsCursorFrom(r)
	if !ok {
		respondError(w, r, http.StatusBadRequest, errMissingParam, "beforePublishedAt must be RFC3339")
		return
	}

	rows, err := h.wh.NewsByTicker(r.Context(), ticker, cursor, limit)
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	body := map[string]any{"ok": true, "ticker": ticker, "count": len(rows), "rows": rows}
	if next := newsNextCursor(rows); next != nil {
		body["nextCursor"] = next
	}
	respondOK(w, r, body)
}
