package handler

import (
	"net/http"

	"vietmarket-api/internal/store"
)

const defaultCALimit = 50

func caCursorFrom(r *http.Request) store.CACursor {
	return store.CACursor{
		BeforeExDate: optionalString(r, "beforeExDate"),
		BeforeID:     optionalString(r, "beforeId"),
	}
}

func caNextCursor(rows []store.CorporateAction) map[string]any {
	if len(rows) == 0 {
		return nil
	}
	last := rows[len(rows)-1]
	if last.ExDate == nil {
		return nil
	}
	return map[string]any{"beforeExDate": *last.ExDate, "beforeId": last.ID}
}

// CorporateActionsLatest pages the event calendar by (ex_date DESC, id DESC).
func (h *Handlers) CorporateActionsLatest(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(r, defaultCALimit, maxCandleLimit)
	if !ok {
		respondError(w, r, http.StatusBadRequest, errInvalidLimit, "")
		return
	}

	rows, err := h.wh.CorporateActionsLatest(r.Context(), "", caCursorFrom(r), limit)
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	body := map[string]any{"ok": true, "count": len(rows), "rows": rows}
	if next := caNextCursor(rows); next != nil {
		body["nextCursor"] = next
	}
	respondOK(w, r, body)
}

// CorporateActionsByTicker restricts the calendar to one ticker.
func (h *Handlers) CorporateActionsByTicker(w http.ResponseWriter, r *http.Request) {
	ticker, ok := tickerParam(r, "ticker")
	if !ok {
		respondError(w, r, http.StatusBadRequest, errInvalidTicker, "")
		return
	}
	limit, ok := limitParam(r, defaultCALimit, maxCandleLimit)
	if !ok {
		respondError(w, r, http.StatusBadRequest, errInvalidLimit, "")
		return
	}

	rows, err := h.wh.CorporateActionsLatest(r.Context(), ticker, caCursorFrom(r), limit)
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	body := map[string]any{"ok": true, "ticker": ticker, "count": len(rows), "rows": rows}
	if next := caNextCursor(rows); next != nil {
		body["nextCursor"] = next
	}
	respondOK(w, r, body)
}
