package handler

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest/httpx"
)

// Stable error codes surfaced to clients. Third-party payloads never leak
// through these.
const (
	errUnauthorized  = "unauthorized"
	errInvalidTicker = "invalid_ticker"
	errInvalidLimit  = "invalid_limit"
	errMissingParam  = "missing_param"
	errNotFound      = "not_found"
	errInternal      = "internal_error"
	errDBUnreachable = "db_unreachable"
)

var (
	tickerParamRE = regexp.MustCompile(`^[A-Z0-9._-]{1,10}$`)
	validTFs      = map[string]struct{}{"15m": {}, "1h": {}, "1d": {}}
)

type errorBody struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func respondOK(w http.ResponseWriter, r *http.Request, body any) {
	httpx.OkJsonCtx(r.Context(), w, body)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	httpx.WriteJsonCtx(r.Context(), w, status, errorBody{OK: false, Error: code, Message: message})
}

func respondInternal(w http.ResponseWriter, r *http.Request, err error) {
	logx.WithContext(r.Context()).Errorf("api: %s %s: %v", r.Method, r.URL.Path, err)
	respondError(w, r, http.StatusInternalServerError, errInternal, "")
}

// tickerParam validates and normalizes the ticker query parameter.
func tickerParam(r *http.Request, name string) (string, bool) {
	raw := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get(name)))
	if raw == "" || !tickerParamRE.MatchString(raw) {
		return "", false
	}
	return raw, true
}

// tfParam validates the tf query parameter.
func tfParam(r *http.Request) (string, bool) {
	tf := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("tf")))
	_, ok := validTFs[tf]
	return tf, ok
}

// limitParam parses limit with a default, bounded to [1, max]. ok is false
// for unparsable or out-of-range explicit values; they are not clamped.
func limitParam(r *http.Request, def, max int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > max {
		return 0, false
	}
	return n, true
}

// int64Param parses an optional int64 query parameter.
func int64Param(r *http.Request, name string) (*int64, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, false
	}
	return &n, true
}

// floatParam parses an optional float query parameter.
func floatParam(r *http.Request, name string) (*float64, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, false
	}
	return &f, true
}

func optionalString(r *http.Request, name string) *string {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil
	}
	return &raw
}
