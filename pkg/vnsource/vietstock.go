package vnsource

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"vietmarket-api/pkg/source"
)

// Event is one corporate-action calendar row.
type Event struct {
	Ticker     string
	Exchange   string
	ExDate     *string // YYYY-MM-DD
	RecordDate *string
	PayDate    *string
	Headline   string
	EventType  string
	SourceURL  string
}

// ID is a stable md5 over the key fields so re-ingesting a page never
// duplicates rows.
func (e Event) ID() string {
	h := md5.New()
	for _, part := range []string{
		e.Ticker, e.Exchange, deref(e.ExDate), deref(e.RecordDate), deref(e.PayDate),
		e.Headline, e.EventType, e.SourceURL,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0x1f})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// The events table is rendered by JS; the data endpoint needs the
// anti-forgery token scraped from the UI page, with the same session cookies.
var tokenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`<input[^>]*\bname=['"]?__RequestVerificationToken['"]?[^>]*\bvalue=['"]([^'"]+)['"]`),
	regexp.MustCompile(`<input[^>]*\bname=['"]?__RequestVerificationToken['"]?[^>]*\bvalue=([^\s>]+)`),
}

// ExtractToken pulls the anti-forgery token out of the calendar UI HTML.
// Vietstock markup is unstable and sometimes uses unquoted attributes.
func ExtractToken(html string) (string, error) {
	for _, re := range tokenPatterns {
		if m := re.FindStringSubmatch(html); m != nil {
			return strings.TrimSpace(m[1]), nil
		}
	}
	return "", fmt.Errorf("vnsource: __RequestVerificationToken not found")
}

// ParseDDMMYYYY parses Vietstock's dd/mm/yyyy dates into YYYY-MM-DD.
func ParseDDMMYYYY(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse("02/01/2006", s)
	if err != nil {
		return nil
	}
	out := t.Format("2006-01-02")
	return &out
}

// EventsQuery selects a calendar slice.
type EventsQuery struct {
	EventTypeID int
	ChannelID   int
	Page        int
	PageSize    int
	FromDate    string // dd/mm/yyyy
	ToDate      string
}

// VietstockClient fetches the corporate-action calendar.
type VietstockClient struct {
	cfg *Config
	src *source.Client
}

// NewVietstockClient wraps a source client with Vietstock specifics.
func NewVietstockClient(cfg *Config, src *source.Client) *VietstockClient {
	return &VietstockClient{cfg: cfg, src: src}
}

// FetchToken GETs the UI page and extracts the anti-forgery token.
func (c *VietstockClient) FetchToken(ctx context.Context) (string, error) {
	endpoint := c.cfg.VietstockBaseURL + "/lich-su-kien.htm?page=1"
	resp, err := c.src.Get(ctx, endpoint,
		source.CallTimeout(c.cfg.Timeout),
		source.CallHeader("Accept", "text/html,application/xhtml+xml"))
	if err != nil {
		return "", fmt.Errorf("vnsource: fetch calendar ui: %w", err)
	}
	return ExtractToken(resp.Text())
}

// FetchEvents POSTs one page of the calendar and parses the rows.
func (c *VietstockClient) FetchEvents(ctx context.Context, token string, q EventsQuery, universeRE *regexp.Regexp) ([]Event, error) {
	form := url.Values{}
	form.Set("eventTypeID", fmt.Sprint(q.EventTypeID))
	form.Set("channelID", fmt.Sprint(q.ChannelID))
	form.Set("code", "")
	form.Set("catID", "")
	form.Set("fDate", q.FromDate)
	form.Set("tDate", q.ToDate)
	form.Set("page", fmt.Sprint(q.Page))
	form.Set("pageSize", fmt.Sprint(q.PageSize))
	form.Set("orderBy", "Date1")
	form.Set("orderDir", "DESC")
	form.Set("__RequestVerificationToken", token)

	endpoint := c.cfg.VietstockBaseURL + "/data/eventstypedata"
	resp, err := c.src.PostForm(ctx, endpoint, form,
		source.CallTimeout(c.cfg.Timeout),
		source.CallHeader("Accept", "application/json, text/javascript, */*; q=0.01"),
		source.CallHeader("X-Requested-With", "XMLHttpRequest"),
		source.CallHeader("Referer", c.cfg.VietstockBaseURL+"/lich-su-kien.htm?page=1"))
	if err != nil {
		return nil, fmt.Errorf("vnsource: fetch events page %d: %w", q.Page, err)
	}

	sourceURL := fmt.Sprintf("%s/lich-su-kien.htm?page=1&tab=%d&group=%d",
		c.cfg.VietstockBaseURL, q.EventTypeID, q.ChannelID)
	return ParseEventsJSON(resp.Body, sourceURL, universeRE)
}

// ParseEventsJSON decodes the `[rows, [[totalCount]]]` payload.
func ParseEventsJSON(body []byte, sourceURL string, universeRE *regexp.Regexp) ([]Event, error) {
	body = []byte(strings.TrimPrefix(string(body), "\xef\xbb\xbf"))
	var outer []json.RawMessage
	if err := json.Unmarshal(body, &outer); err != nil {
		return nil, fmt.Errorf("vnsource: parse events json: %w (body=%s)", err, snippet(body))
	}
	if len(outer) == 0 {
		return nil, nil
	}
	var rows []map[string]any
	if err := json.Unmarshal(outer[0], &rows); err != nil {
		return nil, fmt.Errorf("vnsource: parse events rows: %w", err)
	}

	out := make([]Event, 0, len(rows))
	for _, it := range rows {
		ticker := strings.ToUpper(strings.TrimSpace(stringField(it, "Code")))
		if universeRE != nil && !universeRE.MatchString(ticker) {
			continue
		}
		ev := Event{
			Ticker:    ticker,
			Exchange:  strings.ToUpper(stringField(it, "Exchange")),
			Headline:  stringField(it, "Note"),
			EventType: stringField(it, "Name"),
			SourceURL: sourceURL,
		}
		ev.ExDate = ParseDDMMYYYY(stringField(it, "GDKHQDate"))
		ev.RecordDate = ParseDDMMYYYY(stringField(it, "NDKCCDate"))
		ev.PayDate = ParseDDMMYYYY(stringField(it, "Time"))
		out = append(out, ev)
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 300 {
		s = s[:300] + "…"
	}
	return s
}
