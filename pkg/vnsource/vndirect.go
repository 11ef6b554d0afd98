package vnsource

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"vietmarket-api/pkg/source"
)

// SymbolInfo is one universe entry from the finfo API.
type SymbolInfo struct {
	Ticker   string
	Name     *string
	Exchange *string
	Active   *bool
}

type vndirectStocksResponse struct {
	Data []map[string]any `json:"data"`
}

// VNDirectClient pulls the full (active + delisted) symbol list.
type VNDirectClient struct {
	cfg *Config
	src *source.Client
}

// NewVNDirectClient wraps a source client with finfo specifics.
func NewVNDirectClient(cfg *Config, src *source.Client) *VNDirectClient {
	return &VNDirectClient{cfg: cfg, src: src}
}

// FetchAllSymbols pages through the finfo stocks endpoint until a short page.
func (c *VNDirectClient) FetchAllSymbols(ctx context.Context, floors []string, pageSize, maxPages int) ([]SymbolInfo, error) {
	if len(floors) == 0 {
		floors = []string{"HOSE", "HNX", "UPCOM"}
	}
	if pageSize <= 0 {
		pageSize = 500
	}
	if maxPages <= 0 {
		maxPages = 200
	}

	query := "type:stock~floor:" + strings.Join(floors, ",")
	var out []SymbolInfo
	for page := 1; page <= maxPages; page++ {
		q := url.Values{}
		q.Set("q", query)
		q.Set("size", fmt.Sprint(pageSize))
		q.Set("page", fmt.Sprint(page))
		endpoint := c.cfg.VNDirectBaseURL + "/v4/stocks?" + q.Encode()

		resp, err := c.src.Get(ctx, endpoint, source.CallTimeout(c.cfg.Timeout))
		if err != nil {
			return nil, fmt.Errorf("vnsource: vndirect stocks page %d: %w", page, err)
		}
		var payload vndirectStocksResponse
		if err := resp.JSON(&payload); err != nil {
			return nil, err
		}
		if len(payload.Data) == 0 {
			break
		}
		for _, item := range payload.Data {
			if info, ok := parseSymbolInfo(item); ok {
				out = append(out, info)
			}
		}
		if len(payload.Data) < pageSize {
			break
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("vnsource: vndirect returned 0 symbols")
	}
	return out, nil
}

func parseSymbolInfo(item map[string]any) (SymbolInfo, bool) {
	ticker := strings.ToUpper(strings.TrimSpace(stringField(item, "code", "ticker")))
	if ticker == "" {
		return SymbolInfo{}, false
	}
	info := SymbolInfo{Ticker: ticker}
	if name := stringField(item, "companyName", "name", "shortName"); name != "" {
		info.Name = &name
	}
	if exch := strings.ToUpper(stringField(item, "floor", "exchange")); exch != "" {
		info.Exchange = &exch
	}
	info.Active = statusToActive(stringField(item, "status", "active"))
	return info, true
}

func statusToActive(s string) *bool {
	t := true
	f := false
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "listed", "trading", "active":
		return &t
	case "delisted", "inactive", "suspended", "halted":
		return &f
	default:
		return nil
	}
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
