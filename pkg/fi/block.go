// Package fi ingests per-ticker financial-statement blocks: a fan-out of
// statement endpoints composed into one hashed document, change-detected
// against the last run, then normalized into metric point rows.
package fi

import (
	"context"
	"fmt"
	"net/url"

	"github.com/zeromicro/go-zero/core/mr"

	"vietmarket-api/pkg/source"
	"vietmarket-api/pkg/stablejson"
)

// Statement endpoints fetched per (ticker, period). The order is fixed so
// block documents stay comparable.
var blockEndpoints = []string{
	"periodSelect",
	"structureOverview",
	"aggCompareOverview",
	"is",
	"bs",
	"cf",
	"ratio",
}

// Block is one composed document for a (ticker, period) pair. Payloads keep
// their provider shape; normalization only reads the keys it understands.
type Block struct {
	Ticker   string         `json:"ticker"`
	Period   string         `json:"period"`
	Sections map[string]any `json:"sections"`
	// FallbackApplied notes a Y request served as Q for lack of a token.
	FallbackApplied bool `json:"fallback_applied,omitempty"`
}

// Hash returns the canonical-JSON SHA-256 of the block's identity and
// sections. Equal content hashes equal regardless of fetch order.
func (b *Block) Hash() (string, error) {
	return stablejson.Hash(map[string]any{
		"ticker":   b.Ticker,
		"period":   b.Period,
		"sections": b.Sections,
	})
}

// Client fetches statement blocks.
type Client struct {
	baseURL string
	token   string
	src     *source.Client
	// NoFallbackToQ disables the yearly→quarterly downgrade.
	NoFallbackToQ bool
}

// NewClient builds a fundamentals client. token may be empty; yearly data
// then falls back to quarterly unless disabled.
func NewClient(baseURL, token string, src *source.Client) *Client {
	return &Client{baseURL: baseURL, token: token, src: src}
}

// FetchBlock pulls every statement endpoint for (ticker, period) in
// parallel and composes the block.
func (c *Client) FetchBlock(ctx context.Context, ticker, period string) (*Block, error) {
	effective := period
	fallback := false
	if period == "Y" && c.token == "" {
		if c.NoFallbackToQ {
			return nil, fmt.Errorf("fi: yearly data requires a bearer token")
		}
		effective = "Q"
		fallback = true
	}

	type sectionResult struct {
		name    string
		payload any
	}

	results := make([]sectionResult, len(blockEndpoints))
	fns := make([]func() error, 0, len(blockEndpoints))
	for i, name := range blockEndpoints {
		i, name := i, name
		fns = append(fns, func() error {
			payload, err := c.fetchSection(ctx, ticker, effective, name)
			if err != nil {
				return fmt.Errorf("fi: %s %s %s: %w", ticker, effective, name, err)
			}
			results[i] = sectionResult{name: name, payload: payload}
			return nil
		})
	}
	if err := mr.Finish(fns...); err != nil {
		return nil, err
	}

	sections := make(map[string]any, len(results))
	for _, r := range results {
		sections[r.name] = r.payload
	}
	return &Block{Ticker: ticker, Period: effective, Sections: sections, FallbackApplied: fallback}, nil
}

func (c *Client) fetchSection(ctx context.Context, ticker, period, name string) (any, error) {
	q := url.Values{}
	q.Set("ticker", ticker)
	q.Set("period", period)
	endpoint := fmt.Sprintf("%s/fi/%s?%s", c.baseURL, name, q.Encode())

	opts := []source.CallOption{}
	if c.token != "" {
		opts = append(opts, source.CallBearer(c.token))
	}
	resp, err := c.src.Get(ctx, endpoint, opts...)
	if err != nil {
		return nil, err
	}
	var payload any
	if err := resp.JSON(&payload); err != nil {
		// Providers occasionally serve HTML error pages with status 200;
		// keep the raw text so the block still hashes deterministically.
		return map[string]any{"raw": resp.Text()}, nil
	}
	return payload, nil
}
