package vnsource

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"vietmarket-api/pkg/source"
)

// Bar is one OHLCV observation from a provider. Ts is unix milliseconds.
type Bar struct {
	Ts int64
	O  float64
	H  float64
	L  float64
	C  float64
	V  *float64
}

// Timeframe grid steps.
var StepMs = map[string]int64{
	"1d":  24 * 60 * 60 * 1000,
	"1h":  60 * 60 * 1000,
	"15m": 15 * 60 * 1000,
}

// tf → VCI chart resolution.
var vciResolutions = map[string]string{
	"1d":  "1D",
	"1h":  "1H",
	"15m": "15m",
}

// VCIClient fetches candles from the public VCI chart endpoint.
type VCIClient struct {
	cfg *Config
	src *source.Client
}

// NewVCIClient wraps a source client with VCI specifics.
func NewVCIClient(cfg *Config, src *source.Client) *VCIClient {
	return &VCIClient{cfg: cfg, src: src}
}

// vciChartResponse mirrors the columnar payload the chart endpoint returns.
type vciChartResponse struct {
	Ticker string    `json:"ticker"`
	T      []int64   `json:"t"`
	O      []float64 `json:"o"`
	H      []float64 `json:"h"`
	L      []float64 `json:"l"`
	C      []float64 `json:"c"`
	V      []float64 `json:"v"`
}

// FetchCandles returns bars for [fromMs, toMs], ascending, at most countBack
// rows. Timestamps arrive as unix seconds and are normalized to ms and the
// tf grid.
func (c *VCIClient) FetchCandles(ctx context.Context, ticker, tf string, fromMs, toMs int64, countBack int) ([]Bar, error) {
	resolution, ok := vciResolutions[tf]
	if !ok {
		return nil, fmt.Errorf("vnsource: unsupported tf %q", tf)
	}

	q := url.Values{}
	q.Set("ticker", ticker)
	q.Set("resolution", resolution)
	q.Set("from", fmt.Sprint(fromMs/1000))
	q.Set("to", fmt.Sprint(toMs/1000))
	if countBack > 0 {
		q.Set("countBack", fmt.Sprint(countBack))
	}
	endpoint := c.cfg.VCIBaseURL + "/chart/OHLCChart/gap?" + q.Encode()

	opts := []source.CallOption{source.CallTimeout(c.cfg.Timeout)}
	if c.cfg.BearerToken != "" {
		opts = append(opts, source.CallBearer(c.cfg.BearerToken))
	}
	resp, err := c.src.Get(ctx, endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("vnsource: vci candles %s %s: %w", ticker, tf, err)
	}

	var payload vciChartResponse
	if err := resp.JSON(&payload); err != nil {
		return nil, err
	}
	return parseVCIBars(payload, tf)
}

func parseVCIBars(payload vciChartResponse, tf string) ([]Bar, error) {
	n := len(payload.T)
	if len(payload.O) != n || len(payload.H) != n || len(payload.L) != n || len(payload.C) != n {
		return nil, fmt.Errorf("vnsource: ragged vci payload (t=%d o=%d h=%d l=%d c=%d)",
			n, len(payload.O), len(payload.H), len(payload.L), len(payload.C))
	}
	step := StepMs[tf]
	out := make([]Bar, 0, n)
	for i := 0; i < n; i++ {
		ts := payload.T[i]
		if ts < 1e12 {
			ts *= 1000
		}
		ts = AlignToGrid(ts, step)
		bar := Bar{Ts: ts, O: payload.O[i], H: payload.H[i], L: payload.L[i], C: payload.C[i]}
		if i < len(payload.V) {
			v := payload.V[i]
			bar.V = &v
		}
		if !validBar(bar) {
			continue
		}
		out = append(out, bar)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ts < out[j].Ts })
	return out, nil
}

// AlignToGrid snaps a timestamp down to the tf grid.
func AlignToGrid(tsMs, stepMs int64) int64 {
	if stepMs <= 0 {
		return tsMs
	}
	return tsMs - tsMs%stepMs
}

// validBar drops rows violating l <= min(o,c) <= max(o,c) <= h, which the
// provider occasionally emits around auction prints.
func validBar(b Bar) bool {
	lo, hi := b.O, b.C
	if lo > hi {
		lo, hi = hi, lo
	}
	return b.L <= lo && hi <= b.H
}

// DateStr formats a ms timestamp as the provider's YYYY-MM-DD argument.
func DateStr(tsMs int64) string {
	return time.UnixMilli(tsMs).UTC().Format("2006-01-02")
}
