package vnsource

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVCIBarsNormalizesSecondsAndGrid(t *testing.T) {
	payload := vciChartResponse{
		Ticker: "FPT",
		T:      []int64{1700006400, 1700092800},
		O:      []float64{94.0, 94.8},
		H:      []float64{95.5, 96.0},
		L:      []float64{93.2, 94.1},
		C:      []float64{94.8, 95.3},
		V:      []float64{1250000, 980000},
	}
	bars, err := parseVCIBars(payload, "1d")
	require.NoError(t, err)
	require.Len(t, bars, 2)

	step := StepMs["1d"]
	for _, b := range bars {
		assert.Zero(t, b.Ts%step, "ts must sit on the 1d grid")
		assert.Greater(t, b.Ts, int64(1e12), "ts must be milliseconds")
	}
	assert.Equal(t, 94.8, bars[0].C)
	require.NotNil(t, bars[0].V)
	assert.Equal(t, 1250000.0, *bars[0].V)
}

func TestParseVCIBarsDropsInvalidOHLC(t *testing.T) {
	payload := vciChartResponse{
		T: []int64{1700006400},
		O: []float64{94.0},
		H: []float64{90.0}, // high below open
		L: []float64{93.2},
		C: []float64{94.8},
	}
	bars, err := parseVCIBars(payload, "1d")
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestParseVCIBarsRejectsRaggedArrays(t *testing.T) {
	payload := vciChartResponse{T: []int64{1, 2}, O: []float64{1}, H: []float64{1, 2}, L: []float64{1, 2}, C: []float64{1, 2}}
	_, err := parseVCIBars(payload, "1d")
	assert.Error(t, err)
}

func TestAlignToGrid(t *testing.T) {
	step := StepMs["15m"]
	assert.Equal(t, int64(0), AlignToGrid(0, step)%step)
	assert.Equal(t, int64(1700000100000)-int64(1700000100000)%step, AlignToGrid(1700000100000, step))
	aligned := AlignToGrid(1700000100000, step)
	assert.Equal(t, aligned, AlignToGrid(aligned, step), "aligning is idempotent")
}

func TestExtractToken(t *testing.T) {
	quoted := `<form><input name="__RequestVerificationToken" type="hidden" value="abc123" /></form>`
	tok, err := ExtractToken(quoted)
	require.NoError(t, err)
	assert.Equal(t, "abc123", tok)

	unquoted := `<input name=__RequestVerificationToken type=hidden value=tok-456>`
	tok, err = ExtractToken(unquoted)
	require.NoError(t, err)
	assert.Equal(t, "tok-456", tok)

	_, err = ExtractToken(`<html><body>login page</body></html>`)
	assert.Error(t, err)
}

func TestParseDDMMYYYY(t *testing.T) {
	got := ParseDDMMYYYY("16/02/2026")
	require.NotNil(t, got)
	assert.Equal(t, "2026-02-16", *got)

	assert.Nil(t, ParseDDMMYYYY(""))
	assert.Nil(t, ParseDDMMYYYY("2026-02-16"))
	assert.Nil(t, ParseDDMMYYYY("31/13/2026"))
}

func TestParseEventsJSON(t *testing.T) {
	body := []byte(`[[{"Code":"fpt","Exchange":"hose","GDKHQDate":"10/03/2026","NDKCCDate":"11/03/2026","Time":"25/03/2026","Note":"Trả cổ tức đợt 2","Name":"Cổ tức bằng tiền"},{"Code":"VNINDEX","Name":"ignored"}],[[2]]]`)
	events, err := ParseEventsJSON(body, "https://finance.vietstock.vn/lich-su-kien.htm?page=1&tab=1&group=0",
		regexp.MustCompile(`^[A-Z0-9]{3,4}$`))
	require.NoError(t, err)
	require.Len(t, events, 1, "index rows filtered by universe regex")

	ev := events[0]
	assert.Equal(t, "FPT", ev.Ticker)
	assert.Equal(t, "HOSE", ev.Exchange)
	require.NotNil(t, ev.ExDate)
	assert.Equal(t, "2026-03-10", *ev.ExDate)
	require.NotNil(t, ev.PayDate)
	assert.Equal(t, "2026-03-25", *ev.PayDate)
	assert.Equal(t, "Cổ tức bằng tiền", ev.EventType)
}

func TestParseEventsJSONToleratesBOM(t *testing.T) {
	body := []byte("\xef\xbb\xbf[[],[[0]]]")
	events, err := ParseEventsJSON(body, "u", nil)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEventIDStable(t *testing.T) {
	ex := "2026-03-10"
	a := Event{Ticker: "FPT", Exchange: "HOSE", ExDate: &ex, Headline: "x", EventType: "div", SourceURL: "u"}
	b := Event{Ticker: "FPT", Exchange: "HOSE", ExDate: &ex, Headline: "x", EventType: "div", SourceURL: "u"}
	assert.Equal(t, a.ID(), b.ID())

	c := a
	c.Headline = "y"
	assert.NotEqual(t, a.ID(), c.ID())
	assert.Len(t, a.ID(), 32)
}

func TestParseConfigDefaultsAndOverrides(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader("timeout: 5s\nmax_attempts: 2\n"))
	require.NoError(t, err)
	assert.Equal(t, defaultVCIBaseURL, cfg.VCIBaseURL)
	assert.Equal(t, 2, cfg.MaxAttempts)
	assert.Equal(t, "5s", cfg.TimeoutRaw)
	assert.Equal(t, 5e9, float64(cfg.Timeout))
}

func TestParseConfigBadTimeout(t *testing.T) {
	_, err := ParseConfig(strings.NewReader("timeout: soon\n"))
	assert.Error(t, err)
}
