// Package linker extracts VN stock tickers from article titles and bodies.
// Matching is deterministic regex work over the uppercased text; no NLP.
package linker

import (
	"regexp"
	"sort"
	"strings"
)

// Match is one extracted ticker with the confidence of the strongest pattern
// that produced it.
type Match struct {
	Ticker     string  `json:"ticker"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
}

// Tokens that look like tickers but never are.
var stopwords = map[string]struct{}{
	"ETF": {}, "USD": {}, "VND": {}, "VNINDEX": {}, "HNX": {},
	"HOSE": {}, "UPCOM": {}, "CTCP": {}, "VNI": {},
}

var tickerShapeRE = regexp.MustCompile(`^[A-Z]{2,5}$`)

// Patterns are tried strongest-first; per ticker the highest confidence wins.
type pattern struct {
	re         *regexp.Regexp
	confidence float64
	method     string
}

var patterns = []pattern{
	{regexp.MustCompile(`\(([A-Z]{2,5})\)`), 0.95, "paren"},
	{regexp.MustCompile(`\b([A-Z]{2,5})\s*\((?:HOSE|HNX|UPCOM)\)`), 0.92, "exchange_paren"},
	{regexp.MustCompile(`\b(?:HOSE|HNX|UPCOM)[:\-]\s*([A-Z]{2,5})\b`), 0.92, "exchange_colon"},
	{regexp.MustCompile(`(?:CỔ\s+PHIẾU|MÃ\s+CHỨNG\s+KHOÁN|MÃ\s+CK|MÃ)\s+([A-Z]{2,5})\b`), 0.90, "keyword"},
	{regexp.MustCompile(`\b([A-Z]{2,5})\b`), 0.60, "token"},
}

// FromTitle extracts tickers from an article title. Methods are prefixed
// with "title_".
func FromTitle(text string, known map[string]struct{}) []Match {
	return extract(text, known, "title_")
}

// FromBody extracts tickers from article body text. Methods are prefixed
// with "body_".
func FromBody(text string, known map[string]struct{}) []Match {
	return extract(text, known, "body_")
}

// KnownSet builds a membership set from a ticker list.
func KnownSet(tickers []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			set[t] = struct{}{}
		}
	}
	return set
}

func extract(text string, known map[string]struct{}, prefix string) []Match {
	upper := strings.ToUpper(text)
	best := make(map[string]Match)

	for _, p := range patterns {
		for _, m := range p.re.FindAllStringSubmatch(upper, -1) {
			ticker := m[1]
			if !admissible(ticker, known) {
				continue
			}
			if prev, ok := best[ticker]; ok && prev.Confidence >= p.confidence {
				continue
			}
			best[ticker] = Match{Ticker: ticker, Confidence: p.confidence, Method: prefix + p.method}
		}
	}

	out := make([]Match, 0, len(best))
	for _, m := range best {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Ticker < out[j].Ticker
	})
	return out
}

func admissible(ticker string, known map[string]struct{}) bool {
	if !tickerShapeRE.MatchString(ticker) {
		return false
	}
	if _, stop := stopwords[ticker]; stop {
		return false
	}
	if known != nil {
		if _, ok := known[ticker]; !ok {
			return false
		}
	}
	return true
}
