// Package shard partitions the ticker universe deterministically across a
// fleet of workers and tracks per-shard resumable cursors.
package shard

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// tickerRE is the admission filter for universe entries. Tickers failing it
// are dropped at load time rather than poisoning every downstream fetch.
var tickerRE = regexp.MustCompile(`^[A-Z0-9._-]{2,10}$`)

// Indices appended to the universe when the worker opts in.
var MarketIndices = []string{"VNINDEX", "HNXINDEX", "UPCOMINDEX"}

// Of maps a ticker to a shard index. The function is pinned: the first four
// bytes of sha1(ticker) as a big-endian uint32, mod shardCount. Changing it
// reshuffles ownership across the whole fleet.
func Of(ticker string, shardCount int) int {
	if shardCount <= 1 {
		return 0
	}
	sum := sha1.Sum([]byte(ticker))
	return int(binary.BigEndian.Uint32(sum[:4]) % uint32(shardCount))
}

// ValidTicker reports whether a normalized ticker passes the admission regex.
func ValidTicker(ticker string) bool {
	return tickerRE.MatchString(ticker)
}

// Normalize upper-cases, dedupes, sorts, and filters raw ticker strings.
func Normalize(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || !ValidTicker(t) {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

type universeFile struct {
	Tickers []string `json:"tickers"`
}

// LoadUniverseFile reads a `{"tickers":[...]}` JSON file, or a whitespace
// separated plain list, and returns the normalized universe.
func LoadUniverseFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("shard: read universe %s: %w", path, err)
	}
	text := strings.TrimSpace(string(data))
	if strings.HasPrefix(text, "{") {
		var uf universeFile
		if err := json.Unmarshal(data, &uf); err != nil {
			return nil, fmt.Errorf("shard: parse universe %s: %w", path, err)
		}
		return Normalize(uf.Tickers), nil
	}
	return Normalize(strings.Fields(text)), nil
}

// WithIndices appends the broad market indices, keeping the list normalized.
func WithIndices(tickers []string) []string {
	return Normalize(append(append([]string{}, tickers...), MarketIndices...))
}

// Filter returns the subset of the universe owned by shardIndex, preserving
// the universe order.
func Filter(universe []string, shardCount, shardIndex int) []string {
	out := make([]string, 0, len(universe)/max(shardCount, 1)+1)
	for _, t := range universe {
		if Of(t, shardCount) == shardIndex {
			out = append(out, t)
		}
	}
	return out
}

// SelectBatch returns up to batchSize tickers starting at nextIndex, wrapping
// around the shard list. It returns the batch and the advanced cursor index.
func SelectBatch(tickers []string, nextIndex, batchSize int) ([]string, int) {
	n := len(tickers)
	if n == 0 || batchSize <= 0 {
		return nil, 0
	}
	if nextIndex < 0 || nextIndex >= n {
		nextIndex = 0
	}
	if batchSize > n {
		batchSize = n
	}
	batch := make([]string, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		batch = append(batch, tickers[(nextIndex+i)%n])
	}
	return batch, (nextIndex + batchSize) % n
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
