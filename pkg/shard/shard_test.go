package shard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Pinned vectors: first 4 bytes of sha1(ticker) as big-endian uint32.
// A change here means the whole fleet reshuffles shard ownership.
func TestOfPinnedVectors(t *testing.T) {
	tests := []struct {
		ticker string
		count  int
		want   int
	}{
		{"FPT", 4, 0},
		{"VCB", 4, 0},
		{"HPG", 4, 3},
		{"VNM", 4, 1},
		{"HPG", 8, 7},
		{"VCB", 8, 4},
		{"VNINDEX", 8, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Of(tt.ticker, tt.count), "Of(%s,%d)", tt.ticker, tt.count)
	}
}

func TestOfIsStableAcrossCalls(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.Equal(t, Of("AAA", 16), Of("AAA", 16))
	}
}

func TestOfSingleShard(t *testing.T) {
	assert.Equal(t, 0, Of("FPT", 1))
	assert.Equal(t, 0, Of("FPT", 0))
}

func TestNormalize(t *testing.T) {
	out := Normalize([]string{" fpt ", "VCB", "fpt", "x", "BAD TICKER", "", "hpg"})
	assert.Equal(t, []string{"FPT", "HPG", "VCB"}, out)
}

func TestFilterPartitionsUniverse(t *testing.T) {
	universe := Normalize([]string{"FPT", "VCB", "HPG", "VNM", "AAA", "MWG", "VIC", "SSI"})
	total := 0
	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		part := Filter(universe, 4, i)
		total += len(part)
		for _, tk := range part {
			assert.False(t, seen[tk], "ticker %s assigned twice", tk)
			seen[tk] = true
		}
	}
	assert.Equal(t, len(universe), total)
}

func TestSelectBatchWrapsAround(t *testing.T) {
	list := []string{"AAA", "BBB", "CCC", "DDD", "EEE"}

	batch, next := SelectBatch(list, 3, 3)
	assert.Equal(t, []string{"DDD", "EEE", "AAA"}, batch)
	assert.Equal(t, 1, next)

	batch, next = SelectBatch(list, 0, 10)
	assert.Equal(t, list, batch)
	assert.Equal(t, 0, next)
}

func TestSelectBatchEmpty(t *testing.T) {
	batch, next := SelectBatch(nil, 4, 2)
	assert.Nil(t, batch)
	assert.Equal(t, 0, next)
}

func TestLoadUniverseFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "universe.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tickers":["fpt","VCB","bad ticker","VCB"]}`), 0o644))

	got, err := LoadUniverseFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"FPT", "VCB"}, got)
}

func TestLoadUniverseFilePlainList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "universe.txt")
	require.NoError(t, os.WriteFile(path, []byte("FPT\nVCB HPG\n"), 0o644))

	got, err := LoadUniverseFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"FPT", "HPG", "VCB"}, got)
}

func TestWithIndices(t *testing.T) {
	got := WithIndices([]string{"FPT"})
	assert.Contains(t, got, "VNINDEX")
	assert.Contains(t, got, "HNXINDEX")
	assert.Contains(t, got, "UPCOMINDEX")
	assert.Contains(t, got, "FPT")
}

func TestCursorStoreRoundTrip(t *testing.T) {
	store := NewCursorStore(t.TempDir())

	// Missing file is a zero cursor.
	c, err := store.Load("vn_candles", 2)
	require.NoError(t, err)
	assert.Equal(t, 0, c.NextIndex)

	c = Cursor{NextIndex: 40, LastBatch: []string{"FPT", "VCB"}, BatchSize: 2, UniverseCount: 1700}
	require.NoError(t, store.Save("vn_candles", 2, c))

	got, err := store.Load("vn_candles", 2)
	require.NoError(t, err)
	assert.Equal(t, 40, got.NextIndex)
	assert.Equal(t, []string{"FPT", "VCB"}, got.LastBatch)
	assert.NotEmpty(t, got.UpdatedAt)
}
