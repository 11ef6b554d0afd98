package fi

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBlock() *Block {
	return &Block{
		Ticker: "FPT",
		Period: "Q",
		Sections: map[string]any{
			"is": map[string]any{
				"items": []any{
					map[string]any{
						"periodDate":     "2025-12",
						"periodDateName": "Q4/2025",
						"is1":            10.0,
						"is2":            20.0,
						"foo":            "bar",
					},
				},
			},
			"periodSelect": map[string]any{"periods": []any{"2025-12"}},
		},
	}
}

func TestNormalizeBlockExtractsMetricRows(t *testing.T) {
	points := NormalizeBlock(sampleBlock(), time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC))
	require.Len(t, points, 2)

	byMetric := map[string]Point{}
	for _, p := range points {
		byMetric[p.Metric] = p
	}
	require.Contains(t, byMetric, "is1")
	require.Contains(t, byMetric, "is2")
	assert.NotContains(t, byMetric, "foo", "non-metric keys excluded")

	p := byMetric["is1"]
	assert.Equal(t, "is", p.Statement)
	assert.Equal(t, "2025-12-01", p.PeriodDate, "partial period date expanded")
	assert.Equal(t, "Q4/2025", p.PeriodDateName)
	require.NotNil(t, p.Value)
	assert.Equal(t, 10.0, *p.Value)
}

func TestNormalizeBlockSkipsNonNumericMetrics(t *testing.T) {
	b := &Block{
		Ticker: "FPT", Period: "Q",
		Sections: map[string]any{
			"bs": map[string]any{"items": []any{
				map[string]any{"periodDate": "2025", "bs1": "n/a", "bs2": 5.0},
			}},
		},
	}
	points := NormalizeBlock(b, time.Now())
	require.Len(t, points, 1)
	assert.Equal(t, "bs2", points[0].Metric)
	assert.Equal(t, "2025-01-01", points[0].PeriodDate)
}

func TestNormalizeBlockBareArraySection(t *testing.T) {
	b := &Block{
		Ticker: "VCB", Period: "Q",
		Sections: map[string]any{
			"ratio": []any{
				map[string]any{"periodDate": "2025-09-30", "r12": 1.5},
			},
		},
	}
	points := NormalizeBlock(b, time.Now())
	require.Len(t, points, 1)
	assert.Equal(t, "ratio", points[0].Statement)
	assert.Equal(t, "r12", points[0].Metric)
	assert.Equal(t, "2025-09-30", points[0].PeriodDate)
}

func TestNormalizePeriodDate(t *testing.T) {
	assert.Equal(t, "2025-12-01", NormalizePeriodDate("2025-12"))
	assert.Equal(t, "2025-01-01", NormalizePeriodDate("2025"))
	assert.Equal(t, "2025-12-31", NormalizePeriodDate("2025-12-31"))
	assert.Equal(t, "", NormalizePeriodDate("  "))
}

func TestBlockHashStableUnderKeyOrder(t *testing.T) {
	a := sampleBlock()
	b := sampleBlock()
	// Same content, rebuilt maps: hash must agree.
	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)

	b.Sections["is"].(map[string]any)["items"].([]any)[0].(map[string]any)["is1"] = 11.0
	hc, err := b.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc, "value change must change the hash")
}

func TestFilesStateRoundTrip(t *testing.T) {
	files := NewFiles(t.TempDir())

	st, err := files.LoadState()
	require.NoError(t, err)
	assert.Empty(t, st.Hashes)

	st.Hashes[PairKey("FPT", "Q")] = "abc"
	require.NoError(t, files.SaveState(st))

	st2, err := files.LoadState()
	require.NoError(t, err)
	assert.Equal(t, "abc", st2.Hashes["FPT:Q"])
	assert.NotEmpty(t, st2.UpdatedAt)
}

func TestFilesRawSnapshotNDJSONPublish(t *testing.T) {
	dir := t.TempDir()
	files := NewFiles(dir)
	b := sampleBlock()
	at := time.Date(2026, 2, 16, 8, 30, 0, 0, time.UTC)

	require.NoError(t, files.WriteRawLatest(b))
	require.NoError(t, files.WriteSnapshot(b, at))

	points := NormalizeBlock(b, at)
	require.NoError(t, files.AppendNDJSON(b.Ticker, b.Period, points))
	require.NoError(t, files.AppendNDJSON(b.Ticker, b.Period, points))

	assert.FileExists(t, filepath.Join(dir, "raw", "FPT_Q_latest.json"))
	assert.FileExists(t, filepath.Join(dir, "raw", "2026-02-16", "FPT_Q_083000.json"))

	nd, err := os.ReadFile(filepath.Join(dir, "normalized", "FPT_Q.ndjson"))
	require.NoError(t, err)
	lines := 0
	for _, c := range nd {
		if c == '\n' {
			lines++
		}
	}
	assert.Equal(t, 4, lines, "two appends of two points each")

	n, err := files.Publish()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.FileExists(t, filepath.Join(dir, "publish", "latest.json"))
}
