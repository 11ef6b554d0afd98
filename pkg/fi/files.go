package fi

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"vietmarket-api/pkg/atomicfile"
)

// Layout under the worker's out-dir:
//
//	raw/{ticker}_{period}_latest.json   current block per pair
//	raw/YYYY-MM-DD/...                  dated snapshots on change
//	normalized/{ticker}_{period}.ndjson appended point rows
//	publish/latest.json                 aggregate for the read API
//	state.json                          block hashes per pair
type Files struct {
	root string
}

// NewFiles roots the file layout at dir.
func NewFiles(dir string) *Files {
	return &Files{root: dir}
}

// State records the last block hash per "ticker:period".
type State struct {
	Hashes    map[string]string `json:"hashes"`
	UpdatedAt string            `json:"updated_at,omitempty"`
}

// LoadState reads state.json; a missing file is an empty state.
func (f *Files) LoadState() (*State, error) {
	data, err := os.ReadFile(filepath.Join(f.root, "state.json"))
	if errors.Is(err, os.ErrNotExist) {
		return &State{Hashes: map[string]string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fi: read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("fi: parse state: %w", err)
	}
	if st.Hashes == nil {
		st.Hashes = map[string]string{}
	}
	return &st, nil
}

// SaveState writes state.json atomically.
func (f *Files) SaveState(st *State) error {
	st.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return atomicfile.WriteJSON(filepath.Join(f.root, "state.json"), st)
}

// PairKey is the state key for a (ticker, period).
func PairKey(ticker, period string) string {
	return ticker + ":" + period
}

// WriteRawLatest replaces raw/{ticker}_{period}_latest.json.
func (f *Files) WriteRawLatest(b *Block) error {
	path := filepath.Join(f.root, "raw", fmt.Sprintf("%s_%s_latest.json", b.Ticker, b.Period))
	return atomicfile.WriteJSON(path, b)
}

// WriteSnapshot appends a dated copy under raw/YYYY-MM-DD/.
func (f *Files) WriteSnapshot(b *Block, at time.Time) error {
	day := at.UTC().Format("2006-01-02")
	name := fmt.Sprintf("%s_%s_%s.json", b.Ticker, b.Period, at.UTC().Format("150405"))
	return atomicfile.WriteJSON(filepath.Join(f.root, "raw", day, name), b)
}

// AppendNDJSON appends point rows to normalized/{ticker}_{period}.ndjson.
func (f *Files) AppendNDJSON(ticker, period string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	dir := filepath.Join(f.root, "normalized")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fi: mkdir normalized: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.ndjson", ticker, period))
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("fi: open ndjson: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	for _, p := range points {
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("fi: append ndjson: %w", err)
		}
	}
	return nil
}

// Publish aggregates every raw/*_latest.json into publish/latest.json keyed
// by "ticker:period".
func (f *Files) Publish() (int, error) {
	pattern := filepath.Join(f.root, "raw", "*_latest.json")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return 0, fmt.Errorf("fi: glob raw: %w", err)
	}

	out := make(map[string]*Block, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, fmt.Errorf("fi: read %s: %w", path, err)
		}
		var b Block
		if err := json.Unmarshal(data, &b); err != nil {
			return 0, fmt.Errorf("fi: parse %s: %w", path, err)
		}
		out[PairKey(b.Ticker, b.Period)] = &b
	}

	if err := atomicfile.WriteJSON(filepath.Join(f.root, "publish", "latest.json"), out); err != nil {
		return 0, err
	}
	return len(out), nil
}
