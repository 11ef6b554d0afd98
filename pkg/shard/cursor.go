package shard

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"vietmarket-api/pkg/atomicfile"
)

// Cursor is the per-(job,shard) resume point. It lives in
// {dir}/{job}_{shard}.json and is only advanced after the batch it covers has
// committed to the warehouse.
type Cursor struct {
	NextIndex     int      `json:"next_index"`
	LastBatch     []string `json:"last_batch,omitempty"`
	BatchSize     int      `json:"batch_size,omitempty"`
	UniverseCount int      `json:"universe_count,omitempty"`
	UpdatedAt     string   `json:"updated_at,omitempty"`
}

// CursorStore persists cursors as JSON files with atomic replacement.
type CursorStore struct {
	dir string
}

// NewCursorStore returns a store rooted at dir.
func NewCursorStore(dir string) *CursorStore {
	return &CursorStore{dir: dir}
}

func (s *CursorStore) path(job string, shardIndex int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%d.json", job, shardIndex))
}

// Load reads the cursor for (job, shardIndex). A missing file yields a zero
// cursor, not an error: first runs start at index 0.
func (s *CursorStore) Load(job string, shardIndex int) (Cursor, error) {
	data, err := os.ReadFile(s.path(job, shardIndex))
	if errors.Is(err, os.ErrNotExist) {
		return Cursor{}, nil
	}
	if err != nil {
		return Cursor{}, fmt.Errorf("shard: read cursor: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return Cursor{}, fmt.Errorf("shard: parse cursor %s: %w", s.path(job, shardIndex), err)
	}
	if c.NextIndex < 0 {
		c.NextIndex = 0
	}
	return c, nil
}

// Save writes the cursor atomically, stamping UpdatedAt.
func (s *CursorStore) Save(job string, shardIndex int, c Cursor) error {
	c.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return atomicfile.WriteJSON(s.path(job, shardIndex), c)
}
