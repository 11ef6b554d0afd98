package store

import (
	"context"
	"fmt"
)

// Control KV keys used across workers.
const (
	KVBackfillDone = "control.backfill_done"
)

// SetKV upserts a control flag.
func (s *Store) SetKV(ctx context.Context, key, value string) error {
	const q = `
INSERT INTO control_kv (key, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	if _, err := s.conn.ExecCtx(ctx, q, key, value); err != nil {
		return fmt.Errorf("store: set kv %s: %w", key, err)
	}
	return nil
}

// GetKV reads a control flag; missing keys return ErrNotFound.
func (s *Store) GetKV(ctx context.Context, key string) (string, error) {
	var value string
	if err := s.conn.QueryRowCtx(ctx, &value,
		`SELECT value FROM control_kv WHERE key = $1`, key); err != nil {
		if notFound(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("store: get kv %s: %w", key, err)
	}
	return value, nil
}
