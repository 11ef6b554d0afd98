package store

import (
	"context"
	"fmt"
	"time"
)

// Lease bounds for TryClaim.
const (
	MinLeaseMs = 30_000
	MaxLeaseMs = 1_800_000
)

// Lease is one (job, shard) ownership row.
type Lease struct {
	Job            string  `db:"job" json:"job"`
	Shard          int     `db:"shard" json:"shard"`
	OwnerID        string  `db:"owner_id" json:"owner_id"`
	LeaseUntilMs   int64   `db:"lease_until_ms" json:"lease_until_ms"`
	LastProgressMs int64   `db:"last_progress_ms" json:"last_progress_ms"`
	Meta           *string `db:"meta" json:"meta,omitempty"`
	UpdatedAt      int64   `db:"updated_at" json:"updated_at"`
}

// ClaimResult reports the outcome of TryClaim. When OK is false the current
// owner's row is echoed back for diagnostics.
type ClaimResult struct {
	OK             bool   `json:"ok"`
	OwnerID        string `json:"owner_id,omitempty"`
	LeaseUntilMs   int64  `json:"lease_until_ms,omitempty"`
	LastProgressMs int64  `json:"last_progress_ms,omitempty"`
}

// Claimable is the takeover predicate: a lease is up for grabs once it has
// expired (lease_until_ms <= now) or the owner stopped reporting progress for
// a full stale window. Held leases satisfy now < lease_until_ms strictly, so
// the expiry boundary itself is claimable.
func Claimable(nowMs, leaseUntilMs, lastProgressMs int64, staleWindow time.Duration) bool {
	return leaseUntilMs <= nowMs || lastProgressMs <= nowMs-staleWindow.Milliseconds()
}

// TryClaim attempts to take (job, shard) for ownerID in a single atomic
// statement. On success the lease runs for leaseMs and last_progress_ms is
// advanced to at least now.
func (s *Store) TryClaim(ctx context.Context, job string, shard int, ownerID string, leaseMs int64, staleMinutes int, meta *string) (ClaimResult, error) {
	if leaseMs < MinLeaseMs || leaseMs > MaxLeaseMs {
		return ClaimResult{}, fmt.Errorf("store: lease_ms %d outside [%d,%d]", leaseMs, MinLeaseMs, MaxLeaseMs)
	}
	if staleMinutes < 1 {
		return ClaimResult{}, fmt.Errorf("store: stale_minutes must be >= 1")
	}

	now := time.Now().UTC().UnixMilli()
	staleBefore := now - int64(staleMinutes)*60_000

	const q = `
INSERT INTO leases (job, shard, owner_id, lease_until_ms, last_progress_ms, meta, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $5)
ON CONFLICT (job, shard) DO UPDATE SET
  owner_id = EXCLUDED.owner_id,
  lease_until_ms = EXCLUDED.lease_until_ms,
  last_progress_ms = GREATEST(leases.last_progress_ms, EXCLUDED.last_progress_ms),
  meta = EXCLUDED.meta,
  updated_at = EXCLUDED.updated_at
WHERE leases.lease_until_ms <= $5 OR leases.last_progress_ms <= $7
RETURNING owner_id`

	var claimedOwner string
	err := s.conn.QueryRowCtx(ctx, &claimedOwner, q,
		job, shard, ownerID, now+leaseMs, now, meta, staleBefore)
	if err == nil {
		return ClaimResult{OK: true, OwnerID: claimedOwner, LeaseUntilMs: now + leaseMs, LastProgressMs: now}, nil
	}
	if !notFound(err) {
		return ClaimResult{}, fmt.Errorf("%w: try claim: %v", ErrCoordinationUnavailable, err)
	}

	// Somebody else holds it; report who.
	current, getErr := s.GetLease(ctx, job, shard)
	if getErr != nil {
		return ClaimResult{}, getErr
	}
	return ClaimResult{
		OK:             false,
		OwnerID:        current.OwnerID,
		LeaseUntilMs:   current.LeaseUntilMs,
		LastProgressMs: current.LastProgressMs,
	}, nil
}

// RenewLease extends lease_until_ms for the current owner. It never touches
// last_progress_ms: renewal is not a liveness signal.
func (s *Store) RenewLease(ctx context.Context, job string, shard int, ownerID string, leaseMs int64) error {
	if leaseMs < MinLeaseMs || leaseMs > MaxLeaseMs {
		return fmt.Errorf("store: lease_ms %d outside [%d,%d]", leaseMs, MinLeaseMs, MaxLeaseMs)
	}
	now := time.Now().UTC().UnixMilli()
	const q = `
UPDATE leases
SET lease_until_ms = $4, updated_at = $5
WHERE job = $1 AND shard = $2 AND owner_id = $3`
	res, err := s.conn.ExecCtx(ctx, q, job, shard, ownerID, now+leaseMs, now)
	if err != nil {
		return fmt.Errorf("%w: renew: %v", ErrCoordinationUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: renew: %v", ErrCoordinationUnavailable, err)
	}
	if affected == 0 {
		return ErrNotOwner
	}
	return nil
}

// ReportProgress advances last_progress_ms to now for the current owner.
// This is the liveness signal that defeats stale takeover.
func (s *Store) ReportProgress(ctx context.Context, job string, shard int, ownerID string, meta *string) error {
	now := time.Now().UTC().UnixMilli()
	const q = `
UPDATE leases
SET last_progress_ms = $4, meta = COALESCE($5, meta), updated_at = $4
WHERE job = $1 AND shard = $2 AND owner_id = $3`
	res, err := s.conn.ExecCtx(ctx, q, job, shard, ownerID, now, meta)
	if err != nil {
		return fmt.Errorf("%w: report progress: %v", ErrCoordinationUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: report progress: %v", ErrCoordinationUnavailable, err)
	}
	if affected == 0 {
		return ErrNotOwner
	}
	return nil
}

// GetLease reads one lease row.
func (s *Store) GetLease(ctx context.Context, job string, shard int) (Lease, error) {
	var row Lease
	const q = `
SELECT job, shard, owner_id, lease_until_ms, last_progress_ms, meta, updated_at
FROM leases WHERE job = $1 AND shard = $2`
	if err := s.conn.QueryRowCtx(ctx, &row, q, job, shard); err != nil {
		if notFound(err) {
			return Lease{}, ErrNotFound
		}
		return Lease{}, fmt.Errorf("%w: get lease: %v", ErrCoordinationUnavailable, err)
	}
	return row, nil
}
