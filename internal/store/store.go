// Package store is the warehouse DAO: every SQL statement the platform runs
// lives here. Workers and the query service share it; nothing else talks to
// Postgres.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/zeromicro/go-zero/core/stores/sqlc"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// ErrNotFound mirrors sqlc.ErrNotFound for callers that should not import
// go-zero directly.
var ErrNotFound = errors.New("store: not found")

// ErrNotOwner is returned by lease mutations when the caller no longer holds
// the lease. The worker must abandon the shard immediately.
var ErrNotOwner = errors.New("store: lease not owned")

// ErrCoordinationUnavailable wraps lease-store connectivity failures. A
// worker seeing it must exit without writing ingest state.
var ErrCoordinationUnavailable = errors.New("store: coordination unavailable")

// Store bundles the warehouse connection.
type Store struct {
	conn sqlx.SqlConn
}

// New returns a Store over an established connection.
func New(conn sqlx.SqlConn) *Store {
	return &Store{conn: conn}
}

// Conn exposes the underlying connection for migration helpers.
func (s *Store) Conn() sqlx.SqlConn { return s.conn }

// Ping verifies connectivity with SELECT 1.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.conn.QueryRowCtx(ctx, &one, `SELECT 1`); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// IsUniqueViolation reports a Postgres duplicate-key error (23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pq.Error
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsIntegrityError reports a constraint/schema violation: a bug-class error
// that must not be retried.
func IsIntegrityError(err error) bool {
	var pgErr *pq.Error
	if !errors.As(err, &pgErr) {
		return false
	}
	// Class 23 = integrity constraint violation, class 42 = syntax/undefined.
	cls := pgErr.Code.Class()
	return cls == "23" || cls == "42"
}

// IsSerializationFailure reports a retryable serialization conflict (40001).
func IsSerializationFailure(err error) bool {
	var pgErr *pq.Error
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func notFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, sqlc.ErrNotFound)
}
