package db

import (
	"context"
	"fmt"
)

// AdvisoryLocker serializes critical sections across processes sharing one
// database. fn runs inside a transaction holding a transaction-scoped
// advisory lock on key, so repositories that join the transaction through
// Conn read and write under the lock. The lock is released on commit or
// rollback.
type AdvisoryLocker struct {
	pool Pool
}

func NewAdvisoryLocker(pool Pool) *AdvisoryLocker {
	return &AdvisoryLocker{pool: pool}
}

func (l *AdvisoryLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return WithTx(ctx, l.pool, func(ctx context.Context) error {
		if _, err := Conn(ctx, l.pool).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("acquire advisory lock %s: %w", key, err)
		}
		return fn(ctx)
	})
}
