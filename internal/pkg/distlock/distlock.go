// Package distlock provides best-effort mutual exclusion across replicas.
//
// RedisLock (SET NX with a TTL) guards periodic per-tenant jobs across
// replicas. PGAdvisoryLock is a session-level PostgreSQL lock for one-off
// work such as schema migrations.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"
)

// ErrNotHeld is returned when releasing or extending a lock we do not own.
var ErrNotHeld = errors.New("lock not held")

// DistLock is the interface for distributed locking.
// A lock value must not be shared between goroutines.
type DistLock interface {
	// Acquire tries to acquire the lock without blocking.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Extender is implemented by locks that expire and must be kept alive while
// the protected work runs.
type Extender interface {
	Extend(ctx context.Context, ttl time.Duration) error
	TTL() time.Duration
}

// Do runs fn while holding lock. ran is false when another holder has the
// lock; fn is not called in that case. Expiring locks are extended every
// third of their TTL until fn returns. If an extension finds the lock taken
// over, fn's context is cancelled and Do returns ErrNotHeld.
func Do(ctx context.Context, lock DistLock, fn func(ctx context.Context) error) (ran bool, err error) {
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer func() {
		// Release on a fresh context so a cancelled run still unlocks.
		relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if relErr := lock.Release(relCtx); relErr != nil && !errors.Is(relErr, ErrNotHeld) && err == nil {
			err = fmt.Errorf("release lock: %w", relErr)
		}
	}()

	ext, ok := lock.(Extender)
	if !ok || ext.TTL() <= 0 {
		return true, fn(ctx)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	lost := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(runCtx, ext, lost, cancel)
	}()

	err = fn(runCtx)
	cancel()
	<-done
	select {
	case <-lost:
		return true, fmt.Errorf("lock lost during run: %w", ErrNotHeld)
	default:
	}
	return true, err
}

func keepAlive(ctx context.Context, ext Extender, lost chan<- struct{}, cancel context.CancelFunc) {
	ttl := ext.TTL()
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := ext.Extend(ctx, ttl)
			if errors.Is(err, ErrNotHeld) {
				close(lost)
				cancel()
				return
			}
			// Transient errors are retried on the next tick; the TTL leaves two
			// more attempts before the lock can expire.
		}
	}
}

// PGAdvisoryLock implements DistLock with pg_try_advisory_lock. Advisory
// locks belong to a session, so the lock pins one pooled connection from
// Acquire until Release.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock derives a stable lock id from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire tries to take the advisory lock.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return false, fmt.Errorf("advisory lock %d already acquired by this holder", l.lockID)
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock connection: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("acquire advisory lock %d: %w", l.lockID, err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks and returns the pinned connection to the pool.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return ErrNotHeld
	}
	conn := l.conn
	l.conn = nil
	defer conn.Close()

	var released bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID).Scan(&released); err != nil {
		return fmt.Errorf("release advisory lock %d: %w", l.lockID, err)
	}
	if !released {
		return ErrNotHeld
	}
	return nil
}
