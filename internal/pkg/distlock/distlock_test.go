package distlock

import (
	"context"
	"errors"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestRedisLock_AcquireRelease(t *testing.T) {
	mr, rdb := setupRedis(t)
	ctx := context.Background()

	a := NewRedisLock(rdb, "segments:refresh:org-001", time.Minute)
	b := NewRedisLock(rdb, "segments:refresh:org-001", time.Minute)
	assert.Equal(t, "lock:segments:refresh:org-001", a.Key())

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Minute, mr.TTL(a.Key()))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not acquire")

	assert.ErrorIs(t, b.Release(ctx), ErrNotHeld)
	assert.True(t, mr.Exists(a.Key()), "non-owner release must not delete the lock")

	require.NoError(t, a.Release(ctx))
	assert.False(t, mr.Exists(a.Key()))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_Extend(t *testing.T) {
	mr, rdb := setupRedis(t)
	ctx := context.Background()

	l := NewRedisLock(rdb, "k", time.Second)
	assert.ErrorIs(t, l.Extend(ctx, time.Minute), ErrNotHeld)

	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, l.Extend(ctx, time.Minute))
	assert.Equal(t, time.Minute, mr.TTL(l.Key()))
}

func TestRedisLock_ExpiredLockCanBeRetaken(t *testing.T) {
	mr, rdb := setupRedis(t)
	ctx := context.Background()

	a := NewRedisLock(rdb, "k", time.Second)
	ok, _ := a.Acquire(ctx)
	require.True(t, ok)
	mr.FastForward(2 * time.Second)

	b := NewRedisLock(rdb, "k", time.Second)
	ok, err := b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.ErrorIs(t, a.Release(ctx), ErrNotHeld)
}

func TestPGAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	l := NewPGAdvisoryLock(db, "segments:refresh:org-001")
	assert.Equal(t, l.lockID, NewPGAdvisoryLock(db, "segments:refresh:org-001").lockID)
	assert.NotEqual(t, l.lockID, NewPGAdvisoryLock(db, "segments:refresh:org-002").lockID)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_try_advisory_lock($1)")).
		WithArgs(l.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_advisory_unlock($1)")).
		WithArgs(l.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_advisory_unlock"}).AddRow(true))

	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l.Release(ctx))
	assert.ErrorIs(t, l.Release(ctx), ErrNotHeld)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGAdvisoryLock_Contended(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPGAdvisoryLock(db, "k")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_try_advisory_lock($1)")).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDo(t *testing.T) {
	_, rdb := setupRedis(t)
	ctx := context.Background()

	called := false
	ran, err := Do(ctx, NewRedisLock(rdb, "job", time.Minute), func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.True(t, called)

	holder := NewRedisLock(rdb, "job", time.Minute)
	ok, _ := holder.Acquire(ctx)
	require.True(t, ok)

	called = false
	ran, err = Do(ctx, NewRedisLock(rdb, "job", time.Minute), func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, ran)
	assert.False(t, called)
	require.NoError(t, holder.Release(ctx))

	boom := errors.New("boom")
	ran, err = Do(ctx, NewRedisLock(rdb, "job", time.Minute), func(context.Context) error { return boom })
	assert.True(t, ran)
	assert.ErrorIs(t, err, boom)
}

// countingLock is an expiring lock that records keep-alive extensions.
type countingLock struct {
	ttl     time.Duration
	extends atomic.Int32
}

func (l *countingLock) Acquire(context.Context) (bool, error) { return true, nil }
func (l *countingLock) Release(context.Context) error         { return nil }
func (l *countingLock) TTL() time.Duration                    { return l.ttl }
func (l *countingLock) Extend(context.Context, time.Duration) error {
	l.extends.Add(1)
	return nil
}

func TestDo_ExtendsWhileRunning(t *testing.T) {
	l := &countingLock{ttl: 30 * time.Millisecond}

	ran, err := Do(context.Background(), l, func(context.Context) error {
		time.Sleep(100 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.GreaterOrEqual(t, l.extends.Load(), int32(2))

	after := l.extends.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, l.extends.Load(), "keep-alive must stop when the work returns")
}

func TestDo_LockTakenOverCancelsWork(t *testing.T) {
	mr, rdb := setupRedis(t)
	l := NewRedisLock(rdb, "job", 30*time.Millisecond)

	ran, err := Do(context.Background(), l, func(ctx context.Context) error {
		// Another replica grabbed the key after our TTL lapsed.
		require.NoError(t, mr.Set(l.Key(), "someone-else"))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
			return errors.New("work was not cancelled")
		}
	})
	assert.True(t, ran)
	assert.ErrorIs(t, err, ErrNotHeld)
	got, _ := mr.Get(l.Key())
	assert.Equal(t, "someone-else", got, "the new holder's lock must survive our release")
}
