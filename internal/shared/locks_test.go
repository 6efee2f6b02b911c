package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLockerRejectsConcurrentHolder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewLocker(client, time.Minute)
	ctx := context.Background()

	key := ProductionLockKey(7)
	err := locker.WithLock(ctx, key, func(ctx context.Context) error {
		inner := locker.WithLock(ctx, key, func(context.Context) error { return nil })
		require.ErrorIs(t, inner, ErrLockBusy)
		require.ErrorIs(t, inner, ErrConflict)
		return nil
	})
	require.NoError(t, err)
	require.False(t, mr.Exists(key), "lock released after fn returns")
}

func TestLockerPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	var locker *Locker
	err := locker.WithLock(context.Background(), "k", func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestPagination(t *testing.T) {
	p := NewPagination(3, 10, 45)
	require.Equal(t, 5, p.TotalPages)
	require.Equal(t, 20, p.Offset())

	p = NewPagination(0, 1000, 0)
	require.Equal(t, 1, p.Page)
	require.Equal(t, maxPerPage, p.PerPage)
}
