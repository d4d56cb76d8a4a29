package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetSet(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	b, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), b)
}

func TestRateLimiter_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr())

	ctx := context.Background()
	ok, n, err := rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)

	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.False(t, ok)
	require.Equal(t, int64(3), n)
}



func TestCursorStore_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	cs := NewCursorStore(New(mr.Addr()), "shipwatch:cursor", time.Hour)

	ctx := context.Background()

	// пустой ключ == начало выборки
	got, err := cs.Get(ctx)
	require.NoError(t, err)
	require.True(t, got.IsZero())

	at := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	require.NoError(t, cs.Set(ctx, at))

	got, err = cs.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, at, got)

	// Set не должен вешать TTL на рабочий курсор
	require.Equal(t, time.Duration(0), mr.TTL("shipwatch:cursor"))
}

func TestCursorStore_ClearKeepsBoundedKey(t *testing.T) {
	mr := miniredis.RunT(t)
	cs := NewCursorStore(New(mr.Addr()), "shipwatch:cursor", time.Hour)

	ctx := context.Background()
	require.NoError(t, cs.Set(ctx, time.Now()))
	require.NoError(t, cs.Clear(ctx))

	got, err := cs.Get(ctx)
	require.NoError(t, err)
	require.True(t, got.IsZero())
	require.Equal(t, time.Hour, mr.TTL("shipwatch:cursor"))
}

func TestCursorStore_MalformedValue(t *testing.T) {
	mr := miniredis.RunT(t)
	cs := NewCursorStore(New(mr.Addr()), "shipwatch:cursor", 0)

	require.NoError(t, mr.Set("shipwatch:cursor", "not-a-number"))
	_, err := cs.Get(context.Background())
	require.Error(t, err)
}
