package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *BalanceCache {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewBalanceCache(client, time.Minute)
}

func TestBalanceCacheFetchAndBump(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)

	calls := 0
	loader := func(context.Context) (decimal.Decimal, error) {
		calls++
		return decimal.NewFromInt(120), nil
	}

	key, err := cache.BuildKey(ctx, "1010", "all")
	require.NoError(t, err)

	got, err := cache.FetchBalance(ctx, key, loader)
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromInt(120)))
	require.Equal(t, 1, calls)

	// Second fetch is served from cache.
	_, err = cache.FetchBalance(ctx, key, loader)
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	// Bumping the version changes the key, forcing a reload.
	require.NoError(t, cache.Bump(ctx))
	bumped, err := cache.BuildKey(ctx, "1010", "all")
	require.NoError(t, err)
	require.NotEqual(t, key, bumped)
	_, err = cache.FetchBalance(ctx, bumped, loader)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestBalanceCacheNilClientFallsThrough(t *testing.T) {
	ctx := context.Background()
	var cache *BalanceCache

	key, err := cache.BuildKey(ctx, "1010", "all")
	require.NoError(t, err)

	calls := 0
	loader := func(context.Context) (decimal.Decimal, error) {
		calls++
		return decimal.NewFromInt(7), nil
	}
	got, err := cache.FetchBalance(ctx, key, loader)
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromInt(7)))
	_, err = cache.FetchBalance(ctx, key, loader)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.NoError(t, cache.Bump(ctx))
}
