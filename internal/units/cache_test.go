package units

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newCachedService(t *testing.T) (*Service, *memoryStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := newMemoryStore()
	return NewService(store, NewCache(client, time.Minute)), store, mr
}

func TestCacheServesRepeatedLookups(t *testing.T) {
	svc, store, mr := newCachedService(t)
	ctx := context.Background()
	store.factors[memKey(1, "box", "kg")] = decimal.NewFromInt(10)

	for i := 0; i < 3; i++ {
		f, err := svc.Factor(ctx, 1, "box", "kg")
		require.NoError(t, err)
		require.True(t, f.Equal(decimal.NewFromInt(10)))
	}
	require.Equal(t, 1, store.lookups)

	raw, err := mr.Get(cacheKey(1, "box", "kg"))
	require.NoError(t, err)
	require.Equal(t, "10", raw)
	require.True(t, mr.TTL(cacheKey(1, "box", "kg")) > 0)
}

func TestCacheNeverStoresMissingPair(t *testing.T) {
	svc, store, mr := newCachedService(t)
	ctx := context.Background()

	_, err := svc.Factor(ctx, 1, "box", "kg")
	require.ErrorIs(t, err, ErrConversionNotDefined)
	require.False(t, mr.Exists(cacheKey(1, "box", "kg")))

	_, err = svc.Define(ctx, Conversion{MaterialID: 1, FromUnit: "box", ToUnit: "kg", Factor: decimal.NewFromInt(12)})
	require.NoError(t, err)
	f, err := svc.Factor(ctx, 1, "box", "kg")
	require.NoError(t, err)
	require.True(t, f.Equal(decimal.NewFromInt(12)))
	require.Equal(t, 2, store.lookups)
}

func TestDefineInvalidatesCachedFactor(t *testing.T) {
	svc, _, mr := newCachedService(t)
	ctx := context.Background()
	_, err := svc.Define(ctx, Conversion{MaterialID: 4, FromUnit: "bag", ToUnit: "kg", Factor: decimal.NewFromInt(25)})
	require.NoError(t, err)
	_, err = svc.Factor(ctx, 4, "bag", "kg")
	require.NoError(t, err)
	require.True(t, mr.Exists(cacheKey(4, "bag", "kg")))

	_, err = svc.Define(ctx, Conversion{MaterialID: 4, FromUnit: "bag", ToUnit: "kg", Factor: decimal.NewFromInt(20)})
	require.NoError(t, err)
	require.False(t, mr.Exists(cacheKey(4, "bag", "kg")))

	f, err := svc.Factor(ctx, 4, "bag", "kg")
	require.NoError(t, err)
	require.True(t, f.Equal(decimal.NewFromInt(20)))
}

func TestCacheFallsBackWhenRedisDown(t *testing.T) {
	svc, store, mr := newCachedService(t)
	store.factors[memKey(9, "roll", "m")] = decimal.NewFromInt(50)
	mr.Close()
	f, err := svc.Factor(context.Background(), 9, "roll", "m")
	require.NoError(t, err)
	require.True(t, f.Equal(decimal.NewFromInt(50)))
}
