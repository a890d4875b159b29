package units

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const cachePrefix = "units:factor"

// Cache keeps resolved factors in Redis. Missing pairs are never cached so a
// newly defined conversion is visible on the next lookup.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

type lookupResult struct {
	factor decimal.Decimal
	found  bool
}

// Lookup returns the cached factor or resolves it via load. Redis failures degrade to load.
func (c *Cache) Lookup(ctx context.Context, materialID int64, from, to string, load LoadFunc) (decimal.Decimal, bool, error) {
	if load == nil {
		return decimal.Zero, false, errors.New("units: loader required")
	}
	if c == nil || c.client == nil {
		return load(ctx)
	}
	key := cacheKey(materialID, from, to)
	raw, err := c.client.Get(ctx, key).Result()
	if err == nil {
		if factor, perr := decimal.NewFromString(raw); perr == nil {
			return factor, true, nil
		}
	}
	res, err, _ := c.group.Do(key, func() (any, error) {
		factor, found, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if found {
			_ = c.client.Set(ctx, key, factor.String(), c.ttl).Err()
		}
		return lookupResult{factor: factor, found: found}, nil
	})
	if err != nil {
		return decimal.Zero, false, err
	}
	out := res.(lookupResult)
	return out.factor, out.found, nil
}

// Invalidate drops a cached pair.
func (c *Cache) Invalidate(ctx context.Context, materialID int64, from, to string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKey(materialID, from, to)).Err()
}

func cacheKey(materialID int64, from, to string) string {
	return fmt.Sprintf("%s:%d:%s:%s", cachePrefix, materialID, from, to)
}
