package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// versionTTL keeps a scope's version well past the life of any value stored under it.
const versionTTL = 48 * time.Hour

// Cache stores JSON values with a fixed TTL. Values are grouped into scopes whose
// version counter is bumped on every write to the underlying data, so a value
// computed before a write can never be served after it.
type Cache struct {
	client  *redis.Client
	breaker *Breaker
	ttl     time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration, breaker *Breaker) *Cache {
	return &Cache{client: client, breaker: breaker, ttl: ttl}
}

// Load decodes the value at key into dst. A missing key is (false, nil).
func (c *Cache) Load(ctx context.Context, key string, dst any) (bool, error) {
	var raw []byte
	err := c.breaker.Do(func() error {
		var err error
		raw, err = c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	})
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if raw == nil {
		return false, nil
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

func (c *Cache) Store(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	return c.breaker.Do(func() error {
		return c.client.Set(ctx, key, data, c.ttl).Err()
	})
}

// Version returns the current version of scope; a scope never bumped is at 0.
func (c *Cache) Version(ctx context.Context, scope string) (int64, error) {
	var v int64
	err := c.breaker.Do(func() error {
		var err error
		v, err = c.client.Get(ctx, versionKey(scope)).Int64()
		if errors.Is(err, redis.Nil) {
			v = 0
			return nil
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("cache version %s: %w", scope, err)
	}
	return v, nil
}

// Bump moves scope to a new version, orphaning every value keyed on an older one.
func (c *Cache) Bump(ctx context.Context, scope string) error {
	key := versionKey(scope)
	err := c.breaker.Do(func() error {
		pipe := c.client.TxPipeline()
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, versionTTL)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("cache bump %s: %w", scope, err)
	}
	return nil
}

func versionKey(scope string) string { return scope + ":ver" }
