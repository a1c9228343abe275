package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheVersionKey = "authz:version"

// DecisionCache wraps Redis based caching of resolved decisions with a
// version counter. Any role, permission, or override mutation bumps the
// version, invalidating every cached decision at once.
type DecisionCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewDecisionCache instantiates the cache helper.
func NewDecisionCache(client *redis.Client, ttl time.Duration) *DecisionCache {
	return &DecisionCache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *DecisionCache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Bump advances the version, invalidating all cached decisions. Called on
// role changes, override changes, and override expiry crossings.
func (c *DecisionCache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

func (c *DecisionCache) key(ver, userID int64, permKey, action string) string {
	return fmt.Sprintf("authz:%d:u%d:%s:%s", ver, userID, permKey, action)
}

// Fetch loads a cached decision or populates it using loader. Concurrent
// misses for the same key are coalesced. Cache failures fall through to the
// loader so resolution never depends on Redis availability.
func (c *DecisionCache) Fetch(ctx context.Context, userID int64, permKey, action string, loader func(context.Context) (Decision, error)) (Decision, error) {
	if loader == nil {
		return Decision{}, errors.New("authz: cache loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}

	ver, err := c.Version(ctx)
	if err != nil {
		return loader(ctx)
	}
	key := c.key(ver, userID, permKey, action)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var cached Decision
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}

	result := c.group.DoChan(key, func() (interface{}, error) {
		decision, err := loader(ctx)
		if err != nil {
			return Decision{}, err
		}
		if raw, err := json.Marshal(decision); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttl).Err()
		}
		return decision, nil
	})

	select {
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return Decision{}, res.Err
		}
		return res.Val.(Decision), nil
	}
}
