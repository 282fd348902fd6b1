package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/modelstation/modelstation/internal/model"
	"github.com/redis/go-redis/v9"
)

// sessionCachePrefix is the Redis key prefix for resolved sessions.
const sessionCachePrefix = "session:ctx:"

// GetSession returns the cached auth context for a token key.
// A miss or an undecodable entry yields (nil, nil); Redis failures are
// returned so callers can record them and fall back to the store.
func (c *Cache) GetSession(ctx context.Context, tokenKey string) (*model.AuthContext, error) {
	data, err := c.client.Get(ctx, c.key(sessionCachePrefix+tokenKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var ac model.AuthContext
	if err := json.Unmarshal(data, &ac); err != nil {
		return nil, nil //nolint:nilerr // corrupted entry is a miss
	}
	return &ac, nil
}

// SetSession caches ac for ttl. Non-positive ttl is a no-op.
func (c *Cache) SetSession(ctx context.Context, tokenKey string, ac *model.AuthContext, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(ac)
	if err != nil {
		return fmt.Errorf("marshal auth context: %w", err)
	}
	return c.client.Set(ctx, c.key(sessionCachePrefix+tokenKey), data, ttl).Err()
}

// DeleteSession drops a cached session on logout or expiry.
func (c *Cache) DeleteSession(ctx context.Context, tokenKey string) error {
	return c.client.Del(ctx, c.key(sessionCachePrefix+tokenKey)).Err()
}

// SessionTTL bounds a cache entry by both the configured maximum and the
// session's remaining lifetime, so a cached session never outlives its row.
func SessionTTL(now, expiresAt time.Time, max time.Duration) time.Duration {
	remaining := expiresAt.Sub(now)
	if remaining < max {
		return remaining
	}
	return max
}
