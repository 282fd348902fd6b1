// Package cache provides the Redis session cache and rate limiter.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultNamespace prefixes every key this package writes.
const DefaultNamespace = "modelstation:"

// Options tunes the Redis client. Zero fields take the defaults.
type Options struct {
	PoolSize     int
	MinIdleConns int
	// OpTimeout bounds each read and write. Session lookups sit on every
	// authenticated request, so it is kept short and callers fall back to
	// PostgreSQL when it fires.
	OpTimeout time.Duration
	Namespace string
}

// DefaultOptions returns the options used by New.
func DefaultOptions() Options {
	return Options{
		PoolSize:     10,
		MinIdleConns: 2,
		OpTimeout:    500 * time.Millisecond,
		Namespace:    DefaultNamespace,
	}
}

// Cache wraps a Redis client and owns the key layout.
type Cache struct {
	client    *redis.Client
	namespace string
}

// New connects with DefaultOptions.
func New(ctx context.Context, redisURL string) (*Cache, error) {
	return NewWithOptions(ctx, redisURL, DefaultOptions())
}

// NewWithOptions parses redisURL, applies opts and pings the server.
func NewWithOptions(ctx context.Context, redisURL string, opts Options) (*Cache, error) {
	ro, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	def := DefaultOptions()
	if opts.PoolSize <= 0 {
		opts.PoolSize = def.PoolSize
	}
	if opts.MinIdleConns <= 0 {
		opts.MinIdleConns = def.MinIdleConns
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = def.OpTimeout
	}

	ro.PoolSize = opts.PoolSize
	ro.MinIdleConns = opts.MinIdleConns
	ro.PoolTimeout = 4 * time.Second
	ro.ConnMaxIdleTime = 5 * time.Minute
	ro.ReadTimeout = opts.OpTimeout
	ro.WriteTimeout = opts.OpTimeout

	client := redis.NewClient(ro)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &Cache{client: client, namespace: opts.Namespace}, nil
}

// NewFromClient wraps an existing client using DefaultNamespace.
func NewFromClient(client *redis.Client) *Cache {
	return &Cache{client: client, namespace: DefaultNamespace}
}

// key returns the namespaced form of k.
func (c *Cache) key(k string) string {
	return c.namespace + k
}

// Ping checks Redis connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client returns the underlying Redis client. Tests use it to flush state.
func (c *Cache) Client() *redis.Client {
	return c.client
}
