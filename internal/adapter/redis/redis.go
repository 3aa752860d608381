// Package redis implements domain.CacheRepository on a Redis server.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"storefront/internal/domain"

	goredis "github.com/redis/go-redis/v9"
)

// Options configures the connection.
type Options struct {
	Host     string
	Port     int
	DB       int
	Password string
}

// Addr returns host:port.
func (o Options) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// Cache is a CacheRepository backed by Redis.
type Cache struct {
	client *goredis.Client
}

var _ domain.CacheRepository = (*Cache)(nil)

// New creates a client for opts and verifies the server is reachable.
func New(ctx context.Context, opts Options) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr(),
		DB:       opts.DB,
		Password: opts.Password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr(), err)
	}
	return &Cache{client: client}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client) *Cache {
	return &Cache{client: client}
}

// Close closes the client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Get returns the value stored under key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Set stores value under key for ttl; zero means no expiry. Failures are
// reported as false.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if ttl < 0 {
		ttl = 0
	}
	return c.client.Set(ctx, key, value, ttl).Err() == nil
}

// Delete removes key and reports whether it existed.
func (c *Cache) Delete(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Del(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Exists reports whether key is present.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
