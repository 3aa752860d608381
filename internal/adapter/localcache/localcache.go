// Package localcache implements domain.CacheRepository in process memory on
// top of a sharded sturdyc client.
package localcache

import (
	"context"
	"time"

	"storefront/internal/domain"

	"github.com/viccon/sturdyc"
)

// Config holds the sizing of the in-process cache.
type Config struct {
	// Capacity is the maximum number of entries. Must be greater than 0.
	Capacity int

	// NumShards is the number of shards. Must be greater than 0.
	NumShards int

	// MaxTTL bounds how long any entry is retained, including entries
	// stored without a TTL. Must be greater than 0.
	MaxTTL time.Duration

	// EvictionPercentage is the share of entries evicted when the cache is
	// full. Must be between 1 and 100.
	EvictionPercentage int

	// EvictionInterval sets how often expired entries are swept. Zero uses
	// the sturdyc default.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config suitable for a single instance.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          64,
		MaxTTL:             24 * time.Hour,
		EvictionPercentage: 10,
	}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}
	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}
	if c.MaxTTL <= 0 {
		return &ConfigError{Field: "MaxTTL", Message: "must be greater than 0"}
	}
	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}
	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// entry carries its own deadline because sturdyc only has a client-wide TTL.
type entry struct {
	value     []byte
	expiresAt time.Time // zero means no per-entry expiry
}

// Cache is an in-process CacheRepository.
type Cache struct {
	client *sturdyc.Client[entry]
	now    func() time.Time
}

var _ domain.CacheRepository = (*Cache)(nil)

// New validates cfg and creates a Cache.
func New(cfg Config) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var opts []sturdyc.Option
	if cfg.EvictionInterval > 0 {
		opts = append(opts, sturdyc.WithEvictionInterval(cfg.EvictionInterval))
	}
	client := sturdyc.New[entry](cfg.Capacity, cfg.NumShards, cfg.MaxTTL, cfg.EvictionPercentage, opts...)
	return &Cache{client: client, now: time.Now}, nil
}

func (c *Cache) lookup(key string) (entry, bool) {
	e, ok := c.client.Get(key)
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.client.Delete(key)
		return entry{}, false
	}
	return e, true
}

// Get returns the value stored under key.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := c.lookup(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

// Set stores value under key. A ttl of zero keeps the entry until it is
// evicted.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) bool {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.client.Set(key, e)
	return true
}

// Delete removes key and reports whether a live entry was removed.
func (c *Cache) Delete(_ context.Context, key string) (bool, error) {
	_, ok := c.lookup(key)
	c.client.Delete(key)
	return ok, nil
}

// Exists reports whether key holds a live entry.
func (c *Cache) Exists(_ context.Context, key string) (bool, error) {
	_, ok := c.lookup(key)
	return ok, nil
}

// Len returns the number of stored entries, expired ones included until
// they are swept.
func (c *Cache) Len() int {
	return len(c.client.ScanKeys())
}
