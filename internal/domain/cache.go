package domain

import (
	"context"
	"time"
)

// CacheRepository is the port for a string-keyed byte store with optional
// per-entry expiry. A zero ttl stores the entry without an expiry, leaving its
// lifetime to the backend's own eviction policy.
type CacheRepository interface {
	// Get returns the stored payload and true, or false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key. Failures are reported as false.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool
	// Delete removes key and reports whether an entry was removed.
	Delete(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
}
