package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"storefront/internal/domain"
)

// CachedValue is a payload read back from the cache.
type CachedValue []byte

// Decode unmarshals the JSON payload into dst.
func (v CachedValue) Decode(dst any) error {
	return json.Unmarshal(v, dst)
}

// String returns the payload verbatim, which is how non-JSON values are read.
func (v CachedValue) String() string {
	return string(v)
}

// CacheService is a best-effort layer over a CacheRepository. Backend
// failures are logged and reported as misses; they never fail the caller.
// A CacheService without a repository behaves as an always-empty cache.
type CacheService struct {
	repo domain.CacheRepository
	log  *slog.Logger
}

// NewCacheService creates a CacheService. repo may be nil to disable caching.
func NewCacheService(repo domain.CacheRepository, log *slog.Logger) *CacheService {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &CacheService{repo: repo, log: log}
}

// Enabled reports whether a cache backend is configured.
func (s *CacheService) Enabled() bool {
	return s != nil && s.repo != nil
}

// GetCachedData looks up key.
func (s *CacheService) GetCachedData(ctx context.Context, key string) (CachedValue, bool) {
	if !s.Enabled() {
		return nil, false
	}
	b, ok, err := s.repo.Get(ctx, key)
	if err != nil {
		s.log.WarnContext(ctx, "cache get failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return CachedValue(b), true
}

// CacheData stores v under key for ttl (zero means no expiry). Strings and
// byte slices are stored verbatim, anything else is JSON-encoded.
func (s *CacheService) CacheData(ctx context.Context, key string, v any, ttl time.Duration) bool {
	if !s.Enabled() {
		return false
	}
	var payload []byte
	switch tv := v.(type) {
	case string:
		payload = []byte(tv)
	case []byte:
		payload = tv
	case CachedValue:
		payload = tv
	default:
		b, err := json.Marshal(v)
		if err != nil {
			s.log.WarnContext(ctx, "cache encode failed", "key", key, "error", err)
			return false
		}
		payload = b
	}
	return s.repo.Set(ctx, key, payload, ttl)
}

// InvalidateCache removes key and reports whether an entry was removed.
func (s *CacheService) InvalidateCache(ctx context.Context, key string) bool {
	if !s.Enabled() {
		return false
	}
	ok, err := s.repo.Delete(ctx, key)
	if err != nil {
		s.log.WarnContext(ctx, "cache delete failed", "key", key, "error", err)
		return false
	}
	return ok
}

// HasCachedData reports whether key is present.
func (s *CacheService) HasCachedData(ctx context.Context, key string) bool {
	if !s.Enabled() {
		return false
	}
	ok, err := s.repo.Exists(ctx, key)
	if err != nil {
		s.log.WarnContext(ctx, "cache exists failed", "key", key, "error", err)
		return false
	}
	return ok
}
