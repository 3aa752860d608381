package app

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"storefront/internal/domain"

	"github.com/shopspring/decimal"
)

// DefaultProductCacheTTL is how long a product read stays cached.
const DefaultProductCacheTTL = time.Hour

const productCachePrefix = "product:"

// ProductCacheConfig tunes the product read-through cache.
type ProductCacheConfig struct {
	TTL time.Duration
	// InvalidateOnWrite drops the cached entry after an update or delete.
	// When false, cached reads may serve the pre-write state until TTL expiry.
	InvalidateOnWrite bool
}

// ProductService encapsulates product catalog use cases.
type ProductService struct {
	repo  domain.ProductRepository
	cache *CacheService
	cfg   ProductCacheConfig
	log   *slog.Logger
	now   func() time.Time
}

// NewProductService creates a ProductService. cache may be nil.
func NewProductService(repo domain.ProductRepository, cache *CacheService, cfg ProductCacheConfig, log *slog.Logger) *ProductService {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultProductCacheTTL
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &ProductService{repo: repo, cache: cache, cfg: cfg, log: log, now: time.Now}
}

// ProductCacheKey returns the cache key under which product id is stored.
func ProductCacheKey(id int64) string {
	return productCachePrefix + strconv.FormatInt(id, 10)
}

// GetAllProducts lists every product. It always reads the store.
func (s *ProductService) GetAllProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.GetAll(ctx)
}

// GetProduct returns the product with the given id, or nil if there is none.
// A cache hit is returned without consulting the store.
func (s *ProductService) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	key := ProductCacheKey(id)
	if v, ok := s.cache.GetCachedData(ctx, key); ok {
		p, err := decodeCachedProduct(v)
		if err == nil {
			return &p, nil
		}
		s.log.WarnContext(ctx, "discarding unreadable cached product", "key", key, "error", err)
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	s.cache.CacheData(ctx, key, newCachedProduct(*p), s.cfg.TTL)
	return p, nil
}

// CreateProduct validates and stores a new product. Timestamps are always
// assigned here, overriding whatever the caller supplied.
func (s *ProductService) CreateProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	if !p.IsValid() {
		return nil, domain.ErrInvalidProduct
	}
	now := s.now().UTC()
	p.ID = 0
	p.CreatedAt = now
	p.UpdatedAt = now
	return s.repo.Create(ctx, p)
}

// UpdateProduct applies patch to the stored product. It returns nil when the
// product does not exist.
func (s *ProductService) UpdateProduct(ctx context.Context, id int64, patch domain.ProductPatch) (*domain.Product, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	updated := patch.Apply(*existing)
	if !updated.IsValid() {
		return nil, domain.ErrInvalidProduct
	}
	updated.ID = id
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = s.now().UTC()

	out, err := s.repo.Update(ctx, updated)
	if err != nil {
		return nil, err
	}
	if s.cfg.InvalidateOnWrite {
		s.cache.InvalidateCache(ctx, ProductCacheKey(id))
	}
	return out, nil
}

// DeleteProduct removes the product and reports whether it existed.
func (s *ProductService) DeleteProduct(ctx context.Context, id int64) (bool, error) {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted && s.cfg.InvalidateOnWrite {
		s.cache.InvalidateCache(ctx, ProductCacheKey(id))
	}
	return deleted, nil
}

// cachedProduct is the cache representation of a product. Timestamps are
// kept as RFC 3339 strings and the price as its exact decimal string.
type cachedProduct struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Price       string  `json:"price"`
	Stock       int     `json:"stock"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func newCachedProduct(p domain.Product) cachedProduct {
	return cachedProduct{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.String(),
		Stock:       p.Stock,
		CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeCachedProduct(v CachedValue) (domain.Product, error) {
	var rec cachedProduct
	if err := v.Decode(&rec); err != nil {
		return domain.Product{}, fmt.Errorf("decode: %w", err)
	}
	price, err := decimal.NewFromString(rec.Price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("price: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rec.CreatedAt)
	if err != nil {
		return domain.Product{}, fmt.Errorf("created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, rec.UpdatedAt)
	if err != nil {
		return domain.Product{}, fmt.Errorf("updated_at: %w", err)
	}
	return domain.Product{
		ID:          rec.ID,
		Name:        rec.Name,
		Description: rec.Description,
		Price:       price,
		Stock:       rec.Stock,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}
