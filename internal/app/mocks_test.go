package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"storefront/internal/domain"
)

var errBackend = errors.New("backend unavailable")

// fakeProductRepo is an in-memory product store that counts calls.
type fakeProductRepo struct {
	mu       sync.Mutex
	products map[int64]domain.Product
	nextID   int64

	getAllCalls  int
	getByIDCalls int
	createCalls  int
	updateCalls  int
	deleteCalls  int
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{products: make(map[int64]domain.Product)}
}

func (r *fakeProductRepo) GetAll(_ context.Context) ([]domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getAllCalls++
	out := make([]domain.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	return out, nil
}

func (r *fakeProductRepo) GetByID(_ context.Context, id int64) (*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getByIDCalls++
	p, ok := r.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *fakeProductRepo) Create(_ context.Context, p domain.Product) (*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	r.nextID++
	p.ID = r.nextID
	r.products[p.ID] = p
	return &p, nil
}

func (r *fakeProductRepo) Update(_ context.Context, p domain.Product) (*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateCalls++
	r.products[p.ID] = p
	return &p, nil
}

func (r *fakeProductRepo) Delete(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteCalls++
	if _, ok := r.products[id]; !ok {
		return false, nil
	}
	delete(r.products, id)
	return true, nil
}

type cacheEntry struct {
	value []byte
	ttl   time.Duration
}

// fakeCache is a map-backed CacheRepository with error injection.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	err     error
	setOK   bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]cacheEntry), setOK: true}
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, false, c.err
	}
	e, ok := c.entries[key]
	return e.value, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil || !c.setOK {
		return false
	}
	c.entries[key] = cacheEntry{value: append([]byte(nil), value...), ttl: ttl}
	return true
}

func (c *fakeCache) Delete(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok, nil
}

func (c *fakeCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	_, ok := c.entries[key]
	return ok, nil
}

func (c *fakeCache) entry(key string) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok
}

type mockUserRepo struct {
	getByIDFn       func(ctx context.Context, id int64) (*domain.User, error)
	getByEmailFn    func(ctx context.Context, email string) (*domain.User, error)
	getByUsernameFn func(ctx context.Context, username string) (*domain.User, error)
	createFn        func(ctx context.Context, u domain.User) (*domain.User, error)
	updateFn        func(ctx context.Context, u domain.User) (*domain.User, error)
	deleteFn        func(ctx context.Context, id int64) (bool, error)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.getByEmailFn != nil {
		return m.getByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	if m.getByUsernameFn != nil {
		return m.getByUsernameFn(ctx, username)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, u domain.User) (*domain.User, error) {
	if m.createFn != nil {
		return m.createFn(ctx, u)
	}
	u.ID = 1
	return &u, nil
}

func (m *mockUserRepo) Update(ctx context.Context, u domain.User) (*domain.User, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, u)
	}
	return &u, nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id int64) (bool, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return false, nil
}
