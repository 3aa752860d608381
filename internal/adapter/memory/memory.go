// Package memory implements an in-memory repository for development and testing.
package memory

import (
	"context"
	"sort"
	"sync"

	"storefront/internal/domain"
)

// DB implements an in-memory database storage.
type DB struct {
	mu       sync.Mutex
	products map[int64]domain.Product
	users    map[int64]domain.User

	productIDCounter int64
	userIDCounter    int64
}

// New creates a new in-memory database.
func New() *DB {
	return &DB{
		products: make(map[int64]domain.Product),
		users:    make(map[int64]domain.User),
	}
}

// Ensure interfaces are met.
var _ domain.ProductRepository = (*ProductRepo)(nil)
var _ domain.UserRepository = (*UserRepo)(nil)
var _ domain.Transactor = (*DB)(nil)

// WithinTx runs fn directly. Writes are applied immediately and are not
// rolled back when fn fails.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// --- ProductRepository ---

// ProductRepo implements product repository operations on DB.
type ProductRepo struct {
	db *DB
}

// Products returns the product repository backed by db.
func (db *DB) Products() *ProductRepo {
	return &ProductRepo{db: db}
}

// GetAll returns every product ordered by id.
func (r *ProductRepo) GetAll(ctx context.Context) ([]domain.Product, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	result := make([]domain.Product, 0, len(r.db.products))
	for _, p := range r.db.products {
		result = append(result, copyProduct(p))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// GetByID retrieves a product by ID.
func (r *ProductRepo) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	p, ok := r.db.products[id]
	if !ok {
		return nil, nil
	}
	p = copyProduct(p)
	return &p, nil
}

// Create stores a product under a fresh id.
func (r *ProductRepo) Create(ctx context.Context, p domain.Product) (*domain.Product, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.productIDCounter++
	p.ID = r.db.productIDCounter
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	r.db.products[p.ID] = copyProduct(p)
	return &p, nil
}

// Update overwrites an existing product, keeping its creation time.
func (r *ProductRepo) Update(ctx context.Context, p domain.Product) (*domain.Product, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	existing, ok := r.db.products[p.ID]
	if !ok {
		return nil, nil
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = p.UpdatedAt.UTC()
	r.db.products[p.ID] = copyProduct(p)
	return &p, nil
}

// Delete removes a product and reports whether it existed.
func (r *ProductRepo) Delete(ctx context.Context, id int64) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.products[id]; !ok {
		return false, nil
	}
	delete(r.db.products, id)
	return true, nil
}

// copyProduct detaches the description pointer from the stored record.
func copyProduct(p domain.Product) domain.Product {
	if p.Description != nil {
		d := *p.Description
		p.Description = &d
	}
	return p
}

// --- UserRepository ---

// UserRepo implements user repository operations on DB.
type UserRepo struct {
	db *DB
}

// Users returns the user repository backed by db.
func (db *DB) Users() *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) find(match func(domain.User) bool) *domain.User {
	for _, u := range r.db.users {
		if match(u) {
			return &u
		}
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	u, ok := r.db.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// GetByEmail retrieves a user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	return r.find(func(u domain.User) bool { return u.Email == email }), nil
}

// GetByUsername retrieves a user by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	return r.find(func(u domain.User) bool { return u.Username == username }), nil
}

// checkUnique must be called with the lock held.
func (r *UserRepo) checkUnique(u domain.User) error {
	if r.find(func(o domain.User) bool { return o.ID != u.ID && o.Email == u.Email }) != nil {
		return domain.ErrEmailTaken
	}
	if r.find(func(o domain.User) bool { return o.ID != u.ID && o.Username == u.Username }) != nil {
		return domain.ErrUsernameTaken
	}
	return nil
}

// Create stores a user under a fresh id.
func (r *UserRepo) Create(ctx context.Context, u domain.User) (*domain.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	u.ID = 0
	if err := r.checkUnique(u); err != nil {
		return nil, err
	}
	r.db.userIDCounter++
	u.ID = r.db.userIDCounter
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	r.db.users[u.ID] = u
	return &u, nil
}

// Update overwrites an existing user. An empty password hash keeps the
// stored one.
func (r *UserRepo) Update(ctx context.Context, u domain.User) (*domain.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	existing, ok := r.db.users[u.ID]
	if !ok {
		return nil, nil
	}
	if err := r.checkUnique(u); err != nil {
		return nil, err
	}
	if u.PasswordHash == "" {
		u.PasswordHash = existing.PasswordHash
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = u.UpdatedAt.UTC()
	r.db.users[u.ID] = u
	return &u, nil
}

// Delete removes a user and reports whether it existed.
func (r *UserRepo) Delete(ctx context.Context, id int64) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.users[id]; !ok {
		return false, nil
	}
	delete(r.db.users, id)
	return true, nil
}
