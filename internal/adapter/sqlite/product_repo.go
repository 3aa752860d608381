package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"storefront/internal/domain"
)

const productColumns = "id, name, description, price, stock, created_at, updated_at"

// ProductRepo implements domain.ProductRepository on DB.
type ProductRepo struct {
	db *DB
}

// NewProductRepo wraps a DB as a ProductRepository.
func NewProductRepo(db *DB) *ProductRepo {
	return &ProductRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p                domain.Product
		created, updated int64
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &created, &updated); err != nil {
		return nil, err
	}
	p.CreatedAt = fromUnix(created)
	p.UpdatedAt = fromUnix(updated)
	return &p, nil
}

// GetAll returns every product ordered by id.
func (r *ProductRepo) GetAll(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, "SELECT "+productColumns+" FROM products ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	out := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetByID retrieves a product by ID.
func (r *ProductRepo) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := scanProduct(r.db.conn(ctx).QueryRowContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// Create inserts a product and returns it with its assigned id.
func (r *ProductRepo) Create(ctx context.Context, p domain.Product) (*domain.Product, error) {
	return scanProduct(r.db.conn(ctx).QueryRowContext(ctx,
		"INSERT INTO products (name, description, price, stock, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?) RETURNING "+productColumns,
		p.Name, p.Description, p.Price.String(), p.Stock, toUnix(p.CreatedAt), toUnix(p.UpdatedAt),
	))
}

// Update overwrites the mutable columns of an existing product.
func (r *ProductRepo) Update(ctx context.Context, p domain.Product) (*domain.Product, error) {
	out, err := scanProduct(r.db.conn(ctx).QueryRowContext(ctx,
		"UPDATE products SET name = ?, description = ?, price = ?, stock = ?, updated_at = ? WHERE id = ? RETURNING "+productColumns,
		p.Name, p.Description, p.Price.String(), p.Stock, toUnix(p.UpdatedAt), p.ID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return out, err
}

// Delete removes a product and reports whether a row was removed.
func (r *ProductRepo) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.conn(ctx).ExecContext(ctx, "DELETE FROM products WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
