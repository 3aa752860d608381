package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidProduct indicates a product that violates its invariants.
var ErrInvalidProduct = errors.New("invalid product data")

// Product is a sellable item. ID is zero until the product is persisted.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// IsValid reports whether the product has a name, a positive price and a
// non-negative stock.
func (p Product) IsValid() bool {
	return strings.TrimSpace(p.Name) != "" && p.Price.IsPositive() && p.Stock >= 0
}

// ProductPatch carries a partial product update. Nil fields are left as-is.
type ProductPatch struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Stock       *int
}

// Apply returns a copy of p with the non-nil patch fields written over it.
func (pp ProductPatch) Apply(p Product) Product {
	if pp.Name != nil {
		p.Name = *pp.Name
	}
	if pp.Description != nil {
		d := *pp.Description
		p.Description = &d
	}
	if pp.Price != nil {
		p.Price = *pp.Price
	}
	if pp.Stock != nil {
		p.Stock = *pp.Stock
	}
	return p
}

// ProductRepository is the port for product persistence.
// GetByID returns a nil product and a nil error when no row matches.
type ProductRepository interface {
	GetAll(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	Create(ctx context.Context, p Product) (*Product, error)
	Update(ctx context.Context, p Product) (*Product, error)
	Delete(ctx context.Context, id int64) (bool, error)
}
