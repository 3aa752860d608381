package domain

import "context"

// Transactor groups the store operations issued through ctx into one unit of
// work. fn's error (or panic) rolls the unit back; a nil return commits it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
