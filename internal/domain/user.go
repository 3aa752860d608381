// Package domain contains the core business entities and interfaces.
package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEmailTaken indicates that another user already registered the email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUsernameTaken indicates that another user already holds the username.
	ErrUsernameTaken = errors.New("username already taken")
)

// User represents a registered user. PasswordHash is never serialized.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserRepository defines the port for user persistence operations.
// Lookups return a nil user and a nil error when no row matches.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	// Create inserts the user and returns it with its ID assigned. A duplicate
	// email or username yields ErrEmailTaken or ErrUsernameTaken.
	Create(ctx context.Context, u User) (*User, error)
	// Update overwrites username, email and updated_at. The stored password
	// hash is only replaced when u.PasswordHash is non-empty.
	Update(ctx context.Context, u User) (*User, error)
	Delete(ctx context.Context, id int64) (bool, error)
}
