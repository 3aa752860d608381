package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"storefront/internal/domain"
)

const userColumns = "id, username, email, password_hash, created_at, updated_at"

// UserRepo implements domain.UserRepository on DB.
type UserRepo struct {
	db *DB
}

// NewUserRepo wraps a DB as a UserRepository.
func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u                domain.User
		created, updated int64
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = fromUnix(created)
	u.UpdatedAt = fromUnix(updated)
	return &u, nil
}

// GetByID retrieves a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return scanUser(r.db.conn(ctx).QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

// GetByEmail retrieves a user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(r.db.conn(ctx).QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = ?", email))
}

// GetByUsername retrieves a user by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return scanUser(r.db.conn(ctx).QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = ?", username))
}

// Create inserts a user. A duplicate email or username yields the matching
// domain error.
func (r *UserRepo) Create(ctx context.Context, u domain.User) (*domain.User, error) {
	out, err := scanUser(r.db.conn(ctx).QueryRowContext(ctx,
		"INSERT INTO users (username, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?) RETURNING "+userColumns,
		u.Username, u.Email, u.PasswordHash, toUnix(u.CreatedAt), toUnix(u.UpdatedAt),
	))
	if err != nil {
		return nil, mapUniqueViolation(err)
	}
	return out, nil
}

// Update overwrites an existing user. The password hash is only replaced
// when u carries one.
func (r *UserRepo) Update(ctx context.Context, u domain.User) (*domain.User, error) {
	out, err := scanUser(r.db.conn(ctx).QueryRowContext(ctx,
		`UPDATE users SET username = ?, email = ?,
			password_hash = COALESCE(NULLIF(?, ''), password_hash),
			updated_at = ?
		WHERE id = ? RETURNING `+userColumns,
		u.Username, u.Email, u.PasswordHash, toUnix(u.UpdatedAt), u.ID,
	))
	if err != nil {
		return nil, mapUniqueViolation(err)
	}
	return out, nil
}

// Delete removes a user and reports whether a row was removed.
func (r *UserRepo) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.conn(ctx).ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
