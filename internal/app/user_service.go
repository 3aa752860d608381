package app

import (
	"context"
	"time"

	"storefront/internal/domain"
)

// UserService encapsulates user account use cases.
type UserService struct {
	repo domain.UserRepository
	now  func() time.Time
}

// NewUserService creates a UserService backed by the given repository.
func NewUserService(repo domain.UserRepository) *UserService {
	return &UserService{repo: repo, now: time.Now}
}

// GetUser returns the user with the given id, or nil if there is none.
func (s *UserService) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	return s.repo.GetByID(ctx, id)
}

// GetUserByEmail returns the user registered with email, or nil.
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.repo.GetByEmail(ctx, email)
}

// CreateUser stores a new user after checking that neither the email nor the
// username is in use. The checks are advisory; the store's unique constraints
// settle concurrent registrations.
func (s *UserService) CreateUser(ctx context.Context, u domain.User) (*domain.User, error) {
	byEmail, err := s.repo.GetByEmail(ctx, u.Email)
	if err != nil {
		return nil, err
	}
	if byEmail != nil {
		return nil, domain.ErrEmailTaken
	}

	byUsername, err := s.repo.GetByUsername(ctx, u.Username)
	if err != nil {
		return nil, err
	}
	if byUsername != nil {
		return nil, domain.ErrUsernameTaken
	}

	now := s.now().UTC()
	u.ID = 0
	u.CreatedAt = now
	u.UpdatedAt = now
	return s.repo.Create(ctx, u)
}

// UpdateUser overwrites the stored user, keeping its creation time. It
// returns nil when the user does not exist.
func (s *UserService) UpdateUser(ctx context.Context, id int64, u domain.User) (*domain.User, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	u.ID = id
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = s.now().UTC()
	return s.repo.Update(ctx, u)
}

// DeleteUser removes the user and reports whether it existed.
func (s *UserService) DeleteUser(ctx context.Context, id int64) (bool, error) {
	return s.repo.Delete(ctx, id)
}
