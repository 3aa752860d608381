// Package app holds the application services and business logic.
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"storefront/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials indicates that the email or password was incorrect.
	ErrInvalidCredentials = errors.New("incorrect email or password")
	// ErrInvalidToken indicates a malformed, forged or expired token, or one
	// whose subject no longer exists.
	ErrInvalidToken = errors.New("could not validate credentials")
	// ErrUnsupportedAlgorithm indicates a signing algorithm other than HMAC.
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
)

// DefaultTokenExpiration is the lifetime of an issued token.
const DefaultTokenExpiration = 60 * time.Minute

// TokenConfig configures token signing.
type TokenConfig struct {
	Secret     string
	Algorithm  string
	Expiration time.Duration
}

// AuthService handles password hashing and bearer token issuance. Tokens are
// stateless: a token stays valid until it expires.
type AuthService struct {
	users  *UserService
	method jwt.SigningMethod
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	verify func(hash, password string) bool
}

// dummyHash stands in for a missing or empty stored hash so that every
// login attempt costs one bcrypt comparison.
var dummyHash = sync.OnceValue(func() string {
	h, err := bcrypt.GenerateFromPassword([]byte("storefront-no-such-user"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return string(h)
})

// NewAuthService creates a new authentication service.
func NewAuthService(users *UserService, cfg TokenConfig) (*AuthService, error) {
	alg := cfg.Algorithm
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
	if cfg.Secret == "" {
		return nil, errors.New("token secret is required")
	}
	ttl := cfg.Expiration
	if ttl <= 0 {
		ttl = DefaultTokenExpiration
	}
	return &AuthService{
		users:  users,
		method: method,
		secret: []byte(cfg.Secret),
		ttl:    ttl,
		now:    time.Now,
		verify: VerifyPassword,
	}, nil
}

// HashPassword returns a salted bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Register hashes the password and creates the user.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*domain.User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	return s.users.CreateUser(ctx, domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	})
}

// Login checks the credentials and issues a token. An unknown email and a
// wrong password both yield ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if user == nil || user.PasswordHash == "" {
		s.verify(dummyHash(), password)
		return "", ErrInvalidCredentials
	}
	if !s.verify(user.PasswordHash, password) {
		return "", ErrInvalidCredentials
	}
	return s.IssueToken(user)
}

// IssueToken signs a token whose subject is the user's id.
func (s *AuthService) IssueToken(user *domain.User) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(user.ID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
}

// Authenticate verifies a token and resolves its subject to a stored user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: subject %q", ErrInvalidToken, claims.Subject)
	}

	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: unknown subject %d", ErrInvalidToken, id)
	}
	return user, nil
}

// LoginWithIdentity issues a token for a user already authenticated by an
// external identity provider, provisioning an account on first sight. The
// provisioned account has no password, so password login stays impossible.
func (s *AuthService) LoginWithIdentity(ctx context.Context, email, username string) (string, error) {
	if email == "" {
		return "", errors.New("identity has no email")
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if user == nil {
		if username == "" {
			username, _, _ = strings.Cut(email, "@")
		}
		user, err = s.users.CreateUser(ctx, domain.User{Username: username, Email: email})
		if errors.Is(err, domain.ErrUsernameTaken) {
			suffix, _, _ := strings.Cut(uuid.NewString(), "-")
			user, err = s.users.CreateUser(ctx, domain.User{Username: username + "-" + suffix, Email: email})
		}
		if errors.Is(err, domain.ErrEmailTaken) {
			// Lost a race with a concurrent first login.
			user, err = s.users.GetUserByEmail(ctx, email)
		}
		if err != nil {
			return "", err
		}
		if user == nil {
			return "", fmt.Errorf("provision %s: user vanished", email)
		}
	}
	return s.IssueToken(user)
}
