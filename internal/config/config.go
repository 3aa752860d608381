// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"time"

	"storefront/internal/logging"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// Cache drivers.
const (
	CacheRedis = "redis"
	CacheLocal = "local"
	CacheNone  = "none"
)

// Config is the complete service configuration.
type Config struct {
	HTTPAddr   string `env:"HTTP_ADDR" default:":8000"`
	CORSOrigin string `env:"CORS_ORIGIN" default:"*"`

	Log      logging.Config `envPrefix:"LOG_"`
	Store    StoreConfig
	Postgres PostgresConfig `envPrefix:"POSTGRES_"`
	SQLite   SQLiteConfig   `envPrefix:"SQLITE_"`
	Cache    CacheConfig    `envPrefix:"CACHE_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	JWT      JWTConfig      `envPrefix:"JWT_"`
	OIDC     OIDCConfig     `envPrefix:"OIDC_"`
}

// StoreConfig selects the persistent store.
type StoreConfig struct {
	Driver string `env:"STORE_DRIVER" default:"postgres"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `env:"HOST" default:"localhost"`
	Port     int    `env:"PORT" default:"5432"`
	User     string `env:"USER" default:"postgres"`
	Password string `env:"PASSWORD" default:"postgres"`
	Database string `env:"DATABASE" default:"storefront"`
	SSLMode  string `env:"SSLMODE" default:"disable"`
}

// DSN returns a lib/pq connection URL.
func (c PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// SQLiteConfig holds the embedded database location.
type SQLiteConfig struct {
	Path string `env:"PATH" default:"var/storefront.db"`
}

// CacheConfig selects and tunes the cache.
type CacheConfig struct {
	Driver            string        `env:"DRIVER" default:"redis"`
	ProductTTL        time.Duration `env:"PRODUCT_TTL" default:"1h"`
	InvalidateOnWrite bool          `env:"INVALIDATE_ON_WRITE" default:"false"`
	LocalCapacity     int           `env:"LOCAL_CAPACITY" default:"10000"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Host     string `env:"HOST" default:"localhost"`
	Port     int    `env:"PORT" default:"6379"`
	DB       int    `env:"DB" default:"0"`
	Password string `env:"PASSWORD" default:""`
}

// JWTConfig holds token signing parameters.
type JWTConfig struct {
	Secret            string `env:"SECRET"`
	Algorithm         string `env:"ALGORITHM" default:"HS256"`
	ExpirationMinutes int    `env:"EXPIRATION_MINUTES" default:"60"`
}

// Expiration returns the token lifetime.
func (c JWTConfig) Expiration() time.Duration {
	return time.Duration(c.ExpirationMinutes) * time.Minute
}

// OIDCConfig enables single sign-on when Issuer is set.
type OIDCConfig struct {
	Issuer       string `env:"ISSUER" default:""`
	ClientID     string `env:"CLIENT_ID" default:""`
	ClientSecret string `env:"CLIENT_SECRET" default:""`
	RedirectURL  string `env:"REDIRECT_URL" default:""`
}

// Enabled reports whether SSO is configured.
func (c OIDCConfig) Enabled() bool {
	return c.Issuer != ""
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that Parse cannot.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StorePostgres, StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("STORE_DRIVER: unknown driver %q", c.Store.Driver)
	}
	switch c.Cache.Driver {
	case CacheRedis, CacheLocal, CacheNone:
	default:
		return fmt.Errorf("CACHE_DRIVER: unknown driver %q", c.Cache.Driver)
	}
	if c.Cache.ProductTTL < 0 {
		return fmt.Errorf("CACHE_PRODUCT_TTL: must not be negative")
	}
	if c.JWT.ExpirationMinutes <= 0 {
		return fmt.Errorf("JWT_EXPIRATION_MINUTES: must be positive")
	}
	if c.OIDC.Enabled() && (c.OIDC.ClientID == "" || c.OIDC.RedirectURL == "") {
		return fmt.Errorf("OIDC_ISSUER set without OIDC_CLIENT_ID and OIDC_REDIRECT_URL")
	}
	return nil
}
