package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adapthttp "storefront/internal/adapter/http"
	"storefront/internal/adapter/localcache"
	"storefront/internal/adapter/memory"
	"storefront/internal/adapter/postgres"
	"storefront/internal/adapter/redis"
	"storefront/internal/adapter/sqlite"
	"storefront/internal/app"
	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// store bundles the repositories of one persistence backend.
type store struct {
	products domain.ProductRepository
	users    domain.UserRepository
	tx       domain.Transactor
	closer   io.Closer
}

func openStore(cfg *config.Config) (*store, error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		db, err := postgres.Open(cfg.Postgres.DSN())
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return &store{
			products: postgres.NewProductRepo(db),
			users:    postgres.NewUserRepo(db),
			tx:       db.Transactor(),
			closer:   db,
		}, nil
	case config.StoreSQLite:
		db, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return &store{
			products: sqlite.NewProductRepo(db),
			users:    sqlite.NewUserRepo(db),
			tx:       db.Transactor(),
			closer:   db,
		}, nil
	default:
		db := memory.New()
		return &store{products: db.Products(), users: db.Users(), tx: db}, nil
	}
}

// openCache returns the configured cache backend, or nil when caching is
// off or the backend is unreachable.
func openCache(ctx context.Context, cfg *config.Config, log *slog.Logger) (domain.CacheRepository, func()) {
	switch cfg.Cache.Driver {
	case config.CacheRedis:
		c, err := redis.New(ctx, redis.Options{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
		})
		if err != nil {
			log.Warn("redis unavailable, serving without cache", "addr", cfg.Redis.Host, "error", err)
			return nil, func() {}
		}
		return c, func() { _ = c.Close() }
	case config.CacheLocal:
		lc := localcache.DefaultConfig()
		lc.Capacity = cfg.Cache.LocalCapacity
		c, err := localcache.New(lc)
		if err != nil {
			log.Warn("local cache misconfigured, serving without cache", "error", err)
			return nil, func() {}
		}
		return c, func() { log.Info("local cache closed", "entries", c.Len()) }
	default:
		return nil, func() {}
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	if st.closer != nil {
		defer func() { _ = st.closer.Close() }()
	}

	cacheRepo, closeCache := openCache(ctx, cfg, log)
	defer closeCache()

	cache := app.NewCacheService(cacheRepo, log)
	products := app.NewProductService(st.products, cache, app.ProductCacheConfig{
		TTL:               cfg.Cache.ProductTTL,
		InvalidateOnWrite: cfg.Cache.InvalidateOnWrite,
	}, log)
	users := app.NewUserService(st.users)
	auth, err := app.NewAuthService(users, app.TokenConfig{
		Secret:     cfg.JWT.Secret,
		Algorithm:  cfg.JWT.Algorithm,
		Expiration: cfg.JWT.Expiration(),
	})
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	var sso *adapthttp.SSOConfig
	if cfg.OIDC.Enabled() {
		sso, err = adapthttp.NewSSOConfig(ctx, cfg.OIDC.Issuer, cfg.OIDC.ClientID, cfg.OIDC.ClientSecret, cfg.OIDC.RedirectURL)
		if err != nil {
			return fmt.Errorf("oidc: %w", err)
		}
	}

	h := adapthttp.New(products, users, auth, adapthttp.Options{
		Log:        log,
		Transactor: st.tx,
		SSO:        sso,
		CORSOrigin: cfg.CORSOrigin,
	}).Handler()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.HTTPAddr, "store", cfg.Store.Driver, "cache", cfg.Cache.Driver)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
