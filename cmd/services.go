package cmd

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"sjsage522/listingworker/config"
	"sjsage522/listingworker/helpers"
	"sjsage522/listingworker/internal/proxy"
	"sjsage522/listingworker/internal/session"
	"sjsage522/listingworker/internal/store"
	"sjsage522/listingworker/logger"
	"sjsage522/listingworker/services/cache"
	"sjsage522/listingworker/services/status"
)

// Services holds all the initialized services
type Services struct {
	Config   *config.Config
	Store    *store.Store
	Cache    cache.CacheService
	Proxies  *proxy.Manager
	Failures helpers.LoggerInterface
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			logger.Default.Warn().Err(err).Msg("Failed to close database")
		}
	}
}

// servicesFactory builds the services of one command from a loaded config
type servicesFactory func(ctx context.Context, cfg *config.Config) (*Services, error)

// initializeServices validates cfg and connects to the database. Memcache is
// optional; without it the catalog cache lives in process memory.
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	log := logger.Default

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	services := &Services{
		Config:   cfg,
		Failures: helpers.NewFailureLogger(cfg.FailureLogFile),
		Proxies: proxy.NewManager(proxy.Options{
			SourceURL:   cfg.ProxySourceURL,
			MaxAttempts: cfg.ProxyMaxAttempts,
		}),
	}

	db, err := store.NewPostgresConnection(cfg.DSN())
	if err != nil {
		return nil, err
	}
	services.Store = store.New(db)
	if err := services.Store.Migrate(ctx); err != nil {
		services.Cleanup()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	log.Info().Str("host", cfg.DatabaseHost).Str("database", cfg.DatabaseName).Msg("Connected to Postgres")

	services.Cache = selectCache(cfg.MemcacheAddr)
	return services, nil
}

// selectCache returns memcache when addr is set and answers, otherwise an
// in-process cache so rate-limit markers still hold for this run.
func selectCache(addr string) cache.CacheService {
	log := logger.Default
	if addr == "" {
		log.Debug().Msg("No memcache configured, using in-process catalog cache")
		return cache.NewMemoryCache()
	}
	mc := cache.NewMemcacheService(addr)
	if err := mc.Ping(); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("Memcache unavailable, using in-process catalog cache")
		return cache.NewMemoryCache()
	}
	log.Info().Str("addr", addr).Msg("Connected to Memcache")
	return mc
}

// newStatusReporter connects to Redis for run status. It does not depend on
// the database, so a run that fails during setup can still be reported.
func newStatusReporter(ctx context.Context, cfg *config.Config) status.Reporter {
	log := logger.ForStatus()
	if cfg.RedisAddr == "" {
		return status.NopReporter{}
	}
	reporter := status.NewRedisReporter(cfg.RedisAddr, cfg.RedisDB, cfg.RedisStatusChannel)
	if err := reporter.Ping(ctx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unavailable, run status disabled")
		reporter.Close()
		return status.NopReporter{}
	}
	log.Info().
		Str("addr", cfg.RedisAddr).
		Int("db", cfg.RedisDB).
		Str("channel", cfg.RedisStatusChannel).
		Msg("Connected to Redis")
	return reporter
}

// warmupRoot is the site root a session warms up against. A --base-url
// override points the warmup at the same host as the catalog.
func warmupRoot(baseURL, locale string) string {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return session.BaseURL(locale)
	}
	return u.Scheme + "://" + u.Host + "/"
}

// newSession creates the session manager for one locale
func (s *Services) newSession(root, locale string, useProxy bool) *session.Manager {
	return session.NewManager(session.Options{
		BaseURL:     root,
		CookiesFile: session.CookiePath(s.Config.CookiesFile, locale),
		UseProxy:    useProxy,
		Proxies:     s.Proxies,
		Timeout:     s.Config.HTTPTimeout,
	})
}
