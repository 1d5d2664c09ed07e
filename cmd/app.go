package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/l0p7/gatewaycache/internal/cache"
	"github.com/l0p7/gatewaycache/internal/changefeed"
	"github.com/l0p7/gatewaycache/internal/config"
	"github.com/l0p7/gatewaycache/internal/delegates/clientregistry"
	"github.com/l0p7/gatewaycache/internal/delegates/communicationdb"
	"github.com/l0p7/gatewaycache/internal/delegates/phsa"
	"github.com/l0p7/gatewaycache/internal/delegates/restclient"
	"github.com/l0p7/gatewaycache/internal/metrics"
	"github.com/l0p7/gatewaycache/internal/server"
	"github.com/l0p7/gatewaycache/internal/services/accesstoken"
	"github.com/l0p7/gatewaycache/internal/services/communication"
	"github.com/l0p7/gatewaycache/internal/services/patient"
	"github.com/l0p7/gatewaycache/internal/services/personalaccount"
)

// feed is a change-event source.
type feed interface {
	Run(ctx context.Context) error
	// Up reports whether the source is currently subscribed.
	Up() bool
}

// app holds the assembled lookup services and their infrastructure.
type app struct {
	logger  *slog.Logger
	cache   cache.Provider
	metrics *metrics.Recorder

	tokens         *accesstoken.Service
	patients       *patient.Service
	accounts       *personalaccount.Service
	communications *communication.Service

	feed feed

	closers []func(context.Context)
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		logger:  logger,
		metrics: metrics.NewRecorder(prometheus.NewRegistry()),
	}
	a.cache = buildCache(logger.With(slog.String("agent", "cache_factory")), cfg.Cache)
	a.closers = append(a.closers, func(ctx context.Context) {
		if err := a.cache.Close(ctx); err != nil {
			logger.Error("cache shutdown failed", slog.Any("error", err))
		}
	})

	swapper := phsa.NewTokenSwapper(phsa.TokenSwapConfig{
		URL:          cfg.AccessToken.TokenSwapURL,
		ClientID:     cfg.AccessToken.ClientID,
		ClientSecret: cfg.AccessToken.ClientSecret,
		GrantType:    cfg.AccessToken.GrantType,
		Scope:        cfg.AccessToken.Scope,
		Client:       restclient.Config{Timeout: config.Timeout(cfg.AccessToken.TimeoutSeconds)},
		Logger:       logger,
	})
	a.closers = append(a.closers, func(context.Context) { swapper.Close() })
	a.tokens = accesstoken.New(accesstoken.Config{
		Swapper:      swapper,
		Cache:        a.cache,
		Logger:       logger,
		Metrics:      a.metrics,
		CacheEnabled: cfg.AccessToken.TokenCacheEnabled,
	})

	registry := clientregistry.New(clientregistry.Config{
		Client: restclient.Config{
			BaseURL:    cfg.Patient.RegistryURL,
			Timeout:    config.Timeout(cfg.Patient.TimeoutSeconds),
			RetryCount: 2,
		},
		Logger: logger,
	})
	a.closers = append(a.closers, func(context.Context) { registry.Close() })
	a.patients = patient.New(patient.Config{
		Registry:        registry,
		Cache:           a.cache,
		Logger:          logger,
		Metrics:         a.metrics,
		CacheTTLMinutes: cfg.Patient.CacheTTLMinutes,
	})

	accounts := phsa.NewAccountsClient(phsa.AccountsConfig{
		Tokens: a.tokens,
		Client: restclient.Config{
			BaseURL:    cfg.PersonalAccount.BaseURL,
			Timeout:    config.Timeout(cfg.PersonalAccount.TimeoutSeconds),
			RetryCount: 2,
		},
		Logger: logger,
	})
	a.closers = append(a.closers, func(context.Context) { accounts.Close() })
	a.accounts = personalaccount.New(personalaccount.Config{
		Fetcher:         accounts,
		Cache:           a.cache,
		Logger:          logger,
		Metrics:         a.metrics,
		CacheTTLMinutes: cfg.PersonalAccount.CacheTTLMinutes,
	})

	var store communication.Store = unconfiguredStore{}
	if url := strings.TrimSpace(cfg.Communication.DatabaseURL); url != "" {
		pool, err := pgxpool.New(ctx, url)
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("communication database: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) { pool.Close() })
		store = communicationdb.New(pool, logger)
	} else {
		logger.Warn("communication database not configured; active communications unavailable")
	}
	a.communications = communication.New(communication.Config{
		Store:   store,
		Cache:   a.cache,
		Logger:  logger,
		Metrics: a.metrics,
	})

	f, err := a.buildFeed(cfg.ChangeFeed, cfg.Communication.DatabaseURL)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.feed = f
	return a, nil
}

func (a *app) buildFeed(cfg config.ChangeFeedConfig, databaseURL string) (feed, error) {
	dispatcher := changefeed.NewDispatcher(a.communications, a.logger)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "none":
		return nil, nil
	case "postgres":
		return changefeed.NewPostgresListener(changefeed.PostgresConfig{
			Connect:          changefeed.DialPostgres(databaseURL),
			Channel:          cfg.Channel,
			MaxRetryAttempts: cfg.MaxRetryAttempts,
			SleepDuration:    cfg.SleepDuration(),
			Dispatcher:       dispatcher,
			Logger:           a.logger,
		}), nil
	case "nats":
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("gatewaycache"), nats.MaxReconnects(-1))
		if err != nil {
			return nil, fmt.Errorf("change feed: nats connect: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) { nc.Close() })
		return changefeed.NewNATSListener(nc, cfg.NATS.Subject, dispatcher, a.logger), nil
	default:
		return nil, fmt.Errorf("change feed: unsupported backend %q", cfg.Backend)
	}
}

// runChangeFeed blocks until ctx ends or the feed gives up.
func (a *app) runChangeFeed(ctx context.Context) {
	if a.feed == nil {
		return
	}
	if err := a.feed.Run(ctx); err != nil {
		a.logger.Error("change feed stopped", slog.Any("error", err))
	}
}

// reconfigure applies reloadable settings to the running services.
func (a *app) reconfigure(cfg config.Config) {
	a.tokens.SetCacheEnabled(cfg.AccessToken.TokenCacheEnabled)
	a.patients.SetCacheTTL(cfg.Patient.CacheTTLMinutes)
	a.accounts.SetCacheTTL(cfg.PersonalAccount.CacheTTLMinutes)
	a.logger.Info("configuration reloaded",
		slog.Bool("token_cache_enabled", cfg.AccessToken.TokenCacheEnabled),
		slog.Int("patient_cache_ttl_minutes", cfg.Patient.CacheTTLMinutes),
		slog.Int("personal_account_cache_ttl_minutes", cfg.PersonalAccount.CacheTTLMinutes))
}

func (a *app) opsHandler() http.Handler {
	ops := server.OpsConfig{
		Cache:   a.cache,
		Metrics: a.metrics.Handler(),
		Logger:  a.logger,
	}
	if a.feed != nil {
		ops.ChangeFeedUp = a.feed.Up
	}
	return server.NewOpsHandler(ops)
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
	a.closers = nil
}

func buildCache(logger *slog.Logger, cfg config.CacheConfig) cache.Provider {
	switch strings.TrimSpace(strings.ToLower(cfg.Backend)) {
	case "", "memory":
		logger.Info("using memory cache")
		return cache.NewMemory()
	case "redis":
		redisCache, err := cache.NewRedis(cache.RedisConfig{
			Address:  cfg.Redis.Address,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS: cache.RedisTLSConfig{
				Enabled: cfg.Redis.TLS.Enabled,
				CAFile:  cfg.Redis.TLS.CAFile,
			},
		})
		if err != nil {
			logger.Error("redis cache initialization failed", slog.Any("error", err))
			logger.Info("falling back to memory cache")
			return cache.NewMemory()
		}
		logger.Info("using redis cache", slog.String("address", cfg.Redis.Address))
		return redisCache
	default:
		logger.Warn("unsupported cache backend, defaulting to memory", slog.String("backend", cfg.Backend))
		return cache.NewMemory()
	}
}

// unconfiguredStore answers every lookup with a store error so results are
// never cached.
type unconfiguredStore struct{}

func (unconfiguredStore) GetNext(context.Context, communication.Type) communication.StoreResult {
	return communication.StoreResult{
		Status:  communication.StoreError,
		Message: "communication database not configured",
	}
}
