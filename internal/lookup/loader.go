// Package lookup implements the read-through pattern shared by every lookup
// service: read the cache, fetch on a miss, store successful results under
// each key the entity is known by.
package lookup

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/l0p7/gatewaycache/internal/cache"
	"github.com/l0p7/gatewaycache/internal/logging"
	"github.com/l0p7/gatewaycache/internal/metrics"
	"github.com/l0p7/gatewaycache/internal/result"
)

// Fetch calls the upstream delegate for id.
type Fetch[K, T any] func(ctx context.Context, id K) result.RequestResult[T]

// Config wires a Loader for one entity type.
type Config[K, T any] struct {
	Domain  cache.Domain
	Cache   cache.Provider
	Logger  *slog.Logger
	Metrics *metrics.Recorder
	// Enabled turns the cache on. A disabled loader always fetches and never
	// touches the cache.
	Enabled bool
	// Key derives the read key from the identifier.
	Key func(id K) string
	// StoreKeys returns every key a fetched result is written under. When nil
	// the read key is used.
	StoreKeys func(id K, res result.RequestResult[T]) []string
	// TTL computes the lifetime of a fetched result.
	TTL func(res result.RequestResult[T]) cache.TTL
}

// Loader is a read-through cache in front of one upstream delegate. Concurrent
// misses for the same key are not collapsed; each caller fetches and stores
// its own snapshot.
type Loader[K, T any] struct {
	domain    cache.Domain
	cache     cache.Provider
	logger    *slog.Logger
	metrics   *metrics.Recorder
	enabled   atomic.Bool
	key       func(K) string
	storeKeys func(K, result.RequestResult[T]) []string
	ttl       func(result.RequestResult[T]) cache.TTL
}

// New constructs a Loader. A nil cache provider leaves the loader permanently
// disabled.
func New[K, T any](cfg Config[K, T]) *Loader[K, T] {
	l := &Loader[K, T]{
		domain:    cfg.Domain,
		cache:     cfg.Cache,
		logger:    logging.Or(cfg.Logger).With(slog.String("domain", cfg.Domain.String())),
		metrics:   cfg.Metrics,
		key:       cfg.Key,
		storeKeys: cfg.StoreKeys,
		ttl:       cfg.TTL,
	}
	if l.ttl == nil {
		l.ttl = func(result.RequestResult[T]) cache.TTL { return cache.Forever() }
	}
	l.SetEnabled(cfg.Enabled)
	return l
}

// Option adjusts a single Get call.
type Option func(*options)

type options struct {
	skipStore bool
}

// SkipStore reads the cache but never writes the fetched result.
func SkipStore() Option {
	return func(o *options) { o.skipStore = true }
}

// SetEnabled toggles caching for subsequent calls.
func (l *Loader[K, T]) SetEnabled(enabled bool) {
	l.enabled.Store(enabled && l.cache != nil)
}

// Enabled reports whether Get consults the cache.
func (l *Loader[K, T]) Enabled() bool { return l.enabled.Load() }

// Get returns the cached result for id, or fetches it and writes it through.
// Non-success results from fetch are returned unchanged and never cached.
func (l *Loader[K, T]) Get(ctx context.Context, id K, fetch Fetch[K, T], opts ...Option) result.RequestResult[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if !l.Enabled() {
		l.metrics.ObserveCacheLookup(l.domain.String(), metrics.CacheLookupBypassed, 0)
		return l.fetch(ctx, id, fetch)
	}

	key := l.key(id)
	if cached, ok := l.Peek(ctx, key); ok {
		l.logger.Debug("cache hit", slog.String("cache_key", key))
		return cached
	}
	l.logger.Debug("cache miss", slog.String("cache_key", key))

	res := l.fetch(ctx, id, fetch)
	if !res.IsSuccess() {
		return res
	}
	if o.skipStore {
		l.logger.Debug("cache store skipped", slog.String("cache_key", key))
		return res
	}

	ttl := l.ttl(res)
	if !ttl.Stores() {
		return res
	}
	keys := []string{key}
	if l.storeKeys != nil {
		keys = l.storeKeys(id, res)
	}
	for _, k := range keys {
		// Write failures are already logged and counted.
		_ = l.Put(ctx, k, res, ttl)
	}
	return res
}

// Peek reads key without fetching. Backend failures are logged and reported
// as a miss.
func (l *Loader[K, T]) Peek(ctx context.Context, key string) (result.RequestResult[T], bool) {
	var cached result.RequestResult[T]
	if l.cache == nil {
		return cached, false
	}
	start := time.Now()
	found, err := l.cache.Get(ctx, key, &cached)
	switch {
	case err != nil:
		l.metrics.ObserveCacheLookup(l.domain.String(), metrics.CacheLookupError, time.Since(start))
		l.logger.Warn("cache read failed", slog.String("cache_key", key), slog.Any("error", err))
		return result.RequestResult[T]{}, false
	case !found:
		l.metrics.ObserveCacheLookup(l.domain.String(), metrics.CacheLookupMiss, time.Since(start))
		return result.RequestResult[T]{}, false
	}
	l.metrics.ObserveCacheLookup(l.domain.String(), metrics.CacheLookupHit, time.Since(start))
	return cached, true
}

// Put stores res under key. Failures are logged and counted before being
// returned.
func (l *Loader[K, T]) Put(ctx context.Context, key string, res result.RequestResult[T], ttl cache.TTL) error {
	if l.cache == nil || !ttl.Stores() {
		return nil
	}
	start := time.Now()
	err := l.cache.Set(ctx, key, res, ttl)
	outcome := metrics.CacheWriteOK
	if err != nil {
		outcome = metrics.CacheWriteError
	}
	l.metrics.ObserveCacheStore(l.domain.String(), outcome, time.Since(start))
	if err != nil {
		l.logger.Error("cache store failed", slog.String("cache_key", key), slog.Any("ttl", ttl), slog.Any("error", err))
		return err
	}
	l.logger.Debug("cache stored", slog.String("cache_key", key), slog.Any("ttl", ttl))
	return nil
}

// Remove deletes key. Failures are logged and counted before being returned.
func (l *Loader[K, T]) Remove(ctx context.Context, key string) error {
	if l.cache == nil {
		return nil
	}
	start := time.Now()
	err := l.cache.Remove(ctx, key)
	outcome := metrics.CacheWriteOK
	if err != nil {
		outcome = metrics.CacheWriteError
	}
	l.metrics.ObserveCacheRemove(l.domain.String(), outcome, time.Since(start))
	if err != nil {
		l.logger.Error("cache remove failed", slog.String("cache_key", key), slog.Any("error", err))
		return err
	}
	l.logger.Debug("cache removed", slog.String("cache_key", key))
	return nil
}

func (l *Loader[K, T]) fetch(ctx context.Context, id K, fetch Fetch[K, T]) result.RequestResult[T] {
	start := time.Now()
	res := fetch(ctx, id)
	l.metrics.ObserveUpstream(l.domain.String(), string(res.ResultStatus), time.Since(start))
	if !res.IsSuccess() {
		l.logger.Warn("upstream lookup failed",
			slog.String("status", string(res.ResultStatus)),
			slog.String("error_code", res.Code()),
			slog.String("message", res.Message()))
	}
	return res
}
