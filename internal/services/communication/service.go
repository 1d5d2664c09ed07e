// Package communication serves the active banner, in-app and mobile
// communications from cache and keeps the cache in step with database
// change events.
package communication

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/l0p7/gatewaycache/internal/cache"
	"github.com/l0p7/gatewaycache/internal/logging"
	"github.com/l0p7/gatewaycache/internal/lookup"
	"github.com/l0p7/gatewaycache/internal/metrics"
	"github.com/l0p7/gatewaycache/internal/result"
)

// Decisions reported for processed change events.
const (
	DecisionAdded       = "added"
	DecisionRefreshed   = "refreshed"
	DecisionRemoved     = "removed"
	DecisionReplaced    = "replaced"
	DecisionIgnored     = "ignored"
	DecisionUnsupported = "unsupported"
)

// Config wires a Service.
type Config struct {
	Store   Store
	Cache   cache.Provider
	Logger  *slog.Logger
	Metrics *metrics.Recorder
	// Now overrides the clock; defaults to time.Now.
	Now func() time.Time
}

// Service returns the active communication per type and reconciles cached
// entries with change events.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Recorder
	now     func() time.Time
	loader  *lookup.Loader[Type, Communication]
}

// New constructs a Service.
func New(cfg Config) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := logging.Or(cfg.Logger).With(slog.String("service", "communication"))
	s := &Service{store: cfg.Store, logger: logger, metrics: cfg.Metrics, now: now}
	s.loader = lookup.New(lookup.Config[Type, Communication]{
		Domain:  cache.DomainCommunication,
		Cache:   cfg.Cache,
		Logger:  logger,
		Metrics: cfg.Metrics,
		Enabled: true,
		Key: func(t Type) string {
			key, _ := CacheKey(t)
			return key
		},
		TTL: func(entry result.RequestResult[Communication]) cache.TTL {
			return entryTTL(entry, s.now())
		},
	})
	return s
}

// GetActiveCommunication returns the communication currently shown for t. A
// communication that is not yet effective is reported as a Success with no
// payload, whether it came from the cache or the store. Types without a cache
// slot fail with ErrUnsupportedCommunicationType.
func (s *Service) GetActiveCommunication(ctx context.Context, t Type) (result.RequestResult[Communication], error) {
	if _, err := CacheKey(t); err != nil {
		return result.RequestResult[Communication]{}, err
	}

	entry := s.loader.Get(ctx, t, s.fetch)
	if entry.ResourcePayload != nil && s.now().Before(entry.ResourcePayload.EffectiveDateTime) {
		s.logger.Debug("communication is future dated", slog.String("communication_id", entry.ResourcePayload.ID.String()))
		return result.Empty[Communication](), nil
	}
	return entry, nil
}

func (s *Service) fetch(ctx context.Context, t Type) result.RequestResult[Communication] {
	s.logger.Info("active communication not cached, querying store", slog.String("type", string(t)))
	res := s.store.GetNext(ctx, t)
	switch res.Status {
	case StoreRead, StoreNotFound:
		return cacheEntry(res.Payload, s.now())
	default:
		return result.Fail[Communication](res.Message, result.ServiceError(result.CommunicationInternal, result.Database))
	}
}

// ProcessChange reconciles the cached slot for the event's communication
// type. Only communications in the New status are ever written. Events for
// types without a cache slot are ignored. Cache write and remove failures are
// logged and returned joined.
func (s *Service) ProcessChange(ctx context.Context, event ChangeEvent) error {
	comm := event.Data
	if comm == nil {
		s.logger.Warn("change event without communication", slog.String("action", event.Action))
		return nil
	}
	action := strings.ToUpper(strings.TrimSpace(event.Action))
	logger := s.logger.With(
		slog.String("action", action),
		slog.String("type", string(comm.CommunicationTypeCode)),
		slog.String("communication_id", comm.ID.String()),
	)

	key, err := CacheKey(comm.CommunicationTypeCode)
	if err != nil {
		logger.Debug("change event for uncached communication type ignored")
		s.observe(comm, action, DecisionUnsupported)
		return nil
	}

	upsert := (action == ActionInsert || action == ActionUpdate) && comm.CommunicationStatusCode == StatusNew

	cached, ok := s.loader.Peek(ctx, key)
	if !ok || cached.ResourcePayload == nil {
		if !upsert {
			logger.Info("change event ignored, no communication cached")
			s.observe(comm, action, DecisionIgnored)
			return nil
		}
		logger.Info("no communication cached, caching changed communication")
		s.observe(comm, action, DecisionAdded)
		return s.add(ctx, key, comm)
	}

	current := cached.ResourcePayload
	if current.ID == comm.ID {
		removeErr := s.loader.Remove(ctx, key)
		if !upsert {
			logger.Info("cached communication removed")
			s.observe(comm, action, DecisionRemoved)
			return removeErr
		}
		logger.Info("cached communication refreshed")
		s.observe(comm, action, DecisionRefreshed)
		return errors.Join(removeErr, s.add(ctx, key, comm))
	}

	now := s.now()
	if upsert && now.Before(comm.ExpiryDateTime) && comm.EffectiveDateTime.Before(current.EffectiveDateTime) {
		logger.Info("changed communication replaces cached communication", slog.String("replaced_id", current.ID.String()))
		s.observe(comm, action, DecisionReplaced)
		return s.add(ctx, key, comm)
	}
	logger.Info("change event ignored, cached communication takes precedence", slog.String("cached_id", current.ID.String()))
	s.observe(comm, action, DecisionIgnored)
	return nil
}

// ClearCache removes the Banner, InApp and Mobile slots.
func (s *Service) ClearCache(ctx context.Context) error {
	var errs []error
	for _, t := range CachedTypes() {
		key, _ := CacheKey(t)
		errs = append(errs, s.loader.Remove(ctx, key))
	}
	return errors.Join(errs...)
}

func (s *Service) add(ctx context.Context, key string, comm *Communication) error {
	now := s.now()
	entry := cacheEntry(comm, now)
	return s.loader.Put(ctx, key, entry, entryTTL(entry, now))
}

func (s *Service) observe(comm *Communication, action, decision string) {
	s.metrics.ObserveChangeEvent(string(comm.CommunicationTypeCode), action, decision)
}

// cacheEntry shapes a store result for caching. A communication that is not
// yet effective is kept with a zero count so it can be served once it
// starts; an expired or missing one becomes an empty placeholder.
func cacheEntry(comm *Communication, now time.Time) result.RequestResult[Communication] {
	if comm == nil || !now.Before(comm.ExpiryDateTime) {
		return result.Empty[Communication]()
	}
	entry := result.Ok(*comm)
	if now.Before(comm.EffectiveDateTime) {
		entry.TotalResultCount = 0
	}
	return entry
}

// entryTTL keeps a future communication until it becomes effective, an
// active one until it expires, and a placeholder until explicitly removed.
func entryTTL(entry result.RequestResult[Communication], now time.Time) cache.TTL {
	comm := entry.ResourcePayload
	if comm == nil {
		return cache.Forever()
	}
	if now.Before(comm.EffectiveDateTime) {
		return cache.Until(comm.EffectiveDateTime.Sub(now))
	}
	return cache.Until(comm.ExpiryDateTime.Sub(now))
}
