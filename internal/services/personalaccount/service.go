// Package personalaccount resolves a patient's PHSA personal account.
package personalaccount

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/l0p7/gatewaycache/internal/cache"
	"github.com/l0p7/gatewaycache/internal/logging"
	"github.com/l0p7/gatewaycache/internal/lookup"
	"github.com/l0p7/gatewaycache/internal/metrics"
	"github.com/l0p7/gatewaycache/internal/result"
)

// PatientIdentity links an account to its owner.
type PatientIdentity struct {
	HdID string `json:"hdid"`
	PID  string `json:"pid"`
}

// Account is a PHSA personal account.
type Account struct {
	ID                    string          `json:"id"`
	PatientIdentity       PatientIdentity `json:"patientIdentity"`
	CreationTimeStampUTC  time.Time       `json:"creationTimeStampUtc"`
	ModifiedTimeStampUTC  time.Time       `json:"modifiedTimeStampUtc"`
	AccountStatusCode     string          `json:"accountStatusCode,omitempty"`
	NotificationsOptedOut bool            `json:"notificationsOptedOut,omitempty"`
}

// Fetcher is the personal accounts delegate.
type Fetcher interface {
	GetPatientAccount(ctx context.Context, hdid string) result.RequestResult[Account]
}

// Config wires a Service.
type Config struct {
	Fetcher Fetcher
	Cache   cache.Provider
	Logger  *slog.Logger
	Metrics *metrics.Recorder
	// CacheTTLMinutes of 0 disables caching.
	CacheTTLMinutes int
}

// Service looks up personal accounts by HDID.
type Service struct {
	fetcher Fetcher
	ttl     atomic.Int64
	loader  *lookup.Loader[string, Account]
}

// New constructs a Service.
func New(cfg Config) *Service {
	s := &Service{fetcher: cfg.Fetcher}
	s.loader = lookup.New(lookup.Config[string, Account]{
		Domain:  cache.DomainPersonalAccount,
		Cache:   cfg.Cache,
		Logger:  logging.Or(cfg.Logger).With(slog.String("service", "personalaccount")),
		Metrics: cfg.Metrics,
		Key:     CacheKey,
		TTL: func(result.RequestResult[Account]) cache.TTL {
			return cache.Minutes(int(s.ttl.Load()))
		},
	})
	s.SetCacheTTL(cfg.CacheTTLMinutes)
	return s
}

// CacheKey returns the key an account is cached under.
func CacheKey(hdid string) string {
	return cache.Key(cache.DomainPersonalAccount, "HDID", hdid)
}

// SetCacheTTL changes the cache lifetime at runtime; 0 disables caching.
func (s *Service) SetCacheTTL(minutes int) {
	if minutes < 0 {
		minutes = 0
	}
	s.ttl.Store(int64(minutes))
	s.loader.SetEnabled(minutes > 0)
}

// GetPatientAccount returns the personal account owned by hdid.
func (s *Service) GetPatientAccount(ctx context.Context, hdid string) result.RequestResult[Account] {
	return s.loader.Get(ctx, hdid, s.fetcher.GetPatientAccount)
}
