// Package patient resolves patient demographics from the client registry,
// caching each record under both its HDID and its PHN.
package patient

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/l0p7/gatewaycache/internal/cache"
	"github.com/l0p7/gatewaycache/internal/logging"
	"github.com/l0p7/gatewaycache/internal/lookup"
	"github.com/l0p7/gatewaycache/internal/metrics"
	"github.com/l0p7/gatewaycache/internal/result"
)

// IdentifierType names the identifier a lookup is keyed by.
type IdentifierType string

const (
	HDID IdentifierType = "HDID"
	PHN  IdentifierType = "PHN"
)

// Address is a postal or physical address.
type Address struct {
	StreetLines []string `json:"streetLines,omitempty"`
	City        string   `json:"city,omitempty"`
	State       string   `json:"state,omitempty"`
	PostalCode  string   `json:"postalCode,omitempty"`
	Country     string   `json:"country,omitempty"`
}

// Model is the demographic record returned by the client registry.
type Model struct {
	HdID                 string    `json:"hdid"`
	PersonalHealthNumber string    `json:"personalHealthNumber"`
	FirstName            string    `json:"firstName"`
	LastName             string    `json:"lastName"`
	Birthdate            time.Time `json:"birthdate"`
	Gender               string    `json:"gender,omitempty"`
	PhysicalAddress      *Address  `json:"physicalAddress,omitempty"`
	PostalAddress        *Address  `json:"postalAddress,omitempty"`
}

// Registry is the client registry delegate.
type Registry interface {
	GetDemographicsByHDID(ctx context.Context, hdid string, disableIDValidation bool) result.RequestResult[Model]
	GetDemographicsByPHN(ctx context.Context, phn string, disableIDValidation bool) result.RequestResult[Model]
}

// Config wires a Service.
type Config struct {
	Registry Registry
	Cache    cache.Provider
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
	// CacheTTLMinutes of 0 disables caching.
	CacheTTLMinutes int
}

// Identifier is a patient identifier together with its type.
type Identifier struct {
	Value string
	Type  IdentifierType
}

// Service looks up patients by HDID or PHN.
type Service struct {
	registry Registry
	logger   *slog.Logger
	ttl      atomic.Int64
	loader   *lookup.Loader[Identifier, Model]
}

// New constructs a Service.
func New(cfg Config) *Service {
	logger := logging.Or(cfg.Logger).With(slog.String("service", "patient"))
	s := &Service{registry: cfg.Registry, logger: logger}
	s.loader = lookup.New(lookup.Config[Identifier, Model]{
		Domain:    cache.DomainPatient,
		Cache:     cfg.Cache,
		Logger:    logger,
		Metrics:   cfg.Metrics,
		Key:       func(id Identifier) string { return CacheKey(id.Value, id.Type) },
		StoreKeys: storeKeys,
		TTL: func(result.RequestResult[Model]) cache.TTL {
			return cache.Minutes(int(s.ttl.Load()))
		},
	})
	s.SetCacheTTL(cfg.CacheTTLMinutes)
	return s
}

// CacheKey returns the key a patient is cached under for the identifier type.
func CacheKey(identifier string, identifierType IdentifierType) string {
	return cache.Key(cache.DomainPatient, string(identifierType), identifier)
}

// SetCacheTTL changes the cache lifetime at runtime; 0 disables caching.
func (s *Service) SetCacheTTL(minutes int) {
	if minutes < 0 {
		minutes = 0
	}
	s.ttl.Store(int64(minutes))
	s.loader.SetEnabled(minutes > 0)
}

// GetPatient returns the patient for identifier. An invalid PHN yields an
// ActionRequired result without calling the registry. When
// disableIDValidation is set the registry result is returned but not cached.
func (s *Service) GetPatient(ctx context.Context, identifier string, identifierType IdentifierType, disableIDValidation bool) result.RequestResult[Model] {
	if identifierType != HDID && identifierType != PHN {
		s.logger.Debug("patient lookup with unknown identifier type", slog.String("identifier_type", string(identifierType)))
		return result.Fail[Model](
			fmt.Sprintf("Internal Error: PatientIdentifierType is unknown '%s'", identifierType),
			result.InternalError(result.InvalidState),
		)
	}

	var opts []lookup.Option
	if disableIDValidation {
		opts = append(opts, lookup.SkipStore())
	}
	fetch := func(ctx context.Context, id Identifier) result.RequestResult[Model] {
		return s.fetch(ctx, id, disableIDValidation)
	}
	return s.loader.Get(ctx, Identifier{Value: identifier, Type: identifierType}, fetch, opts...)
}

// GetPatientPHN returns the PHN of the patient identified by hdid, carrying
// over the status and error of the underlying lookup.
func (s *Service) GetPatientPHN(ctx context.Context, hdid string) result.RequestResult[string] {
	patient := s.GetPatient(ctx, hdid, HDID, false)
	out := result.Convert[Model, string](patient)
	if patient.IsSuccess() && patient.ResourcePayload != nil {
		phn := patient.ResourcePayload.PersonalHealthNumber
		out.ResourcePayload = &phn
	}
	return out
}

func (s *Service) fetch(ctx context.Context, id Identifier, disableIDValidation bool) result.RequestResult[Model] {
	switch id.Type {
	case PHN:
		if !ValidPHN(id.Value) {
			s.logger.Debug("invalid PHN supplied", slog.String("phn", id.Value))
			return result.NeedsAction[Model](
				fmt.Sprintf("Internal Error: PatientIdentifier is invalid '%s'", id.Value),
				result.InternalError(result.InvalidState),
			)
		}
		return s.registry.GetDemographicsByPHN(ctx, id.Value, disableIDValidation)
	default:
		return s.registry.GetDemographicsByHDID(ctx, id.Value, disableIDValidation)
	}
}

// storeKeys files a fetched patient under every identifier it carries, so a
// later PHN lookup hits an entry stored by an HDID lookup and vice versa.
func storeKeys(id Identifier, res result.RequestResult[Model]) []string {
	if res.ResourcePayload == nil {
		return nil
	}
	var keys []string
	if hdid := res.ResourcePayload.HdID; hdid != "" {
		keys = append(keys, CacheKey(hdid, HDID))
	}
	if phn := res.ResourcePayload.PersonalHealthNumber; phn != "" {
		keys = append(keys, CacheKey(phn, PHN))
	}
	if len(keys) == 0 {
		keys = append(keys, CacheKey(id.Value, id.Type))
	}
	return keys
}
