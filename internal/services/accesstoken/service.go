// Package accesstoken swaps the caller's bearer token for a PHSA access token
// and caches the swapped token per user until shortly before it expires.
package accesstoken

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/l0p7/gatewaycache/internal/cache"
	"github.com/l0p7/gatewaycache/internal/logging"
	"github.com/l0p7/gatewaycache/internal/lookup"
	"github.com/l0p7/gatewaycache/internal/metrics"
	"github.com/l0p7/gatewaycache/internal/result"
)

// EarlyExpiry is subtracted from the token lifetime so a cached token is
// dropped before the upstream rejects it.
const EarlyExpiry = 45 * time.Second

// TokenSwapResponse is the PHSA token exchange payload.
type TokenSwapResponse struct {
	AccessToken     string `json:"access_token"`
	IssuedTokenType string `json:"issued_token_type,omitempty"`
	TokenType       string `json:"token_type"`
	ExpiresIn       int    `json:"expires_in"`
	Scope           string `json:"scope,omitempty"`
}

// Swapper exchanges a user token with the identity provider.
type Swapper interface {
	SwapToken(ctx context.Context, accessToken string) result.RequestResult[TokenSwapResponse]
}

// Authenticator resolves the authenticated user from the request context.
type Authenticator interface {
	UserHDID(ctx context.Context) string
	UserToken(ctx context.Context) (string, bool)
}

// Config wires a Service.
type Config struct {
	Swapper       Swapper
	Authenticator Authenticator
	Cache         cache.Provider
	Logger        *slog.Logger
	Metrics       *metrics.Recorder
	// CacheEnabled turns on token caching.
	CacheEnabled bool
}

// Service hands out swapped access tokens for the current user.
type Service struct {
	swapper Swapper
	auth    Authenticator
	logger  *slog.Logger
	loader  *lookup.Loader[string, TokenSwapResponse]
}

// New constructs a Service. A nil Authenticator reads users stored with WithUser.
func New(cfg Config) *Service {
	auth := cfg.Authenticator
	if auth == nil {
		auth = ContextAuthenticator{}
	}
	logger := logging.Or(cfg.Logger).With(slog.String("service", "accesstoken"))
	return &Service{
		swapper: cfg.Swapper,
		auth:    auth,
		logger:  logger,
		loader: lookup.New(lookup.Config[string, TokenSwapResponse]{
			Domain:  cache.DomainTokenSwap,
			Cache:   cfg.Cache,
			Logger:  logger,
			Metrics: cfg.Metrics,
			Enabled: cfg.CacheEnabled,
			Key:     CacheKey,
			TTL:     tokenTTL,
		}),
	}
}

// CacheKey returns the cache key for a user's swapped token.
func CacheKey(hdid string) string {
	return cache.Key(cache.DomainTokenSwap, "HDID", hdid)
}

// SetCacheEnabled toggles token caching at runtime.
func (s *Service) SetCacheEnabled(enabled bool) {
	s.loader.SetEnabled(enabled)
}

// GetAccessToken returns the swapped token for the authenticated user. Without
// a user HDID the cache is never consulted. When the cache misses and no user
// token is available the result is an Error and the swap delegate is not
// called.
func (s *Service) GetAccessToken(ctx context.Context) result.RequestResult[TokenSwapResponse] {
	hdid := s.auth.UserHDID(ctx)
	if hdid == "" {
		s.logger.Error("unable to get authenticated user hdid from context")
		return result.Fail[TokenSwapResponse](
			"Internal Error: Unable to get authenticated user hdid from context",
			result.InternalError(result.InvalidState),
		)
	}
	return s.loader.Get(ctx, hdid, s.swap)
}

func (s *Service) swap(ctx context.Context, hdid string) result.RequestResult[TokenSwapResponse] {
	token, ok := s.auth.UserToken(ctx)
	if !ok || token == "" {
		key := CacheKey(hdid)
		s.logger.Error("unable to get authenticated user token from context", slog.String("cache_key", key))
		return result.Fail[TokenSwapResponse](
			fmt.Sprintf("Internal Error: Unable to get authenticated user token from context for cache key: %s", key),
			result.InternalError(result.InvalidState),
		)
	}
	return s.swapper.SwapToken(ctx, token)
}

// tokenTTL keeps a token until EarlyExpiry before it lapses. A token that
// lapses within the margin is not cached; one without a lifetime is kept until
// removed.
func tokenTTL(res result.RequestResult[TokenSwapResponse]) cache.TTL {
	if res.ResourcePayload == nil {
		return cache.Never()
	}
	expiresIn := time.Duration(res.ResourcePayload.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		return cache.Forever()
	}
	return cache.Until(expiresIn - EarlyExpiry)
}
