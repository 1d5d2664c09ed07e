// Package phsa calls the PHSA token exchange and personal accounts APIs.
package phsa

import (
	"context"
	"log/slog"
	"net/http"

	"resty.dev/v3"

	"github.com/l0p7/gatewaycache/internal/delegates/restclient"
	"github.com/l0p7/gatewaycache/internal/logging"
	"github.com/l0p7/gatewaycache/internal/result"
	"github.com/l0p7/gatewaycache/internal/services/accesstoken"
)

const subjectTokenType = "urn:ietf:params:oauth:token-type:access_token"

// TokenSwapConfig holds the token exchange client credentials.
type TokenSwapConfig struct {
	URL          string
	ClientID     string
	ClientSecret string
	GrantType    string
	Scope        string
	Client       restclient.Config
	Logger       *slog.Logger
}

// TokenSwapper exchanges user tokens at the PHSA identity endpoint.
type TokenSwapper struct {
	client *resty.Client
	cfg    TokenSwapConfig
	logger *slog.Logger
}

// NewTokenSwapper constructs a TokenSwapper.
func NewTokenSwapper(cfg TokenSwapConfig) *TokenSwapper {
	return &TokenSwapper{
		client: restclient.New(cfg.Client),
		cfg:    cfg,
		logger: logging.Or(cfg.Logger).With(slog.String("delegate", "phsa_token_swap")),
	}
}

// Close releases idle connections.
func (s *TokenSwapper) Close() {
	s.client.Close()
}

// SwapToken exchanges accessToken for a PHSA token.
func (s *TokenSwapper) SwapToken(ctx context.Context, accessToken string) result.RequestResult[accesstoken.TokenSwapResponse] {
	var out accesstoken.TokenSwapResponse
	res, err := s.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_id":          s.cfg.ClientID,
			"client_secret":      s.cfg.ClientSecret,
			"grant_type":         s.cfg.GrantType,
			"scope":              s.cfg.Scope,
			"subject_token":      accessToken,
			"subject_token_type": subjectTokenType,
		}).
		SetResult(&out).
		Post(s.cfg.URL)
	if err != nil || res.StatusCode() != http.StatusOK {
		detail := restclient.Describe(res, err)
		s.logger.Warn("token swap failed", slog.String("system", "PHSA"), slog.String("detail", detail))
		return result.Fail[accesstoken.TokenSwapResponse](
			"Error while swapping access token: "+detail,
			result.ServiceError(result.CommunicationExternal, result.PHSA),
		)
	}
	return result.Ok(out)
}
