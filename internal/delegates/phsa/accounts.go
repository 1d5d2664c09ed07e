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
	"github.com/l0p7/gatewaycache/internal/services/personalaccount"
)

// TokenSource supplies the PHSA bearer token for the current user.
type TokenSource interface {
	GetAccessToken(ctx context.Context) result.RequestResult[accesstoken.TokenSwapResponse]
}

// AccountsConfig wires an AccountsClient.
type AccountsConfig struct {
	Tokens TokenSource
	Client restclient.Config
	Logger *slog.Logger
}

// AccountsClient reads personal accounts from PHSA.
type AccountsClient struct {
	client *resty.Client
	tokens TokenSource
	logger *slog.Logger
}

// NewAccountsClient constructs an AccountsClient.
func NewAccountsClient(cfg AccountsConfig) *AccountsClient {
	return &AccountsClient{
		client: restclient.New(cfg.Client),
		tokens: cfg.Tokens,
		logger: logging.Or(cfg.Logger).With(slog.String("delegate", "phsa_personal_accounts")),
	}
}

// Close releases idle connections.
func (c *AccountsClient) Close() {
	c.client.Close()
}

// GetPatientAccount fetches the personal account owned by hdid.
func (c *AccountsClient) GetPatientAccount(ctx context.Context, hdid string) result.RequestResult[personalaccount.Account] {
	token := c.tokens.GetAccessToken(ctx)
	if !token.IsSuccess() {
		return result.Convert[accesstoken.TokenSwapResponse, personalaccount.Account](token)
	}
	if token.ResourcePayload == nil {
		return result.Fail[personalaccount.Account](
			"Error while retrieving personal account: no access token",
			result.InternalError(result.InvalidState),
		)
	}

	var out personalaccount.Account
	res, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(token.ResourcePayload.AccessToken).
		SetPathParam("hdid", hdid).
		SetResult(&out).
		Get("/PersonalAccount/Patient/{hdid}")
	if err != nil || res.StatusCode() != http.StatusOK {
		detail := restclient.Describe(res, err)
		c.logger.Warn("personal account lookup failed", slog.String("system", "PHSA"), slog.String("detail", detail))
		return result.Fail[personalaccount.Account](
			"Error while retrieving personal account: "+detail,
			result.ServiceError(result.CommunicationExternal, result.PHSA),
		)
	}
	return result.Ok(out)
}
