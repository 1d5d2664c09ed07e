// Package clientregistry reads patient demographics from the provincial
// client registry.
package clientregistry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"resty.dev/v3"

	"github.com/l0p7/gatewaycache/internal/delegates/restclient"
	"github.com/l0p7/gatewaycache/internal/logging"
	"github.com/l0p7/gatewaycache/internal/result"
	"github.com/l0p7/gatewaycache/internal/services/patient"
)

// Config wires a Client.
type Config struct {
	Client restclient.Config
	Logger *slog.Logger
}

// Client queries the registry over HTTP.
type Client struct {
	client *resty.Client
	logger *slog.Logger
}

// New constructs a Client.
func New(cfg Config) *Client {
	return &Client{
		client: restclient.New(cfg.Client),
		logger: logging.Or(cfg.Logger).With(slog.String("delegate", "client_registry")),
	}
}

// Close releases idle connections.
func (c *Client) Close() {
	c.client.Close()
}

// GetDemographicsByHDID returns the patient identified by hdid.
func (c *Client) GetDemographicsByHDID(ctx context.Context, hdid string, disableIDValidation bool) result.RequestResult[patient.Model] {
	return c.get(ctx, "/patients/hdid/{id}", hdid, disableIDValidation)
}

// GetDemographicsByPHN returns the patient identified by phn.
func (c *Client) GetDemographicsByPHN(ctx context.Context, phn string, disableIDValidation bool) result.RequestResult[patient.Model] {
	return c.get(ctx, "/patients/phn/{id}", phn, disableIDValidation)
}

func (c *Client) get(ctx context.Context, path, id string, disableIDValidation bool) result.RequestResult[patient.Model] {
	var out patient.Model
	res, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetQueryParam("validate", strconv.FormatBool(!disableIDValidation)).
		SetResult(&out).
		Get(path)
	switch {
	case err != nil:
		c.logger.Warn("client registry request failed", slog.String("system", "ClientRegistries"), slog.Any("error", err))
		return result.Fail[patient.Model](
			"Unable to connect to client registry: "+err.Error(),
			result.ServiceError(result.CommunicationExternal, result.ClientRegistries),
		)
	case res.StatusCode() == http.StatusNotFound:
		c.logger.Info("client registry did not return a patient")
		return result.NeedsAction[patient.Model](
			"Client Registry did not find any records",
			result.ServiceError(result.CommunicationExternal, result.ClientRegistries),
		)
	case res.StatusCode() != http.StatusOK:
		detail := restclient.Describe(res, nil)
		c.logger.Warn("client registry returned an error", slog.String("system", "ClientRegistries"), slog.String("detail", detail))
		return result.Fail[patient.Model](
			fmt.Sprintf("Client Registry returned an error: %s", detail),
			result.ServiceError(result.CommunicationExternal, result.ClientRegistries),
		)
	}
	if !disableIDValidation && (out.HdID == "" || out.PersonalHealthNumber == "") {
		c.logger.Warn("client registry returned a patient without identifiers")
		return result.NeedsAction[patient.Model](
			"Client Registry returned a person without both an HDID and a PHN",
			result.ServiceError(result.CommunicationExternal, result.ClientRegistries),
		)
	}
	return result.Ok(out)
}
