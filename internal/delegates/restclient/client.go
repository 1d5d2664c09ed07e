// Package restclient builds the resty clients used by the HTTP delegates.
package restclient

import (
	"net/http"
	"time"

	"resty.dev/v3"
)

// Config controls a delegate client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RetryCount retries transport errors and 5xx responses other than 501.
	RetryCount       int
	RetryWaitTime    time.Duration
	RetryMaxWaitTime time.Duration
	Transport        http.RoundTripper
}

// New constructs a resty client from cfg.
func New(cfg Config) *resty.Client {
	client := resty.New()
	if cfg.BaseURL != "" {
		client.SetBaseURL(cfg.BaseURL)
	}
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.RetryCount > 0 {
		wait := cfg.RetryWaitTime
		if wait <= 0 {
			wait = 100 * time.Millisecond
		}
		maxWait := cfg.RetryMaxWaitTime
		if maxWait <= 0 {
			maxWait = 2 * time.Second
		}
		client.
			SetRetryCount(cfg.RetryCount).
			SetRetryWaitTime(wait).
			SetRetryMaxWaitTime(maxWait)
		client.AddRetryConditions(func(res *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			status := res.StatusCode()
			return status >= 500 && status != http.StatusNotImplemented
		})
	}
	if cfg.Transport != nil {
		client.SetTransport(cfg.Transport)
	}
	client.SetHeader("Accept", "application/json")
	return client
}

// Describe renders a failed response for logs and result messages.
func Describe(res *resty.Response, err error) string {
	if err != nil {
		return err.Error()
	}
	if res == nil {
		return "no response"
	}
	body := res.String()
	if len(body) > 256 {
		body = body[:256]
	}
	if body == "" {
		return res.Status()
	}
	return res.Status() + ": " + body
}
