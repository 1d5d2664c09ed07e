package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/l0p7/gatewaycache/internal/logging"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsConfig wires the operational endpoints.
type OpsConfig struct {
	Cache        Pinger
	Metrics      http.Handler
	Logger       *slog.Logger
	PingTimeout  time.Duration
	ChangeFeedUp func() bool
}

type healthReport struct {
	Status     string `json:"status"`
	Cache      string `json:"cache"`
	ChangeFeed string `json:"changeFeed,omitempty"`
	Error      string `json:"error,omitempty"`
}

// NewOpsHandler serves /healthz and /metrics.
func NewOpsHandler(cfg OpsConfig) http.Handler {
	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	logger := logging.Or(cfg.Logger)

	mux := http.NewServeMux()
	health := func(w http.ResponseWriter, r *http.Request) {
		report := healthReport{Status: "ok", Cache: "ok"}
		status := http.StatusOK

		if cfg.Cache == nil {
			report.Cache = "disabled"
		} else {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			err := cfg.Cache.Ping(ctx)
			cancel()
			if err != nil {
				logger.Warn("cache health check failed", slog.Any("error", err))
				report.Status = "degraded"
				report.Cache = "unreachable"
				report.Error = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		if cfg.ChangeFeedUp != nil {
			report.ChangeFeed = "ok"
			if !cfg.ChangeFeedUp() {
				report.ChangeFeed = "down"
				report.Status = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	}
	mux.HandleFunc("GET /healthz", health)
	mux.HandleFunc("GET /health", health)

	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}
	return mux
}
