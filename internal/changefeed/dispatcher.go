package changefeed

import (
	"context"
	"log/slog"

	"github.com/l0p7/gatewaycache/internal/logging"
	"github.com/l0p7/gatewaycache/internal/services/communication"
)

// Handler reconciles the cache with change events.
type Handler interface {
	ProcessChange(ctx context.Context, event communication.ChangeEvent) error
	ClearCache(ctx context.Context) error
}

// Dispatcher decodes payloads and hands them to a Handler. Failures are
// logged; a bad payload never stops the feed.
type Dispatcher struct {
	handler Handler
	logger  *slog.Logger
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(handler Handler, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{handler: handler, logger: logging.Or(logger).With(slog.String("component", "changefeed"))}
}

// Dispatch processes one notification payload.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte) {
	event, err := Decode(payload)
	if err != nil {
		d.logger.Warn("change event rejected", slog.Any("error", err))
		return
	}
	if err := d.handler.ProcessChange(ctx, event); err != nil {
		attrs := []any{slog.String("action", event.Action), slog.Any("error", err)}
		if event.Data != nil {
			attrs = append(attrs, slog.String("communication_id", event.Data.ID.String()))
		}
		d.logger.Error("change event processing failed", attrs...)
	}
}

// Reset clears every cached communication. Sources call it whenever they
// (re)subscribe because events may have been missed in between.
func (d *Dispatcher) Reset(ctx context.Context) {
	if err := d.handler.ClearCache(ctx); err != nil {
		d.logger.Error("communication cache clear failed", slog.Any("error", err))
	}
}
