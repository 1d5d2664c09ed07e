package changefeed

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/nats-io/nats.go"

	"github.com/l0p7/gatewaycache/internal/logging"
)

// Subscriber is the subset of *nats.Conn used by NATSListener.
type Subscriber interface {
	ChanSubscribe(subject string, ch chan *nats.Msg) (*nats.Subscription, error)
	SetDisconnectErrHandler(handler nats.ConnErrHandler)
	SetReconnectHandler(handler nats.ConnHandler)
}

// NATSListener consumes change events relayed onto a NATS subject. Core NATS
// does not replay messages published while disconnected, so every reconnect
// clears the cache.
type NATSListener struct {
	conn       Subscriber
	subject    string
	dispatcher *Dispatcher
	logger     *slog.Logger
	up         atomic.Bool
	resets     chan struct{}
}

// NewNATSListener constructs a listener.
func NewNATSListener(conn Subscriber, subject string, dispatcher *Dispatcher, logger *slog.Logger) *NATSListener {
	return &NATSListener{
		conn:       conn,
		subject:    subject,
		dispatcher: dispatcher,
		logger:     logging.Or(logger).With(slog.String("component", "changefeed"), slog.String("subject", subject)),
		resets:     make(chan struct{}, 1),
	}
}

// Up reports whether the subscription is currently live.
func (l *NATSListener) Up() bool { return l.up.Load() }

// Run consumes messages until ctx is cancelled. Reconnects are handled by the
// NATS client itself.
func (l *NATSListener) Run(ctx context.Context) error {
	l.conn.SetDisconnectErrHandler(func(_ *nats.Conn, err error) {
		l.up.Store(false)
		l.logger.Warn("change feed disconnected", slog.Any("error", err))
	})
	l.conn.SetReconnectHandler(func(*nats.Conn) {
		l.up.Store(true)
		select {
		case l.resets <- struct{}{}:
		default:
		}
	})

	msgs := make(chan *nats.Msg, 64)
	sub, err := l.conn.ChanSubscribe(l.subject, msgs)
	if err != nil {
		return fmt.Errorf("changefeed: subscribe %q: %w", l.subject, err)
	}
	defer func() {
		if sub != nil {
			_ = sub.Unsubscribe()
		}
	}()
	l.up.Store(true)
	defer l.up.Store(false)
	l.logger.Info("change feed subscribed")
	l.dispatcher.Reset(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.resets:
			l.logger.Info("change feed resubscribed")
			l.dispatcher.Reset(ctx)
		case msg := <-msgs:
			l.dispatcher.Dispatch(ctx, msg.Data)
		}
	}
}
