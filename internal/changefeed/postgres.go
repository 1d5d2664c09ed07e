package changefeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/l0p7/gatewaycache/internal/logging"
)

// Conn is the subset of *pgx.Conn used to receive notifications.
type Conn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// maxBackoff bounds the reconnect delay.
const maxBackoff = 10 * time.Minute

// Connector opens a dedicated notification connection.
type Connector func(ctx context.Context) (Conn, error)

// DialPostgres returns a Connector for the given connection string.
func DialPostgres(databaseURL string) Connector {
	return func(ctx context.Context) (Conn, error) {
		conn, err := pgx.Connect(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// PostgresConfig configures a PostgresListener.
type PostgresConfig struct {
	Connect          Connector
	Channel          string
	MaxRetryAttempts int
	SleepDuration    time.Duration
	Dispatcher       *Dispatcher
	Logger           *slog.Logger
}

// PostgresListener subscribes to a LISTEN/NOTIFY channel and reconnects with
// exponential backoff when the connection drops.
type PostgresListener struct {
	connect    Connector
	channel    string
	maxRetries int
	sleep      time.Duration
	dispatcher *Dispatcher
	logger     *slog.Logger
	wait       func(ctx context.Context, d time.Duration) error
	up         atomic.Bool
}

// NewPostgresListener constructs a listener.
func NewPostgresListener(cfg PostgresConfig) *PostgresListener {
	return &PostgresListener{
		connect:    cfg.Connect,
		channel:    cfg.Channel,
		maxRetries: cfg.MaxRetryAttempts,
		sleep:      cfg.SleepDuration,
		dispatcher: cfg.Dispatcher,
		logger:     logging.Or(cfg.Logger).With(slog.String("component", "changefeed"), slog.String("channel", cfg.Channel)),
		wait:       sleepContext,
	}
}

// Up reports whether the LISTEN subscription is currently live.
func (l *PostgresListener) Up() bool { return l.up.Load() }

// Run listens until ctx is cancelled. It returns an error once the retry
// budget is spent without re-establishing the subscription.
func (l *PostgresListener) Run(ctx context.Context) error {
	retry := 0
	for {
		subscribed, err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if subscribed {
			retry = 0
		}
		if retry >= l.maxRetries {
			return fmt.Errorf("changefeed: listen on %q abandoned after %d retries: %w", l.channel, retry, err)
		}
		delay := backoff(l.sleep, retry)
		l.logger.Warn("change feed connection lost",
			slog.Int("retry", retry+1),
			slog.Duration("backoff", delay),
			slog.Any("error", err))
		if err := l.wait(ctx, delay); err != nil {
			return nil
		}
		retry++
	}
}

func (l *PostgresListener) listen(ctx context.Context) (bool, error) {
	conn, err := l.connect(ctx)
	if err != nil {
		return false, fmt.Errorf("changefeed: connect: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return false, fmt.Errorf("changefeed: listen: %w", err)
	}
	l.up.Store(true)
	defer l.up.Store(false)
	l.logger.Info("change feed subscribed")
	l.dispatcher.Reset(ctx)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true, err
			}
			return true, fmt.Errorf("changefeed: wait: %w", err)
		}
		l.dispatcher.Dispatch(ctx, []byte(notification.Payload))
	}
}

// backoff doubles base once per retry, capped at maxBackoff.
func backoff(base time.Duration, retry int) time.Duration {
	d := base
	for i := 0; i < retry && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
