// Package communicationdb reads communications from the gateway database.
package communicationdb

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/l0p7/gatewaycache/internal/logging"
	"github.com/l0p7/gatewaycache/internal/services/communication"
)

// Querier is the subset of pgxpool.Pool the store uses.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const getNextSQL = `SELECT "CommunicationId"::text, COALESCE("Subject", ''), "Text",
	"CommunicationTypeCode", "CommunicationStatusCode", "Priority",
	"EffectiveDateTime", "ExpiryDateTime",
	"CreatedBy", "CreatedDateTime", "UpdatedBy", "UpdatedDateTime"
FROM gateway."Communication"
WHERE "CommunicationTypeCode" = $1
	AND "CommunicationStatusCode" = $2
	AND "ExpiryDateTime" > $3
ORDER BY "EffectiveDateTime"
LIMIT 1`

// Store implements communication.Store on Postgres.
type Store struct {
	db     Querier
	logger *slog.Logger
	now    func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the clock used for the expiry filter.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New constructs a Store on db.
func New(db Querier, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: logging.Or(logger).With(slog.String("delegate", "communication_db")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetNext returns the earliest effective, unexpired communication of type t
// in the New status.
func (s *Store) GetNext(ctx context.Context, t communication.Type) communication.StoreResult {
	var (
		rawID         string
		typeCode      string
		statusCode    string
		createdBy     string
		updatedBy     string
		createdAt     time.Time
		updatedAt     time.Time
		effective     time.Time
		expiry        time.Time
		priority      int
		subject, text string
	)
	err := s.db.QueryRow(ctx, getNextSQL, string(t), string(communication.StatusNew), s.now().UTC()).Scan(
		&rawID, &subject, &text,
		&typeCode, &statusCode, &priority,
		&effective, &expiry,
		&createdBy, &createdAt, &updatedBy, &updatedAt,
	)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return communication.StoreResult{Status: communication.StoreNotFound}
	case err != nil:
		s.logger.Error("communication query failed", slog.String("type", string(t)), slog.Any("error", err))
		return communication.StoreResult{Status: communication.StoreError, Message: err.Error()}
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		s.logger.Error("communication id is not a uuid", slog.String("id", rawID), slog.Any("error", err))
		return communication.StoreResult{Status: communication.StoreError, Message: err.Error()}
	}
	comm := communication.Communication{
		ID:                      id,
		Subject:                 subject,
		Text:                    text,
		CommunicationTypeCode:   communication.Type(typeCode),
		CommunicationStatusCode: communication.Status(statusCode),
		Priority:                priority,
		EffectiveDateTime:       effective.UTC(),
		ExpiryDateTime:          expiry.UTC(),
		CreatedBy:               createdBy,
		CreatedDateTime:         createdAt.UTC(),
		UpdatedBy:               updatedBy,
		UpdatedDateTime:         updatedAt.UTC(),
	}
	return communication.StoreResult{Status: communication.StoreRead, Payload: &comm}
}
