package communicationdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/l0p7/gatewaycache/internal/services/communication"
)

var columns = []string{
	"CommunicationId", "Subject", "Text",
	"CommunicationTypeCode", "CommunicationStatusCode", "Priority",
	"EffectiveDateTime", "ExpiryDateTime",
	"CreatedBy", "CreatedDateTime", "UpdatedBy", "UpdatedDateTime",
}

func newStore(t *testing.T, now time.Time) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return New(mock, nil, WithClock(func() time.Time { return now })), mock
}

func TestGetNextRead(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store, mock := newStore(t, now)
	id := uuid.New()

	rows := pgxmock.NewRows(columns).AddRow(
		id.String(), "Outage", "Systems are down",
		"Banner", "New", 10,
		now.Add(-time.Hour), now.Add(time.Hour),
		"admin", now.Add(-2*time.Hour), "admin", now.Add(-2*time.Hour),
	)
	mock.ExpectQuery(`(?s)SELECT .+ FROM gateway\."Communication"`).
		WithArgs("Banner", "New", now).
		WillReturnRows(rows)

	res := store.GetNext(context.Background(), communication.Banner)
	require.Equal(t, communication.StoreRead, res.Status)
	require.NotNil(t, res.Payload)
	require.Equal(t, id, res.Payload.ID)
	require.Equal(t, communication.Banner, res.Payload.CommunicationTypeCode)
	require.Equal(t, communication.StatusNew, res.Payload.CommunicationStatusCode)
	require.True(t, res.Payload.ExpiryDateTime.Equal(now.Add(time.Hour)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNextNotFound(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store, mock := newStore(t, now)

	mock.ExpectQuery(`(?s)SELECT .+ FROM gateway\."Communication"`).
		WithArgs("InApp", "New", now).
		WillReturnError(pgx.ErrNoRows)

	res := store.GetNext(context.Background(), communication.InApp)
	require.Equal(t, communication.StoreNotFound, res.Status)
	require.Nil(t, res.Payload)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNextError(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store, mock := newStore(t, now)

	mock.ExpectQuery(`(?s)SELECT .+ FROM gateway\."Communication"`).
		WithArgs("Mobile", "New", now).
		WillReturnError(errors.New("connection refused"))

	res := store.GetNext(context.Background(), communication.Mobile)
	require.Equal(t, communication.StoreError, res.Status)
	require.Equal(t, "connection refused", res.Message)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNextRejectsMalformedID(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store, mock := newStore(t, now)

	rows := pgxmock.NewRows(columns).AddRow(
		"not-a-uuid", "", "text",
		"Banner", "New", 0,
		now, now.Add(time.Hour),
		"admin", now, "admin", now,
	)
	mock.ExpectQuery(`(?s)SELECT .+ FROM gateway\."Communication"`).
		WithArgs("Banner", "New", now).
		WillReturnRows(rows)

	res := store.GetNext(context.Background(), communication.Banner)
	require.Equal(t, communication.StoreError, res.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
