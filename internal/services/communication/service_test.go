package communication

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/l0p7/gatewaycache/internal/cache"
	"github.com/l0p7/gatewaycache/internal/cache/cachetest"
	"github.com/l0p7/gatewaycache/internal/metrics"
	"github.com/l0p7/gatewaycache/internal/result"
)

var bannerKey = "Communication:Banner"

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetNext(ctx context.Context, t Type) StoreResult {
	args := m.Called(ctx, t)
	return args.Get(0).(StoreResult)
}

type fixture struct {
	now      time.Time
	provider *cachetest.Faulty
	store    *mockStore
	recorder *metrics.Recorder
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		now:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		store:    &mockStore{},
		recorder: metrics.NewRecorder(nil),
	}
	clock := func() time.Time { return f.now }
	f.provider = cachetest.NewFaulty(clock)
	f.svc = New(Config{Store: f.store, Cache: f.provider, Metrics: f.recorder, Now: clock})
	return f
}

func (f *fixture) banner(effective, expiry time.Duration) *Communication {
	return &Communication{
		ID:                      uuid.New(),
		Text:                    "Scheduled maintenance",
		CommunicationTypeCode:   Banner,
		CommunicationStatusCode: StatusNew,
		EffectiveDateTime:       f.now.Add(effective),
		ExpiryDateTime:          f.now.Add(expiry),
	}
}

func (f *fixture) cached(t *testing.T) (result.RequestResult[Communication], bool) {
	t.Helper()
	var entry result.RequestResult[Communication]
	found, err := f.provider.Provider.Get(context.Background(), bannerKey, &entry)
	require.NoError(t, err)
	return entry, found
}

func (f *fixture) seed(t *testing.T, comm *Communication) {
	t.Helper()
	require.NoError(t, f.svc.ProcessChange(context.Background(), ChangeEvent{Action: ActionInsert, Data: comm}))
	entry, ok := f.cached(t)
	require.True(t, ok)
	require.Equal(t, comm.ID, entry.ResourcePayload.ID)
}

const day = 24 * time.Hour

func TestGetActiveCommunicationFutureDated(t *testing.T) {
	f := newFixture(t)
	comm := f.banner(3*day, 10*day)
	f.store.On("GetNext", mock.Anything, Banner).Return(StoreResult{Status: StoreRead, Payload: comm}).Once()

	for i := 0; i < 2; i++ {
		res, err := f.svc.GetActiveCommunication(context.Background(), Banner)
		require.NoError(t, err)
		require.True(t, res.IsSuccess())
		require.Zero(t, res.TotalResultCount)
		require.Nil(t, res.ResourcePayload)
	}
	f.store.AssertExpectations(t)

	ttl, ok := f.provider.LastTTL(bannerKey)
	require.True(t, ok)
	d, bounded := ttl.Duration()
	require.True(t, bounded)
	require.Equal(t, 3*day, d)

	entry, ok := f.cached(t)
	require.True(t, ok)
	require.Zero(t, entry.TotalResultCount)
	require.Equal(t, comm.ID, entry.ResourcePayload.ID)
}

func TestGetActiveCommunicationActive(t *testing.T) {
	f := newFixture(t)
	comm := f.banner(-day, day)
	f.store.On("GetNext", mock.Anything, Banner).Return(StoreResult{Status: StoreRead, Payload: comm}).Once()

	res, err := f.svc.GetActiveCommunication(context.Background(), Banner)
	require.NoError(t, err)
	require.True(t, res.IsSuccess())
	require.Equal(t, 1, res.TotalResultCount)
	require.Equal(t, comm.ID, res.ResourcePayload.ID)

	ttl, ok := f.provider.LastTTL(bannerKey)
	require.True(t, ok)
	d, _ := ttl.Duration()
	require.Equal(t, day, d)

	res, err = f.svc.GetActiveCommunication(context.Background(), Banner)
	require.NoError(t, err)
	require.Equal(t, comm.ID, res.ResourcePayload.ID)
	f.store.AssertExpectations(t)
}

func TestGetActiveCommunicationFutureBecomesActive(t *testing.T) {
	f := newFixture(t)
	comm := f.banner(3*day, 10*day)
	f.store.On("GetNext", mock.Anything, Banner).Return(StoreResult{Status: StoreRead, Payload: comm}).Twice()

	res, err := f.svc.GetActiveCommunication(context.Background(), Banner)
	require.NoError(t, err)
	require.Nil(t, res.ResourcePayload)

	f.now = f.now.Add(3*day + time.Minute)
	res, err = f.svc.GetActiveCommunication(context.Background(), Banner)
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalResultCount)
	require.Equal(t, comm.ID, res.ResourcePayload.ID)
	f.store.AssertExpectations(t)
}

func TestGetActiveCommunicationExpiredCachedAsPlaceholder(t *testing.T) {
	f := newFixture(t)
	comm := f.banner(-10*day, -day)
	f.store.On("GetNext", mock.Anything, Banner).Return(StoreResult{Status: StoreRead, Payload: comm}).Once()

	res, err := f.svc.GetActiveCommunication(context.Background(), Banner)
	require.NoError(t, err)
	require.True(t, res.IsSuccess())
	require.Zero(t, res.TotalResultCount)
	require.Nil(t, res.ResourcePayload)

	ttl, ok := f.provider.LastTTL(bannerKey)
	require.True(t, ok)
	require.Equal(t, cache.TTLForever, ttl.Kind())

	entry, ok := f.cached(t)
	require.True(t, ok)
	require.Nil(t, entry.ResourcePayload)
	require.Zero(t, entry.TotalResultCount)

	_, err = f.svc.GetActiveCommunication(context.Background(), Banner)
	require.NoError(t, err)
	f.store.AssertExpectations(t)
}

func TestGetActiveCommunicationNotFoundCachedAsPlaceholder(t *testing.T) {
	f := newFixture(t)
	f.store.On("GetNext", mock.Anything, InApp).Return(StoreResult{Status: StoreNotFound}).Once()

	for i := 0; i < 2; i++ {
		res, err := f.svc.GetActiveCommunication(context.Background(), InApp)
		require.NoError(t, err)
		require.True(t, res.IsSuccess())
		require.Nil(t, res.ResourcePayload)
	}
	f.store.AssertExpectations(t)

	ttl, ok := f.provider.LastTTL("Communication:InApp")
	require.True(t, ok)
	require.Equal(t, cache.TTLForever, ttl.Kind())
}

func TestGetActiveCommunicationStoreErrorNotCached(t *testing.T) {
	f := newFixture(t)
	f.store.On("GetNext", mock.Anything, Mobile).Return(StoreResult{Status: StoreError, Message: "connection refused"}).Twice()

	for i := 0; i < 2; i++ {
		res, err := f.svc.GetActiveCommunication(context.Background(), Mobile)
		require.NoError(t, err)
		require.Equal(t, result.Error, res.ResultStatus)
		require.Equal(t, "connection refused", res.Message())
		require.Equal(t, "gatewaycache-CI-DB", res.Code())
	}
	f.store.AssertExpectations(t)
	require.Zero(t, f.provider.Sets())
}

func TestGetActiveCommunicationRechecksCachedEntry(t *testing.T) {
	f := newFixture(t)
	comm := f.banner(2*day, 10*day)
	entry := result.Ok(*comm)
	require.NoError(t, f.provider.Set(context.Background(), bannerKey, entry, cache.Forever()))

	res, err := f.svc.GetActiveCommunication(context.Background(), Banner)
	require.NoError(t, err)
	require.True(t, res.IsSuccess())
	require.Zero(t, res.TotalResultCount)
	require.Nil(t, res.ResourcePayload)
	f.store.AssertNotCalled(t, "GetNext", mock.Anything, mock.Anything)
}

func TestGetActiveCommunicationUnsupportedType(t *testing.T) {
	f := newFixture(t)
	for _, typ := range []Type{Email, Type("Fax")} {
		_, err := f.svc.GetActiveCommunication(context.Background(), typ)
		require.ErrorIs(t, err, ErrUnsupportedCommunicationType)
	}
	f.store.AssertNotCalled(t, "GetNext", mock.Anything, mock.Anything)
	require.Zero(t, f.provider.Gets())
}

func TestCacheKey(t *testing.T) {
	tests := map[Type]string{
		Banner: "Communication:Banner",
		InApp:  "Communication:InApp",
		Mobile: "Communication:Mobile",
	}
	for typ, want := range tests {
		got, err := CacheKey(typ)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := CacheKey(Email)
	require.ErrorIs(t, err, ErrUnsupportedCommunicationType)
	require.ErrorContains(t, err, "Email")
}

func TestProcessChangeEmptySlot(t *testing.T) {
	tests := []struct {
		name    string
		action  string
		status  Status
		wantAdd bool
	}{
		{name: "insert new", action: ActionInsert, status: StatusNew, wantAdd: true},
		{name: "update new", action: ActionUpdate, status: StatusNew, wantAdd: true},
		{name: "lowercase action", action: "insert", status: StatusNew, wantAdd: true},
		{name: "delete", action: ActionDelete, status: StatusNew},
		{name: "insert draft", action: ActionInsert, status: StatusDraft},
		{name: "update processed", action: ActionUpdate, status: StatusProcessed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			comm := f.banner(-time.Hour, day)
			comm.CommunicationStatusCode = tc.status
			require.NoError(t, f.svc.ProcessChange(context.Background(), ChangeEvent{Action: tc.action, Data: comm}))

			entry, ok := f.cached(t)
			require.Equal(t, tc.wantAdd, ok)
			if tc.wantAdd {
				require.Equal(t, comm.ID, entry.ResourcePayload.ID)
				require.Equal(t, 1, entry.TotalResultCount)
			}
		})
	}
}

func TestProcessChangePlaceholderCountsAsEmpty(t *testing.T) {
	f := newFixture(t)
	f.store.On("GetNext", mock.Anything, Banner).Return(StoreResult{Status: StoreNotFound}).Once()
	_, err := f.svc.GetActiveCommunication(context.Background(), Banner)
	require.NoError(t, err)

	comm := f.banner(-time.Hour, day)
	require.NoError(t, f.svc.ProcessChange(context.Background(), ChangeEvent{Action: ActionInsert, Data: comm}))

	res, err := f.svc.GetActiveCommunication(context.Background(), Banner)
	require.NoError(t, err)
	require.Equal(t, comm.ID, res.ResourcePayload.ID)
	f.store.AssertExpectations(t)
}

func TestProcessChangeSameCommunication(t *testing.T) {
	t.Run("update refreshes", func(t *testing.T) {
		f := newFixture(t)
		comm := f.banner(-time.Hour, day)
		f.seed(t, comm)

		updated := *comm
		updated.Text = "Maintenance extended"
		updated.ExpiryDateTime = f.now.Add(2 * day)
		require.NoError(t, f.svc.ProcessChange(context.Background(), ChangeEvent{Action: ActionUpdate, Data: &updated}))

		entry, ok := f.cached(t)
		require.True(t, ok)
		require.Equal(t, "Maintenance extended", entry.ResourcePayload.Text)
		ttl, _ := f.provider.LastTTL(bannerKey)
		d, _ := ttl.Duration()
		require.Equal(t, 2*day, d)
		require.Equal(t, 1, f.provider.Removes())
	})

	t.Run("update to future date keeps it hidden", func(t *testing.T) {
		f := newFixture(t)
		comm := f.banner(-time.Hour, day)
		f.seed(t, comm)

		updated := *comm
		updated.EffectiveDateTime = f.now.Add(time.Hour)
		require.NoError(t, f.svc.ProcessChange(context.Background(), ChangeEvent{Action: ActionUpdate, Data: &updated}))

		res, err := f.svc.GetActiveCommunication(context.Background(), Banner)
		require.NoError(t, err)
		require.Nil(t, res.ResourcePayload)
		require.Zero(t, res.TotalResultCount)
	})

	t.Run("delete removes without placeholder", func(t *testing.T) {
		f := newFixture(t)
		comm := f.banner(-time.Hour, day)
		f.seed(t, comm)

		require.NoError(t, f.svc.ProcessChange(context.Background(), ChangeEvent{Action: ActionDelete, Data: comm}))
		_, ok := f.cached(t)
		require.False(t, ok)
	})

	t.Run("status change removes without placeholder", func(t *testing.T) {
		f := newFixture(t)
		comm := f.banner(-time.Hour, day)
		f.seed(t, comm)

		updated := *comm
		updated.CommunicationStatusCode = StatusDraft
		require.NoError(t, f.svc.ProcessChange(context.Background(), ChangeEvent{Action: ActionUpdate, Data: &updated}))
		_, ok := f.cached(t)
		require.False(t, ok)
	})

	t.Run("future dated entry matches by id", func(t *testing.T) {
		f := newFixture(t)
		comm := f.banner(2*day, 10*day)
		f.seed(t, comm)

		require.NoError(t, f.svc.ProcessChange(context.Background(), ChangeEvent{Action: ActionDelete, Data: comm}))
		_, ok := f.cached(t)
		require.False(t, ok)
	})
}

func TestProcessChangeTieBreak(t *testing.T) {
	f := newFixture(t)
	a := f.banner(0, 10*day)
	f.seed(t, a)

	c := f.banner(5*day, 10*day)
	require.NoError(t, f.svc.ProcessChange(context.Background(), ChangeEvent{Action: ActionInsert, Data: c}))
	entry, _ := f.cached(t)
	require.Equal(t, a.ID, entry.ResourcePayload.ID, "later communication must not replace the cached one")

	b := f.banner(-day, 10*day)
	require.NoError(t, f.svc.ProcessChange(context.Background(), ChangeEvent{Action: ActionInsert, Data: b}))
	entry, _ = f.cached(t)
	require.Equal(t, b.ID, entry.ResourcePayload.ID, "earlier communication must replace the cached one")
}

func TestProcessChangeDifferentCommunicationIgnored(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fixture, c *Communication)
		action string
	}{
		{
			name: "expired",
			mutate: func(f *fixture, c *Communication) {
				c.EffectiveDateTime = f.now.Add(-3 * day)
				c.ExpiryDateTime = f.now.Add(-time.Hour)
			},
			action: ActionInsert,
		},
		{
			name:   "not new",
			mutate: func(f *fixture, c *Communication) { c.CommunicationStatusCode = StatusDraft },
			action: ActionUpdate,
		},
		{
			name:   "delete",
			mutate: func(*fixture, *Communication) {},
			action: ActionDelete,
		},
		{
			name:   "same effective date",
			mutate: func(f *fixture, c *Communication) { c.EffectiveDateTime = f.now },
			action: ActionInsert,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			a := f.banner(0, 10*day)
			f.seed(t, a)

			other := f.banner(-day, 10*day)
			tc.mutate(f, other)
			require.NoError(t, f.svc.ProcessChange(context.Background(), ChangeEvent{Action: tc.action, Data: other}))

			entry, ok := f.cached(t)
			require.True(t, ok)
			require.Equal(t, a.ID, entry.ResourcePayload.ID)
		})
	}
}

func TestProcessChangeSyntheticPlaceholderComparesDates(t *testing.T) {
	f := newFixture(t)
	placeholder := result.Ok(Communication{ID: uuid.New(), CommunicationTypeCode: Banner})
	placeholder.TotalResultCount = 0
	require.NoError(t, f.provider.Set(context.Background(), bannerKey, placeholder, cache.Forever()))

	comm := f.banner(-time.Hour, day)
	require.NoError(t, f.svc.ProcessChange(context.Background(), ChangeEvent{Action: ActionInsert, Data: comm}))

	entry, ok := f.cached(t)
	require.True(t, ok)
	require.Equal(t, placeholder.ResourcePayload.ID, entry.ResourcePayload.ID)
}

func TestProcessChangeUnsupportedTypeIgnored(t *testing.T) {
	f := newFixture(t)
	comm := f.banner(-time.Hour, day)
	comm.CommunicationTypeCode = Email
	require.NoError(t, f.svc.ProcessChange(context.Background(), ChangeEvent{Action: ActionInsert, Data: comm}))
	require.NoError(t, f.svc.ProcessChange(context.Background(), ChangeEvent{Action: ActionInsert}))
	require.Zero(t, f.provider.Gets())
	require.Zero(t, f.provider.Sets())
}

func TestProcessChangeCacheFailures(t *testing.T) {
	t.Run("read failure treated as empty", func(t *testing.T) {
		f := newFixture(t)
		f.provider.FailGet(true)
		comm := f.banner(-time.Hour, day)
		require.NoError(t, f.svc.ProcessChange(context.Background(), ChangeEvent{Action: ActionInsert, Data: comm}))
		require.Equal(t, 1, f.provider.Sets())
	})

	t.Run("write failure returned", func(t *testing.T) {
		f := newFixture(t)
		f.provider.FailSet(true)
		comm := f.banner(-time.Hour, day)
		err := f.svc.ProcessChange(context.Background(), ChangeEvent{Action: ActionInsert, Data: comm})
		require.ErrorIs(t, err, cachetest.ErrInjected)
	})

	t.Run("remove failure returned", func(t *testing.T) {
		f := newFixture(t)
		comm := f.banner(-time.Hour, day)
		f.seed(t, comm)
		f.provider.FailRemove(true)
		err := f.svc.ProcessChange(context.Background(), ChangeEvent{Action: ActionUpdate, Data: comm})
		require.ErrorIs(t, err, cachetest.ErrInjected)

		entry, ok := f.cached(t)
		require.True(t, ok)
		require.Equal(t, comm.ID, entry.ResourcePayload.ID)
	})
}

func TestClearCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, typ := range CachedTypes() {
		comm := f.banner(-time.Hour, day)
		comm.CommunicationTypeCode = typ
		require.NoError(t, f.svc.ProcessChange(ctx, ChangeEvent{Action: ActionInsert, Data: comm}))
	}
	size, err := f.provider.Size(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, size)

	require.NoError(t, f.svc.ClearCache(ctx))
	size, err = f.provider.Size(ctx)
	require.NoError(t, err)
	require.Zero(t, size)

	require.NoError(t, f.svc.ClearCache(ctx))

	f.provider.FailRemove(true)
	require.ErrorIs(t, f.svc.ClearCache(ctx), cachetest.ErrInjected)
}

func TestProcessChangeRecordsDecision(t *testing.T) {
	f := newFixture(t)
	comm := f.banner(-time.Hour, day)
	require.NoError(t, f.svc.ProcessChange(context.Background(), ChangeEvent{Action: ActionInsert, Data: comm}))
	require.NoError(t, f.svc.ProcessChange(context.Background(), ChangeEvent{Action: ActionDelete, Data: comm}))

	families, err := f.recorder.Gatherer().Gather()
	require.NoError(t, err)
	decisions := map[string]float64{}
	for _, family := range families {
		if family.GetName() != "gatewaycache_communication_change_events_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "decision" {
					decisions[label.GetValue()] += metric.GetCounter().GetValue()
				}
			}
		}
	}
	require.Equal(t, map[string]float64{DecisionAdded: 1, DecisionRemoved: 1}, decisions)
}
