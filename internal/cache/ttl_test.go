package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUntilCollapsesNonPositiveDurations(t *testing.T) {
	require.Equal(t, TTLNever, Until(0).Kind())
	require.Equal(t, TTLNever, Until(-time.Second).Kind())
	require.False(t, Until(0).Stores())

	ttl := Until(90 * time.Second)
	require.Equal(t, TTLUntil, ttl.Kind())
	d, ok := ttl.Duration()
	require.True(t, ok)
	require.Equal(t, 90*time.Second, d)
}

func TestMinutesZeroDisablesCaching(t *testing.T) {
	require.False(t, Minutes(0).Stores())
	d, ok := Minutes(5).Duration()
	require.True(t, ok)
	require.Equal(t, 5*time.Minute, d)
}

func TestForeverHasNoExpiry(t *testing.T) {
	ttl := Forever()
	require.True(t, ttl.Stores())
	_, ok := ttl.Duration()
	require.False(t, ok)
	require.True(t, ttl.ExpiresAt(time.Now()).IsZero())
	require.Equal(t, "forever", ttl.String())
}

func TestExpiresAt(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, now.Add(time.Hour), Until(time.Hour).ExpiresAt(now))
	require.True(t, Never().ExpiresAt(now).IsZero())
}
