package cache

import (
	"log/slog"
	"time"
)

// TTLKind enumerates the expiry modes a cache entry can be written with.
type TTLKind int

const (
	// TTLNever means the value must not be written at all.
	TTLNever TTLKind = iota
	// TTLForever stores the value without passive expiry; only Remove clears it.
	TTLForever
	// TTLUntil stores the value for a bounded duration.
	TTLUntil
)

// TTL is the expiry policy attached to a single Set call.
type TTL struct {
	kind     TTLKind
	duration time.Duration
}

// Never returns a TTL that suppresses the write.
func Never() TTL { return TTL{kind: TTLNever} }

// Forever returns a TTL without passive expiry.
func Forever() TTL { return TTL{kind: TTLForever} }

// Until returns a TTL that expires after d. Non-positive durations collapse
// to Never so callers cannot accidentally write an already expired entry.
func Until(d time.Duration) TTL {
	if d <= 0 {
		return Never()
	}
	return TTL{kind: TTLUntil, duration: d}
}

// Minutes converts a configured minute count into a TTL where 0 disables
// caching.
func Minutes(n int) TTL {
	return Until(time.Duration(n) * time.Minute)
}

// Kind reports which expiry mode applies.
func (t TTL) Kind() TTLKind { return t.kind }

// Duration returns the bounded lifetime and true for Until TTLs.
func (t TTL) Duration() (time.Duration, bool) {
	if t.kind != TTLUntil {
		return 0, false
	}
	return t.duration, true
}

// Stores reports whether a Set with this TTL persists anything.
func (t TTL) Stores() bool { return t.kind != TTLNever }

// ExpiresAt returns the absolute expiry relative to now. The zero time means
// the entry never expires.
func (t TTL) ExpiresAt(now time.Time) time.Time {
	if t.kind != TTLUntil {
		return time.Time{}
	}
	return now.Add(t.duration)
}

func (t TTL) String() string {
	switch t.kind {
	case TTLForever:
		return "forever"
	case TTLUntil:
		return t.duration.String()
	default:
		return "never"
	}
}

// LogValue renders the TTL as a single string attribute.
func (t TTL) LogValue() slog.Value { return slog.StringValue(t.String()) }
