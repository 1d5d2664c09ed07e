package cache

import (
	"context"
	"encoding/json"
	"fmt"
)

// Provider is the shared key/value store the lookup services read through.
// Values are encoded as JSON so every backend hands back an independent
// snapshot; mutating a value after Set never leaks into the cache.
type Provider interface {
	// Get decodes the value stored under key into dest. found is false on a
	// miss or when the entry has expired.
	Get(ctx context.Context, key string, dest any) (found bool, err error)
	// Set stores value under key. A Never TTL is a no-op.
	Set(ctx context.Context, key string, value any, ttl TTL) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	Size(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

func encode(value any) ([]byte, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("cache: marshal: %w", err)
	}
	return payload, nil
}

func decode(payload []byte, dest any) error {
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("cache: unmarshal: %w", err)
	}
	return nil
}
