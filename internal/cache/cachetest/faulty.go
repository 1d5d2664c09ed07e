// Package cachetest provides cache.Provider doubles for service tests.
package cachetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/l0p7/gatewaycache/internal/cache"
)

// ErrInjected is returned by Faulty when a failure switch is on.
var ErrInjected = errors.New("cachetest: injected failure")

// Faulty wraps a Provider, counts calls and fails selected operations on demand.
type Faulty struct {
	cache.Provider

	mu         sync.Mutex
	failGet    bool
	failSet    bool
	failRemove bool
	gets       int
	sets       int
	removes    int
	lastTTL    map[string]cache.TTL
}

// NewFaulty wraps an in-memory provider driven by now. A nil clock uses time.Now.
func NewFaulty(now func() time.Time) *Faulty {
	var opts []cache.MemoryOption
	if now != nil {
		opts = append(opts, cache.WithClock(now))
	}
	return &Faulty{Provider: cache.NewMemory(opts...), lastTTL: map[string]cache.TTL{}}
}

// FailGet toggles read failures.
func (f *Faulty) FailGet(fail bool) { f.mu.Lock(); f.failGet = fail; f.mu.Unlock() }

// FailSet toggles write failures.
func (f *Faulty) FailSet(fail bool) { f.mu.Lock(); f.failSet = fail; f.mu.Unlock() }

// FailRemove toggles remove failures.
func (f *Faulty) FailRemove(fail bool) { f.mu.Lock(); f.failRemove = fail; f.mu.Unlock() }

func (f *Faulty) Get(ctx context.Context, key string, dest any) (bool, error) {
	f.mu.Lock()
	f.gets++
	fail := f.failGet
	f.mu.Unlock()
	if fail {
		return false, ErrInjected
	}
	return f.Provider.Get(ctx, key, dest)
}

func (f *Faulty) Set(ctx context.Context, key string, value any, ttl cache.TTL) error {
	f.mu.Lock()
	f.sets++
	fail := f.failSet
	if !fail {
		f.lastTTL[key] = ttl
	}
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.Provider.Set(ctx, key, value, ttl)
}

func (f *Faulty) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	f.removes++
	fail := f.failRemove
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.Provider.Remove(ctx, key)
}

// Gets returns the number of Get calls observed.
func (f *Faulty) Gets() int { f.mu.Lock(); defer f.mu.Unlock(); return f.gets }

// Sets returns the number of Set calls observed.
func (f *Faulty) Sets() int { f.mu.Lock(); defer f.mu.Unlock(); return f.sets }

// Removes returns the number of Remove calls observed.
func (f *Faulty) Removes() int { f.mu.Lock(); defer f.mu.Unlock(); return f.removes }

// LastTTL returns the TTL of the most recent successful Set for key.
func (f *Faulty) LastTTL(key string) (cache.TTL, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ttl, ok := f.lastTTL[key]
	return ttl, ok
}
