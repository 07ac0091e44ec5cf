package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Zhima-Mochi/minishop-saga/internal/domain/cache"
	domoutbox "github.com/Zhima-Mochi/minishop-saga/internal/domain/outbox"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// CacheStore is the in-process cache.Store for cache.driver=memory.
type CacheStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewCacheStore() *CacheStore {
	return &CacheStore{entries: make(map[string]entry), now: time.Now}
}

func (s *CacheStore) Get(ctx context.Context, key string) ([]byte, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil, cache.ErrMiss
	}
	return append([]byte(nil), e.value...), nil
}

func (s *CacheStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

func (s *CacheStore) Delete(ctx context.Context, keys ...string) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.entries, k)
	}
	return nil
}

// Deduper is the in-process outbox.Deduper.
type Deduper struct {
	mu   sync.Mutex
	keys map[string]dedupEntry
	now  func() time.Time
}

type dedupEntry struct {
	applied bool
	expires time.Time
}

func NewDeduper() *Deduper {
	return &Deduper{keys: make(map[string]dedupEntry), now: time.Now}
}

func (d *Deduper) Claim(ctx context.Context, key string, claimTTL time.Duration) (domoutbox.ClaimState, error) {
	_ = ctx

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if e, ok := d.keys[key]; ok && (e.expires.IsZero() || now.Before(e.expires)) {
		if e.applied {
			return domoutbox.Applied, nil
		}
		return domoutbox.InFlight, nil
	}
	d.keys[key] = dedupEntry{expires: expiry(now, claimTTL)}
	return domoutbox.Claimed, nil
}

func (d *Deduper) Complete(ctx context.Context, key string, ttl time.Duration) error {
	_ = ctx

	d.mu.Lock()
	defer d.mu.Unlock()

	d.keys[key] = dedupEntry{applied: true, expires: expiry(d.now(), ttl)}
	return nil
}

func (d *Deduper) Release(ctx context.Context, key string) error {
	_ = ctx

	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.keys[key]; ok && !e.applied {
		delete(d.keys, key)
	}
	return nil
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
