// Package cache defines typed keyspace handles over a byte store.
// Caches are derived views only; a miss always recomputes from the owning repository.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrMiss = errors.New("cache: miss")

type Keyspace string

const (
	OrderUnarchived   Keyspace = "order-unarchived"
	OrderArchived     Keyspace = "order-archived"
	OrderAdminAll     Keyspace = "order-admin-all"
	ProductByID       Keyspace = "product-by-id"
	ProductByCategory Keyspace = "product-by-category"
	ProductPrice      Keyspace = "product-price"
	ProductName       Keyspace = "product-name"
	ProductAll        Keyspace = "product-all"
)

// AllKey is the id used by keyspaces holding a single grouped entry.
const AllKey = "all"

type Key struct {
	Space Keyspace
	ID    string
}

func (k Key) String() string { return string(k.Space) + "::" + k.ID }

// Store is the raw backend (redis or in-memory).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Handle is bound to one keyspace and one value type.
type Handle[T any] struct {
	space Keyspace
	store Store
	ttl   time.Duration
}

func NewHandle[T any](space Keyspace, store Store, ttl time.Duration) *Handle[T] {
	return &Handle[T]{space: space, store: store, ttl: ttl}
}

func (h *Handle[T]) Space() Keyspace { return h.space }

func (h *Handle[T]) Key(id string) Key { return Key{Space: h.space, ID: id} }

func (h *Handle[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	raw, err := h.store.Get(ctx, h.Key(id).String())
	if errors.Is(err, ErrMiss) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (h *Handle[T]) Set(ctx context.Context, id string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.store.Set(ctx, h.Key(id).String(), raw, h.ttl)
}

// Load reads through the cache. Loader errors are returned and never cached;
// a broken cache degrades to the loader.
func (h *Handle[T]) Load(ctx context.Context, id string, load func(context.Context) (T, error)) (T, error) {
	if v, ok, err := h.Get(ctx, id); err == nil && ok {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	_ = h.Set(ctx, id, v)
	return v, nil
}

// Plan is the set of keys one mutation invalidates.
type Plan []Key

func (p Plan) Strings() []string {
	seen := make(map[string]struct{}, len(p))
	out := make([]string, 0, len(p))
	for _, k := range p {
		s := k.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Evict removes every key in plan from store.
func Evict(ctx context.Context, store Store, plan Plan) error {
	keys := plan.Strings()
	if len(keys) == 0 {
		return nil
	}
	return store.Delete(ctx, keys...)
}
