package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-saga/internal/domain/cache"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/memory"
)

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("down")
}
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("down")
}
func (brokenStore) Delete(context.Context, ...string) error { return errors.New("down") }

func TestHandle_LoadReadsThrough(t *testing.T) {
	ctx := context.Background()
	h := cache.NewHandle[[]string](cache.ProductAll, memory.NewCacheStore(), time.Minute)

	calls := 0
	load := func(context.Context) ([]string, error) {
		calls++
		return []string{"a", "b"}, nil
	}
	for i := 0; i < 3; i++ {
		v, err := h.Load(ctx, cache.AllKey, load)
		if err != nil || len(v) != 2 {
			t.Fatalf("Unexpected load result %v, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("Expected loader to run once, ran %d times", calls)
	}
}

func TestHandle_LoaderErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	h := cache.NewHandle[string](cache.ProductName, memory.NewCacheStore(), time.Minute)
	boom := errors.New("not found")

	if _, err := h.Load(ctx, "p-1", func(context.Context) (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("Expected loader error, got %v", err)
	}
	if _, ok, _ := h.Get(ctx, "p-1"); ok {
		t.Error("Expected failed load to leave no entry")
	}
}

func TestHandle_BrokenStoreDegradesToLoader(t *testing.T) {
	h := cache.NewHandle[int](cache.ProductByID, brokenStore{}, time.Minute)
	v, err := h.Load(context.Background(), "x", func(context.Context) (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Errorf("Expected 7 from loader, got %d (%v)", v, err)
	}
}

func TestEvict_DeduplicatesKeys(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCacheStore()
	h := cache.NewHandle[string](cache.OrderUnarchived, store, time.Minute)
	_ = h.Set(ctx, "c-1", "cached")

	plan := cache.Plan{h.Key("c-1"), h.Key("c-1"), h.Key("c-2")}
	if got := len(plan.Strings()); got != 2 {
		t.Errorf("Expected 2 distinct keys, got %d", got)
	}
	if err := cache.Evict(ctx, store, plan); err != nil {
		t.Fatalf("Expected eviction to succeed, got %v", err)
	}
	if _, ok, _ := h.Get(ctx, "c-1"); ok {
		t.Error("Expected key to be evicted")
	}
	if got := h.Key("c-1").String(); got != "order-unarchived::c-1" {
		t.Errorf("Unexpected key format %s", got)
	}
}
