package rediscache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-saga/internal/domain/cache"
	domoutbox "github.com/Zhima-Mochi/minishop-saga/internal/domain/outbox"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := NewClient(Config{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestClient(t)
	s := NewStore(rdb)

	if _, err := s.Get(ctx, "product::p-1"); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("Expected ErrMiss, got %v", err)
	}

	if err := s.Set(ctx, "product::p-1", []byte(`{"id":"p-1"}`), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	b, err := s.Get(ctx, "product::p-1")
	if err != nil || string(b) != `{"id":"p-1"}` {
		t.Errorf("Expected stored payload, got %q %v", b, err)
	}
	if ttl := mr.TTL("product::p-1"); ttl != time.Minute {
		t.Errorf("Expected ttl 1m, got %s", ttl)
	}

	_ = s.Set(ctx, "product::p-2", []byte("x"), 0)
	if err := s.Delete(ctx, "product::p-1", "product::p-2"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if mr.Exists("product::p-1") || mr.Exists("product::p-2") {
		t.Error("Expected both keys to be gone")
	}
	if err := s.Delete(ctx); err != nil {
		t.Errorf("Expected empty delete to be a no-op, got %v", err)
	}
}

func TestStore_ExpiredEntryMisses(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestClient(t)
	s := NewStore(rdb)

	_ = s.Set(ctx, "k", []byte("v"), time.Second)
	mr.FastForward(2 * time.Second)

	if _, err := s.Get(ctx, "k"); !errors.Is(err, cache.ErrMiss) {
		t.Errorf("Expected ErrMiss after expiry, got %v", err)
	}
}

func TestStore_ServerDown(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestClient(t)
	s := NewStore(rdb)
	mr.Close()

	if _, err := s.Get(ctx, "k"); err == nil || errors.Is(err, cache.ErrMiss) {
		t.Errorf("Expected a transport error, got %v", err)
	}
}

func TestDeduper_ClaimCompleteRelease(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestClient(t)
	d := NewDeduper(rdb)
	key := "dedup:product:check-order:o-1"

	state, err := d.Claim(ctx, key, time.Minute)
	if err != nil || state != domoutbox.Claimed {
		t.Fatalf("Expected first delivery to claim, got %s (%v)", state, err)
	}
	if again, _ := d.Claim(ctx, key, time.Minute); again != domoutbox.InFlight {
		t.Errorf("Expected a concurrent redelivery to see the claim in flight, got %s", again)
	}

	if err := d.Release(ctx, key); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if state, _ := d.Claim(ctx, key, time.Minute); state != domoutbox.Claimed {
		t.Fatalf("Expected released key to be claimable, got %s", state)
	}

	if err := d.Complete(ctx, key, time.Hour); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if ttl := mr.TTL(key); ttl != time.Hour {
		t.Errorf("Expected ttl 1h, got %s", ttl)
	}
	if state, _ := d.Claim(ctx, key, time.Minute); state != domoutbox.Applied {
		t.Errorf("Expected redelivery after completion to be applied, got %s", state)
	}
	if err := d.Release(ctx, key); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if state, _ := d.Claim(ctx, key, time.Minute); state != domoutbox.Applied {
		t.Errorf("Expected release to leave an applied mark alone, got %s", state)
	}
}

func TestDeduper_AbandonedClaimExpires(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestClient(t)
	d := NewDeduper(rdb)
	key := "dedup:product:check-order:o-2"

	if state, _ := d.Claim(ctx, key, time.Minute); state != domoutbox.Claimed {
		t.Fatalf("Expected claim, got %s", state)
	}
	// The claimant crashed before completing.
	mr.FastForward(2 * time.Minute)

	if state, _ := d.Claim(ctx, key, time.Minute); state != domoutbox.Claimed {
		t.Errorf("Expected the redelivery to claim the expired key, got %s", state)
	}
}
