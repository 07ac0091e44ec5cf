package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-saga/internal/domain/outbox"

	"github.com/redis/go-redis/v9"
)

const (
	claimPending = "pending"
	claimApplied = "applied"
)

// releasePending deletes the key only while it still holds a pending claim,
// so a late Release never wipes an applied mark.
var releasePending = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Deduper keeps a two-state key per delivery: SETNX "pending" to claim, SET
// "applied" once the apply succeeded.
type Deduper struct {
	rdb redis.UniversalClient
}

func NewDeduper(rdb redis.UniversalClient) *Deduper {
	return &Deduper{rdb: rdb}
}

func (d *Deduper) Claim(ctx context.Context, key string, claimTTL time.Duration) (domoutbox.ClaimState, error) {
	ok, err := d.rdb.SetNX(ctx, key, claimPending, claimTTL).Result()
	if err != nil {
		return domoutbox.InFlight, fmt.Errorf("rediscache: setnx %s: %w", key, err)
	}
	if ok {
		return domoutbox.Claimed, nil
	}
	v, err := d.rdb.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// The claim expired between the two calls; the redelivery claims it.
		return domoutbox.InFlight, nil
	case err != nil:
		return domoutbox.InFlight, fmt.Errorf("rediscache: get %s: %w", key, err)
	case v == claimApplied:
		return domoutbox.Applied, nil
	default:
		return domoutbox.InFlight, nil
	}
}

func (d *Deduper) Complete(ctx context.Context, key string, ttl time.Duration) error {
	if err := d.rdb.Set(ctx, key, claimApplied, ttl).Err(); err != nil {
		return fmt.Errorf("rediscache: set %s: %w", key, err)
	}
	return nil
}

func (d *Deduper) Release(ctx context.Context, key string) error {
	if err := releasePending.Run(ctx, d.rdb, []string{key}, claimPending).Err(); err != nil {
		return fmt.Errorf("rediscache: release %s: %w", key, err)
	}
	return nil
}
