package outbox

import (
	"context"
	"time"
)

// ClaimState is what Claim found under a dedup key.
type ClaimState int

const (
	// Claimed means the caller now owns the key and must apply, then Complete or Release.
	Claimed ClaimState = iota
	// InFlight means another claim holds the key and has not completed yet.
	InFlight
	// Applied means the delivery was already applied.
	Applied
)

func (s ClaimState) String() string {
	switch s {
	case Claimed:
		return "claimed"
	case InFlight:
		return "in_flight"
	case Applied:
		return "applied"
	default:
		return "unknown"
	}
}

// Deduper remembers which deliveries were already applied. A key is claimed
// before the apply and only marked applied after it succeeded, so a crash in
// between leaves a claim that expires instead of a false "applied".
type Deduper interface {
	// Claim atomically takes key for claimTTL unless it is held or applied.
	Claim(ctx context.Context, key string, claimTTL time.Duration) (ClaimState, error)
	// Complete marks key applied for ttl.
	Complete(ctx context.Context, key string, ttl time.Duration) error
	// Release drops a claim so a failed delivery can be applied again.
	Release(ctx context.Context, key string) error
}
