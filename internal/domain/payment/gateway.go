package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is one checkout row; UnitAmount is in minor units (cents).
type LineItem struct {
	Name       string
	Quantity   int
	UnitAmount int64
}

// ToMinorUnits converts a decimal price to cents without float rounding.
func ToMinorUnits(price decimal.Decimal) int64 {
	return price.Shift(2).Round(0).IntPart()
}

type Session struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

// Gateway is the external checkout provider.
type Gateway interface {
	CreateSession(ctx context.Context, orderID string, lines []LineItem) (*Session, error)
	Expire(ctx context.Context, sessionID string) error
}
