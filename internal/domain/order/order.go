package order

import (
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-saga/internal/domain/failure"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound               = fmt.Errorf("order: %w", failure.ErrNotFound)
	ErrInvalidStateTransition = fmt.Errorf("order: %w", failure.ErrInvalidState)
	ErrConflict               = fmt.Errorf("order: concurrent modification: %w", failure.ErrConflict)
	ErrProcessing             = fmt.Errorf("order: still processing: %w", failure.ErrInvalidState)
	ErrUnauthorized           = fmt.Errorf("order: admin role required: %w", failure.ErrUnauthorized)
	ErrNoLines                = failure.Validation("order: at least one line is required")
	ErrInvalidAmount          = failure.Validation("order: line amount must be greater than zero")
	ErrMissingCustomer        = failure.Validation("order: customer id is required")
)

type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusSuccessful Status = "SUCCESSFUL"
	StatusFailed     Status = "FAILED"
	StatusCanceled   Status = "CANCELED"
)

// Terminal reports whether no further status transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusSuccessful || s == StatusFailed || s == StatusCanceled
}

// CartLine is what the customer asked for, before the stock ledger prices it.
type CartLine struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Amount      int    `json:"amount"`
}

// LineItem is one product row of an order. Status and archival live on the
// aggregate so every line always shares them.
type LineItem struct {
	ProductID   string
	ProductName string
	Amount      int
	Price       decimal.NullDecimal
}

// Order is the aggregate of all line items sharing one order id. Version
// guards every read-modify-write.
type Order struct {
	ID            string
	CustomerID    string
	Status        Status
	Archived      bool
	OrderDate     time.Time
	ExecutionDate *time.Time
	Lines         []LineItem
	Version       int64
}

// New builds a PROCESSING order with unpriced lines.
func New(id, customerID string, lines []CartLine, now time.Time) (*Order, error) {
	if customerID == "" {
		return nil, ErrMissingCustomer
	}
	if len(lines) == 0 {
		return nil, ErrNoLines
	}
	items := make([]LineItem, 0, len(lines))
	for _, l := range lines {
		if l.Amount <= 0 {
			return nil, ErrInvalidAmount
		}
		if l.ProductID == "" {
			return nil, failure.Validation("order: product id is required")
		}
		items = append(items, LineItem{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Amount:      l.Amount,
		})
	}
	return &Order{
		ID:         id,
		CustomerID: customerID,
		Status:     StatusProcessing,
		OrderDate:  now.UTC(),
		Lines:      items,
	}, nil
}

// Priced reports whether the stock ledger accepted the order, which means stock was deducted for it.
func (o *Order) Priced() bool {
	if len(o.Lines) == 0 {
		return false
	}
	for _, l := range o.Lines {
		if !l.Price.Valid {
			return false
		}
	}
	return true
}

// Total sums priced lines; unpriced lines count as zero.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		if l.Price.Valid {
			total = total.Add(l.Price.Decimal.Mul(decimal.NewFromInt(int64(l.Amount))))
		}
	}
	return total
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Lines = append([]LineItem(nil), o.Lines...)
	if o.ExecutionDate != nil {
		t := *o.ExecutionDate
		clone.ExecutionDate = &t
	}
	return &clone
}
