package order

import (
	"time"

	"github.com/Zhima-Mochi/minishop-saga/internal/domain/outbox"
)

// OrderRequestedEvent is emitted by the cart when a customer checks out.
type OrderRequestedEvent struct {
	CustomerID string     `json:"customerId"`
	Lines      []CartLine `json:"lines"`
	OccurredAt time.Time  `json:"occurredAt"`
}

func (OrderRequestedEvent) EventName() string { return outbox.TopicOrderRequested }

func (e OrderRequestedEvent) PartitionKey() string { return e.CustomerID }

// CheckOrderEvent asks the stock ledger to price and reserve an order.
type CheckOrderEvent struct {
	OrderID    string     `json:"orderId"`
	CustomerID string     `json:"customerId"`
	Lines      []CartLine `json:"lines"`
	OccurredAt time.Time  `json:"occurredAt"`
}

func (CheckOrderEvent) EventName() string { return outbox.TopicCheckOrder }

func (e CheckOrderEvent) PartitionKey() string { return e.OrderID }

func NewCheckOrderEvent(o *Order) CheckOrderEvent {
	lines := make([]CartLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, CartLine{ProductID: l.ProductID, ProductName: l.ProductName, Amount: l.Amount})
	}
	return CheckOrderEvent{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Lines:      lines,
		OccurredAt: time.Now().UTC(),
	}
}

// StockLine is the quantity to give back for one product.
type StockLine struct {
	ProductID string `json:"productId"`
	Amount    int    `json:"amount"`
}

// StockRecoveredEvent asks the stock ledger to credit back an order's lines.
type StockRecoveredEvent struct {
	OrderID    string      `json:"orderId"`
	Lines      []StockLine `json:"lines"`
	OccurredAt time.Time   `json:"occurredAt"`
}

func (StockRecoveredEvent) EventName() string { return outbox.TopicStockRecovered }

func (e StockRecoveredEvent) PartitionKey() string { return e.OrderID }

func NewStockRecoveredEvent(o *Order) StockRecoveredEvent {
	lines := make([]StockLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, StockLine{ProductID: l.ProductID, Amount: l.Amount})
	}
	return StockRecoveredEvent{
		OrderID:    o.ID,
		Lines:      lines,
		OccurredAt: time.Now().UTC(),
	}
}

// CancelPaymentRequestedEvent asks the payment service to expire the order's session.
type CancelPaymentRequestedEvent struct {
	OrderID    string    `json:"orderId"`
	CustomerID string    `json:"customerId"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (CancelPaymentRequestedEvent) EventName() string { return outbox.TopicRequestedCancelPayment }

func (e CancelPaymentRequestedEvent) PartitionKey() string { return e.OrderID }

func NewCancelPaymentRequestedEvent(o *Order) CancelPaymentRequestedEvent {
	return CancelPaymentRequestedEvent{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		OccurredAt: time.Now().UTC(),
	}
}
