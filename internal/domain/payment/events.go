package payment

import (
	"time"

	"github.com/Zhima-Mochi/minishop-saga/internal/domain/outbox"
	"github.com/shopspring/decimal"
)

type OrderLine struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Amount      int             `json:"amount"`
	Price       decimal.Decimal `json:"price"`
}

// PaymentCreatedEvent carries the checkout link to the customer.
type PaymentCreatedEvent struct {
	CustomerID  string          `json:"customerId"`
	OrderID     string          `json:"orderId"`
	Lines       []OrderLine     `json:"lines"`
	Total       decimal.Decimal `json:"total"`
	CheckoutURL string          `json:"checkoutUrl"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

func (PaymentCreatedEvent) EventName() string { return outbox.TopicCreatedPayment }

func (e PaymentCreatedEvent) PartitionKey() string { return e.OrderID }

// StatusChangedEvent is shared by the three terminal payment topics.
type StatusChangedEvent struct {
	CustomerID string    `json:"customerId"`
	OrderID    string    `json:"orderId"`
	OccurredAt time.Time `json:"occurredAt"`
}

type PaymentSucceededEvent struct{ StatusChangedEvent }

func (PaymentSucceededEvent) EventName() string { return outbox.TopicSucceededPayment }

func (e PaymentSucceededEvent) PartitionKey() string { return e.OrderID }

type PaymentFailedEvent struct{ StatusChangedEvent }

func (PaymentFailedEvent) EventName() string { return outbox.TopicFailedPayment }

func (e PaymentFailedEvent) PartitionKey() string { return e.OrderID }

type PaymentCanceledEvent struct{ StatusChangedEvent }

func (PaymentCanceledEvent) EventName() string { return outbox.TopicCanceledPayment }

func (e PaymentCanceledEvent) PartitionKey() string { return e.OrderID }

// NewStatusEvent returns the topic event for a terminal status, or nil for CREATED.
func NewStatusEvent(r *Request) outbox.Event {
	base := StatusChangedEvent{CustomerID: r.CustomerID, OrderID: r.OrderID, OccurredAt: time.Now().UTC()}
	switch r.Status {
	case StatusSucceeded:
		return PaymentSucceededEvent{base}
	case StatusFailed:
		return PaymentFailedEvent{base}
	case StatusCanceled:
		return PaymentCanceledEvent{base}
	default:
		return nil
	}
}
