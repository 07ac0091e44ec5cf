package payment

import (
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-saga/internal/domain/failure"
)

var (
	ErrNotFound         = fmt.Errorf("payment: %w", failure.ErrNotFound)
	ErrAlreadyExists    = fmt.Errorf("payment: request already exists: %w", failure.ErrConflict)
	ErrConflict         = fmt.Errorf("payment: concurrent modification: %w", failure.ErrConflict)
	ErrGateway          = fmt.Errorf("payment: gateway: %w", failure.ErrUpstreamUnavailable)
	ErrNoSession        = fmt.Errorf("payment: gateway returned no session: %w", failure.ErrUpstreamUnavailable)
	ErrUnknownEventType = failure.Validation("payment: unknown gateway event type")
	ErrEmptyOrder       = failure.Validation("payment: order has no lines")
)

type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusCanceled  Status = "CANCELED"
)

func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// Request tracks one gateway session per order.
type Request struct {
	OrderID    string
	CustomerID string
	SessionID  string
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func NewRequest(orderID, customerID, sessionID string) *Request {
	now := time.Now().UTC()
	return &Request{
		OrderID:    orderID,
		CustomerID: customerID,
		SessionID:  sessionID,
		Status:     StatusCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Merge applies next only when it is a real change away from a non-terminal status.
// It reports whether anything changed.
func (r *Request) Merge(next Status) bool {
	if r.Status.Terminal() || r.Status == next {
		return false
	}
	r.Status = next
	r.UpdatedAt = time.Now().UTC()
	return true
}

// Cancel marks the request canceled unless it already settled.
func (r *Request) Cancel() bool {
	return r.Merge(StatusCanceled)
}

func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// Gateway event types reported through the webhook.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventCheckoutSessionExpired   = "checkout.session.expired"
	EventPaymentIntentSucceeded   = "payment_intent.succeeded"
	EventPaymentIntentFailed      = "payment_intent.payment_failed"
)

// StatusFromGatewayEvent maps a gateway event type onto a terminal status.
func StatusFromGatewayEvent(eventType string) (Status, error) {
	switch eventType {
	case EventCheckoutSessionCompleted, EventPaymentIntentSucceeded:
		return StatusSucceeded, nil
	case EventCheckoutSessionExpired, EventPaymentIntentFailed:
		return StatusFailed, nil
	default:
		return "", ErrUnknownEventType
	}
}
