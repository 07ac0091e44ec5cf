package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domorder "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-saga/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/minishop-saga/internal/domain/payment"
	domproduct "github.com/Zhima-Mochi/minishop-saga/internal/domain/product"

	"github.com/google/uuid"
)

var ErrUnknownEvent = errors.New("kafka: no decoder registered for event type")

// Envelope is the wire form of every message on the bus.
type Envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Producer   string          `json:"producer"`
	Payload    json.RawMessage `json:"payload"`
}

type decoder func(json.RawMessage) (domoutbox.Event, error)

// Codec maps event types to their concrete Go payloads.
type Codec struct {
	producer string
	decoders map[string]decoder
}

func NewCodec(producer string) *Codec {
	return &Codec{producer: producer, decoders: make(map[string]decoder)}
}

// Register binds E's topic to E's decoder.
func Register[E domoutbox.Event](c *Codec) {
	var zero E
	c.decoders[zero.EventName()] = func(raw json.RawMessage) (domoutbox.Event, error) {
		var e E
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", zero.EventName(), err)
		}
		return e, nil
	}
}

// DefaultCodec knows every topic the saga participants exchange.
func DefaultCodec(producer string) *Codec {
	c := NewCodec(producer)
	Register[domorder.OrderRequestedEvent](c)
	Register[domorder.CheckOrderEvent](c)
	Register[domorder.StockRecoveredEvent](c)
	Register[domorder.CancelPaymentRequestedEvent](c)
	Register[domproduct.OrderAcceptedEvent](c)
	Register[domproduct.OrderRejectedEvent](c)
	Register[domproduct.StockDeductedEvent](c)
	Register[domproduct.ProductCreatedEvent](c)
	Register[domproduct.ProductUpdatedEvent](c)
	Register[domproduct.ProductDeletedEvent](c)
	Register[dompayment.PaymentCreatedEvent](c)
	Register[dompayment.PaymentSucceededEvent](c)
	Register[dompayment.PaymentFailedEvent](c)
	Register[dompayment.PaymentCanceledEvent](c)
	return c
}

func (c *Codec) Encode(e domoutbox.Event, now time.Time) ([]byte, Envelope, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, Envelope{}, fmt.Errorf("encode %s payload: %w", e.EventName(), err)
	}
	env := Envelope{
		EventID:    uuid.NewString(),
		EventType:  e.EventName(),
		OccurredAt: now.UTC(),
		Producer:   c.producer,
		Payload:    payload,
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, Envelope{}, fmt.Errorf("encode envelope: %w", err)
	}
	return b, env, nil
}

func (c *Codec) Decode(b []byte) (domoutbox.Event, Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	dec, ok := c.decoders[env.EventType]
	if !ok {
		return nil, env, fmt.Errorf("%w: %q", ErrUnknownEvent, env.EventType)
	}
	e, err := dec(env.Payload)
	if err != nil {
		return nil, env, err
	}
	return e, env, nil
}
