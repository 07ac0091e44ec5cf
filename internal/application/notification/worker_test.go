package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	domoutbox "github.com/Zhima-Mochi/minishop-saga/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/minishop-saga/internal/domain/payment"
	domproduct "github.com/Zhima-Mochi/minishop-saga/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"

	"github.com/shopspring/decimal"
)

type inbox struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (i *inbox) Send(_ context.Context, msg Message) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return i.err
	}
	i.sent = append(i.sent, msg)
	return nil
}

type subscriber map[string][]domoutbox.Handler

func (s subscriber) Subscribe(topic string, h domoutbox.Handler) {
	s[topic] = append(s[topic], h)
}

func TestWorker_MailsOutcomes(t *testing.T) {
	ctx := context.Background()
	box := &inbox{}
	sub := subscriber{}
	NewWorker(sub, box, observability.Nop()).Start()

	for _, topic := range []string{
		domoutbox.TopicCreatedPayment,
		domoutbox.TopicSucceededPayment,
		domoutbox.TopicFailedPayment,
		domoutbox.TopicCanceledPayment,
		domoutbox.TopicRejectedOrder,
	} {
		if len(sub[topic]) != 1 {
			t.Errorf("Expected a handler for %s", topic)
		}
	}

	created := dompayment.PaymentCreatedEvent{
		CustomerID:  "c-1",
		OrderID:     "o-1",
		Total:       decimal.RequireFromString("3"),
		CheckoutURL: "https://pay.test/cs_1",
	}
	if err := sub[domoutbox.TopicCreatedPayment][0](ctx, created); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	rejected := domproduct.OrderRejectedEvent{OrderID: "o-2", CustomerID: "c-1", Unavailable: []string{"Apple", "Pear"}}
	if err := sub[domoutbox.TopicRejectedOrder][0](ctx, rejected); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(box.sent) != 2 {
		t.Fatalf("Expected 2 mails, got %d", len(box.sent))
	}
	if !strings.Contains(box.sent[0].Body, "3.00") || !strings.Contains(box.sent[0].Body, "https://pay.test/cs_1") {
		t.Errorf("Unexpected payment mail %q", box.sent[0].Body)
	}
	if !strings.Contains(box.sent[1].Body, "Apple, Pear") {
		t.Errorf("Unexpected rejection mail %q", box.sent[1].Body)
	}
}

func TestWorker_MailerErrorIsRetryable(t *testing.T) {
	box := &inbox{err: errors.New("smtp down")}
	sub := subscriber{}
	NewWorker(sub, box, observability.Nop()).Start()

	evt := dompayment.PaymentFailedEvent{StatusChangedEvent: dompayment.StatusChangedEvent{OrderID: "o-1", CustomerID: "c-1"}}
	if err := sub[domoutbox.TopicFailedPayment][0](context.Background(), evt); err == nil {
		t.Error("Expected the mailer error to surface for redelivery")
	}
}
