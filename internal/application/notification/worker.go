// Package notification mails customers about saga outcomes.
package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/Zhima-Mochi/minishop-saga/internal/application"
	domoutbox "github.com/Zhima-Mochi/minishop-saga/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/minishop-saga/internal/domain/payment"
	domproduct "github.com/Zhima-Mochi/minishop-saga/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"
)

const (
	workerService = "notification-worker"
	mailerPeer    = "mailer"
)

// Message is one customer mail.
type Message struct {
	CustomerID string
	Subject    string
	Body       string
}

// Mailer delivers customer mail.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type Worker struct {
	subscriber domoutbox.Subscriber
	mailer     Mailer
	obs        *application.Observer
}

func NewWorker(subscriber domoutbox.Subscriber, mailer Mailer, tel observability.Observability) *Worker {
	return &Worker{
		subscriber: subscriber,
		mailer:     mailer,
		obs:        application.NewObserver(workerService, tel),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.mailer == nil {
		return
	}
	w.subscriber.Subscribe(domoutbox.TopicCreatedPayment,
		application.On(w.obs, "notification.created_payment", w.onPaymentCreated))
	w.subscriber.Subscribe(domoutbox.TopicSucceededPayment,
		application.On(w.obs, "notification.succeeded_payment", w.onPaymentSucceeded))
	w.subscriber.Subscribe(domoutbox.TopicFailedPayment,
		application.On(w.obs, "notification.failed_payment", w.onPaymentFailed))
	w.subscriber.Subscribe(domoutbox.TopicCanceledPayment,
		application.On(w.obs, "notification.canceled_payment", w.onPaymentCanceled))
	w.subscriber.Subscribe(domoutbox.TopicRejectedOrder,
		application.On(w.obs, "notification.rejected_order", w.onOrderRejected))
}

func (w *Worker) onPaymentCreated(ctx context.Context, evt dompayment.PaymentCreatedEvent) error {
	return w.send(ctx, Message{
		CustomerID: evt.CustomerID,
		Subject:    "Complete your payment",
		Body: fmt.Sprintf("Order %s totals %s. Pay here: %s",
			evt.OrderID, evt.Total.StringFixed(2), evt.CheckoutURL),
	})
}

func (w *Worker) onPaymentSucceeded(ctx context.Context, evt dompayment.PaymentSucceededEvent) error {
	return w.send(ctx, Message{
		CustomerID: evt.CustomerID,
		Subject:    "Payment received",
		Body:       fmt.Sprintf("Order %s is paid and on its way.", evt.OrderID),
	})
}

func (w *Worker) onPaymentFailed(ctx context.Context, evt dompayment.PaymentFailedEvent) error {
	return w.send(ctx, Message{
		CustomerID: evt.CustomerID,
		Subject:    "Payment failed",
		Body:       fmt.Sprintf("Payment for order %s did not go through.", evt.OrderID),
	})
}

func (w *Worker) onPaymentCanceled(ctx context.Context, evt dompayment.PaymentCanceledEvent) error {
	return w.send(ctx, Message{
		CustomerID: evt.CustomerID,
		Subject:    "Order canceled",
		Body:       fmt.Sprintf("Order %s was canceled.", evt.OrderID),
	})
}

func (w *Worker) onOrderRejected(ctx context.Context, evt domproduct.OrderRejectedEvent) error {
	return w.send(ctx, Message{
		CustomerID: evt.CustomerID,
		Subject:    "Order could not be fulfilled",
		Body: fmt.Sprintf("Order %s was rejected. Out of stock: %s",
			evt.OrderID, strings.Join(evt.Unavailable, ", ")),
	})
}

func (w *Worker) send(ctx context.Context, msg Message) error {
	if msg.CustomerID == "" {
		return nil
	}
	return w.obs.External(ctx, mailerPeer, "send", func(ctx context.Context) error {
		return w.mailer.Send(ctx, msg)
	})
}
