package order

import (
	"context"

	"github.com/Zhima-Mochi/minishop-saga/internal/application"
	domorder "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-saga/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/minishop-saga/internal/domain/payment"
	domproduct "github.com/Zhima-Mochi/minishop-saga/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"
)

const workerService = "order-worker"

// Worker drives the order side of the saga from bus events.
type Worker struct {
	subscriber domoutbox.Subscriber
	place      application.UseCase[PlaceOrderInput, *PlaceOrderResult]
	service    *Service
	obs        *application.Observer
}

func NewWorker(
	subscriber domoutbox.Subscriber,
	place application.UseCase[PlaceOrderInput, *PlaceOrderResult],
	service *Service,
	tel observability.Observability,
) *Worker {
	return &Worker{
		subscriber: subscriber,
		place:      place,
		service:    service,
		obs:        application.NewObserver(workerService, tel),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.service == nil {
		return
	}
	if w.place != nil {
		w.subscriber.Subscribe(domoutbox.TopicOrderRequested,
			application.On(w.obs, "order.worker.order_requested", w.handleOrderRequested))
	}
	w.subscriber.Subscribe(domoutbox.TopicAcceptedOrder,
		application.On(w.obs, "order.worker.accepted_order", w.service.AcceptOrder))
	w.subscriber.Subscribe(domoutbox.TopicRejectedOrder,
		application.On(w.obs, "order.worker.rejected_order", w.handleRejected))
	w.subscriber.Subscribe(domoutbox.TopicSucceededPayment,
		application.On(w.obs, "order.worker.succeeded_payment", w.handlePaymentSucceeded))
	w.subscriber.Subscribe(domoutbox.TopicFailedPayment,
		application.On(w.obs, "order.worker.failed_payment", w.handlePaymentFailed))
}

func (w *Worker) handleOrderRequested(ctx context.Context, evt domorder.OrderRequestedEvent) error {
	_, err := w.place.Execute(ctx, PlaceOrderInput{CustomerID: evt.CustomerID, Lines: evt.Lines})
	return err
}

func (w *Worker) handleRejected(ctx context.Context, evt domproduct.OrderRejectedEvent) error {
	return w.service.RejectOrder(ctx, evt.OrderID)
}

func (w *Worker) handlePaymentSucceeded(ctx context.Context, evt dompayment.PaymentSucceededEvent) error {
	return w.service.CompleteOrder(ctx, evt.OrderID)
}

func (w *Worker) handlePaymentFailed(ctx context.Context, evt dompayment.PaymentFailedEvent) error {
	return w.service.FailPayment(ctx, evt.OrderID)
}
