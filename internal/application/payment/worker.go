package payment

import (
	"context"

	"github.com/Zhima-Mochi/minishop-saga/internal/application"
	domorder "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-saga/internal/domain/outbox"
	domproduct "github.com/Zhima-Mochi/minishop-saga/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"
)

const workerService = "payment-worker"

type Worker struct {
	subscriber domoutbox.Subscriber
	create     application.UseCase[domproduct.OrderAcceptedEvent, *ProcessOrderCreationResult]
	service    *Service
	obs        *application.Observer
}

func NewWorker(
	subscriber domoutbox.Subscriber,
	create application.UseCase[domproduct.OrderAcceptedEvent, *ProcessOrderCreationResult],
	service *Service,
	tel observability.Observability,
) *Worker {
	return &Worker{
		subscriber: subscriber,
		create:     create,
		service:    service,
		obs:        application.NewObserver(workerService, tel),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.create == nil || w.service == nil {
		return
	}
	w.subscriber.Subscribe(domoutbox.TopicAcceptedOrder,
		application.On(w.obs, "payment.worker.accepted_order", w.handleOrderAccepted))
	w.subscriber.Subscribe(domoutbox.TopicRequestedCancelPayment,
		application.On(w.obs, "payment.worker.requested_cancel_payment", w.handleCancelRequested))
}

func (w *Worker) handleOrderAccepted(ctx context.Context, evt domproduct.OrderAcceptedEvent) error {
	_, err := w.create.Execute(ctx, evt)
	return err
}

func (w *Worker) handleCancelRequested(ctx context.Context, evt domorder.CancelPaymentRequestedEvent) error {
	return w.service.CancelPayment(ctx, evt.OrderID, evt.CustomerID)
}
