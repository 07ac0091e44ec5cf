package product

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-saga/internal/application"
	"github.com/Zhima-Mochi/minishop-saga/internal/domain/failure"
	domorder "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-saga/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"
)

const (
	workerService = "product-worker"
	dedupTTL      = 24 * time.Hour
	// claimTTL outlives one handler run on either bus.
	claimTTL = time.Minute
)

// ErrDeliveryInFlight is returned while another claim on the same delivery
// has not completed; the bus retries it.
var ErrDeliveryInFlight = fmt.Errorf("worker: delivery in flight: %w", failure.ErrConflict)

// Worker applies check-order once per order and stock-recovered once per order line.
type Worker struct {
	subscriber domoutbox.Subscriber
	check      application.UseCase[domorder.CheckOrderEvent, *CheckResult]
	ledger     *Ledger
	dedup      domoutbox.Deduper
	obs        *application.Observer
}

func NewWorker(
	subscriber domoutbox.Subscriber,
	check application.UseCase[domorder.CheckOrderEvent, *CheckResult],
	ledger *Ledger,
	dedup domoutbox.Deduper,
	tel observability.Observability,
) *Worker {
	return &Worker{
		subscriber: subscriber,
		check:      check,
		ledger:     ledger,
		dedup:      dedup,
		obs:        application.NewObserver(workerService, tel),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.check == nil || w.ledger == nil {
		return
	}
	w.subscriber.Subscribe(domoutbox.TopicCheckOrder,
		application.On(w.obs, "product.worker.check_order", w.handleCheckOrder))
	w.subscriber.Subscribe(domoutbox.TopicStockRecovered,
		application.On(w.obs, "product.worker.stock_recovered", w.handleStockRecovered))
}

func (w *Worker) handleCheckOrder(ctx context.Context, evt domorder.CheckOrderEvent) error {
	return w.once(ctx, dedupKey(domoutbox.TopicCheckOrder, evt.OrderID), func(ctx context.Context) error {
		_, err := w.check.Execute(ctx, evt)
		return err
	})
}

// handleStockRecovered credits line by line under one key per line, so a
// redelivery after a partial failure only credits the lines still missing.
func (w *Worker) handleStockRecovered(ctx context.Context, evt domorder.StockRecoveredEvent) error {
	for _, line := range evt.Lines {
		single := evt
		single.Lines = []domorder.StockLine{line}
		key := dedupKey(domoutbox.TopicStockRecovered, evt.OrderID) + ":" + line.ProductID
		if err := w.once(ctx, key, func(ctx context.Context) error {
			return w.ledger.RecoverStock(ctx, single)
		}); err != nil {
			return err
		}
	}
	return nil
}

// once runs apply unless key was already applied. The key is claimed first
// and marked applied only after apply succeeded; a failed apply releases it,
// and a claim abandoned by a crash expires after claimTTL.
func (w *Worker) once(ctx context.Context, key string, apply func(context.Context) error) error {
	if w.dedup == nil {
		return apply(ctx)
	}
	state, err := w.dedup.Claim(ctx, key, claimTTL)
	if err != nil {
		return fmt.Errorf("worker: dedup %s: %w", key, err)
	}
	switch state {
	case domoutbox.Applied:
		w.obs.Logger().Info("duplicate_delivery", observability.F("key", key))
		return nil
	case domoutbox.InFlight:
		return fmt.Errorf("%w: %s", ErrDeliveryInFlight, key)
	}

	if err := apply(ctx); err != nil {
		if rErr := w.dedup.Release(ctx, key); rErr != nil {
			w.obs.Logger().Warn("dedup_release_failed",
				observability.F("key", key),
				observability.F("error", rErr.Error()),
			)
		}
		return err
	}
	if err := w.dedup.Complete(ctx, key, dedupTTL); err != nil {
		// Applied already; the claim expires and only a redelivery racing it could re-apply.
		w.obs.Logger().Error("dedup_complete_failed",
			observability.F("key", key),
			observability.F("error", err.Error()),
		)
	}
	return nil
}

func dedupKey(topic, orderID string) string {
	return "dedup:product:" + topic + ":" + orderID
}
