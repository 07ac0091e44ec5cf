package order

import (
	"context"
	"errors"
	"time"

	"github.com/Zhima-Mochi/minishop-saga/internal/application"
	"github.com/Zhima-Mochi/minishop-saga/internal/domain/failure"
	"github.com/Zhima-Mochi/minishop-saga/internal/domain/identity"
	domain "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-saga/internal/domain/outbox"
	domproduct "github.com/Zhima-Mochi/minishop-saga/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseOrderAccept    = "order.accept"
	useCaseOrderStatus    = "order.update_status"
	useCaseOrderCancel    = "order.cancel"
	useCaseOrderArchive   = "order.archive"
	useCaseOrderUnarchive = "order.unarchive"
	useCaseOrderDelete    = "order.delete"
	useCaseOrderRecover   = "order.recover_stock"
	useCaseOrderPayFailed = "order.payment_failed"
)

// maxWriteAttempts bounds the re-read rounds a contended order write gets.
const maxWriteAttempts = 5

var errUnchanged = errors.New("order: unchanged")

// Service owns the order state machine after placement: pricing, terminal
// transitions, compensation triggers and archival.
type Service struct {
	repo      domain.Repository
	publisher domoutbox.Publisher
	caches    Caches
	obs       *application.Observer
	now       func() time.Time
}

func NewService(repo domain.Repository, publisher domoutbox.Publisher, caches Caches, tel observability.Observability) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		caches:    caches,
		obs:       application.NewObserver(orderService, tel),
		now:       time.Now,
	}
}

// AcceptOrder copies the ledger's prices onto a PROCESSING order. A missing
// order/customer pair is NotFound; any other status is a guarded no-op, except
// that a CANCELED or FAILED order still holding no prices gets its freshly
// deducted stock handed back.
func (s *Service) AcceptOrder(ctx context.Context, evt domproduct.OrderAcceptedEvent) (err error) {
	ctx, call := s.obs.Begin(ctx, useCaseOrderAccept, "AcceptOrder",
		attribute.String("order.id", evt.OrderID),
	)
	defer func() { call.End(err) }()
	call.With(observability.F("order_id", evt.OrderID))

	if evt.OrderID == "" || len(evt.Lines) == 0 {
		call.Fail("EMPTY_ACCEPTANCE")
		return failure.Validation("order: accepted order carries no lines")
	}

	prices := make(map[string]decimal.Decimal, len(evt.Lines))
	for _, l := range evt.Lines {
		prices[l.ProductID] = l.Price
	}

	var compensate bool
	_, err = s.mutate(ctx, call, evt.OrderID, opPrice, func(o *domain.Order) error {
		compensate = false
		if o.CustomerID != evt.CustomerID {
			call.Fail("CUSTOMER_MISMATCH")
			return ErrNotFound
		}
		if o.Status != domain.StatusProcessing {
			compensate = (o.Status == domain.StatusCanceled || o.Status == domain.StatusFailed) && !o.Priced()
			return errUnchanged
		}
		if err := o.ApplyPrices(prices); err != nil {
			call.Fail("STATE_TRANSITION_FAILED")
			return err
		}
		return nil
	})
	switch {
	case errors.Is(err, errUnchanged) && compensate:
		call.Status("LATE_ACCEPT_COMPENSATED")
		recovered := domain.StockRecoveredEvent{OrderID: evt.OrderID, OccurredAt: s.now().UTC()}
		for _, l := range evt.Lines {
			recovered.Lines = append(recovered.Lines, domain.StockLine{ProductID: l.ProductID, Amount: l.Amount})
		}
		_ = call.Publish(s.publisher, recovered)
		return nil
	case errors.Is(err, errUnchanged):
		call.Ignore("NOT_PROCESSING")
		return nil
	}
	return err
}

// UpdateOrderStatus evicts the order's caches first, then applies the
// terminal status to every line and stamps the execution date.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, status domain.Status) (_ *domain.Order, err error) {
	ctx, call := s.obs.Begin(ctx, useCaseOrderStatus, "UpdateOrderStatus",
		attribute.String("order.id", orderID),
		attribute.String("order.target_status", string(status)),
	)
	defer func() { call.End(err) }()
	call.With(
		observability.F("order_id", orderID),
		observability.F("target_status", string(status)),
	)

	return s.transition(ctx, call, orderID, status)
}

func (s *Service) transition(ctx context.Context, call *application.Call, orderID string, status domain.Status) (*domain.Order, error) {
	t, ok := domain.TransitionFor(status)
	if !ok {
		call.Fail("STATUS_INVALID")
		return nil, failure.Validation("order: status is not a saga outcome")
	}

	o, err := s.mutate(ctx, call, orderID, opStatus, func(o *domain.Order) error {
		if err := o.Apply(t, s.now()); err != nil {
			call.Fail("STATE_TRANSITION_REJECTED")
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	call.Span().SetAttributes(attribute.String("order.status", string(o.Status)))
	return o, nil
}

// mutate reads the order, lets change check and apply the mutation, evicts
// what op touches and writes on the version it read. A concurrent writer
// forces a fresh read, so change always judges the state its write replaces.
// change returns errUnchanged to stop without writing.
func (s *Service) mutate(ctx context.Context, call *application.Call, orderID string, op operation, change func(o *domain.Order) error) (*domain.Order, error) {
	for attempt := 1; ; attempt++ {
		o, err := s.repo.Get(ctx, orderID)
		if err != nil {
			call.Fail("ORDER_LOOKUP_FAILED")
			return nil, wrapRepositoryError(err)
		}
		before := scopeOf(o)
		if err := change(o); err != nil {
			return nil, err
		}
		if err := s.caches.evict(ctx, s.obs, call, op, before); err != nil {
			call.Fail("CACHE_EVICT_FAILED")
			return nil, err
		}

		err = s.repo.Update(ctx, o)
		if err == nil {
			s.caches.evictCommitted(ctx, s.obs, call, op, before)
			return o, nil
		}
		if errors.Is(err, domain.ErrConflict) && attempt < maxWriteAttempts {
			call.Logger().Info("order_write_conflict",
				observability.F("operation", string(op)),
				observability.F("attempt", attempt),
			)
			continue
		}
		call.Fail("ORDER_UPDATE_FAILED")
		return nil, wrapRepositoryError(err)
	}
}

// RejectOrder fails an order the ledger refused. Nothing was deducted, so nothing is recovered.
func (s *Service) RejectOrder(ctx context.Context, orderID string) error {
	_, err := s.UpdateOrderStatus(ctx, orderID, domain.StatusFailed)
	return err
}

// CompleteOrder marks a paid order SUCCESSFUL.
func (s *Service) CompleteOrder(ctx context.Context, orderID string) error {
	_, err := s.UpdateOrderStatus(ctx, orderID, domain.StatusSuccessful)
	return err
}

// FailPayment marks the order FAILED and compensates the stock it holds.
func (s *Service) FailPayment(ctx context.Context, orderID string) (err error) {
	ctx, call := s.obs.Begin(ctx, useCaseOrderPayFailed, "FailPayment",
		attribute.String("order.id", orderID),
	)
	defer func() { call.End(err) }()
	call.With(observability.F("order_id", orderID))

	o, err := s.transition(ctx, call, orderID, domain.StatusFailed)
	if err != nil {
		return err
	}
	if o.Priced() {
		_ = call.Publish(s.publisher, domain.NewStockRecoveredEvent(o))
	}
	return nil
}

// CancelOrder is honoured only while the customer's order is PROCESSING.
// A late cancel gets InvalidState: too late, no action taken.
func (s *Service) CancelOrder(ctx context.Context, orderID, customerID string) (err error) {
	ctx, call := s.obs.Begin(ctx, useCaseOrderCancel, "CancelOrder",
		attribute.String("order.id", orderID),
	)
	defer func() { call.End(err) }()
	call.With(observability.F("order_id", orderID))

	o, err := s.mutate(ctx, call, orderID, opStatus, func(o *domain.Order) error {
		if o.CustomerID != customerID {
			call.Fail("CUSTOMER_MISMATCH")
			return ErrNotFound
		}
		if err := o.Apply(domain.TransitionCancel, s.now()); err != nil {
			call.Fail("NOT_PROCESSING")
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	if o.Priced() {
		_ = call.Publish(s.publisher, domain.NewStockRecoveredEvent(o))
	}
	_ = call.Publish(s.publisher, domain.NewCancelPaymentRequestedEvent(o))
	return nil
}

// RecoverStock republishes the order's current lines as a stock-recovered request.
func (s *Service) RecoverStock(ctx context.Context, orderID string) (err error) {
	ctx, call := s.obs.Begin(ctx, useCaseOrderRecover, "RecoverStock",
		attribute.String("order.id", orderID),
	)
	defer func() { call.End(err) }()
	call.With(observability.F("order_id", orderID))

	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		call.Fail("ORDER_LOOKUP_FAILED")
		return wrapRepositoryError(err)
	}
	if len(o.Lines) == 0 {
		call.Ignore("NO_LINES")
		return nil
	}
	return call.Publish(s.publisher, domain.NewStockRecoveredEvent(o))
}

// ArchiveOrder hides a settled order from the customer's active list.
func (s *Service) ArchiveOrder(ctx context.Context, orderID, customerID string) (err error) {
	ctx, call := s.obs.Begin(ctx, useCaseOrderArchive, "ArchiveOrder",
		attribute.String("order.id", orderID),
	)
	defer func() { call.End(err) }()
	call.With(observability.F("order_id", orderID))

	_, err = s.mutate(ctx, call, orderID, opArchive, func(o *domain.Order) error {
		if err := owned(call, o, customerID, false); err != nil {
			return err
		}
		if err := o.Archive(); err != nil {
			call.Fail("STATE_TRANSITION_REJECTED")
			return err
		}
		return nil
	})
	return err
}

func (s *Service) UnarchiveOrder(ctx context.Context, orderID, customerID string) (err error) {
	ctx, call := s.obs.Begin(ctx, useCaseOrderUnarchive, "UnarchiveOrder",
		attribute.String("order.id", orderID),
	)
	defer func() { call.End(err) }()
	call.With(observability.F("order_id", orderID))

	_, err = s.mutate(ctx, call, orderID, opUnarchive, func(o *domain.Order) error {
		if err := owned(call, o, customerID, true); err != nil {
			return err
		}
		if err := o.Unarchive(); err != nil {
			call.Fail("STATE_TRANSITION_REJECTED")
			return err
		}
		return nil
	})
	return err
}

// DeleteOrderByOrderID is an administrative removal of a settled order.
func (s *Service) DeleteOrderByOrderID(ctx context.Context, orderID string, role identity.Role) (err error) {
	ctx, call := s.obs.Begin(ctx, useCaseOrderDelete, "DeleteOrder",
		attribute.String("order.id", orderID),
	)
	defer func() { call.End(err) }()
	call.With(observability.F("order_id", orderID), observability.F("role", string(role)))

	if !role.IsAdmin() {
		call.Fail("ROLE_REJECTED")
		return domain.ErrUnauthorized
	}
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		call.Fail("ORDER_LOOKUP_FAILED")
		return wrapRepositoryError(err)
	}
	if err := o.CheckDelete(role); err != nil {
		call.Fail("STATE_TRANSITION_REJECTED")
		return err
	}
	if err := s.caches.evict(ctx, s.obs, call, opDelete, scopeOf(o)); err != nil {
		call.Fail("CACHE_EVICT_FAILED")
		return err
	}
	if err := s.repo.Delete(ctx, orderID); err != nil {
		call.Fail("ORDER_DELETE_FAILED")
		return wrapRepositoryError(err)
	}
	s.caches.evictCommitted(ctx, s.obs, call, opDelete, scopeOf(o))
	return nil
}

// owned checks the order belongs to the customer's archived or unarchived view.
func owned(call *application.Call, o *domain.Order, customerID string, archived bool) error {
	if o.CustomerID != customerID || o.Archived != archived {
		call.Fail("ORDER_NOT_IN_VIEW")
		return ErrNotFound
	}
	return nil
}
