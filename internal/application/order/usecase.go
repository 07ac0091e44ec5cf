package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-saga/internal/application"
	"github.com/Zhima-Mochi/minishop-saga/internal/domain/failure"
	domain "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-saga/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	orderService      = "order-service"
	useCaseOrderPlace = "order.place"
)

var (
	ErrNotFound   = domain.ErrNotFound
	ErrRepository = fmt.Errorf("order: repository failure: %w", failure.ErrUpstreamUnavailable)
)

// PlaceOrderUseCase turns a checked-out cart into a PROCESSING order and asks the ledger to price it.
type PlaceOrderUseCase struct {
	repo        domain.Repository
	idGenerator IDGenerator
	publisher   domoutbox.Publisher
	caches      Caches
	obs         *application.Observer
	now         func() time.Time
}

func NewPlaceOrderUseCase(
	repo domain.Repository,
	idGen IDGenerator,
	publisher domoutbox.Publisher,
	caches Caches,
	tel observability.Observability,
) *PlaceOrderUseCase {
	return &PlaceOrderUseCase{
		repo:        repo,
		idGenerator: idGen,
		publisher:   publisher,
		caches:      caches,
		obs:         application.NewObserver(orderService, tel),
		now:         time.Now,
	}
}

type PlaceOrderInput struct {
	CustomerID string
	Lines      []domain.CartLine
}

type PlaceOrderResult struct {
	OrderID string
	Status  domain.Status
}

// Execute persists the order, then publishes check-order. No stock is touched here.
func (uc *PlaceOrderUseCase) Execute(ctx context.Context, cmd PlaceOrderInput) (_ *PlaceOrderResult, err error) {
	ctx, call := uc.obs.Begin(ctx, useCaseOrderPlace, "PlaceOrder",
		attribute.String("order.customer_id", cmd.CustomerID),
		attribute.Int("order.lines", len(cmd.Lines)),
	)
	defer func() { call.End(err) }()

	if err := ctx.Err(); err != nil {
		call.Fail("CONTEXT_CANCELED")
		return nil, err
	}

	orderID := uc.idGenerator.NewID()
	entity, err := domain.New(orderID, cmd.CustomerID, cmd.Lines, uc.now())
	if err != nil {
		call.Fail("DOMAIN_CONSTRUCTION_FAILED")
		return nil, err
	}
	call.With(observability.F("order_id", orderID))

	if err := uc.caches.evict(ctx, uc.obs, call, opPlace, scopeOf(entity)); err != nil {
		call.Fail("CACHE_EVICT_FAILED")
		return nil, err
	}
	if err := uc.repo.Insert(ctx, entity); err != nil {
		call.Fail("REPO_INSERT_FAILED")
		return nil, wrapRepositoryError(err)
	}
	uc.caches.evictCommitted(ctx, uc.obs, call, opPlace, scopeOf(entity))

	_ = call.Publish(uc.publisher, domain.NewCheckOrderEvent(entity))

	call.Span().SetAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.status", string(entity.Status)),
	)
	return &PlaceOrderResult{OrderID: entity.ID, Status: entity.Status}, nil
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, failure.ErrNotFound),
		errors.Is(err, failure.ErrConflict),
		errors.Is(err, failure.ErrInvalidState),
		errors.Is(err, failure.ErrValidation):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}
