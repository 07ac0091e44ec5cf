package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-saga/internal/application"
	"github.com/Zhima-Mochi/minishop-saga/internal/domain/failure"
	domorder "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-saga/internal/domain/outbox"
	domain "github.com/Zhima-Mochi/minishop-saga/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	productService        = "product-service"
	useCaseStockAvailable = "product.is_available"
	useCaseStockRecover   = "product.recover_stock"
	defaultMaxCASRetries  = 5
)

var (
	ErrNotFound   = domain.ErrNotFound
	ErrRepository = fmt.Errorf("product: repository failure: %w", failure.ErrUpstreamUnavailable)
	// ErrContended is returned once every CAS retry for one product has lost.
	ErrContended = fmt.Errorf("product: stock contention: %w", failure.ErrUpstreamUnavailable)
)

// Ledger owns every stock movement. Each deduct or recover is one
// version-checked read-modify-write, retried on Conflict.
type Ledger struct {
	repo       domain.Repository
	publisher  domoutbox.Publisher
	caches     Caches
	obs        *application.Observer
	maxRetries int
}

func NewLedger(repo domain.Repository, publisher domoutbox.Publisher, caches Caches, maxRetries int, tel observability.Observability) *Ledger {
	if maxRetries <= 0 {
		maxRetries = defaultMaxCASRetries
	}
	return &Ledger{
		repo:       repo,
		publisher:  publisher,
		caches:     caches,
		obs:        application.NewObserver(productService, tel),
		maxRetries: maxRetries,
	}
}

// IsAvailable reports whether amount units of the product are in stock.
func (l *Ledger) IsAvailable(ctx context.Context, productID string, amount int) (_ bool, err error) {
	ctx, call := l.obs.Begin(ctx, useCaseStockAvailable, "IsAvailable",
		attribute.String("product.id", productID),
		attribute.Int("product.amount", amount),
	)
	defer func() { call.End(err) }()

	p, err := l.product(ctx, productID)
	if err != nil {
		return false, err
	}
	return p.Available(amount), nil
}

// product reads one product through the by-id cache.
func (l *Ledger) product(ctx context.Context, productID string) (*domain.Product, error) {
	return l.caches.ByID.Load(ctx, productID, func(ctx context.Context) (*domain.Product, error) {
		p, err := l.repo.Get(ctx, productID)
		if err != nil {
			return nil, wrapRepositoryError(err)
		}
		return p, nil
	})
}

// adjust applies mutate to a fresh read of the product and stores it with
// CompareAndSwap. A lost race re-reads and tries again up to maxRetries times.
func (l *Ledger) adjust(ctx context.Context, call *application.Call, productID string, mutate func(*domain.Product) error) (*domain.Product, error) {
	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := l.repo.Get(ctx, productID)
		if err != nil {
			return nil, wrapRepositoryError(err)
		}
		if err := mutate(p); err != nil {
			return nil, err
		}
		err = l.repo.CompareAndSwap(ctx, p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, failure.ErrConflict) {
			return nil, wrapRepositoryError(err)
		}
		l.obs.Conflict(productID)
		call.Logger().Debug("stock_cas_conflict",
			observability.F("product_id", productID),
			observability.F("attempt", attempt+1),
		)
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrContended, productID, l.maxRetries+1)
}

func (l *Ledger) deduct(ctx context.Context, call *application.Call, productID string, amount int) (*domain.Product, error) {
	p, err := l.adjust(ctx, call, productID, func(p *domain.Product) error { return p.Deduct(amount) })
	if err != nil {
		return nil, err
	}
	l.caches.evict(ctx, l.obs, call, opStock, scopeOf(p))
	return p, nil
}

func (l *Ledger) credit(ctx context.Context, call *application.Call, productID string, amount int) (*domain.Product, error) {
	p, err := l.adjust(ctx, call, productID, func(p *domain.Product) error { return p.Recover(amount) })
	if err != nil {
		return nil, err
	}
	l.caches.evict(ctx, l.obs, call, opStock, scopeOf(p))
	return p, nil
}

// RecoverStock credits an order's lines back. Products deleted since the
// deduction are skipped.
func (l *Ledger) RecoverStock(ctx context.Context, evt domorder.StockRecoveredEvent) (err error) {
	ctx, call := l.obs.Begin(ctx, useCaseStockRecover, "RecoverStock",
		attribute.String("order.id", evt.OrderID),
		attribute.Int("order.lines", len(evt.Lines)),
	)
	defer func() { call.End(err) }()
	call.With(observability.F("order_id", evt.OrderID))

	skipped := 0
	for _, line := range evt.Lines {
		p, err := l.credit(ctx, call, line.ProductID, line.Amount)
		if errors.Is(err, failure.ErrNotFound) {
			skipped++
			call.Logger().Info("recover_skipped",
				observability.F("product_id", line.ProductID),
				observability.F("amount", line.Amount),
			)
			continue
		}
		if err != nil {
			call.Fail("STOCK_RECOVER_FAILED")
			return err
		}
		_ = call.Publish(l.publisher, domain.NewProductUpdatedEvent(p))
	}
	if skipped > 0 {
		call.With(observability.F("skipped", skipped))
	}
	return nil
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
