package product

import (
	"context"
	"errors"
	"time"

	"github.com/Zhima-Mochi/minishop-saga/internal/application"
	"github.com/Zhima-Mochi/minishop-saga/internal/domain/failure"
	domorder "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"
	domain "github.com/Zhima-Mochi/minishop-saga/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const useCaseCheckOrder = "product.check_order"

// CheckResult exposes the outcome of one check-order attempt.
type CheckResult struct {
	Accepted    bool
	Lines       []domain.PricedLine
	Unavailable []string
}

// CheckOrderUseCase prices and deducts an order as a whole, or rejects it as a whole.
type CheckOrderUseCase struct {
	ledger *Ledger
	now    func() time.Time
}

func NewCheckOrderUseCase(ledger *Ledger) *CheckOrderUseCase {
	return &CheckOrderUseCase{ledger: ledger, now: time.Now}
}

type deducted struct {
	product *domain.Product
	amount  int
}

// Execute validates every line before touching stock. If a line loses a race
// after validation, the lines already taken are credited back and the order
// is rejected, so the net effect of a rejection is always zero.
func (uc *CheckOrderUseCase) Execute(ctx context.Context, evt domorder.CheckOrderEvent) (_ *CheckResult, err error) {
	l := uc.ledger
	ctx, call := l.obs.Begin(ctx, useCaseCheckOrder, "CheckOrder",
		attribute.String("order.id", evt.OrderID),
		attribute.Int("order.lines", len(evt.Lines)),
	)
	defer func() { call.End(err) }()
	call.With(observability.F("order_id", evt.OrderID))

	if len(evt.Lines) == 0 {
		call.Fail("EMPTY_ORDER")
		return nil, ErrNotFound
	}

	unavailable, err := uc.validate(ctx, evt.Lines)
	if err != nil {
		call.Fail("STOCK_LOOKUP_FAILED")
		return nil, err
	}
	if len(unavailable) > 0 {
		return uc.reject(call, evt, unavailable), nil
	}

	taken := make([]deducted, 0, len(evt.Lines))
	for _, line := range evt.Lines {
		p, err := l.deduct(ctx, call, line.ProductID, line.Amount)
		if err == nil {
			taken = append(taken, deducted{product: p, amount: line.Amount})
			continue
		}
		if rbErr := uc.revert(ctx, call, taken); rbErr != nil {
			call.Fail("STOCK_REVERT_FAILED")
			return nil, errors.Join(err, rbErr)
		}
		if errors.Is(err, domain.ErrInsufficientStock) || errors.Is(err, failure.ErrNotFound) {
			call.Logger().Warn("stock_race_lost",
				observability.F("product_id", line.ProductID),
				observability.F("amount", line.Amount),
			)
			return uc.reject(call, evt, []string{lineName(line)}), nil
		}
		call.Fail("STOCK_DEDUCT_FAILED")
		return nil, err
	}

	result := &CheckResult{Accepted: true}
	deductedLines := make([]domain.StockLine, 0, len(taken))
	for i, t := range taken {
		result.Lines = append(result.Lines, domain.PricedLine{
			ProductID:   t.product.ID,
			ProductName: nameOr(evt.Lines[i].ProductName, t.product.Name),
			Amount:      t.amount,
			Price:       t.product.Price,
		})
		deductedLines = append(deductedLines, domain.StockLine{ProductID: t.product.ID, Amount: t.amount})
		_ = call.Publish(l.publisher, domain.NewProductUpdatedEvent(t.product))
	}

	now := uc.now().UTC()
	_ = call.Publish(l.publisher, domain.OrderAcceptedEvent{
		OrderID:    evt.OrderID,
		CustomerID: evt.CustomerID,
		Lines:      result.Lines,
		OccurredAt: now,
	})
	_ = call.Publish(l.publisher, domain.StockDeductedEvent{
		OrderID:    evt.OrderID,
		Lines:      deductedLines,
		OccurredAt: now,
	})
	call.Status("ACCEPTED")
	call.Span().SetAttributes(attribute.Bool("order.accepted", true))
	return result, nil
}

// validate returns the names of every line that cannot be served right now.
func (uc *CheckOrderUseCase) validate(ctx context.Context, lines []domorder.CartLine) ([]string, error) {
	var unavailable []string
	for _, line := range lines {
		p, err := uc.ledger.repo.Get(ctx, line.ProductID)
		if errors.Is(err, failure.ErrNotFound) {
			unavailable = append(unavailable, lineName(line))
			continue
		}
		if err != nil {
			return nil, wrapRepositoryError(err)
		}
		if !p.Available(line.Amount) {
			unavailable = append(unavailable, nameOr(line.ProductName, p.Name))
		}
	}
	return unavailable, nil
}

// revert credits back lines taken earlier in the same check.
func (uc *CheckOrderUseCase) revert(ctx context.Context, call *application.Call, taken []deducted) error {
	var errs []error
	for _, t := range taken {
		if _, err := uc.ledger.credit(ctx, call, t.product.ID, t.amount); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (uc *CheckOrderUseCase) reject(call *application.Call, evt domorder.CheckOrderEvent, unavailable []string) *CheckResult {
	call.Status("REJECTED")
	call.With(observability.F("unavailable", unavailable))
	call.Span().SetAttributes(attribute.Bool("order.accepted", false))
	_ = call.Publish(uc.ledger.publisher, domain.OrderRejectedEvent{
		OrderID:     evt.OrderID,
		CustomerID:  evt.CustomerID,
		Unavailable: unavailable,
		OccurredAt:  uc.now().UTC(),
	})
	return &CheckResult{Unavailable: unavailable}
}

func lineName(line domorder.CartLine) string {
	return nameOr(line.ProductName, line.ProductID)
}

func nameOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}
