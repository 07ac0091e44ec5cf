package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-saga/internal/application"
	"github.com/Zhima-Mochi/minishop-saga/internal/domain/failure"
	domoutbox "github.com/Zhima-Mochi/minishop-saga/internal/domain/outbox"
	domain "github.com/Zhima-Mochi/minishop-saga/internal/domain/payment"
	domproduct "github.com/Zhima-Mochi/minishop-saga/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	paymentService       = "payment-service"
	useCasePaymentCreate = "payment.process_order_creation"
	gatewayPeer          = "gateway"
)

var ErrRepository = fmt.Errorf("payment: repository failure: %w", failure.ErrUpstreamUnavailable)

type ProcessOrderCreationResult struct {
	SessionID   string
	CheckoutURL string
	// Skipped is set when a request already existed for the order.
	Skipped bool
}

// ProcessOrderCreationUseCase opens one gateway checkout session per accepted order.
type ProcessOrderCreationUseCase struct {
	repo      domain.Repository
	gateway   domain.Gateway
	publisher domoutbox.Publisher
	obs       *application.Observer
}

func NewProcessOrderCreationUseCase(repo domain.Repository, gateway domain.Gateway, publisher domoutbox.Publisher, tel observability.Observability) *ProcessOrderCreationUseCase {
	return &ProcessOrderCreationUseCase{
		repo:      repo,
		gateway:   gateway,
		publisher: publisher,
		obs:       application.NewObserver(paymentService, tel),
	}
}

// Execute is a no-op when a request (or a cancel tombstone) already exists, so
// a replayed accepted-order never opens a second session.
func (uc *ProcessOrderCreationUseCase) Execute(ctx context.Context, evt domproduct.OrderAcceptedEvent) (_ *ProcessOrderCreationResult, err error) {
	ctx, call := uc.obs.Begin(ctx, useCasePaymentCreate, "ProcessOrderCreation",
		attribute.String("order.id", evt.OrderID),
		attribute.Int("order.lines", len(evt.Lines)),
	)
	defer func() { call.End(err) }()
	call.With(observability.F("order_id", evt.OrderID))

	if len(evt.Lines) == 0 {
		call.Fail("EMPTY_ORDER")
		return nil, domain.ErrEmptyOrder
	}

	existing, err := uc.repo.Get(ctx, evt.OrderID)
	switch {
	case err == nil:
		call.Ignore("REQUEST_EXISTS")
		call.With(observability.F("payment_status", string(existing.Status)))
		return &ProcessOrderCreationResult{SessionID: existing.SessionID, Skipped: true}, nil
	case !errors.Is(err, failure.ErrNotFound):
		call.Fail("REQUEST_LOOKUP_FAILED")
		return nil, wrapRepositoryError(err)
	}

	items := make([]domain.LineItem, 0, len(evt.Lines))
	orderLines := make([]domain.OrderLine, 0, len(evt.Lines))
	total := decimal.Zero
	for _, l := range evt.Lines {
		items = append(items, domain.LineItem{
			Name:       l.ProductName,
			Quantity:   l.Amount,
			UnitAmount: domain.ToMinorUnits(l.Price),
		})
		orderLines = append(orderLines, domain.OrderLine{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Amount:      l.Amount,
			Price:       l.Price,
		})
		total = total.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Amount))))
	}

	session, err := uc.openSession(ctx, evt.OrderID, items)
	if err != nil {
		call.Fail("GATEWAY_SESSION_FAILED")
		return nil, err
	}

	req := domain.NewRequest(evt.OrderID, evt.CustomerID, session.ID)
	if err := uc.repo.Insert(ctx, req); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Lost a race with a concurrent delivery; its session is the live one.
			_ = uc.gateway.Expire(ctx, session.ID)
			call.Ignore("REQUEST_EXISTS")
			return &ProcessOrderCreationResult{Skipped: true}, nil
		}
		call.Fail("REPO_INSERT_FAILED")
		return nil, wrapRepositoryError(err)
	}

	_ = call.Publish(uc.publisher, domain.PaymentCreatedEvent{
		CustomerID:  evt.CustomerID,
		OrderID:     evt.OrderID,
		Lines:       orderLines,
		Total:       total,
		CheckoutURL: session.URL,
		OccurredAt:  req.CreatedAt,
	})
	call.Span().SetAttributes(attribute.String("payment.session_id", session.ID))
	return &ProcessOrderCreationResult{SessionID: session.ID, CheckoutURL: session.URL}, nil
}

func (uc *ProcessOrderCreationUseCase) openSession(ctx context.Context, orderID string, items []domain.LineItem) (*domain.Session, error) {
	var session *domain.Session
	err := uc.obs.External(ctx, gatewayPeer, "create_session", func(ctx context.Context) error {
		var err error
		session, err = uc.gateway.CreateSession(ctx, orderID, items)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrGateway, err)
	}
	if session == nil {
		return nil, domain.ErrNoSession
	}
	return session, nil
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
