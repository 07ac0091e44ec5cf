package payment

import (
	"context"
	"errors"

	"github.com/Zhima-Mochi/minishop-saga/internal/application"
	"github.com/Zhima-Mochi/minishop-saga/internal/domain/failure"
	domoutbox "github.com/Zhima-Mochi/minishop-saga/internal/domain/outbox"
	domain "github.com/Zhima-Mochi/minishop-saga/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	useCasePaymentCallback = "payment.gateway_callback"
	useCasePaymentCancel   = "payment.cancel"
)

// Service merges gateway outcomes into stored requests.
type Service struct {
	repo      domain.Repository
	gateway   domain.Gateway
	publisher domoutbox.Publisher
	obs       *application.Observer
}

func NewService(repo domain.Repository, gateway domain.Gateway, publisher domoutbox.Publisher, tel observability.Observability) *Service {
	return &Service{
		repo:      repo,
		gateway:   gateway,
		publisher: publisher,
		obs:       application.NewObserver(paymentService, tel),
	}
}

// HandleGatewayEvent maps a webhook event type and merges it.
func (s *Service) HandleGatewayEvent(ctx context.Context, orderID, eventType string) error {
	status, err := domain.StatusFromGatewayEvent(eventType)
	if err != nil {
		return err
	}
	_, err = s.OnGatewayCallback(ctx, orderID, status)
	return err
}

// OnGatewayCallback is an idempotent merge: unknown orders, settled requests
// and repeated statuses change nothing. It reports whether the request moved.
func (s *Service) OnGatewayCallback(ctx context.Context, orderID string, status domain.Status) (_ bool, err error) {
	ctx, call := s.obs.Begin(ctx, useCasePaymentCallback, "GatewayCallback",
		attribute.String("order.id", orderID),
		attribute.String("payment.status", string(status)),
	)
	defer func() { call.End(err) }()
	call.With(
		observability.F("order_id", orderID),
		observability.F("payment_status", string(status)),
	)

	req, err := s.repo.Get(ctx, orderID)
	if errors.Is(err, failure.ErrNotFound) {
		call.Ignore("REQUEST_UNKNOWN")
		return false, nil
	}
	if err != nil {
		call.Fail("REQUEST_LOOKUP_FAILED")
		return false, wrapRepositoryError(err)
	}
	from := req.Status
	if !req.Merge(status) {
		call.Ignore("ALREADY_MERGED")
		return false, nil
	}
	if err := s.repo.Update(ctx, req, from); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// A concurrent callback settled it first and published the outcome.
			call.Ignore("ALREADY_MERGED")
			return false, nil
		}
		call.Fail("REQUEST_UPDATE_FAILED")
		return false, wrapRepositoryError(err)
	}
	_ = call.Publish(s.publisher, domain.NewStatusEvent(req))
	return true, nil
}

// CancelPayment expires the order's session and records CANCELED. With no
// request yet it stores a tombstone so a late accepted-order opens nothing.
func (s *Service) CancelPayment(ctx context.Context, orderID, customerID string) (err error) {
	ctx, call := s.obs.Begin(ctx, useCasePaymentCancel, "CancelPayment",
		attribute.String("order.id", orderID),
	)
	defer func() { call.End(err) }()
	call.With(observability.F("order_id", orderID))

	req, err := s.repo.Get(ctx, orderID)
	if errors.Is(err, failure.ErrNotFound) {
		tomb := domain.NewRequest(orderID, customerID, "")
		tomb.Cancel()
		if err := s.repo.Insert(ctx, tomb); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				// A session opened in between; cancel that one on redelivery.
				call.Fail("REQUEST_RACE")
				return err
			}
			call.Fail("REPO_INSERT_FAILED")
			return wrapRepositoryError(err)
		}
		call.Status("TOMBSTONED")
		_ = call.Publish(s.publisher, domain.NewStatusEvent(tomb))
		return nil
	}
	if err != nil {
		call.Fail("REQUEST_LOOKUP_FAILED")
		return wrapRepositoryError(err)
	}
	if req.Status.Terminal() {
		call.Ignore("ALREADY_SETTLED")
		call.With(observability.F("payment_status", string(req.Status)))
		return nil
	}

	if req.SessionID != "" {
		err := s.obs.External(ctx, gatewayPeer, "expire_session", func(ctx context.Context) error {
			return s.gateway.Expire(ctx, req.SessionID)
		})
		if err != nil {
			call.Fail("GATEWAY_EXPIRE_FAILED")
			return errors.Join(domain.ErrGateway, err)
		}
	}
	from := req.Status
	req.Cancel()
	if err := s.repo.Update(ctx, req, from); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			call.Ignore("ALREADY_SETTLED")
			return nil
		}
		call.Fail("REQUEST_UPDATE_FAILED")
		return wrapRepositoryError(err)
	}
	_ = call.Publish(s.publisher, domain.NewStatusEvent(req))
	return nil
}

// Request returns the stored request for an order.
func (s *Service) Request(ctx context.Context, orderID string) (*domain.Request, error) {
	req, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	return req, nil
}
