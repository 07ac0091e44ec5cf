package order

import (
	"context"

	"github.com/Zhima-Mochi/minishop-saga/internal/domain/cache"
	"github.com/Zhima-Mochi/minishop-saga/internal/domain/identity"
	domain "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"

	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseOrderQuery = "order.query"
)

// Orders lists every order for an administrator.
func (s *Service) Orders(ctx context.Context, role identity.Role) (_ []*domain.Order, err error) {
	ctx, call := s.obs.Begin(ctx, useCaseOrderQuery, "Orders")
	defer func() { call.End(err) }()

	if !role.IsAdmin() {
		call.Fail("ROLE_REJECTED")
		return nil, domain.ErrUnauthorized
	}
	return s.caches.AdminAll.Load(ctx, cache.AllKey, func(ctx context.Context) ([]*domain.Order, error) {
		orders, err := s.repo.List(ctx)
		if err != nil {
			return nil, wrapRepositoryError(err)
		}
		return orders, nil
	})
}

// UnarchivedOrders lists the customer's active orders.
func (s *Service) UnarchivedOrders(ctx context.Context, customerID string) ([]*domain.Order, error) {
	return s.customerOrders(ctx, customerID, false)
}

func (s *Service) ArchivedOrders(ctx context.Context, customerID string) ([]*domain.Order, error) {
	return s.customerOrders(ctx, customerID, true)
}

// UnarchivedOrder returns one active order owned by customerID.
func (s *Service) UnarchivedOrder(ctx context.Context, orderID, customerID string) (*domain.Order, error) {
	return s.customerOrder(ctx, orderID, customerID, false)
}

func (s *Service) ArchivedOrder(ctx context.Context, orderID, customerID string) (*domain.Order, error) {
	return s.customerOrder(ctx, orderID, customerID, true)
}

func (s *Service) customerOrders(ctx context.Context, customerID string, archived bool) (_ []*domain.Order, err error) {
	ctx, call := s.obs.Begin(ctx, useCaseOrderQuery, "CustomerOrders",
		attribute.Bool("order.archived", archived),
	)
	defer func() { call.End(err) }()

	h := s.caches.Unarchived
	if archived {
		h = s.caches.Archived
	}
	// An empty result is NotFound and therefore never cached.
	return h.Load(ctx, customerID, func(ctx context.Context) ([]*domain.Order, error) {
		orders, err := s.repo.FindByCustomer(ctx, customerID, archived)
		if err != nil {
			return nil, wrapRepositoryError(err)
		}
		if len(orders) == 0 {
			return nil, ErrNotFound
		}
		return orders, nil
	})
}

func (s *Service) customerOrder(ctx context.Context, orderID, customerID string, archived bool) (_ *domain.Order, err error) {
	ctx, call := s.obs.Begin(ctx, useCaseOrderQuery, "CustomerOrder",
		attribute.String("order.id", orderID),
		attribute.Bool("order.archived", archived),
	)
	defer func() { call.End(err) }()

	h := s.caches.Unarchived
	if archived {
		h = s.caches.Archived
	}
	orders, err := h.Load(ctx, orderKey(orderID, customerID), func(ctx context.Context) ([]*domain.Order, error) {
		o, err := s.repo.Get(ctx, orderID)
		if err != nil {
			return nil, wrapRepositoryError(err)
		}
		if o.CustomerID != customerID || o.Archived != archived {
			return nil, ErrNotFound
		}
		return []*domain.Order{o}, nil
	})
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ErrNotFound
	}
	return orders[0], nil
}
