package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/Zhima-Mochi/minishop-saga/internal/domain/payment"
)

type PaymentRepository struct {
	mu       sync.RWMutex
	requests map[string]*domain.Request
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{requests: make(map[string]*domain.Request)}
}

func (r *PaymentRepository) Get(ctx context.Context, orderID string) (*domain.Request, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	req, ok := r.requests[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return req.Clone(), nil
}

func (r *PaymentRepository) Insert(ctx context.Context, req *domain.Request) error {
	_ = ctx
	if req == nil || req.OrderID == "" {
		return fmt.Errorf("payment repository: order id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.requests[req.OrderID]; exists {
		return domain.ErrAlreadyExists
	}
	r.requests[req.OrderID] = req.Clone()
	return nil
}

// Update stores req only while the stored status is still from.
func (r *PaymentRepository) Update(ctx context.Context, req *domain.Request, from domain.Status) error {
	_ = ctx
	if req == nil || req.OrderID == "" {
		return fmt.Errorf("payment repository: order id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.requests[req.OrderID]
	if !exists {
		return domain.ErrNotFound
	}
	if stored.Status != from {
		return domain.ErrConflict
	}
	r.requests[req.OrderID] = req.Clone()
	return nil
}
