package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-saga/internal/domain/failure"
	domain "github.com/Zhima-Mochi/minishop-saga/internal/domain/payment"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Get(ctx context.Context, orderID string) (*domain.Request, error) {
	var (
		req    domain.Request
		status string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT order_id, customer_id, session_id, status, created_at, updated_at
		 FROM payment_requests WHERE order_id = $1`, orderID,
	).Scan(&req.OrderID, &req.CustomerID, &req.SessionID, &status, &req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get payment %s: %w", orderID, err)
	}
	req.Status = domain.Status(status)
	return &req, nil
}

func (r *PaymentRepository) Insert(ctx context.Context, req *domain.Request) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_requests (order_id, customer_id, session_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		req.OrderID, req.CustomerID, req.SessionID, string(req.Status), req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		err = mapError(err)
		if errors.Is(err, failure.ErrConflict) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert payment %s: %w", req.OrderID, err)
	}
	return nil
}

// Update writes req only while the row still carries status from.
func (r *PaymentRepository) Update(ctx context.Context, req *domain.Request, from domain.Status) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payment_requests SET session_id = $1, status = $2, updated_at = $3
		 WHERE order_id = $4 AND status = $5`,
		req.SessionID, string(req.Status), req.UpdatedAt, req.OrderID, string(from),
	)
	if err != nil {
		return fmt.Errorf("postgres: update payment %s: %w", req.OrderID, mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: update payment %s: %w", req.OrderID, err)
	}
	if n == 1 {
		return nil
	}

	var status string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM payment_requests WHERE order_id = $1`, req.OrderID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres: check payment %s: %w", req.OrderID, err)
	}
	return domain.ErrConflict
}
