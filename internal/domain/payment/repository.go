package payment

import "context"

type Repository interface {
	Get(ctx context.Context, orderID string) (*Request, error)
	// Insert fails with ErrAlreadyExists when a request for the order is stored.
	Insert(ctx context.Context, r *Request) error
	// Update stores r only while the stored status still equals from. A
	// request that moved on in between yields ErrConflict.
	Update(ctx context.Context, r *Request, from Status) error
}
