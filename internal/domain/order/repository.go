package order

import "context"

// Repository persists orders. Update must write status, archival and prices
// for every line of the order in one atomic step.
type Repository interface {
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	FindByCustomer(ctx context.Context, customerID string, archived bool) ([]*Order, error)
	List(ctx context.Context) ([]*Order, error)
	// Update stores order only while the stored version still equals
	// order.Version, then advances order.Version. A stale version yields
	// ErrConflict.
	Update(ctx context.Context, order *Order) error
	Delete(ctx context.Context, id string) error
}
