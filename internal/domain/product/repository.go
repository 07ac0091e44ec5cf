package product

import "context"

type Repository interface {
	Get(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context) ([]*Product, error)
	ListByCategory(ctx context.Context, category Category) ([]*Product, error)
	Insert(ctx context.Context, p *Product) error
	// CompareAndSwap stores p only while the stored version still equals p.Version,
	// then advances p.Version. A stale version yields ErrConflict.
	CompareAndSwap(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
}
