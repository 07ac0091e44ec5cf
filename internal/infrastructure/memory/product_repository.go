package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	domain "github.com/Zhima-Mochi/minishop-saga/internal/domain/product"
)

// ProductRepository keeps one versioned record per product.
type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
}

func NewProductRepository(seed ...*domain.Product) *ProductRepository {
	r := &ProductRepository{products: make(map[string]*domain.Product, len(seed))}
	for _, p := range seed {
		r.products[p.ID] = p.Clone()
	}
	return r
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *ProductRepository) List(ctx context.Context) ([]*domain.Product, error) {
	return r.filter(ctx, func(*domain.Product) bool { return true })
}

func (r *ProductRepository) ListByCategory(ctx context.Context, category domain.Category) ([]*domain.Product, error) {
	return r.filter(ctx, func(p *domain.Product) bool { return p.Category == category })
}

func (r *ProductRepository) filter(ctx context.Context, keep func(*domain.Product) bool) ([]*domain.Product, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Product
	for _, p := range r.products {
		if keep(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *ProductRepository) Insert(ctx context.Context, p *domain.Product) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("product repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.products[p.ID]; exists {
		return fmt.Errorf("product repository: %s exists: %w", p.ID, domain.ErrConflict)
	}
	p.Version = 1
	r.products[p.ID] = p.Clone()
	return nil
}

// CompareAndSwap stores p only while the stored version equals p.Version.
func (r *ProductRepository) CompareAndSwap(ctx context.Context, p *domain.Product) error {
	_ = ctx
	if p == nil {
		return fmt.Errorf("product repository: product is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.products[p.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != p.Version {
		return domain.ErrConflict
	}
	if p.Amount < 0 {
		return domain.ErrNegativeStock
	}
	p.Version++
	r.products[p.ID] = p.Clone()
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.products, id)
	return nil
}
