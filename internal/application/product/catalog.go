package product

import (
	"context"

	"github.com/Zhima-Mochi/minishop-saga/internal/domain/cache"
	"github.com/Zhima-Mochi/minishop-saga/internal/domain/identity"
	domain "github.com/Zhima-Mochi/minishop-saga/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseProductAdd    = "product.add"
	useCaseProductUpdate = "product.update"
	useCaseProductDelete = "product.delete"
	useCaseProductQuery  = "product.query"
)

// ProductInput is the admin-editable part of a product.
type ProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	Amount      int
}

// Catalog serves admin edits and cached reads over the same ledger.
type Catalog struct {
	ledger *Ledger
	ids    IDGenerator
}

func NewCatalog(ledger *Ledger, ids IDGenerator) *Catalog {
	return &Catalog{ledger: ledger, ids: ids}
}

func (c *Catalog) AddProduct(ctx context.Context, role identity.Role, in ProductInput) (_ *domain.Product, err error) {
	l := c.ledger
	ctx, call := l.obs.Begin(ctx, useCaseProductAdd, "AddProduct")
	defer func() { call.End(err) }()

	if !role.IsAdmin() {
		call.Fail("ROLE_REJECTED")
		return nil, domain.ErrUnauthorized
	}
	category, err := domain.ParseCategory(in.Category)
	if err != nil {
		call.Fail("CATEGORY_INVALID")
		return nil, err
	}
	p, err := domain.New(c.ids.NewID(), in.Name, in.Description, in.Price, category, in.Amount)
	if err != nil {
		call.Fail("DOMAIN_CONSTRUCTION_FAILED")
		return nil, err
	}
	call.With(observability.F("product_id", p.ID))

	if err := l.repo.Insert(ctx, p); err != nil {
		call.Fail("REPO_INSERT_FAILED")
		return nil, wrapRepositoryError(err)
	}
	l.caches.evict(ctx, l.obs, call, opAdd, scopeOf(p))
	_ = call.Publish(l.publisher, domain.NewProductCreatedEvent(p))
	return p, nil
}

// UpdateProduct replaces the editable fields under the same CAS loop stock
// moves use, so an edit never overwrites a concurrent deduction.
func (c *Catalog) UpdateProduct(ctx context.Context, role identity.Role, id string, in ProductInput) (_ *domain.Product, err error) {
	l := c.ledger
	ctx, call := l.obs.Begin(ctx, useCaseProductUpdate, "UpdateProduct",
		attribute.String("product.id", id),
	)
	defer func() { call.End(err) }()
	call.With(observability.F("product_id", id))

	if !role.IsAdmin() {
		call.Fail("ROLE_REJECTED")
		return nil, domain.ErrUnauthorized
	}
	category, err := domain.ParseCategory(in.Category)
	if err != nil {
		call.Fail("CATEGORY_INVALID")
		return nil, err
	}

	var previous domain.Category
	p, err := l.adjust(ctx, call, id, func(p *domain.Product) error {
		previous = p.Category
		p.Name = in.Name
		p.Description = in.Description
		p.Price = in.Price
		p.Category = category
		p.Amount = in.Amount
		return p.Validate()
	})
	if err != nil {
		call.Fail("PRODUCT_UPDATE_FAILED")
		return nil, err
	}

	s := scopeOf(p)
	s.Previous = previous
	l.caches.evict(ctx, l.obs, call, opUpdate, s)
	_ = call.Publish(l.publisher, domain.NewProductUpdatedEvent(p))
	return p, nil
}

func (c *Catalog) DeleteProduct(ctx context.Context, role identity.Role, id string) (err error) {
	l := c.ledger
	ctx, call := l.obs.Begin(ctx, useCaseProductDelete, "DeleteProduct",
		attribute.String("product.id", id),
	)
	defer func() { call.End(err) }()
	call.With(observability.F("product_id", id))

	if !role.IsAdmin() {
		call.Fail("ROLE_REJECTED")
		return domain.ErrUnauthorized
	}
	p, err := l.repo.Get(ctx, id)
	if err != nil {
		call.Fail("PRODUCT_LOOKUP_FAILED")
		return wrapRepositoryError(err)
	}
	if err := l.repo.Delete(ctx, id); err != nil {
		call.Fail("PRODUCT_DELETE_FAILED")
		return wrapRepositoryError(err)
	}
	l.caches.evict(ctx, l.obs, call, opDelete, scopeOf(p))
	_ = call.Publish(l.publisher, domain.NewProductDeletedEvent(p))
	return nil
}

func (c *Catalog) Products(ctx context.Context) (_ []*domain.Product, err error) {
	l := c.ledger
	ctx, call := l.obs.Begin(ctx, useCaseProductQuery, "Products")
	defer func() { call.End(err) }()

	return l.caches.All.Load(ctx, cache.AllKey, func(ctx context.Context) ([]*domain.Product, error) {
		products, err := l.repo.List(ctx)
		if err != nil {
			return nil, wrapRepositoryError(err)
		}
		if len(products) == 0 {
			return nil, ErrNotFound
		}
		return products, nil
	})
}

func (c *Catalog) Product(ctx context.Context, id string) (_ *domain.Product, err error) {
	l := c.ledger
	ctx, call := l.obs.Begin(ctx, useCaseProductQuery, "Product",
		attribute.String("product.id", id),
	)
	defer func() { call.End(err) }()

	return l.product(ctx, id)
}

// ProductsByCategory parses category case-insensitively; an unknown one is NotFound.
func (c *Catalog) ProductsByCategory(ctx context.Context, category string) (_ []*domain.Product, err error) {
	l := c.ledger
	ctx, call := l.obs.Begin(ctx, useCaseProductQuery, "ProductsByCategory",
		attribute.String("product.category", category),
	)
	defer func() { call.End(err) }()

	cat, err := domain.ParseCategory(category)
	if err != nil {
		return nil, err
	}
	return l.caches.ByCategory.Load(ctx, string(cat), func(ctx context.Context) ([]*domain.Product, error) {
		products, err := l.repo.ListByCategory(ctx, cat)
		if err != nil {
			return nil, wrapRepositoryError(err)
		}
		if len(products) == 0 {
			return nil, ErrNotFound
		}
		return products, nil
	})
}

func (c *Catalog) Price(ctx context.Context, id string) (_ decimal.Decimal, err error) {
	l := c.ledger
	ctx, call := l.obs.Begin(ctx, useCaseProductQuery, "Price",
		attribute.String("product.id", id),
	)
	defer func() { call.End(err) }()

	return l.caches.Price.Load(ctx, id, func(ctx context.Context) (decimal.Decimal, error) {
		p, err := l.repo.Get(ctx, id)
		if err != nil {
			return decimal.Zero, wrapRepositoryError(err)
		}
		return p.Price, nil
	})
}

func (c *Catalog) Name(ctx context.Context, id string) (_ string, err error) {
	l := c.ledger
	ctx, call := l.obs.Begin(ctx, useCaseProductQuery, "Name",
		attribute.String("product.id", id),
	)
	defer func() { call.End(err) }()

	return l.caches.Name.Load(ctx, id, func(ctx context.Context) (string, error) {
		p, err := l.repo.Get(ctx, id)
		if err != nil {
			return "", wrapRepositoryError(err)
		}
		return p.Name, nil
	})
}
