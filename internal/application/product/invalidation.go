package product

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/minishop-saga/internal/application"
	"github.com/Zhima-Mochi/minishop-saga/internal/domain/cache"
	domain "github.com/Zhima-Mochi/minishop-saga/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"

	"github.com/shopspring/decimal"
)

// Caches are the product service's keyspaces.
type Caches struct {
	store      cache.Store
	ByID       *cache.Handle[*domain.Product]
	ByCategory *cache.Handle[[]*domain.Product]
	Price      *cache.Handle[decimal.Decimal]
	Name       *cache.Handle[string]
	All        *cache.Handle[[]*domain.Product]
}

func NewCaches(store cache.Store, ttl time.Duration) Caches {
	return Caches{
		store:      store,
		ByID:       cache.NewHandle[*domain.Product](cache.ProductByID, store, ttl),
		ByCategory: cache.NewHandle[[]*domain.Product](cache.ProductByCategory, store, ttl),
		Price:      cache.NewHandle[decimal.Decimal](cache.ProductPrice, store, ttl),
		Name:       cache.NewHandle[string](cache.ProductName, store, ttl),
		All:        cache.NewHandle[[]*domain.Product](cache.ProductAll, store, ttl),
	}
}

type operation string

const (
	opAdd    operation = "add"
	opUpdate operation = "update"
	opDelete operation = "delete"
	opStock  operation = "stock"
)

// scope names the rows one mutation touched. Previous is the category before
// an update moved the product.
type scope struct {
	ProductID string
	Category  domain.Category
	Previous  domain.Category
}

func scopeOf(p *domain.Product) scope {
	return scope{ProductID: p.ID, Category: p.Category}
}

var evictionTable = map[operation]func(c Caches, s scope) cache.Plan{
	opAdd: func(c Caches, s scope) cache.Plan {
		return cache.Plan{
			c.All.Key(cache.AllKey),
			c.ByCategory.Key(string(s.Category)),
		}
	},
	opUpdate: func(c Caches, s scope) cache.Plan {
		plan := cache.Plan{
			c.ByID.Key(s.ProductID),
			c.All.Key(cache.AllKey),
			c.Price.Key(s.ProductID),
			c.Name.Key(s.ProductID),
			c.ByCategory.Key(string(s.Category)),
		}
		if s.Previous != "" && s.Previous != s.Category {
			plan = append(plan, c.ByCategory.Key(string(s.Previous)))
		}
		return plan
	},
	opDelete: func(c Caches, s scope) cache.Plan {
		return cache.Plan{
			c.ByID.Key(s.ProductID),
			c.All.Key(cache.AllKey),
			c.Price.Key(s.ProductID),
			c.Name.Key(s.ProductID),
			c.ByCategory.Key(string(s.Category)),
		}
	},
	// Stock moves change the amount only; price and name stay valid.
	opStock: func(c Caches, s scope) cache.Plan {
		return cache.Plan{
			c.ByID.Key(s.ProductID),
			c.ByCategory.Key(string(s.Category)),
			c.All.Key(cache.AllKey),
		}
	},
}

func (c Caches) PlanFor(op operation, s scope) cache.Plan {
	build, ok := evictionTable[op]
	if !ok {
		return nil
	}
	return build(c, s)
}

// evict runs after the commit. The write stands either way; a failure is
// logged and counted and the entry ages out with its TTL.
func (c Caches) evict(ctx context.Context, obs *application.Observer, call *application.Call, op operation, s scope) {
	plan := c.PlanFor(op, s)
	err := cache.Evict(ctx, c.store, plan)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	for _, k := range plan {
		obs.Evicted(string(k.Space), outcome)
	}
	if err != nil {
		call.Logger().Error("cache_evict_failed",
			observability.F("operation", string(op)),
			observability.F("product_id", s.ProductID),
			observability.F("error", err.Error()),
		)
	}
}
