package order

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-saga/internal/application"
	"github.com/Zhima-Mochi/minishop-saga/internal/domain/cache"
	"github.com/Zhima-Mochi/minishop-saga/internal/domain/failure"
	domain "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"
)

// Caches are the order service's keyspaces. Unarchived and Archived hold two
// key forms: the customer id, and orderKey(orderID, customerID).
type Caches struct {
	store      cache.Store
	Unarchived *cache.Handle[[]*domain.Order]
	Archived   *cache.Handle[[]*domain.Order]
	AdminAll   *cache.Handle[[]*domain.Order]
}

func NewCaches(store cache.Store, ttl time.Duration) Caches {
	return Caches{
		store:      store,
		Unarchived: cache.NewHandle[[]*domain.Order](cache.OrderUnarchived, store, ttl),
		Archived:   cache.NewHandle[[]*domain.Order](cache.OrderArchived, store, ttl),
		AdminAll:   cache.NewHandle[[]*domain.Order](cache.OrderAdminAll, store, ttl),
	}
}

func orderKey(orderID, customerID string) string {
	return orderID + ":" + customerID
}

type operation string

const (
	opPlace     operation = "place"
	opPrice     operation = "price"
	opStatus    operation = "status"
	opArchive   operation = "archive"
	opUnarchive operation = "unarchive"
	opDelete    operation = "delete"
)

type scope struct {
	OrderID    string
	CustomerID string
	Archived   bool
}

func scopeOf(o *domain.Order) scope {
	return scope{OrderID: o.ID, CustomerID: o.CustomerID, Archived: o.Archived}
}

func (c Caches) unarchivedKeys(s scope) cache.Plan {
	return cache.Plan{c.Unarchived.Key(s.CustomerID), c.Unarchived.Key(orderKey(s.OrderID, s.CustomerID))}
}

func (c Caches) archivedKeys(s scope) cache.Plan {
	return cache.Plan{c.Archived.Key(s.CustomerID), c.Archived.Key(orderKey(s.OrderID, s.CustomerID))}
}

// evictionTable lists, per mutating operation, every key whose result set the
// mutation can change. The admin listing groups all orders, so every row change hits it.
var evictionTable = map[operation]func(c Caches, s scope) cache.Plan{
	opPlace: func(c Caches, s scope) cache.Plan {
		return cache.Plan{c.Unarchived.Key(s.CustomerID), c.AdminAll.Key(cache.AllKey)}
	},
	opPrice: func(c Caches, s scope) cache.Plan {
		return append(c.unarchivedKeys(s), c.AdminAll.Key(cache.AllKey))
	},
	opStatus: func(c Caches, s scope) cache.Plan {
		return append(c.unarchivedKeys(s), c.AdminAll.Key(cache.AllKey))
	},
	opArchive: func(c Caches, s scope) cache.Plan {
		plan := append(c.unarchivedKeys(s), c.archivedKeys(s)...)
		return append(plan, c.AdminAll.Key(cache.AllKey))
	},
	opUnarchive: func(c Caches, s scope) cache.Plan {
		plan := append(c.archivedKeys(s), c.unarchivedKeys(s)...)
		return append(plan, c.AdminAll.Key(cache.AllKey))
	},
	opDelete: func(c Caches, s scope) cache.Plan {
		plan := c.unarchivedKeys(s)
		if s.Archived {
			plan = c.archivedKeys(s)
		}
		return append(plan, c.AdminAll.Key(cache.AllKey))
	},
}

// PlanFor exposes the eviction table for one operation.
func (c Caches) PlanFor(op operation, s scope) cache.Plan {
	build, ok := evictionTable[op]
	if !ok {
		return nil
	}
	return build(c, s)
}

// evict runs before the write; a failure aborts the write.
func (c Caches) evict(ctx context.Context, obs *application.Observer, call *application.Call, op operation, s scope) error {
	if err := c.run(ctx, obs, call, op, s, "before_write"); err != nil {
		return fmt.Errorf("order: evict %s: %w: %w", op, failure.ErrUpstreamUnavailable, err)
	}
	return nil
}

// evictCommitted repeats the plan once the write has committed, dropping any
// entry a reader refilled from the old rows in between. The write stands
// when it fails; such an entry lives until its TTL.
func (c Caches) evictCommitted(ctx context.Context, obs *application.Observer, call *application.Call, op operation, s scope) {
	_ = c.run(ctx, obs, call, op, s, "after_write")
}

func (c Caches) run(ctx context.Context, obs *application.Observer, call *application.Call, op operation, s scope, phase string) error {
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
			observability.F("phase", phase),
			observability.F("order_id", s.OrderID),
			observability.F("error", err.Error()),
		)
	}
	return err
}
