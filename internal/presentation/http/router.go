// Package httppresentation exposes the saga's customer, admin and gateway
// endpoints over chi.
package httppresentation

import (
	"context"
	"net/http"

	"github.com/Zhima-Mochi/minishop-saga/internal/application"
	apporder "github.com/Zhima-Mochi/minishop-saga/internal/application/order"
	appproduct "github.com/Zhima-Mochi/minishop-saga/internal/application/product"
	"github.com/Zhima-Mochi/minishop-saga/internal/domain/identity"
	domorder "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"
	domproduct "github.com/Zhima-Mochi/minishop-saga/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Orders is the order-side surface the router needs.
type Orders interface {
	Orders(ctx context.Context, role identity.Role) ([]*domorder.Order, error)
	UnarchivedOrders(ctx context.Context, customerID string) ([]*domorder.Order, error)
	ArchivedOrders(ctx context.Context, customerID string) ([]*domorder.Order, error)
	UnarchivedOrder(ctx context.Context, orderID, customerID string) (*domorder.Order, error)
	ArchivedOrder(ctx context.Context, orderID, customerID string) (*domorder.Order, error)
	CancelOrder(ctx context.Context, orderID, customerID string) error
	ArchiveOrder(ctx context.Context, orderID, customerID string) error
	UnarchiveOrder(ctx context.Context, orderID, customerID string) error
	DeleteOrderByOrderID(ctx context.Context, orderID string, role identity.Role) error
}

// Products is the catalog surface the router needs.
type Products interface {
	Products(ctx context.Context) ([]*domproduct.Product, error)
	Product(ctx context.Context, id string) (*domproduct.Product, error)
	ProductsByCategory(ctx context.Context, category string) ([]*domproduct.Product, error)
	Price(ctx context.Context, id string) (decimal.Decimal, error)
	Name(ctx context.Context, id string) (string, error)
	AddProduct(ctx context.Context, role identity.Role, in appproduct.ProductInput) (*domproduct.Product, error)
	UpdateProduct(ctx context.Context, role identity.Role, id string, in appproduct.ProductInput) (*domproduct.Product, error)
	DeleteProduct(ctx context.Context, role identity.Role, id string) error
}

type Stock interface {
	IsAvailable(ctx context.Context, productID string, amount int) (bool, error)
}

type Payments interface {
	HandleGatewayEvent(ctx context.Context, orderID, eventType string) error
}

type Deps struct {
	Place    application.UseCase[apporder.PlaceOrderInput, *apporder.PlaceOrderResult]
	Orders   Orders
	Products Products
	Stock    Stock
	Payments Payments
	Gatherer prometheus.Gatherer
}

type Handler struct {
	deps Deps
	log  observability.Logger
}

// NewRouter mounts every endpoint behind the observability and access-log middleware.
func NewRouter(deps Deps, tel observability.Observability) http.Handler {
	tel = observability.Or(tel)
	h := &Handler{deps: deps, log: tel.Logger()}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(ObservabilityMiddleware(tel.Logger(), tel))
	r.Use(AccessLog(tel.Logger()))

	r.Get("/health", h.health)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.placeOrder)
		r.Get("/", h.listOrders)
		r.Get("/unarchived", h.unarchivedOrders)
		r.Get("/archived", h.archivedOrders)
		r.Get("/unarchived/{orderId}", h.unarchivedOrder)
		r.Get("/archived/{orderId}", h.archivedOrder)
		r.Post("/{orderId}/cancel", h.cancelOrder)
		r.Post("/{orderId}/archive", h.archiveOrder)
		r.Post("/{orderId}/unarchive", h.unarchiveOrder)
		r.Delete("/{orderId}", h.deleteOrder)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Post("/", h.addProduct)
		r.Get("/category/{category}", h.productsByCategory)
		r.Get("/{id}", h.getProduct)
		r.Put("/{id}", h.updateProduct)
		r.Delete("/{id}", h.deleteProduct)
		r.Get("/{id}/price", h.productPrice)
		r.Get("/{id}/name", h.productName)
		r.Get("/{id}/availability", h.productAvailability)
	})

	r.Post("/payment/webhook", h.paymentWebhook)
	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
