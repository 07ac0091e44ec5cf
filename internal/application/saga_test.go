package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-saga/internal/application/notification"
	apporder "github.com/Zhima-Mochi/minishop-saga/internal/application/order"
	apppayment "github.com/Zhima-Mochi/minishop-saga/internal/application/payment"
	appproduct "github.com/Zhima-Mochi/minishop-saga/internal/application/product"
	domorder "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"
	dompayment "github.com/Zhima-Mochi/minishop-saga/internal/domain/payment"
	domproduct "github.com/Zhima-Mochi/minishop-saga/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/gateway"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/mailer"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/outbox"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"
)

type shop struct {
	bus      *outbox.Bus
	products *memory.ProductRepository
	orders   *memory.OrderRepository
	payments *memory.PaymentRepository
	gw       *gateway.Simulator
	place    *apporder.PlaceOrderUseCase
	order    *apporder.Service
	payment  *apppayment.Service
}

func newShop(t *testing.T) *shop {
	t.Helper()
	tel := infraobs.New(nil, zaplogger.New(zaptest.NewLogger(t)), nil, nil)
	s := &shop{
		bus: outbox.NewBus(tel),
		products: memory.NewProductRepository(
			&domproduct.Product{ID: "apple", Name: "Apple", Price: decimal.RequireFromString("1.50"), Category: domproduct.CategoryFood, Amount: 10},
			&domproduct.Product{ID: "hammer", Name: "Hammer", Price: decimal.RequireFromString("12.00"), Category: domproduct.CategoryTool, Amount: 1},
		),
		orders:   memory.NewOrderRepository(),
		payments: memory.NewPaymentRepository(),
	}
	s.gw = gateway.NewSimulator(gateway.Config{CheckoutBaseURL: "https://pay.test"}, tel.Logger())
	store := memory.NewCacheStore()
	ids := id.NewUUIDGenerator()

	orderCaches := apporder.NewCaches(store, time.Minute)
	s.place = apporder.NewPlaceOrderUseCase(s.orders, ids, s.bus, orderCaches, tel)
	s.order = apporder.NewService(s.orders, s.bus, orderCaches, tel)

	ledger := appproduct.NewLedger(s.products, s.bus, appproduct.NewCaches(store, time.Minute), 0, tel)
	create := apppayment.NewProcessOrderCreationUseCase(s.payments, s.gw, s.bus, tel)
	s.payment = apppayment.NewService(s.payments, s.gw, s.bus, tel)

	apporder.NewWorker(s.bus, s.place, s.order, tel).Start()
	appproduct.NewWorker(s.bus, appproduct.NewCheckOrderUseCase(ledger), ledger, memory.NewDeduper(), tel).Start()
	apppayment.NewWorker(s.bus, create, s.payment, tel).Start()
	notification.NewWorker(s.bus, mailer.NewLogMailer(tel.Logger()), tel).Start()

	ctx := context.Background()
	s.bus.Start(ctx)
	t.Cleanup(func() { s.bus.Stop(ctx) })
	return s
}

func (s *shop) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.bus.Drain(ctx); err != nil {
		t.Fatalf("Bus did not drain: %v", err)
	}
}

func (s *shop) checkout(t *testing.T, lines ...domorder.CartLine) string {
	t.Helper()
	res, err := s.place.Execute(context.Background(), apporder.PlaceOrderInput{CustomerID: "alice", Lines: lines})
	if err != nil {
		t.Fatalf("Failed to place order: %v", err)
	}
	s.settle(t)
	return res.OrderID
}

func (s *shop) orderStatus(t *testing.T, id string) *domorder.Order {
	t.Helper()
	o, err := s.orders.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Failed to read order %s: %v", id, err)
	}
	return o
}

func (s *shop) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := s.products.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Failed to read product %s: %v", id, err)
	}
	return p.Amount
}

func TestSaga_PaidOrderSucceeds(t *testing.T) {
	s := newShop(t)
	orderID := s.checkout(t, domorder.CartLine{ProductID: "apple", Amount: 3})

	o := s.orderStatus(t, orderID)
	if o.Status != domorder.StatusProcessing || !o.Priced() {
		t.Fatalf("Expected a priced PROCESSING order, got %s priced=%v", o.Status, o.Priced())
	}
	if got := s.stock(t, "apple"); got != 7 {
		t.Errorf("Expected 7 apples left, got %d", got)
	}
	req, err := s.payment.Request(context.Background(), orderID)
	if err != nil || req.Status != dompayment.StatusCreated {
		t.Fatalf("Expected a CREATED payment request, got %v", err)
	}

	if err := s.payment.HandleGatewayEvent(context.Background(), orderID, dompayment.EventCheckoutSessionCompleted); err != nil {
		t.Fatalf("Webhook failed: %v", err)
	}
	s.settle(t)

	if got := s.orderStatus(t, orderID).Status; got != domorder.StatusSuccessful {
		t.Errorf("Expected SUCCESSFUL, got %s", got)
	}
	if got := s.stock(t, "apple"); got != 7 {
		t.Errorf("Expected stock to stay deducted, got %d", got)
	}
}

func TestSaga_UnavailableOrderFailsWithoutDeduction(t *testing.T) {
	s := newShop(t)
	orderID := s.checkout(t,
		domorder.CartLine{ProductID: "apple", Amount: 2},
		domorder.CartLine{ProductID: "hammer", Amount: 2},
	)

	if got := s.orderStatus(t, orderID).Status; got != domorder.StatusFailed {
		t.Errorf("Expected FAILED, got %s", got)
	}
	if s.stock(t, "apple") != 10 || s.stock(t, "hammer") != 1 {
		t.Error("Expected a rejected order to leave stock untouched")
	}
	if _, err := s.payment.Request(context.Background(), orderID); err == nil {
		t.Error("Expected no payment request for a rejected order")
	}
}

func TestSaga_CancelRecoversStockAndExpiresSession(t *testing.T) {
	ctx := context.Background()
	s := newShop(t)
	orderID := s.checkout(t, domorder.CartLine{ProductID: "hammer", Amount: 1})
	if got := s.stock(t, "hammer"); got != 0 {
		t.Fatalf("Expected hammer to be reserved, got %d", got)
	}
	req, _ := s.payment.Request(ctx, orderID)

	if err := s.order.CancelOrder(ctx, orderID, "alice"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	s.settle(t)

	if got := s.orderStatus(t, orderID).Status; got != domorder.StatusCanceled {
		t.Errorf("Expected CANCELED, got %s", got)
	}
	if got := s.stock(t, "hammer"); got != 1 {
		t.Errorf("Expected hammer to be recovered, got %d", got)
	}
	after, _ := s.payment.Request(ctx, orderID)
	if after.Status != dompayment.StatusCanceled || !s.gw.Expired(req.SessionID) {
		t.Errorf("Expected payment CANCELED with an expired session, got %s", after.Status)
	}

	// A gateway success racing the cancel changes nothing.
	_ = s.payment.HandleGatewayEvent(ctx, orderID, dompayment.EventPaymentIntentSucceeded)
	s.settle(t)
	if got := s.orderStatus(t, orderID).Status; got != domorder.StatusCanceled {
		t.Errorf("Expected CANCELED to be final, got %s", got)
	}
}

func TestSaga_FailedPaymentRecoversStock(t *testing.T) {
	s := newShop(t)
	orderID := s.checkout(t, domorder.CartLine{ProductID: "apple", Amount: 4})

	if err := s.payment.HandleGatewayEvent(context.Background(), orderID, dompayment.EventCheckoutSessionExpired); err != nil {
		t.Fatalf("Webhook failed: %v", err)
	}
	s.settle(t)

	if got := s.orderStatus(t, orderID).Status; got != domorder.StatusFailed {
		t.Errorf("Expected FAILED, got %s", got)
	}
	if got := s.stock(t, "apple"); got != 10 {
		t.Errorf("Expected apples to be recovered, got %d", got)
	}
}
