package product

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-saga/internal/domain/outbox"
	domain "github.com/Zhima-Mochi/minishop-saga/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"
)

type recorder struct {
	mu     sync.Mutex
	events []domoutbox.Event
}

func (r *recorder) Publish(_ context.Context, e domoutbox.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventName())
	}
	return out
}

func (r *recorder) count(topic string) int {
	n := 0
	for _, t := range r.topics() {
		if t == topic {
			n++
		}
	}
	return n
}

type subscriber struct {
	handlers map[string][]domoutbox.Handler
}

func (s *subscriber) Subscribe(topic string, h domoutbox.Handler) {
	if s.handlers == nil {
		s.handlers = make(map[string][]domoutbox.Handler)
	}
	s.handlers[topic] = append(s.handlers[topic], h)
}

type sequence struct {
	mu sync.Mutex
	n  int
}

func (s *sequence) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("p-new-%d", s.n)
}

func testTel(t *testing.T) observability.Observability {
	t.Helper()
	return infraobs.New(nil, zaplogger.New(zaptest.NewLogger(t)), nil, nil)
}

func seedProduct(id, name string, category domain.Category, price string, amount int) *domain.Product {
	return &domain.Product{
		ID:        id,
		Name:      name,
		Price:     decimal.RequireFromString(price),
		Category:  category,
		Amount:    amount,
		UpdatedAt: time.Now().UTC(),
	}
}

type fixture struct {
	repo    *memory.ProductRepository
	store   *memory.CacheStore
	pub     *recorder
	ledger  *Ledger
	check   *CheckOrderUseCase
	catalog *Catalog
}

func newFixture(t *testing.T, repo domain.Repository, maxRetries int) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewCacheStore(), pub: &recorder{}}
	if mr, ok := repo.(*memory.ProductRepository); ok {
		f.repo = mr
	}
	f.ledger = NewLedger(repo, f.pub, NewCaches(f.store, time.Minute), maxRetries, testTel(t))
	f.check = NewCheckOrderUseCase(f.ledger)
	f.catalog = NewCatalog(f.ledger, &sequence{})
	return f
}

func amountOf(t *testing.T, repo domain.Repository, id string) int {
	t.Helper()
	p, err := repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", id, err)
	}
	return p.Amount
}
