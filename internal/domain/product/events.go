package product

import (
	"time"

	"github.com/Zhima-Mochi/minishop-saga/internal/domain/outbox"
	"github.com/shopspring/decimal"
)

// PricedLine is an accepted order line carrying the ledger's price at deduction time.
type PricedLine struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Amount      int             `json:"amount"`
	Price       decimal.Decimal `json:"price"`
}

type StockLine struct {
	ProductID string `json:"productId"`
	Amount    int    `json:"amount"`
}

// OrderAcceptedEvent reports that every line was deducted and priced.
type OrderAcceptedEvent struct {
	OrderID    string       `json:"orderId"`
	CustomerID string       `json:"customerId"`
	Lines      []PricedLine `json:"lines"`
	OccurredAt time.Time    `json:"occurredAt"`
}

func (OrderAcceptedEvent) EventName() string { return outbox.TopicAcceptedOrder }

func (e OrderAcceptedEvent) PartitionKey() string { return e.OrderID }

// OrderRejectedEvent reports that no stock was taken because some lines were short.
type OrderRejectedEvent struct {
	OrderID     string    `json:"orderId"`
	CustomerID  string    `json:"customerId"`
	Unavailable []string  `json:"unavailable"`
	OccurredAt  time.Time `json:"occurredAt"`
}

func (OrderRejectedEvent) EventName() string { return outbox.TopicRejectedOrder }

func (e OrderRejectedEvent) PartitionKey() string { return e.OrderID }

type StockDeductedEvent struct {
	OrderID    string      `json:"orderId"`
	Lines      []StockLine `json:"lines"`
	OccurredAt time.Time   `json:"occurredAt"`
}

func (StockDeductedEvent) EventName() string { return outbox.TopicStockDeducted }

func (e StockDeductedEvent) PartitionKey() string { return e.OrderID }

// Snapshot is the product mirror shipped to cart and comment services.
type Snapshot struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    Category        `json:"category"`
	Amount      int             `json:"amount"`
	Version     int64           `json:"version"`
}

func SnapshotOf(p *Product) Snapshot {
	return Snapshot{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Category:    p.Category,
		Amount:      p.Amount,
		Version:     p.Version,
	}
}

type ProductCreatedEvent struct {
	Product    Snapshot  `json:"product"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (ProductCreatedEvent) EventName() string { return outbox.TopicCreatedProduct }

func (e ProductCreatedEvent) PartitionKey() string { return e.Product.ID }

type ProductUpdatedEvent struct {
	Product    Snapshot  `json:"product"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (ProductUpdatedEvent) EventName() string { return outbox.TopicUpdatedProduct }

func (e ProductUpdatedEvent) PartitionKey() string { return e.Product.ID }

type ProductDeletedEvent struct {
	Product    Snapshot  `json:"product"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (ProductDeletedEvent) EventName() string { return outbox.TopicDeletedProduct }

func (e ProductDeletedEvent) PartitionKey() string { return e.Product.ID }

func NewProductCreatedEvent(p *Product) ProductCreatedEvent {
	return ProductCreatedEvent{Product: SnapshotOf(p), OccurredAt: time.Now().UTC()}
}

func NewProductUpdatedEvent(p *Product) ProductUpdatedEvent {
	return ProductUpdatedEvent{Product: SnapshotOf(p), OccurredAt: time.Now().UTC()}
}

func NewProductDeletedEvent(p *Product) ProductDeletedEvent {
	return ProductDeletedEvent{Product: SnapshotOf(p), OccurredAt: time.Now().UTC()}
}
