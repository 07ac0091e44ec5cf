package product

import (
	"fmt"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-saga/internal/domain/failure"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = fmt.Errorf("product: %w", failure.ErrNotFound)
	ErrUnknownCategory   = fmt.Errorf("product: unknown category: %w", failure.ErrNotFound)
	ErrInsufficientStock = fmt.Errorf("product: insufficient stock: %w", failure.ErrInvalidState)
	ErrConflict          = fmt.Errorf("product: concurrent modification: %w", failure.ErrConflict)
	ErrUnauthorized      = fmt.Errorf("product: admin role required: %w", failure.ErrUnauthorized)
	ErrInvalidQuantity   = failure.Validation("product: quantity must be greater than zero")
	ErrNegativeStock     = failure.Validation("product: amount must be zero or greater")
	ErrInvalidPrice      = failure.Validation("product: price must be greater than zero")
	ErrMissingName       = failure.Validation("product: name is required")
)

type Category string

const (
	CategoryFood       Category = "FOOD"
	CategoryTool       Category = "TOOL"
	CategoryElectronic Category = "ELECTRONIC"
	CategoryClothing   Category = "CLOTHING"
)

var categories = []Category{CategoryFood, CategoryTool, CategoryElectronic, CategoryClothing}

// ParseCategory accepts any casing.
func ParseCategory(s string) (Category, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for _, c := range categories {
		if string(c) == want {
			return c, nil
		}
	}
	return "", ErrUnknownCategory
}

// Product is a stock record. Version guards every read-modify-write.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Category    Category
	Amount      int
	Version     int64
	UpdatedAt   time.Time
}

func New(id, name, description string, price decimal.Decimal, category Category, amount int) (*Product, error) {
	p := &Product{
		ID:          id,
		Name:        name,
		Description: description,
		Price:       price,
		Category:    category,
		Amount:      amount,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrMissingName
	}
	if !p.Price.IsPositive() {
		return ErrInvalidPrice
	}
	if p.Amount < 0 {
		return ErrNegativeStock
	}
	if _, err := ParseCategory(string(p.Category)); err != nil {
		return err
	}
	return nil
}

// Available reports whether quantity units can be taken right now.
func (p *Product) Available(quantity int) bool {
	return quantity > 0 && quantity <= p.Amount
}

// Deduct rejects before mutating when the result would be negative.
func (p *Product) Deduct(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > p.Amount {
		return ErrInsufficientStock
	}
	p.Amount -= quantity
	p.touch()
	return nil
}

func (p *Product) Recover(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	p.Amount += quantity
	p.touch()
	return nil
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

func (p *Product) touch() {
	p.UpdatedAt = time.Now().UTC()
}
