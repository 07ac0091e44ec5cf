package product

import (
	"errors"
	"testing"

	"github.com/Zhima-Mochi/minishop-saga/internal/domain/failure"
	"github.com/shopspring/decimal"
)

func newApple(t *testing.T, amount int) *Product {
	t.Helper()
	p, err := New("p-1", "Apple", "red", decimal.RequireFromString("1.25"), CategoryFood, amount)
	if err != nil {
		t.Fatalf("Failed to build product: %v", err)
	}
	return p
}

func TestParseCategory(t *testing.T) {
	for in, want := range map[string]Category{"food": CategoryFood, "Tool": CategoryTool, "ELECTRONIC": CategoryElectronic} {
		got, err := ParseCategory(in)
		if err != nil || got != want {
			t.Errorf("Expected %s for %q, got %s (%v)", want, in, got, err)
		}
	}
	if _, err := ParseCategory("toys"); !errors.Is(err, failure.ErrNotFound) {
		t.Errorf("Expected unknown category to be NotFound, got %v", err)
	}
}

func TestNew_Validation(t *testing.T) {
	cases := []struct {
		name   string
		pname  string
		price  decimal.Decimal
		amount int
		want   error
	}{
		{"missing name", " ", decimal.NewFromInt(1), 1, ErrMissingName},
		{"zero price", "x", decimal.Zero, 1, ErrInvalidPrice},
		{"negative stock", "x", decimal.NewFromInt(1), -1, ErrNegativeStock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New("p", tc.pname, "", tc.price, CategoryFood, tc.amount)
			if !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDeduct(t *testing.T) {
	p := newApple(t, 3)
	if err := p.Deduct(3); err != nil {
		t.Fatalf("Expected deduct to succeed, got %v", err)
	}
	if p.Amount != 0 {
		t.Errorf("Expected 0 left, got %d", p.Amount)
	}
	if err := p.Deduct(1); !errors.Is(err, ErrInsufficientStock) {
		t.Errorf("Expected insufficient stock, got %v", err)
	}
	if p.Amount != 0 {
		t.Errorf("Expected failed deduct to leave amount untouched, got %d", p.Amount)
	}
	if err := p.Deduct(0); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("Expected invalid quantity, got %v", err)
	}
}

func TestRecover(t *testing.T) {
	p := newApple(t, 0)
	if err := p.Recover(4); err != nil {
		t.Fatalf("Expected recover to succeed, got %v", err)
	}
	if !p.Available(4) || p.Available(5) {
		t.Errorf("Unexpected availability for amount %d", p.Amount)
	}
	if err := p.Recover(-1); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("Expected invalid quantity, got %v", err)
	}
}
