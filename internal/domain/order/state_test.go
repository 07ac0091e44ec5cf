package order

import (
	"errors"
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-saga/internal/domain/failure"
	"github.com/Zhima-Mochi/minishop-saga/internal/domain/identity"
	"github.com/shopspring/decimal"
)

func newProcessing(t *testing.T) *Order {
	t.Helper()
	o, err := New("o-1", "c-1", []CartLine{
		{ProductID: "p-1", ProductName: "Apple", Amount: 2},
		{ProductID: "p-2", ProductName: "Hammer", Amount: 1},
	}, time.Now())
	if err != nil {
		t.Fatalf("Failed to build order: %v", err)
	}
	return o
}

func TestNew_Validation(t *testing.T) {
	cases := []struct {
		name     string
		customer string
		lines    []CartLine
	}{
		{"missing customer", "", []CartLine{{ProductID: "p", Amount: 1}}},
		{"no lines", "c", nil},
		{"zero amount", "c", []CartLine{{ProductID: "p", Amount: 0}}},
		{"missing product", "c", []CartLine{{Amount: 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New("o", tc.customer, tc.lines, time.Now())
			if !errors.Is(err, failure.ErrValidation) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}

func TestNew_StartsProcessingAndUnpriced(t *testing.T) {
	o := newProcessing(t)
	if o.Status != StatusProcessing {
		t.Errorf("Expected PROCESSING, got %s", o.Status)
	}
	if o.Priced() {
		t.Error("Expected a fresh order to be unpriced")
	}
	if o.ExecutionDate != nil {
		t.Error("Expected no execution date")
	}
}

func TestApply_TerminalStatusesAreFinal(t *testing.T) {
	for _, tr := range []Transition{TransitionSucceed, TransitionFail, TransitionCancel} {
		t.Run(string(tr), func(t *testing.T) {
			o := newProcessing(t)
			if err := o.Apply(tr, time.Now()); err != nil {
				t.Fatalf("Expected %s to apply, got %v", tr, err)
			}
			if o.ExecutionDate == nil {
				t.Error("Expected execution date to be stamped")
			}
			for _, next := range []Transition{TransitionSucceed, TransitionFail, TransitionCancel, TransitionPrice} {
				if err := o.Can(next); !errors.Is(err, failure.ErrInvalidState) {
					t.Errorf("Expected %s after %s to be rejected, got %v", next, tr, err)
				}
			}
		})
	}
}

func TestApplyPrices(t *testing.T) {
	o := newProcessing(t)
	err := o.ApplyPrices(map[string]decimal.Decimal{
		"p-1": decimal.RequireFromString("1.50"),
		"p-2": decimal.RequireFromString("12.00"),
	})
	if err != nil {
		t.Fatalf("Expected prices to apply, got %v", err)
	}
	if !o.Priced() {
		t.Fatal("Expected order to be priced")
	}
	if got := o.Total().StringFixed(2); got != "15.00" {
		t.Errorf("Expected total 15.00, got %s", got)
	}

	if err := o.Apply(TransitionCancel, time.Now()); err != nil {
		t.Fatalf("Expected cancel, got %v", err)
	}
	if err := o.ApplyPrices(map[string]decimal.Decimal{"p-1": decimal.NewFromInt(9)}); !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("Expected late pricing to be rejected, got %v", err)
	}
}

func TestArchive(t *testing.T) {
	o := newProcessing(t)
	if err := o.Archive(); !errors.Is(err, ErrProcessing) {
		t.Errorf("Expected archive of a processing order to fail, got %v", err)
	}

	_ = o.Apply(TransitionSucceed, time.Now())
	if err := o.Archive(); err != nil {
		t.Fatalf("Expected archive to succeed, got %v", err)
	}
	if err := o.Archive(); !errors.Is(err, failure.ErrInvalidState) {
		t.Errorf("Expected second archive to fail, got %v", err)
	}
	if err := o.Unarchive(); err != nil {
		t.Fatalf("Expected unarchive to succeed, got %v", err)
	}
	if o.Archived {
		t.Error("Expected order to be unarchived")
	}
}

func TestCheckDelete(t *testing.T) {
	o := newProcessing(t)
	if err := o.CheckDelete(identity.RoleUser); !errors.Is(err, failure.ErrUnauthorized) {
		t.Errorf("Expected unauthorized, got %v", err)
	}
	if err := o.CheckDelete(identity.RoleAdmin); !errors.Is(err, ErrProcessing) {
		t.Errorf("Expected processing orders to be undeletable, got %v", err)
	}
	_ = o.Apply(TransitionFail, time.Now())
	if err := o.CheckDelete(identity.RoleAdmin); err != nil {
		t.Errorf("Expected settled order to be deletable, got %v", err)
	}
}

func TestTransitionFor(t *testing.T) {
	if tr, ok := TransitionFor(StatusCanceled); !ok || tr != TransitionCancel {
		t.Errorf("Expected cancel transition, got %s %v", tr, ok)
	}
	if _, ok := TransitionFor(StatusProcessing); ok {
		t.Error("Expected PROCESSING to have no transition")
	}
}

func TestNewStockRecoveredEvent(t *testing.T) {
	o := newProcessing(t)
	evt := NewStockRecoveredEvent(o)
	if evt.PartitionKey() != "o-1" || len(evt.Lines) != 2 {
		t.Fatalf("Unexpected event %+v", evt)
	}
	if evt.Lines[0].Amount != 2 || evt.Lines[1].ProductID != "p-2" {
		t.Errorf("Unexpected lines %+v", evt.Lines)
	}
}
