package payment

import (
	"errors"
	"testing"

	"github.com/Zhima-Mochi/minishop-saga/internal/domain/failure"
	"github.com/shopspring/decimal"
)

func TestMerge_IsIdempotent(t *testing.T) {
	r := NewRequest("o-1", "c-1", "cs_1")
	if r.Status != StatusCreated {
		t.Fatalf("Expected CREATED, got %s", r.Status)
	}
	if !r.Merge(StatusSucceeded) {
		t.Fatal("Expected first merge to change the request")
	}
	if r.Merge(StatusSucceeded) {
		t.Error("Expected repeated merge to be a no-op")
	}
	if r.Merge(StatusFailed) {
		t.Error("Expected settled request to ignore a conflicting status")
	}
	if r.Status != StatusSucceeded {
		t.Errorf("Expected SUCCEEDED, got %s", r.Status)
	}
}

func TestCancel(t *testing.T) {
	r := NewRequest("o-1", "c-1", "")
	if !r.Cancel() || r.Status != StatusCanceled {
		t.Fatalf("Expected request to cancel, got %s", r.Status)
	}
	if r.Merge(StatusSucceeded) {
		t.Error("Expected canceled request to stay canceled")
	}
}

func TestStatusFromGatewayEvent(t *testing.T) {
	cases := map[string]Status{
		EventCheckoutSessionCompleted: StatusSucceeded,
		EventPaymentIntentSucceeded:   StatusSucceeded,
		EventCheckoutSessionExpired:   StatusFailed,
		EventPaymentIntentFailed:      StatusFailed,
	}
	for evt, want := range cases {
		got, err := StatusFromGatewayEvent(evt)
		if err != nil || got != want {
			t.Errorf("Expected %s for %s, got %s (%v)", want, evt, got, err)
		}
	}
	if _, err := StatusFromGatewayEvent("charge.refunded"); !errors.Is(err, failure.ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestToMinorUnits(t *testing.T) {
	cases := map[string]int64{"19.99": 1999, "0.1": 10, "3": 300, "2.005": 201}
	for in, want := range cases {
		if got := ToMinorUnits(decimal.RequireFromString(in)); got != want {
			t.Errorf("Expected %d for %s, got %d", want, in, got)
		}
	}
}

func TestNewStatusEvent(t *testing.T) {
	r := NewRequest("o-1", "c-1", "cs_1")
	r.Merge(StatusFailed)
	if _, ok := NewStatusEvent(r).(PaymentFailedEvent); !ok {
		t.Errorf("Expected PaymentFailedEvent, got %T", NewStatusEvent(r))
	}
}
