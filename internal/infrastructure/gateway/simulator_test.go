package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/Zhima-Mochi/minishop-saga/internal/domain/payment"
)

func TestSimulator_CreateSession(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewSimulator(Config{CheckoutBaseURL: "https://pay.test/checkout", SessionTTL: time.Hour}, nil)
	s.now = func() time.Time { return now }

	sess, err := s.CreateSession(context.Background(), "o-1", []domain.LineItem{{Name: "Pen", UnitAmount: 250, Quantity: 2}})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if !strings.HasPrefix(sess.ID, "cs_") {
		t.Errorf("Expected cs_ session id, got %s", sess.ID)
	}
	if sess.URL != "https://pay.test/checkout/"+sess.ID {
		t.Errorf("Unexpected checkout url %s", sess.URL)
	}
	if !sess.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("Expected expiry in one hour, got %s", sess.ExpiresAt)
	}
	if s.Expired(sess.ID) {
		t.Error("Expected a new session to be live")
	}
}

func TestSimulator_RejectsEmptyOrder(t *testing.T) {
	s := NewSimulator(Config{CheckoutBaseURL: "https://pay.test"}, nil)
	if _, err := s.CreateSession(context.Background(), "o-1", nil); !errors.Is(err, domain.ErrEmptyOrder) {
		t.Errorf("Expected ErrEmptyOrder, got %v", err)
	}
}

func TestSimulator_Expire(t *testing.T) {
	ctx := context.Background()
	s := NewSimulator(Config{CheckoutBaseURL: "https://pay.test"}, nil)
	sess, _ := s.CreateSession(ctx, "o-1", []domain.LineItem{{Name: "Pen", UnitAmount: 100, Quantity: 1}})

	if err := s.Expire(ctx, sess.ID); err != nil {
		t.Fatalf("Expire failed: %v", err)
	}
	if !s.Expired(sess.ID) {
		t.Error("Expected session to be expired")
	}
	if err := s.Expire(ctx, "cs_unknown"); err == nil {
		t.Error("Expected unknown session to fail")
	}
}
