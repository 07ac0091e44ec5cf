// Package gateway is a stand-in checkout provider that issues session ids
// and checkout links without calling out.
package gateway

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/minishop-saga/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability/logctx"

	"github.com/google/uuid"
)

type Config struct {
	CheckoutBaseURL string
	SessionTTL      time.Duration
}

type session struct {
	orderID   string
	expiresAt time.Time
	expired   bool
}

type Simulator struct {
	mu       sync.Mutex
	cfg      Config
	sessions map[string]*session
	log      observability.Logger
	now      func() time.Time
}

func NewSimulator(cfg Config, logger observability.Logger) *Simulator {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Simulator{
		cfg:      cfg,
		sessions: make(map[string]*session),
		log:      logger.With(observability.F("component", "gateway")),
		now:      time.Now,
	}
}

func (s *Simulator) CreateSession(ctx context.Context, orderID string, lines []domain.LineItem) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, domain.ErrEmptyOrder
	}
	var total int64
	for _, l := range lines {
		total += l.UnitAmount * int64(l.Quantity)
	}

	id := "cs_" + uuid.NewString()
	link, err := url.JoinPath(s.cfg.CheckoutBaseURL, id)
	if err != nil {
		return nil, fmt.Errorf("gateway: checkout url: %w", err)
	}
	expires := s.now().Add(s.cfg.SessionTTL).UTC()

	s.mu.Lock()
	s.sessions[id] = &session{orderID: orderID, expiresAt: expires}
	s.mu.Unlock()

	logctx.FromOr(ctx, s.log).Info("gateway_session_created",
		observability.F("order_id", orderID),
		observability.F("session_id", id),
		observability.F("amount_minor", total),
	)
	return &domain.Session{ID: id, URL: link, ExpiresAt: expires}, nil
}

func (s *Simulator) Expire(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("gateway: unknown session %s", sessionID)
	}
	sess.expired = true
	return nil
}

// Expired reports whether sessionID was expired through Expire.
func (s *Simulator) Expired(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	return ok && sess.expired
}
