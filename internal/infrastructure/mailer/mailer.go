// Package mailer delivers customer notifications to the structured log.
package mailer

import (
	"context"

	"github.com/Zhima-Mochi/minishop-saga/internal/application/notification"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability/logctx"
)

type LogMailer struct {
	log observability.Logger
}

func NewLogMailer(logger observability.Logger) *LogMailer {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &LogMailer{log: logger.With(observability.F("component", "mailer"))}
}

func (m *LogMailer) Send(ctx context.Context, msg notification.Message) error {
	logctx.FromOr(ctx, m.log).Info("mail_sent",
		observability.F("customer_id", msg.CustomerID),
		observability.F("subject", msg.Subject),
		observability.F("body", msg.Body),
	)
	return nil
}
