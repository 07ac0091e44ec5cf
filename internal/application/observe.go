package application

import (
	"context"
	"errors"
	"time"

	"github.com/Zhima-Mochi/minishop-saga/internal/domain/failure"
	domoutbox "github.com/Zhima-Mochi/minishop-saga/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	spanPrefix     = "UC."
	publishPeer    = "bus"
	publishTimeout = 300 * time.Millisecond
)

// Observer carries the instruments every use case of one service reports to.
type Observer struct {
	log    observability.Logger
	tracer observability.Tracer

	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
	conflicts    observability.Counter   // stock_cas_conflicts_total{product_id}
	evictions    observability.Counter   // cache_evictions_total{keyspace,outcome}
}

func NewObserver(service string, tel observability.Observability) *Observer {
	tel = observability.Or(tel)
	m := tel.Metrics()
	return &Observer{
		log:          tel.Logger().With(observability.F("service", service)),
		tracer:       tel.Tracer(),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
		conflicts:    m.Counter(observability.MStockConflicts),
		evictions:    m.Counter(observability.MCacheEvictions),
	}
}

func (o *Observer) Logger() observability.Logger { return o.log }

// Call is one in-flight use case execution.
type Call struct {
	obs     *Observer
	useCase string
	span    trace.Span
	ctx     context.Context
	logger  observability.Logger
	start   time.Time

	outcome string
	status  string
	fields  []observability.Field
	pubErr  error
}

// Begin opens the span and binds the request logger for useCase.
func (o *Observer) Begin(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, *Call) {
	attrs = append(attrs, attribute.String("use_case", useCase))
	ctx, span := o.tracer.Start(ctx, spanPrefix+spanName, attrs...)
	ctx, logger := logctx.Enrich(ctx, o.log, observability.F("use_case", useCase))
	return ctx, &Call{
		obs:     o,
		useCase: useCase,
		span:    span,
		ctx:     ctx,
		logger:  logger,
		start:   time.Now(),
		outcome: "success",
		status:  "OK",
	}
}

func (c *Call) Logger() observability.Logger { return c.logger }

func (c *Call) Span() trace.Span { return c.span }

// Fail records an error status text; End fills in the error itself.
func (c *Call) Fail(status string) {
	c.outcome, c.status = "error", status
}

// Status overrides the status text of a successful call.
func (c *Call) Status(status string) {
	c.status = status
}

// Ignore marks the call as a guarded no-op.
func (c *Call) Ignore(status string) {
	c.outcome, c.status = "ignored", status
}

func (c *Call) With(fields ...observability.Field) {
	c.fields = append(c.fields, fields...)
}

// End is the deferred epilogue: span status, RED metrics and the use_case_done line.
func (c *Call) End(err error) {
	if err != nil && c.outcome != "error" {
		c.outcome, c.status = "error", failure.Kind(err)
	}
	lat := time.Since(c.start).Seconds()

	if c.span != nil {
		if err != nil {
			c.span.RecordError(err)
			c.span.SetStatus(codes.Error, c.status)
		} else {
			c.span.SetStatus(codes.Ok, c.status)
		}
		c.span.End()
	}

	c.obs.reqCounter.Add(1,
		observability.L("use_case", c.useCase),
		observability.L("outcome", c.outcome),
	)
	c.obs.durHistogram.Observe(lat,
		observability.L("use_case", c.useCase),
	)

	fields := append([]observability.Field{
		observability.F("outcome", c.outcome),
		observability.F("status", c.status),
		observability.F("latency_seconds", lat),
	}, c.fields...)
	if c.pubErr != nil {
		fields = append(fields, observability.F("event_publish_error", c.pubErr.Error()))
	}
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}
	c.logger.Info("use_case_done", fields...)
}

// Publish sends e after the local write committed. A failure is reported on
// the call but never undoes the write.
func (c *Call) Publish(pub domoutbox.Publisher, e domoutbox.Event) error {
	err := c.obs.publish(c.ctx, pub, e)
	if err != nil {
		c.pubErr = errors.Join(c.pubErr, err)
		c.status = "EVENT_PUBLISH_FAILED"
		if c.span != nil {
			c.span.RecordError(err)
		}
		c.logger.Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err.Error()),
		)
		return err
	}
	if c.span != nil {
		c.span.AddEvent(e.EventName())
	}
	return nil
}

// PublishErr returns the joined publish failures of the call so far.
func (c *Call) PublishErr() error { return c.pubErr }

func (o *Observer) publish(ctx context.Context, pub domoutbox.Publisher, e domoutbox.Event) error {
	if pub == nil || e == nil {
		return nil
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return o.External(pubCtx, publishPeer, e.EventName(), func(ctx context.Context) error {
		if err := pub.Publish(ctx, e); err != nil {
			return err
		}
		return ctx.Err()
	})
}

// External times one call to a peer and records external_requests_total and
// external_request_duration_seconds for it.
func (o *Observer) External(ctx context.Context, peer, endpoint string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	outcome := "success"
	switch {
	case err != nil && ctx.Err() != nil:
		outcome = "canceled"
	case err != nil:
		outcome = "error"
	}

	o.extCounter.Add(1,
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	o.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
	)
	return err
}

// Conflict counts one lost compare-and-swap round.
func (o *Observer) Conflict(productID string) {
	o.conflicts.Add(1, observability.L("product_id", productID))
}

// Evicted counts one invalidation of keyspace.
func (o *Observer) Evicted(keyspace, outcome string) {
	o.evictions.Add(1,
		observability.L("keyspace", keyspace),
		observability.L("outcome", outcome),
	)
}

// On adapts a typed event handler into a bus handler. Mismatched payloads are
// counted as ignored; guarded transitions (InvalidState) are acknowledged.
func On[E domoutbox.Event](o *Observer, useCase string, fn func(ctx context.Context, e E) error) domoutbox.Handler {
	return func(ctx context.Context, raw domoutbox.Event) error {
		evt, ok := raw.(E)
		if !ok {
			o.reqCounter.Add(1,
				observability.L("use_case", useCase),
				observability.L("outcome", "ignored"),
			)
			return nil
		}

		ctx, call := o.Begin(ctx, useCase, "On."+raw.EventName(),
			attribute.String("event", raw.EventName()),
		)
		call.With(observability.F("event", raw.EventName()))
		if key := domoutbox.KeyOf(raw); key != "" {
			call.With(observability.F("key", key))
		}

		err := fn(ctx, evt)
		if err != nil && errors.Is(err, failure.ErrInvalidState) {
			call.Ignore("TRANSITION_IGNORED")
			call.Logger().Info("transition_ignored",
				observability.F("event", raw.EventName()),
				observability.F("reason", err.Error()),
			)
			err = nil
		}
		call.End(err)
		return err
	}
}
