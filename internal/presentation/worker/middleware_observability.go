// Package workerpresentation binds the per-delivery logger that event
// consumers hand down to the application handlers.
package workerpresentation

import (
	"context"
	"sort"

	"github.com/Zhima-Mochi/minishop-saga/internal/observability"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability/logctx"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// WithEventContext stores a delivery-scoped logger in ctx: event_id (generated
// when absent), the active trace and span ids, and attrs. Keep attrs low-cardinality.
func WithEventContext(ctx context.Context, base observability.Logger, attrs map[string]string) (context.Context, observability.Logger) {
	if base == nil {
		base = observability.NopLogger()
	}

	evtID := attrs["event_id"]
	if evtID == "" {
		evtID = uuid.NewString()
	}
	fields := make([]observability.Field, 0, len(attrs)+3)
	fields = append(fields, observability.F("event_id", evtID))

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}

	keys := make([]string, 0, len(attrs))
	for k, v := range attrs {
		if k == "event_id" || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, observability.F(k, attrs[k]))
	}

	logger := base.With(fields...)
	return logctx.With(ctx, logger), logger
}
