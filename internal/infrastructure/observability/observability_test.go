package observability

import (
	"testing"

	"github.com/Zhima-Mochi/minishop-saga/internal/observability"
)

type countingCounter struct{ total float64 }

func (c *countingCounter) Add(d float64, _ ...observability.Label) { c.total += d }

func (c *countingCounter) Bind(...observability.Label) observability.BoundCounter { return nil }

func TestNew_UnregisteredKeysAreNoops(t *testing.T) {
	tel := New(nil, nil, nil, nil)

	// Must not panic.
	tel.Metrics().Counter(observability.MStockConflicts).Add(1)
	tel.Metrics().Histogram(observability.MUsecaseDuration).Observe(0.1)
	tel.Logger().Info("ignored")
	_, span := tel.Tracer().Start(t.Context(), "noop")
	span.End()
}

func TestNew_ResolvesRegisteredCounters(t *testing.T) {
	c := &countingCounter{}
	tel := New(nil, nil, map[observability.MetricKey]observability.Counter{observability.MCacheEvictions: c}, nil)

	tel.Metrics().Counter(observability.MCacheEvictions).Add(2)
	tel.Metrics().Counter(observability.MStockConflicts).Add(5)

	if c.total != 2 {
		t.Errorf("Expected 2 evictions counted, got %v", c.total)
	}
}
