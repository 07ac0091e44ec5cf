// Package prometrics backs the observability metric ports with
// prometheus/client_golang vectors.
package prometrics

import (
	"sync"

	"github.com/Zhima-Mochi/minishop-saga/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
)

// Registry hands out labelled vectors by name.
type Registry interface {
	Counter(name string, help string, labelKeys ...string) observability.Counter
	Histogram(name string, help string, buckets []float64, labelKeys ...string) observability.Histogram
}

type registry struct {
	reg       prometheus.Registerer
	namespace string
	subsystem string

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// New registers onto reg; a nil reg means prometheus.DefaultRegisterer.
func New(namespace, subsystem string, reg prometheus.Registerer) Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &registry{
		reg:        reg,
		namespace:  namespace,
		subsystem:  subsystem,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Counter returns the vector registered under name, registering it on first use.
func (r *registry) Counter(name string, help string, labelKeys ...string) observability.Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	cv, ok := r.counters[name]
	if !ok {
		cv = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: r.namespace, Subsystem: r.subsystem, Name: name, Help: help,
		}, labelKeys)
		r.reg.MustRegister(cv)
		r.counters[name] = cv
	}
	return counter{cv}
}

func (r *registry) Histogram(name string, help string, buckets []float64, labelKeys ...string) observability.Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	hv, ok := r.histograms[name]
	if !ok {
		hv = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: r.namespace, Subsystem: r.subsystem, Name: name, Help: help, Buckets: buckets,
		}, labelKeys)
		r.reg.MustRegister(hv)
		r.histograms[name] = hv
	}
	return histogram{hv}
}

type counter struct{ vec *prometheus.CounterVec }

func (c counter) Add(d float64, labels ...observability.Label) {
	c.vec.With(toLabels(labels)).Add(d)
}

func (c counter) Bind(labels ...observability.Label) observability.BoundCounter {
	return c.vec.With(toLabels(labels))
}

type histogram struct{ vec *prometheus.HistogramVec }

func (h histogram) Observe(v float64, labels ...observability.Label) {
	h.vec.With(toLabels(labels)).Observe(v)
}

func (h histogram) Bind(labels ...observability.Label) observability.BoundHistogram {
	return h.vec.With(toLabels(labels))
}

func toLabels(ls []observability.Label) prometheus.Labels {
	out := make(prometheus.Labels, len(ls))
	for _, l := range ls {
		out[l.Key] = l.Value
	}
	return out
}
