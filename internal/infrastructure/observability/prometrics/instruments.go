package prometrics

import (
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
)

type counterDef struct {
	key    observability.MetricKey
	help   string
	labels []string
}

type histogramDef struct {
	key    observability.MetricKey
	help   string
	labels []string
}

var counterDefs = []counterDef{
	{observability.MUsecaseRequests, "Total number of use case invocations.", []string{"use_case", "outcome"}},
	{observability.MExternalRequests, "Calls to external peers (bus, gateway, mailer).", []string{"peer", "endpoint", "outcome"}},
	{observability.MHTTPRequests, "Total number of HTTP requests.", []string{"method", "route", "status"}},
	{observability.MStockConflicts, "Stock compare-and-swap rounds lost to a concurrent writer.", []string{"product_id"}},
	{observability.MCacheEvictions, "Cache keys evicted per keyspace.", []string{"keyspace", "outcome"}},
	{observability.MEventsDelivered, "Bus deliveries by final outcome.", []string{"topic", "outcome"}},
}

var histogramDefs = []histogramDef{
	{observability.MUsecaseDuration, "Duration of use case execution in seconds.", []string{"use_case"}},
	{observability.MExternalRequestDuration, "Duration of external peer calls in seconds.", []string{"peer", "endpoint"}},
	{observability.MHTTPRequestDuration, "Duration of HTTP requests in seconds.", []string{"method", "route"}},
}

// Instruments registers every metric the application reports and returns them keyed for observability.New.
func Instruments(r Registry) (map[observability.MetricKey]observability.Counter, map[observability.MetricKey]observability.Histogram) {
	counters := make(map[observability.MetricKey]observability.Counter, len(counterDefs))
	for _, s := range counterDefs {
		counters[s.key] = r.Counter(string(s.key), s.help, s.labels...)
	}
	histograms := make(map[observability.MetricKey]observability.Histogram, len(histogramDefs))
	for _, s := range histogramDefs {
		histograms[s.key] = r.Histogram(string(s.key), s.help, prometheus.DefBuckets, s.labels...)
	}
	return counters, histograms
}
