package observability

const (
	MUsecaseRequests         MetricKey = "usecase_requests_total"
	MUsecaseDuration         MetricKey = "usecase_duration_seconds"
	MHTTPRequests            MetricKey = "http_requests_total"
	MHTTPRequestDuration     MetricKey = "http_request_duration_seconds"
	MExternalRequests        MetricKey = "external_requests_total"
	MExternalRequestDuration MetricKey = "external_request_duration_seconds"
	MStockConflicts          MetricKey = "stock_cas_conflicts_total"
	MCacheEvictions          MetricKey = "cache_evictions_total"
	MEventsDelivered         MetricKey = "events_delivered_total"
)
