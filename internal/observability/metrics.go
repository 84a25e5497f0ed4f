package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bday_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	Signups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bday_signups_total", Help: "Signup outcomes"},
		[]string{"result"},
	)
	Dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bday_dispatches_total", Help: "Dispatch invocations"},
		[]string{"result"},
	)
	Deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bday_deliveries_total", Help: "Per-recipient delivery outcomes"},
		[]string{"result"},
	)
	ProviderSend = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bday_provider_send_total", Help: "Provider send outcomes"},
		[]string{"result", "http_status"},
	)
	ProviderLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "bday_provider_send_latency_seconds", Help: "Provider send latency"},
	)
	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "bday_rate_limited_total", Help: "Dispatch requests denied by the rate limiter"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, Signups, Dispatches, Deliveries, ProviderSend, ProviderLatency, RateLimited)
}
