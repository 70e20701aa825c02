package products

import "github.com/prometheus/client_golang/prometheus"

const (
	eventHit        = "hit"
	eventStale      = "stale"
	eventMiss       = "miss"
	eventShared     = "shared"
	eventInvalidate = "invalidate"

	resultOK    = "ok"
	resultError = "error"
)

// Metrics counts cache events and upstream calls. A nil *Metrics records nothing.
type Metrics struct {
	CacheEvents *prometheus.CounterVec
	Upstream    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "product_cache_events_total",
				Help: "Product cache lookups and invalidations by event",
			},
			[]string{"event"},
		),
		Upstream: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "product_api_requests_total",
				Help: "Calls to the catalog API by operation and result",
			},
			[]string{"op", "result"},
		),
	}

	reg.MustRegister(m.CacheEvents, m.Upstream)
	return m
}

func (m *Metrics) event(name string) {
	if m == nil {
		return
	}
	m.CacheEvents.WithLabelValues(name).Inc()
}

func (m *Metrics) upstream(op string, err error) {
	if m == nil {
		return
	}
	result := resultOK
	if err != nil {
		result = resultError
	}
	m.Upstream.WithLabelValues(op, result).Inc()
}
