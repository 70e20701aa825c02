package kit

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterDeps configures the stack every service handler starts from.
type RouterDeps struct {
	Log      *zap.Logger
	Service  string
	Registry *prometheus.Registry

	MetricsEnabled bool
	MetricsToken   string
}

// NewRouter returns a router with request ids, panic recovery and request
// logging. With a registry it also records HTTP metrics, and serves them on
// /metrics behind MetricsAuth when MetricsEnabled is set.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, Recoverer, Logging(deps.Log))

	if deps.Registry == nil {
		return r
	}
	r.Use(NewMetrics(deps.Registry).Middleware(deps.Service))

	if deps.MetricsEnabled {
		r.With(MetricsAuth(deps.MetricsToken)).
			Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}
	return r
}
