package router

import (
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts router operations and cache lookups. A nil *Metrics records
// nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	cache      *prometheus.CounterVec
}

// NewMetrics creates the router collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "repository_router",
			Name:      "operations_total",
			Help:      "Router operations by router and operation.",
		}, []string{"router", "operation"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "repository_router",
			Name:      "operation_failures_total",
			Help:      "Router operations that returned an error.",
		}, []string{"router", "operation"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "repository_router",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups on find by result: hit, miss, expired or error.",
		}, []string{"router", "result"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.operations, m.failures, m.cache} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Annotate(err, "registering router metrics")
		}
	}
	return m, nil
}

func (m *Metrics) observe(router string, op Operation, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(router, string(op)).Inc()
	if err != nil {
		m.failures.WithLabelValues(router, string(op)).Inc()
	}
}

func (m *Metrics) cacheLookup(router string, status cacheStatus) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(router, status.String()).Inc()
}
