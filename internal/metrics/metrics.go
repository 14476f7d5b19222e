// Package metrics exposes router activity as Prometheus metrics.
//
// Metrics collected:
//   - routerx_navigations_total: navigations by outcome and kind
//   - routerx_navigation_duration_seconds: navigation latency by kind
//   - routerx_interceptor_chain_duration_seconds: chain latency by outcome
//   - routerx_routes, routerx_pending_groups: registry sizes
//   - routerx_group_loads_total: group materializations by result
//   - routerx_executor_rejected_total, routerx_executor_panics_total
//   - routerx_main_loop_queue_length
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rickgao/routerx/route"
	"github.com/rickgao/routerx/router"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "routerx"

// Config configures the metrics.
type Config struct {
	// Namespace is the metrics namespace (default: "routerx").
	Namespace string

	// Buckets are the histogram buckets (default: prometheus.DefBuckets).
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Metrics implements router.Observer.
type Metrics struct {
	cfg     Config
	factory promauto.Factory

	navigations        *prometheus.CounterVec
	navigationDuration *prometheus.HistogramVec
	chainDuration      *prometheus.HistogramVec

	watchOnce sync.Once
}

var _ router.Observer = (*Metrics)(nil)

// New registers the navigation metrics with cfg.Registry.
func New(cfg Config) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if len(cfg.Buckets) == 0 {
		cfg.Buckets = prometheus.DefBuckets
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(cfg.Registry)

	return &Metrics{
		cfg:     cfg,
		factory: factory,

		navigations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "navigations_total",
			Help:      "Total navigations by outcome and target kind",
		}, []string{"outcome", "kind"}),

		navigationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "navigation_duration_seconds",
			Help:      "Navigation duration in seconds, from resolution to dispatch",
			Buckets:   cfg.Buckets,
		}, []string{"kind"}),

		chainDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "interceptor_chain_duration_seconds",
			Help:      "Interceptor chain duration in seconds by outcome",
			Buckets:   cfg.Buckets,
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveNavigation(outcome string, kind route.Kind, elapsed time.Duration) {
	m.navigations.WithLabelValues(outcome, kind.String()).Inc()
	m.navigationDuration.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveChain(outcome string, elapsed time.Duration) {
	m.chainDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// Watch registers metrics read from stats at scrape time. Only the first call
// registers anything.
func (m *Metrics) Watch(stats func() router.Stats) {
	m.watchOnce.Do(func() {
		ns := m.cfg.Namespace

		m.factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "routes",
			Help:      "Number of materialized routes",
		}, func() float64 { return float64(stats().Registry.Routes) })

		m.factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "pending_groups",
			Help:      "Number of route groups not loaded yet",
		}, func() float64 { return float64(stats().Registry.PendingGroups) })

		m.factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "group_loads_total",
			Help:        "Total group materializations by result",
			ConstLabels: prometheus.Labels{"result": "ok"},
		}, func() float64 { return float64(stats().Registry.GroupsLoaded) })

		m.factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "group_loads_total",
			Help:        "Total group materializations by result",
			ConstLabels: prometheus.Labels{"result": "error"},
		}, func() float64 { return float64(stats().Registry.LoadFailures) })

		m.factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "executor_rejected_total",
			Help:      "Total tasks rejected because the executor queue was full",
		}, func() float64 { return float64(stats().Pool.Rejected) })

		m.factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "executor_panics_total",
			Help:      "Total executor tasks that panicked",
		}, func() float64 { return float64(stats().Pool.Panics) })

		m.factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "main_loop_queue_length",
			Help:      "Functions waiting on the main loop",
		}, func() float64 { return float64(stats().Loop.Len) })
	})
}
