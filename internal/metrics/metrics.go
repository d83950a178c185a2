// Package metrics exports daemon counters in the Prometheus format.
package metrics

import (
	"net/http"

	"github.com/matheus3301/roombook/internal/domain"
	intsync "github.com/matheus3301/roombook/internal/sync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// QueueCounter reports the number of queued operations per status.
type QueueCounter func() (map[domain.OperationStatus]int64, error)

// Metrics holds the daemon collectors on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	syncPasses   *prometheus.CounterVec
	operations   *prometheus.CounterVec
	passDuration prometheus.Histogram
	online       prometheus.Gauge
	conflicts    prometheus.Counter
}

// New creates the collectors under the given namespace.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		syncPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_passes_total",
			Help:      "Replay passes by result.",
		}, []string{"result"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_operations_total",
			Help:      "Pending operations handled by replay, by outcome.",
		}, []string{"outcome"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_pass_duration_seconds",
			Help:      "Duration of replay passes.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "remote_online",
			Help:      "1 while the remote backend is reachable.",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_conflicts_total",
			Help:      "Booking attempts rejected because of conflicts.",
		}),
	}
	m.registry.MustRegister(
		m.syncPasses,
		m.operations,
		m.passDuration,
		m.online,
		m.conflicts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RegisterQueue exports queue depth per status, read at scrape time.
func (m *Metrics) RegisterQueue(namespace string, count QueueCounter) error {
	return m.registry.Register(&queueCollector{
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "pending_operations"),
			"Operations in the local queue by status.",
			[]string{"status"}, nil,
		),
		count: count,
	})
}

// RegisterDropped exports the number of bus events lost to slow subscribers.
func (m *Metrics) RegisterDropped(namespace string, dropped func() uint64) error {
	return m.registry.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bus_dropped_events_total",
		Help:      "Events dropped because a subscriber buffer was full.",
	}, func() float64 { return float64(dropped()) }))
}

// ObserveSync records a replay pass.
func (m *Metrics) ObserveSync(res intsync.Result, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.syncPasses.WithLabelValues(result).Inc()
	m.passDuration.Observe(res.Duration.Seconds())
	m.operations.WithLabelValues("processed").Add(float64(res.Processed))
	m.operations.WithLabelValues("failed").Add(float64(res.Failed))
	m.operations.WithLabelValues("skipped").Add(float64(res.Skipped))
	m.operations.WithLabelValues("quarantined").Add(float64(res.Quarantined))
}

// ObserveConnectivity records the remote reachability.
func (m *Metrics) ObserveConnectivity(online bool) {
	if online {
		m.online.Set(1)
		return
	}
	m.online.Set(0)
}

// ObserveConflict counts a rejected booking.
func (m *Metrics) ObserveConflict() {
	m.conflicts.Inc()
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

type queueCollector struct {
	desc  *prometheus.Desc
	count QueueCounter
}

func (c *queueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *queueCollector) Collect(ch chan<- prometheus.Metric) {
	counts, err := c.count()
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.desc, err)
		return
	}
	for _, s := range []domain.OperationStatus{domain.OpPending, domain.OpProcessed, domain.OpQuarantined} {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(counts[s]), string(s))
	}
}
