package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector methods are safe to call on a nil *Collector.
type Collector struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	EventsPublished prometheus.Counter
	EventsFailed    prometheus.Counter
	EventsDropped   prometheus.Counter

	MissedMarked prometheus.Counter
}

func NewCollector(reg prometheus.Registerer, namespace string) *Collector {
	f := promauto.With(reg)
	return &Collector{
		OperationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "operations_total",
			Help:      "Booking operations by operation and outcome (ok or error kind).",
		}, []string{"operation", "outcome"}),

		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "operation_duration_seconds",
			Help:      "Booking operation latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query latency distribution.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"operation"}),

		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Database queries that returned an error.",
		}, []string{"operation"}),

		EventsPublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Appointment events delivered to the publisher.",
		}),

		EventsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "failed_total",
			Help:      "Appointment events the publisher rejected.",
		}),

		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Appointment events dropped due to a full buffer. Alert if non-zero.",
		}),

		MissedMarked: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "missed_marked_total",
			Help:      "Appointments moved to missed by the sweeper.",
		}),
	}
}

func (c *Collector) ObserveOperation(operation, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.OperationsTotal.WithLabelValues(operation, outcome).Inc()
	c.OperationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (c *Collector) ObserveQuery(operation string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.DBQueryDuration.WithLabelValues(operation).Observe(d.Seconds())
	if err != nil {
		c.DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

func (c *Collector) EventPublished() {
	if c != nil {
		c.EventsPublished.Inc()
	}
}

func (c *Collector) EventFailed() {
	if c != nil {
		c.EventsFailed.Inc()
	}
}

func (c *Collector) EventDropped() {
	if c != nil {
		c.EventsDropped.Inc()
	}
}

func (c *Collector) MissedMarkedAdd(n int) {
	if c != nil && n > 0 {
		c.MissedMarked.Add(float64(n))
	}
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
