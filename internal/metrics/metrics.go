package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	BookingsTotal      *prometheus.CounterVec
	TransitionsTotal   *prometheus.CounterVec
	PrescriptionsTotal *prometheus.CounterVec
	StockRejectedTotal prometheus.Counter
	InvoicesPaidTotal  prometheus.Counter
	SlotCacheLookups   *prometheus.CounterVec
}

// NewCollector registers every metric on a private registry so tests can build as many collectors as they like.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route"}),

		BookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome (created, conflict, rejected, error).",
		}, []string{"outcome"}),

		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "transitions_total",
			Help:      "Appointment status transitions by target status.",
		}, []string{"to"}),

		PrescriptionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "clinical",
			Name:      "prescriptions_total",
			Help:      "Visit completion transactions by outcome.",
		}, []string{"outcome"}),

		StockRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pharmacy",
			Name:      "stock_rejections_total",
			Help:      "Prescriptions rejected for insufficient stock.",
		}),

		InvoicesPaidTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "invoices_paid_total",
			Help:      "Invoices moved from unpaid to paid.",
		}),

		SlotCacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "slot_cache_lookups_total",
			Help:      "Available-slot cache lookups by result (hit, miss, error).",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.RequestsTotal,
		c.RequestDuration,
		c.BookingsTotal,
		c.TransitionsTotal,
		c.PrescriptionsTotal,
		c.StockRejectedTotal,
		c.InvoicesPaidTotal,
		c.SlotCacheLookups,
	)

	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// The recording helpers are nil-safe so services can run without metrics in tests.

func (c *Collector) Booking(outcome string) {
	if c == nil {
		return
	}
	c.BookingsTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) Transition(to string) {
	if c == nil {
		return
	}
	c.TransitionsTotal.WithLabelValues(to).Inc()
}

func (c *Collector) Prescription(outcome string) {
	if c == nil {
		return
	}
	c.PrescriptionsTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) StockRejected() {
	if c == nil {
		return
	}
	c.StockRejectedTotal.Inc()
}

func (c *Collector) InvoicePaid() {
	if c == nil {
		return
	}
	c.InvoicesPaidTotal.Inc()
}

func (c *Collector) SlotCache(result string) {
	if c == nil {
		return
	}
	c.SlotCacheLookups.WithLabelValues(result).Inc()
}
