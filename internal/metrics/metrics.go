package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

// NewServerMetrics registers the HTTP metrics with reg. A nil reg means the
// default registry.
func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	registerer(reg).MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

// OrderMetrics counts order lifecycle outcomes.
type OrderMetrics struct {
	Created        prometheus.Counter
	CreateFailures *prometheus.CounterVec
	Cancelled      *prometheus.CounterVec
	StageChanges   *prometheus.CounterVec
	StockAdjusted  *prometheus.CounterVec
}

func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	m := &OrderMetrics{
		Created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "created_total",
			Help:      "Orders created with a payment URL and committed stock.",
		}),
		CreateFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "create_failures_total",
			Help:      "Order creations that did not complete, by reason.",
		}, []string{"reason"}),
		Cancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "cancelled_total",
			Help:      "Orders cancelled, by role of the canceller.",
		}, []string{"role"}),
		StageChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "stage_changes_total",
			Help:      "Order stage transitions.",
		}, []string{"from", "to"}),
		StockAdjusted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "adjustments_total",
			Help:      "Inventory adjustments applied, by kind.",
		}, []string{"kind"}),
	}
	registerer(reg).MustRegister(m.Created, m.CreateFailures, m.Cancelled, m.StageChanges, m.StockAdjusted)
	return m
}

func registerer(reg prometheus.Registerer) prometheus.Registerer {
	if reg == nil {
		return prometheus.DefaultRegisterer
	}
	return reg
}

// HandlerFor serves the given registry.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
