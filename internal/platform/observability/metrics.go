package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the Prometheus collectors of the storefront. Each instance
// owns its registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	InFlightRequests  prometheus.Gauge
	RequestDuration   *prometheus.HistogramVec
	RequestTimeouts   *prometheus.CounterVec
	LateReplies       *prometheus.CounterVec
	OrdersCreated     *prometheus.CounterVec
	OrdersFailed      *prometheus.CounterVec
	OrdersDegraded    prometheus.Counter
	CartClearFailures prometheus.Counter
	StockUpdates      *prometheus.CounterVec
	KafkaForwarded    *prometheus.CounterVec
}

func NewMetrics(serviceName string) *Metrics {
	labels := prometheus.Labels{"service": serviceName}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		InFlightRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "correlator_in_flight_requests",
			Help:        "Requests waiting for a correlated reply",
			ConstLabels: labels,
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "correlator_request_duration_seconds",
			Help:        "Time from publishing a request to its resolution",
			ConstLabels: labels,
			Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"topic", "outcome"}),
		RequestTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "correlator_timeouts_total",
			Help:        "Requests that got no reply before their deadline",
			ConstLabels: labels,
		}, []string{"topic"}),
		LateReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "correlator_unmatched_replies_total",
			Help:        "Replies dropped because no request was waiting for them",
			ConstLabels: labels,
		}, []string{"topic"}),
		OrdersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "orders_created_total",
			Help:        "Orders persisted, by execution strategy",
			ConstLabels: labels,
		}, []string{"strategy"}),
		OrdersFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "orders_failed_total",
			Help:        "Order attempts that ended in an error, by error kind",
			ConstLabels: labels,
		}, []string{"kind"}),
		OrdersDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "orders_degraded_total",
			Help:        "Order attempts persisted without a transaction",
			ConstLabels: labels,
		}),
		CartClearFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "orders_cart_clear_failures_total",
			Help:        "Carts left populated after their order was placed",
			ConstLabels: labels,
		}),
		StockUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "stock_updates_total",
			Help:        "Order lines handled by the stock reactor, by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		KafkaForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "kafka_forwarded_messages_total",
			Help:        "Order broadcasts mirrored to Kafka, by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.InFlightRequests,
		m.RequestDuration,
		m.RequestTimeouts,
		m.LateReplies,
		m.OrdersCreated,
		m.OrdersFailed,
		m.OrdersDegraded,
		m.CartClearFailures,
		m.StockUpdates,
		m.KafkaForwarded,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
