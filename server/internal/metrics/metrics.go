package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the server's collector set.
type Metrics struct {
	// Ingest metrics
	IngestTotal *prometheus.CounterVec // source, result: ok | unknown_node | rejected
	AlertsTotal *prometheus.CounterVec // kind, severity
	NodeStatus  *prometheus.GaugeVec   // node, category; 0=OK 1=WARNING 2=CRITICAL

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Delivery metrics
	WebhookDeliveries *prometheus.CounterVec // target, result: ok | failed
	KafkaDeadLetters  prometheus.Counter
	WSClients         prometheus.Gauge
}

// New creates and registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IngestTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jalsense_ingest_total",
				Help: "Telemetry ingestion attempts by transport and result",
			},
			[]string{"source", "result"},
		),
		AlertsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jalsense_alerts_total",
				Help: "Alerts appended to the ledger",
			},
			[]string{"kind", "severity"},
		),
		NodeStatus: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "jalsense_node_status",
				Help: "Current node status (0=OK, 1=WARNING, 2=CRITICAL)",
			},
			[]string{"node", "category"},
		),
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jalsense_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jalsense_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method", "path"},
		),
		WebhookDeliveries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jalsense_webhook_deliveries_total",
				Help: "Webhook delivery attempts by target type and result",
			},
			[]string{"target", "result"},
		),
		KafkaDeadLetters: f.NewCounter(
			prometheus.CounterOpts{
				Name: "jalsense_kafka_dead_letters_total",
				Help: "Kafka telemetry messages rejected and dead-lettered",
			},
		),
		WSClients: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "jalsense_ws_clients",
				Help: "Connected WebSocket clients",
			},
		),
	}
}

// ObserveIngest counts one ingestion attempt from source. A nil *Metrics is
// a no-op so transports can run without a registry in tests.
func (m *Metrics) ObserveIngest(source, result string) {
	if m == nil {
		return
	}
	m.IngestTotal.WithLabelValues(source, result).Inc()
}

// ObserveDelivery records one webhook delivery attempt. Its signature matches
// alerts.WithDeliveryObserver.
func (m *Metrics) ObserveDelivery(target string, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.WebhookDeliveries.WithLabelValues(target, result).Inc()
}
