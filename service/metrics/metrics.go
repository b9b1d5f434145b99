package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector in the process. Components take a
// *Metrics and skip recording when it is nil.
type Metrics struct {
	// Node request metrics
	nodeRequestsTotal   *prometheus.CounterVec
	nodeRequestDuration *prometheus.HistogramVec
	nodeDemotionsTotal  *prometheus.CounterVec
	callsTotal          *prometheus.CounterVec
	allowedNodes        *prometheus.GaugeVec
	clockDeltaSeconds   *prometheus.GaugeVec

	// Health sweep metrics
	probesTotal   *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec

	// Signing metrics
	transactionsSignedTotal *prometheus.CounterVec

	// Database metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections prometheus.Gauge
	sseEventsSent        *prometheus.CounterVec

	// NATS metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors. A nil registry means
// prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		nodeRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "node_requests_total",
				Help: "Total number of request attempts against remote nodes by outcome",
			},
			[]string{"chain", "node", "outcome"},
		),
		nodeRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "node_request_duration_seconds",
				Help:    "Duration of a single request attempt against a node",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"chain", "node"},
		),
		nodeDemotionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "node_demotions_total",
				Help: "Total number of times a node was marked offline after a network failure",
			},
			[]string{"chain", "node"},
		),
		callsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "api_calls_total",
				Help: "Total number of logical API calls by terminal result",
			},
			[]string{"chain", "result"},
		),
		allowedNodes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "allowed_nodes",
				Help: "Number of nodes currently eligible for requests",
			},
			[]string{"chain"},
		),
		clockDeltaSeconds: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "node_clock_delta_seconds",
				Help: "Most recent local minus server clock delta",
			},
			[]string{"chain"},
		),

		probesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "node_probes_total",
				Help: "Total number of health probes by transport and result",
			},
			[]string{"chain", "transport", "result"},
		),
		probeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "node_probe_duration_seconds",
				Help:    "Duration of node health probes",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"chain", "transport"},
		),

		transactionsSignedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_signed_total",
				Help: "Total number of transactions signed locally",
			},
			[]string{"status"},
		),

		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"event_type"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Node request helpers

// RecordNodeRequest records one attempt against one node.
// outcome is one of "success", "network_error", "app_error", "cancelled".
func (m *Metrics) RecordNodeRequest(chain, node, outcome string, duration float64) {
	m.nodeRequestsTotal.WithLabelValues(chain, node, outcome).Inc()
	m.nodeRequestDuration.WithLabelValues(chain, node).Observe(duration)
}

func (m *Metrics) RecordNodeDemotion(chain, node string) {
	m.nodeDemotionsTotal.WithLabelValues(chain, node).Inc()
}

// RecordCall records the terminal result of a logical call.
func (m *Metrics) RecordCall(chain, result string) {
	m.callsTotal.WithLabelValues(chain, result).Inc()
}

func (m *Metrics) SetAllowedNodes(chain string, count int) {
	m.allowedNodes.WithLabelValues(chain).Set(float64(count))
}

func (m *Metrics) SetClockDelta(chain string, seconds float64) {
	m.clockDeltaSeconds.WithLabelValues(chain).Set(seconds)
}

// Health sweep helpers

// RecordProbe records a health probe. transport is "http" or "ws".
func (m *Metrics) RecordProbe(chain, transport string, ok bool, duration float64) {
	result := "ok"
	if !ok {
		result = "fail"
	}
	m.probesTotal.WithLabelValues(chain, transport, result).Inc()
	m.probeDuration.WithLabelValues(chain, transport).Observe(duration)
}

// Signing helpers

func (m *Metrics) RecordTransactionSigned(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.transactionsSignedTotal.WithLabelValues(status).Inc()
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

func (m *Metrics) RecordSSEConnectionChange(delta float64) {
	m.sseActiveConnections.Add(delta)
}

func (m *Metrics) RecordSSEEventSent(eventType string) {
	m.sseEventsSent.WithLabelValues(eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
