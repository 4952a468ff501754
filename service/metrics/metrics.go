package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal    *prometheus.CounterVec
	solanaRPCCallDuration  *prometheus.HistogramVec
	solanaRPCRateLimitHits *prometheus.CounterVec

	// Pipeline Metrics
	lookupTablesTotal        *prometheus.CounterVec
	lookupTableAddresses     prometheus.Histogram
	setupInstructionsTotal   *prometheus.CounterVec
	messageSizeBytes         prometheus.Histogram
	messageAccountKeys       prometheus.Histogram
	swapsTotal               *prometheus.CounterVec
	swapDuration             *prometheus.HistogramVec
	priorityFeeMicroLamports prometheus.Histogram

	// Aggregator Metrics
	jupiterRequestsTotal   *prometheus.CounterVec
	jupiterRequestDuration *prometheus.HistogramVec

	// Workflow Metrics
	swapWorkflowDuration        *prometheus.HistogramVec
	swapWorkflowExecutionsTotal *prometheus.CounterVec
	swapActivityDuration        *prometheus.HistogramVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),

		// Pipeline Metrics
		lookupTablesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapper_lookup_tables_total",
				Help: "Lookup tables requested, by outcome (resolved, dropped)",
			},
			[]string{"result"},
		),
		lookupTableAddresses: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "swapper_lookup_table_addresses",
				Help:    "Number of addresses held by each resolved lookup table",
				Buckets: []float64{1, 8, 32, 64, 128, 256},
			},
		),
		setupInstructionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapper_setup_instructions_total",
				Help: "Setup instructions seen while compiling, by outcome (included, skipped)",
			},
			[]string{"result"},
		),
		messageSizeBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "swapper_message_size_bytes",
				Help:    "Serialized size of signed swap transactions",
				Buckets: []float64{256, 512, 768, 1024, 1232},
			},
		),
		messageAccountKeys: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "swapper_message_account_keys",
				Help:    "Total account references per compiled message, static and looked up",
				Buckets: []float64{8, 16, 32, 64, 128, 256},
			},
		),
		swapsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapper_swaps_total",
				Help: "Pipeline runs by the last state reached",
			},
			[]string{"state"},
		),
		swapDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swapper_swap_duration_seconds",
				Help:    "Duration of a full pipeline run in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"state"},
		),
		priorityFeeMicroLamports: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "swapper_priority_fee_micro_lamports",
				Help:    "Compute unit price attached to compiled messages",
				Buckets: prometheus.ExponentialBuckets(1000, 10, 7),
			},
		),

		// Aggregator Metrics
		jupiterRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jupiter_requests_total",
				Help: "Total number of aggregator API requests",
			},
			[]string{"endpoint", "status"},
		),
		jupiterRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jupiter_request_duration_seconds",
				Help:    "Duration of aggregator API requests in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"endpoint"},
		),

		// Workflow Metrics
		swapWorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swap_workflow_duration_seconds",
				Help:    "Duration of swap workflow execution in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		swapWorkflowExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swap_workflow_executions_total",
				Help: "Total number of swap workflow executions",
			},
			[]string{"status"},
		),
		swapActivityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swap_activity_duration_seconds",
				Help:    "Duration of swap workflow activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"activity", "status"},
		),

		// Database Metrics
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

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
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

		// NATS Metrics
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

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.solanaRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// Pipeline metric helpers

// RecordLookupTables records count tables with the given outcome ("resolved" or "dropped").
func (m *Metrics) RecordLookupTables(result string, count int) {
	m.lookupTablesTotal.WithLabelValues(result).Add(float64(count))
}

// RecordLookupTableSize records the address count of one resolved table.
func (m *Metrics) RecordLookupTableSize(addresses int) {
	m.lookupTableAddresses.Observe(float64(addresses))
}

// RecordSetupInstruction records a setup instruction outcome ("included" or "skipped").
func (m *Metrics) RecordSetupInstruction(result string) {
	m.setupInstructionsTotal.WithLabelValues(result).Inc()
}

// RecordCompiledMessage records the shape of a compiled message.
func (m *Metrics) RecordCompiledMessage(signedSize, accountKeys int) {
	m.messageSizeBytes.Observe(float64(signedSize))
	m.messageAccountKeys.Observe(float64(accountKeys))
}

// RecordPriorityFee records the compute unit price attached to a message.
func (m *Metrics) RecordPriorityFee(microLamports uint64) {
	m.priorityFeeMicroLamports.Observe(float64(microLamports))
}

// RecordSwap records a finished pipeline run by its final state.
func (m *Metrics) RecordSwap(state string, duration float64) {
	m.swapsTotal.WithLabelValues(state).Inc()
	m.swapDuration.WithLabelValues(state).Observe(duration)
}

// Aggregator metric helpers

// RecordJupiterRequest records one aggregator API call.
func (m *Metrics) RecordJupiterRequest(endpoint string, statusCode int, duration float64) {
	m.jupiterRequestsTotal.WithLabelValues(endpoint, statusCodeToString(statusCode)).Inc()
	m.jupiterRequestDuration.WithLabelValues(endpoint).Observe(duration)
}

// Workflow metric helpers

// RecordWorkflowDuration records workflow execution duration.
func (m *Metrics) RecordWorkflowDuration(status string, duration float64) {
	m.swapWorkflowDuration.WithLabelValues(status).Observe(duration)
	m.swapWorkflowExecutionsTotal.WithLabelValues(status).Inc()
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity, status string, duration float64) {
	m.swapActivityDuration.WithLabelValues(activity, status).Observe(duration)
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

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
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
		return "error"
	}
}
