package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	DirectoryEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "directory_entries",
			Help: "Number of registered components per kind (count)",
		},
		[]string{"kind"},
	)

	DirectoryOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_operations_total",
			Help: "Total number of directory operations by result (count)",
		},
		[]string{"operation", "kind", "result"},
	)

	DirectoryMirrorDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "directory_mirror_dropped_total",
			Help: "Total number of mirror updates dropped because the queue was full (count)",
		},
	)

	DispatchEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_events_total",
			Help: "Total number of events handled by dispatch routers (count)",
		},
		[]string{"router", "status"},
	)

	DispatchLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_lookups_total",
			Help: "Total number of directory lookups issued by dispatch routers (count)",
		},
		[]string{"router", "result"},
	)

	DispatchCacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_cache_hits_total",
			Help: "Total number of destinations resolved from router cache (count)",
		},
		[]string{"router"},
	)

	NodeMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "node_messages_total",
			Help: "Total number of messages processed by nodes (count)",
		},
		[]string{"pipeline", "node", "status"},
	)

	NodeProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "node_processing_duration_ms",
			Help:    "Node processing duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"pipeline", "node"},
	)

	NodeBufferDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "node_buffer_dropped_total",
			Help: "Total number of messages dropped from a node's pre-activation buffer (count)",
		},
		[]string{"pipeline", "node"},
	)

	PipelineSetupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_setups_total",
			Help: "Total number of pipeline setup outcomes by reason (count)",
		},
		[]string{"result"},
	)

	PipelinesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipelines_active",
			Help: "Number of pipelines currently ready (count)",
		},
	)

	SinkWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sink_writes_total",
			Help: "Total number of sink writes (count)",
		},
		[]string{"sink", "status"},
	)

	SinkWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sink_write_duration_ms",
			Help:    "Duration of sink writes in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"sink"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
	)

	KafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag (difference between latest offset and committed offset) (count)",
		},
		[]string{"service", "topic", "partition"},
	)

	KafkaReadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_read_duration_ms",
			Help:    "Duration of reading messages from Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "database", "operation"},
	)

	MailboxQueueSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mailbox_queue_size",
			Help: "Current number of queued closures in a component mailbox (count)",
		},
		[]string{"component"},
	)
)

var (
	engineOnce   sync.Once
	brokerOnce   sync.Once
	breakerOnce  sync.Once
	adminOnce    sync.Once
	databaseOnce sync.Once
)

func RegisterEngineMetrics() {
	engineOnce.Do(func() {
		prometheus.MustRegister(DirectoryEntries)
		prometheus.MustRegister(DirectoryOperationsTotal)
		prometheus.MustRegister(DirectoryMirrorDroppedTotal)
		prometheus.MustRegister(DispatchEventsTotal)
		prometheus.MustRegister(DispatchLookupsTotal)
		prometheus.MustRegister(DispatchCacheHitsTotal)
		prometheus.MustRegister(NodeMessagesTotal)
		prometheus.MustRegister(NodeProcessingDuration)
		prometheus.MustRegister(NodeBufferDroppedTotal)
		prometheus.MustRegister(PipelineSetupsTotal)
		prometheus.MustRegister(PipelinesActive)
		prometheus.MustRegister(SinkWritesTotal)
		prometheus.MustRegister(SinkWriteDuration)
		prometheus.MustRegister(MailboxQueueSize)
	})
}

func RegisterBrokerMetrics() {
	brokerOnce.Do(func() {
		prometheus.MustRegister(RetryAttemptsTotal)
		prometheus.MustRegister(DLQMessagesTotal)
		prometheus.MustRegister(KafkaMessagesReadTotal)
		prometheus.MustRegister(KafkaMessagesWrittenTotal)
		prometheus.MustRegister(KafkaMessageSizeBytes)
		prometheus.MustRegister(KafkaConsumerLag)
		prometheus.MustRegister(KafkaReadDuration)
		prometheus.MustRegister(KafkaWriteDuration)
	})
}

func RegisterCircuitBreakerMetrics() {
	breakerOnce.Do(func() {
		prometheus.MustRegister(CircuitBreakerState)
		prometheus.MustRegister(CircuitBreakerRequests)
		prometheus.MustRegister(CircuitBreakerFailures)
	})
}

func RegisterAdminMetrics() {
	adminOnce.Do(func() {
		prometheus.MustRegister(RateLimitRequestsTotal)
	})
}

func RegisterDatabaseMetrics() {
	databaseOnce.Do(func() {
		prometheus.MustRegister(DatabaseQueriesTotal)
		prometheus.MustRegister(DatabaseQueryDuration)
	})
}

func RecordDirectoryOperation(operation, kind, result string) {
	DirectoryOperationsTotal.WithLabelValues(operation, kind, result).Inc()
}

func SetDirectoryEntries(kind string, count int) {
	DirectoryEntries.WithLabelValues(kind).Set(float64(count))
}

func IncDispatchEvent(router, status string) {
	DispatchEventsTotal.WithLabelValues(router, status).Inc()
}

func IncDispatchLookup(router, result string) {
	DispatchLookupsTotal.WithLabelValues(router, result).Inc()
}

func AddDispatchCacheHits(router string, n int) {
	DispatchCacheHitsTotal.WithLabelValues(router).Add(float64(n))
}

func ObserveNodeProcessing(pipeline, node, status string, duration time.Duration) {
	NodeMessagesTotal.WithLabelValues(pipeline, node, status).Inc()
	NodeProcessingDuration.WithLabelValues(pipeline, node).Observe(float64(duration.Milliseconds()))
}

func IncNodeBufferDropped(pipeline, node string) {
	NodeBufferDroppedTotal.WithLabelValues(pipeline, node).Inc()
}

func IncPipelineSetup(result string) {
	PipelineSetupsTotal.WithLabelValues(result).Inc()
}

func SetPipelinesActive(count int) {
	PipelinesActive.Set(float64(count))
}

func ObserveSinkWrite(sink, status string, duration time.Duration) {
	SinkWritesTotal.WithLabelValues(sink, status).Inc()
	SinkWriteDuration.WithLabelValues(sink).Observe(float64(duration.Milliseconds()))
}

func SetMailboxQueueSize(component string, size int) {
	MailboxQueueSize.WithLabelValues(component).Set(float64(size))
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func SetKafkaConsumerLag(service, topic string, partition int, lag int64) {
	KafkaConsumerLag.WithLabelValues(service, topic, fmt.Sprintf("%d", partition)).Set(float64(lag))
}

func ObserveKafkaReadDuration(service, topic string, duration time.Duration) {
	KafkaReadDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func IncDatabaseQuery(service, database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(service, database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(service, database, operation).Observe(float64(duration.Milliseconds()))
}
