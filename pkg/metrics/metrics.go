package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Upload metrics
	UploadsTotal *prometheus.CounterVec
	UploadBytes  *prometheus.CounterVec

	// STT metrics
	STTRequestsTotal *prometheus.CounterVec
	STTLatency       *prometheus.HistogramVec
	STTErrors        *prometheus.CounterVec

	// Pipeline metrics
	PipelineJobsTotal    *prometheus.CounterVec
	PipelineJobDuration  *prometheus.HistogramVec
	PipelineRetriesTotal *prometheus.CounterVec
	PipelineQueueDepth   prometheus.Gauge
	ActiveCalls          prometheus.Gauge

	// Analysis metrics
	MomentsDetected *prometheus.CounterVec
	CallsAnalyzed   *prometheus.CounterVec

	// TTS metrics
	TTSRequestsTotal     *prometheus.CounterVec
	TTSSynthesisDuration *prometheus.HistogramVec
	TTSFilesCleaned      prometheus.Counter

	// AMQP metrics
	AMQPPublishedMessages *prometheus.CounterVec
	AMQPConnectionErrors  *prometheus.CounterVec
	AMQPReconnectAttempts *prometheus.CounterVec
	AMQPConnectionStatus  prometheus.Gauge

	registry     *prometheus.Registry
	registryOnce sync.Once

	metricsEnabled     = true
	defaultMetricsPath = "/metrics"
)

// Init initializes all Prometheus metrics for the application
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		// Initialize HTTP metrics
		HTTPRequestsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcoach_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		)

		HTTPRequestDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callcoach_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		)

		// Initialize upload metrics
		UploadsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcoach_uploads_total",
				Help: "Total number of audio uploads",
			},
			[]string{"format", "status"},
		)

		UploadBytes = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcoach_upload_bytes_total",
				Help: "Total number of audio bytes uploaded",
			},
			[]string{"format"},
		)

		// Initialize STT metrics
		STTRequestsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcoach_stt_requests_total",
				Help: "Total number of STT requests",
			},
			[]string{"provider", "status"},
		)

		STTLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callcoach_stt_latency_seconds",
				Help:    "Latency of STT requests",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~100s
			},
			[]string{"provider"},
		)

		STTErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcoach_stt_errors_total",
				Help: "Total number of STT errors",
			},
			[]string{"provider", "error_type"},
		)

		// Initialize pipeline metrics
		PipelineJobsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcoach_pipeline_jobs_total",
				Help: "Total number of pipeline jobs by kind and final status",
			},
			[]string{"kind", "status"},
		)

		PipelineJobDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callcoach_pipeline_job_duration_seconds",
				Help:    "Duration of pipeline job processing",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 500ms to ~256s
			},
			[]string{"kind"},
		)

		PipelineRetriesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcoach_pipeline_retries_total",
				Help: "Total number of pipeline job retries",
			},
			[]string{"kind"},
		)

		PipelineQueueDepth = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "callcoach_pipeline_queue_depth",
				Help: "Number of jobs currently waiting in the analysis queue",
			},
		)

		ActiveCalls = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "callcoach_active_calls",
				Help: "Number of calls currently being processed",
			},
		)

		// Initialize analysis metrics
		MomentsDetected = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcoach_moments_detected_total",
				Help: "Total number of coachable moments detected",
			},
			[]string{"moment_type"},
		)

		CallsAnalyzed = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcoach_calls_analyzed_total",
				Help: "Total number of calls analyzed by predicted outcome",
			},
			[]string{"outcome"},
		)

		// Initialize TTS metrics
		TTSRequestsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcoach_tts_requests_total",
				Help: "Total number of TTS synthesis requests",
			},
			[]string{"engine", "status"},
		)

		TTSSynthesisDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callcoach_tts_synthesis_duration_seconds",
				Help:    "Duration of TTS synthesis",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
			[]string{"engine"},
		)

		TTSFilesCleaned = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "callcoach_tts_files_cleaned_total",
				Help: "Total number of expired TTS files removed by cleanup",
			},
		)

		// Initialize AMQP metrics
		AMQPPublishedMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcoach_amqp_published_messages_total",
				Help: "Total number of messages published to AMQP",
			},
			[]string{"event", "status"},
		)

		AMQPConnectionErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcoach_amqp_connection_errors_total",
				Help: "Total number of AMQP connection errors",
			},
			[]string{"error_type"},
		)

		AMQPReconnectAttempts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcoach_amqp_reconnect_attempts_total",
				Help: "Total number of AMQP reconnection attempts",
			},
			[]string{"status"},
		)

		AMQPConnectionStatus = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "callcoach_amqp_connection_status",
				Help: "Status of AMQP connection (1 = connected, 0 = disconnected)",
			},
		)

		// Register all metrics
		registry.MustRegister(
			// HTTP metrics
			HTTPRequestsTotal,
			HTTPRequestDuration,

			// Upload metrics
			UploadsTotal,
			UploadBytes,

			// STT metrics
			STTRequestsTotal,
			STTLatency,
			STTErrors,

			// Pipeline metrics
			PipelineJobsTotal,
			PipelineJobDuration,
			PipelineRetriesTotal,
			PipelineQueueDepth,
			ActiveCalls,

			// Analysis metrics
			MomentsDetected,
			CallsAnalyzed,

			// TTS metrics
			TTSRequestsTotal,
			TTSSynthesisDuration,
			TTSFilesCleaned,

			// AMQP metrics
			AMQPPublishedMessages,
			AMQPConnectionErrors,
			AMQPReconnectAttempts,
			AMQPConnectionStatus,
		)

		logger.Info("Prometheus metrics initialized")
	})
}

// StartMetrics initializes the metrics service
func StartMetrics(logger *logrus.Logger, enabled bool) {
	if !enabled {
		EnableMetrics(false)
		logger.Info("Metrics collection is disabled")
		return
	}

	Init(logger)
	EnableMetrics(true)
	logger.WithField("metrics_path", defaultMetricsPath).Info("Metrics endpoint initialized")
}

// GetRegistry returns the prometheus registry
func GetRegistry() *prometheus.Registry {
	return registry
}

// SetMetricsPath sets the HTTP path for metrics endpoint
func SetMetricsPath(path string) {
	defaultMetricsPath = path
}

// EnableMetrics enables or disables metrics collection
func EnableMetrics(enabled bool) {
	metricsEnabled = enabled
}

// IsMetricsEnabled returns whether metrics are enabled
func IsMetricsEnabled() bool {
	return metricsEnabled
}

// RegisterHandler registers the metrics HTTP handler
func RegisterHandler(mux *http.ServeMux) {
	if metricsEnabled {
		handler := promhttp.HandlerFor(
			registry,
			promhttp.HandlerOpts{
				EnableOpenMetrics: true,
				Registry:          registry,
			},
		)
		mux.Handle(defaultMetricsPath, handler)
	}
}

// RecordHTTPRequest records a completed HTTP request
func RecordHTTPRequest(method, path, status string) {
	if metricsEnabled && HTTPRequestsTotal != nil {
		HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	}
}

// ObserveHTTPRequest records HTTP handler latency with a timer function
func ObserveHTTPRequest(method, path string) func() {
	if !metricsEnabled || HTTPRequestDuration == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// RecordUpload records an audio upload attempt
func RecordUpload(format, status string, bytes int64) {
	if !metricsEnabled || UploadsTotal == nil {
		return
	}
	UploadsTotal.WithLabelValues(format, status).Inc()
	if bytes > 0 {
		UploadBytes.WithLabelValues(format).Add(float64(bytes))
	}
}

// RecordSTTRequest records metrics for an STT request
func RecordSTTRequest(provider, status string) {
	if metricsEnabled && STTRequestsTotal != nil {
		STTRequestsTotal.WithLabelValues(provider, status).Inc()
	}
}

// RecordSTTError records an STT failure
func RecordSTTError(provider, errorType string) {
	if metricsEnabled && STTErrors != nil {
		STTErrors.WithLabelValues(provider, errorType).Inc()
	}
}

// ObserveSTTLatency records STT latency with a timer function
func ObserveSTTLatency(provider string) func() {
	if !metricsEnabled || STTLatency == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		STTLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	}
}

// RecordJobResult records a pipeline job reaching a final status
func RecordJobResult(kind, status string) {
	if metricsEnabled && PipelineJobsTotal != nil {
		PipelineJobsTotal.WithLabelValues(kind, status).Inc()
	}
}

// RecordJobRetry records a pipeline job being requeued after a failure
func RecordJobRetry(kind string) {
	if metricsEnabled && PipelineRetriesTotal != nil {
		PipelineRetriesTotal.WithLabelValues(kind).Inc()
	}
}

// ObserveJobDuration records pipeline job processing time with a timer function
func ObserveJobDuration(kind string) func() {
	if !metricsEnabled || PipelineJobDuration == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		PipelineJobDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}
}

// SetQueueDepth sets the number of jobs waiting in the queue
func SetQueueDepth(depth int) {
	if metricsEnabled && PipelineQueueDepth != nil {
		PipelineQueueDepth.Set(float64(depth))
	}
}

// StartCallTimer marks a call as active and returns a function that
// releases it when processing finishes
func StartCallTimer() func() {
	if !metricsEnabled || ActiveCalls == nil {
		return func() {}
	}

	ActiveCalls.Inc()
	return func() {
		if ActiveCalls != nil {
			ActiveCalls.Dec()
		}
	}
}

// RecordMomentsDetected records detected coachable moments by type
func RecordMomentsDetected(momentType string, count int) {
	if metricsEnabled && MomentsDetected != nil && count > 0 {
		MomentsDetected.WithLabelValues(momentType).Add(float64(count))
	}
}

// RecordCallAnalyzed records a completed analysis by predicted outcome
func RecordCallAnalyzed(outcome string) {
	if metricsEnabled && CallsAnalyzed != nil {
		CallsAnalyzed.WithLabelValues(outcome).Inc()
	}
}

// RecordTTSRequest records a TTS synthesis attempt
func RecordTTSRequest(engine, status string) {
	if metricsEnabled && TTSRequestsTotal != nil {
		TTSRequestsTotal.WithLabelValues(engine, status).Inc()
	}
}

// ObserveTTSSynthesis records TTS synthesis time with a timer function
func ObserveTTSSynthesis(engine string) func() {
	if !metricsEnabled || TTSSynthesisDuration == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		TTSSynthesisDuration.WithLabelValues(engine).Observe(time.Since(start).Seconds())
	}
}

// RecordTTSFilesCleaned records expired TTS files removed by the janitor
func RecordTTSFilesCleaned(count int) {
	if metricsEnabled && TTSFilesCleaned != nil && count > 0 {
		TTSFilesCleaned.Add(float64(count))
	}
}

// RecordAMQPPublish records metrics for an AMQP publish
func RecordAMQPPublish(event, status string) {
	if metricsEnabled && AMQPPublishedMessages != nil {
		AMQPPublishedMessages.WithLabelValues(event, status).Inc()
	}
}

// RecordAMQPConnectionError records an AMQP connection error
func RecordAMQPConnectionError(errorType string) {
	if metricsEnabled && AMQPConnectionErrors != nil {
		AMQPConnectionErrors.WithLabelValues(errorType).Inc()
	}
}

// RecordAMQPReconnect records an AMQP reconnection attempt
func RecordAMQPReconnect(status string) {
	if metricsEnabled && AMQPReconnectAttempts != nil {
		AMQPReconnectAttempts.WithLabelValues(status).Inc()
	}
}

// SetAMQPConnectionStatus sets the AMQP connection status
func SetAMQPConnectionStatus(connected bool) {
	if metricsEnabled && AMQPConnectionStatus != nil {
		if connected {
			AMQPConnectionStatus.Set(1)
		} else {
			AMQPConnectionStatus.Set(0)
		}
	}
}
