package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"crm-service/pkg/config"
)

const defaultPrefix = "crm"

var (
	// HTTP request metrics
	HttpRequestsTotal   *prometheus.CounterVec
	HttpRequestDuration *prometheus.HistogramVec

	// Tenant resolution outcomes: hit, miss, invalid_host, error
	TenantResolutionsCounter *prometheus.CounterVec

	// Authentication metrics
	AuthAttemptsCounter prometheus.Counter
	AuthErrorsCounter   *prometheus.CounterVec

	// Bitácora metrics
	AuditRecordsCounter  *prometheus.CounterVec
	AuditFailuresCounter prometheus.Counter

	// Database operation metrics
	DbOperationDuration *prometheus.HistogramVec

	// Catalog metrics
	ProductOperationsCounter  *prometheus.CounterVec
	CategoryOperationsCounter *prometheus.CounterVec

	// Prediction proxy metrics
	PredictionRequestsCounter *prometheus.CounterVec
	PredictionDuration        prometheus.Histogram
)

func init() {
	build(defaultPrefix)
}

// build creates every collector under prefix without registering them, so
// packages can record metrics in tests before InitMetrics ran.
func build(prefix string) {
	HttpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	TenantResolutionsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_tenant_resolutions_total",
			Help: "Total number of tenant resolutions by result",
		},
		[]string{"result"},
	)

	AuthAttemptsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_auth_attempts_total",
			Help: "Total number of credential checks",
		},
	)

	AuthErrorsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_auth_errors_total",
			Help: "Total number of rejected authentications by reason",
		},
		[]string{"reason"},
	)

	AuditRecordsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_audit_records_total",
			Help: "Total number of bitácora records written",
		},
		[]string{"action"},
	)

	AuditFailuresCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_audit_failures_total",
			Help: "Total number of bitácora records that could not be written",
		},
	)

	DbOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation_type"},
	)

	ProductOperationsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_product_operations_total",
			Help: "Total number of product operations",
		},
		[]string{"operation"},
	)

	CategoryOperationsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_category_operations_total",
			Help: "Total number of category operations",
		},
		[]string{"operation"},
	)

	PredictionRequestsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_prediction_requests_total",
			Help: "Total number of forwarded prediction requests by outcome",
		},
		[]string{"outcome"},
	)

	PredictionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    prefix + "_prediction_duration_seconds",
			Help:    "Duration of prediction service calls in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)
}

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		HttpRequestsTotal,
		HttpRequestDuration,
		TenantResolutionsCounter,
		AuthAttemptsCounter,
		AuthErrorsCounter,
		AuditRecordsCounter,
		AuditFailuresCounter,
		DbOperationDuration,
		ProductOperationsCounter,
		CategoryOperationsCounter,
		PredictionRequestsCounter,
		PredictionDuration,
	}
}

// InitMetrics rebuilds the collectors under the configured prefix and
// registers them with reg. Call it once at startup.
func InitMetrics(config *config.Config, reg prometheus.Registerer) error {
	prefix := config.Metrics.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	build(prefix)

	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// TrackDBOperation returns a function that records the duration of a database operation
func TrackDBOperation(operationType string) func(startTime time.Time) {
	return func(startTime time.Time) {
		DbOperationDuration.WithLabelValues(operationType).Observe(time.Since(startTime).Seconds())
	}
}

// RecordTenantResolution counts one tenant lookup outcome
func RecordTenantResolution(result string) {
	TenantResolutionsCounter.WithLabelValues(result).Inc()
}

// RecordAuthAttempt counts one credential check
func RecordAuthAttempt() {
	AuthAttemptsCounter.Inc()
}

// RecordAuthError counts one rejected authentication
func RecordAuthError(reason string) {
	AuthErrorsCounter.WithLabelValues(reason).Inc()
}

// RecordAuditRecord counts one written bitácora record
func RecordAuditRecord(action string) {
	AuditRecordsCounter.WithLabelValues(action).Inc()
}

// RecordAuditFailure counts one bitácora record that was dropped
func RecordAuditFailure() {
	AuditFailuresCounter.Inc()
}

// RecordProductOperation increments the counter for product operations
func RecordProductOperation(operation string) {
	ProductOperationsCounter.WithLabelValues(operation).Inc()
}

// RecordCategoryOperation increments the counter for category operations
func RecordCategoryOperation(operation string) {
	CategoryOperationsCounter.WithLabelValues(operation).Inc()
}

// RecordPrediction records one call to the prediction service
func RecordPrediction(outcome string, d time.Duration) {
	PredictionRequestsCounter.WithLabelValues(outcome).Inc()
	PredictionDuration.Observe(d.Seconds())
}
