// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// API metrics
	RequestCount   *prometheus.CounterVec
	RequestLatency *prometheus.HistogramVec

	// Prediction metrics
	Predictions     *prometheus.CounterVec
	BatchSize       prometheus.Histogram
	FraudRate       prometheus.Gauge
	ConfidenceScore prometheus.Histogram

	// Model metrics
	ModelLoaded  prometheus.Gauge
	ModelVersion prometheus.Gauge

	// Drift metrics
	PredictionDriftScore prometheus.Gauge
	LabelDriftScore      prometheus.Gauge
	DriftAlerts          *prometheus.CounterVec

	// Training metrics
	TrainingRuns     *prometheus.CounterVec
	TrainingDuration prometheus.Histogram

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "fraudlens"
	}

	return &Metrics{
		RequestCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		}, []string{"route", "status"}),
		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_latency_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"route"}),

		Predictions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "predictions_total",
			Help:      "Total number of predictions served by result",
		}, []string{"result"}),
		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "batch_size",
			Help:      "Number of transactions per scoring request",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		FraudRate: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "fraud_rate",
			Help:      "Fraction of transactions flagged fraudulent in the last batch",
		}),
		ConfidenceScore: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "confidence_score",
			Help:      "Distribution of served fraud probabilities",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),

		ModelLoaded: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "loaded",
			Help:      "Whether a model bundle is loaded (1) or not (0)",
		}),
		ModelVersion: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "version",
			Help:      "Version number of the loaded model bundle",
		}),

		PredictionDriftScore: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "drift",
			Name:      "prediction_ks_statistic",
			Help:      "KS statistic between live scores and the training reference",
		}),
		LabelDriftScore: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "drift",
			Name:      "label_rate_delta",
			Help:      "Absolute gap between observed fraud rate and training baseline",
		}),
		DriftAlerts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "drift",
			Name:      "alerts_total",
			Help:      "Total number of drift alerts by kind",
		}, []string{"kind"}),

		TrainingRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "runs_total",
			Help:      "Total number of training runs by status",
		}, []string{"status"}),
		TrainingDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "duration_seconds",
			Help:      "End-to-end training run duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordRequest records one HTTP request.
func RecordRequest(route, status string, seconds float64) {
	DefaultMetrics.RequestCount.WithLabelValues(route, status).Inc()
	DefaultMetrics.RequestLatency.WithLabelValues(route).Observe(seconds)
}

// RecordBatch records a served scoring batch.
func RecordBatch(scores []float64) {
	DefaultMetrics.BatchSize.Observe(float64(len(scores)))

	var fraud int
	for _, s := range scores {
		DefaultMetrics.ConfidenceScore.Observe(s)
		if s >= 0.5 {
			fraud++
			DefaultMetrics.Predictions.WithLabelValues("fraud").Inc()
		} else {
			DefaultMetrics.Predictions.WithLabelValues("legit").Inc()
		}
	}
	if len(scores) > 0 {
		DefaultMetrics.FraudRate.Set(float64(fraud) / float64(len(scores)))
	}
}

// RecordModelLoaded records the loaded bundle version.
func RecordModelLoaded(version int) {
	DefaultMetrics.ModelLoaded.Set(1)
	DefaultMetrics.ModelVersion.Set(float64(version))
}

// RecordDrift records a drift check outcome.
func RecordDrift(ks, rateDelta float64, predictionDrift, labelDrift bool) {
	DefaultMetrics.PredictionDriftScore.Set(ks)
	DefaultMetrics.LabelDriftScore.Set(rateDelta)
	if predictionDrift {
		DefaultMetrics.DriftAlerts.WithLabelValues("prediction").Inc()
	}
	if labelDrift {
		DefaultMetrics.DriftAlerts.WithLabelValues("label").Inc()
	}
}

// RecordTrainingRun records a completed or failed training run.
func RecordTrainingRun(status string, seconds float64) {
	DefaultMetrics.TrainingRuns.WithLabelValues(status).Inc()
	DefaultMetrics.TrainingDuration.Observe(seconds)
}

// RecordDBQuery records a database query and its outcome.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
