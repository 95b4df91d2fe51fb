// Package metrics defines the Prometheus collectors for training,
// evaluation and classification, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zpam/spamlearn/pkg/learning"
)

const namespace = "spamlearn"

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	DocumentsIndexed       prometheus.Counter
	TrainingRunsTotal      *prometheus.CounterVec
	TrainingDuration       prometheus.Histogram
	VocabularySize         prometheus.Gauge
	ClassificationsTotal   *prometheus.CounterVec
	ClassificationDuration prometheus.Histogram
	FoldAccuracy           *prometheus.GaugeVec
	EvaluationAccuracy     prometheus.Gauge
}

// New creates all collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DocumentsIndexed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_indexed_total",
				Help:      "Total documents added to a training index.",
			},
		),
		TrainingRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "training_runs_total",
				Help:      "Training passes by outcome (success, error).",
			},
			[]string{"status"},
		),
		TrainingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "training_duration_seconds",
				Help:      "Duration of a full training pass in seconds.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
		),
		VocabularySize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "vocabulary_size",
				Help:      "Feature dimension of the most recently trained model.",
			},
		),
		ClassificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "classifications_total",
				Help:      "Documents classified by predicted label.",
			},
			[]string{"label"},
		),
		ClassificationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "classification_duration_seconds",
				Help:      "Latency of a single classification in seconds.",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
		),
		FoldAccuracy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "fold_accuracy",
				Help:      "Accuracy of each cross-validation fold of the last evaluation.",
			},
			[]string{"fold"},
		),
		EvaluationAccuracy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "evaluation_accuracy",
				Help:      "Combined accuracy of the last cross-validation run.",
			},
		),
	}

	reg.MustRegister(
		m.DocumentsIndexed,
		m.TrainingRunsTotal,
		m.TrainingDuration,
		m.VocabularySize,
		m.ClassificationsTotal,
		m.ClassificationDuration,
		m.FoldAccuracy,
		m.EvaluationAccuracy,
	)

	return m
}

// ObserveTraining records the outcome of a training pass
func (m *Metrics) ObserveTraining(d time.Duration, vocabulary int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.TrainingRunsTotal.WithLabelValues("error").Inc()
		return
	}
	m.TrainingRunsTotal.WithLabelValues("success").Inc()
	m.TrainingDuration.Observe(d.Seconds())
	m.VocabularySize.Set(float64(vocabulary))
}

// AddDocumentsIndexed counts documents fed into an index
func (m *Metrics) AddDocumentsIndexed(n int) {
	if m == nil {
		return
	}
	m.DocumentsIndexed.Add(float64(n))
}

// ObserveClassification records one prediction
func (m *Metrics) ObserveClassification(label learning.Label, d time.Duration) {
	if m == nil {
		return
	}
	m.ClassificationsTotal.WithLabelValues(label.String()).Inc()
	m.ClassificationDuration.Observe(d.Seconds())
}

// SetFoldAccuracy records the accuracy of one fold
func (m *Metrics) SetFoldAccuracy(fold string, accuracy float64) {
	if m == nil {
		return
	}
	m.FoldAccuracy.WithLabelValues(fold).Set(accuracy)
}

// SetEvaluationAccuracy records the combined accuracy of an evaluation run
func (m *Metrics) SetEvaluationAccuracy(accuracy float64) {
	if m == nil {
		return
	}
	m.EvaluationAccuracy.Set(accuracy)
}

// Handler returns the Prometheus scrape HTTP handler for g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
