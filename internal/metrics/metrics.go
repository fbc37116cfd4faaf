// Package metrics exposes Prometheus counters for the ingestion pipeline.
// A nil *Pipeline is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "spice"

// Pipeline holds the pipeline collectors and their registry.
type Pipeline struct {
	registry *prometheus.Registry

	importsTotal      *prometheus.CounterVec
	importDuration    prometheus.Histogram
	transactionsTotal *prometheus.CounterVec
	predictionsTotal  *prometheus.CounterVec
	reviewsTotal      *prometheus.CounterVec
	batchesTotal      *prometheus.CounterVec
	trainingRunsTotal *prometheus.CounterVec
	trainingAccuracy  prometheus.Gauge
	duplicateGroups   prometheus.Gauge
	duplicatesTotal   prometheus.Counter
}

// New registers the pipeline collectors on a fresh registry.
func New() *Pipeline {
	registry := prometheus.NewRegistry()

	m := &Pipeline{
		registry: registry,
		importsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "import",
				Name:      "statements_total",
				Help:      "Statement imports by outcome.",
			},
			[]string{"status"},
		),
		importDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "import",
				Name:      "duration_seconds",
				Help:      "Statement import duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		transactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "import",
				Name:      "transactions_total",
				Help:      "Parsed transactions by outcome (inserted or skipped).",
			},
			[]string{"outcome"},
		),
		predictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "predict",
				Name:      "predictions_total",
				Help:      "Predictions by confidence band.",
			},
			[]string{"band"},
		),
		reviewsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "review",
				Name:      "actions_total",
				Help:      "Review actions by resulting status.",
			},
			[]string{"status"},
		),
		batchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "review",
				Name:      "batch_transitions_total",
				Help:      "Batch state transitions by target status.",
			},
			[]string{"status"},
		),
		trainingRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "training",
				Name:      "runs_total",
				Help:      "Training runs by source and outcome.",
			},
			[]string{"source", "outcome"},
		),
		trainingAccuracy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "training",
				Name:      "last_accuracy",
				Help:      "Held-out accuracy of the most recent successful training run.",
			},
		),
		duplicateGroups: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "dedup",
				Name:      "groups",
				Help:      "Duplicate groups found by the last detection pass.",
			},
		),
		duplicatesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dedup",
				Name:      "merged_transactions_total",
				Help:      "Pending transactions removed by duplicate merges.",
			},
		),
	}

	registry.MustRegister(
		m.importsTotal, m.importDuration, m.transactionsTotal, m.predictionsTotal,
		m.reviewsTotal, m.batchesTotal, m.trainingRunsTotal, m.trainingAccuracy,
		m.duplicateGroups, m.duplicatesTotal,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Pipeline) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Pipeline) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveImport records one statement import.
func (m *Pipeline) ObserveImport(inserted, skipped int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.importsTotal.WithLabelValues(status).Inc()
	m.importDuration.Observe(duration.Seconds())
	m.transactionsTotal.WithLabelValues("inserted").Add(float64(inserted))
	m.transactionsTotal.WithLabelValues("skipped").Add(float64(skipped))
}

// ObservePredictions counts predictions per confidence band.
func (m *Pipeline) ObservePredictions(results []model.PredictionResult) {
	if m == nil {
		return
	}
	for _, r := range results {
		m.predictionsTotal.WithLabelValues(string(r.ConfidenceLevel)).Inc()
	}
}

// ObserveReview counts one review action.
func (m *Pipeline) ObserveReview(status model.ReviewStatus) {
	if m == nil {
		return
	}
	m.reviewsTotal.WithLabelValues(string(status)).Inc()
}

// ObserveBatchTransition counts a batch entering status.
func (m *Pipeline) ObserveBatchTransition(status model.BatchStatus) {
	if m == nil {
		return
	}
	m.batchesTotal.WithLabelValues(string(status)).Inc()
}

// ObserveTraining records a training run outcome.
func (m *Pipeline) ObserveTraining(source model.TrainingSource, metrics *model.TrainingMetrics, err error) {
	if m == nil {
		return
	}
	outcome := "completed"
	if err != nil {
		outcome = "failed"
	}
	m.trainingRunsTotal.WithLabelValues(string(source), outcome).Inc()
	if err == nil && metrics != nil {
		m.trainingAccuracy.Set(metrics.Accuracy)
	}
}

// ObserveInsufficientData records a retrain skipped for lack of labels.
func (m *Pipeline) ObserveInsufficientData(source model.TrainingSource) {
	if m == nil {
		return
	}
	m.trainingRunsTotal.WithLabelValues(string(source), "insufficient_data").Inc()
}

// ObserveDuplicateGroups records the result of a detection pass.
func (m *Pipeline) ObserveDuplicateGroups(groups int) {
	if m == nil {
		return
	}
	m.duplicateGroups.Set(float64(groups))
}

// ObserveMerge counts transactions removed by a merge.
func (m *Pipeline) ObserveMerge(removed int64) {
	if m == nil {
		return
	}
	m.duplicatesTotal.Add(float64(removed))
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Pipeline) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
