package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveImport(t *testing.T) {
	m := New()
	m.ObserveImport(3, 2, time.Second, nil)
	m.ObserveImport(0, 0, time.Second, errors.New("boom"))

	assert.InDelta(t, 1, testutil.ToFloat64(m.importsTotal.WithLabelValues("success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.importsTotal.WithLabelValues("error")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.transactionsTotal.WithLabelValues("inserted")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.transactionsTotal.WithLabelValues("skipped")), 0)
}

func TestObservePredictionsAndReviews(t *testing.T) {
	m := New()
	m.ObservePredictions([]model.PredictionResult{
		{ConfidenceLevel: model.ConfidenceHigh},
		{ConfidenceLevel: model.ConfidenceLow},
		{ConfidenceLevel: model.ConfidenceLow},
	})
	m.ObserveReview(model.ReviewApproved)
	m.ObserveBatchTransition(model.BatchCompleted)

	assert.InDelta(t, 2, testutil.ToFloat64(m.predictionsTotal.WithLabelValues("low")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.predictionsTotal.WithLabelValues("high")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.reviewsTotal.WithLabelValues("APPROVED")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.batchesTotal.WithLabelValues("COMPLETED")), 0)
}

func TestObserveTraining(t *testing.T) {
	m := New()
	m.ObserveTraining(model.SourceAutoRetrain, &model.TrainingMetrics{Accuracy: 0.87}, nil)
	m.ObserveTraining(model.SourceManualCSV, nil, errors.New("bad file"))
	m.ObserveInsufficientData(model.SourceAutoRetrain)
	m.ObserveDuplicateGroups(4)
	m.ObserveMerge(3)

	assert.InDelta(t, 0.87, testutil.ToFloat64(m.trainingAccuracy), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.trainingRunsTotal.WithLabelValues("MANUAL_CSV", "failed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.trainingRunsTotal.WithLabelValues("AUTO_RETRAIN", "insufficient_data")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.duplicateGroups), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.duplicatesTotal), 0)
}

func TestNilPipelineIsSafe(t *testing.T) {
	var m *Pipeline
	assert.NotPanics(t, func() {
		m.ObserveImport(1, 1, time.Second, nil)
		m.ObservePredictions([]model.PredictionResult{{ConfidenceLevel: model.ConfidenceHigh}})
		m.ObserveReview(model.ReviewRejected)
		m.ObserveBatchTransition(model.BatchFailed)
		m.ObserveTraining(model.SourceManualCSV, nil, nil)
		m.ObserveInsufficientData(model.SourceManualCSV)
		m.ObserveDuplicateGroups(1)
		m.ObserveMerge(1)
	})
	assert.Nil(t, m.Registry())
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveReview(model.ReviewModified)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `spice_review_actions_total{status="MODIFIED"} 1`))
}
