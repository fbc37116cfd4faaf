package retrain

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Veraticus/spice-ledger/internal/artifact"
	"github.com/Veraticus/spice-ledger/internal/forest"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/predict"
	"github.com/Veraticus/spice-ledger/internal/service"
	"github.com/Veraticus/spice-ledger/internal/testutil"
	"github.com/Veraticus/spice-ledger/internal/training"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	cfg := training.DefaultConfig()
	cfg.Forest = forest.Config{NumTrees: 15, MaxDepth: 10, MinSamplesSplit: 2, MinSamplesLeaf: 1, Seed: 3}
	cfg.CVFolds = 2
	return Config{Training: cfg, MinRequired: 50}
}

// seedReviewed stores rows as APPROVED transactions.
func seedReviewed(db *testutil.TestDB, rows []model.LabeledTransaction) {
	specs := make([]testutil.PendingSpec, len(rows))
	for i, row := range rows {
		specs[i] = testutil.PendingSpec{
			Date:        row.Date,
			Description: row.Description,
			Amount:      row.Amount.String(),
			Category:    row.Category,
			Status:      model.ReviewApproved,
			Confidence:  0.9,
		}
	}
	db.SeedBatch(1, specs...)
}

func newTestService(t *testing.T, cfg Config, opts ...Option) (*Service, *testutil.TestDB, *artifact.Store) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	store := artifact.NewStore(filepath.Join(t.TempDir(), "models"), "", quietLogger())
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return NewService(db.Storage, store, cfg, opts...), db, store
}

func TestAutoRetrainInsufficientData(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := newTestService(t, testConfig())
	seedReviewed(db, testutil.SampleLabeledData().Build()[:50])

	result, err := svc.AutoRetrain(ctx, 1, 100)
	require.NoError(t, err)
	assert.True(t, result.Insufficient)
	assert.Equal(t, 50, result.Eligible)
	assert.Equal(t, 100, result.Required)
	assert.Nil(t, result.Job)

	jobs, err := db.Storage.ListTrainingJobs(ctx, service.TrainingJobFilter{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestAutoRetrainTrainsAndActivates(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.AutoActivate = true

	db := testutil.SetupTestDB(t)
	store := artifact.NewStore(filepath.Join(t.TempDir(), "models"), "", quietLogger())
	live := predict.NewLive(store, quietLogger())
	svc := NewService(db.Storage, store, cfg, WithLogger(quietLogger()), WithReloader(live))

	seedReviewed(db, testutil.SampleLabeledData().Build())
	// Rejected rows are not training data.
	db.SeedBatch(1, testutil.PendingSpec{Description: "IGNORED", Amount: "-1", Category: "Noise", Status: model.ReviewRejected})

	var progress int
	svc.Progress = func(done, total int) { progress = total }

	result, err := svc.AutoRetrain(ctx, 1, 0)
	require.NoError(t, err)
	require.False(t, result.Insufficient)
	require.NotNil(t, result.Job)
	assert.Equal(t, 60, result.Eligible)
	assert.True(t, result.Activated)
	assert.Equal(t, 15, progress)

	job := result.Job
	assert.Equal(t, model.TrainingCompleted, job.Status)
	assert.Equal(t, model.SourceAutoRetrain, job.Source)
	assert.NotEmpty(t, job.ModelVersion)
	assert.NotNil(t, job.CompletedAt)
	assert.FileExists(t, result.ModelPath)
	assert.NotContains(t, result.Metrics.Categories, "Noise")

	stored, err := svc.Job(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TrainingCompleted, stored.Status)
	require.NotNil(t, stored.Metrics)
	assert.Equal(t, job.ModelVersion, stored.Metrics.ModelVersion)

	info := live.Info()
	assert.True(t, info.Loaded)
	assert.Equal(t, job.ModelVersion, info.Version)

	history, err := svc.History(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestTrainFromFile(t *testing.T) {
	ctx := context.Background()
	svc, _, store := newTestService(t, testConfig())

	var sb strings.Builder
	sb.WriteString("date,description,value,category\n")
	for _, row := range testutil.SampleLabeledData().Build() {
		fmt.Fprintf(&sb, "%s,%s,%s,%s\n", row.Date.Format("2006-01-02"), row.Description, row.Amount.String(), row.Category)
	}
	sb.WriteString("2024-02-01,ONE OFF PURCHASE,-3.00,Rare\n")
	path := filepath.Join(t.TempDir(), "history.csv")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o600))

	result, err := svc.TrainFromFile(ctx, 1, path)
	require.NoError(t, err)
	require.NotNil(t, result.Job)
	assert.Equal(t, model.SourceManualCSV, result.Job.Source)
	assert.Equal(t, path, result.Job.FilePath)
	assert.Equal(t, []string{"Rare"}, result.Pruned)
	assert.Equal(t, []string{"Rare"}, result.Metrics.PrunedCategories)
	assert.False(t, result.Activated)

	_, err = store.LoadLive()
	assert.ErrorIs(t, err, artifact.ErrNoLiveModel)

	backup, err := svc.Activate(ctx, result.Job.ModelVersion)
	require.NoError(t, err)
	assert.Empty(t, backup)

	versions, err := svc.Versions()
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.True(t, versions[0].Live)
}

func TestTrainFromFileRejectsUnknownLayout(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := newTestService(t, testConfig())

	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("when,what,howmuch\n2024-01-01,X,1\n"), 0o600))

	_, err := svc.TrainFromFile(ctx, 1, path)
	var layoutErr *training.LayoutError
	require.ErrorAs(t, err, &layoutErr)

	jobs, err := db.Storage.ListTrainingJobs(ctx, service.TrainingJobFilter{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestTrainingFailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)

	// A regular file where the models directory should be.
	blocked := filepath.Join(t.TempDir(), "models")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o600))
	store := artifact.NewStore(blocked, "", quietLogger())
	svc := NewService(db.Storage, store, testConfig(), WithLogger(quietLogger()))

	seedReviewed(db, testutil.SampleLabeledData().Build())

	result, err := svc.AutoRetrain(ctx, 1, 10)
	require.Error(t, err)
	require.NotNil(t, result.Job)

	stored, err := svc.Job(ctx, result.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TrainingFailed, stored.Status)
	assert.NotEmpty(t, stored.ErrorMessage)
}

// lockedOnComplete fails every attempt to mark a training job COMPLETED.
type lockedOnComplete struct {
	service.Storage
}

func (l lockedOnComplete) UpdateTrainingJob(ctx context.Context, job *model.TrainingJob) error {
	if job.Status == model.TrainingCompleted {
		return fmt.Errorf("database is locked")
	}
	return l.Storage.UpdateTrainingJob(ctx, job)
}

func TestUnrecordedCompletionFailsJob(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	dir := filepath.Join(t.TempDir(), "models")
	store := artifact.NewStore(dir, "", quietLogger())
	cfg := testConfig()
	cfg.AutoActivate = true
	svc := NewService(lockedOnComplete{db.Storage}, store, cfg, WithLogger(quietLogger()))

	seedReviewed(db, testutil.SampleLabeledData().Build())

	result, err := svc.AutoRetrain(ctx, 1, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	require.NotNil(t, result.Job)
	assert.False(t, result.Activated)

	stored, err := svc.Job(ctx, result.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TrainingFailed, stored.Status)
	assert.Empty(t, stored.ModelVersion)
	assert.Contains(t, stored.ErrorMessage, "failed to record training result")

	versions, err := store.Versions()
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestCompletionSurvivesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	db := testutil.SetupTestDB(t)
	store := artifact.NewStore(filepath.Join(t.TempDir(), "models"), "", quietLogger())
	svc := NewService(cancelOnComplete{Storage: db.Storage, cancel: cancel}, store, testConfig(), WithLogger(quietLogger()))

	seedReviewed(db, testutil.SampleLabeledData().Build())

	result, err := svc.AutoRetrain(ctx, 1, 10)
	require.NoError(t, err)

	stored, err := svc.Job(context.Background(), result.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TrainingCompleted, stored.Status)
	assert.NotEmpty(t, stored.ModelVersion)
}

// cancelOnComplete cancels the caller's context just before the COMPLETED
// write reaches storage.
type cancelOnComplete struct {
	service.Storage
	cancel context.CancelFunc
}

func (c cancelOnComplete) UpdateTrainingJob(ctx context.Context, job *model.TrainingJob) error {
	if job.Status == model.TrainingCompleted {
		c.cancel()
	}
	return c.Storage.UpdateTrainingJob(ctx, job)
}

func TestActivateUnknownVersion(t *testing.T) {
	svc, _, _ := newTestService(t, testConfig())
	_, err := svc.Activate(context.Background(), "19990101_000000")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestScheduler(t *testing.T) {
	svc, _, _ := newTestService(t, testConfig())
	sched := NewScheduler(context.Background(), svc, 1, quietLogger())

	_, err := sched.Add("not a schedule", 10)
	assert.Error(t, err)

	_, err = sched.Add("@weekly", 10)
	require.NoError(t, err)

	sched.Start()
	sched.RunOnce(context.Background(), 10)
	sched.Stop()
}
