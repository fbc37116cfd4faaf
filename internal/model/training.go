package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TrainingStatus is the state of a training job.
type TrainingStatus string

// Training job status constants.
const (
	TrainingRunning   TrainingStatus = "RUNNING"
	TrainingCompleted TrainingStatus = "COMPLETED"
	TrainingFailed    TrainingStatus = "FAILED"
)

// TrainingSource records where a job's training data came from.
type TrainingSource string

// Training data sources.
const (
	SourceManualCSV   TrainingSource = "MANUAL_CSV"
	SourceAutoRetrain TrainingSource = "AUTO_RETRAIN"
)

// TrainingJob is one training run.
type TrainingJob struct {
	CreatedAt    time.Time        `yaml:"created_at"`
	CompletedAt  *time.Time       `yaml:"completed_at,omitempty"`
	Metrics      *TrainingMetrics `yaml:"metrics,omitempty"`
	Status       TrainingStatus   `yaml:"status"`
	Source       TrainingSource   `yaml:"source"`
	FilePath     string           `yaml:"file_path,omitempty"`
	ModelVersion string           `yaml:"model_version"`
	ErrorMessage string           `yaml:"error_message,omitempty"`
	ID           int64            `yaml:"id"`
	OwnerID      int64            `yaml:"owner_id"`
}

// CategoryReport is the per-category breakdown on the held-out set.
type CategoryReport struct {
	Category  string  `json:"category" yaml:"category"`
	Precision float64 `json:"precision" yaml:"precision"`
	Recall    float64 `json:"recall" yaml:"recall"`
	F1        float64 `json:"f1" yaml:"f1"`
	Support   int     `json:"support" yaml:"support"`
}

// FeatureImportance names one influential feature.
type FeatureImportance struct {
	Feature    string  `json:"feature" yaml:"feature"`
	Importance float64 `json:"importance" yaml:"importance"`
}

// TrainingMetrics is the quality report produced by the trainer.
type TrainingMetrics struct {
	TrainedAt        time.Time           `json:"trained_at" yaml:"trained_at"`
	ModelVersion     string              `json:"model_version" yaml:"model_version"`
	Categories       []string            `json:"categories" yaml:"categories"`
	PrunedCategories []string            `json:"pruned_categories,omitempty" yaml:"pruned_categories,omitempty"`
	CategoryReport   []CategoryReport    `json:"category_report" yaml:"category_report"`
	TopFeatures      []FeatureImportance `json:"top_features" yaml:"top_features"`
	Accuracy         float64             `json:"accuracy" yaml:"accuracy"`
	F1Score          float64             `json:"f1_score" yaml:"f1_score"`
	CVMean           float64             `json:"cv_mean" yaml:"cv_mean"`
	CVStd            float64             `json:"cv_std" yaml:"cv_std"`
	TrainSamples     int                 `json:"train_samples" yaml:"train_samples"`
	TestSamples      int                 `json:"test_samples" yaml:"test_samples"`
	FeatureCount     int                 `json:"feature_count" yaml:"feature_count"`
}

// LabeledTransaction is one training example.
type LabeledTransaction struct {
	Date        time.Time
	Amount      decimal.Decimal
	Description string
	Type        TransactionType
	Category    string
}
