// Package config loads settings from defaults, a YAML file, SPICE_
// environment variables and a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Dedup scopes.
const (
	ScopeGlobal = "global"
	ScopeBatch  = "batch"
	ScopeOwner  = "owner"
)

// Config is the full application configuration.
type Config struct {
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`

	Storage struct {
		UploadsDir string `mapstructure:"uploads_dir"`
		ModelsDir  string `mapstructure:"models_dir"`
	} `mapstructure:"storage"`

	Model struct {
		LiveName string `mapstructure:"live_name"`
	} `mapstructure:"model"`

	Features struct {
		MaxVocabulary        int `mapstructure:"max_vocabulary"`
		MinDocumentFrequency int `mapstructure:"min_document_frequency"`
	} `mapstructure:"features"`

	Training struct {
		TestFraction    float64 `mapstructure:"test_fraction"`
		Trees           int     `mapstructure:"trees"`
		MaxDepth        int     `mapstructure:"max_depth"`
		MinSamplesSplit int     `mapstructure:"min_samples_split"`
		MinSamplesLeaf  int     `mapstructure:"min_samples_leaf"`
		CVFolds         int     `mapstructure:"cv_folds"`
		Seed            uint64  `mapstructure:"seed"`
		TopFeatures     int     `mapstructure:"top_features"`
	} `mapstructure:"training"`

	Import struct {
		TimeBudget time.Duration `mapstructure:"time_budget"`
		Owner      int64         `mapstructure:"owner"`
	} `mapstructure:"import"`

	Dedup struct {
		Scope         string  `mapstructure:"scope"`
		ThresholdDays int     `mapstructure:"threshold_days"`
		MaxCandidates int     `mapstructure:"max_candidates"`
		Similarity    float64 `mapstructure:"similarity"`
	} `mapstructure:"dedup"`

	Retrain struct {
		Schedule     string `mapstructure:"schedule"`
		MinRequired  int    `mapstructure:"min_required"`
		AutoActivate bool   `mapstructure:"auto_activate"`
	} `mapstructure:"retrain"`

	Metrics struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"metrics"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`
}

// LoadDotEnv loads a .env file into the process environment when present.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	dataDir := DataDir()

	v.SetDefault("database.path", filepath.Join(dataDir, "spice.db"))
	v.SetDefault("storage.uploads_dir", filepath.Join(dataDir, "uploads"))
	v.SetDefault("storage.models_dir", filepath.Join(dataDir, "models"))
	v.SetDefault("model.live_name", "category_classifier.json")

	v.SetDefault("features.max_vocabulary", 100)
	v.SetDefault("features.min_document_frequency", 2)

	v.SetDefault("training.test_fraction", 0.2)
	v.SetDefault("training.trees", 200)
	v.SetDefault("training.max_depth", 20)
	v.SetDefault("training.min_samples_split", 5)
	v.SetDefault("training.min_samples_leaf", 2)
	v.SetDefault("training.cv_folds", 5)
	v.SetDefault("training.seed", 42)
	v.SetDefault("training.top_features", 10)

	v.SetDefault("import.time_budget", 2*time.Minute)
	v.SetDefault("import.owner", 1)

	v.SetDefault("dedup.threshold_days", 3)
	v.SetDefault("dedup.max_candidates", 5000)
	v.SetDefault("dedup.similarity", 0.8)
	v.SetDefault("dedup.scope", ScopeGlobal)

	v.SetDefault("retrain.min_required", 100)
	v.SetDefault("retrain.schedule", "@weekly")
	v.SetDefault("retrain.auto_activate", false)

	v.SetDefault("metrics.addr", ":9464")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// BindEnv turns on SPICE_ prefixed environment overrides for v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix("SPICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes v into a Config, expands paths and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Database.Path = ExpandPath(cfg.Database.Path)
	cfg.Storage.UploadsDir = ExpandPath(cfg.Storage.UploadsDir)
	cfg.Storage.ModelsDir = ExpandPath(cfg.Storage.ModelsDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var problems []string

	if c.Database.Path == "" {
		problems = append(problems, "database.path is required")
	}
	if c.Model.LiveName == "" || strings.ContainsAny(c.Model.LiveName, `/\`) {
		problems = append(problems, "model.live_name must be a plain file name")
	}
	if c.Features.MaxVocabulary < 1 {
		problems = append(problems, "features.max_vocabulary must be positive")
	}
	if c.Features.MinDocumentFrequency < 1 {
		problems = append(problems, "features.min_document_frequency must be positive")
	}
	if c.Training.TestFraction <= 0 || c.Training.TestFraction >= 1 {
		problems = append(problems, fmt.Sprintf("training.test_fraction must be in (0,1), got %v", c.Training.TestFraction))
	}
	if c.Training.Trees < 1 {
		problems = append(problems, "training.trees must be positive")
	}
	if c.Training.CVFolds < 2 {
		problems = append(problems, "training.cv_folds must be at least 2")
	}
	if c.Import.TimeBudget <= 0 {
		problems = append(problems, "import.time_budget must be positive")
	}
	if c.Dedup.ThresholdDays < 0 {
		problems = append(problems, "dedup.threshold_days must not be negative")
	}
	if c.Dedup.MaxCandidates < 1 {
		problems = append(problems, "dedup.max_candidates must be positive")
	}
	if c.Dedup.Similarity < 0 || c.Dedup.Similarity > 1 {
		problems = append(problems, "dedup.similarity must be between 0 and 1")
	}
	switch c.Dedup.Scope {
	case ScopeGlobal, ScopeBatch, ScopeOwner:
	default:
		problems = append(problems, fmt.Sprintf("dedup.scope must be global, batch or owner, got %q", c.Dedup.Scope))
	}
	if c.Retrain.MinRequired < 1 {
		problems = append(problems, "retrain.min_required must be positive")
	}
	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", common.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
