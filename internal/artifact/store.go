package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/spice-ledger/internal/training"
)

// DefaultLiveName is the file name of the active model.
const DefaultLiveName = "category_classifier.json"

// VersionLayout formats model versions.
const VersionLayout = "20060102_150405"

// ErrNoLiveModel means no model has been activated yet.
var ErrNoLiveModel = errors.New("no active model")

// VersionInfo describes one stored version.
type VersionInfo struct {
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Version   string    `json:"version" yaml:"version"`
	Path      string    `json:"path" yaml:"path"`
	Live      bool      `json:"live" yaml:"live"`
}

// Store manages versioned artifacts and the live pointer in one directory.
type Store struct {
	logger   *slog.Logger
	now      func() time.Time
	dir      string
	liveName string
}

// NewStore creates a store rooted at dir.
func NewStore(dir, liveName string, logger *slog.Logger) *Store {
	if liveName == "" {
		liveName = DefaultLiveName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, liveName: liveName, logger: logger, now: time.Now}
}

// Dir returns the models directory.
func (s *Store) Dir() string { return s.dir }

// LivePath returns the path of the active model.
func (s *Store) LivePath() string { return filepath.Join(s.dir, s.liveName) }

func (s *Store) base() string {
	return strings.TrimSuffix(s.liveName, filepath.Ext(s.liveName))
}

// VersionPath returns the file path of a stored version.
func (s *Store) VersionPath(version string) string {
	return filepath.Join(s.dir, s.base()+"_v"+version+".json")
}

func (s *Store) ensureDir() error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}
	return nil
}

// unusedStamp returns the current timestamp, suffixed with _2, _3... until
// pathFor names a file that does not exist yet.
func (s *Store) unusedStamp(pathFor func(stamp string) string) string {
	stamp := s.now().UTC().Format(VersionLayout)
	candidate := stamp
	for i := 2; ; i++ {
		if _, err := os.Stat(pathFor(candidate)); errors.Is(err, fs.ErrNotExist) {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d", stamp, i)
	}
}

// NextVersion returns an unused timestamp version.
func (s *Store) NextVersion() string {
	return s.unusedStamp(s.VersionPath)
}

// backupPath returns the path of a live-model backup taken at stamp.
func (s *Store) backupPath(stamp string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_backup_%s.json", s.base(), stamp))
}

// Save writes result as a new version. The live model is not touched.
func (s *Store) Save(result *training.Result) (*Artifact, string, error) {
	if err := s.ensureDir(); err != nil {
		return nil, "", err
	}
	version := s.NextVersion()
	a, err := New(version, result)
	if err != nil {
		return nil, "", err
	}
	path := s.VersionPath(version)
	if err := Write(path, a); err != nil {
		return nil, "", err
	}
	s.logger.Info("Saved model artifact", "model_version", version, "path", path)
	return a, path, nil
}

// Remove deletes a stored version. The live model cannot be removed this way.
func (s *Store) Remove(version string) error {
	if err := os.Remove(s.VersionPath(version)); err != nil {
		return fmt.Errorf("failed to remove model version %s: %w", version, err)
	}
	s.logger.Info("Removed model artifact", "model_version", version)
	return nil
}

// Load reads a stored version.
func (s *Store) Load(version string) (*Artifact, error) {
	a, err := Read(s.VersionPath(version))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("model version %s: %w", version, fs.ErrNotExist)
	}
	return a, err
}

// LoadLive reads the active model.
func (s *Store) LoadLive() (*Artifact, error) {
	a, err := Read(s.LivePath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoLiveModel
	}
	return a, err
}

// Activate makes version the live model. The current live file is copied to
// a timestamped backup first, then replaced by rename.
func (s *Store) Activate(version string) (string, error) {
	a, err := s.Load(version)
	if err != nil {
		return "", err
	}

	var backup string
	live, err := os.ReadFile(s.LivePath())
	switch {
	case err == nil:
		backup = s.backupPath(s.unusedStamp(s.backupPath))
		if err := writeAtomic(backup, live); err != nil {
			return "", fmt.Errorf("failed to back up live model: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return "", fmt.Errorf("failed to read live model: %w", err)
	}

	if err := Write(s.LivePath(), a); err != nil {
		return backup, err
	}

	s.logger.Info("Activated model", "model_version", version, "backup", backup)
	return backup, nil
}

// Versions lists stored versions, newest first.
func (s *Store) Versions() ([]VersionInfo, error) {
	pattern := filepath.Join(s.dir, s.base()+"_v*.json")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}

	liveVersion := ""
	if live, err := s.LoadLive(); err == nil {
		liveVersion = live.Version
	}

	infos := make([]VersionInfo, 0, len(paths))
	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".json")
		version := strings.TrimPrefix(name, s.base()+"_v")
		info := VersionInfo{Version: version, Path: path, Live: version == liveVersion}
		if t, err := time.Parse(VersionLayout, version[:min(len(version), len(VersionLayout))]); err == nil {
			info.CreatedAt = t
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Version > infos[j].Version })
	return infos, nil
}
