// Package uploads keeps copies of imported statements and training files.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind separates statement uploads from training uploads.
type Kind string

// Upload kinds.
const (
	KindStatement Kind = "statement"
	KindTraining  Kind = "training"
)

// ErrInvalidKey rejects keys that would escape the upload directory.
var ErrInvalidKey = errors.New("invalid upload key")

// Stored describes a saved upload.
type Stored struct {
	Key      string
	Path     string
	Original string
	Size     int64
}

// Store saves uploads under a base directory.
type Store struct {
	now      func() time.Time
	basePath string
}

// New creates the upload directory if needed.
func New(basePath string) (*Store, error) {
	if basePath == "" {
		return nil, errors.New("upload directory is required")
	}
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{basePath: basePath, now: time.Now}, nil
}

// Dir returns the upload directory.
func (s *Store) Dir() string { return s.basePath }

// Save copies data into a new file named
// <kind>_<timestamp>_<uuid>_<sanitized name>.
func (s *Store) Save(ctx context.Context, kind Kind, filename string, data io.Reader) (*Stored, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s_%s_%s_%s",
		kind, s.now().UTC().Format("20060102150405"), uuid.NewString(), SanitizeFilename(filename))
	path := filepath.Join(s.basePath, key)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	size, err := io.Copy(f, data)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write file: %w", err)
	}

	return &Stored{Key: key, Path: path, Original: filename, Size: size}, nil
}

// SaveFile copies a local file into the store.
func (s *Store) SaveFile(ctx context.Context, kind Kind, path string) (*Stored, error) {
	f, err := os.Open(path) // #nosec G304 - user-supplied import path
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return s.Save(ctx, kind, filepath.Base(path), f)
}

// Open returns a stored upload by key.
func (s *Store) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	f, err := os.Open(filepath.Join(s.basePath, key))
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// SanitizeFilename reduces name to a safe base name.
func SanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	base = strings.TrimLeft(base, ".")
	if base == "" {
		return "upload.bin"
	}
	return base
}
