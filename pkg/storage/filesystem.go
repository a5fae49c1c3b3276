package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"gopkg.in/yaml.v3"
)

const WorkspaceDir = ".sitepulse"
const ConfigFile = "config.yaml"
const HistoryFile = "history.db"
const EventsFile = "events.jsonl"
const DeadLetterFile = "deadletters.jsonl"

// ErrNotInitialized is returned when the workspace directory does not exist.
var ErrNotInitialized = errors.New("sitepulse workspace not initialized (run 'sitepulse init')")

type FilesystemRepository struct {
	root        string
	retryConfig retry.Config
}

func NewFilesystemRepository(root string) *FilesystemRepository {
	return &FilesystemRepository{
		root: root,
		retryConfig: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  10 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
	}
}

// Root returns the workspace root directory.
func (r *FilesystemRepository) Root() string {
	return r.root
}

// Dir returns the .sitepulse directory.
func (r *FilesystemRepository) Dir() string {
	return filepath.Join(r.root, WorkspaceDir)
}

// ResolvePath ensures the path is within the .sitepulse directory and prevents traversal.
func (r *FilesystemRepository) ResolvePath(filename string) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("filename cannot be empty")
	}

	baseDir := r.Dir()
	cleanPath := filepath.Clean(filepath.Join(baseDir, filename))

	// Only direct children of .sitepulse are allowed.
	if !strings.HasPrefix(cleanPath, baseDir) || filepath.Dir(cleanPath) != baseDir {
		return "", fmt.Errorf("invalid file path: %s", filename)
	}

	return cleanPath, nil
}

func (r *FilesystemRepository) Initialize() error {
	// G301: Use 0700 for directories
	if err := os.MkdirAll(r.Dir(), 0700); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", WorkspaceDir, err)
	}
	return nil
}

func (r *FilesystemRepository) IsInitialized() bool {
	info, err := os.Stat(r.Dir())
	return err == nil && info.IsDir()
}

// Exists reports whether the named workspace file is present.
func (r *FilesystemRepository) Exists(filename string) bool {
	path, err := r.ResolvePath(filename)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// SaveYAML writes v to the named workspace file.
func (r *FilesystemRepository) SaveYAML(filename string, v interface{}) error {
	if !r.IsInitialized() {
		return ErrNotInitialized
	}
	path, err := r.ResolvePath(filename)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filename, err)
	}

	// G306: Use 0600 for files
	return os.WriteFile(path, data, 0600)
}

// LoadYAML decodes the named workspace file into v. A missing file returns
// an error wrapping fs.ErrNotExist, or ErrNotInitialized when the workspace
// itself is missing.
func (r *FilesystemRepository) LoadYAML(filename string, v interface{}) error {
	if !r.IsInitialized() {
		return ErrNotInitialized
	}
	path, err := r.ResolvePath(filename)
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", filename, fs.ErrNotExist)
	}

	retryer := retry.New[[]byte](r.retryConfig)
	data, err := retryer.Do(context.Background(), func(ctx context.Context) ([]byte, error) {
		// #nosec G304 -- Path is resolved and validated via ResolvePath
		return os.ReadFile(path)
	})
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", filename, err)
	}
	return nil
}
