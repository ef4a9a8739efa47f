package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/stacklok/registry-watcher/internal/state Store

const (
	// DefaultStateFile is where the snapshot is kept when no path is configured
	DefaultStateFile = "./cache/cache.json"

	emptySnapshot = "{}"

	lockRetryDelay = 50 * time.Millisecond
)

// Store loads and persists the snapshot.
type Store interface {
	// Load reads the persisted snapshot. A missing or unparseable file yields an
	// empty snapshot and is replaced by an empty one on disk.
	Load(ctx context.Context) (Snapshot, error)

	// Store replaces the persisted snapshot. Failures are *PersistenceError.
	Store(ctx context.Context, snapshot Snapshot) error
}

// ErrLocked is wrapped by a PersistenceError when another writer holds the state lock
var ErrLocked = errors.New("state file locked")

// PersistenceError reports that the snapshot could not be written.
type PersistenceError struct {
	Path string
	Err  error
}

// Error implements error
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist snapshot to %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// fileStore implements Store with a single JSON document
type fileStore struct {
	fs   afero.Fs
	path string

	// lock serializes writers across processes, nil without WithFileLock
	lock        *flock.Flock
	lockTimeout time.Duration
}

// FileStoreOption configures the file store
type FileStoreOption func(*fileStore)

// WithFileLock holds an advisory lock on the OS file lockPath while the snapshot
// is written, so that a check run and a running watcher never write at once.
// A writer waiting longer than timeout fails with a *PersistenceError.
func WithFileLock(lockPath string, timeout time.Duration) FileStoreOption {
	return func(f *fileStore) {
		f.lock = flock.New(lockPath)
		f.lockTimeout = timeout
	}
}

// NewFileStore creates a Store backed by the JSON file at path on fs.
// An empty path selects DefaultStateFile.
func NewFileStore(fs afero.Fs, path string, opts ...FileStoreOption) Store {
	if path == "" {
		path = DefaultStateFile
	}
	f := &fileStore{
		fs:   fs,
		path: path,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Load reads the snapshot from disk
func (f *fileStore) Load(ctx context.Context) (Snapshot, error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		if os.IsNotExist(err) {
			// First run: create the file so subsequent loads are well-defined
			slog.Info("No snapshot found, creating an empty one", "path", f.path)
			if err := f.write(ctx, []byte(emptySnapshot)); err != nil {
				return nil, err
			}
			return Snapshot{}, nil
		}
		return nil, fmt.Errorf("failed to read snapshot %s: %w", f.path, err)
	}

	snapshot := Snapshot{}
	if err := json.Unmarshal(data, &snapshot); err != nil || snapshot == nil {
		slog.Warn("Snapshot is corrupt, starting from an empty one",
			"path", f.path,
			"error", err)
		if err := f.write(ctx, []byte(emptySnapshot)); err != nil {
			slog.Warn("Failed to reset corrupt snapshot", "path", f.path, "error", err)
		}
		return Snapshot{}, nil
	}

	return snapshot, nil
}

// Store writes the snapshot, replacing any previous content
func (f *fileStore) Store(ctx context.Context, snapshot Snapshot) error {
	if snapshot == nil {
		snapshot = Snapshot{}
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return &PersistenceError{Path: f.path, Err: fmt.Errorf("failed to marshal snapshot: %w", err)}
	}

	return f.write(ctx, data)
}

// write replaces the file through a temporary file and a rename
func (f *fileStore) write(ctx context.Context, data []byte) error {
	if dir := filepath.Dir(f.path); dir != "" {
		if err := f.fs.MkdirAll(dir, 0750); err != nil {
			return &PersistenceError{Path: f.path, Err: fmt.Errorf("failed to create state directory: %w", err)}
		}
	}

	if f.lock != nil {
		unlock, err := f.acquire(ctx)
		if err != nil {
			return &PersistenceError{Path: f.path, Err: err}
		}
		defer unlock()
	}

	tempPath := f.path + ".tmp"
	if err := afero.WriteFile(f.fs, tempPath, data, 0600); err != nil {
		return &PersistenceError{Path: f.path, Err: fmt.Errorf("failed to write temporary snapshot: %w", err)}
	}

	if err := f.fs.Rename(tempPath, f.path); err != nil {
		_ = f.fs.Remove(tempPath)
		return &PersistenceError{Path: f.path, Err: fmt.Errorf("failed to rename snapshot: %w", err)}
	}

	return nil
}

// acquire takes the writer lock, giving up after lockTimeout
func (f *fileStore) acquire(ctx context.Context) (func(), error) {
	if f.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.lockTimeout)
		defer cancel()
	}

	locked, err := f.lock.TryLockContext(ctx, lockRetryDelay)
	switch {
	case locked:
	case ctx.Err() != nil:
		return nil, fmt.Errorf("%w by another writer: %s", ErrLocked, f.lock.Path())
	default:
		return nil, fmt.Errorf("failed to lock %s: %w", f.lock.Path(), err)
	}

	return func() {
		if err := f.lock.Unlock(); err != nil {
			slog.Warn("Failed to release state lock", "path", f.lock.Path(), "error", err)
		}
	}, nil
}
