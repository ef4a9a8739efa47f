// Package status tracks the state of the polling loop and persists it next to the snapshot.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
)

//go:generate mockgen -destination=mocks/mock_persistence.go -package=mocks github.com/stacklok/registry-watcher/internal/status Persistence

const (
	// StatusFileName is the name of the status file
	StatusFileName = "status.json"
)

// Persistence defines the interface for cycle status persistence
type Persistence interface {
	// Save stores the status
	Save(ctx context.Context, status *CycleStatus) error

	// Load returns the stored status, or a pending status if nothing was stored yet
	Load(ctx context.Context) (*CycleStatus, error)
}

type filePersistence struct {
	fs   afero.Fs
	path string
}

// NewFilePersistence creates a file-based status persistence storing StatusFileName in dir
func NewFilePersistence(fsys afero.Fs, dir string) Persistence {
	return &filePersistence{
		fs:   fsys,
		path: filepath.Join(dir, StatusFileName),
	}
}

// Save writes the status to a temporary file and renames it into place
func (f *filePersistence) Save(_ context.Context, status *CycleStatus) error {
	if err := f.fs.MkdirAll(filepath.Dir(f.path), 0750); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	tempPath := f.path + ".tmp"
	if err := afero.WriteFile(f.fs, tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary status file: %w", err)
	}

	if err := f.fs.Rename(tempPath, f.path); err != nil {
		_ = f.fs.Remove(tempPath)
		return fmt.Errorf("failed to rename status file: %w", err)
	}

	return nil
}

// Load reads the status file
func (f *filePersistence) Load(_ context.Context) (*CycleStatus, error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &CycleStatus{Phase: CyclePhasePending}, nil
		}
		return nil, fmt.Errorf("failed to read status file: %w", err)
	}

	var status CycleStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}

	return &status, nil
}
