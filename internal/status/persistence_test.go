package status

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testStatusDir = "/data/cache"

func TestFilePersistence_SaveAndLoad(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	persistence := NewFilePersistence(fs, testStatusDir)
	require.NotNil(t, persistence)

	now := time.Now().UTC().Truncate(time.Second)
	testStatus := &CycleStatus{
		Phase:         CyclePhaseComplete,
		CycleID:       "6a1f0b2e",
		LastAttempt:   &now,
		LastSuccess:   &now,
		ImagesChecked: 3,
		ImagesFailed:  1,
		Updated:       []string{"nginx"},
		CheckInterval: "1h0m0s",
	}

	ctx := context.Background()
	require.NoError(t, persistence.Save(ctx, testStatus))

	exists, err := afero.Exists(fs, filepath.Join(testStatusDir, StatusFileName))
	require.NoError(t, err)
	assert.True(t, exists)

	tmpExists, err := afero.Exists(fs, filepath.Join(testStatusDir, StatusFileName+".tmp"))
	require.NoError(t, err)
	assert.False(t, tmpExists)

	loaded, err := persistence.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, testStatus.Phase, loaded.Phase)
	assert.Equal(t, testStatus.CycleID, loaded.CycleID)
	assert.Equal(t, testStatus.ImagesChecked, loaded.ImagesChecked)
	assert.Equal(t, testStatus.ImagesFailed, loaded.ImagesFailed)
	assert.Equal(t, testStatus.Updated, loaded.Updated)
	require.NotNil(t, loaded.LastSuccess)
	assert.True(t, now.Equal(*loaded.LastSuccess))
}

func TestFilePersistence_LoadNonExistent(t *testing.T) {
	t.Parallel()

	persistence := NewFilePersistence(afero.NewMemMapFs(), testStatusDir)

	loaded, err := persistence.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, CyclePhasePending, loaded.Phase)
	assert.Empty(t, loaded.Message)
}

func TestFilePersistence_LoadInvalidJSON(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, filepath.Join(testStatusDir, StatusFileName), []byte("{not json"), 0600))

	_, err := NewFilePersistence(fs, testStatusDir).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal status")
}

func TestFilePersistence_UpdateStatus(t *testing.T) {
	t.Parallel()

	persistence := NewFilePersistence(afero.NewMemMapFs(), testStatusDir)
	ctx := context.Background()

	require.NoError(t, persistence.Save(ctx, &CycleStatus{Phase: CyclePhaseRunning, CycleID: "first"}))
	require.NoError(t, persistence.Save(ctx, &CycleStatus{
		Phase:        CyclePhaseFailed,
		CycleID:      "second",
		Message:      "failed to persist snapshot",
		FailureCount: 2,
	}))

	loaded, err := persistence.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, CyclePhaseFailed, loaded.Phase)
	assert.Equal(t, "second", loaded.CycleID)
	assert.Equal(t, "failed to persist snapshot", loaded.Message)
	assert.Equal(t, 2, loaded.FailureCount)
}

func TestFilePersistence_SaveReadOnly(t *testing.T) {
	t.Parallel()

	persistence := NewFilePersistence(afero.NewReadOnlyFs(afero.NewMemMapFs()), testStatusDir)

	err := persistence.Save(context.Background(), &CycleStatus{Phase: CyclePhaseComplete})
	require.Error(t, err)
}
