package protocol

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/datazip-inc/resttap/constants"
	"github.com/datazip-inc/resttap/destination"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stateDocument = `{"type":"STREAM","streams":[{"stream":"issues","namespace":"gitlab","partitions":{"":{"cursor":"2024-03-01T00:00:00Z"}}}]}`

func withFlags(t *testing.T, save bool, state string) {
	t.Helper()
	prevNoSave, prevState := noSave, statePath
	noSave, statePath = !save, state
	viper.Set(constants.StateDSN, "")
	viper.Set(constants.StatePath, state)
	t.Cleanup(func() {
		noSave, statePath = prevNoSave, prevState
		viper.Set(constants.StatePath, "")
	})
}

func TestNewStateStore_File(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(stateDocument), 0o600))
	withFlags(t, true, path)

	store, err := newStateStore(ctx)
	require.NoError(t, err)
	defer store.Close()

	cursor, err := store.GetCursor(ctx, "gitlab.issues", "")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T00:00:00Z", cursor)

	require.NoError(t, store.SetCursor(ctx, "gitlab.issues", nil, "2024-04-01T00:00:00Z"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "2024-04-01T00:00:00Z")
}

func TestNewStateStore_NoSaveLeavesFileUntouched(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(stateDocument), 0o600))
	withFlags(t, false, path)

	store, err := newStateStore(ctx)
	require.NoError(t, err)
	defer store.Close()

	cursor, err := store.GetCursor(ctx, "gitlab.issues", "")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T00:00:00Z", cursor)

	require.NoError(t, store.SetCursor(ctx, "gitlab.issues", nil, "2024-04-01T00:00:00Z"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, stateDocument, string(data))
}

func TestLoadDestinationConfig(t *testing.T) {
	prevPath, prevBatch := destinationConfigPath, batchSize
	t.Cleanup(func() { destinationConfigPath, batchSize = prevPath, prevBatch })

	destinationConfigPath, batchSize = notSet, 0
	require.NoError(t, loadDestinationConfig())
	assert.Equal(t, destination.Type("stdout"), destinationConfig.Type)

	path := filepath.Join(t.TempDir(), "destination.yaml")
	require.NoError(t, os.WriteFile(path, []byte("type: local\nwriter:\n  local_path: /tmp/out\n"), 0o600))
	destinationConfigPath, batchSize = path, 250
	require.NoError(t, loadDestinationConfig())
	assert.Equal(t, destination.Type("local"), destinationConfig.Type)
	assert.Equal(t, 250, destinationConfig.BatchSize)
}

func TestLogConnectionStatus(t *testing.T) {
	assert.NotPanics(t, func() { logConnectionStatus(nil) })
	assert.NotPanics(t, func() { logConnectionStatus(errors.New("401 Unauthorized")) })
}
