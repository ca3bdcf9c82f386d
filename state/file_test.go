package state

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/datazip-inc/resttap/types"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_MissingFileStartsEmpty(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	cursor, err := store.GetCursor(context.Background(), "gitlab.issues", "")
	require.NoError(t, err)
	assert.Nil(t, cursor)
}

func TestFileStore_PersistsAndReloads(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	partition := types.Context{"project_id": float64(3)}

	store, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.SetCursor(ctx, "gitlab.issues", partition, "2024-02-01T00:00:00Z"))
	require.NoError(t, store.SetCursor(ctx, "gitlab.projects", nil, float64(120)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "STREAM", doc["type"])

	reloaded, err := NewFileStore(path)
	require.NoError(t, err)
	cursor, err := reloaded.GetCursor(ctx, "gitlab.issues", partition.Key())
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01T00:00:00Z", cursor)

	cursor, err = reloaded.GetCursor(ctx, "gitlab.projects", "")
	require.NoError(t, err)
	assert.Equal(t, float64(120), cursor)
}

func TestFileStore_CursorIsMonotonic(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.SetCursor(ctx, "s", nil, "2024-05-01T00:00:00Z"))
	require.NoError(t, store.SetCursor(ctx, "s", nil, "2024-04-01T00:00:00Z"))

	reloaded, err := NewFileStore(path)
	require.NoError(t, err)
	cursor, _ := reloaded.GetCursor(ctx, "s", "")
	assert.Equal(t, "2024-05-01T00:00:00Z", cursor)
}

func TestFileStore_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.SetCursor(ctx, "events", types.Context{"shard": float64(i)}, float64(i)))
		}(i)
	}
	wg.Wait()

	reloaded, err := NewFileStore(path)
	require.NoError(t, err)
	snapshot, err := reloaded.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot.Streams, 1)
	assert.Len(t, snapshot.Streams[0].Partitions, 20)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path)
	assert.Error(t, err)
}

func TestFileStore_InMemory(t *testing.T) {
	store, err := NewFileStore("")
	require.NoError(t, err)
	require.NoError(t, store.SetCursor(context.Background(), "s", nil, 1))
	cursor, _ := store.GetCursor(context.Background(), "s", "")
	assert.Equal(t, 1, cursor)
}

func TestFileStore_ResetStreams(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.SetCursor(ctx, "gitlab.issues", types.Context{"project_id": float64(1)}, "2024-01-01T00:00:00Z"))
	require.NoError(t, store.SetCursor(ctx, "gitlab.epics", nil, "2024-01-01T00:00:00Z"))
	require.NoError(t, store.ResetStreams(ctx, "gitlab.issues"))

	reloaded, err := NewFileStore(path)
	require.NoError(t, err)
	cursor, err := reloaded.GetCursor(ctx, "gitlab.issues", types.Context{"project_id": float64(1)}.Key())
	require.NoError(t, err)
	assert.Nil(t, cursor)

	cursor, err = reloaded.GetCursor(ctx, "gitlab.epics", "")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00:00Z", cursor)
}
