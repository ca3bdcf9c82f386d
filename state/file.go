package state

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/datazip-inc/resttap/types"
	"github.com/datazip-inc/resttap/utils"
	"github.com/datazip-inc/resttap/utils/logger"
)

// FileStore keeps the state document in memory and rewrites the file
// atomically after every advanced cursor.
type FileStore struct {
	path  string
	state *types.State
	// serializes file rewrites
	mu sync.Mutex
}

// NewFileStore loads the state at path; a missing file starts empty. An empty
// path keeps state in memory only.
func NewFileStore(path string) (*FileStore, error) {
	store := &FileStore{path: path, state: types.NewState()}
	if path == "" {
		return store, nil
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, err
	}

	loaded := types.NewState()
	if err := utils.UnmarshalFile(path, loaded); err != nil {
		return nil, fmt.Errorf("failed to load state file[%s]: %s", path, err)
	}
	store.state = loaded
	return store, nil
}

// NewFileStoreFrom wraps an already loaded state document.
func NewFileStoreFrom(path string, state *types.State) *FileStore {
	if state == nil {
		state = types.NewState()
	}
	return &FileStore{path: path, state: state}
}

func (f *FileStore) GetCursor(_ context.Context, streamID, partitionKey string) (any, error) {
	return f.state.GetCursor(streamID, partitionKey), nil
}

func (f *FileStore) SetCursor(_ context.Context, streamID string, partition types.Context, value any) error {
	if !f.state.SetCursor(streamID, partition, value) {
		return nil
	}
	return f.flush()
}

func (f *FileStore) Snapshot(_ context.Context) (*types.State, error) {
	return f.state, nil
}

func (f *FileStore) ResetStreams(_ context.Context, streamIDs ...string) error {
	for _, streamID := range streamIDs {
		f.state.ResetStream(streamID)
	}
	return f.flush()
}

func (f *FileStore) flush() error {
	if f.path == "" {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := logger.FileLogger(f.state, f.path); err != nil {
		return fmt.Errorf("failed to persist state: %s", err)
	}
	return nil
}

func (f *FileStore) Close() error {
	return nil
}
