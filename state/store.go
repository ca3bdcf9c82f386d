// Package state persists replication cursors per stream partition.
package state

import (
	"context"

	"github.com/datazip-inc/resttap/types"
)

// Store is safe for concurrent use. SetCursor never moves a cursor backwards.
type Store interface {
	GetCursor(ctx context.Context, streamID, partitionKey string) (any, error)
	SetCursor(ctx context.Context, streamID string, partition types.Context, value any) error
	// Snapshot returns every persisted cursor as a state document.
	Snapshot(ctx context.Context) (*types.State, error)
	// ResetStreams drops every partition cursor of the given streams.
	ResetStreams(ctx context.Context, streamIDs ...string) error
	Close() error
}
