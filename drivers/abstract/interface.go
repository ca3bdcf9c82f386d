package abstract

import (
	"context"

	"github.com/datazip-inc/resttap/pkg/rest"
	"github.com/datazip-inc/resttap/types"
)

type Config interface {
	Validate() error
}

// Runner extracts one stream partition; *rest.Extractor is the production
// implementation.
type Runner interface {
	Run(ctx context.Context, partition types.Context, cursor any, emit rest.EmitFunc) (*rest.Result, error)
}

type DriverInterface interface {
	GetConfigRef() Config
	Spec() any
	Type() string
	// specific to check & setup
	Setup(ctx context.Context) error
	Check(ctx context.Context) error
	// sync artifacts
	MaxConnections() int
	MaxRetries() int
	// specific to discover
	GetStreamNames(ctx context.Context) ([]string, error)
	ProduceSchema(ctx context.Context, stream string) (*types.Stream, error)
	// specific to sync
	Partitions(ctx context.Context, stream types.StreamInterface) ([]types.Context, error)
	Extractor(stream types.StreamInterface) (Runner, error)
	StartCursor(stream types.StreamInterface) any
	// ChildContext derives the partition of child from one parent record; a nil
	// context skips the record
	ChildContext(child types.StreamInterface, record types.Record, parent types.Context) (types.Context, error)
}
