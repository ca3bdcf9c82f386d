package abstract

import (
	"context"
	"sync"

	"github.com/datazip-inc/resttap/destination"
	"github.com/datazip-inc/resttap/pkg/rest"
	"github.com/datazip-inc/resttap/types"
)

// MemoryWriter is a test writer keeping every written record in memory
type MemoryWriter struct {
	config *MemoryConfig
	sink   *recordSink
}

type MemoryConfig struct{}

func (c *MemoryConfig) Validate() error {
	return nil
}

type recordSink struct {
	mu      sync.Mutex
	records map[string][]types.RecordEnvelope
	states  int
}

func (s *recordSink) get(streamID string) []types.RecordEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.RecordEnvelope(nil), s.records[streamID]...)
}

func (w *MemoryWriter) GetConfigRef() destination.Config {
	w.config = &MemoryConfig{}
	return w.config
}

func (w *MemoryWriter) Spec() any {
	return map[string]any{}
}

func (w *MemoryWriter) Type() string {
	return "memory"
}

func (w *MemoryWriter) Check(_ context.Context) error {
	return nil
}

func (w *MemoryWriter) Setup(_ types.StreamInterface, _ *destination.Options) error {
	return nil
}

func (w *MemoryWriter) Write(_ context.Context, records []types.RecordEnvelope) error {
	w.sink.mu.Lock()
	defer w.sink.mu.Unlock()
	for _, record := range records {
		w.sink.records[record.StreamID()] = append(w.sink.records[record.StreamID()], record)
	}
	return nil
}

func (w *MemoryWriter) WriteState(_ context.Context, _ *types.State) error {
	w.sink.mu.Lock()
	defer w.sink.mu.Unlock()
	w.sink.states++
	return nil
}

func (w *MemoryWriter) Close(_ context.Context) error {
	return nil
}

// createTestWriterPool creates a real WriterPool backed by memory writers
func createTestWriterPool(ctx context.Context) (*destination.WriterPool, *recordSink, error) {
	sink := &recordSink{records: make(map[string][]types.RecordEnvelope)}
	destination.RegisteredWriters["memory"] = func() destination.Writer {
		return &MemoryWriter{sink: sink}
	}
	pool, err := destination.NewWriter(ctx, &destination.WriterConfig{Type: "memory", BatchSize: 2})
	return pool, sink, err
}

// Mock implementations for testing

type MockRunner struct {
	runFunc func(ctx context.Context, partition types.Context, cursor any, emit rest.EmitFunc) (*rest.Result, error)
}

func (m *MockRunner) Run(ctx context.Context, partition types.Context, cursor any, emit rest.EmitFunc) (*rest.Result, error) {
	return m.runFunc(ctx, partition, cursor, emit)
}

// emitAll is a runner emitting records and tracking the max of key
func emitAll(key string, records ...types.Record) *MockRunner {
	return &MockRunner{runFunc: func(_ context.Context, _ types.Context, cursor any, emit rest.EmitFunc) (*rest.Result, error) {
		result := &rest.Result{Pages: 1, StartCursor: cursor, MaxCursor: cursor}
		for _, record := range records {
			if err := emit(record); err != nil {
				return result, err
			}
			result.Records++
			if value, found := record[key]; found {
				if result.MaxCursor == nil || value.(string) > result.MaxCursor.(string) {
					result.MaxCursor = value
				}
			}
		}
		return result, nil
	}}
}

type MockDriver struct {
	streams            map[string]*types.Stream
	runners            map[string]Runner
	partitions         map[string][]types.Context
	startCursor        any
	maxConnectionsFunc func() int
	maxRetriesFunc     func() int
	childContextFunc   func(child types.StreamInterface, record types.Record, parent types.Context) (types.Context, error)
}

func (m *MockDriver) GetConfigRef() Config {
	return &MockConfig{}
}

func (m *MockDriver) Spec() any {
	return nil
}

func (m *MockDriver) Type() string {
	return "mock"
}

func (m *MockDriver) Setup(_ context.Context) error {
	return nil
}

func (m *MockDriver) Check(_ context.Context) error {
	return nil
}

func (m *MockDriver) MaxConnections() int {
	if m.maxConnectionsFunc != nil {
		return m.maxConnectionsFunc()
	}
	return 0
}

func (m *MockDriver) MaxRetries() int {
	if m.maxRetriesFunc != nil {
		return m.maxRetriesFunc()
	}
	return 0
}

func (m *MockDriver) GetStreamNames(_ context.Context) ([]string, error) {
	var names []string
	for name := range m.streams {
		names = append(names, name)
	}
	return names, nil
}

func (m *MockDriver) ProduceSchema(_ context.Context, stream string) (*types.Stream, error) {
	if one, found := m.streams[stream]; found {
		return one, nil
	}
	return nil, context.DeadlineExceeded
}

func (m *MockDriver) Partitions(_ context.Context, stream types.StreamInterface) ([]types.Context, error) {
	return m.partitions[stream.ID()], nil
}

func (m *MockDriver) Extractor(stream types.StreamInterface) (Runner, error) {
	return m.runners[stream.ID()], nil
}

func (m *MockDriver) StartCursor(_ types.StreamInterface) any {
	return m.startCursor
}

func (m *MockDriver) ChildContext(child types.StreamInterface, record types.Record, parent types.Context) (types.Context, error) {
	if m.childContextFunc != nil {
		return m.childContextFunc(child, record, parent)
	}
	return nil, nil
}

// MockConfig implements Config interface
type MockConfig struct{}

func (m *MockConfig) Validate() error {
	return nil
}

// Helper functions

func createMockStream(name, namespace string, syncMode types.SyncMode) *types.Stream {
	stream := types.NewStream(name, namespace).
		WithSyncMode(types.FULLREFRESH).
		WithPrimaryKey("id").
		WithReplicationKey("updated_at")
	stream.SyncMode = syncMode
	return stream
}
