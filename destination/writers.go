package destination

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/datazip-inc/resttap/types"
	"github.com/datazip-inc/resttap/utils"
	"github.com/datazip-inc/resttap/utils/logger"
)

const DefaultBatchSize = 1000

type (
	Type    string
	NewFunc func() Writer

	Options struct {
		Identifier string
		Number     int64
		Partition  types.Context
	}

	ThreadOptions func(opt *Options)

	// WriterConfig selects a registered destination and carries its settings.
	WriterConfig struct {
		Type         Type `json:"type" validate:"required"`
		WriterConfig any  `json:"writer,omitempty"`
		BatchSize    int  `json:"batch_size,omitempty" validate:"gte=0"`
	}

	WriterPool struct {
		batchSize     int
		totalRecords  atomic.Int64
		recordCount   atomic.Int64
		ThreadCounter atomic.Int64 // Used in naming files and global count for threads
		config        any          // respective writer config
		init          NewFunc      // To initialize exclusive destination threads
		tmu           sync.Mutex   // Mutex between threads
		stateWriter   StateWriter
	}
)

var RegisteredWriters = map[Type]NewFunc{}

func WithIdentifier(identifier string) ThreadOptions {
	return func(opt *Options) {
		opt.Identifier = identifier
	}
}

func WithNumber(number int64) ThreadOptions {
	return func(opt *Options) {
		opt.Number = number
	}
}

func WithPartition(partition types.Context) ThreadOptions {
	return func(opt *Options) {
		opt.Partition = partition
	}
}

// NewWriter creates a new WriterPool for the configured destination
func NewWriter(ctx context.Context, config *WriterConfig) (*WriterPool, error) {
	newfunc, found := RegisteredWriters[config.Type]
	if !found {
		return nil, fmt.Errorf("invalid destination type has been passed [%s]", config.Type)
	}

	adapter := newfunc()
	adapterConfig := adapter.GetConfigRef()
	if err := utils.Unmarshal(utils.Ternary(config.WriterConfig == nil, map[string]any{}, config.WriterConfig), adapterConfig); err != nil {
		return nil, err
	}
	if err := adapterConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid destination config: %s", err)
	}

	if err := adapter.Check(ctx); err != nil {
		return nil, fmt.Errorf("failed to test destination: %s", err)
	}

	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	pool := &WriterPool{
		batchSize: batchSize,
		config:    config.WriterConfig,
		init:      newfunc,
	}
	if stateWriter, ok := adapter.(StateWriter); ok {
		pool.stateWriter = stateWriter
	}
	return pool, nil
}

type ThreadEvent struct {
	*WriterPool
	stream  types.StreamInterface
	writer  Writer
	buffer  []types.RecordEnvelope
	ctx     context.Context
	options *Options
}

// NewThread initializes a writer dedicated to one stream partition. Records
// pushed to a thread are written in push order.
func (w *WriterPool) NewThread(ctx context.Context, stream types.StreamInterface, options ...ThreadOptions) (*ThreadEvent, error) {
	opts := &Options{Number: w.ThreadCounter.Add(1)}
	for _, one := range options {
		one(opts)
	}

	var thread Writer
	err := func() error {
		w.tmu.Lock() // lock for concurrent access of w.config
		defer w.tmu.Unlock()
		thread = w.init()
		if err := utils.Unmarshal(utils.Ternary(w.config == nil, map[string]any{}, w.config), thread.GetConfigRef()); err != nil {
			return err
		}
		return thread.Setup(stream, opts)
	}()
	if err != nil {
		return nil, fmt.Errorf("failed to init thread[%d]: %s", opts.Number, err)
	}

	return &ThreadEvent{
		WriterPool: w,
		stream:     stream,
		writer:     thread,
		buffer:     make([]types.RecordEnvelope, 0, w.batchSize),
		ctx:        ctx,
		options:    opts,
	}, nil
}

func (t *ThreadEvent) Push(record types.RecordEnvelope) error {
	if err := t.ctx.Err(); err != nil {
		return err
	}
	t.buffer = append(t.buffer, record)
	t.totalRecords.Add(1)
	if len(t.buffer) >= t.batchSize {
		return t.flush()
	}
	return nil
}

// Close flushes buffered records and releases the writer.
func (t *ThreadEvent) Close() error {
	flushErr := t.flush()
	closeErr := t.writer.Close(t.ctx)
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

func (t *ThreadEvent) flush() error {
	if len(t.buffer) == 0 {
		return nil
	}
	if err := t.writer.Write(t.ctx, t.buffer); err != nil {
		return fmt.Errorf("failed to write records of stream %s: %s", t.stream.ID(), err)
	}
	t.recordCount.Add(int64(len(t.buffer)))
	t.buffer = t.buffer[:0]
	return nil
}

// WriteState forwards a state checkpoint to destinations that accept one.
func (w *WriterPool) WriteState(ctx context.Context, state *types.State) error {
	if w.stateWriter == nil {
		return nil
	}
	w.tmu.Lock()
	defer w.tmu.Unlock()
	if err := w.stateWriter.WriteState(ctx, state); err != nil {
		logger.Errorf("failed to write state to destination: %s", err)
		return err
	}
	return nil
}

// Returns total records written at runtime
func (w *WriterPool) SyncedRecords() int64 {
	return w.recordCount.Load()
}

// Returns total records received from streams
func (w *WriterPool) GetRecordsToSync() int64 {
	return w.totalRecords.Load()
}
