package abstract

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/datazip-inc/resttap/destination"
	"github.com/datazip-inc/resttap/pkg/rest"
	"github.com/datazip-inc/resttap/types"
	"github.com/datazip-inc/resttap/utils"
	"github.com/datazip-inc/resttap/utils/logger"
	"github.com/datazip-inc/resttap/utils/safego"
)

// node is one stream scheduled in a sync run
type node struct {
	stream types.StreamInterface
	// false for parents pulled in only to derive child partitions
	emit     bool
	parent   *node
	children []*node
	runner   Runner

	mu       sync.Mutex
	contexts []types.Context
	seen     map[uint64]struct{}
}

type partitionTask struct {
	node      *node
	partition types.Context
}

// addContext registers a child partition, ignoring duplicates
func (n *node) addContext(partition types.Context) error {
	hash, err := partition.Hash()
	if err != nil {
		return fmt.Errorf("failed to hash child context: %s", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, found := n.seen[hash]; found {
		return nil
	}
	n.seen[hash] = struct{}{}
	n.contexts = append(n.contexts, partition)
	return nil
}

// Read syncs the given streams. Streams without a parent run first, each of
// their partitions on the shared worker pool; child streams run once their
// parent level completed, once per distinct context derived from parent
// records. A failing stream is recorded in the report and never stops the
// others. Cursors are only persisted for partitions that fully succeeded.
func (a *AbstractDriver) Read(ctx context.Context, pool *destination.WriterPool, streams ...types.StreamInterface) (*SyncReport, error) {
	report := NewSyncReport(utils.ULID())
	if a.store == nil {
		return report, fmt.Errorf("state store not initialized")
	}

	levels, err := a.plan(ctx, streams)
	if err != nil {
		return report, err
	}

	for depth, level := range levels {
		var tasks []partitionTask
		for _, n := range level {
			if n.parent != nil && report.Failed(n.parent.stream.ID()) {
				report.streamFailed(n.stream.ID(), fmt.Errorf("parent stream %s failed", n.parent.stream.ID()))
				continue
			}

			partitions, err := a.partitionsOf(ctx, n)
			if err != nil {
				report.streamFailed(n.stream.ID(), err)
				continue
			}
			runner, err := a.driver.Extractor(n.stream)
			if err != nil {
				report.streamFailed(n.stream.ID(), fmt.Errorf("failed to build extractor: %s", err))
				continue
			}
			n.runner = runner

			logger.Infof("Starting sync for stream[%s] with %d partitions", n.stream.ID(), len(partitions))
			for _, partition := range partitions {
				tasks = append(tasks, partitionTask{node: n, partition: partition})
			}
		}

		logger.Debugf("running level %d with %d partitions", depth, len(tasks))
		// failures are recorded in the report
		_ = utils.ConcurrentCollect(ctx, tasks, a.maxConnections(), func(ctx context.Context, _ int, task partitionTask) error {
			return a.syncPartition(ctx, pool, task.node, task.partition, report)
		})

		if ctx.Err() != nil {
			report.Log()
			return report, ctx.Err()
		}
	}

	report.Log()
	return report, report.Err()
}

func (a *AbstractDriver) partitionsOf(ctx context.Context, n *node) ([]types.Context, error) {
	if n.parent != nil {
		n.mu.Lock()
		defer n.mu.Unlock()
		return n.contexts, nil
	}

	partitions, err := a.driver.Partitions(ctx, n.stream)
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %s", err)
	}
	if len(partitions) == 0 {
		partitions = []types.Context{{}}
	}
	return partitions, nil
}

// plan orders the streams into levels by parent depth. Parents of selected
// children that are not selected themselves are produced from the driver and
// run without writing records.
func (a *AbstractDriver) plan(ctx context.Context, streams []types.StreamInterface) ([][]*node, error) {
	nodes := make(map[string]*node)
	var queue []*node
	for _, stream := range streams {
		if _, found := nodes[stream.ID()]; found {
			continue
		}
		n := &node{stream: stream, emit: true, seen: make(map[uint64]struct{})}
		nodes[stream.ID()] = n
		queue = append(queue, n)
	}

	find := func(ref string) *node {
		if n, found := nodes[ref]; found {
			return n
		}
		for _, n := range nodes {
			if n.stream.Name() == ref {
				return n
			}
		}
		return nil
	}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		ref := n.stream.Parent()
		if ref == "" {
			continue
		}

		parent := find(ref)
		if parent == nil {
			produced, err := a.driver.ProduceSchema(ctx, ref)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve parent %s of stream %s: %s", ref, n.stream.ID(), err)
			}
			parent = &node{stream: produced.Wrap(), seen: make(map[uint64]struct{})}
			nodes[parent.stream.ID()] = parent
			queue = append(queue, parent)
			logger.Infof("stream %s is synced to derive partitions of %s", parent.stream.ID(), n.stream.ID())
		}
		n.parent = parent
		parent.children = append(parent.children, n)
	}

	depths := make(map[*node]int, len(nodes))
	maxDepth := 0
	for _, n := range nodes {
		depth := 0
		for cur := n.parent; cur != nil; cur = cur.parent {
			depth++
			if depth > len(nodes) {
				return nil, fmt.Errorf("stream %s has a cyclic parent chain", n.stream.ID())
			}
		}
		depths[n] = depth
		maxDepth = max(maxDepth, depth)
	}

	levels := make([][]*node, maxDepth+1)
	for n, depth := range depths {
		levels[depth] = append(levels[depth], n)
	}
	for _, level := range levels {
		sort.Slice(level, func(i, j int) bool {
			return level[i].stream.ID() < level[j].stream.ID()
		})
	}
	return levels, nil
}

func (a *AbstractDriver) syncPartition(ctx context.Context, pool *destination.WriterPool, n *node, partition types.Context, report *SyncReport) (err error) {
	stream := n.stream
	var result *rest.Result
	defer func() {
		report.partitionDone(stream.ID(), result, err)
	}()
	defer safego.RecoverInto(&err, fmt.Sprintf("stream %s partition[%s]", stream.ID(), partition.Key()))

	incremental := n.emit && stream.GetSyncMode() == types.INCREMENTAL && stream.Cursor() != ""
	var cursor any
	if incremental {
		cursor, err = a.store.GetCursor(ctx, stream.ID(), partition.Key())
		if err != nil {
			return fmt.Errorf("failed to read cursor: %s", err)
		}
		if cursor == nil {
			cursor = a.driver.StartCursor(stream)
		}
	}

	// partition context, so sibling partitions are not affected by a failure here
	partitionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var thread *destination.ThreadEvent
	if n.emit {
		threadID := generateThreadID(stream.ID(), partition)
		thread, err = pool.NewThread(partitionCtx, stream, destination.WithIdentifier(threadID), destination.WithPartition(partition))
		if err != nil {
			return fmt.Errorf("failed to create writer thread: %s", err)
		}
		logger.Debugf("Thread[%s]: created writer for stream %s", threadID, stream.ID())

		defer handleWriterCleanup(partitionCtx, cancel, &err, thread, threadID, func(ctx context.Context) error {
			if !incremental || result == nil || result.MaxCursor == nil {
				return nil
			}
			if err := a.store.SetCursor(ctx, stream.ID(), partition, result.MaxCursor); err != nil {
				return fmt.Errorf("failed to persist cursor: %s", err)
			}
			snapshot, err := a.store.Snapshot(ctx)
			if err != nil {
				return fmt.Errorf("failed to snapshot state: %s", err)
			}
			return pool.WriteState(ctx, snapshot)
		})()
	}

	emit := func(record types.Record) error {
		if thread != nil {
			if err := thread.Push(types.RecordEnvelope{
				Stream:      stream.Name(),
				Namespace:   stream.Namespace(),
				Context:     partition,
				ExtractedAt: time.Now().UTC(),
				Record:      record,
			}); err != nil {
				return err
			}
		}
		for _, child := range n.children {
			childCtx, err := a.driver.ChildContext(child.stream, record, partition)
			if err != nil {
				return fmt.Errorf("failed to derive context of %s: %s", child.stream.ID(), err)
			}
			if childCtx == nil {
				continue
			}
			if err := child.addContext(childCtx); err != nil {
				return err
			}
		}
		return nil
	}

	err = RetryOnBackoff(partitionCtx, a.driver.MaxRetries()+1, retryBackoff, func() error {
		var runErr error
		result, runErr = n.runner.Run(partitionCtx, partition, cursor, emit)
		return runErr
	})
	if err != nil {
		return err
	}

	logger.Infof("finished partition[%s] of stream %s: %d records over %d pages", partition.Key(), stream.ID(), result.Records, result.Pages)
	return nil
}
