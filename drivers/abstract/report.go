package abstract

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/datazip-inc/resttap/pkg/rest"
	"github.com/datazip-inc/resttap/utils/logger"
	"github.com/hashicorp/go-multierror"
)

type StreamReport struct {
	Stream           string        `json:"stream"`
	Partitions       int           `json:"partitions"`
	FailedPartitions int           `json:"failed_partitions"`
	Pages            int           `json:"pages"`
	Records          int           `json:"records"`
	SkippedRecords   int           `json:"skipped_records"`
	Duration         time.Duration `json:"duration"`
	Error            string        `json:"error,omitempty"`
	startedAt        time.Time
}

// SyncReport collects per stream outcomes of one sync run. Failures of one
// stream never stop the others; they are aggregated here.
type SyncReport struct {
	RunID   string                   `json:"run_id"`
	Streams map[string]*StreamReport `json:"streams"`
	mu      sync.Mutex
	errs    *multierror.Error
}

func NewSyncReport(runID string) *SyncReport {
	return &SyncReport{
		RunID:   runID,
		Streams: make(map[string]*StreamReport),
	}
}

func (r *SyncReport) stream(streamID string) *StreamReport {
	one, found := r.Streams[streamID]
	if !found {
		one = &StreamReport{Stream: streamID, startedAt: time.Now()}
		r.Streams[streamID] = one
	}
	return one
}

func (r *SyncReport) partitionDone(streamID string, result *rest.Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	one := r.stream(streamID)
	one.Partitions++
	one.Duration = time.Since(one.startedAt)
	if result != nil {
		one.Pages += result.Pages
		one.Records += result.Records
		one.SkippedRecords += result.SkippedRecords
	}
	if err != nil {
		one.FailedPartitions++
		one.Error = err.Error()
		r.errs = multierror.Append(r.errs, fmt.Errorf("stream %s: %w", streamID, err))
	}
}

func (r *SyncReport) streamFailed(streamID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stream(streamID).Error = err.Error()
	r.errs = multierror.Append(r.errs, fmt.Errorf("stream %s: %w", streamID, err))
}

// Failed reports whether any partition of the stream failed.
func (r *SyncReport) Failed(streamID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	one, found := r.Streams[streamID]
	return found && one.Error != ""
}

// Err returns every stream failure of the run, nil when all succeeded.
func (r *SyncReport) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs.ErrorOrNil()
}

func (r *SyncReport) Log() {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.Streams))
	for id := range r.Streams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		one := r.Streams[id]
		if one.Error != "" {
			logger.Errorf("run[%s] stream %s failed after %d/%d partitions: %s", r.RunID, id, one.Partitions-one.FailedPartitions, one.Partitions, one.Error)
			continue
		}
		logger.Infof("run[%s] stream %s synced %d records (%d skipped) over %d pages in %s", r.RunID, id, one.Records, one.SkippedRecords, one.Pages, one.Duration.Round(time.Millisecond))
	}
}
