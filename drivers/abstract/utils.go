package abstract

import (
	"context"
	"fmt"
	"time"

	"github.com/datazip-inc/resttap/destination"
	"github.com/datazip-inc/resttap/pkg/rest"
	"github.com/datazip-inc/resttap/utils"
	"github.com/datazip-inc/resttap/utils/logger"
)

// initial wait between partition attempts, doubled after each retry
var retryBackoff = time.Second

// RetryOnBackoff reruns f while it fails with a retryable extraction error,
// e.g. an exhausted transient HTTP error or a malformed page. Errors matching
// constants.ErrNonRetryable stop at once.
func RetryOnBackoff(ctx context.Context, attempts int, sleep time.Duration, f func() error) (err error) {
	for cur := 0; cur < attempts; cur++ {
		if err = f(); err == nil {
			return nil
		}
		if ctx.Err() != nil || !rest.IsRetryable(err) {
			break
		}
		if attempts > 1 && cur != attempts-1 {
			logger.Infof("retry attempt[%d], retrying after %.2f seconds due to err: %s", cur+1, sleep.Seconds(), err)
			select {
			case <-ctx.Done():
				return err
			case <-time.After(sleep):
			}
			sleep = sleep * 2
		}
	}

	return err
}

// handleWriterCleanup returns a deferred func closing the partition writer.
// postProcess only runs when extraction and close both succeeded; any failure
// or panic cancels the partition context so in-flight work stops.
func handleWriterCleanup(ctx context.Context, cancel context.CancelFunc, err *error, thread *destination.ThreadEvent, threadID string, postProcess func(ctx context.Context) error) func() {
	return func() {
		if *err != nil {
			cancel()
		}

		// check for panics before closing the writer
		if r := recover(); r != nil {
			*err = utils.Ternary(*err == nil, fmt.Errorf("panic recovered: %v", r), fmt.Errorf("%s: prev error: %w", r, *err)).(error)
		}

		if closeErr := thread.Close(); closeErr != nil {
			closeErr = fmt.Errorf("failed to close writer: %s", closeErr)
			*err = utils.Ternary(*err == nil, closeErr, fmt.Errorf("%s: prev error: %w", closeErr, *err)).(error)
		}

		if *err != nil {
			cancel()
			*err = fmt.Errorf("thread[%s]: %w", threadID, *err)
			return
		}

		if postErr := postProcess(ctx); postErr != nil {
			*err = fmt.Errorf("thread[%s]: %w", threadID, postErr)
		}
	}
}
