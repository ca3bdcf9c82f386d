package utils

import (
	"context"
	"fmt"
	"sync"

	"github.com/datazip-inc/resttap/utils/safego"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// ErrExec executes a list of functions concurrently and returns the first
// error; the shared context is cancelled as soon as one function fails.
func ErrExec(ctx context.Context, functions ...func(ctx context.Context) error) error {
	group, gCtx := errgroup.WithContext(ctx)

	for _, one := range functions {
		group.Go(safego.Go("ErrExec", func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				return one(gCtx)
			}
		}))
	}

	return group.Wait()
}

// ConcurrentCollect runs fn for every item with at most limit goroutines.
// Failures do not cancel siblings; every error is accumulated.
func ConcurrentCollect[T any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, idx int, item T) error) error {
	group := &errgroup.Group{}
	if limit > 0 {
		group.SetLimit(limit)
	}

	var (
		mu     sync.Mutex
		result error
	)
	for idx, item := range items {
		group.Go(func() error {
			err := safego.Go(fmt.Sprintf("item[%d]", idx), func() error {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fn(ctx, idx, item)
			})()
			if err != nil {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()

	return result
}

// ErrExecSequential executes functions one after another, accumulating errors.
func ErrExecSequential(functions ...func() error) error {
	var multErr error
	for _, one := range functions {
		if err := one(); err != nil {
			multErr = multierror.Append(multErr, err)
		}
	}

	return multErr
}

// ErrExecFormat formats the error returned from a function according to the provided format string.
func ErrExecFormat(format string, function func() error) func() error {
	return func() error {
		if err := function(); err != nil {
			return fmt.Errorf(format, err)
		}
		return nil
	}
}
