package rest

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/datazip-inc/resttap/constants"
	"github.com/datazip-inc/resttap/pkg/rest/auth"
)

type AuthenticationError = auth.AuthenticationError

// TransientHTTPError is returned once the retry budget for a retryable
// failure (5xx, 429, timeout, network) is exhausted.
type TransientHTTPError struct {
	URL        string
	StatusCode int // zero for network failures
	Attempts   int
	Err        error
}

func (e *TransientHTTPError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("request to %s failed with status %d after %d attempt(s)", e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("request to %s failed after %d attempt(s): %s", e.URL, e.Attempts, e.Err)
}

func (e *TransientHTTPError) Unwrap() error {
	return e.Err
}

// FatalHTTPError is a client error that retrying cannot fix.
type FatalHTTPError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *FatalHTTPError) Error() string {
	return fmt.Sprintf("request to %s failed with status %d: %s", e.URL, e.StatusCode, e.Body)
}

func (e *FatalHTTPError) Is(target error) bool {
	return target == constants.ErrNonRetryable
}

// ParseError means the response body could not be decoded at all.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse response for path %q: %s", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// PaginationLoopError signals that pagination stopped making progress.
type PaginationLoopError struct {
	Token any
	Page  int
	Limit int
}

func (e *PaginationLoopError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("pagination exceeded max pages (%d)", e.Limit)
	}
	return fmt.Sprintf("pagination token %v repeated on page %d", e.Token, e.Page)
}

func (e *PaginationLoopError) Is(target error) bool {
	return target == constants.ErrNonRetryable
}

// RecordError is a failure confined to one record of a page.
type RecordError struct {
	Index int
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d: %s", e.Index, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

type statusClass int

const (
	statusOK statusClass = iota
	statusRetryable
	statusUnauthorized
	statusFatal
)

func classifyStatus(code int, retryable map[int]bool) statusClass {
	switch {
	case code >= 200 && code < 300:
		return statusOK
	case retryable[code]:
		return statusRetryable
	case len(retryable) == 0 && (code == http.StatusTooManyRequests || code >= http.StatusInternalServerError):
		return statusRetryable
	case code == http.StatusUnauthorized:
		return statusUnauthorized
	default:
		return statusFatal
	}
}

// IsRetryable reports whether err is worth retrying at a higher level, e.g.
// re-running the stream on the next schedule.
func IsRetryable(err error) bool {
	if errors.Is(err, constants.ErrNonRetryable) {
		return false
	}
	var transient *TransientHTTPError
	var parse *ParseError
	return errors.As(err, &transient) || errors.As(err, &parse)
}
