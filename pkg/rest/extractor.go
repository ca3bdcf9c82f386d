package rest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/datazip-inc/resttap/constants"
	"github.com/datazip-inc/resttap/pkg/rest/auth"
	"github.com/datazip-inc/resttap/types"
	"github.com/datazip-inc/resttap/utils/logger"
	"github.com/datazip-inc/resttap/utils/typeutils"
	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type OnRecordError string

const (
	SkipRecord OnRecordError = "skip"
	FailRecord OnRecordError = "fail"
)

const maxErrorBody = 512

type phase int

const (
	phaseStart phase = iota
	phaseFetching
	phaseParsing
	phaseMorePages
	phaseDone
)

// EmitFunc receives records one at a time as they are parsed.
type EmitFunc func(record types.Record) error

// Result summarizes one extraction pass over a partition.
type Result struct {
	Pages          int
	Records        int
	SkippedRecords int
	StartCursor    any
	// highest replication key value seen, never below StartCursor
	MaxCursor any
}

// Extractor drives the fetch, parse and paginate loop for one stream. It holds
// no per-run state and may run several partitions concurrently.
type Extractor struct {
	StreamID       string
	Client         *http.Client
	Auth           auth.Authenticator
	Builder        *RequestBuilder
	Parser         *ResponseParser
	Paginator      Paginator
	Retry          RetryConfig
	ReplicationKey string
	MaxPages       int
	OnRecordError  OnRecordError
}

// Run extracts every page of a partition starting after cursor. Records reach
// emit in document order; a page whose fetch fails emits nothing.
func (e *Extractor) Run(ctx context.Context, partition types.Context, cursor any, emit EmitFunc) (*Result, error) {
	result := &Result{}
	tracer := otel.Tracer("resttap/extractor")
	seen := make(map[string]struct{})
	maxPages := e.MaxPages
	if maxPages <= 0 {
		maxPages = constants.DefaultMaxPages
	}

	var (
		token    any
		response *Response
		span     trace.Span
		pageCtx  context.Context
	)
	fail := func(err error) (*Result, error) {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
		}
		return result, err
	}

	current := phaseStart
	for {
		switch current {
		case phaseStart:
			token = nil
			result.StartCursor = cursor
			result.MaxCursor = cursor
			current = phaseFetching

		case phaseFetching:
			if result.Pages >= maxPages {
				return fail(&PaginationLoopError{Token: token, Page: result.Pages + 1, Limit: maxPages})
			}
			pageCtx, span = tracer.Start(ctx, "extract.page", trace.WithAttributes(
				attribute.String("stream", e.StreamID),
				attribute.String("partition", partition.Key()),
				attribute.Int("page", result.Pages+1),
			))

			var err error
			response, err = e.fetch(pageCtx, partition, token, cursor)
			if err != nil {
				return fail(err)
			}
			result.Pages++
			current = phaseParsing

		case phaseParsing:
			count, err := e.consume(pageCtx, response, partition, result, emit)
			if err != nil {
				return fail(err)
			}
			response.RecordCount = count
			span.SetAttributes(attribute.Int("records", count))

			next, err := e.Paginator.NextToken(response, token)
			if err != nil {
				return fail(fmt.Errorf("failed to read next page token: %s", err))
			}
			span.End()
			span = nil

			if next == nil {
				current = phaseDone
				continue
			}
			key := tokenKey(next)
			if _, repeated := seen[key]; repeated {
				return fail(&PaginationLoopError{Token: next, Page: result.Pages})
			}
			seen[key] = struct{}{}
			token = next
			current = phaseMorePages

		case phaseMorePages:
			logger.Debugf("stream %s partition[%s]: fetching page %d with token %v", e.StreamID, partition.Key(), result.Pages+1, token)
			current = phaseFetching

		case phaseDone:
			return result, nil
		}
	}
}

func (e *Extractor) consume(ctx context.Context, resp *Response, partition types.Context, result *Result, emit EmitFunc) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	records, err := e.Parser.Parse(resp.Body, partition)
	if err != nil {
		return 0, err
	}

	count := 0
	for record, err := range records {
		count++
		if err != nil {
			if e.OnRecordError == FailRecord {
				return count, err
			}
			result.SkippedRecords++
			logger.Warnf("stream %s: skipping record: %s", e.StreamID, err)
			continue
		}

		if err := emit(record); err != nil {
			return count, err
		}
		result.Records++

		if e.ReplicationKey != "" {
			if value, found := record.Get(e.ReplicationKey); found && value != nil {
				result.MaxCursor = typeutils.Max(result.MaxCursor, value)
			}
		}
	}
	return count, nil
}

// fetch sends one page request, retrying transient failures with exponential
// backoff and re-authenticating once on 401.
func (e *Extractor) fetch(ctx context.Context, partition types.Context, token, cursor any) (*Response, error) {
	retry := e.Retry.withDefaults()
	retryable := retry.retryable()
	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}

	attempts := 0
	reauthenticated := false
	operation := func() (*Response, error) {
		attempts++
		for {
			cred, err := e.Auth.Authenticate(ctx)
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			req, err := e.Builder.Build(partition, token, cursor, cred)
			if err != nil {
				return nil, backoff.Permanent(err)
			}

			resp, err := e.send(ctx, client, req, retry.RequestTimeout)
			if err != nil {
				var permanent *backoff.PermanentError
				switch {
				case ctx.Err() != nil:
					return nil, backoff.Permanent(ctx.Err())
				case errors.As(err, &permanent):
					return nil, err
				}
				return nil, &TransientHTTPError{URL: redact(req), Err: err}
			}

			switch classifyStatus(resp.StatusCode, retryable) {
			case statusOK:
				return resp, nil
			case statusRetryable:
				return nil, &TransientHTTPError{URL: redact(req), StatusCode: resp.StatusCode, Err: fmt.Errorf("status %d: %s", resp.StatusCode, truncate(resp.Body))}
			case statusUnauthorized:
				refresher, canRefresh := e.Auth.(auth.Refresher)
				if reauthenticated || !canRefresh {
					return nil, backoff.Permanent(&AuthenticationError{Method: "request", StatusCode: resp.StatusCode, Err: fmt.Errorf("%s rejected credentials: %s", redact(req), truncate(resp.Body))})
				}
				logger.Infof("stream %s: received 401, refreshing credentials", e.StreamID)
				refresher.Invalidate()
				reauthenticated = true
				continue
			default:
				return nil, backoff.Permanent(&FatalHTTPError{URL: redact(req), StatusCode: resp.StatusCode, Body: truncate(resp.Body)})
			}
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retry.InitialInterval
	policy.MaxInterval = retry.MaxInterval
	policy.Multiplier = retry.Multiplier
	policy.MaxElapsedTime = 0

	resp, err := backoff.RetryNotifyWithData(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retry.MaxAttempts-1)), ctx),
		func(err error, next time.Duration) {
			logger.Warnf("stream %s: attempt %d/%d failed, retrying in %s: %s", e.StreamID, attempts, retry.MaxAttempts, next, err)
		})
	if err != nil {
		var transient *TransientHTTPError
		if errors.As(err, &transient) {
			transient.Attempts = attempts
		}
		return nil, err
	}
	return resp, nil
}

// send performs one HTTP round trip and reads the full body so that a
// cancelled or timed out fetch never yields a partial page.
func (e *Extractor) send(ctx context.Context, client *http.Client, req *Request, timeout time.Duration) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := req.HTTPRequest(attemptCtx)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
		Request:    req,
	}, nil
}

func tokenKey(token any) string {
	switch token.(type) {
	case map[string]any, []any:
		data, err := json.Marshal(token)
		if err == nil {
			return string(data)
		}
	}
	return types.FormatValue(token)
}

// redact drops the query string, which may carry credentials.
func redact(req *Request) string {
	u := *req.URL
	u.RawQuery = ""
	return u.String()
}

func truncate(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		return text[:maxErrorBody] + "..."
	}
	return text
}
