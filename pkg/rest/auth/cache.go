package auth

import (
	"context"
	"errors"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/datazip-inc/resttap/constants"
	"github.com/datazip-inc/resttap/utils/logger"
	"golang.org/x/sync/singleflight"
)

const refreshRetries = 2

// transientError marks a token endpoint failure worth retrying.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var t *transientError
	if errors.As(err, &t) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// tokenCache holds one dynamic credential. The mutex guards only the cached
// value; concurrent refreshes are collapsed into a single token request.
type tokenCache struct {
	method string
	fetch  func(ctx context.Context) (*Credential, error)
	leeway time.Duration
	now    func() time.Time

	mu     sync.Mutex
	cached *Credential
	group  singleflight.Group
}

func newTokenCache(method string, fetch func(ctx context.Context) (*Credential, error)) *tokenCache {
	return &tokenCache{
		method: method,
		fetch:  fetch,
		leeway: constants.TokenExpiryLeeway,
		now:    time.Now,
	}
}

func (c *tokenCache) current() *Credential {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cached
}

func (c *tokenCache) Authenticate(ctx context.Context) (*Credential, error) {
	if cred := c.current(); !cred.Expired(c.now(), c.leeway) {
		return cred, nil
	}

	value, err, _ := c.group.Do(c.method, func() (any, error) {
		// a concurrent caller may have refreshed while we waited
		if cred := c.current(); !cred.Expired(c.now(), c.leeway) {
			return cred, nil
		}

		cred, err := c.refresh(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cached = cred
		c.mu.Unlock()
		return cred, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Credential), nil
}

func (c *tokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = nil
}

func (c *tokenCache) refresh(ctx context.Context) (*Credential, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = 0

	cred, err := backoff.RetryNotifyWithData(func() (*Credential, error) {
		cred, err := c.fetch(ctx)
		if err != nil && !isTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return cred, err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, refreshRetries), ctx), func(err error, next time.Duration) {
		logger.Warnf("%s token refresh failed, retrying in %s: %s", c.method, next, err)
	})
	if err != nil {
		var authErr *AuthenticationError
		if errors.As(err, &authErr) {
			return nil, err
		}
		return nil, &AuthenticationError{Method: c.method, Err: err}
	}

	logger.Debugf("refreshed %s token, expires at %s", c.method, cred.ExpiresAt)
	return cred, nil
}
