// Package auth produces request credentials for REST streams and keeps
// time-limited tokens fresh.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/datazip-inc/resttap/constants"
)

// Credential is the material injected into a request.
type Credential struct {
	Headers map[string]string
	Params  map[string]string
	// zero means the credential does not expire
	ExpiresAt time.Time
}

// Expired reports whether the credential is expired or will be within leeway.
func (c *Credential) Expired(now time.Time, leeway time.Duration) bool {
	if c == nil {
		return true
	}
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(leeway).Before(c.ExpiresAt)
}

// Authenticator returns a currently valid credential, refreshing it when the
// cached one is absent or expired. Safe for concurrent use.
type Authenticator interface {
	Authenticate(ctx context.Context) (*Credential, error)
}

// Refresher is implemented by authenticators holding a token that the server
// may reject before its advertised expiry.
type Refresher interface {
	Invalidate()
}

// AuthenticationError is fatal for a stream: retrying needs new credentials.
type AuthenticationError struct {
	Method     string
	StatusCode int
	Err        error
}

func (e *AuthenticationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authentication failed (%s, status %d): %s", e.Method, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("authentication failed (%s): %s", e.Method, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

func (e *AuthenticationError) Is(target error) bool {
	return target == constants.ErrNonRetryable
}
