// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package completion

import (
	"fmt"
	"time"
)

// APIError reports a transport failure or an unsuccessful response from the
// completion API. StatusCode is zero for transport failures.
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("completion API returned %d: %s", e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("completion API: %s: %v", e.Message, e.Err)
	default:
		return "completion API: " + e.Message
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// AuthenticationError reports a missing or rejected API key. It recurs for
// every request, so callers treat it as fatal for the whole batch.
type AuthenticationError struct {
	StatusCode int
	Message    string
}

func (e *AuthenticationError) Error() string {
	if e.StatusCode == 0 {
		return "authentication failed: " + e.Message
	}
	return fmt.Sprintf("authentication failed (%d): %s", e.StatusCode, e.Message)
}

// RateLimitError reports that the provider is throttling requests.
type RateLimitError struct {
	Message string

	// RetryAfter is the provider's suggested wait, zero when not given.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %v): %s", e.RetryAfter, e.Message)
	}
	return "rate limited: " + e.Message
}
