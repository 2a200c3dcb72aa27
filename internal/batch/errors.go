// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdiddy/poster-to-markdown/internal/completion"
	"github.com/pdiddy/poster-to-markdown/internal/imageload"
	"github.com/pdiddy/poster-to-markdown/internal/search"
)

// WriteError reports that a job's markdown could not be written.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ErrorKind names the category of err as recorded on a failed job.
func ErrorKind(err error) string {
	var (
		unsupported *imageload.UnsupportedFormatError
		decode      *imageload.DecodeError
		auth        *completion.AuthenticationError
		rateLimit   *completion.RateLimitError
		api         *completion.APIError
		searchErr   *search.SearchError
		write       *WriteError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &unsupported):
		return "UnsupportedFormatError"
	case errors.As(err, &decode):
		return "DecodeError"
	case errors.As(err, &auth):
		return "AuthenticationError"
	case errors.As(err, &rateLimit):
		return "RateLimitError"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Cancelled"
	case errors.As(err, &api):
		return "APIError"
	case errors.As(err, &searchErr):
		return "SearchError"
	case errors.As(err, &write):
		return "WriteError"
	default:
		return "Error"
	}
}
