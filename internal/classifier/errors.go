package classifier

import (
	"context"
	"errors"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
)

var (
	// ErrTimeout indicates the call exceeded its deadline.
	ErrTimeout = errors.New("classification call timed out")
	// ErrRateLimited indicates the capability rejected the call for capacity reasons.
	ErrRateLimited = errors.New("classification capability rate limited")
	// ErrUnavailable indicates a transient server-side failure.
	ErrUnavailable = errors.New("classification capability unavailable")
	// ErrRejected indicates a permanent failure such as an invalid request or credentials.
	ErrRejected = errors.New("classification request rejected")
	// ErrEmptyResponse indicates the reply contained no text content.
	ErrEmptyResponse = errors.New("classification response empty")
)

// IsTransient reports whether err should be retried on the timeout budget.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUnavailable)
}

func mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrTimeout, err)
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode == 529:
			return errors.Join(ErrRateLimited, err)
		case apiErr.StatusCode == http.StatusRequestTimeout || apiErr.StatusCode == http.StatusGatewayTimeout:
			return errors.Join(ErrTimeout, err)
		case apiErr.StatusCode >= http.StatusInternalServerError:
			return errors.Join(ErrUnavailable, err)
		default:
			return errors.Join(ErrRejected, err)
		}
	}

	return errors.Join(ErrUnavailable, err)
}
