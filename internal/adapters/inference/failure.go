package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// FailureClass is the retry tier of a provider failure.
type FailureClass int

const (
	// FailureTransient covers timeouts, connection failures, rate limits,
	// and generic server errors. Retried with bounded backoff.
	FailureTransient FailureClass = iota
	// FailurePermanent covers invalid requests, authentication and
	// authorization failures, and malformed response payloads. Never retried.
	FailurePermanent
	// FailureUnknown covers everything else. Logged to the durable error log
	// and then treated as permanent to avoid retry loops on unknown failure
	// modes.
	FailureUnknown
)

// APIError is a non-2xx response from the inference provider.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Body)
}

// ErrMalformedResponse marks a payload with missing or unexpected keys.
var ErrMalformedResponse = errors.New("malformed provider response")

// ClassifyFailure assigns a provider error to its retry tier.
func ClassifyFailure(err error) FailureClass {
	if errors.Is(err, context.Canceled) {
		// The caller gave up; retrying would only fight the context.
		return FailurePermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTransient
	}
	if errors.Is(err, ErrMalformedResponse) {
		return FailurePermanent
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode == http.StatusRequestTimeout,
			apiErr.StatusCode >= http.StatusInternalServerError:
			return FailureTransient
		case apiErr.StatusCode == http.StatusBadRequest,
			apiErr.StatusCode == http.StatusUnauthorized,
			apiErr.StatusCode == http.StatusForbidden,
			apiErr.StatusCode == http.StatusUnprocessableEntity:
			return FailurePermanent
		default:
			return FailureUnknown
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureTransient
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return FailureTransient
	}

	return FailureUnknown
}
