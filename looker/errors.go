// Package looker provides the typed facade over the Looker REST API used
// by extraction and restoration: paginated fetches, create/update/exists,
// adaptive rate limiting, and a retry policy for transient failures.
package looker

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for API failure classification.
var (
	// ErrRateLimited indicates an HTTP 429 response.
	ErrRateLimited = errors.New("rate limited")

	// ErrNotFound indicates an HTTP 404 response.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates an HTTP 422 response; the payload is
	// rejected and retrying cannot help.
	ErrValidation = errors.New("validation failed")

	// ErrAuth indicates an authentication failure (401/403).
	ErrAuth = errors.New("authentication failed")

	// ErrRetriesExhausted wraps the last error after the retry budget
	// is spent.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// StatusError is returned for non-2xx HTTP responses. Carrying the status
// code lets callers distinguish retriable (429, 5xx) from permanent (other
// 4xx) failures.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("looker API returned %d: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("looker API returned %d", e.Code)
}

// Is maps well-known status codes onto the sentinel errors.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Code == http.StatusTooManyRequests
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	case ErrValidation:
		return e.Code == http.StatusUnprocessableEntity
	case ErrAuth:
		return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
	}
	return false
}

// retriable reports whether a response code is worth retrying:
// 429 and the transient 5xx family.
func retriable(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Permanent reports whether err is a non-retryable API failure
// (4xx other than 429). Network errors and 5xx are transient.
func Permanent(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 400 && statusErr.Code < 500 &&
			statusErr.Code != http.StatusTooManyRequests
	}
	return false
}

// ErrorType names the failure class for dead-letter diagnostics.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrRateLimited):
		return "RateLimitError"
	case errors.Is(err, ErrNotFound):
		return "NotFoundError"
	case errors.Is(err, ErrAuth):
		return "AuthError"
	default:
		return "APIError"
	}
}
