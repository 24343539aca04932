package sandbox

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceUnavailable means the sandbox could not be reached at all.
	ErrServiceUnavailable = errors.New("sandbox unavailable")
	// ErrRequestTimeout means the gateway-side deadline fired before the
	// sandbox answered. Distinct from the sandbox's own run/compile timeout,
	// which surfaces as a non-zero exit inside the result.
	ErrRequestTimeout = errors.New("sandbox request timed out")
)

// ExecutionError is a non-2xx response from the sandbox.
type ExecutionError struct {
	StatusCode int
	Body       string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("sandbox returned %d: %s", e.StatusCode, e.Body)
}
