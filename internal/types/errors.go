package types

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrInvalidEndpointFormat indicates an endpoint string that does not
	// parse as host:port or host:port:user:pass
	ErrInvalidEndpointFormat = errors.New("invalid endpoint format")

	// ErrNoEndpointsAvailable indicates an empty pool with no direct fallback
	ErrNoEndpointsAvailable = errors.New("no endpoints available")

	// ErrAllAttemptsFailed indicates the retry chain and the direct
	// fallback were both exhausted
	ErrAllAttemptsFailed = errors.New("all attempts failed")

	// ErrEndpointNotFound indicates the requested endpoint is not registered
	ErrEndpointNotFound = errors.New("endpoint not found")

	// ErrDuplicateEndpoint indicates the endpoint is already registered
	ErrDuplicateEndpoint = errors.New("endpoint already exists")

	// ErrInvalidTranscription indicates a solver response that failed validation
	ErrInvalidTranscription = errors.New("invalid transcription response")

	// ErrAttemptTimeout indicates a single attempt hit its deadline
	ErrAttemptTimeout = errors.New("attempt timed out")

	// ErrNetworkFailure indicates a transport-level failure
	ErrNetworkFailure = errors.New("network failure")

	// ErrCircuitBreakerOpen indicates the circuit breaker is open
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

	// ErrRateLimitExceeded indicates the rate limit has been exceeded
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrUnauthorized indicates authentication is required
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidConfiguration indicates invalid configuration
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ValidationError represents a validation error with details
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// MultiError represents multiple errors
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("multiple errors: %v", e.Errors)
}

// Add adds an error to the MultiError
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (e *MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// RelayError wraps an error with the operation and endpoint involved
type RelayError struct {
	Op       string       // Operation that failed
	Kind     EndpointKind // Pool involved
	Endpoint string       // Endpoint address, empty for direct attempts
	Err      error        // Original error
}

func (e RelayError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Op, e.Kind, e.Endpoint, e.Err)
	}
	if e.Kind != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e RelayError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is absorbed by the retry loop
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrAttemptTimeout):
		return true
	case errors.Is(err, ErrNetworkFailure):
		return true
	case errors.Is(err, ErrInvalidTranscription):
		return true
	case errors.Is(err, ErrNoEndpointsAvailable):
		return false // nothing left to retry against
	case errors.Is(err, ErrAllAttemptsFailed):
		return false
	case errors.Is(err, ErrCircuitBreakerOpen):
		return false
	case errors.Is(err, ErrRateLimitExceeded):
		return false
	default:
		var relayErr *RelayError
		if errors.As(err, &relayErr) {
			return IsRetryable(relayErr.Err)
		}
		return false
	}
}
