package helpers

import (
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type FinboardError struct {
	Message string
	Cause   error
}

func (e *FinboardError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *FinboardError) Unwrap() error {
	return e.Cause
}

// Distinct error families for type assertions. Configuration errors are
// reported synchronously before any connection attempt; Auth errors are
// never retried.
type ConfigurationError struct{ FinboardError }
type TransportError struct{ FinboardError }
type AuthError struct{ FinboardError }
type RateLimitError struct{ FinboardError }
type DatabaseError struct{ FinboardError }

// -----------------------------------------------------------------------------

func NewConfigurationError(format string, args ...interface{}) error {
	return &ConfigurationError{FinboardError{Message: fmt.Sprintf(format, args...)}}
}

func NewAuthError(format string, args ...interface{}) error {
	return &AuthError{FinboardError{Message: fmt.Sprintf(format, args...)}}
}

func NewRateLimitError(format string, args ...interface{}) error {
	return &RateLimitError{FinboardError{Message: fmt.Sprintf(format, args...)}}
}

func WrapTransportError(msg string, cause error) error {
	return &TransportError{FinboardError{Message: msg, Cause: cause}}
}

func WrapDatabaseError(msg string, cause error) error {
	return &DatabaseError{FinboardError{Message: msg, Cause: cause}}
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryWithBackoff attempts to execute the operation up to maxRetries times with exponential backoff.
func RetryWithBackoff(operation string, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt == maxRetries-1 {
			break
		}

		delay := baseDelay * (1 << attempt)
		fmt.Printf("Warning: Attempt %d/%d failed for %s: %v. Retrying in %v\n", attempt+1, maxRetries, operation, err, delay)
		time.Sleep(delay)
	}

	return &FinboardError{Message: fmt.Sprintf("%s failed after %d attempts", operation, maxRetries), Cause: lastErr}
}
