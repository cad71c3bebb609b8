package governor

import (
	"errors"
	"fmt"
)

// Error taxonomy for governed provider calls. Callers branch with
// errors.Is; the underlying provider error stays reachable through
// errors.Unwrap.
var (
	// ErrRateLimited is returned when the provider's token bucket stays
	// empty past the configured wait timeout. The caller should back
	// off until the next cycle, not retry immediately.
	ErrRateLimited = errors.New("rate limited")

	// ErrFatal is returned for non-retryable upstream rejections
	// (authentication, malformed request). Never retried.
	ErrFatal = errors.New("fatal provider error")

	// ErrDeadlineExceeded is returned when a retry could not be
	// scheduled before the caller's deadline. Work for this cycle is
	// discarded and retried on the next poll.
	ErrDeadlineExceeded = errors.New("deadline exceeded")

	// ErrUnknownProvider is returned for provider IDs the governor was
	// not configured with.
	ErrUnknownProvider = errors.New("unknown provider")
)

// TransientError marks a provider failure as retryable: timeouts,
// 5xx-equivalent responses, connection resets, upstream 429s.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. A nil err returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
