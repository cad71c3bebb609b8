package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/governor"
)

// Default HTTP timeout for adapter requests. The governor enforces its
// own acquire deadline on top of this.
const DefaultTimeout = 10 * time.Second

// Adapter fetches one provider's view of a token and normalizes it
// into a PartialRecord. Adapters never retry; retry and rate-limit
// policy belongs to the governor that wraps every Fetch call.
type Adapter interface {
	// ID returns the provider identifier used for rate limiting,
	// metadata namespacing and sample attribution.
	ID() string

	// Fetch returns the provider's current answer for a token. Errors
	// that may heal on retry (timeouts, 429, 5xx) are marked transient;
	// everything else is terminal for the attempt.
	Fetch(ctx context.Context, address string) (*domain.PartialRecord, error)
}

// statusError converts a non-OK HTTP status into an adapter error.
// Rate limiting and server-side failures are transient; client errors
// are not, a retry would just repeat them.
func statusError(providerID string, status int) error {
	err := fmt.Errorf("%s: unexpected status %d", providerID, status)
	if status == http.StatusTooManyRequests || status >= 500 {
		return governor.Transient(err)
	}
	return err
}

// requestError wraps a transport-level failure. Network errors are
// always worth retrying.
func requestError(providerID string, err error) error {
	return governor.Transient(fmt.Errorf("%s: http request: %w", providerID, err))
}

func ptr[T any](v T) *T {
	return &v
}
