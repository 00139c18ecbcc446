package llm

import (
	"context"
	"errors"
	"fmt"
)

// Error taxonomy for vendor calls. Adapters return these unchanged through
// the completion service; callers classify with errors.Is / errors.As.
var (
	// ErrProviderAuth means no API key is configured for the provider an
	// assistant requires. A configuration problem, never retried.
	ErrProviderAuth = errors.New("provider API key not configured")

	// ErrResponseShape means the vendor returned 2xx but the expected
	// fields were absent. Treated as an integration bug signal.
	ErrResponseShape = errors.New("unexpected provider response shape")

	// ErrUnsupportedProvider means the assistant is configured with a
	// provider value this server does not know. Fatal for that single
	// invocation only.
	ErrUnsupportedProvider = errors.New("unsupported model provider")

	// ErrProviderTimeout means the vendor call exceeded the configured
	// per-call deadline.
	ErrProviderTimeout = errors.New("provider call timed out")
)

// HTTPError is a non-2xx vendor response, surfaced verbatim to the caller.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.Status, e.Message)
}

// transportErr maps a failed round trip onto the taxonomy. Context
// expiry becomes ErrProviderTimeout so callers need not inspect net errors.
func transportErr(ctx context.Context, provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrProviderTimeout, provider)
	}
	return fmt.Errorf("%s request failed: %w", provider, err)
}

// ErrorReason returns a short stable label for an error, used as a
// metrics dimension.
func ErrorReason(err error) string {
	var httpErr *HTTPError
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrProviderAuth):
		return "auth"
	case errors.Is(err, ErrProviderTimeout):
		return "timeout"
	case errors.Is(err, ErrResponseShape):
		return "shape"
	case errors.Is(err, ErrUnsupportedProvider):
		return "unsupported_provider"
	case errors.As(err, &httpErr):
		return "http"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}
