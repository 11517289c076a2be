package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Sentinel errors for the two transient failure classes callers branch on.
var (
	ErrTimeout = errors.New("fetch timed out")
	ErrNetwork = errors.New("network failure")
)

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("non-success status code %d for %s", e.StatusCode, e.URL)
}

// classify wraps a raw transport error into the fetch error taxonomy.
func classify(url string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, url)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s", ErrTimeout, url)
	}

	// Colly surfaces client timeouts as plain errors with this substring
	if strings.Contains(err.Error(), "Client.Timeout") || strings.Contains(err.Error(), "context deadline exceeded") {
		return fmt.Errorf("%w: %s", ErrTimeout, url)
	}

	return fmt.Errorf("%w: %s: %v", ErrNetwork, url, err)
}

// IsTransient reports whether a fetch error is worth retrying: timeouts,
// network failures, and server-side status codes. Client errors (4xx other
// than 429) indicate the request itself is wrong and will not recover.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrNetwork) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == 429
	}
	return false
}
