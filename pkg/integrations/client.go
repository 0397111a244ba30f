package integrations

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/matzehuels/nftgen/pkg/httputil"
)

// DefaultTimeout bounds a whole request, including the body upload.
const DefaultTimeout = 10 * time.Minute

var (
	// ErrNetwork is returned for transport failures and 5xx responses.
	ErrNetwork = errors.New("network error")

	// ErrRejected is returned for 4xx responses other than 429.
	ErrRejected = errors.New("request rejected")
)

// NewHTTPClient creates an HTTP client with the given timeout, or
// DefaultTimeout when timeout is zero.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// NetworkError wraps a transport failure as retryable.
func NetworkError(err error) error {
	return &httputil.RetryableError{Err: fmt.Errorf("%w: %v", ErrNetwork, err)}
}

// CheckStatus classifies a response status. detail is appended to the error
// message, typically the service's own error text.
func CheckStatus(code int, detail string) error {
	msg := fmt.Sprintf("status %d", code)
	if detail != "" {
		msg += ": " + detail
	}
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests, code >= 500:
		return &httputil.RetryableError{Err: fmt.Errorf("%w: %s", ErrNetwork, msg)}
	default:
		return fmt.Errorf("%w: %s", ErrRejected, msg)
	}
}
