package webhook

import (
	"errors"
	"fmt"
	"strings"
)

// TransportError covers DNS failures, refused or reset connections, and
// timeouts. Retryable.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx response from the receiver. Retryable.
type HTTPError struct {
	StatusCode int
	Body       string // truncated
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: status %d", e.StatusCode)
}

// ConfigError is a subscription misconfiguration (malformed target URL,
// empty secret) detected before any network call. Never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// Retryable reports whether a delivery error may succeed on a later attempt
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var cfgErr *ConfigError
	return !errors.As(err, &cfgErr)
}

// FailureReason buckets a delivery error for metrics labels
func FailureReason(err error) string {
	if err == nil {
		return "other"
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return "config"
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode >= 500:
			return "http_5xx"
		case httpErr.StatusCode == 429:
			return "http_429"
		case httpErr.StatusCode >= 400:
			return "http_4xx"
		default:
			return "other"
		}
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		errLower := strings.ToLower(transportErr.Err.Error())
		if strings.Contains(errLower, "timeout") || strings.Contains(errLower, "deadline exceeded") {
			return "timeout"
		}
		if strings.Contains(errLower, "connection refused") {
			return "connection_refused"
		}
		if strings.Contains(errLower, "no such host") || strings.Contains(errLower, "dns") {
			return "dns_error"
		}
		return "network"
	}
	return "other"
}
