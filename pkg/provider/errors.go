package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ConfigError reports an invalid provider/model pair or a missing
// credential. Config errors are fatal and never retried.
type ConfigError struct {
	Message string
	EnvVar  string // the credential source that was required, if any
}

func (e *ConfigError) Error() string {
	if e.EnvVar != "" {
		return fmt.Sprintf("%s (set %s)", e.Message, e.EnvVar)
	}
	return e.Message
}

// NewConfigError creates a ConfigError without a credential hint.
func NewConfigError(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

// APIError is an error returned by a provider endpoint, classified by
// status code so callers can decide whether to retry.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	Retryable  bool
	Cause      error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// FromStatusCode classifies an HTTP status into an APIError.
func FromStatusCode(providerName string, status int, message string, cause error) *APIError {
	e := &APIError{
		Provider:   providerName,
		StatusCode: status,
		Message:    message,
		Cause:      cause,
	}

	switch status {
	case 408, 429, 500, 502, 503, 504:
		e.Retryable = true
	default:
		e.Retryable = false
	}
	return e
}

// IsRetryable reports whether an error is a transient provider failure
// worth retrying with backoff. Authentication and request-shape errors
// are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}

	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// SDK errors surface as plain errors; classify by message the way
	// the raw HTTP layer reports them.
	msg := err.Error()
	for _, marker := range []string{"429", "rate limit", "500", "502", "503", "504", "timeout", "connection reset", "connection refused", "EOF"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	for _, marker := range []string{"401", "403", "invalid api key", "authentication"} {
		if strings.Contains(msg, marker) {
			return false
		}
	}

	// Unknown transport failures default to retryable.
	return true
}
