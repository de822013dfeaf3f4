package domain

import "errors"

var (
	ErrModelNotFound      = errors.New("model not found")
	ErrNotInitialized     = errors.New("provider not initialized")
	ErrMissingAPIKey      = errors.New("provider API key not configured")
	ErrEmptyResponse      = errors.New("empty response from provider")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrAuthentication     = errors.New("provider authentication failed")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrOverloaded         = errors.New("provider overloaded")
	ErrServer             = errors.New("provider server error")
	ErrStreamUnsupported  = errors.New("streaming not supported by provider")
	ErrUsageLimitExceeded = errors.New("usage limit exceeded")
	ErrValidation         = errors.New("validation failed")
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)

// IsRetryable reports whether err is a transient provider failure worth
// retrying with backoff. Configuration, validation, and authentication
// failures are never retryable.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrOverloaded) ||
		errors.Is(err, ErrServer)
}
