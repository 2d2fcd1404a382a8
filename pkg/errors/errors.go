package errors

import "fmt"

// ErrorType classifies the failures the harvesting pipeline can produce
type ErrorType string

const (
	// ErrorTypeNetwork covers transport failures and retryable HTTP statuses
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeValidation covers downloaded content failing decode/size/dimension checks
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeDiscovery covers listing or album pages that fail to parse
	ErrorTypeDiscovery ErrorType = "discovery"
	// ErrorTypeRateLimit covers host-side throttling responses
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeStorage covers filesystem failures while persisting output
	ErrorTypeStorage  ErrorType = "storage"
	ErrorTypeNotFound ErrorType = "not_found"
	ErrorTypeUnknown  ErrorType = "unknown"
)

// Error is a classified pipeline error with an optional wrapped cause
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error without a cause
func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Wrap creates a classified error carrying the underlying cause
func Wrap(t ErrorType, message string, err error) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// NetworkFailure builds the terminal error returned after fetch attempts are exhausted
func NetworkFailure(url string, code int, err error) *Error {
	return &Error{
		Type:    ErrorTypeNetwork,
		Message: fmt.Sprintf("fetch failed for %s", url),
		Code:    code,
		Err:     err,
	}
}

// IsRetryable reports whether an error type is worth re-attempting
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit:
		return true
	case ErrorTypeValidation:
		// Retryable by re-fetching, never by re-validating the same bytes.
		return true
	case ErrorTypeDiscovery, ErrorTypeNotFound, ErrorTypeStorage:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable failure
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // transport-level failure, no response
		return true
	case 429:
		return true
	case 500, 502, 503, 504:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
