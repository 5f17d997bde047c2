package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeMalformed represents requests that cannot be parsed
	ErrTypeMalformed ErrorType = "malformed_request"
	// ErrTypeAuth represents authentication errors
	ErrTypeAuth ErrorType = "authentication"
	// ErrTypeValidation represents validation errors
	ErrTypeValidation ErrorType = "validation"
	// ErrTypeConfig represents configuration errors
	ErrTypeConfig ErrorType = "config"
	// ErrTypeConnection represents connection-related errors
	ErrTypeConnection ErrorType = "connection"
	// ErrTypePayloadTooLarge represents oversized request bodies
	ErrTypePayloadTooLarge ErrorType = "payload_too_large"
	// ErrTypeRateLimit represents rate limit errors
	ErrTypeRateLimit ErrorType = "rate_limit"
	// ErrTypeInternal represents internal system errors
	ErrTypeInternal ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		contextParts := make([]string, 0, len(keys))
		for _, k := range keys {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context={%s}", strings.Join(contextParts, ", ")))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// MalformedError creates an error for a request that cannot be parsed
func MalformedError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeMalformed,
		Message: msg,
		Cause:   cause,
	}
}

// AuthError creates a new authentication error
func AuthError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeAuth,
		Message: msg,
	}
}

// ValidationError creates a new validation error
func ValidationError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeValidation,
		Message: msg,
	}
}

// ConfigError creates a new configuration error
func ConfigError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeConfig,
		Message: msg,
	}
}

// ConnectionError creates a new connection error
func ConnectionError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeConnection,
		Message: msg,
		Cause:   cause,
	}
}

// PayloadTooLargeError creates an error for a body over limit bytes
func PayloadTooLargeError(limit int64) *AppError {
	return &AppError{
		Type:    ErrTypePayloadTooLarge,
		Message: fmt.Sprintf("request body exceeds %d bytes", limit),
	}
}

// RateLimitError creates a new rate limit error
func RateLimitError(resource string) *AppError {
	return &AppError{
		Type:    ErrTypeRateLimit,
		Message: fmt.Sprintf("rate limit exceeded for %s", resource),
	}
}

// InternalError creates a new internal error
func InternalError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeInternal,
		Message: msg,
		Cause:   cause,
	}
}

// IsType checks if an error, or any error it wraps, is an AppError of errType
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Type == errType
}

// GetType returns the error type if err wraps an AppError, otherwise
// ErrTypeInternal. A nil error has no type.
func GetType(err error) ErrorType {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return ErrTypeInternal
	}
	return appErr.Type
}

// HTTPStatus maps an error type to the status code the receiver answers with.
func HTTPStatus(errType ErrorType) int {
	switch errType {
	case ErrTypeMalformed:
		return http.StatusBadRequest
	case ErrTypeAuth:
		return http.StatusUnauthorized
	case ErrTypeValidation:
		return http.StatusUnprocessableEntity
	case ErrTypePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrTypeConnection:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
