package webhook

import (
	"errors"
	"fmt"
)

// ParseErrorKind classifies why webhook headers could not be parsed.
type ParseErrorKind int

const (
	// KindMissingField means a required header is absent or blank.
	KindMissingField ParseErrorKind = iota + 1
	// KindMalformedEncoding means a header is present but does not decode.
	KindMalformedEncoding
	// KindDuplicateField means a header carries conflicting values.
	KindDuplicateField
)

func (k ParseErrorKind) String() string {
	switch k {
	case KindMissingField:
		return "missing_field"
	case KindMalformedEncoding:
		return "malformed_encoding"
	case KindDuplicateField:
		return "duplicate_field"
	default:
		return "unknown"
	}
}

// Sentinels matched by ParseError.Is.
var (
	ErrMissingField      = errors.New("webhook: missing header field")
	ErrMalformedEncoding = errors.New("webhook: malformed header encoding")
	ErrDuplicateField    = errors.New("webhook: conflicting header values")
)

// ParseError reports a header that could not be turned into Headers.
type ParseError struct {
	Kind   ParseErrorKind
	Header string
	Cause  error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("webhook header %s: %s", e.Header, e.Kind)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match ParseError against the kind sentinels.
func (e *ParseError) Is(target error) bool {
	switch target {
	case ErrMissingField:
		return e.Kind == KindMissingField
	case ErrMalformedEncoding:
		return e.Kind == KindMalformedEncoding
	case ErrDuplicateField:
		return e.Kind == KindDuplicateField
	}
	return false
}

func missingField(header string) *ParseError {
	return &ParseError{Kind: KindMissingField, Header: header}
}

func malformed(header string, cause error) *ParseError {
	return &ParseError{Kind: KindMalformedEncoding, Header: header, Cause: cause}
}

func duplicate(header string) *ParseError {
	return &ParseError{Kind: KindDuplicateField, Header: header}
}

// ConfigError represents an invalid authenticator configuration.
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return "webhook config: " + e.Message
}

func newConfigError(format string, args ...interface{}) ConfigError {
	return ConfigError{Message: fmt.Sprintf(format, args...)}
}
