package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownPrefix indicates that a namespace prefix is not declared
	ErrUnknownPrefix = errors.New("unknown prefix")

	// ErrTemplateSubstitutionMismatch indicates that template variables resolved to different match counts
	ErrTemplateSubstitutionMismatch = errors.New("template substitution mismatch")

	// ErrSerializationFailure indicates that a segment could not be serialized or stored
	ErrSerializationFailure = errors.New("serialization failure")

	// ErrUnsupportedFormat indicates that a serialization format is not recognized
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrInvalidDescriptor indicates that a descriptor cannot be evaluated
	ErrInvalidDescriptor = errors.New("invalid descriptor")
)

// Error codes carried by Error.Code
const (
	CodeUnknownPrefix                = "UNKNOWN_PREFIX"
	CodeTemplateSubstitutionMismatch = "TEMPLATE_SUBSTITUTION_MISMATCH"
	CodeSerializationFailure         = "SERIALIZATION_FAILURE"
	CodeUnsupportedFormat            = "UNSUPPORTED_FORMAT"
	CodeInvalidDescriptor            = "INVALID_DESCRIPTOR"
)

// Error represents a structured Daedalus error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// UnknownPrefix reports an undeclared prefix used by term.
func UnknownPrefix(prefix, term string) *Error {
	return NewError(CodeUnknownPrefix, fmt.Sprintf("prefix %q in %q is not declared", prefix, term), ErrUnknownPrefix)
}

// TemplateMismatch reports a template whose variables do not agree on a match count.
func TemplateMismatch(template, variable string, got, want int) *Error {
	return NewError(CodeTemplateSubstitutionMismatch,
		fmt.Sprintf("template %q: variable %q has %d values, expected %d", template, variable, got, want),
		ErrTemplateSubstitutionMismatch)
}

// SerializationFailure wraps an error raised while writing segment.
func SerializationFailure(segment string, err error) *Error {
	return NewError(CodeSerializationFailure, fmt.Sprintf("segment %q", segment),
		fmt.Errorf("%w: %w", ErrSerializationFailure, err))
}

// UnsupportedFormat reports an unrecognized format name.
func UnsupportedFormat(name string) *Error {
	return NewError(CodeUnsupportedFormat, fmt.Sprintf("format %q is not supported", name), ErrUnsupportedFormat)
}

// InvalidDescriptor reports a descriptor that cannot be evaluated.
func InvalidDescriptor(message string) *Error {
	return NewError(CodeInvalidDescriptor, message, ErrInvalidDescriptor)
}

// IsUnknownPrefix checks if an error is an unknown prefix error
func IsUnknownPrefix(err error) bool {
	return errors.Is(err, ErrUnknownPrefix)
}

// IsTemplateMismatch checks if an error is a template substitution mismatch
func IsTemplateMismatch(err error) bool {
	return errors.Is(err, ErrTemplateSubstitutionMismatch)
}

// IsSerializationFailure checks if an error is a serialization failure
func IsSerializationFailure(err error) bool {
	return errors.Is(err, ErrSerializationFailure)
}

// IsUnsupportedFormat checks if an error is an unsupported format error
func IsUnsupportedFormat(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat)
}
