// Package serr defines the error taxonomy shared by the document store,
// producer queue and access checker.
//
// Every public operation in this module returns either nil or an *Error,
// so callers can branch on Code with errors.As instead of matching
// strings. The underlying cause (a backend error, a JSON error, ...) is
// preserved via Unwrap for logging.
package serr

import "fmt"

// Code identifies the category of failure. Values are stable and safe to
// compare across package versions.
type Code string

const (
	ConfigInvalid      Code = "config_invalid"
	ConfigMissingField Code = "config_missing_field"

	BackendWrite    Code = "backend_write"
	BackendRead     Code = "backend_read"
	BackendConflict Code = "backend_conflict"
	BackendDDL      Code = "backend_ddl"

	NotFound         Code = "not_found"
	DuplicateID      Code = "duplicate_id"
	PartitionMissing Code = "partition_missing"

	ValidationFailed      Code = "validation_failed"
	FieldRequiredMissing  Code = "field_required_missing"
	InvalidType           Code = "invalid_type"

	SerializeFailed Code = "serialize_failed"
	ParseFailed     Code = "parse_failed"

	TransportRetryable Code = "transport_retryable"
	TransportFatal     Code = "transport_fatal"

	MACForbidden   Code = "mac_forbidden"
	AccessDenied   Code = "access_denied"

	Cancelled   Code = "cancelled"
	Unsupported Code = "unsupported"

	DuplicateObjectID Code = "duplicate_object_id"
)

// Error is the concrete error type returned throughout the module.
type Error struct {
	Code    Code
	Message string
	Field   string // set for field_required_missing / invalid_type
	Cause   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s (field=%s): %v", e.Code, e.Message, e.Field, e.Cause)
		}
		return fmt.Sprintf("%s: %s (field=%s)", e.Code, e.Message, e.Field)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, serr.New(code, "")) to match on Code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New builds a bare Error with no cause.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error carrying cause as the underlying error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Field builds a field-scoped Error (field_required_missing, invalid_type).
func Field(code Code, field, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Field: field}
}

// Of returns the Code of err, or "" if err is not an *Error.
func Of(err error) Code {
	var e *Error
	if err == nil {
		return ""
	}
	if as, ok := err.(*Error); ok {
		return as.Code
	}
	_ = e
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return Of(err) == code
}
