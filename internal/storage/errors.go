package storage

import (
	"errors"
	"fmt"
)

// Kind classifies a storage error so callers can branch on the class of
// failure without parsing messages.
type Kind string

const (
	// KindConfiguration marks fatal startup problems: a missing or
	// invalid backend setting, or an unrecognized backend family.
	KindConfiguration Kind = "configuration"
	// KindValidation marks caller mistakes: uniqueness violations,
	// updates against missing rows, unknown field names.
	KindValidation Kind = "validation"
	// KindDatabase marks backend failures: refused connections, failed
	// queries, and invocations of unsupported capabilities.
	KindDatabase Kind = "database"
)

// Error is the error type returned by every storage component. It wraps
// the underlying backend failure for diagnostics but never carries raw
// credentials.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "postgres.create"
	Message string
	Err     error // wrapped cause, may be nil

	// notSupported flags a capability-gated operation invoked against a
	// backend that cannot honor it.
	notSupported bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewConfigurationError reports an invalid or incomplete configuration.
func NewConfigurationError(op, format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NewValidationError reports a caller-side mistake such as a uniqueness
// violation or an unknown field name.
func NewValidationError(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NewDatabaseError wraps a backend failure.
func NewDatabaseError(op, message string, cause error) *Error {
	return &Error{Kind: KindDatabase, Op: op, Message: message, Err: cause}
}

// NewNotSupportedError reports a capability-gated operation that the
// backend cannot honor. It is a database-kind error callers can detect
// with IsNotSupported.
func NewNotSupportedError(op, backend string) *Error {
	return &Error{
		Kind:         KindDatabase,
		Op:           op,
		Message:      fmt.Sprintf("operation not supported on the %s backend", backend),
		notSupported: true,
	}
}

func isKind(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// IsConfiguration reports whether err is a configuration-class error.
func IsConfiguration(err error) bool { return isKind(err, KindConfiguration) }

// IsValidation reports whether err is a validation-class error.
func IsValidation(err error) bool { return isKind(err, KindValidation) }

// IsDatabase reports whether err is a database-class error.
func IsDatabase(err error) bool { return isKind(err, KindDatabase) }

// IsNotSupported reports whether err marks an unsupported capability.
func IsNotSupported(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.notSupported
	}
	return false
}
