// Package errors defines the sentinel errors of tplot, their status codes
// and the process exit code each one maps to.
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Status codes - used as process exit codes and in wire error envelopes
// ============================================================================

const (
	CodeOK            int32 = 0
	CodeFailure       int32 = 1
	CodeUsage         int32 = 2
	CodeNotFound      int32 = 3
	CodeInvalidData   int32 = 4
	CodeInvalidOption int32 = 5
	CodeRender        int32 = 6
	CodeStorage       int32 = 7
	CodeSNMPError     int32 = 8
	CodeTimeout       int32 = 9
)

// CodeName returns a human-readable name for a status code.
func CodeName(code int32) string {
	switch code {
	case CodeOK:
		return "OK"
	case CodeFailure:
		return "Failure"
	case CodeUsage:
		return "Usage"
	case CodeNotFound:
		return "NotFound"
	case CodeInvalidData:
		return "InvalidData"
	case CodeInvalidOption:
		return "InvalidOption"
	case CodeRender:
		return "Render"
	case CodeStorage:
		return "Storage"
	case CodeSNMPError:
		return "SNMPError"
	case CodeTimeout:
		return "Timeout"
	default:
		return fmt.Sprintf("Code(%d)", code)
	}
}

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Not found errors
	ErrNotFound         = errors.New("not found")
	ErrVariableNotFound = errors.New("variable not found")
	ErrSessionNotFound  = errors.New("session not found")

	// Data errors
	ErrLengthMismatch  = errors.New("mismatched lengths")
	ErrShapeMismatch   = errors.New("mismatched shape")
	ErrEmptyData       = errors.New("empty data")
	ErrPseudoVariable  = errors.New("operation not supported on pseudo-variable")
	ErrNoOverlap       = errors.New("time ranges do not overlap")
	ErrInvalidTime     = errors.New("invalid time value")
	ErrNotSpectrogram  = errors.New("variable has no spectral bins")
	ErrNotEnoughPoints = errors.New("not enough points")

	// Validation errors
	ErrInvalidName   = errors.New("invalid name")
	ErrInvalidOption = errors.New("invalid option")
	ErrInvalidRange  = errors.New("invalid range")
	ErrInvalidOID    = errors.New("invalid OID")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingField  = errors.New("missing required field")

	// Output errors
	ErrUnsupportedFormat = errors.New("unsupported output format")
	ErrRender            = errors.New("render failed")

	// Protocol errors
	ErrSNMPError        = errors.New("SNMP error")
	ErrTimeout          = errors.New("timeout")
	ErrConnectionFailed = errors.New("connection failed")

	// Internal errors
	ErrInternal    = errors.New("internal error")
	ErrStorage     = errors.New("storage error")
	ErrDatabase    = errors.New("database error")
	ErrWriteClosed = errors.New("writer is closed")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrVariableNotFound) ||
		errors.Is(err, ErrSessionNotFound)
}

// IsDataError returns true if err was caused by malformed input data.
func IsDataError(err error) bool {
	return errors.Is(err, ErrLengthMismatch) ||
		errors.Is(err, ErrShapeMismatch) ||
		errors.Is(err, ErrEmptyData) ||
		errors.Is(err, ErrPseudoVariable) ||
		errors.Is(err, ErrNoOverlap) ||
		errors.Is(err, ErrInvalidTime) ||
		errors.Is(err, ErrNotSpectrogram) ||
		errors.Is(err, ErrNotEnoughPoints)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrInvalidOption) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidOID) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField)
}

// IsRetriable returns true if the error is potentially retriable.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnectionFailed)
}

// ============================================================================
// Error to code mapping
// ============================================================================

// ErrorToCode maps an error to its status code.
func ErrorToCode(err error) int32 {
	if err == nil {
		return CodeOK
	}

	switch {
	case IsNotFound(err):
		return CodeNotFound

	case IsDataError(err):
		return CodeInvalidData

	case Is(err, ErrInvalidOption), Is(err, ErrInvalidRange):
		return CodeInvalidOption
	case IsValidation(err):
		return CodeUsage

	case Is(err, ErrUnsupportedFormat), Is(err, ErrRender):
		return CodeRender

	case Is(err, ErrStorage), Is(err, ErrDatabase), Is(err, ErrWriteClosed):
		return CodeStorage

	case Is(err, ErrSNMPError), Is(err, ErrConnectionFailed):
		return CodeSNMPError
	case Is(err, ErrTimeout):
		return CodeTimeout

	default:
		return CodeFailure
	}
}

// ExitCode maps an error to a process exit code: 0 on success, 2 when the
// command was used wrongly (bad option, range or config), 1 otherwise.
func ExitCode(err error) int {
	switch ErrorToCode(err) {
	case CodeOK:
		return 0
	case CodeUsage, CodeInvalidOption:
		return 2
	default:
		return 1
	}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewNotFound creates a not-found error with context.
func NewNotFound(entityType, identifier string) error {
	return fmt.Errorf("%s '%s': %w", entityType, identifier, ErrNotFound)
}

// NewVariableNotFound creates a variable-not-found error naming the variable.
func NewVariableNotFound(name string) error {
	return fmt.Errorf("'%s': %w", name, ErrVariableNotFound)
}

// NewLengthMismatch reports two sequences that should have had equal length.
func NewLengthMismatch(what string, want, got int) error {
	return fmt.Errorf("%s: expected %d, got %d: %w", what, want, got, ErrLengthMismatch)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewInvalidOption reports a rejected plot option.
func NewInvalidOption(option string, value interface{}, reason string) error {
	return fmt.Errorf("option %s=%v: %s: %w", option, value, reason, ErrInvalidOption)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue creates an invalid value error.
func NewInvalidValue(field string, value interface{}, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, ErrInvalidConfig)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns all collected errors for errors.Is/As support.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
