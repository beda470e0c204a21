// Package errors provides standardized error handling for semledger
// components. It includes error classification, the ledger error kinds
// surfaced to callers, and helper functions for consistent error
// wrapping across the merge, validation, and policy pipelines.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Kind identifies the ledger-level failure surface an error belongs to.
// Kinds are stable across wrapping and drive the status code reported
// to external callers.
type Kind string

const (
	// KindNone is the zero kind for errors without a ledger kind.
	KindNone Kind = ""
	// KindInvalidCommit covers malformed or inconsistent commit chains:
	// broken t sequences, missing data addresses, unresolvable
	// retraction targets. Fatal to the merge.
	KindInvalidCommit Kind = "db/invalid-commit"
	// KindShaclValidation covers shape constraint violations raised
	// while admitting a transaction.
	KindShaclValidation Kind = "db/shacl-validation"
	// KindInvalidPolicy covers missing or malformed policy definitions
	// discovered during permission compilation.
	KindInvalidPolicy Kind = "db/invalid-policy"
	// KindIO covers opaque failures from storage collaborators.
	KindIO Kind = "db/io"
)

// Status returns the status code reported for this kind.
func (k Kind) Status() int {
	switch k {
	case KindShaclValidation, KindInvalidPolicy:
		return 400
	default:
		return 500
	}
}

// Standard error variables for common conditions
var (
	// Commit and chain errors
	ErrMissingPrevious = errors.New("commit missing previous address")
	ErrMissingData     = errors.New("commit missing data address")
	ErrEmptyCommit     = errors.New("commit has no assertions or retractions")
	ErrBrokenChain     = errors.New("commit t sequence broken")
	ErrUnknownIRI      = errors.New("iri not found")
	ErrUnknownSubject  = errors.New("subject not found")

	// Storage and retrieval errors
	ErrKeyNotFound        = errors.New("key not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrDataCorrupted      = errors.New("data corrupted")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")

	// Feature gaps that must fail loudly rather than guess
	ErrNotImplemented = errors.New("not yet implemented")
)

// ClassifiedError wraps an error with its classification and kind
type ClassifiedError struct {
	Class     ErrorClass
	Kind      Kind
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Status returns the status code for the error's kind.
func (ce *ClassifiedError) Status() int {
	return ce.Kind.Status()
}

// KindOf returns the ledger kind of an error, or KindNone if the error
// carries no kind anywhere in its chain.
func KindOf(err error) Kind {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindNone
}

// StatusOf returns the status code to report for an error. Errors
// without a ledger kind report 500.
func StatusOf(err error) int {
	return KindOf(err).Status()
}

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}

	// Check error message for common transient patterns
	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "connection", "unavailable", "temporary"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return errors.Is(err, ErrDataCorrupted) ||
		errors.Is(err, ErrBrokenChain) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig)
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrUnknownIRI) ||
		errors.Is(err, ErrUnknownSubject) ||
		errors.Is(err, ErrEmptyCommit)
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}
	return ErrorTransient
}

// newClassified creates a new classified error.
// Internal helper - use the Wrap and kind constructor families instead.
func newClassified(class ErrorClass, kind Kind, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Kind:      kind,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, KindOf(err), wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, KindOf(err), wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, KindOf(err), wrappedErr, component, method, wrappedErr.Error())
}

// InvalidCommit creates a fatal invalid-commit error with a formatted
// message. All merge-engine failure paths funnel through here so the
// kind and status stay uniform.
func InvalidCommit(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return newClassified(ErrorFatal, KindInvalidCommit, errors.New(msg), "ledger", "merge", msg)
}

// InvalidCommitWrap attaches the invalid-commit kind to an existing error.
func InvalidCommitWrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	wrapped := fmt.Errorf("%s: %w", msg, err)
	return newClassified(ErrorFatal, KindInvalidCommit, wrapped, "ledger", "merge", wrapped.Error())
}

// ShaclValidation creates a shape-violation error. The message carries
// the constraint and values that failed; there is no finer subtype.
func ShaclValidation(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return newClassified(ErrorInvalid, KindShaclValidation, errors.New(msg), "shacl", "validate", msg)
}

// InvalidPolicy creates an invalid-policy error, distinguishing a
// missing or malformed policy from a generic query failure.
func InvalidPolicy(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return newClassified(ErrorInvalid, KindInvalidPolicy, errors.New(msg), "policy", "compile", msg)
}

// IO wraps an opaque storage collaborator failure.
func IO(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, KindIO, wrappedErr, component, method, wrappedErr.Error())
}

// Re-exports so callers don't need to import both this package and the
// standard library errors package.

// New creates a plain error.
func New(text string) error { return errors.New(text) }

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return errors.As(err, target) }
