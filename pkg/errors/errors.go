package errors

import (
	"errors"
	"fmt"
)

// Domain error types for business logic

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrUnavailable indicates a service is unavailable
	ErrUnavailable = errors.New("service unavailable")
)

// Fight lifecycle errors

var (
	// ErrFightNotFound indicates the fight does not exist
	ErrFightNotFound = errors.New("fight not found")

	// ErrFightNotJoinable indicates the fight is not accepting a second participant
	ErrFightNotJoinable = errors.New("fight is not joinable")

	// ErrFightNotCancellable indicates the fight has already started or ended
	ErrFightNotCancellable = errors.New("fight is not cancellable")

	// ErrSelfJoin indicates a creator attempted to join their own fight
	ErrSelfJoin = errors.New("cannot join own fight")

	// ErrParticipantNotFound indicates the user is not part of the fight
	ErrParticipantNotFound = errors.New("participant not found")
)

// Settlement errors

var (
	// ErrNotSettleable indicates the fight does not qualify for settlement yet
	ErrNotSettleable = errors.New("fight is not settleable")

	// ErrAlreadySettled indicates the fight already reached a terminal status
	ErrAlreadySettled = errors.New("fight already settled")

	// ErrLockNotAcquired indicates another process holds the settlement lock
	ErrLockNotAcquired = errors.New("settlement lock not acquired")

	// ErrLockLost indicates the settlement lock was stolen before commit
	ErrLockLost = errors.New("settlement lock lost")

	// ErrAdjudicatorUnavailable indicates the adjudicator could not be reached
	ErrAdjudicatorUnavailable = errors.New("adjudicator unavailable")
)

// Mark price errors

var (
	// ErrMarkPriceMissing indicates no cached mark price for a symbol
	ErrMarkPriceMissing = errors.New("mark price missing")

	// ErrMarkFeedNotConnected indicates the mark price stream is down
	ErrMarkFeedNotConnected = errors.New("mark feed not connected")
)

// DomainError wraps an error with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error with field-specific details
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
