// Package workflow contains the template registry service and the instance
// lifecycle engine.
package workflow

import (
	"errors"
	"fmt"
)

// Error kinds the HTTP layer maps onto status codes.
var (
	// ErrValidation marks client errors (400 Bad Request).
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks missing entities (404 Not Found).
	ErrNotFound = errors.New("not found")

	// ErrConflict marks business-rule conflicts (409 Conflict).
	ErrConflict = errors.New("conflict")

	// ErrForbidden marks actor mismatches (403 Forbidden).
	ErrForbidden = errors.New("forbidden")
)

// OperationError wraps engine and registry errors with the operation that
// produced them.
type OperationError struct {
	Op      string // Operation name
	Message string // Human-readable message
	Err     error  // Error kind, or an underlying error
}

func (e *OperationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func (e *OperationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewValidationError(op, message string) *OperationError {
	return &OperationError{Op: op, Message: message, Err: ErrValidation}
}

func NewNotFoundError(op, message string) *OperationError {
	return &OperationError{Op: op, Message: message, Err: ErrNotFound}
}

func NewConflictError(op, message string) *OperationError {
	return &OperationError{Op: op, Message: message, Err: ErrConflict}
}

func NewAuthorizationError(op, message string) *OperationError {
	return &OperationError{Op: op, Message: message, Err: ErrForbidden}
}

// IsValidationError checks if an error should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflictError checks if an error should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsAuthorizationError checks if an error should return HTTP 403.
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrForbidden)
}
