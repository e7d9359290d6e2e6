package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types all implementations use.
var (
	// ErrTemplateNotFound indicates a workflow template was not found.
	ErrTemplateNotFound = errors.New("workflow template not found")

	// ErrStepNotFound indicates a template step was not found.
	ErrStepNotFound = errors.New("workflow step not found")

	// ErrInstanceNotFound indicates a workflow instance was not found.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrExecutionNotFound indicates a step execution was not found.
	ErrExecutionNotFound = errors.New("step execution not found")

	// ErrApprovalNotFound indicates an approval was not found.
	ErrApprovalNotFound = errors.New("approval not found")

	// ErrDuplicateTemplateCode indicates a template with the same code exists.
	ErrDuplicateTemplateCode = errors.New("template code already exists")

	// ErrDuplicateStepNumber indicates the (template, step number) pair exists.
	ErrDuplicateStepNumber = errors.New("step number already exists for template")

	// ErrDuplicateApproval indicates the (instance, step, approver) row exists.
	ErrDuplicateApproval = errors.New("approval already exists for approver")

	// ErrStaleInstance indicates a compare-and-swap update lost a race: the
	// stored instance no longer matches the expected status and step.
	ErrStaleInstance = errors.New("instance was modified concurrently")
)

// StoreError wraps a persistence failure with operation context.
type StoreError struct {
	Op       string // operation being performed, e.g. "Instances.Update"
	EntityID string // affected entity ID if applicable
	Err      error
}

func (e *StoreError) Error() string {
	if e.EntityID != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.EntityID, e.Err)
	}

	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a StoreError with context.
func NewStoreError(op, entityID string, err error) *StoreError {
	return &StoreError{Op: op, EntityID: entityID, Err: err}
}

// IsNotFound checks whether an error indicates any missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound) ||
		errors.Is(err, ErrStepNotFound) ||
		errors.Is(err, ErrInstanceNotFound) ||
		errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrApprovalNotFound)
}

// IsDuplicate checks whether an error indicates a uniqueness violation.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateTemplateCode) ||
		errors.Is(err, ErrDuplicateStepNumber) ||
		errors.Is(err, ErrDuplicateApproval)
}

// IsStaleInstance checks whether an error indicates a lost CAS race.
func IsStaleInstance(err error) bool {
	return errors.Is(err, ErrStaleInstance)
}
