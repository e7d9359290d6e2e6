// Package models defines the core domain models for the workflow case engine.
package models

import "time"

// WorkflowTemplate is the reusable definition of an ordered sequence of steps.
// Templates are created by administrators and become effectively immutable once
// instances reference them: deletion is blocked while any instance exists.
type WorkflowTemplate struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"        validate:"required,uppercase"`
	Name        string          `json:"name"        validate:"required,min=3"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	IsActive    bool            `json:"is_active"`
	Version     int             `json:"version"`
	Steps       []*WorkflowStep `json:"steps"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ActiveSteps returns the template's active steps ordered by step number.
// The stored order is already ascending; this only filters.
func (t *WorkflowTemplate) ActiveSteps() []*WorkflowStep {
	steps := make([]*WorkflowStep, 0, len(t.Steps))

	for _, step := range t.Steps {
		if step.IsActive {
			steps = append(steps, step)
		}
	}

	return steps
}

// StepByNumber returns the active step with the given number, or nil.
func (t *WorkflowTemplate) StepByNumber(number int) *WorkflowStep {
	for _, step := range t.Steps {
		if step.IsActive && step.StepNumber == number {
			return step
		}
	}

	return nil
}
