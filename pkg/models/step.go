package models

import "time"

// StepType is the closed set of step behaviours the engine knows how to run.
type StepType string

const (
	StepTypeForm         StepType = "form"
	StepTypeAutomation   StepType = "automation"
	StepTypeApproval     StepType = "approval"
	StepTypeNotification StepType = "notification"
)

// Valid reports whether the step type is one of the known variants.
func (s StepType) Valid() bool {
	switch s {
	case StepTypeForm, StepTypeAutomation, StepTypeApproval, StepTypeNotification:
		return true
	default:
		return false
	}
}

// WorkflowStep is a single unit of work inside a template. StepNumber is
// 1-based and unique within the template; it defines the total order, there
// is no branching. Config is an opaque payload interpreted only by the
// component that understands the step's type (form field list, automation
// action name and params, approver list, notification template name).
type WorkflowStep struct {
	ID         string         `json:"id"`
	TemplateID string         `json:"template_id"`
	StepNumber int            `json:"step_number" validate:"min=1"`
	Name       string         `json:"name"        validate:"required"`
	StepType   StepType       `json:"step_type"   validate:"required"`
	Config     map[string]any `json:"config"`
	IsRequired bool           `json:"is_required"`
	IsActive   bool           `json:"is_active"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
