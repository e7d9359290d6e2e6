package models

import "time"

// InstanceStatus represents the lifecycle state of a workflow instance.
// Pending and in-progress are the only non-terminal states.
type InstanceStatus string

const (
	InstanceStatusPending    InstanceStatus = "pending"
	InstanceStatusInProgress InstanceStatus = "in_progress"
	InstanceStatusCompleted  InstanceStatus = "completed"
	InstanceStatusRejected   InstanceStatus = "rejected"
	InstanceStatusCancelled  InstanceStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s InstanceStatus) Terminal() bool {
	switch s {
	case InstanceStatusCompleted, InstanceStatusRejected, InstanceStatusCancelled:
		return true
	default:
		return false
	}
}

// WorkflowInstance is one running case of a template. Instances are never
// deleted; cancellation is a terminal status, not a deletion.
type WorkflowInstance struct {
	ID                string         `json:"id"`
	TemplateID        string         `json:"template_id"`
	InstanceCode      string         `json:"instance_code"`
	Title             string         `json:"title"`
	Description       string         `json:"description"`
	Status            InstanceStatus `json:"status"`
	CurrentStepNumber int            `json:"current_step_number"`
	FormData          map[string]any `json:"form_data"`
	Metadata          map[string]any `json:"metadata"`
	RelatedEntityType string         `json:"related_entity_type,omitempty"`
	RelatedEntityID   string         `json:"related_entity_id,omitempty"`
	InitiatedBy       string         `json:"initiated_by"`
	AssignedTo        string         `json:"assigned_to,omitempty"`
	StartedAt         time.Time      `json:"started_at"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	DueDate           *time.Time     `json:"due_date,omitempty"` // advisory only, never enforced
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// InstanceDetail is the hydrated view returned by engine queries: the
// instance plus its template steps, executions, approvals, comments and the
// most recent slice of the activity log.
type InstanceDetail struct {
	Instance   *WorkflowInstance   `json:"instance"`
	Steps      []*WorkflowStep     `json:"steps"`
	Executions []*StepExecution    `json:"executions"`
	Approvals  []*WorkflowApproval `json:"approvals"`
	Comments   []*WorkflowComment  `json:"comments"`
	Activity   []*ActivityEntry    `json:"activity"`
}
