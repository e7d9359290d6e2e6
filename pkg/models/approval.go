package models

import "time"

// ApprovalStatus is the state of one approver's vote.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// ApprovalDecision is the decision value an approver submits.
type ApprovalDecision string

const (
	DecisionApproved ApprovalDecision = "approved"
	DecisionRejected ApprovalDecision = "rejected"
)

// Valid reports whether the decision is a known value.
func (d ApprovalDecision) Valid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// WorkflowApproval is one approver's slot on an approval step: one row per
// (instance, step number, approver), created when the step becomes current
// and mutated exactly once by the named approver. Never re-opened after a
// decision.
type WorkflowApproval struct {
	ID            string           `json:"id"`
	InstanceID    string           `json:"instance_id"`
	StepNumber    int              `json:"step_number"`
	ApproverID    string           `json:"approver_id"`
	Status        ApprovalStatus   `json:"status"`
	Decision      ApprovalDecision `json:"decision,omitempty"`
	Comment       string           `json:"comment,omitempty"`
	AttachmentIDs []string         `json:"attachment_ids,omitempty"`
	RequestedAt   time.Time        `json:"requested_at"`
	RespondedAt   *time.Time       `json:"responded_at,omitempty"`
}
