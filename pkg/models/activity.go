package models

import "time"

// ActivityAction identifies what happened in an activity log entry.
type ActivityAction string

const (
	ActivityCreated          ActivityAction = "created"
	ActivityStepStarted      ActivityAction = "step_started"
	ActivityStepCompleted    ActivityAction = "step_completed"
	ActivityApproved         ActivityAction = "approved"
	ActivityRejected         ActivityAction = "rejected"
	ActivityCompleted        ActivityAction = "completed"
	ActivityCancelled        ActivityAction = "cancelled"
	ActivityAutomationFailed ActivityAction = "automation_failed"
	ActivityCommentAdded     ActivityAction = "comment_added"
	ActivityApproverAssigned ActivityAction = "approver_assigned"
)

// ActivityEntry is a system-authored structured event on an instance. The
// activity log is append-only and is the canonical audit trail: every state
// transition appends exactly one entry.
type ActivityEntry struct {
	ID          string         `json:"id"`
	InstanceID  string         `json:"instance_id"`
	Action      ActivityAction `json:"action"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
	StepNumber  int            `json:"step_number,omitempty"`
	ActorID     string         `json:"actor_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// WorkflowComment is user-authored free text attached to an instance,
// append-only like the activity log.
type WorkflowComment struct {
	ID         string    `json:"id"`
	InstanceID string    `json:"instance_id"`
	AuthorID   string    `json:"author_id"`
	Body       string    `json:"body"`
	Mentions   []string  `json:"mentions,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
