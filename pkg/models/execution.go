package models

import "time"

// StepExecution records one step actually running within one instance: one
// row per (instance, step number), created when the step becomes current and
// completed when the step's work is done. The status field reuses the
// instance enum; only pending, in_progress and completed are meaningful here.
//
// Invariant: for a given instance exactly one execution has a non-terminal
// status at any time, and it belongs to the instance's current step.
type StepExecution struct {
	ID          string         `json:"id"`
	InstanceID  string         `json:"instance_id"`
	StepNumber  int            `json:"step_number"`
	Status      InstanceStatus `json:"status"`
	InputData   map[string]any `json:"input_data,omitempty"`
	OutputData  map[string]any `json:"output_data,omitempty"`
	AssignedTo  string         `json:"assigned_to,omitempty"`
	CompletedBy string         `json:"completed_by,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Open reports whether the execution is still waiting for its step's work.
func (e *StepExecution) Open() bool {
	return e.Status == InstanceStatusPending || e.Status == InstanceStatusInProgress
}
