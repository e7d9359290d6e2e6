// Package events defines event types published on instance lifecycle changes.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/caseflow-io/caseflow/pkg/models"
)

type EventType string

// Topic is the message topic all instance lifecycle events are published on.
const Topic = "caseflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	InstanceCreatedEvent   EventType = "instance.created"
	InstanceCompletedEvent EventType = "instance.completed"
	InstanceRejectedEvent  EventType = "instance.rejected"
	InstanceCancelledEvent EventType = "instance.cancelled"

	StepStartedEvent   EventType = "instance.step.started"
	StepCompletedEvent EventType = "instance.step.completed"

	ApprovalDecidedEvent  EventType = "instance.approval.decided"
	AutomationFailedEvent EventType = "instance.automation.failed"
)

type Event interface {
	GetType() EventType
	GetInstanceID() string
}

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	InstanceID string         `json:"instance_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, instanceID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		InstanceID: instanceID,
	}
}

func (b BaseEvent) GetInstanceID() string {
	return b.InstanceID
}

type InstanceCreated struct {
	BaseEvent

	TemplateID   string `json:"template_id"`
	InstanceCode string `json:"instance_code"`
	InitiatedBy  string `json:"initiated_by"`
}

func (e InstanceCreated) GetType() EventType {
	return InstanceCreatedEvent
}

type InstanceCompleted struct {
	BaseEvent

	InstanceCode string        `json:"instance_code"`
	Duration     time.Duration `json:"duration"`
}

func (e InstanceCompleted) GetType() EventType {
	return InstanceCompletedEvent
}

type InstanceRejected struct {
	BaseEvent

	InstanceCode string `json:"instance_code"`
	StepNumber   int    `json:"step_number"`
	RejectedBy   string `json:"rejected_by"`
	Comment      string `json:"comment,omitempty"`
}

func (e InstanceRejected) GetType() EventType {
	return InstanceRejectedEvent
}

type InstanceCancelled struct {
	BaseEvent

	InstanceCode string `json:"instance_code"`
	CancelledBy  string `json:"cancelled_by"`
	Reason       string `json:"reason,omitempty"`
}

func (e InstanceCancelled) GetType() EventType {
	return InstanceCancelledEvent
}

type StepStarted struct {
	BaseEvent

	StepNumber int             `json:"step_number"`
	StepName   string          `json:"step_name"`
	StepType   models.StepType `json:"step_type"`
}

func (e StepStarted) GetType() EventType {
	return StepStartedEvent
}

type StepCompleted struct {
	BaseEvent

	StepNumber  int            `json:"step_number"`
	StepName    string         `json:"step_name"`
	CompletedBy string         `json:"completed_by"`
	OutputData  map[string]any `json:"output_data,omitempty"`
}

func (e StepCompleted) GetType() EventType {
	return StepCompletedEvent
}

type ApprovalDecided struct {
	BaseEvent

	ApprovalID string                  `json:"approval_id"`
	StepNumber int                     `json:"step_number"`
	ApproverID string                  `json:"approver_id"`
	Decision   models.ApprovalDecision `json:"decision"`
	Comment    string                  `json:"comment,omitempty"`
}

func (e ApprovalDecided) GetType() EventType {
	return ApprovalDecidedEvent
}

type AutomationFailed struct {
	BaseEvent

	StepNumber int    `json:"step_number"`
	Action     string `json:"action"`
	Error      string `json:"error"`
}

func (e AutomationFailed) GetType() EventType {
	return AutomationFailedEvent
}
