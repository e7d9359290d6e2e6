// Package persistence provides the data storage abstraction for the workflow
// case engine. Implementations back the engine with a relational store (or an
// in-memory store for tests); the engine itself holds no state across calls.
package persistence

import (
	"context"

	"github.com/caseflow-io/caseflow/pkg/models"
)

// Persistence bundles the repositories the engine needs.
type Persistence interface {
	Templates() TemplateRepository
	Steps() StepRepository
	Instances() InstanceRepository
	Executions() ExecutionRepository
	Approvals() ApprovalRepository
	Comments() CommentRepository
	Activity() ActivityRepository
	Sequences() SequenceRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListTemplatesOptions filters template listings.
type ListTemplatesOptions struct {
	Category string
	IsActive *bool
	Limit    int
	Offset   int
}

// ListTemplatesResult is a page of templates plus the unpaged total.
type ListTemplatesResult struct {
	Templates  []*models.WorkflowTemplate
	TotalCount int64
}

// TemplateRepository stores workflow templates. Lookups return (nil, nil)
// when the template does not exist; uniqueness violations surface as
// ErrDuplicateTemplateCode.
type TemplateRepository interface {
	Create(ctx context.Context, template *models.WorkflowTemplate) error
	Update(ctx context.Context, template *models.WorkflowTemplate) error
	GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error)
	GetByCode(ctx context.Context, code string) (*models.WorkflowTemplate, error)
	List(ctx context.Context, opts ListTemplatesOptions) (*ListTemplatesResult, error)
	Delete(ctx context.Context, id string) error
}

// StepRepository stores template steps. (template_id, step_number) is unique;
// violations surface as ErrDuplicateStepNumber.
type StepRepository interface {
	Create(ctx context.Context, step *models.WorkflowStep) error
	Update(ctx context.Context, step *models.WorkflowStep) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.WorkflowStep, error)
	ListByTemplate(ctx context.Context, templateID string) ([]*models.WorkflowStep, error)
}

// ListInstancesOptions filters instance listings.
type ListInstancesOptions struct {
	TemplateID  string
	Status      *models.InstanceStatus
	InitiatedBy string
	AssignedTo  string
	Limit       int
	Offset      int
}

// ListInstancesResult is a page of instances plus the unpaged total.
type ListInstancesResult struct {
	Instances  []*models.WorkflowInstance
	TotalCount int64
}

// InstanceRepository stores workflow instances. Update is a compare-and-swap:
// the write only applies while the stored row still matches the expected
// status and current step number, otherwise ErrStaleInstance is returned.
// This is the guard that serializes concurrent advancement.
type InstanceRepository interface {
	Create(ctx context.Context, instance *models.WorkflowInstance) error
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	Update(ctx context.Context, instance *models.WorkflowInstance, expectedStatus models.InstanceStatus, expectedStep int) error
	List(ctx context.Context, opts ListInstancesOptions) (*ListInstancesResult, error)
	CountByTemplate(ctx context.Context, templateID string) (int64, error)
}

// ExecutionRepository stores step executions, one per (instance, step number).
type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.StepExecution) error
	GetByID(ctx context.Context, id string) (*models.StepExecution, error)
	GetOpen(ctx context.Context, instanceID string, stepNumber int) (*models.StepExecution, error)
	Update(ctx context.Context, execution *models.StepExecution) error
	ListByInstance(ctx context.Context, instanceID string) ([]*models.StepExecution, error)
}

// ApprovalRepository stores per-approver approval rows.
type ApprovalRepository interface {
	CreateBatch(ctx context.Context, approvals []*models.WorkflowApproval) error
	GetByID(ctx context.Context, id string) (*models.WorkflowApproval, error)
	Update(ctx context.Context, approval *models.WorkflowApproval) error
	ListByStep(ctx context.Context, instanceID string, stepNumber int) ([]*models.WorkflowApproval, error)
	ListByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowApproval, error)
}

// CommentRepository stores user comments, append-only.
type CommentRepository interface {
	Create(ctx context.Context, comment *models.WorkflowComment) error
	ListByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowComment, error)
}

// ActivityRepository stores the append-only audit trail.
type ActivityRepository interface {
	Append(ctx context.Context, entry *models.ActivityEntry) error
	// ListRecent returns up to limit entries, newest first. A limit of zero
	// returns everything.
	ListRecent(ctx context.Context, instanceID string, limit int) ([]*models.ActivityEntry, error)
}

// SequenceRepository hands out store-side monotonic sequence values, used for
// instance code generation. Next must be atomic under concurrent callers.
type SequenceRepository interface {
	Next(ctx context.Context, key string) (int64, error)
}
