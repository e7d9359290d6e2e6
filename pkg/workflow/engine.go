package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/caseflow-io/caseflow/pkg/automation"
	"github.com/caseflow-io/caseflow/pkg/eventbus"
	"github.com/caseflow-io/caseflow/pkg/events"
	"github.com/caseflow-io/caseflow/pkg/lock"
	"github.com/caseflow-io/caseflow/pkg/models"
	"github.com/caseflow-io/caseflow/pkg/notify"
	"github.com/caseflow-io/caseflow/pkg/persistence"
)

// activityPageSize bounds the activity slice returned on hydrated reads.
const activityPageSize = 50

// SystemActor is recorded when the engine itself completes a step, such as
// when the last approval of a quorum lands.
const SystemActor = "system"

// Engine is the instance lifecycle manager. Every instance-mutating
// operation runs under the per-instance lock, and instance writes
// compare-and-swap on (status, current step), so quorum evaluation and
// advancement stay atomic with respect to concurrent callers.
type Engine struct {
	persistence persistence.Persistence
	actions     *automation.Registry
	notifier    notify.Notifier
	publisher   eventbus.EventPublisher
	locker      lock.Locker
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewEngine(
	p persistence.Persistence,
	actions *automation.Registry,
	notifier notify.Notifier,
	publisher eventbus.EventPublisher,
	locker lock.Locker,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		persistence: p,
		actions:     actions,
		notifier:    notifier,
		publisher:   publisher,
		locker:      locker,
		validator:   validator.New(),
		logger:      logger.With("module", "engine"),
	}
}

type CreateInstanceRequest struct {
	TemplateID        string         `json:"template_id" validate:"required"`
	Title             string         `json:"title"       validate:"required"`
	Description       string         `json:"description"`
	FormData          map[string]any `json:"form_data"`
	Metadata          map[string]any `json:"metadata"`
	RelatedEntityType string         `json:"related_entity_type"`
	RelatedEntityID   string         `json:"related_entity_id"`
	InitiatedBy       string         `json:"initiated_by" validate:"required"`
	AssignedTo        string         `json:"assigned_to"`
	DueDate           *time.Time     `json:"due_date"`
}

type UpdateInstanceRequest struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	AssignedTo  *string        `json:"assigned_to"`
	Metadata    map[string]any `json:"metadata"`
	DueDate     *time.Time     `json:"due_date"`
}

// CreateInstance starts a new case from an active template.
func (e *Engine) CreateInstance(ctx context.Context, req CreateInstanceRequest) (*models.InstanceDetail, error) {
	const op = "CreateInstance"

	if err := e.validator.Struct(req); err != nil {
		return nil, NewValidationError(op, err.Error())
	}

	template, err := e.persistence.Templates().GetByID(ctx, req.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}

	if template == nil {
		return nil, NewNotFoundError(op, fmt.Sprintf("template %q not found", req.TemplateID))
	}

	if !template.IsActive {
		return nil, NewValidationError(op, fmt.Sprintf("template %q is inactive", template.Code))
	}

	activeSteps := template.ActiveSteps()
	if len(activeSteps) == 0 {
		return nil, NewValidationError(op, fmt.Sprintf("template %q has no active steps", template.Code))
	}

	code, err := generateInstanceCode(ctx, e.persistence.Sequences(), template.Code)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	firstStep := activeSteps[0]

	instance := &models.WorkflowInstance{
		ID:                uuid.New().String(),
		TemplateID:        template.ID,
		InstanceCode:      code,
		Title:             req.Title,
		Description:       req.Description,
		Status:            models.InstanceStatusPending,
		CurrentStepNumber: firstStep.StepNumber,
		FormData:          req.FormData,
		Metadata:          req.Metadata,
		RelatedEntityType: req.RelatedEntityType,
		RelatedEntityID:   req.RelatedEntityID,
		InitiatedBy:       req.InitiatedBy,
		AssignedTo:        req.AssignedTo,
		StartedAt:         now,
		DueDate:           req.DueDate,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if instance.FormData == nil {
		instance.FormData = map[string]any{}
	}

	if instance.Metadata == nil {
		instance.Metadata = map[string]any{}
	}

	err = e.persistence.Instances().Create(ctx, instance)
	if err != nil {
		return nil, fmt.Errorf("failed to create instance: %w", err)
	}

	err = e.enterStep(ctx, instance, firstStep)
	if err != nil {
		return nil, err
	}

	err = e.appendActivity(ctx, instance.ID, models.ActivityCreated,
		fmt.Sprintf("case %s created from template %s", code, template.Code),
		map[string]any{"instance_code": code, "template_code": template.Code},
		0, req.InitiatedBy)
	if err != nil {
		return nil, err
	}

	event := events.InstanceCreated{
		BaseEvent:    events.NewBaseEvent(events.InstanceCreatedEvent, instance.ID),
		TemplateID:   template.ID,
		InstanceCode: code,
		InitiatedBy:  req.InitiatedBy,
	}
	e.publish(ctx, event)

	e.logger.InfoContext(ctx, "instance created",
		"instance_id", instance.ID,
		"instance_code", code,
		"template_code", template.Code,
	)

	return e.hydrate(ctx, instance, template)
}

// GetInstance returns the hydrated view of a case.
func (e *Engine) GetInstance(ctx context.Context, id string) (*models.InstanceDetail, error) {
	instance, err := e.persistence.Instances().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load instance: %w", err)
	}

	if instance == nil {
		return nil, NewNotFoundError("GetInstance", fmt.Sprintf("instance %q not found", id))
	}

	template, err := e.persistence.Templates().GetByID(ctx, instance.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}

	return e.hydrate(ctx, instance, template)
}

func (e *Engine) ListInstances(ctx context.Context, opts persistence.ListInstancesOptions) (*persistence.ListInstancesResult, error) {
	result, err := e.persistence.Instances().List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	return result, nil
}

// UpdateInstance patches advisory fields. Terminal instances are immutable
// historical records and reject updates.
func (e *Engine) UpdateInstance(ctx context.Context, id string, req UpdateInstanceRequest) (*models.WorkflowInstance, error) {
	const op = "UpdateInstance"

	var updated *models.WorkflowInstance

	err := e.locker.WithLock(ctx, lock.InstanceKey(id), func(ctx context.Context) error {
		instance, err := e.loadInstance(ctx, op, id)
		if err != nil {
			return err
		}

		if instance.Status.Terminal() {
			return NewValidationError(op, fmt.Sprintf("instance %s is %s", instance.InstanceCode, instance.Status))
		}

		expectedStatus, expectedStep := instance.Status, instance.CurrentStepNumber

		if req.Title != nil {
			instance.Title = *req.Title
		}

		if req.Description != nil {
			instance.Description = *req.Description
		}

		if req.AssignedTo != nil {
			instance.AssignedTo = *req.AssignedTo
		}

		if req.Metadata != nil {
			for key, value := range req.Metadata {
				instance.Metadata[key] = value
			}
		}

		if req.DueDate != nil {
			instance.DueDate = req.DueDate
		}

		instance.UpdatedAt = time.Now().UTC()

		err = e.persistence.Instances().Update(ctx, instance, expectedStatus, expectedStep)
		if err != nil {
			return fmt.Errorf("failed to update instance: %w", err)
		}

		updated = instance

		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// CancelInstance terminates a case. Completed cases cannot be cancelled.
func (e *Engine) CancelInstance(ctx context.Context, id, reason, actor string) (*models.WorkflowInstance, error) {
	const op = "CancelInstance"

	var cancelled *models.WorkflowInstance

	err := e.locker.WithLock(ctx, lock.InstanceKey(id), func(ctx context.Context) error {
		instance, err := e.loadInstance(ctx, op, id)
		if err != nil {
			return err
		}

		if instance.Status == models.InstanceStatusCompleted {
			return NewValidationError(op, fmt.Sprintf("instance %s is already completed", instance.InstanceCode))
		}

		if instance.Status.Terminal() {
			return NewValidationError(op, fmt.Sprintf("instance %s is already %s", instance.InstanceCode, instance.Status))
		}

		expectedStatus, expectedStep := instance.Status, instance.CurrentStepNumber
		instance.Status = models.InstanceStatusCancelled
		instance.UpdatedAt = time.Now().UTC()

		err = e.persistence.Instances().Update(ctx, instance, expectedStatus, expectedStep)
		if err != nil {
			return fmt.Errorf("failed to cancel instance: %w", err)
		}

		err = e.appendActivity(ctx, instance.ID, models.ActivityCancelled,
			fmt.Sprintf("case %s cancelled: %s", instance.InstanceCode, reason),
			map[string]any{"reason": reason},
			instance.CurrentStepNumber, actor)
		if err != nil {
			return err
		}

		event := events.InstanceCancelled{
			BaseEvent:    events.NewBaseEvent(events.InstanceCancelledEvent, instance.ID),
			InstanceCode: instance.InstanceCode,
			CancelledBy:  actor,
			Reason:       reason,
		}
		e.publish(ctx, event)

		cancelled = instance

		return nil
	})
	if err != nil {
		return nil, err
	}

	return cancelled, nil
}

// AddComment attaches a user comment to a case. Comments are allowed on
// terminal cases; they are annotations, not transitions.
func (e *Engine) AddComment(ctx context.Context, instanceID, authorID, body string, mentions []string) (*models.WorkflowComment, error) {
	const op = "AddComment"

	if body == "" {
		return nil, NewValidationError(op, "comment body cannot be empty")
	}

	instance, err := e.loadInstance(ctx, op, instanceID)
	if err != nil {
		return nil, err
	}

	comment := &models.WorkflowComment{
		ID:         uuid.New().String(),
		InstanceID: instance.ID,
		AuthorID:   authorID,
		Body:       body,
		Mentions:   mentions,
		CreatedAt:  time.Now().UTC(),
	}

	err = e.persistence.Comments().Create(ctx, comment)
	if err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	err = e.appendActivity(ctx, instance.ID, models.ActivityCommentAdded,
		fmt.Sprintf("comment added by %s", authorID),
		map[string]any{"comment_id": comment.ID},
		0, authorID)
	if err != nil {
		return nil, err
	}

	return comment, nil
}

func (e *Engine) loadInstance(ctx context.Context, op, id string) (*models.WorkflowInstance, error) {
	instance, err := e.persistence.Instances().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load instance: %w", err)
	}

	if instance == nil {
		return nil, NewNotFoundError(op, fmt.Sprintf("instance %q not found", id))
	}

	return instance, nil
}

func (e *Engine) loadTemplate(ctx context.Context, op, id string) (*models.WorkflowTemplate, error) {
	template, err := e.persistence.Templates().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}

	if template == nil {
		return nil, NewNotFoundError(op, fmt.Sprintf("template %q not found", id))
	}

	return template, nil
}

func (e *Engine) hydrate(ctx context.Context, instance *models.WorkflowInstance, template *models.WorkflowTemplate) (*models.InstanceDetail, error) {
	executions, err := e.persistence.Executions().ListByInstance(ctx, instance.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load executions: %w", err)
	}

	approvals, err := e.persistence.Approvals().ListByInstance(ctx, instance.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load approvals: %w", err)
	}

	comments, err := e.persistence.Comments().ListByInstance(ctx, instance.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load comments: %w", err)
	}

	activity, err := e.persistence.Activity().ListRecent(ctx, instance.ID, activityPageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load activity: %w", err)
	}

	var steps []*models.WorkflowStep
	if template != nil {
		steps = template.Steps
	}

	return &models.InstanceDetail{
		Instance:   instance,
		Steps:      steps,
		Executions: executions,
		Approvals:  approvals,
		Comments:   comments,
		Activity:   activity,
	}, nil
}

func (e *Engine) appendActivity(ctx context.Context, instanceID string, action models.ActivityAction, description string, details map[string]any, stepNumber int, actor string) error {
	entry := &models.ActivityEntry{
		ID:          uuid.New().String(),
		InstanceID:  instanceID,
		Action:      action,
		Description: description,
		Details:     details,
		StepNumber:  stepNumber,
		ActorID:     actor,
		CreatedAt:   time.Now().UTC(),
	}

	err := e.persistence.Activity().Append(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}

	return nil
}

// publish sends an event to the bus. Event delivery is fire-and-forget;
// failures are logged and never fail the transition that produced them.
func (e *Engine) publish(ctx context.Context, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	var key string
	if withInstance, ok := event.(interface{ GetInstanceID() string }); ok {
		key = withInstance.GetInstanceID()
	}

	err := e.publisher.Publish(ctx, key, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

// notifyUsers delivers a notification. Like events, delivery failures are
// logged, never propagated.
func (e *Engine) notifyUsers(ctx context.Context, notification notify.Notification) {
	if e.notifier == nil {
		return
	}

	err := e.notifier.Notify(ctx, notification)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to deliver notification",
			"template", notification.Template, "error", err)
	}
}
