package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/caseflow-io/caseflow/pkg/automation"
	"github.com/caseflow-io/caseflow/pkg/events"
	"github.com/caseflow-io/caseflow/pkg/lock"
	"github.com/caseflow-io/caseflow/pkg/models"
	"github.com/caseflow-io/caseflow/pkg/notify"
)

// StepOutcome summarizes what a CompleteStep call did to the instance.
type StepOutcome string

const (
	// OutcomeAdvanced means the instance moved to the next step.
	OutcomeAdvanced StepOutcome = "advanced"
	// OutcomeCompleted means the completed step was the last one.
	OutcomeCompleted StepOutcome = "completed"
	// OutcomeRejected means an approval on the step was rejected.
	OutcomeRejected StepOutcome = "rejected"
	// OutcomeAwaitingApprovals means the quorum is not yet satisfied and the
	// instance did not advance.
	OutcomeAwaitingApprovals StepOutcome = "awaiting_approvals"
)

type CompleteStepResult struct {
	Outcome  StepOutcome              `json:"outcome"`
	Instance *models.WorkflowInstance `json:"instance"`
}

// CompleteStep is the central transition: it closes the open execution for
// the instance's current step, runs the step type's completion behavior, and
// advances the instance or decides a terminal outcome.
func (e *Engine) CompleteStep(ctx context.Context, instanceID string, stepNumber int, outputData map[string]any, actor string) (*CompleteStepResult, error) {
	var result *CompleteStepResult

	err := e.locker.WithLock(ctx, lock.InstanceKey(instanceID), func(ctx context.Context) error {
		var err error

		result, err = e.completeStepLocked(ctx, instanceID, stepNumber, outputData, actor)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// completeStepLocked assumes the caller holds the instance lock.
func (e *Engine) completeStepLocked(ctx context.Context, instanceID string, stepNumber int, outputData map[string]any, actor string) (*CompleteStepResult, error) {
	const op = "CompleteStep"

	instance, err := e.loadInstance(ctx, op, instanceID)
	if err != nil {
		return nil, err
	}

	if instance.Status.Terminal() {
		return nil, NewValidationError(op, fmt.Sprintf("instance %s is %s and cannot advance", instance.InstanceCode, instance.Status))
	}

	if stepNumber != instance.CurrentStepNumber {
		return nil, NewValidationError(op, fmt.Sprintf("step %d is not the current step (%d) of instance %s", stepNumber, instance.CurrentStepNumber, instance.InstanceCode))
	}

	template, err := e.loadTemplate(ctx, op, instance.TemplateID)
	if err != nil {
		return nil, err
	}

	step := template.StepByNumber(stepNumber)
	if step == nil {
		return nil, NewNotFoundError(op, fmt.Sprintf("step %d not found in template %s", stepNumber, template.Code))
	}

	execution, err := e.persistence.Executions().GetOpen(ctx, instance.ID, stepNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to load open execution: %w", err)
	}

	if execution == nil {
		return nil, NewNotFoundError(op, fmt.Sprintf("no open execution for step %d of instance %s", stepNumber, instance.InstanceCode))
	}

	// Automation runs before the execution closes: a failed action leaves
	// the execution open so the step can be completed again.
	if step.StepType == models.StepTypeAutomation {
		err = e.runAutomation(ctx, instance, step)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	execution.Status = models.InstanceStatusCompleted
	execution.OutputData = outputData
	execution.CompletedBy = actor
	execution.CompletedAt = &now

	err = e.persistence.Executions().Update(ctx, execution)
	if err != nil {
		return nil, fmt.Errorf("failed to complete execution: %w", err)
	}

	switch step.StepType {
	case models.StepTypeApproval:
		quorum, err := e.evaluateQuorum(ctx, instance.ID, stepNumber)
		if err != nil {
			return nil, err
		}

		if quorum.Rejected {
			err = e.rejectInstance(ctx, instance, stepNumber, quorum.RejectedBy, quorum.RejectComment)
			if err != nil {
				return nil, err
			}

			return &CompleteStepResult{Outcome: OutcomeRejected, Instance: instance}, nil
		}

		if !quorum.Approved {
			err = e.appendActivity(ctx, instance.ID, models.ActivityStepCompleted,
				fmt.Sprintf("step %d (%s) awaiting remaining approvals", stepNumber, step.Name),
				map[string]any{"pending": quorum.Pending},
				stepNumber, actor)
			if err != nil {
				return nil, err
			}

			return &CompleteStepResult{Outcome: OutcomeAwaitingApprovals, Instance: instance}, nil
		}

	case models.StepTypeForm, models.StepTypeAutomation, models.StepTypeNotification:
	}

	event := events.StepCompleted{
		BaseEvent:   events.NewBaseEvent(events.StepCompletedEvent, instance.ID),
		StepNumber:  stepNumber,
		StepName:    step.Name,
		CompletedBy: actor,
		OutputData:  outputData,
	}
	e.publish(ctx, event)

	return e.advance(ctx, instance, template, actor)
}

// advance moves the instance to the next step, or marks it completed when no
// next step exists.
func (e *Engine) advance(ctx context.Context, instance *models.WorkflowInstance, template *models.WorkflowTemplate, actor string) (*CompleteStepResult, error) {
	expectedStatus, expectedStep := instance.Status, instance.CurrentStepNumber
	now := time.Now().UTC()

	next := template.StepByNumber(instance.CurrentStepNumber + 1)
	if next == nil {
		instance.Status = models.InstanceStatusCompleted
		instance.CompletedAt = &now
		instance.UpdatedAt = now

		err := e.persistence.Instances().Update(ctx, instance, expectedStatus, expectedStep)
		if err != nil {
			return nil, fmt.Errorf("failed to complete instance: %w", err)
		}

		err = e.appendActivity(ctx, instance.ID, models.ActivityCompleted,
			fmt.Sprintf("case %s completed", instance.InstanceCode),
			nil, expectedStep, actor)
		if err != nil {
			return nil, err
		}

		event := events.InstanceCompleted{
			BaseEvent:    events.NewBaseEvent(events.InstanceCompletedEvent, instance.ID),
			InstanceCode: instance.InstanceCode,
			Duration:     now.Sub(instance.StartedAt),
		}
		e.publish(ctx, event)

		e.logger.InfoContext(ctx, "instance completed", "instance_id", instance.ID, "instance_code", instance.InstanceCode)

		return &CompleteStepResult{Outcome: OutcomeCompleted, Instance: instance}, nil
	}

	instance.Status = models.InstanceStatusInProgress
	instance.CurrentStepNumber = next.StepNumber
	instance.UpdatedAt = now

	err := e.persistence.Instances().Update(ctx, instance, expectedStatus, expectedStep)
	if err != nil {
		return nil, fmt.Errorf("failed to advance instance: %w", err)
	}

	// The trail records the transition even when entering the step fails.
	err = e.appendActivity(ctx, instance.ID, models.ActivityStepStarted,
		fmt.Sprintf("step %d (%s) started", next.StepNumber, next.Name),
		map[string]any{"step_type": string(next.StepType)},
		next.StepNumber, actor)
	if err != nil {
		return nil, err
	}

	err = e.enterStep(ctx, instance, next)
	if err != nil {
		return nil, err
	}

	event := events.StepStarted{
		BaseEvent:  events.NewBaseEvent(events.StepStartedEvent, instance.ID),
		StepNumber: next.StepNumber,
		StepName:   next.Name,
		StepType:   next.StepType,
	}
	e.publish(ctx, event)

	return &CompleteStepResult{Outcome: OutcomeAdvanced, Instance: instance}, nil
}

// enterStep creates the step's execution record and runs the step type's
// entry behavior: approval steps get their approval rows, notification steps
// fire their notification. Entry never appends activity itself; advancement
// owns the step_started entry.
func (e *Engine) enterStep(ctx context.Context, instance *models.WorkflowInstance, step *models.WorkflowStep) error {
	execution := &models.StepExecution{
		ID:         uuid.New().String(),
		InstanceID: instance.ID,
		StepNumber: step.StepNumber,
		Status:     models.InstanceStatusPending,
		InputData:  map[string]any{},
		AssignedTo: instance.AssignedTo,
		StartedAt:  time.Now().UTC(),
	}

	err := e.persistence.Executions().Create(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	switch step.StepType {
	case models.StepTypeApproval:
		return e.createApprovalsForStep(ctx, instance, step)

	case models.StepTypeNotification:
		config, err := models.DecodeNotificationConfig(step.Config)
		if err != nil {
			return NewValidationError("EnterStep", err.Error())
		}

		recipients := config.Recipients
		if len(recipients) == 0 && instance.AssignedTo != "" {
			recipients = []string{instance.AssignedTo}
		}

		e.notifyUsers(ctx, notify.Notification{
			Template:   config.Template,
			Recipients: recipients,
			InstanceID: instance.ID,
			Data: map[string]any{
				"instance_code": instance.InstanceCode,
				"title":         instance.Title,
				"step_number":   step.StepNumber,
			},
		})

	case models.StepTypeForm, models.StepTypeAutomation:
	}

	return nil
}

// runAutomation dispatches the step's configured action. A failure appends
// an automation_failed activity entry and propagates; the execution stays
// open so a later CompleteStep re-invokes the action. Actions are idempotent
// against re-invocation; there is no durable outbox.
func (e *Engine) runAutomation(ctx context.Context, instance *models.WorkflowInstance, step *models.WorkflowStep) error {
	const op = "RunAutomation"

	config, err := models.DecodeAutomationConfig(step.Config)
	if err != nil {
		return NewValidationError(op, err.Error())
	}

	action, err := e.actions.Create(ctx, config.Action, config.Params)
	if err != nil {
		switch {
		case errors.Is(err, automation.ErrActionNotRegistered):
			return NewNotFoundError(op, err.Error())
		case errors.Is(err, automation.ErrInvalidActionConfig):
			return NewValidationError(op, err.Error())
		default:
			return fmt.Errorf("failed to create action %q: %w", config.Action, err)
		}
	}

	output, err := action.Execute(ctx, automation.Context{
		Instance: instance,
		Step:     step,
		Params:   config.Params,
	}, e.logger)
	if err != nil {
		activityErr := e.appendActivity(ctx, instance.ID, models.ActivityAutomationFailed,
			fmt.Sprintf("automation %q failed on step %d: %v", config.Action, step.StepNumber, err),
			map[string]any{"action": config.Action, "error": err.Error()},
			step.StepNumber, SystemActor)
		if activityErr != nil {
			e.logger.ErrorContext(ctx, "failed to record automation failure", "error", activityErr)
		}

		event := events.AutomationFailed{
			BaseEvent:  events.NewBaseEvent(events.AutomationFailedEvent, instance.ID),
			StepNumber: step.StepNumber,
			Action:     config.Action,
			Error:      err.Error(),
		}
		e.publish(ctx, event)

		return fmt.Errorf("automation %q failed: %w", config.Action, err)
	}

	// Output lands in instance metadata on the advancement write.
	if len(output) > 0 {
		instance.Metadata["automation:"+config.Action] = output
	}

	return nil
}

func (e *Engine) rejectInstance(ctx context.Context, instance *models.WorkflowInstance, stepNumber int, rejectedBy, comment string) error {
	expectedStatus, expectedStep := instance.Status, instance.CurrentStepNumber

	instance.Status = models.InstanceStatusRejected
	instance.UpdatedAt = time.Now().UTC()

	err := e.persistence.Instances().Update(ctx, instance, expectedStatus, expectedStep)
	if err != nil {
		return fmt.Errorf("failed to reject instance: %w", err)
	}

	err = e.appendActivity(ctx, instance.ID, models.ActivityRejected,
		fmt.Sprintf("case %s rejected at step %d by %s", instance.InstanceCode, stepNumber, rejectedBy),
		map[string]any{"comment": comment},
		stepNumber, rejectedBy)
	if err != nil {
		return err
	}

	event := events.InstanceRejected{
		BaseEvent:    events.NewBaseEvent(events.InstanceRejectedEvent, instance.ID),
		InstanceCode: instance.InstanceCode,
		StepNumber:   stepNumber,
		RejectedBy:   rejectedBy,
		Comment:      comment,
	}
	e.publish(ctx, event)

	e.logger.InfoContext(ctx, "instance rejected",
		"instance_id", instance.ID,
		"instance_code", instance.InstanceCode,
		"step_number", stepNumber,
	)

	return nil
}
