package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/caseflow-io/caseflow/pkg/events"
	"github.com/caseflow-io/caseflow/pkg/lock"
	"github.com/caseflow-io/caseflow/pkg/models"
	"github.com/caseflow-io/caseflow/pkg/persistence"
)

// RespondResult carries the recorded vote plus the instance transition the
// vote triggered, when it triggered one.
type RespondResult struct {
	Approval *models.WorkflowApproval `json:"approval"`
	Step     *CompleteStepResult      `json:"step,omitempty"`
}

// RespondToApproval records one approver's decision and recomputes the
// step's quorum: any rejection is terminal for the instance regardless of
// other pending votes, and a unanimous approval completes the step on behalf
// of the system so the case advances without a separate call.
func (e *Engine) RespondToApproval(ctx context.Context, approvalID string, decision models.ApprovalDecision, comment string, attachments []string, actor string) (*RespondResult, error) {
	const op = "RespondToApproval"

	if !decision.Valid() {
		return nil, NewValidationError(op, fmt.Sprintf("malformed decision %q", decision))
	}

	// First read resolves the instance to lock; the approval is re-read
	// under the lock before any state is trusted.
	approval, err := e.persistence.Approvals().GetByID(ctx, approvalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load approval: %w", err)
	}

	if approval == nil {
		return nil, NewNotFoundError(op, fmt.Sprintf("approval %q not found", approvalID))
	}

	var result *RespondResult

	err = e.locker.WithLock(ctx, lock.InstanceKey(approval.InstanceID), func(ctx context.Context) error {
		approval, err := e.persistence.Approvals().GetByID(ctx, approvalID)
		if err != nil {
			return fmt.Errorf("failed to load approval: %w", err)
		}

		if approval == nil {
			return NewNotFoundError(op, fmt.Sprintf("approval %q not found", approvalID))
		}

		if actor != approval.ApproverID {
			return NewAuthorizationError(op, fmt.Sprintf("actor %q is not the named approver", actor))
		}

		instance, err := e.loadInstance(ctx, op, approval.InstanceID)
		if err != nil {
			return err
		}

		// A late vote after the instance went terminal fails; the sibling
		// approval rows themselves stay pending.
		if instance.Status.Terminal() {
			return NewValidationError(op, fmt.Sprintf("instance %s is %s; the vote is not accepted", instance.InstanceCode, instance.Status))
		}

		if approval.Status != models.ApprovalStatusPending {
			return NewValidationError(op, fmt.Sprintf("approval %q is already %s", approvalID, approval.Status))
		}

		now := time.Now().UTC()
		approval.Decision = decision
		approval.Comment = comment
		approval.AttachmentIDs = attachments
		approval.RespondedAt = &now

		if decision == models.DecisionApproved {
			approval.Status = models.ApprovalStatusApproved
		} else {
			approval.Status = models.ApprovalStatusRejected
		}

		err = e.persistence.Approvals().Update(ctx, approval)
		if err != nil {
			return fmt.Errorf("failed to persist decision: %w", err)
		}

		action := models.ActivityApproved
		if decision == models.DecisionRejected {
			action = models.ActivityRejected
		}

		err = e.appendActivity(ctx, instance.ID, action,
			fmt.Sprintf("%s %s step %d of case %s", actor, decision, approval.StepNumber, instance.InstanceCode),
			map[string]any{"approval_id": approval.ID, "comment": comment},
			approval.StepNumber, actor)
		if err != nil {
			return err
		}

		event := events.ApprovalDecided{
			BaseEvent:  events.NewBaseEvent(events.ApprovalDecidedEvent, instance.ID),
			ApprovalID: approval.ID,
			StepNumber: approval.StepNumber,
			ApproverID: actor,
			Decision:   decision,
			Comment:    comment,
		}
		e.publish(ctx, event)

		result = &RespondResult{Approval: approval}

		// Votes on a step the instance has already moved past cannot exist:
		// approvals are only created for the current step and the instance
		// does not advance while any of them is pending.
		quorum, err := e.evaluateQuorum(ctx, instance.ID, approval.StepNumber)
		if err != nil {
			return err
		}

		if quorum.Rejected {
			err = e.rejectInstance(ctx, instance, approval.StepNumber, quorum.RejectedBy, quorum.RejectComment)
			if err != nil {
				return err
			}

			result.Step = &CompleteStepResult{Outcome: OutcomeRejected, Instance: instance}

			return nil
		}

		if quorum.Approved {
			// When an earlier explicit CompleteStep call already closed the
			// execution while approvals were still pending, only the
			// advancement remains.
			open, err := e.persistence.Executions().GetOpen(ctx, instance.ID, approval.StepNumber)
			if err != nil {
				return fmt.Errorf("failed to load open execution: %w", err)
			}

			var stepResult *CompleteStepResult

			if open == nil {
				template, err := e.loadTemplate(ctx, op, instance.TemplateID)
				if err != nil {
					return err
				}

				stepResult, err = e.advance(ctx, instance, template, SystemActor)
				if err != nil {
					return err
				}
			} else {
				stepResult, err = e.completeStepLocked(ctx, instance.ID, approval.StepNumber, nil, SystemActor)
				if err != nil {
					return err
				}
			}

			result.Step = stepResult
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// AssignApprover adds a late approver to the instance's current approval
// step, for flows where approvers are not known until runtime.
func (e *Engine) AssignApprover(ctx context.Context, instanceID, approverID, actor string) (*models.WorkflowApproval, error) {
	const op = "AssignApprover"

	if approverID == "" {
		return nil, NewValidationError(op, "approver id cannot be empty")
	}

	var created *models.WorkflowApproval

	err := e.locker.WithLock(ctx, lock.InstanceKey(instanceID), func(ctx context.Context) error {
		instance, err := e.loadInstance(ctx, op, instanceID)
		if err != nil {
			return err
		}

		if instance.Status.Terminal() {
			return NewValidationError(op, fmt.Sprintf("instance %s is %s", instance.InstanceCode, instance.Status))
		}

		template, err := e.loadTemplate(ctx, op, instance.TemplateID)
		if err != nil {
			return err
		}

		step := template.StepByNumber(instance.CurrentStepNumber)
		if step == nil {
			return NewNotFoundError(op, fmt.Sprintf("step %d not found in template %s", instance.CurrentStepNumber, template.Code))
		}

		if step.StepType != models.StepTypeApproval {
			return NewValidationError(op, fmt.Sprintf("current step %d of instance %s is not an approval step", instance.CurrentStepNumber, instance.InstanceCode))
		}

		approval := &models.WorkflowApproval{
			ID:          uuid.New().String(),
			InstanceID:  instance.ID,
			StepNumber:  instance.CurrentStepNumber,
			ApproverID:  approverID,
			Status:      models.ApprovalStatusPending,
			RequestedAt: time.Now().UTC(),
		}

		err = e.persistence.Approvals().CreateBatch(ctx, []*models.WorkflowApproval{approval})
		if err != nil {
			if errors.Is(err, persistence.ErrDuplicateApproval) {
				return NewConflictError(op, fmt.Sprintf("%q is already an approver on step %d", approverID, instance.CurrentStepNumber))
			}

			return fmt.Errorf("failed to create approval: %w", err)
		}

		err = e.appendActivity(ctx, instance.ID, models.ActivityApproverAssigned,
			fmt.Sprintf("%s assigned as approver on step %d", approverID, instance.CurrentStepNumber),
			map[string]any{"approver_id": approverID},
			instance.CurrentStepNumber, actor)
		if err != nil {
			return err
		}

		created = approval

		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// createApprovalsForStep reads the approver list from the step config and
// inserts one pending approval per approver.
func (e *Engine) createApprovalsForStep(ctx context.Context, instance *models.WorkflowInstance, step *models.WorkflowStep) error {
	config, err := models.DecodeApprovalConfig(step.Config)
	if err != nil {
		return NewValidationError("CreateApprovals", err.Error())
	}

	if len(config.Approvers) == 0 {
		return nil
	}

	now := time.Now().UTC()
	approvals := make([]*models.WorkflowApproval, 0, len(config.Approvers))

	for _, approverID := range config.Approvers {
		approvals = append(approvals, &models.WorkflowApproval{
			ID:          uuid.New().String(),
			InstanceID:  instance.ID,
			StepNumber:  step.StepNumber,
			ApproverID:  approverID,
			Status:      models.ApprovalStatusPending,
			RequestedAt: now,
		})
	}

	err = e.persistence.Approvals().CreateBatch(ctx, approvals)
	if err != nil {
		return fmt.Errorf("failed to create approvals: %w", err)
	}

	return nil
}

// quorumState is the aggregate over all approval rows of one step. The rule
// is uniformly unanimous consent: every row must end approved, any rejection
// short-circuits.
type quorumState struct {
	Approved      bool
	Rejected      bool
	RejectedBy    string
	RejectComment string
	Pending       []string
}

func (e *Engine) evaluateQuorum(ctx context.Context, instanceID string, stepNumber int) (*quorumState, error) {
	approvals, err := e.persistence.Approvals().ListByStep(ctx, instanceID, stepNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}

	state := &quorumState{}

	for _, approval := range approvals {
		switch approval.Status {
		case models.ApprovalStatusRejected:
			if !state.Rejected {
				state.Rejected = true
				state.RejectedBy = approval.ApproverID
				state.RejectComment = approval.Comment
			}
		case models.ApprovalStatusPending:
			state.Pending = append(state.Pending, approval.ApproverID)
		case models.ApprovalStatusApproved:
		}
	}

	state.Approved = !state.Rejected && len(state.Pending) == 0

	return state, nil
}
