package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/caseflow-io/caseflow/pkg/models"
	"github.com/caseflow-io/caseflow/pkg/persistence"
)

// ApprovalRepository handles workflow approval database operations.
type ApprovalRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const approvalColumns = `
	id
  , instance_id
  , step_number
  , approver_id
  , status
  , decision
  , comment
  , attachment_ids
  , requested_at
  , responded_at
`

// CreateBatch inserts all approval requests for a step in one transaction so a
// partially created quorum never becomes visible.
func (r *ApprovalRepository) CreateBatch(ctx context.Context, approvals []*models.WorkflowApproval) error {
	if len(approvals) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	query := `
		INSERT INTO workflow_approvals (` + approvalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	for _, approval := range approvals {
		attachmentsJSON, err := json.Marshal(approval.AttachmentIDs)
		if err != nil {
			_ = tx.Rollback()

			return fmt.Errorf("failed to marshal attachment ids: %w", err)
		}

		_, err = tx.ExecContext(ctx, query,
			approval.ID,
			approval.InstanceID,
			approval.StepNumber,
			approval.ApproverID,
			approval.Status,
			approval.Decision,
			approval.Comment,
			attachmentsJSON,
			approval.RequestedAt,
			approval.RespondedAt,
		)
		if err != nil {
			_ = tx.Rollback()

			return persistence.NewStoreError("Approvals.CreateBatch", approval.ID, mapUniqueViolation(err))
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit approvals: %w", err)
	}

	return nil
}

func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*models.WorkflowApproval, error) {
	query := `SELECT ` + approvalColumns + ` FROM workflow_approvals WHERE id = $1`

	approval, err := scanApproval(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan approval: %w", err)
	}

	return approval, nil
}

func (r *ApprovalRepository) Update(ctx context.Context, approval *models.WorkflowApproval) error {
	attachmentsJSON, err := json.Marshal(approval.AttachmentIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal attachment ids: %w", err)
	}

	query := `
		UPDATE workflow_approvals
		SET approver_id = $2, status = $3, decision = $4, comment = $5, attachment_ids = $6, responded_at = $7
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		approval.ID,
		approval.ApproverID,
		approval.Status,
		approval.Decision,
		approval.Comment,
		attachmentsJSON,
		approval.RespondedAt,
	)
	if err != nil {
		return persistence.NewStoreError("Approvals.Update", approval.ID, mapUniqueViolation(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewStoreError("Approvals.Update", approval.ID, persistence.ErrApprovalNotFound)
	}

	return nil
}

func (r *ApprovalRepository) ListByStep(ctx context.Context, instanceID string, stepNumber int) ([]*models.WorkflowApproval, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM workflow_approvals
		WHERE instance_id = $1 AND step_number = $2
		ORDER BY requested_at
	`

	return r.list(ctx, query, instanceID, stepNumber)
}

func (r *ApprovalRepository) ListByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowApproval, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM workflow_approvals
		WHERE instance_id = $1
		ORDER BY step_number, requested_at
	`

	return r.list(ctx, query, instanceID)
}

func (r *ApprovalRepository) list(ctx context.Context, query string, args ...any) ([]*models.WorkflowApproval, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	approvals := make([]*models.WorkflowApproval, 0)

	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}

		approvals = append(approvals, approval)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating approvals: %w", err)
	}

	return approvals, nil
}

func scanApproval(scanner interface{ Scan(dest ...any) error }) (*models.WorkflowApproval, error) {
	var (
		approval        models.WorkflowApproval
		attachmentsJSON []byte
	)

	err := scanner.Scan(
		&approval.ID,
		&approval.InstanceID,
		&approval.StepNumber,
		&approval.ApproverID,
		&approval.Status,
		&approval.Decision,
		&approval.Comment,
		&attachmentsJSON,
		&approval.RequestedAt,
		&approval.RespondedAt,
	)
	if err != nil {
		return nil, err
	}

	if attachmentsJSON != nil {
		err := json.Unmarshal(attachmentsJSON, &approval.AttachmentIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal attachment ids: %w", err)
		}
	}

	return &approval, nil
}
