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

// InstanceRepository handles workflow instance database operations.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const instanceColumns = `
	id
  , template_id
  , instance_code
  , title
  , description
  , status
  , current_step_number
  , form_data
  , metadata
  , related_entity_type
  , related_entity_id
  , initiated_by
  , assigned_to
  , started_at
  , completed_at
  , due_date
  , created_at
  , updated_at
`

func (r *InstanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	formJSON, metaJSON, err := marshalInstanceJSON(instance)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_instances (` + instanceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err = r.db.ExecContext(ctx, query,
		instance.ID,
		instance.TemplateID,
		instance.InstanceCode,
		instance.Title,
		instance.Description,
		instance.Status,
		instance.CurrentStepNumber,
		formJSON,
		metaJSON,
		instance.RelatedEntityType,
		instance.RelatedEntityID,
		instance.InitiatedBy,
		instance.AssignedTo,
		instance.StartedAt,
		instance.CompletedAt,
		instance.DueDate,
		instance.CreatedAt,
		instance.UpdatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("Instances.Create", instance.ID, mapUniqueViolation(err))
	}

	return nil
}

func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = $1`

	instance, err := scanInstance(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan instance: %w", err)
	}

	return instance, nil
}

// Update writes the instance only when its stored status and step still match
// the expected values, so concurrent writers cannot clobber each other.
func (r *InstanceRepository) Update(ctx context.Context, instance *models.WorkflowInstance, expectedStatus models.InstanceStatus, expectedStep int) error {
	formJSON, metaJSON, err := marshalInstanceJSON(instance)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflow_instances
		SET title = $2, description = $3, status = $4, current_step_number = $5,
		    form_data = $6, metadata = $7, assigned_to = $8,
		    completed_at = $9, due_date = $10, updated_at = $11
		WHERE id = $1 AND status = $12 AND current_step_number = $13
	`

	result, err := r.db.ExecContext(ctx, query,
		instance.ID,
		instance.Title,
		instance.Description,
		instance.Status,
		instance.CurrentStepNumber,
		formJSON,
		metaJSON,
		instance.AssignedTo,
		instance.CompletedAt,
		instance.DueDate,
		instance.UpdatedAt,
		expectedStatus,
		expectedStep,
	)
	if err != nil {
		return persistence.NewStoreError("Instances.Update", instance.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		var exists bool

		err := r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM workflow_instances WHERE id = $1)", instance.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to probe instance existence: %w", err)
		}

		if !exists {
			return persistence.NewStoreError("Instances.Update", instance.ID, persistence.ErrInstanceNotFound)
		}

		return persistence.NewStoreError("Instances.Update", instance.ID, persistence.ErrStaleInstance)
	}

	return nil
}

func (r *InstanceRepository) List(ctx context.Context, opts persistence.ListInstancesOptions) (*persistence.ListInstancesResult, error) {
	where := "WHERE 1=1"
	args := make([]any, 0, 6)

	if opts.TemplateID != "" {
		args = append(args, opts.TemplateID)
		where += fmt.Sprintf(" AND template_id = $%d", len(args))
	}

	if opts.Status != nil {
		args = append(args, *opts.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	if opts.InitiatedBy != "" {
		args = append(args, opts.InitiatedBy)
		where += fmt.Sprintf(" AND initiated_by = $%d", len(args))
	}

	if opts.AssignedTo != "" {
		args = append(args, opts.AssignedTo)
		where += fmt.Sprintf(" AND assigned_to = $%d", len(args))
	}

	var total int64

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflow_instances "+where, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count instances: %w", err)
	}

	query := `SELECT ` + instanceColumns + ` FROM workflow_instances ` + where + ` ORDER BY created_at DESC`

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}

		instances = append(instances, instance)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	return &persistence.ListInstancesResult{Instances: instances, TotalCount: total}, nil
}

func (r *InstanceRepository) CountByTemplate(ctx context.Context, templateID string) (int64, error) {
	var count int64

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflow_instances WHERE template_id = $1", templateID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count instances for template: %w", err)
	}

	return count, nil
}

func marshalInstanceJSON(instance *models.WorkflowInstance) ([]byte, []byte, error) {
	formJSON, err := json.Marshal(instance.FormData)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal form data: %w", err)
	}

	metaJSON, err := json.Marshal(instance.Metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	return formJSON, metaJSON, nil
}

func scanInstance(scanner interface{ Scan(dest ...any) error }) (*models.WorkflowInstance, error) {
	var (
		instance models.WorkflowInstance
		formJSON []byte
		metaJSON []byte
	)

	err := scanner.Scan(
		&instance.ID,
		&instance.TemplateID,
		&instance.InstanceCode,
		&instance.Title,
		&instance.Description,
		&instance.Status,
		&instance.CurrentStepNumber,
		&formJSON,
		&metaJSON,
		&instance.RelatedEntityType,
		&instance.RelatedEntityID,
		&instance.InitiatedBy,
		&instance.AssignedTo,
		&instance.StartedAt,
		&instance.CompletedAt,
		&instance.DueDate,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if formJSON != nil {
		err := json.Unmarshal(formJSON, &instance.FormData)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal form data: %w", err)
		}
	}

	if metaJSON != nil {
		err := json.Unmarshal(metaJSON, &instance.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &instance, nil
}
