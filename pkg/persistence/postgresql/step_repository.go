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

// StepRepository handles workflow step database operations.
type StepRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *StepRepository) Create(ctx context.Context, step *models.WorkflowStep) error {
	configJSON, err := json.Marshal(step.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal step config: %w", err)
	}

	query := `
		INSERT INTO workflow_steps (id, template_id, step_number, name, step_type, config, is_required, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.db.ExecContext(ctx, query,
		step.ID,
		step.TemplateID,
		step.StepNumber,
		step.Name,
		step.StepType,
		configJSON,
		step.IsRequired,
		step.IsActive,
		step.CreatedAt,
		step.UpdatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("Steps.Create", step.ID, mapUniqueViolation(err))
	}

	return nil
}

func (r *StepRepository) Update(ctx context.Context, step *models.WorkflowStep) error {
	configJSON, err := json.Marshal(step.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal step config: %w", err)
	}

	query := `
		UPDATE workflow_steps
		SET step_number = $2, name = $3, step_type = $4, config = $5, is_required = $6, is_active = $7, updated_at = $8
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		step.ID,
		step.StepNumber,
		step.Name,
		step.StepType,
		configJSON,
		step.IsRequired,
		step.IsActive,
		step.UpdatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("Steps.Update", step.ID, mapUniqueViolation(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewStoreError("Steps.Update", step.ID, persistence.ErrStepNotFound)
	}

	return nil
}

func (r *StepRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM workflow_steps WHERE id = $1", id)
	if err != nil {
		return persistence.NewStoreError("Steps.Delete", id, err)
	}

	return nil
}

func (r *StepRepository) GetByID(ctx context.Context, id string) (*models.WorkflowStep, error) {
	query := `
		SELECT id, template_id, step_number, name, step_type, config, is_required, is_active, created_at, updated_at
		FROM workflow_steps
		WHERE id = $1
	`

	var (
		step       models.WorkflowStep
		configJSON []byte
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&step.ID,
		&step.TemplateID,
		&step.StepNumber,
		&step.Name,
		&step.StepType,
		&configJSON,
		&step.IsRequired,
		&step.IsActive,
		&step.CreatedAt,
		&step.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan step: %w", err)
	}

	if configJSON != nil {
		err := json.Unmarshal(configJSON, &step.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal step config: %w", err)
		}
	}

	return &step, nil
}

func (r *StepRepository) ListByTemplate(ctx context.Context, templateID string) ([]*models.WorkflowStep, error) {
	return loadSteps(ctx, r.db, templateID)
}
