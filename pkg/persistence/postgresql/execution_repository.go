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

// ExecutionRepository handles step execution database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const executionColumns = `
	id
  , instance_id
  , step_number
  , status
  , input_data
  , output_data
  , assigned_to
  , completed_by
  , started_at
  , completed_at
`

func (r *ExecutionRepository) Create(ctx context.Context, execution *models.StepExecution) error {
	inputJSON, outputJSON, err := marshalExecutionJSON(execution)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO step_executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.InstanceID,
		execution.StepNumber,
		execution.Status,
		inputJSON,
		outputJSON,
		execution.AssignedTo,
		execution.CompletedBy,
		execution.StartedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return persistence.NewStoreError("Executions.Create", execution.ID, mapUniqueViolation(err))
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.StepExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM step_executions WHERE id = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

// GetOpen returns the pending or in-progress execution for a step, if any.
// The schema's partial unique index guarantees at most one exists.
func (r *ExecutionRepository) GetOpen(ctx context.Context, instanceID string, stepNumber int) (*models.StepExecution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM step_executions
		WHERE instance_id = $1 AND step_number = $2 AND status IN ('pending', 'in_progress')
	`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, instanceID, stepNumber))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

func (r *ExecutionRepository) Update(ctx context.Context, execution *models.StepExecution) error {
	inputJSON, outputJSON, err := marshalExecutionJSON(execution)
	if err != nil {
		return err
	}

	query := `
		UPDATE step_executions
		SET status = $2, input_data = $3, output_data = $4, assigned_to = $5, completed_by = $6, completed_at = $7
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		execution.ID,
		execution.Status,
		inputJSON,
		outputJSON,
		execution.AssignedTo,
		execution.CompletedBy,
		execution.CompletedAt,
	)
	if err != nil {
		return persistence.NewStoreError("Executions.Update", execution.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewStoreError("Executions.Update", execution.ID, persistence.ErrExecutionNotFound)
	}

	return nil
}

func (r *ExecutionRepository) ListByInstance(ctx context.Context, instanceID string) ([]*models.StepExecution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM step_executions
		WHERE instance_id = $1
		ORDER BY started_at
	`

	rows, err := r.db.QueryContext(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.StepExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func marshalExecutionJSON(execution *models.StepExecution) ([]byte, []byte, error) {
	inputJSON, err := json.Marshal(execution.InputData)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal input data: %w", err)
	}

	outputJSON, err := json.Marshal(execution.OutputData)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal output data: %w", err)
	}

	return inputJSON, outputJSON, nil
}

func scanExecution(scanner interface{ Scan(dest ...any) error }) (*models.StepExecution, error) {
	var (
		execution  models.StepExecution
		inputJSON  []byte
		outputJSON []byte
	)

	err := scanner.Scan(
		&execution.ID,
		&execution.InstanceID,
		&execution.StepNumber,
		&execution.Status,
		&inputJSON,
		&outputJSON,
		&execution.AssignedTo,
		&execution.CompletedBy,
		&execution.StartedAt,
		&execution.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if inputJSON != nil {
		err := json.Unmarshal(inputJSON, &execution.InputData)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal input data: %w", err)
		}
	}

	if outputJSON != nil {
		err := json.Unmarshal(outputJSON, &execution.OutputData)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal output data: %w", err)
		}
	}

	return &execution, nil
}
