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

// TemplateRepository handles workflow template database operations.
type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const templateColumns = `
	id
  , code
  , name
  , description
  , category
  , is_active
  , version
  , created_at
  , updated_at
`

func (r *TemplateRepository) Create(ctx context.Context, template *models.WorkflowTemplate) error {
	query := `
		INSERT INTO workflow_templates (id, code, name, description, category, is_active, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		template.ID,
		template.Code,
		template.Name,
		template.Description,
		template.Category,
		template.IsActive,
		template.Version,
		template.CreatedAt,
		template.UpdatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("Templates.Create", template.ID, mapUniqueViolation(err))
	}

	return nil
}

func (r *TemplateRepository) Update(ctx context.Context, template *models.WorkflowTemplate) error {
	query := `
		UPDATE workflow_templates
		SET code = $2, name = $3, description = $4, category = $5, is_active = $6, version = $7, updated_at = $8
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		template.ID,
		template.Code,
		template.Name,
		template.Description,
		template.Category,
		template.IsActive,
		template.Version,
		template.UpdatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("Templates.Update", template.ID, mapUniqueViolation(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewStoreError("Templates.Update", template.ID, persistence.ErrTemplateNotFound)
	}

	return nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM workflow_templates WHERE id = $1`

	return r.getOne(ctx, query, id)
}

func (r *TemplateRepository) GetByCode(ctx context.Context, code string) (*models.WorkflowTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM workflow_templates WHERE code = $1`

	return r.getOne(ctx, query, code)
}

func (r *TemplateRepository) getOne(ctx context.Context, query string, arg any) (*models.WorkflowTemplate, error) {
	row := r.db.QueryRowContext(ctx, query, arg)

	template, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	template.Steps, err = loadSteps(ctx, r.db, template.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template steps: %w", err)
	}

	return template, nil
}

func (r *TemplateRepository) List(ctx context.Context, opts persistence.ListTemplatesOptions) (*persistence.ListTemplatesResult, error) {
	where := "WHERE 1=1"
	args := make([]any, 0, 4)

	if opts.Category != "" {
		args = append(args, opts.Category)
		where += fmt.Sprintf(" AND category = $%d", len(args))
	}

	if opts.IsActive != nil {
		args = append(args, *opts.IsActive)
		where += fmt.Sprintf(" AND is_active = $%d", len(args))
	}

	var total int64

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflow_templates "+where, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count templates: %w", err)
	}

	query := `SELECT ` + templateColumns + ` FROM workflow_templates ` + where + ` ORDER BY created_at DESC`

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
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	templates := make([]*models.WorkflowTemplate, 0)

	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		template.Steps, err = loadSteps(ctx, r.db, template.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load template steps: %w", err)
		}

		templates = append(templates, template)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return &persistence.ListTemplatesResult{Templates: templates, TotalCount: total}, nil
}

func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM workflow_templates WHERE id = $1", id)
	if err != nil {
		return persistence.NewStoreError("Templates.Delete", id, err)
	}

	return nil
}

func scanTemplate(scanner interface{ Scan(dest ...any) error }) (*models.WorkflowTemplate, error) {
	var template models.WorkflowTemplate

	err := scanner.Scan(
		&template.ID,
		&template.Code,
		&template.Name,
		&template.Description,
		&template.Category,
		&template.IsActive,
		&template.Version,
		&template.CreatedAt,
		&template.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &template, nil
}

// loadSteps returns a template's steps ordered by step number. Shared with
// the step repository's ListByTemplate.
func loadSteps(ctx context.Context, db *sql.DB, templateID string) ([]*models.WorkflowStep, error) {
	query := `
		SELECT id, template_id, step_number, name, step_type, config, is_required, is_active, created_at, updated_at
		FROM workflow_steps
		WHERE template_id = $1
		ORDER BY step_number
	`

	rows, err := db.QueryContext(ctx, query, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	steps := make([]*models.WorkflowStep, 0)

	for rows.Next() {
		var (
			step       models.WorkflowStep
			configJSON []byte
		)

		err := rows.Scan(
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
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		if configJSON != nil {
			err := json.Unmarshal(configJSON, &step.Config)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal step config: %w", err)
			}
		}

		steps = append(steps, &step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	return steps, nil
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
