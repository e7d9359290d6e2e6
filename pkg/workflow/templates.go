package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/caseflow-io/caseflow/pkg/models"
	"github.com/caseflow-io/caseflow/pkg/persistence"
)

// Templates is the registry service for workflow templates and their steps.
type Templates struct {
	persistence persistence.Persistence
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewTemplates(p persistence.Persistence, logger *slog.Logger) *Templates {
	return &Templates{
		persistence: p,
		validator:   validator.New(),
		logger:      logger.With("module", "templates"),
	}
}

type CreateTemplateRequest struct {
	Code        string `json:"code"        validate:"required,uppercase"`
	Name        string `json:"name"        validate:"required,min=3"`
	Description string `json:"description"`
	Category    string `json:"category"`
	IsActive    *bool  `json:"is_active"`
}

type UpdateTemplateRequest struct {
	Name        *string `json:"name"        validate:"omitempty,min=3"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	IsActive    *bool   `json:"is_active"`
}

type CreateStepRequest struct {
	TemplateID string          `json:"template_id" validate:"required"`
	StepNumber int             `json:"step_number" validate:"required,min=1"`
	Name       string          `json:"name"        validate:"required"`
	StepType   models.StepType `json:"step_type"   validate:"required"`
	Config     map[string]any  `json:"config"`
	IsRequired *bool           `json:"is_required"`
	IsActive   *bool           `json:"is_active"`
}

type UpdateStepRequest struct {
	Name       *string        `json:"name"`
	Config     map[string]any `json:"config"`
	IsRequired *bool          `json:"is_required"`
	IsActive   *bool          `json:"is_active"`
}

func (s *Templates) CreateTemplate(ctx context.Context, req CreateTemplateRequest) (*models.WorkflowTemplate, error) {
	const op = "CreateTemplate"

	if err := s.validator.Struct(req); err != nil {
		return nil, NewValidationError(op, err.Error())
	}

	now := time.Now().UTC()
	template := &models.WorkflowTemplate{
		ID:          uuid.New().String(),
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		IsActive:    true,
		Version:     1,
		Steps:       []*models.WorkflowStep{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if req.IsActive != nil {
		template.IsActive = *req.IsActive
	}

	err := s.persistence.Templates().Create(ctx, template)
	if err != nil {
		if errors.Is(err, persistence.ErrDuplicateTemplateCode) {
			return nil, NewConflictError(op, fmt.Sprintf("template code %q already exists", req.Code))
		}

		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	s.logger.InfoContext(ctx, "template created", "template_id", template.ID, "code", template.Code)

	return template, nil
}

func (s *Templates) UpdateTemplate(ctx context.Context, id string, req UpdateTemplateRequest) (*models.WorkflowTemplate, error) {
	const op = "UpdateTemplate"

	if err := s.validator.Struct(req); err != nil {
		return nil, NewValidationError(op, err.Error())
	}

	template, err := s.persistence.Templates().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}

	if template == nil {
		return nil, NewNotFoundError(op, fmt.Sprintf("template %q not found", id))
	}

	if req.Name != nil {
		template.Name = *req.Name
	}

	if req.Description != nil {
		template.Description = *req.Description
	}

	if req.Category != nil {
		template.Category = *req.Category
	}

	if req.IsActive != nil {
		template.IsActive = *req.IsActive
	}

	template.Version++
	template.UpdatedAt = time.Now().UTC()

	err = s.persistence.Templates().Update(ctx, template)
	if err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}

	return template, nil
}

func (s *Templates) GetTemplate(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	template, err := s.persistence.Templates().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}

	if template == nil {
		return nil, NewNotFoundError("GetTemplate", fmt.Sprintf("template %q not found", id))
	}

	return template, nil
}

// GetTemplateByCode resolves a template by its unique code.
func (s *Templates) GetTemplateByCode(ctx context.Context, code string) (*models.WorkflowTemplate, error) {
	template, err := s.persistence.Templates().GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}

	if template == nil {
		return nil, NewNotFoundError("GetTemplateByCode", fmt.Sprintf("template %q not found", code))
	}

	return template, nil
}

func (s *Templates) ListTemplates(ctx context.Context, opts persistence.ListTemplatesOptions) (*persistence.ListTemplatesResult, error) {
	result, err := s.persistence.Templates().List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	return result, nil
}

// DeleteTemplate removes a template unless live instances still reference it.
func (s *Templates) DeleteTemplate(ctx context.Context, id string) error {
	const op = "DeleteTemplate"

	template, err := s.persistence.Templates().GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load template: %w", err)
	}

	if template == nil {
		return NewNotFoundError(op, fmt.Sprintf("template %q not found", id))
	}

	count, err := s.persistence.Instances().CountByTemplate(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to count instances: %w", err)
	}

	if count > 0 {
		return NewConflictError(op, fmt.Sprintf("template %q has %d instances", id, count))
	}

	err = s.persistence.Templates().Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	s.logger.InfoContext(ctx, "template deleted", "template_id", id, "code", template.Code)

	return nil
}

func (s *Templates) CreateStep(ctx context.Context, req CreateStepRequest) (*models.WorkflowStep, error) {
	const op = "CreateStep"

	if err := s.validator.Struct(req); err != nil {
		return nil, NewValidationError(op, err.Error())
	}

	if !req.StepType.Valid() {
		return nil, NewValidationError(op, fmt.Sprintf("unknown step type %q", req.StepType))
	}

	template, err := s.persistence.Templates().GetByID(ctx, req.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}

	if template == nil {
		return nil, NewNotFoundError(op, fmt.Sprintf("template %q not found", req.TemplateID))
	}

	now := time.Now().UTC()
	step := &models.WorkflowStep{
		ID:         uuid.New().String(),
		TemplateID: req.TemplateID,
		StepNumber: req.StepNumber,
		Name:       req.Name,
		StepType:   req.StepType,
		Config:     req.Config,
		IsRequired: true,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if step.Config == nil {
		step.Config = map[string]any{}
	}

	if req.IsRequired != nil {
		step.IsRequired = *req.IsRequired
	}

	if req.IsActive != nil {
		step.IsActive = *req.IsActive
	}

	err = s.persistence.Steps().Create(ctx, step)
	if err != nil {
		if errors.Is(err, persistence.ErrDuplicateStepNumber) {
			return nil, NewConflictError(op, fmt.Sprintf("step %d already exists in template %q", req.StepNumber, req.TemplateID))
		}

		return nil, fmt.Errorf("failed to create step: %w", err)
	}

	return step, nil
}

func (s *Templates) UpdateStep(ctx context.Context, templateID, id string, req UpdateStepRequest) (*models.WorkflowStep, error) {
	const op = "UpdateStep"

	step, err := s.loadTemplateStep(ctx, op, templateID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		step.Name = *req.Name
	}

	if req.Config != nil {
		step.Config = req.Config
	}

	if req.IsRequired != nil {
		step.IsRequired = *req.IsRequired
	}

	if req.IsActive != nil {
		step.IsActive = *req.IsActive
	}

	step.UpdatedAt = time.Now().UTC()

	err = s.persistence.Steps().Update(ctx, step)
	if err != nil {
		return nil, fmt.Errorf("failed to update step: %w", err)
	}

	return step, nil
}

// DeleteStep removes a step without renumbering the remainder; callers keep
// the sequence usable.
func (s *Templates) DeleteStep(ctx context.Context, templateID, id string) error {
	const op = "DeleteStep"

	_, err := s.loadTemplateStep(ctx, op, templateID, id)
	if err != nil {
		return err
	}

	err = s.persistence.Steps().Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete step: %w", err)
	}

	return nil
}

// loadTemplateStep resolves a step and checks it belongs to the template: a
// step reached through another template's path reads as absent.
func (s *Templates) loadTemplateStep(ctx context.Context, op, templateID, id string) (*models.WorkflowStep, error) {
	step, err := s.persistence.Steps().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load step: %w", err)
	}

	if step == nil || step.TemplateID != templateID {
		return nil, NewNotFoundError(op, fmt.Sprintf("step %q not found in template %q", id, templateID))
	}

	return step, nil
}
