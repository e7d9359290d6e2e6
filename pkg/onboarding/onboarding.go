// Package onboarding implements the employee onboarding process on top of
// the generic workflow engine. The process only ever calls the engine's
// public operations; it takes no shortcuts into step bookkeeping.
package onboarding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/caseflow-io/caseflow/pkg/directory"
	"github.com/caseflow-io/caseflow/pkg/models"
	"github.com/caseflow-io/caseflow/pkg/workflow"
)

// TemplateCode identifies the onboarding template.
const TemplateCode = "ONBOARD"

const (
	stepEmployeeDetails    = 1
	stepCreateAccount      = 2
	stepThirdPartyAccounts = 3
	stepManagerApproval    = 4
	stepConfirmation       = 5
)

type Process struct {
	templates *workflow.Templates
	engine    *workflow.Engine
	directory directory.Directory
	validator *validator.Validate
	logger    *slog.Logger
}

func NewProcess(templates *workflow.Templates, engine *workflow.Engine, dir directory.Directory, logger *slog.Logger) *Process {
	return &Process{
		templates: templates,
		engine:    engine,
		directory: dir,
		validator: validator.New(),
		logger:    logger.With("module", "onboarding"),
	}
}

// EnsureTemplate registers the 5-step onboarding template. It is a no-op
// when the template code already exists, so it is safe to call on every
// startup.
func (p *Process) EnsureTemplate(ctx context.Context) (*models.WorkflowTemplate, error) {
	existing, err := p.templates.GetTemplateByCode(ctx, TemplateCode)
	if err == nil {
		return existing, nil
	}

	if !workflow.IsNotFoundError(err) {
		return nil, err
	}

	template, err := p.templates.CreateTemplate(ctx, workflow.CreateTemplateRequest{
		Code:        TemplateCode,
		Name:        "Employee Onboarding",
		Description: "New employee onboarding: details, account provisioning, third-party accounts, manager approval, confirmation",
		Category:    "hr",
	})
	if err != nil {
		if workflow.IsConflictError(err) {
			// Lost a startup race with another node; the template exists.
			return p.templates.GetTemplateByCode(ctx, TemplateCode)
		}

		return nil, err
	}

	steps := []workflow.CreateStepRequest{
		{
			TemplateID: template.ID,
			StepNumber: stepEmployeeDetails,
			Name:       "Employee details",
			StepType:   models.StepTypeForm,
			Config: map[string]any{
				"fields": []any{
					map[string]any{"name": "full_name", "label": "Full name", "type": "text", "required": true},
					map[string]any{"name": "email", "label": "Email", "type": "email", "required": true},
					map[string]any{"name": "department", "label": "Department", "type": "text"},
					map[string]any{"name": "title", "label": "Job title", "type": "text"},
					map[string]any{"name": "start_date", "label": "Start date", "type": "date"},
				},
			},
		},
		{
			TemplateID: template.ID,
			StepNumber: stepCreateAccount,
			Name:       "Create user account",
			StepType:   models.StepTypeAutomation,
			Config:     map[string]any{"action": "create_user_account"},
		},
		{
			TemplateID: template.ID,
			StepNumber: stepThirdPartyAccounts,
			Name:       "Third-party accounts",
			StepType:   models.StepTypeForm,
			Config: map[string]any{
				"fields": []any{
					map[string]any{"name": "accounts", "label": "Third-party accounts", "type": "list"},
				},
			},
		},
		{
			TemplateID: template.ID,
			StepNumber: stepManagerApproval,
			Name:       "Manager approval",
			StepType:   models.StepTypeApproval,
			// Approvers are assigned at runtime by the HR coordinator.
			Config: map[string]any{"approvers": []any{}},
		},
		{
			TemplateID: template.ID,
			StepNumber: stepConfirmation,
			Name:       "Employee confirmation",
			StepType:   models.StepTypeNotification,
			Config:     map[string]any{"template": "onboarding_complete"},
		},
	}

	for _, step := range steps {
		_, err := p.templates.CreateStep(ctx, step)
		if err != nil && !workflow.IsConflictError(err) {
			return nil, err
		}
	}

	p.logger.InfoContext(ctx, "onboarding template registered", "template_id", template.ID)

	return p.templates.GetTemplate(ctx, template.ID)
}

// StartOnboarding opens a new onboarding case. The email must not already be
// registered in the user directory.
func (p *Process) StartOnboarding(ctx context.Context, formData map[string]any, initiator string) (*models.InstanceDetail, error) {
	const op = "StartOnboarding"

	email, _ := formData["email"].(string)
	if email == "" {
		return nil, workflow.NewValidationError(op, "form data must include an email")
	}

	fullName, _ := formData["full_name"].(string)
	if fullName == "" {
		return nil, workflow.NewValidationError(op, "form data must include a full_name")
	}

	existing, err := p.directory.Users().GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user by email: %w", err)
	}

	if existing != nil {
		return nil, workflow.NewConflictError(op, fmt.Sprintf("email %q is already registered", email))
	}

	template, err := p.templates.GetTemplateByCode(ctx, TemplateCode)
	if err != nil {
		return nil, err
	}

	return p.engine.CreateInstance(ctx, workflow.CreateInstanceRequest{
		TemplateID:  template.ID,
		Title:       fmt.Sprintf("Onboarding: %s", fullName),
		FormData:    formData,
		InitiatedBy: initiator,
	})
}

// CompleteEmployeeDetails handles step 1: it creates the employee record,
// stashes the new IDs into the case metadata, and completes the step through
// the engine.
func (p *Process) CompleteEmployeeDetails(ctx context.Context, instanceID, actor string) (*workflow.CompleteStepResult, error) {
	const op = "CompleteEmployeeDetails"

	detail, err := p.instanceOnStep(ctx, op, instanceID, stepEmployeeDetails)
	if err != nil {
		return nil, err
	}

	instance := detail.Instance

	email, _ := instance.FormData["email"].(string)
	fullName, _ := instance.FormData["full_name"].(string)
	department, _ := instance.FormData["department"].(string)
	title, _ := instance.FormData["title"].(string)

	employee := &directory.Employee{
		ID:         uuid.New().String(),
		FullName:   fullName,
		Email:      email,
		Department: department,
		Title:      title,
		CreatedAt:  time.Now().UTC(),
	}

	if startDate, ok := instance.FormData["start_date"].(string); ok && startDate != "" {
		if parsed, err := time.Parse("2006-01-02", startDate); err == nil {
			employee.StartDate = &parsed
		}
	}

	err = p.directory.Employees().Create(ctx, employee)
	if err != nil {
		return nil, fmt.Errorf("failed to create employee record: %w", err)
	}

	_, err = p.engine.UpdateInstance(ctx, instanceID, workflow.UpdateInstanceRequest{
		Metadata: map[string]any{"employee_id": employee.ID},
	})
	if err != nil {
		return nil, err
	}

	return p.engine.CompleteStep(ctx, instanceID, stepEmployeeDetails,
		map[string]any{"employee_id": employee.ID}, actor)
}

// ThirdPartyAccountInput is one account to link to the new employee.
type ThirdPartyAccountInput struct {
	System    string `json:"system"     validate:"required"`
	AccountID string `json:"account_id" validate:"required"`
}

// AddThirdPartyAccounts handles step 3: it records the linked accounts and
// completes the step.
func (p *Process) AddThirdPartyAccounts(ctx context.Context, instanceID string, accounts []ThirdPartyAccountInput, actor string) (*workflow.CompleteStepResult, error) {
	const op = "AddThirdPartyAccounts"

	detail, err := p.instanceOnStep(ctx, op, instanceID, stepThirdPartyAccounts)
	if err != nil {
		return nil, err
	}

	employeeID, _ := detail.Instance.Metadata["employee_id"].(string)
	if employeeID == "" {
		return nil, workflow.NewValidationError(op, "case has no employee record yet")
	}

	ids := make([]string, 0, len(accounts))

	for _, input := range accounts {
		if err := p.validator.Struct(input); err != nil {
			return nil, workflow.NewValidationError(op, err.Error())
		}

		account := &directory.ThirdPartyAccount{
			ID:         uuid.New().String(),
			EmployeeID: employeeID,
			System:     input.System,
			AccountID:  input.AccountID,
			CreatedAt:  time.Now().UTC(),
		}

		err := p.directory.ThirdPartyAccounts().Add(ctx, account)
		if err != nil {
			return nil, fmt.Errorf("failed to link third-party account: %w", err)
		}

		ids = append(ids, account.ID)
	}

	_, err = p.engine.UpdateInstance(ctx, instanceID, workflow.UpdateInstanceRequest{
		Metadata: map[string]any{"third_party_account_ids": ids},
	})
	if err != nil {
		return nil, err
	}

	return p.engine.CompleteStep(ctx, instanceID, stepThirdPartyAccounts,
		map[string]any{"third_party_account_ids": ids}, actor)
}

// AssignManagerApproval handles step 4's late assignment: the HR coordinator
// names the manager once the case reaches the approval step.
func (p *Process) AssignManagerApproval(ctx context.Context, instanceID, managerID, actor string) (*models.WorkflowApproval, error) {
	const op = "AssignManagerApproval"

	_, err := p.instanceOnStep(ctx, op, instanceID, stepManagerApproval)
	if err != nil {
		return nil, err
	}

	return p.engine.AssignApprover(ctx, instanceID, managerID, actor)
}

func (p *Process) instanceOnStep(ctx context.Context, op, instanceID string, stepNumber int) (*models.InstanceDetail, error) {
	detail, err := p.engine.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if detail.Instance.CurrentStepNumber != stepNumber {
		return nil, workflow.NewValidationError(op,
			fmt.Sprintf("case %s is on step %d, expected %d", detail.Instance.InstanceCode, detail.Instance.CurrentStepNumber, stepNumber))
	}

	return detail, nil
}
