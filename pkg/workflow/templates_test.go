package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseflow-io/caseflow/pkg/models"
	"github.com/caseflow-io/caseflow/pkg/persistence"
	"github.com/caseflow-io/caseflow/pkg/persistence/memory"
)

func newTemplatesService() (*Templates, *memory.Persistence) {
	store := memory.NewPersistence()

	return NewTemplates(store, testLogger()), store
}

func TestTemplates_CreateTemplate(t *testing.T) {
	service, _ := newTemplatesService()

	template, err := service.CreateTemplate(t.Context(), CreateTemplateRequest{
		Code:        "EXPENSE",
		Name:        "Expense approval",
		Description: "Expense report approval process",
		Category:    "finance",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, template.ID)
	assert.Equal(t, "EXPENSE", template.Code)
	assert.True(t, template.IsActive)
	assert.Equal(t, 1, template.Version)
	assert.False(t, template.CreatedAt.IsZero())
}

func TestTemplates_CreateTemplate_DuplicateCode(t *testing.T) {
	service, _ := newTemplatesService()

	_, err := service.CreateTemplate(t.Context(), CreateTemplateRequest{Code: "EXPENSE", Name: "Expense approval"})
	require.NoError(t, err)

	_, err = service.CreateTemplate(t.Context(), CreateTemplateRequest{Code: "EXPENSE", Name: "Another expense process"})
	assert.True(t, IsConflictError(err))
}

func TestTemplates_CreateTemplate_Validation(t *testing.T) {
	service, _ := newTemplatesService()

	// Codes are uppercase identifiers.
	_, err := service.CreateTemplate(t.Context(), CreateTemplateRequest{Code: "expense", Name: "Expense approval"})
	assert.True(t, IsValidationError(err))

	_, err = service.CreateTemplate(t.Context(), CreateTemplateRequest{Code: "EXPENSE"})
	assert.True(t, IsValidationError(err))
}

func TestTemplates_UpdateTemplate(t *testing.T) {
	service, _ := newTemplatesService()

	template, err := service.CreateTemplate(t.Context(), CreateTemplateRequest{Code: "EXPENSE", Name: "Expense approval"})
	require.NoError(t, err)

	name := "Expense approval v2"
	inactive := false

	updated, err := service.UpdateTemplate(t.Context(), template.ID, UpdateTemplateRequest{
		Name:     &name,
		IsActive: &inactive,
	})
	require.NoError(t, err)

	assert.Equal(t, "Expense approval v2", updated.Name)
	assert.False(t, updated.IsActive)
	assert.Equal(t, 2, updated.Version)
}

func TestTemplates_UpdateTemplate_NotFound(t *testing.T) {
	service, _ := newTemplatesService()

	name := "New name"
	_, err := service.UpdateTemplate(t.Context(), "missing", UpdateTemplateRequest{Name: &name})
	assert.True(t, IsNotFoundError(err))
}

func TestTemplates_GetTemplateByCode(t *testing.T) {
	service, _ := newTemplatesService()

	created, err := service.CreateTemplate(t.Context(), CreateTemplateRequest{Code: "EXPENSE", Name: "Expense approval"})
	require.NoError(t, err)

	found, err := service.GetTemplateByCode(t.Context(), "EXPENSE")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = service.GetTemplateByCode(t.Context(), "MISSING")
	assert.True(t, IsNotFoundError(err))
}

func TestTemplates_ListTemplates(t *testing.T) {
	service, _ := newTemplatesService()

	_, err := service.CreateTemplate(t.Context(), CreateTemplateRequest{Code: "EXPENSE", Name: "Expense approval", Category: "finance"})
	require.NoError(t, err)

	_, err = service.CreateTemplate(t.Context(), CreateTemplateRequest{Code: "ONBOARD", Name: "Employee onboarding", Category: "hr"})
	require.NoError(t, err)

	all, err := service.ListTemplates(t.Context(), persistence.ListTemplatesOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.TotalCount)

	finance, err := service.ListTemplates(t.Context(), persistence.ListTemplatesOptions{Category: "finance"})
	require.NoError(t, err)
	require.Len(t, finance.Templates, 1)
	assert.Equal(t, "EXPENSE", finance.Templates[0].Code)
}

func TestTemplates_DeleteTemplate(t *testing.T) {
	service, _ := newTemplatesService()

	template, err := service.CreateTemplate(t.Context(), CreateTemplateRequest{Code: "EXPENSE", Name: "Expense approval"})
	require.NoError(t, err)

	err = service.DeleteTemplate(t.Context(), template.ID)
	require.NoError(t, err)

	_, err = service.GetTemplate(t.Context(), template.ID)
	assert.True(t, IsNotFoundError(err))
}

func TestTemplates_DeleteTemplate_WithInstances(t *testing.T) {
	f := newEngineFixture(t)
	template := f.formTemplate(t, "PROC", 1)
	f.startInstance(t, template.ID)

	err := f.templates.DeleteTemplate(t.Context(), template.ID)
	assert.True(t, IsConflictError(err))
}

func TestTemplates_CreateStep(t *testing.T) {
	service, _ := newTemplatesService()

	template, err := service.CreateTemplate(t.Context(), CreateTemplateRequest{Code: "EXPENSE", Name: "Expense approval"})
	require.NoError(t, err)

	step, err := service.CreateStep(t.Context(), CreateStepRequest{
		TemplateID: template.ID,
		StepNumber: 1,
		Name:       "Submit report",
		StepType:   models.StepTypeForm,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, step.ID)
	assert.True(t, step.IsRequired)
	assert.True(t, step.IsActive)
	assert.NotNil(t, step.Config)
}

func TestTemplates_CreateStep_UnknownType(t *testing.T) {
	service, _ := newTemplatesService()

	template, err := service.CreateTemplate(t.Context(), CreateTemplateRequest{Code: "EXPENSE", Name: "Expense approval"})
	require.NoError(t, err)

	_, err = service.CreateStep(t.Context(), CreateStepRequest{
		TemplateID: template.ID,
		StepNumber: 1,
		Name:       "Strange step",
		StepType:   models.StepType("webhook"),
	})
	assert.True(t, IsValidationError(err))
}

func TestTemplates_CreateStep_DuplicateNumber(t *testing.T) {
	service, _ := newTemplatesService()

	template, err := service.CreateTemplate(t.Context(), CreateTemplateRequest{Code: "EXPENSE", Name: "Expense approval"})
	require.NoError(t, err)

	_, err = service.CreateStep(t.Context(), CreateStepRequest{
		TemplateID: template.ID,
		StepNumber: 1,
		Name:       "Submit report",
		StepType:   models.StepTypeForm,
	})
	require.NoError(t, err)

	_, err = service.CreateStep(t.Context(), CreateStepRequest{
		TemplateID: template.ID,
		StepNumber: 1,
		Name:       "Also step one",
		StepType:   models.StepTypeForm,
	})
	assert.True(t, IsConflictError(err))
}

func TestTemplates_UpdateStep(t *testing.T) {
	service, _ := newTemplatesService()

	template, err := service.CreateTemplate(t.Context(), CreateTemplateRequest{Code: "EXPENSE", Name: "Expense approval"})
	require.NoError(t, err)

	step, err := service.CreateStep(t.Context(), CreateStepRequest{
		TemplateID: template.ID,
		StepNumber: 1,
		Name:       "Submit report",
		StepType:   models.StepTypeForm,
	})
	require.NoError(t, err)

	name := "Submit expense report"
	inactive := false

	updated, err := service.UpdateStep(t.Context(), template.ID, step.ID, UpdateStepRequest{
		Name:     &name,
		Config:   map[string]any{"fields": []any{}},
		IsActive: &inactive,
	})
	require.NoError(t, err)

	assert.Equal(t, "Submit expense report", updated.Name)
	assert.False(t, updated.IsActive)
}

func TestTemplates_DeleteStep(t *testing.T) {
	service, store := newTemplatesService()

	template, err := service.CreateTemplate(t.Context(), CreateTemplateRequest{Code: "EXPENSE", Name: "Expense approval"})
	require.NoError(t, err)

	step, err := service.CreateStep(t.Context(), CreateStepRequest{
		TemplateID: template.ID,
		StepNumber: 1,
		Name:       "Submit report",
		StepType:   models.StepTypeForm,
	})
	require.NoError(t, err)

	err = service.DeleteStep(t.Context(), template.ID, step.ID)
	require.NoError(t, err)

	steps, err := store.Steps().ListByTemplate(t.Context(), template.ID)
	require.NoError(t, err)
	assert.Empty(t, steps)

	err = service.DeleteStep(t.Context(), template.ID, step.ID)
	assert.True(t, IsNotFoundError(err))
}

func TestTemplates_StepBelongsToTemplate(t *testing.T) {
	service, _ := newTemplatesService()

	expense, err := service.CreateTemplate(t.Context(), CreateTemplateRequest{Code: "EXPENSE", Name: "Expense approval"})
	require.NoError(t, err)

	travel, err := service.CreateTemplate(t.Context(), CreateTemplateRequest{Code: "TRAVEL", Name: "Travel request"})
	require.NoError(t, err)

	step, err := service.CreateStep(t.Context(), CreateStepRequest{
		TemplateID: expense.ID,
		StepNumber: 1,
		Name:       "Submit report",
		StepType:   models.StepTypeForm,
	})
	require.NoError(t, err)

	name := "Hijacked"

	_, err = service.UpdateStep(t.Context(), travel.ID, step.ID, UpdateStepRequest{Name: &name})
	assert.True(t, IsNotFoundError(err))

	err = service.DeleteStep(t.Context(), travel.ID, step.ID)
	assert.True(t, IsNotFoundError(err))

	// The step is untouched and still reachable through its own template.
	kept, err := service.UpdateStep(t.Context(), expense.ID, step.ID, UpdateStepRequest{})
	require.NoError(t, err)
	assert.Equal(t, "Submit report", kept.Name)
}
