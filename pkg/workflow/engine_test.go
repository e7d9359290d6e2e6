package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseflow-io/caseflow/pkg/automation"
	"github.com/caseflow-io/caseflow/pkg/automation/logaction"
	"github.com/caseflow-io/caseflow/pkg/lock"
	"github.com/caseflow-io/caseflow/pkg/models"
	"github.com/caseflow-io/caseflow/pkg/notify"
	"github.com/caseflow-io/caseflow/pkg/persistence/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type engineFixture struct {
	store     *memory.Persistence
	engine    *Engine
	templates *Templates
	actions   *automation.Registry
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	logger := testLogger()
	store := memory.NewPersistence()

	actions := automation.NewRegistry(logger)
	actions.Register(logaction.NewActionFactory())

	return &engineFixture{
		store:     store,
		engine:    NewEngine(store, actions, notify.NewLogNotifier(logger), nil, lock.NewLocalLocker(), logger),
		templates: NewTemplates(store, logger),
		actions:   actions,
	}
}

// formTemplate creates an active template with the given number of form steps.
func (f *engineFixture) formTemplate(t *testing.T, code string, stepCount int) *models.WorkflowTemplate {
	t.Helper()

	template, err := f.templates.CreateTemplate(t.Context(), CreateTemplateRequest{
		Code: code,
		Name: code + " process",
	})
	require.NoError(t, err)

	for i := 1; i <= stepCount; i++ {
		_, err := f.templates.CreateStep(t.Context(), CreateStepRequest{
			TemplateID: template.ID,
			StepNumber: i,
			Name:       fmt.Sprintf("Step %d", i),
			StepType:   models.StepTypeForm,
		})
		require.NoError(t, err)
	}

	template, err = f.templates.GetTemplate(t.Context(), template.ID)
	require.NoError(t, err)

	return template
}

func (f *engineFixture) addStep(t *testing.T, templateID string, number int, stepType models.StepType, config map[string]any) {
	t.Helper()

	_, err := f.templates.CreateStep(t.Context(), CreateStepRequest{
		TemplateID: templateID,
		StepNumber: number,
		Name:       fmt.Sprintf("Step %d", number),
		StepType:   stepType,
		Config:     config,
	})
	require.NoError(t, err)
}

func (f *engineFixture) startInstance(t *testing.T, templateID string) *models.InstanceDetail {
	t.Helper()

	detail, err := f.engine.CreateInstance(t.Context(), CreateInstanceRequest{
		TemplateID:  templateID,
		Title:       "Test case",
		InitiatedBy: "hr-1",
	})
	require.NoError(t, err)

	return detail
}

func activityActions(t *testing.T, f *engineFixture, instanceID string) []models.ActivityAction {
	t.Helper()

	entries, err := f.store.Activity().ListRecent(t.Context(), instanceID, 0)
	require.NoError(t, err)

	// ListRecent is newest first; flip to chronological order.
	actions := make([]models.ActivityAction, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		actions = append(actions, entries[i].Action)
	}

	return actions
}

func TestEngine_CreateInstance(t *testing.T) {
	f := newEngineFixture(t)
	template := f.formTemplate(t, "PROC", 3)

	detail, err := f.engine.CreateInstance(t.Context(), CreateInstanceRequest{
		TemplateID:  template.ID,
		Title:       "First case",
		Description: "A case",
		FormData:    map[string]any{"field": "value"},
		InitiatedBy: "hr-1",
	})
	require.NoError(t, err)

	instance := detail.Instance
	assert.Equal(t, models.InstanceStatusPending, instance.Status)
	assert.Equal(t, 1, instance.CurrentStepNumber)
	assert.Equal(t, fmt.Sprintf("PROC-%d-0001", time.Now().UTC().Year()), instance.InstanceCode)
	assert.Equal(t, "hr-1", instance.InitiatedBy)
	assert.False(t, instance.StartedAt.IsZero())
	assert.Nil(t, instance.CompletedAt)

	// One open execution for the first step, and a single created entry.
	require.Len(t, detail.Executions, 1)
	assert.Equal(t, 1, detail.Executions[0].StepNumber)
	assert.Equal(t, models.InstanceStatusPending, detail.Executions[0].Status)

	assert.Equal(t, []models.ActivityAction{models.ActivityCreated}, activityActions(t, f, instance.ID))
	assert.Len(t, detail.Steps, 3)
}

func TestEngine_CreateInstance_SequentialCodes(t *testing.T) {
	f := newEngineFixture(t)
	template := f.formTemplate(t, "PROC", 1)

	first := f.startInstance(t, template.ID)
	second := f.startInstance(t, template.ID)

	year := time.Now().UTC().Year()
	assert.Equal(t, fmt.Sprintf("PROC-%d-0001", year), first.Instance.InstanceCode)
	assert.Equal(t, fmt.Sprintf("PROC-%d-0002", year), second.Instance.InstanceCode)
}

func TestEngine_CreateInstance_InactiveTemplate(t *testing.T) {
	f := newEngineFixture(t)
	template := f.formTemplate(t, "PROC", 1)

	inactive := false
	_, err := f.templates.UpdateTemplate(t.Context(), template.ID, UpdateTemplateRequest{IsActive: &inactive})
	require.NoError(t, err)

	_, err = f.engine.CreateInstance(t.Context(), CreateInstanceRequest{
		TemplateID:  template.ID,
		Title:       "Should fail",
		InitiatedBy: "hr-1",
	})
	assert.True(t, IsValidationError(err))
}

func TestEngine_CreateInstance_NoActiveSteps(t *testing.T) {
	f := newEngineFixture(t)

	template, err := f.templates.CreateTemplate(t.Context(), CreateTemplateRequest{Code: "EMPTY", Name: "Empty process"})
	require.NoError(t, err)

	_, err = f.engine.CreateInstance(t.Context(), CreateInstanceRequest{
		TemplateID:  template.ID,
		Title:       "Should fail",
		InitiatedBy: "hr-1",
	})
	assert.True(t, IsValidationError(err))
}

func TestEngine_CreateInstance_TemplateNotFound(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.CreateInstance(t.Context(), CreateInstanceRequest{
		TemplateID:  "missing",
		Title:       "Should fail",
		InitiatedBy: "hr-1",
	})
	assert.True(t, IsNotFoundError(err))
}

func TestEngine_CreateInstance_MissingTitle(t *testing.T) {
	f := newEngineFixture(t)
	template := f.formTemplate(t, "PROC", 1)

	_, err := f.engine.CreateInstance(t.Context(), CreateInstanceRequest{
		TemplateID:  template.ID,
		InitiatedBy: "hr-1",
	})
	assert.True(t, IsValidationError(err))
}

func TestEngine_CompleteStep_AdvancesThroughForms(t *testing.T) {
	f := newEngineFixture(t)
	template := f.formTemplate(t, "PROC", 3)
	detail := f.startInstance(t, template.ID)
	id := detail.Instance.ID

	result, err := f.engine.CompleteStep(t.Context(), id, 1, map[string]any{"answer": 42}, "hr-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdvanced, result.Outcome)
	assert.Equal(t, 2, result.Instance.CurrentStepNumber)
	assert.Equal(t, models.InstanceStatusInProgress, result.Instance.Status)

	result, err = f.engine.CompleteStep(t.Context(), id, 2, nil, "hr-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdvanced, result.Outcome)

	result, err = f.engine.CompleteStep(t.Context(), id, 3, nil, "hr-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, models.InstanceStatusCompleted, result.Instance.Status)
	require.NotNil(t, result.Instance.CompletedAt)

	assert.Equal(t, []models.ActivityAction{
		models.ActivityCreated,
		models.ActivityStepStarted,
		models.ActivityStepStarted,
		models.ActivityCompleted,
	}, activityActions(t, f, id))

	executions, err := f.store.Executions().ListByInstance(t.Context(), id)
	require.NoError(t, err)
	require.Len(t, executions, 3)

	for _, execution := range executions {
		assert.Equal(t, models.InstanceStatusCompleted, execution.Status)
		assert.NotNil(t, execution.CompletedAt)
	}
}

func TestEngine_CompleteStep_WrongStep(t *testing.T) {
	f := newEngineFixture(t)
	template := f.formTemplate(t, "PROC", 3)
	detail := f.startInstance(t, template.ID)

	_, err := f.engine.CompleteStep(t.Context(), detail.Instance.ID, 2, nil, "hr-1")
	assert.True(t, IsValidationError(err))

	current, err := f.engine.GetInstance(t.Context(), detail.Instance.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, current.Instance.CurrentStepNumber)
}

func TestEngine_CompleteStep_TerminalInstance(t *testing.T) {
	f := newEngineFixture(t)
	template := f.formTemplate(t, "PROC", 2)
	detail := f.startInstance(t, template.ID)

	_, err := f.engine.CancelInstance(t.Context(), detail.Instance.ID, "no longer needed", "hr-1")
	require.NoError(t, err)

	_, err = f.engine.CompleteStep(t.Context(), detail.Instance.ID, 1, nil, "hr-1")
	assert.True(t, IsValidationError(err))
}

func TestEngine_CompleteStep_UnknownInstance(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.CompleteStep(t.Context(), "missing", 1, nil, "hr-1")
	assert.True(t, IsNotFoundError(err))
}

func TestEngine_CancelInstance(t *testing.T) {
	f := newEngineFixture(t)
	template := f.formTemplate(t, "PROC", 2)
	detail := f.startInstance(t, template.ID)

	cancelled, err := f.engine.CancelInstance(t.Context(), detail.Instance.ID, "duplicate case", "hr-1")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCancelled, cancelled.Status)

	assert.Equal(t, []models.ActivityAction{
		models.ActivityCreated,
		models.ActivityCancelled,
	}, activityActions(t, f, detail.Instance.ID))

	_, err = f.engine.CancelInstance(t.Context(), detail.Instance.ID, "again", "hr-1")
	assert.True(t, IsValidationError(err))
}

func TestEngine_CancelInstance_Completed(t *testing.T) {
	f := newEngineFixture(t)
	template := f.formTemplate(t, "PROC", 1)
	detail := f.startInstance(t, template.ID)

	_, err := f.engine.CompleteStep(t.Context(), detail.Instance.ID, 1, nil, "hr-1")
	require.NoError(t, err)

	_, err = f.engine.CancelInstance(t.Context(), detail.Instance.ID, "too late", "hr-1")
	require.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "already completed")
}

func TestEngine_UpdateInstance(t *testing.T) {
	f := newEngineFixture(t)
	template := f.formTemplate(t, "PROC", 2)

	detail, err := f.engine.CreateInstance(t.Context(), CreateInstanceRequest{
		TemplateID:  template.ID,
		Title:       "Original title",
		Metadata:    map[string]any{"existing": "kept"},
		InitiatedBy: "hr-1",
	})
	require.NoError(t, err)

	title := "New title"
	assignee := "ops-1"

	updated, err := f.engine.UpdateInstance(t.Context(), detail.Instance.ID, UpdateInstanceRequest{
		Title:      &title,
		AssignedTo: &assignee,
		Metadata:   map[string]any{"extra": "added"},
	})
	require.NoError(t, err)

	assert.Equal(t, "New title", updated.Title)
	assert.Equal(t, "ops-1", updated.AssignedTo)

	// Metadata patches merge key by key.
	assert.Equal(t, "kept", updated.Metadata["existing"])
	assert.Equal(t, "added", updated.Metadata["extra"])
}

func TestEngine_UpdateInstance_Terminal(t *testing.T) {
	f := newEngineFixture(t)
	template := f.formTemplate(t, "PROC", 1)
	detail := f.startInstance(t, template.ID)

	_, err := f.engine.CompleteStep(t.Context(), detail.Instance.ID, 1, nil, "hr-1")
	require.NoError(t, err)

	title := "Too late"
	_, err = f.engine.UpdateInstance(t.Context(), detail.Instance.ID, UpdateInstanceRequest{Title: &title})
	assert.True(t, IsValidationError(err))
}

func TestEngine_AddComment(t *testing.T) {
	f := newEngineFixture(t)
	template := f.formTemplate(t, "PROC", 2)
	detail := f.startInstance(t, template.ID)

	comment, err := f.engine.AddComment(t.Context(), detail.Instance.ID, "hr-1", "looks good", []string{"ops-1"})
	require.NoError(t, err)
	assert.Equal(t, "looks good", comment.Body)
	assert.Equal(t, []string{"ops-1"}, comment.Mentions)

	actions := activityActions(t, f, detail.Instance.ID)
	assert.Contains(t, actions, models.ActivityCommentAdded)
}

func TestEngine_AddComment_EmptyBody(t *testing.T) {
	f := newEngineFixture(t)
	template := f.formTemplate(t, "PROC", 1)
	detail := f.startInstance(t, template.ID)

	_, err := f.engine.AddComment(t.Context(), detail.Instance.ID, "hr-1", "", nil)
	assert.True(t, IsValidationError(err))
}

func TestEngine_AddComment_TerminalInstanceAllowed(t *testing.T) {
	f := newEngineFixture(t)
	template := f.formTemplate(t, "PROC", 1)
	detail := f.startInstance(t, template.ID)

	_, err := f.engine.CancelInstance(t.Context(), detail.Instance.ID, "cancelled", "hr-1")
	require.NoError(t, err)

	comment, err := f.engine.AddComment(t.Context(), detail.Instance.ID, "hr-1", "for the record", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, comment.ID)
}

func TestEngine_GetInstance_NotFound(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.GetInstance(t.Context(), "missing")
	assert.True(t, IsNotFoundError(err))
}

func TestEngine_Automation_RunsOnComplete(t *testing.T) {
	f := newEngineFixture(t)

	template, err := f.templates.CreateTemplate(t.Context(), CreateTemplateRequest{Code: "AUTO", Name: "Automation process"})
	require.NoError(t, err)

	f.addStep(t, template.ID, 1, models.StepTypeAutomation, map[string]any{
		"action": "log",
		"params": map[string]any{"message": "provisioning"},
	})

	detail := f.startInstance(t, template.ID)

	result, err := f.engine.CompleteStep(t.Context(), detail.Instance.ID, 1, nil, "hr-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)

	output, ok := result.Instance.Metadata["automation:log"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, output["logged"])
}

func TestEngine_Automation_UnknownAction(t *testing.T) {
	f := newEngineFixture(t)

	template, err := f.templates.CreateTemplate(t.Context(), CreateTemplateRequest{Code: "AUTO", Name: "Automation process"})
	require.NoError(t, err)

	f.addStep(t, template.ID, 1, models.StepTypeAutomation, map[string]any{"action": "does_not_exist"})

	detail := f.startInstance(t, template.ID)

	_, err = f.engine.CompleteStep(t.Context(), detail.Instance.ID, 1, nil, "hr-1")
	assert.True(t, IsNotFoundError(err))
}

func TestEngine_Automation_InvalidActionConfig(t *testing.T) {
	f := newEngineFixture(t)

	template, err := f.templates.CreateTemplate(t.Context(), CreateTemplateRequest{Code: "AUTO", Name: "Automation process"})
	require.NoError(t, err)

	// The log action requires a message param.
	f.addStep(t, template.ID, 1, models.StepTypeAutomation, map[string]any{"action": "log"})

	detail := f.startInstance(t, template.ID)

	_, err = f.engine.CompleteStep(t.Context(), detail.Instance.ID, 1, nil, "hr-1")
	assert.True(t, IsValidationError(err))
}

// flakyFactory is its own action: it fails a configured number of times
// before succeeding.
type flakyFactory struct {
	failures int
	calls    int
}

func (a *flakyFactory) ID() string          { return "flaky" }
func (a *flakyFactory) Name() string        { return "Flaky" }
func (a *flakyFactory) Description() string { return "Fails before eventually succeeding." }

func (a *flakyFactory) Schema() map[string]any {
	return map[string]any{"type": "object"}
}

func (a *flakyFactory) Create(_ context.Context, _ map[string]any) (automation.Action, error) {
	return a, nil
}

func (a *flakyFactory) Execute(_ context.Context, _ automation.Context, _ *slog.Logger) (map[string]any, error) {
	a.calls++
	if a.calls <= a.failures {
		return nil, errors.New("directory unavailable")
	}

	return map[string]any{"attempts": a.calls}, nil
}

func TestEngine_Automation_RetryAfterFailure(t *testing.T) {
	f := newEngineFixture(t)

	action := &flakyFactory{failures: 1}
	f.actions.Register(action)

	template, err := f.templates.CreateTemplate(t.Context(), CreateTemplateRequest{Code: "AUTO", Name: "Automation process"})
	require.NoError(t, err)

	f.addStep(t, template.ID, 1, models.StepTypeAutomation, map[string]any{"action": "flaky"})

	detail := f.startInstance(t, template.ID)

	_, err = f.engine.CompleteStep(t.Context(), detail.Instance.ID, 1, nil, "hr-1")
	require.Error(t, err)

	// The failed run leaves the execution open and the case on the same step.
	open, err := f.store.Executions().GetOpen(t.Context(), detail.Instance.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, open)

	current, err := f.engine.GetInstance(t.Context(), detail.Instance.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, current.Instance.CurrentStepNumber)

	result, err := f.engine.CompleteStep(t.Context(), detail.Instance.ID, 1, nil, "hr-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, 2, action.calls)

	output, ok := result.Instance.Metadata["automation:flaky"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 2, output["attempts"])

	assert.Contains(t, activityActions(t, f, detail.Instance.ID), models.ActivityAutomationFailed)
}

func TestEngine_Advance_MalformedNextStepConfig(t *testing.T) {
	f := newEngineFixture(t)

	template, err := f.templates.CreateTemplate(t.Context(), CreateTemplateRequest{Code: "NOTIFY", Name: "Notify process"})
	require.NoError(t, err)

	f.addStep(t, template.ID, 1, models.StepTypeForm, nil)
	// Notification config without the required template key.
	f.addStep(t, template.ID, 2, models.StepTypeNotification, map[string]any{"recipients": []any{"hr-1"}})

	detail := f.startInstance(t, template.ID)

	_, err = f.engine.CompleteStep(t.Context(), detail.Instance.ID, 1, nil, "hr-1")
	assert.True(t, IsValidationError(err))

	// The transition onto step 2 is still in the trail.
	entries, err := f.store.Activity().ListRecent(t.Context(), detail.Instance.ID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, models.ActivityStepStarted, entries[0].Action)
	assert.Equal(t, 2, entries[0].StepNumber)
}
