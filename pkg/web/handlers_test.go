package web

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseflow-io/caseflow/pkg/automation"
	"github.com/caseflow-io/caseflow/pkg/automation/createuseraccount"
	directorymemory "github.com/caseflow-io/caseflow/pkg/directory/memory"
	"github.com/caseflow-io/caseflow/pkg/lock"
	"github.com/caseflow-io/caseflow/pkg/models"
	"github.com/caseflow-io/caseflow/pkg/notify"
	"github.com/caseflow-io/caseflow/pkg/onboarding"
	"github.com/caseflow-io/caseflow/pkg/persistence/memory"
	"github.com/caseflow-io/caseflow/pkg/workflow"
)

type webFixture struct {
	app   *fiber.App
	store *memory.Persistence
}

func setupTestApp(t *testing.T) *webFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store := memory.NewPersistence()
	dir := directorymemory.NewDirectory()

	actions := automation.NewRegistry(logger)
	actions.Register(createuseraccount.NewActionFactory(dir.Users()))

	engine := workflow.NewEngine(store, actions, notify.NewLogNotifier(logger), nil, lock.NewLocalLocker(), logger)
	templates := workflow.NewTemplates(store, logger)
	process := onboarding.NewProcess(templates, engine, dir, logger)

	_, err := process.EnsureTemplate(t.Context())
	require.NoError(t, err)

	return &webFixture{
		app:   NewApp(NewAPIHandlers(templates, engine, process)),
		store: store,
	}
}

type problemResponse struct {
	Type   string `json:"type"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

func doJSON(t *testing.T, app *fiber.App, method, target, actorID string, payload any) *http.Response {
	t.Helper()

	var body io.Reader

	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)

		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")

	if actorID != "" {
		req.Header.Set(ActorHeader, actorID)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := resp.Body.Close(); err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	})

	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var out T

	err := json.NewDecoder(resp.Body).Decode(&out)
	require.NoError(t, err)

	return out
}

func TestAPI_RootEndpoint(t *testing.T) {
	f := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := f.app.Test(req)
	require.NoError(t, err)

	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Caseflow API", string(body))
}

func TestAPI_CreateTemplate(t *testing.T) {
	f := setupTestApp(t)

	resp := doJSON(t, f.app, http.MethodPost, "/templates", "", map[string]any{
		"code": "EXPENSE",
		"name": "Expense approval",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	template := decodeJSON[models.WorkflowTemplate](t, resp)
	assert.NotEmpty(t, template.ID)
	assert.Equal(t, "EXPENSE", template.Code)

	// A duplicate code conflicts.
	resp = doJSON(t, f.app, http.MethodPost, "/templates", "", map[string]any{
		"code": "EXPENSE",
		"name": "Expense approval again",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	problem := decodeJSON[problemResponse](t, resp)
	assert.Equal(t, "conflict", problem.Type)
	assert.Equal(t, http.StatusConflict, problem.Status)
}

func TestAPI_CreateTemplate_Validation(t *testing.T) {
	f := setupTestApp(t)

	resp := doJSON(t, f.app, http.MethodPost, "/templates", "", map[string]any{
		"code": "lowercase",
		"name": "Bad code",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	problem := decodeJSON[problemResponse](t, resp)
	assert.Equal(t, "validation_error", problem.Type)
}

func TestAPI_GetInstance_NotFound(t *testing.T) {
	f := setupTestApp(t)

	resp := doJSON(t, f.app, http.MethodGet, "/instances/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	problem := decodeJSON[problemResponse](t, resp)
	assert.Equal(t, "not_found", problem.Type)
	assert.Equal(t, http.StatusNotFound, problem.Status)
}

func TestAPI_CreateInstance_RequiresActor(t *testing.T) {
	f := setupTestApp(t)

	resp := doJSON(t, f.app, http.MethodPost, "/instances", "", map[string]any{
		"template_id": "any",
		"title":       "No actor",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	problem := decodeJSON[problemResponse](t, resp)
	assert.Contains(t, problem.Detail, ActorHeader)
}

func TestAPI_InstanceLifecycle(t *testing.T) {
	f := setupTestApp(t)

	resp := doJSON(t, f.app, http.MethodPost, "/templates", "", map[string]any{
		"code": "PROC",
		"name": "Simple process",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	template := decodeJSON[models.WorkflowTemplate](t, resp)

	resp = doJSON(t, f.app, http.MethodPost, "/templates/"+template.ID+"/steps", "", map[string]any{
		"step_number": 1,
		"name":        "Fill in the form",
		"step_type":   "form",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, f.app, http.MethodPost, "/instances", "hr-1", map[string]any{
		"template_id": template.ID,
		"title":       "First case",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	detail := decodeJSON[models.InstanceDetail](t, resp)
	require.NotNil(t, detail.Instance)
	assert.Equal(t, "hr-1", detail.Instance.InitiatedBy)

	// Completing a step that is not current is a validation error.
	resp = doJSON(t, f.app, http.MethodPost, "/instances/"+detail.Instance.ID+"/steps/7/complete", "hr-1", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, f.app, http.MethodPost, "/instances/"+detail.Instance.ID+"/steps/1/complete", "hr-1", map[string]any{
		"output_data": map[string]any{"done": true},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeJSON[workflow.CompleteStepResult](t, resp)
	assert.Equal(t, workflow.OutcomeCompleted, result.Outcome)
}

func TestAPI_RespondToApproval_WrongActor(t *testing.T) {
	f := setupTestApp(t)

	resp := doJSON(t, f.app, http.MethodPost, "/templates", "", map[string]any{
		"code": "SIGNOFF",
		"name": "Signoff process",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	template := decodeJSON[models.WorkflowTemplate](t, resp)

	resp = doJSON(t, f.app, http.MethodPost, "/templates/"+template.ID+"/steps", "", map[string]any{
		"step_number": 1,
		"name":        "Manager signoff",
		"step_type":   "approval",
		"config":      map[string]any{"approvers": []string{"alice"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, f.app, http.MethodPost, "/instances", "hr-1", map[string]any{
		"template_id": template.ID,
		"title":       "Needs signoff",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	detail := decodeJSON[models.InstanceDetail](t, resp)

	approvals, err := f.store.Approvals().ListByInstance(t.Context(), detail.Instance.ID)
	require.NoError(t, err)
	require.Len(t, approvals, 1)

	resp = doJSON(t, f.app, http.MethodPost, "/approvals/"+approvals[0].ID+"/respond", "mallory", map[string]any{
		"decision": "approved",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	problem := decodeJSON[problemResponse](t, resp)
	assert.Equal(t, "forbidden", problem.Type)
}

func TestAPI_StartOnboarding(t *testing.T) {
	f := setupTestApp(t)

	resp := doJSON(t, f.app, http.MethodPost, "/onboarding", "hr-1", map[string]any{
		"form_data": map[string]any{
			"full_name": "Ada Lovelace",
			"email":     "ada@example.com",
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	detail := decodeJSON[models.InstanceDetail](t, resp)
	require.NotNil(t, detail.Instance)
	assert.Equal(t, "Onboarding: Ada Lovelace", detail.Instance.Title)
	assert.Equal(t, 1, detail.Instance.CurrentStepNumber)

	// The list endpoint sees the new case.
	resp = doJSON(t, f.app, http.MethodGet, "/instances/?initiated_by=hr-1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	list := decodeJSON[struct {
		Instances  []*models.WorkflowInstance `json:"instances"`
		TotalCount int64                      `json:"total_count"`
	}](t, resp)
	assert.Equal(t, int64(1), list.TotalCount)
}

func TestAPI_StartOnboarding_MissingEmail(t *testing.T) {
	f := setupTestApp(t)

	resp := doJSON(t, f.app, http.MethodPost, "/onboarding", "hr-1", map[string]any{
		"form_data": map[string]any{"full_name": "Ada Lovelace"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
