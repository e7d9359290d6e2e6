package web

import (
	"net/http"
	"testing"

	"github.com/caseflow-io/caseflow/pkg/models"
	"github.com/stretchr/testify/require"
)

func TestDebugLifecycle(t *testing.T) {
	f := setupTestApp(t)

	countSteps := func(label, id string) {
		tmpl, err := f.store.Templates().GetByID(t.Context(), id)
		require.NoError(t, err)
		t.Logf("%s: steps=%d", label, len(tmpl.Steps))
	}

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
	countSteps("after createStep", template.ID)

	resp = doJSON(t, f.app, http.MethodPost, "/instances", "hr-1", map[string]any{
		"template_id": template.ID,
		"title":       "First case",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	detail := decodeJSON[models.InstanceDetail](t, resp)
	countSteps("after createInstance", template.ID)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	engine := workflow.NewEngine(f.store, automation.NewRegistry(logger), notify.NewLogNotifier(logger), nil, lock.NewLocalLocker(), logger)
	_, err := engine.CompleteStep(t.Context(), detail.Instance.ID, 7, map[string]any{}, "hr-1")
	t.Logf("direct complete step7 err=%v", err)
	countSteps("after direct complete step7", template.ID)

	resp = doJSON(t, f.app, http.MethodPost, "/instances/"+detail.Instance.ID+"/steps/7/complete", "hr-1", map[string]any{})
	t.Logf("complete step7 status=%d", resp.StatusCode)
	countSteps("after complete step7", template.ID)

	resp = doJSON(t, f.app, http.MethodPost, "/instances/"+detail.Instance.ID+"/steps/1/complete", "hr-1", map[string]any{
		"output_data": map[string]any{"done": true},
	})
	t.Logf("complete step1 status=%d", resp.StatusCode)
	countSteps("after complete step1", template.ID)
}
