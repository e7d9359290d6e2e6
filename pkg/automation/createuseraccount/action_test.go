package createuseraccount

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseflow-io/caseflow/pkg/automation"
	"github.com/caseflow-io/caseflow/pkg/directory"
	directorymemory "github.com/caseflow-io/caseflow/pkg/directory/memory"
	"github.com/caseflow-io/caseflow/pkg/models"
)

func testContext(formData map[string]any) automation.Context {
	return automation.Context{
		Instance: &models.WorkflowInstance{
			ID:       "inst-1",
			FormData: formData,
		},
		Step: &models.WorkflowStep{StepNumber: 2},
	}
}

func testActionLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestAction_Execute_CreatesUser(t *testing.T) {
	dir := directorymemory.NewDirectory()
	action := NewAction(dir.Users(), "")

	output, err := action.Execute(t.Context(), testContext(map[string]any{
		"email":     "ada@example.com",
		"full_name": "Ada Lovelace",
	}), testActionLogger())
	require.NoError(t, err)

	assert.Equal(t, true, output["created"])
	assert.Equal(t, "ada@example.com", output["email"])

	user, err := dir.Users().GetByEmail(t.Context(), "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "Ada Lovelace", user.DisplayName)
	assert.Equal(t, user.ID, output["user_id"])
}

func TestAction_Execute_Idempotent(t *testing.T) {
	dir := directorymemory.NewDirectory()

	err := dir.Users().Create(t.Context(), &directory.User{
		ID:    "u-1",
		Email: "ada@example.com",
	})
	require.NoError(t, err)

	action := NewAction(dir.Users(), "")

	output, err := action.Execute(t.Context(), testContext(map[string]any{
		"email": "ada@example.com",
	}), testActionLogger())
	require.NoError(t, err)

	assert.Equal(t, false, output["created"])
	assert.Equal(t, "u-1", output["user_id"])
}

func TestAction_Execute_MissingEmail(t *testing.T) {
	dir := directorymemory.NewDirectory()
	action := NewAction(dir.Users(), "")

	_, err := action.Execute(t.Context(), testContext(map[string]any{}), testActionLogger())
	assert.ErrorIs(t, err, ErrMissingEmail)
}

func TestAction_Execute_CustomEmailField(t *testing.T) {
	dir := directorymemory.NewDirectory()
	action := NewAction(dir.Users(), "work_email")

	output, err := action.Execute(t.Context(), testContext(map[string]any{
		"work_email": "ada@example.com",
	}), testActionLogger())
	require.NoError(t, err)

	assert.Equal(t, true, output["created"])

	// The display name falls back to the email when no full_name is given.
	user, err := dir.Users().GetByEmail(t.Context(), "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "ada@example.com", user.DisplayName)
}

func TestActionFactory(t *testing.T) {
	dir := directorymemory.NewDirectory()
	factory := NewActionFactory(dir.Users())

	assert.Equal(t, "create_user_account", factory.ID())
	assert.NotEmpty(t, factory.Name())
	assert.NotEmpty(t, factory.Description())
	assert.NotNil(t, factory.Schema())

	action, err := factory.Create(t.Context(), map[string]any{"email_field": "work_email"})
	require.NoError(t, err)
	assert.NotNil(t, action)
}
