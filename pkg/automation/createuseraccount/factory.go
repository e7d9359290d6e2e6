package createuseraccount

import (
	"context"

	"github.com/caseflow-io/caseflow/pkg/automation"
	"github.com/caseflow-io/caseflow/pkg/directory"
)

// ActionFactory builds create_user_account actions bound to a user directory.
type ActionFactory struct {
	users directory.Users
}

func NewActionFactory(users directory.Users) *ActionFactory {
	return &ActionFactory{users: users}
}

func (*ActionFactory) ID() string {
	return "create_user_account"
}

func (*ActionFactory) Name() string {
	return "Create User Account"
}

func (*ActionFactory) Description() string {
	return "Creates a user account from the instance form data. Skips creation when the email is already registered."
}

func (f *ActionFactory) Create(_ context.Context, config map[string]any) (automation.Action, error) {
	emailField, _ := config["email_field"].(string)

	return NewAction(f.users, emailField), nil
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"email_field": map[string]any{
				"type":        "string",
				"description": "Form data key holding the new account's email",
				"default":     "email",
			},
		},
	}
}
