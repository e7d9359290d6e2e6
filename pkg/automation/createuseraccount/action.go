// Package createuseraccount provisions a user account from instance form
// data during automation steps.
package createuseraccount

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/caseflow-io/caseflow/pkg/automation"
	"github.com/caseflow-io/caseflow/pkg/directory"
)

var ErrMissingEmail = errors.New("instance form data has no email")

type Action struct {
	users      directory.Users
	emailField string
}

func NewAction(users directory.Users, emailField string) *Action {
	if emailField == "" {
		emailField = "email"
	}

	return &Action{users: users, emailField: emailField}
}

// Execute creates a user for the email found in the instance form data. When
// the email is already registered the action reports the existing user and
// succeeds, so retried automation steps stay idempotent.
func (a *Action) Execute(ctx context.Context, actx automation.Context, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action", "create_user_account")

	email, _ := actx.Instance.FormData[a.emailField].(string)
	if email == "" {
		return nil, ErrMissingEmail
	}

	existing, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user by email: %w", err)
	}

	if existing != nil {
		logger.InfoContext(ctx, "user already exists, skipping creation", "email", email, "user_id", existing.ID)

		return map[string]any{
			"created": false,
			"user_id": existing.ID,
			"email":   email,
		}, nil
	}

	displayName, _ := actx.Instance.FormData["full_name"].(string)
	if displayName == "" {
		displayName = email
	}

	user := &directory.User{
		ID:          uuid.New().String(),
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	}

	err = a.users.Create(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	logger.InfoContext(ctx, "user account created", "email", email, "user_id", user.ID)

	return map[string]any{
		"created": true,
		"user_id": user.ID,
		"email":   email,
	}, nil
}
