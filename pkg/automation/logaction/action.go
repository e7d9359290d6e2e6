// Package logaction logs a configurable message during automation steps.
// Useful when wiring up a new template to see instance state flow through.
package logaction

import (
	"context"
	"log/slog"

	"github.com/caseflow-io/caseflow/pkg/automation"
)

type Action struct {
	message string
	level   string
}

func NewAction(config map[string]any) *Action {
	message, _ := config["message"].(string)
	level, _ := config["level"].(string)

	return &Action{message: message, level: level}
}

func (a *Action) Execute(ctx context.Context, actx automation.Context, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With(
		"action", "log",
		"instance_id", actx.Instance.ID,
		"step_number", actx.Step.StepNumber,
	)

	switch a.level {
	case "debug":
		logger.DebugContext(ctx, a.message)
	case "warn", "warning":
		logger.WarnContext(ctx, a.message)
	case "error":
		logger.ErrorContext(ctx, a.message)
	default:
		logger.InfoContext(ctx, a.message)
	}

	return map[string]any{"logged": true}, nil
}
