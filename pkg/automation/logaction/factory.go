package logaction

import (
	"context"

	"github.com/caseflow-io/caseflow/pkg/automation"
)

type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (*ActionFactory) ID() string {
	return "log"
}

func (*ActionFactory) Name() string {
	return "Log"
}

func (*ActionFactory) Description() string {
	return "Logs a message at a specified level."
}

func (f *ActionFactory) Create(_ context.Context, config map[string]any) (automation.Action, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewAction(config), nil
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "The message to log",
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level for the message",
				"default":     "info",
				"enum":        []string{"debug", "info", "warn", "warning", "error"},
			},
		},
		"required": []string{"message"},
	}
}
