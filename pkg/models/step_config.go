package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Typed views over the opaque step Config payloads. The engine core never
// assumes the shape of Config; each step-type handler decodes the sub-shape
// it owns through these helpers and surfaces a validation failure instead of
// panicking on a missing key.

// ApprovalConfig is the approval-step sub-shape of WorkflowStep.Config.
type ApprovalConfig struct {
	Approvers    []string `json:"approvers"`
	ApprovalType string   `json:"approval_type,omitempty"` // advisory; quorum is uniformly unanimous
}

// AutomationConfig is the automation-step sub-shape of WorkflowStep.Config.
type AutomationConfig struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

// NotificationConfig is the notification-step sub-shape of WorkflowStep.Config.
type NotificationConfig struct {
	Template   string   `json:"template"`
	Recipients []string `json:"recipients,omitempty"`
}

// FormField is one entry of a form-step field list.
type FormField struct {
	Name     string `json:"name"`
	Label    string `json:"label,omitempty"`
	Type     string `json:"type,omitempty"`
	Required bool   `json:"required,omitempty"`
}

// FormConfig is the form-step sub-shape of WorkflowStep.Config.
type FormConfig struct {
	Fields []FormField `json:"fields,omitempty"`
}

var approvalConfigSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"approvers": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"approval_type": map[string]any{"type": "string"},
	},
}

var automationConfigSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"action": map[string]any{"type": "string", "minLength": 1},
		"params": map[string]any{"type": "object"},
	},
	"required": []string{"action"},
}

var notificationConfigSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"template": map[string]any{"type": "string", "minLength": 1},
		"recipients": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required": []string{"template"},
}

// DecodeApprovalConfig validates and decodes an approval step's config.
func DecodeApprovalConfig(config map[string]any) (*ApprovalConfig, error) {
	out := &ApprovalConfig{}
	if err := decodeStepConfig(config, approvalConfigSchema, out); err != nil {
		return nil, err
	}

	return out, nil
}

// DecodeAutomationConfig validates and decodes an automation step's config.
func DecodeAutomationConfig(config map[string]any) (*AutomationConfig, error) {
	out := &AutomationConfig{}
	if err := decodeStepConfig(config, automationConfigSchema, out); err != nil {
		return nil, err
	}

	return out, nil
}

// DecodeNotificationConfig validates and decodes a notification step's config.
func DecodeNotificationConfig(config map[string]any) (*NotificationConfig, error) {
	out := &NotificationConfig{}
	if err := decodeStepConfig(config, notificationConfigSchema, out); err != nil {
		return nil, err
	}

	return out, nil
}

func decodeStepConfig(config map[string]any, schema map[string]any, out any) error {
	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("failed to validate step config: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("invalid step config: %s", strings.Join(details, "; "))
	}

	raw, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal step config: %w", err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode step config: %w", err)
	}

	return nil
}
