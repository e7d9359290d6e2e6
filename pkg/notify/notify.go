// Package notify delivers workflow notifications. Delivery is
// fire-and-forget: the engine logs failures and never blocks a transition
// on a notifier.
package notify

import (
	"context"
	"log/slog"
)

type Notification struct {
	Template   string         `json:"template"`
	Recipients []string       `json:"recipients"`
	InstanceID string         `json:"instance_id"`
	Data       map[string]any `json:"data,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// LogNotifier writes notifications to the structured log. It serves local
// development and doubles as the terminal delivery path when no external
// channel is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("module", "notify")}
}

func (n *LogNotifier) Notify(ctx context.Context, notification Notification) error {
	n.logger.InfoContext(ctx, "notification",
		"template", notification.Template,
		"recipients", notification.Recipients,
		"instance_id", notification.InstanceID,
	)

	return nil
}
