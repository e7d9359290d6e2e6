package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/caseflow-io/caseflow/pkg/channels/gochannel"
	"github.com/caseflow-io/caseflow/pkg/channels/kafka"
	"github.com/caseflow-io/caseflow/pkg/eventbus"
)

// NewEventBus builds the event bus for the configured provider. The
// gochannel provider keeps everything in-process; kafka fans events out to
// other services.
func NewEventBus(provider string, logger *slog.Logger) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, "caseflow")
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil

	case "", "gochannel":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create gochannel pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil

	default:
		return nil, fmt.Errorf("unsupported event bus provider %q", provider)
	}
}
