// Package automation defines the action contract for automation steps and a
// registry of action factories keyed by action name.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xeipuuv/gojsonschema"

	"github.com/caseflow-io/caseflow/pkg/models"
)

var ErrActionNotRegistered = errors.New("action not registered")
var ErrInvalidActionConfig = errors.New("invalid action config")

// Context carries the instance state an action executes against.
type Context struct {
	Instance *models.WorkflowInstance
	Step     *models.WorkflowStep
	Params   map[string]any
}

// Action performs one automation step. Actions must be safe to run more than
// once for the same instance: delivery is at-least-once.
type Action interface {
	Execute(ctx context.Context, actx Context, logger *slog.Logger) (map[string]any, error)
}

// ActionFactory describes and instantiates an action.
type ActionFactory interface {
	ID() string
	Name() string
	Description() string
	Schema() map[string]any
	Create(ctx context.Context, config map[string]any) (Action, error)
}

type Registry struct {
	logger    *slog.Logger
	factories map[string]ActionFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger.With("module", "automation"),
		factories: make(map[string]ActionFactory),
	}
}

func (r *Registry) Register(factory ActionFactory) {
	r.factories[factory.ID()] = factory
}

func (r *Registry) Available() []string {
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}

	return ids
}

// Create validates config against the factory's schema and instantiates the
// action.
func (r *Registry) Create(ctx context.Context, actionID string, config map[string]any) (Action, error) {
	factory, ok := r.factories[actionID]
	if !ok {
		return nil, fmt.Errorf("action %q: %w", actionID, ErrActionNotRegistered)
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(factory.Schema()),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to validate config for action %q: %w", actionID, err)
	}

	if !result.Valid() {
		return nil, fmt.Errorf("action %q: %w: %v", actionID, ErrInvalidActionConfig, result.Errors())
	}

	return factory.Create(ctx, config)
}
