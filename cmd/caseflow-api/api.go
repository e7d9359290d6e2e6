package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/caseflow-io/caseflow/pkg/automation"
	"github.com/caseflow-io/caseflow/pkg/automation/createuseraccount"
	"github.com/caseflow-io/caseflow/pkg/automation/logaction"
	"github.com/caseflow-io/caseflow/pkg/directory"
	directorymemory "github.com/caseflow-io/caseflow/pkg/directory/memory"
	"github.com/caseflow-io/caseflow/pkg/eventbus"
	"github.com/caseflow-io/caseflow/pkg/lock"
	"github.com/caseflow-io/caseflow/pkg/notify"
	"github.com/caseflow-io/caseflow/pkg/onboarding"
	"github.com/caseflow-io/caseflow/pkg/persistence"
	"github.com/caseflow-io/caseflow/pkg/web"
	"github.com/caseflow-io/caseflow/pkg/workflow"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	locker      lock.Locker
	directory   directory.Directory
	process     *onboarding.Process
	handlers    *web.APIHandlers
}

func NewAPI(
	logger *slog.Logger,
	p persistence.Persistence,
	eventBus eventbus.EventBus,
	locker lock.Locker,
) *API {
	// The engine only needs narrow directory interfaces; the in-memory
	// implementation stands in until a real HR system is wired.
	dir := directorymemory.NewDirectory()

	actions := automation.NewRegistry(logger)
	actions.Register(createuseraccount.NewActionFactory(dir.Users()))
	actions.Register(logaction.NewActionFactory())

	templates := workflow.NewTemplates(p, logger)
	engine := workflow.NewEngine(p, actions, notify.NewLogNotifier(logger), eventBus, locker, logger)
	process := onboarding.NewProcess(templates, engine, dir, logger)

	return &API{
		logger:      logger,
		persistence: p,
		eventBus:    eventBus,
		locker:      locker,
		directory:   dir,
		process:     process,
		handlers:    web.NewAPIHandlers(templates, engine, process),
	}
}

// Bootstrap registers the built-in onboarding template.
func (a *API) Bootstrap(ctx context.Context) error {
	_, err := a.process.EnsureTemplate(ctx)

	return err
}

func (a *API) Start(port int) error {
	app := web.NewApp(a.handlers)

	return app.Listen(":" + strconv.Itoa(port))
}
