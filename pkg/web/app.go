package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

// NewApp assembles the fiber application and routes.
func NewApp(handlers *APIHandlers) *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Caseflow API")
	})

	t := app.Group("/templates")
	t.Get("/", handlers.ListTemplates)
	t.Post("/", handlers.CreateTemplate)
	t.Get("/:id", handlers.GetTemplate)
	t.Patch("/:id", handlers.UpdateTemplate)
	t.Delete("/:id", handlers.DeleteTemplate)
	t.Post("/:id/steps", handlers.CreateStep)
	t.Patch("/:id/steps/:stepId", handlers.UpdateStep)
	t.Delete("/:id/steps/:stepId", handlers.DeleteStep)

	i := app.Group("/instances")
	i.Get("/", handlers.ListInstances)
	i.Post("/", handlers.CreateInstance)
	i.Get("/:id", handlers.GetInstance)
	i.Patch("/:id", handlers.UpdateInstance)
	i.Post("/:id/cancel", handlers.CancelInstance)
	i.Post("/:id/steps/:stepNumber/complete", handlers.CompleteStep)
	i.Post("/:id/approvers", handlers.AssignApprover)
	i.Post("/:id/comments", handlers.AddComment)

	app.Post("/approvals/:id/respond", handlers.RespondToApproval)

	o := app.Group("/onboarding")
	o.Post("/", handlers.StartOnboarding)
	o.Post("/:id/employee-details", handlers.CompleteEmployeeDetails)
	o.Post("/:id/third-party-accounts", handlers.AddThirdPartyAccounts)
	o.Post("/:id/manager", handlers.AssignManagerApproval)

	return app
}
