// Package main provides the Gestia API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/gestia/gestia/pkg/directory"
	"github.com/gestia/gestia/pkg/eventbus"
	"github.com/gestia/gestia/pkg/fields"
	"github.com/gestia/gestia/pkg/lifecycle"
	"github.com/gestia/gestia/pkg/persistence"
	"github.com/gestia/gestia/pkg/relations"
	"github.com/gestia/gestia/pkg/sequence"
	"github.com/gestia/gestia/pkg/services"
	"github.com/gestia/gestia/pkg/templates"
	"github.com/gestia/gestia/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	counters    persistence.CounterRepository
	directory   directory.Directory
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	p persistence.Persistence,
	counters persistence.CounterRepository,
	roleDirectory directory.Directory,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		persistence: p,
		counters:    counters,
		directory:   roleDirectory,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func directoryFromFlag(path string) (directory.Directory, error) {
	return directory.LoadFile(path)
}

func (a *API) App() *fiber.App {
	templateStore := templates.NewStore(a.persistence.TemplateRepository(), a.logger)

	engine := lifecycle.NewEngine(
		templateStore,
		a.persistence.RecordRepository(),
		sequence.NewGenerator(a.counters, a.logger),
		fields.NewValidator(relations.NewStaticResolver()),
		a.directory,
		a.eventBus,
		a.logger,
	)

	templateService := services.NewTemplate(templateStore, a.persistence, a.eventBus, a.logger)
	recordService := services.NewRecord(engine, a.persistence.RecordRepository(), a.logger)

	handlers := web.NewAPIHandlers(templateService, recordService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Gestia API")
	})

	t := app.Group("/templates")
	t.Get("/", handlers.GetTemplates)
	t.Post("/", handlers.CreateTemplate)
	t.Get("/code/:code", handlers.GetTemplateByCode)
	t.Get("/:id", handlers.GetTemplate)
	t.Patch("/:id", handlers.UpdateTemplate)
	t.Delete("/:id", handlers.DeleteTemplate)
	t.Post("/:id/clone", handlers.CloneTemplate)
	t.Post("/:id/next-code", handlers.NextSequenceCode)

	r := app.Group("/records")
	r.Get("/", handlers.GetRecords)
	r.Post("/", handlers.CreateRecord)
	r.Get("/:id", handlers.GetRecord)
	r.Delete("/:id", handlers.DeleteRecord)
	r.Post("/:id/transition", handlers.ChangeRecordState)
	r.Patch("/:id/data", handlers.UpdateRecordData)
	r.Post("/:id/validate", handlers.ValidateRecordCompletion)
	r.Post("/:id/clone", handlers.CloneRecord)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
