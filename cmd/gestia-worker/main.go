// Package main provides the Gestia dispatch worker. It consumes lifecycle
// events from the bus, executes the automatic actions configured on template
// states and periodically scans for overdue records.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/gestia/gestia/pkg/cmd"
	"github.com/gestia/gestia/pkg/dispatch"
	"github.com/gestia/gestia/pkg/lifecycle"
	"github.com/gestia/gestia/pkg/log"
	"github.com/gestia/gestia/pkg/otelhelper"
	"github.com/gestia/gestia/pkg/templates"
)

func main() {
	command := &cli.Command{
		Name:                  "gestia-worker",
		EnableShellCompletion: true,
		Usage:                 "Start a worker that executes automatic state actions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "overdue-cron",
				Usage:   "Cron expression for the overdue record scan (empty disables it)",
				Value:   "0 * * * *",
				Sources: cli.EnvVars("OVERDUE_CRON"),
			},
			&cli.StringFlag{
				Name:    "organizations",
				Usage:   "Comma-separated organization ids covered by the overdue scan",
				Sources: cli.EnvVars("ORGANIZATIONS"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry tracing for action execution",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("gestia-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Gestia Worker")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			registry := cmd.NewRegistry(logger)

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "gestia-worker", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			templateStore := templates.NewStore(persistence.TemplateRepository(), logger)

			worker := dispatch.NewWorker(
				eventBus,
				templateStore,
				persistence.RecordRepository(),
				registry,
				logger,
			)

			if command.Bool("tracing") {
				tracer, err := otelhelper.NewTracer(ctx, "gestia-worker")
				if err != nil {
					return err
				}

				worker = worker.WithTracer(tracer)
			}

			if cronExpr := command.String("overdue-cron"); cronExpr != "" {
				scanner := lifecycle.NewOverdueScanner(
					persistence.RecordRepository(),
					eventBus,
					logger,
					splitOrganizations(command.String("organizations")),
				)

				if err := scanner.Start(ctx, cronExpr); err != nil {
					return err
				}
			}

			if err := worker.Start(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to start dispatch worker", "error", err)

				return err
			}

			logger.InfoContext(ctx, "Gestia Worker started")

			<-ctx.Done()

			logger.Info("Shutting down Gestia Worker")

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func splitOrganizations(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")

	organizations := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			organizations = append(organizations, trimmed)
		}
	}

	return organizations
}
