// Package postgresql provides PostgreSQL persistence for templates, records
// and sequence counters. Documents are stored as JSONB with the columns the
// engine filters on lifted out; the counter increment and the version check
// both happen inside single statements so they are atomic under concurrency.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/gestia/gestia/pkg/persistence"
	"github.com/gestia/gestia/pkg/persistence/sqlbase"

	_ "github.com/lib/pq" // postgres driver
)

// Persistence implements persistence.Persistence on PostgreSQL.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	templateRepo *TemplateRepository
	recordRepo   *RecordRepository
	counterRepo  *CounterRepository
}

// NewPersistence connects, migrates, and returns a PostgreSQL persistence.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())
	if err := migrationManager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:           database,
		logger:       logger,
		templateRepo: NewTemplateRepository(database, logger),
		recordRepo:   NewRecordRepository(database, logger),
		counterRepo:  NewCounterRepository(database, logger),
	}, nil
}

// TemplateRepository returns the template repository.
func (p *Persistence) TemplateRepository() persistence.TemplateRepository {
	return p.templateRepo
}

// RecordRepository returns the record repository.
func (p *Persistence) RecordRepository() persistence.RecordRepository {
	return p.recordRepo
}

// CounterRepository returns the counter repository.
func (p *Persistence) CounterRepository() persistence.CounterRepository {
	return p.counterRepo
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
