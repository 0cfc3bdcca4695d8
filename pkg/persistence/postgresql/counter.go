package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gestia/gestia/pkg/models"
)

// CounterRepository stores sequence counters. The increment is a single
// upsert statement, so two concurrent callers can never observe the same
// number.
type CounterRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewCounterRepository creates a PostgreSQL counter repository.
func NewCounterRepository(db *sql.DB, logger *slog.Logger) *CounterRepository {
	return &CounterRepository{db: db, logger: logger.With("module", "postgresql")}
}

// IncrementAndGet atomically increments the counter for a scope and returns
// the new value. A successful issue clears any recorded failure streak.
func (r *CounterRepository) IncrementAndGet(ctx context.Context, scope models.SequenceScope) (int64, error) {
	var number int64

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO sequence_counters (key, last_number, total_issued, last_issued, consecutive_errors, last_error)
		VALUES ($1, 1, 1, NOW(), 0, NULL)
		ON CONFLICT (key) DO UPDATE SET
			last_number = sequence_counters.last_number + 1,
			total_issued = sequence_counters.total_issued + 1,
			last_issued = NOW(),
			consecutive_errors = 0,
			last_error = NULL
		RETURNING last_number`, scope.Key()).Scan(&number)
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence counter: %w", err)
	}

	return number, nil
}

// Get returns the counter for a scope, or nil when none was ever issued.
func (r *CounterRepository) Get(ctx context.Context, scope models.SequenceScope) (*models.SequenceCounter, error) {
	var (
		counter     models.SequenceCounter
		lastIssued  sql.NullTime
		lastError   sql.NullString
		formatBytes []byte
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT last_number, total_issued, last_issued, consecutive_errors, last_error, format
		FROM sequence_counters WHERE key = $1`, scope.Key()).
		Scan(&counter.LastNumber, &counter.TotalIssued, &lastIssued, &counter.ErrorCount, &lastError, &formatBytes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to load sequence counter: %w", err)
	}

	counter.Key = scope.Key()
	counter.Scope = scope

	if lastIssued.Valid {
		issuedAt := lastIssued.Time
		counter.LastIssued = &issuedAt
	}

	if lastError.Valid {
		counter.LastError = lastError.String
	}

	if len(formatBytes) > 0 {
		if err := json.Unmarshal(formatBytes, &counter.Format); err != nil {
			return nil, fmt.Errorf("failed to unmarshal counter format: %w", err)
		}
	}

	return &counter, nil
}

// SaveFormat stores the rendering format alongside the counter.
func (r *CounterRepository) SaveFormat(ctx context.Context, scope models.SequenceScope, format models.SequenceFormat) error {
	formatBytes, err := json.Marshal(format)
	if err != nil {
		return fmt.Errorf("failed to marshal counter format: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sequence_counters (key, format)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET format = EXCLUDED.format`,
		scope.Key(), formatBytes)
	if err != nil {
		return fmt.Errorf("failed to save counter format: %w", err)
	}

	return nil
}

// RecordFailure bumps the failure streak for a scope without consuming a
// number.
func (r *CounterRepository) RecordFailure(ctx context.Context, scope models.SequenceScope, cause error) error {
	message := ""
	if cause != nil {
		message = cause.Error()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sequence_counters (key, consecutive_errors, last_error)
		VALUES ($1, 1, $2)
		ON CONFLICT (key) DO UPDATE SET
			consecutive_errors = sequence_counters.consecutive_errors + 1,
			last_error = EXCLUDED.last_error`,
		scope.Key(), message)
	if err != nil {
		return fmt.Errorf("failed to record counter failure: %w", err)
	}

	return nil
}
