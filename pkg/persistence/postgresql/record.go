package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gestia/gestia/pkg/models"
	"github.com/gestia/gestia/pkg/persistence"
)

// RecordRepository stores record documents as JSONB rows. The optimistic
// version check runs inside the UPDATE statement itself, so concurrent
// writers race on the database rather than in application code.
type RecordRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRecordRepository creates a PostgreSQL record repository.
func NewRecordRepository(db *sql.DB, logger *slog.Logger) *RecordRepository {
	return &RecordRepository{db: db, logger: logger.With("module", "postgresql")}
}

// GetByID loads a record; soft-deleted rows are treated as absent.
func (r *RecordRepository) GetByID(ctx context.Context, id string) (*models.Record, error) {
	var document []byte

	err := r.db.QueryRowContext(ctx,
		"SELECT document FROM records WHERE id = $1 AND deleted_at IS NULL", id).Scan(&document)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan record: %w", err)
	}

	var record models.Record
	if err := json.Unmarshal(document, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record document: %w", err)
	}

	return &record, nil
}

// Create inserts a brand-new record. A code collision within an organization
// is reported as ErrDuplicateCode.
func (r *RecordRepository) Create(ctx context.Context, record *models.Record) error {
	document, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO records (id, organization_id, template_id, code, state_id, version, locked, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ID, record.OrganizationID, record.TemplateID, record.Code,
		record.CurrentState.StateID, record.Version, record.Locked,
		document, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewRecordError("Create", record.ID, persistence.ErrDuplicateCode)
		}

		return fmt.Errorf("failed to create record: %w", err)
	}

	return nil
}

// Save replaces the record document only if the stored version still equals
// expectedVersion; otherwise the row is untouched and the caller must
// reload and retry.
func (r *RecordRepository) Save(ctx context.Context, record *models.Record, expectedVersion int) error {
	document, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE records SET
			code = $2,
			state_id = $3,
			version = $4,
			locked = $5,
			document = $6,
			updated_at = $7
		WHERE id = $1 AND version = $8 AND deleted_at IS NULL`,
		record.ID, record.Code, record.CurrentState.StateID, record.Version,
		record.Locked, document, record.UpdatedAt, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		existing, err := r.GetByID(ctx, record.ID)
		if err != nil {
			return err
		}

		if existing == nil {
			return persistence.NewRecordError("Save", record.ID, persistence.ErrRecordNotFound)
		}

		return persistence.NewRecordError("Save", record.ID, persistence.ErrConcurrencyConflict)
	}

	return nil
}

// SoftDelete marks a record deleted without removing the row. Deleting an
// already-deleted or missing record is a no-op.
func (r *RecordRepository) SoftDelete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE records SET
			deleted_at = NOW(),
			document = jsonb_set(document, '{deleted_at}', to_jsonb(NOW()), true),
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to soft delete record: %w", err)
	}

	return nil
}

// List returns filtered, sorted, paginated records. Sort columns come from
// a fixed allowlist; anything else is rejected before touching SQL.
func (r *RecordRepository) List(ctx context.Context, opts persistence.ListRecordsOptions) (*persistence.RecordListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.SortBy == "" {
		opts.SortBy = "created_at"
	}

	if opts.SortOrder == "" {
		opts.SortOrder = "desc"
	}

	allowedSorts := map[string]bool{"created_at": true, "updated_at": true, "code": true}
	if !allowedSorts[opts.SortBy] {
		return nil, fmt.Errorf("%w: %s", persistence.ErrInvalidSortField, opts.SortBy)
	}

	direction := "ASC"
	if strings.EqualFold(opts.SortOrder, "desc") {
		direction = "DESC"
	}

	conditions := []string{"deleted_at IS NULL"}
	args := []any{}

	addCondition := func(column, value string) {
		if value == "" {
			return
		}

		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	addCondition("template_id", opts.TemplateID)
	addCondition("organization_id", opts.OrganizationID)
	addCondition("state_id", opts.StateID)
	addCondition("document->>'responsible'", opts.Responsible)

	where := strings.Join(conditions, " AND ")

	var totalCount int64

	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM records WHERE "+where, args...).Scan(&totalCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT document FROM records WHERE %s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		where, opts.SortBy, direction, len(args)+1, len(args)+2)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := make([]*models.Record, 0, opts.Limit)

	for rows.Next() {
		var document []byte

		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}

		var record models.Record
		if err := json.Unmarshal(document, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record document: %w", err)
		}

		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate record rows: %w", err)
	}

	return &persistence.RecordListResult{
		Records:     records,
		TotalCount:  totalCount,
		HasNextPage: int64(opts.Offset+len(records)) < totalCount,
	}, nil
}
