package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/gestia/gestia/pkg/models"
	"github.com/gestia/gestia/pkg/persistence"
)

// TemplateRepository stores template documents as JSONB rows.
type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTemplateRepository creates a PostgreSQL template repository.
func NewTemplateRepository(db *sql.DB, logger *slog.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger.With("module", "postgresql")}
}

// GetByID returns the template with the given id. Soft-deleted templates
// are treated as absent.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.Template, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT document FROM templates WHERE id = $1 AND deleted_at IS NULL", id)

	return scanTemplate(row)
}

// GetByCode returns the template with the given code within an organization.
func (r *TemplateRepository) GetByCode(ctx context.Context, organizationID, code string) (*models.Template, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT document FROM templates WHERE organization_id = $1 AND code = $2 AND deleted_at IS NULL",
		organizationID, code)

	return scanTemplate(row)
}

// GetAll returns every non-deleted template of an organization.
func (r *TemplateRepository) GetAll(ctx context.Context, organizationID string) ([]*models.Template, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT document FROM templates WHERE organization_id = $1 AND deleted_at IS NULL ORDER BY code",
		organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	templates := make([]*models.Template, 0)

	for rows.Next() {
		var document []byte

		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("failed to scan template row: %w", err)
		}

		var template models.Template
		if err := json.Unmarshal(document, &template); err != nil {
			return nil, fmt.Errorf("failed to unmarshal template document: %w", err)
		}

		templates = append(templates, &template)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate template rows: %w", err)
	}

	return templates, nil
}

// Save upserts a template document.
func (r *TemplateRepository) Save(ctx context.Context, template *models.Template) error {
	document, err := json.Marshal(template)
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO templates (id, organization_id, code, active, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			organization_id = EXCLUDED.organization_id,
			code = EXCLUDED.code,
			active = EXCLUDED.active,
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at`,
		template.ID, template.OrganizationID, template.Code, template.Active,
		document, template.CreatedAt, template.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewTemplateError("save", template.ID, persistence.ErrDuplicateCode)
		}

		return fmt.Errorf("failed to save template: %w", err)
	}

	return nil
}

// SoftDelete marks a template as deleted without removing the row. Deleting
// an already-deleted or missing template is a no-op.
func (r *TemplateRepository) SoftDelete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE templates SET
			deleted_at = NOW(),
			document = jsonb_set(document, '{deleted_at}', to_jsonb(NOW()), true),
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to soft delete template: %w", err)
	}

	return nil
}

func scanTemplate(row *sql.Row) (*models.Template, error) {
	var document []byte

	if err := row.Scan(&document); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	var template models.Template
	if err := json.Unmarshal(document, &template); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template document: %w", err)
	}

	return &template, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	return false
}
