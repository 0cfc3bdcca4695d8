package file

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/gestia/gestia/pkg/models"
)

// TemplateRepository stores template documents as JSON files.
type TemplateRepository struct {
	dir string
	mu  sync.Mutex
}

// NewTemplateRepository creates a template repository under root/templates.
func NewTemplateRepository(root string) *TemplateRepository {
	return &TemplateRepository{dir: filepath.Join(root, "templates")}
}

// GetByID loads a template; soft-deleted documents are treated as absent.
func (r *TemplateRepository) GetByID(_ context.Context, id string) (*models.Template, error) {
	var template models.Template

	found, err := readDocument(r.dir, id, &template)
	if err != nil {
		return nil, err
	}

	if !found || template.DeletedAt != nil {
		return nil, nil
	}

	return &template, nil
}

// GetByCode scans the organization's templates for a matching code.
func (r *TemplateRepository) GetByCode(ctx context.Context, organizationID, code string) (*models.Template, error) {
	ids, err := listDocuments(r.dir)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		template, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if template != nil && template.OrganizationID == organizationID && template.Code == code {
			return template, nil
		}
	}

	return nil, nil
}

// GetAll returns every live template of an organization.
func (r *TemplateRepository) GetAll(ctx context.Context, organizationID string) ([]*models.Template, error) {
	ids, err := listDocuments(r.dir)
	if err != nil {
		return nil, err
	}

	templates := make([]*models.Template, 0, len(ids))

	for _, id := range ids {
		template, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if template != nil && template.OrganizationID == organizationID {
			templates = append(templates, template)
		}
	}

	return templates, nil
}

// Save writes the template document atomically.
func (r *TemplateRepository) Save(_ context.Context, template *models.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return writeDocument(r.dir, template.ID, template)
}

// SoftDelete marks a template deleted without removing the document.
func (r *TemplateRepository) SoftDelete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var template models.Template

	found, err := readDocument(r.dir, id, &template)
	if err != nil {
		return err
	}

	if !found {
		return nil
	}

	now := nowUTC()
	template.DeletedAt = &now

	return writeDocument(r.dir, id, &template)
}
