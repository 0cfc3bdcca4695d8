package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gestia/gestia/pkg/eventbus"
	"github.com/gestia/gestia/pkg/events"
	"github.com/gestia/gestia/pkg/models"
	"github.com/gestia/gestia/pkg/persistence"
	"github.com/gestia/gestia/pkg/templates"
)

// Template exposes template management to transport layers.
type Template struct {
	store       *templates.Store
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

// NewTemplate creates a template service.
func NewTemplate(store *templates.Store, p persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Template {
	return &Template{
		store:       store,
		persistence: p,
		publisher:   publisher,
		logger:      logger.With("module", "template_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Template) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := s.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Get returns a template by id.
func (s *Template) Get(ctx context.Context, id string) (*models.Template, error) {
	return s.store.Get(ctx, id)
}

// GetByCode returns a template by organization and code.
func (s *Template) GetByCode(ctx context.Context, organizationID, code string) (*models.Template, error) {
	return s.store.GetByCode(ctx, organizationID, code)
}

// List returns all live templates of an organization.
func (s *Template) List(ctx context.Context, organizationID string) ([]*models.Template, error) {
	return s.store.List(ctx, organizationID)
}

// Create validates and persists a new template.
func (s *Template) Create(ctx context.Context, template *models.Template, actor string) (*models.Template, error) {
	if template == nil {
		return nil, ErrTemplateNil
	}

	if actor == "" {
		return nil, ErrEmptyActor
	}

	return s.store.Create(ctx, template, actor)
}

// Update persists changes to a template and announces the new version so
// workers drop the retired schema.
func (s *Template) Update(ctx context.Context, id string, template *models.Template, actor string) (*models.Template, error) {
	if template == nil {
		return nil, ErrTemplateNil
	}

	if actor == "" {
		return nil, ErrEmptyActor
	}

	updated, err := s.store.Update(ctx, id, template, actor)
	if err != nil {
		return nil, err
	}

	s.announceUpdate(updated, actor)

	return updated, nil
}

// Clone duplicates a template under a fresh code.
func (s *Template) Clone(ctx context.Context, id, actor string) (*models.Template, error) {
	if actor == "" {
		return nil, ErrEmptyActor
	}

	return s.store.Clone(ctx, id, actor)
}

// Delete soft-deletes a template.
func (s *Template) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

func (s *Template) announceUpdate(template *models.Template, actor string) {
	if s.publisher == nil {
		return
	}

	event := events.TemplateUpdated{
		BaseEvent: events.BaseEvent{
			ID:             uuid.New().String(),
			Type:           events.TemplateUpdatedEvent,
			Timestamp:      time.Now().UTC(),
			OrganizationID: template.OrganizationID,
		},
		TemplateID: template.ID,
		Code:       template.Code,
		Version:    template.Audit.Version,
		Actor:      actor,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.publisher.Publish(ctx, template.ID, event); err != nil {
			s.logger.Error("Failed to publish template update",
				"template_id", template.ID, "error", err)
		}
	}()
}
