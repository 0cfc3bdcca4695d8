// Package templates implements CRUD and invariant enforcement over template
// definitions. Every save re-normalizes the document: states and fields get
// a defined total order, exactly one state ends up flagged initial, and
// action configurations are checked against their type's schema.
package templates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/gestia/gestia/pkg/actions"
	"github.com/gestia/gestia/pkg/fields"
	"github.com/gestia/gestia/pkg/models"
	"github.com/gestia/gestia/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	// ErrDuplicateStateCode indicates two states share a code or id.
	ErrDuplicateStateCode = errors.New("duplicate state code")

	// ErrDuplicateFieldCode indicates two fields in one state share a code.
	ErrDuplicateFieldCode = errors.New("duplicate field code")

	// ErrUnknownFieldType indicates a field declares a type outside the closed set.
	ErrUnknownFieldType = errors.New("unknown field type")

	// ErrInvalidActionConfig indicates an action payload failed its schema.
	ErrInvalidActionConfig = errors.New("invalid action configuration")

	// ErrUnknownTransitionTarget indicates a transition points at a state
	// that does not exist in the template.
	ErrUnknownTransitionTarget = errors.New("unknown transition target")
)

// Store provides template CRUD over a repository with invariant enforcement.
type Store struct {
	repo     persistence.TemplateRepository
	cache    *Cache
	validate *validator.Validate
	logger   *slog.Logger
}

// NewStore creates a template store.
func NewStore(repo persistence.TemplateRepository, logger *slog.Logger) *Store {
	return &Store{
		repo:     repo,
		cache:    NewCache(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("module", "templates"),
	}
}

// Get returns a template by id, serving read-mostly traffic from the cache.
func (s *Store) Get(ctx context.Context, id string) (*models.Template, error) {
	if cached, ok := s.cache.Get(id); ok {
		return cached, nil
	}

	template, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if template == nil {
		return nil, persistence.NewTemplateError("Get", id, persistence.ErrTemplateNotFound)
	}

	s.cache.Put(template)

	return template, nil
}

// GetByCode returns a template by organization and code.
func (s *Store) GetByCode(ctx context.Context, organizationID, code string) (*models.Template, error) {
	template, err := s.repo.GetByCode(ctx, organizationID, code)
	if err != nil {
		return nil, err
	}

	if template == nil {
		return nil, persistence.NewTemplateError("GetByCode", code, persistence.ErrTemplateNotFound)
	}

	return template, nil
}

// List returns all live templates of an organization.
func (s *Store) List(ctx context.Context, organizationID string) ([]*models.Template, error) {
	return s.repo.GetAll(ctx, organizationID)
}

// Create validates, normalizes and persists a new template.
func (s *Store) Create(ctx context.Context, template *models.Template, actor string) (*models.Template, error) {
	if template.ID == "" {
		template.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	template.CreatedAt = now
	template.UpdatedAt = now
	template.Audit = models.AuditTrail{
		CreatedBy: actor,
		Version:   1,
		ChangeLog: []models.ChangeLogEntry{{At: now, Actor: actor, Summary: "created"}},
	}

	if err := s.normalize(template); err != nil {
		return nil, err
	}

	if existing, err := s.repo.GetByCode(ctx, template.OrganizationID, template.Code); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, persistence.NewTemplateError("Create", template.ID, persistence.ErrDuplicateCode)
	}

	if err := s.repo.Save(ctx, template); err != nil {
		return nil, persistence.NewTemplateError("Create", template.ID, err)
	}

	s.cache.Put(template)

	return template, nil
}

// Update re-validates and persists changes to an existing template, bumping
// the audit version and invalidating the cache so the next transition
// validation never authorizes against a retired schema.
func (s *Store) Update(ctx context.Context, id string, template *models.Template, actor string) (*models.Template, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		return nil, persistence.NewTemplateError("Update", id, persistence.ErrTemplateNotFound)
	}

	template.ID = id
	template.OrganizationID = existing.OrganizationID
	template.CreatedAt = existing.CreatedAt
	template.UpdatedAt = time.Now().UTC()
	template.Audit = existing.Audit
	template.Audit.Version++
	template.Audit.ChangeLog = append(template.Audit.ChangeLog, models.ChangeLogEntry{
		At:      template.UpdatedAt,
		Actor:   actor,
		Summary: "updated",
	})

	if err := s.normalize(template); err != nil {
		return nil, err
	}

	// Invalidate before the write becomes visible so a concurrent reader
	// cannot re-populate the cache with the retired document.
	s.cache.Invalidate(id)

	if err := s.repo.Save(ctx, template); err != nil {
		return nil, persistence.NewTemplateError("Update", id, err)
	}

	s.cache.Invalidate(id)

	return template, nil
}

// Clone duplicates a template under a new unique code with a reset audit
// trail. The source's change history never carries over.
func (s *Store) Clone(ctx context.Context, id, actor string) (*models.Template, error) {
	source, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	clone := *source
	clone.ID = uuid.New().String()
	clone.States = cloneStates(source.States)

	now := time.Now().UTC()
	clone.CreatedAt = now
	clone.UpdatedAt = now
	clone.DeletedAt = nil
	clone.Audit = models.AuditTrail{
		CreatedBy: actor,
		Version:   1,
		ChangeLog: []models.ChangeLogEntry{{At: now, Actor: actor, Summary: "cloned from " + source.Code}},
	}

	code, err := s.uniqueCloneCode(ctx, source.OrganizationID, source.Code)
	if err != nil {
		return nil, err
	}

	clone.Code = code

	if err := s.normalize(&clone); err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, &clone); err != nil {
		return nil, persistence.NewTemplateError("Clone", clone.ID, err)
	}

	return &clone, nil
}

// Delete soft-deletes a template; documents are never physically removed.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.cache.Invalidate(id)

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return persistence.NewTemplateError("Delete", id, err)
	}

	return nil
}

func (s *Store) uniqueCloneCode(ctx context.Context, organizationID, baseCode string) (string, error) {
	for attempt := 2; attempt < 100; attempt++ {
		candidate := fmt.Sprintf("%s-%d", baseCode, attempt)

		existing, err := s.repo.GetByCode(ctx, organizationID, candidate)
		if err != nil {
			return "", err
		}

		if existing == nil {
			return candidate, nil
		}
	}

	return "", persistence.ErrDuplicateCode
}

// normalize enforces the template invariants in place.
func (s *Store) normalize(template *models.Template) error {
	if err := s.validate.Struct(template); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	stateIDs := make(map[string]bool, len(template.States))
	stateCodes := make(map[string]bool, len(template.States))

	for i := range template.States {
		state := &template.States[i]

		if state.ID == "" {
			state.ID = uuid.New().String()
		}

		if stateIDs[state.ID] || stateCodes[state.Code] {
			return fmt.Errorf("%w: %s", ErrDuplicateStateCode, state.Code)
		}

		stateIDs[state.ID] = true
		stateCodes[state.Code] = true

		if err := s.normalizeState(state); err != nil {
			return err
		}
	}

	for i := range template.States {
		for _, transition := range template.States[i].Transitions {
			if !stateIDs[transition.TargetStateID] {
				return fmt.Errorf("%w: %s", ErrUnknownTransitionTarget, transition.TargetStateID)
			}
		}
	}

	// States are kept in a defined total order so reads never depend on
	// insertion order.
	sort.SliceStable(template.States, func(i, j int) bool {
		return template.States[i].Order < template.States[j].Order
	})

	ensureSingleInitial(template)

	return nil
}

func (s *Store) normalizeState(state *models.State) error {
	fieldCodes := make(map[string]bool, len(state.Fields))
	knownTypes := make(map[models.FieldType]bool)

	for _, fieldType := range models.KnownFieldTypes() {
		knownTypes[fieldType] = true
	}

	for i := range state.Fields {
		field := &state.Fields[i]

		if field.ID == "" {
			field.ID = uuid.New().String()
		}

		if fieldCodes[field.Code] {
			return fmt.Errorf("%w: %s in state %s", ErrDuplicateFieldCode, field.Code, state.Code)
		}

		fieldCodes[field.Code] = true

		if !knownTypes[field.Type] {
			return fmt.Errorf("%w: %s (field %s)", ErrUnknownFieldType, field.Type, field.Code)
		}

		if field.Type == models.FieldTypeFormula && field.Config.Formula != "" {
			for _, ref := range fields.ReferencedFields(field.Config.Formula) {
				if _, ok := state.FieldByCode(ref); !ok {
					s.logger.Warn("Formula references undeclared field",
						"state", state.Code, "field", field.Code, "reference", ref)
				}
			}
		}
	}

	for i := range state.Actions {
		action := &state.Actions[i]

		if action.ID == "" {
			action.ID = uuid.New().String()
		}

		if err := actions.ValidateConfiguration(*action); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidActionConfig, err)
		}
	}

	sort.SliceStable(state.Fields, func(i, j int) bool {
		return state.Fields[i].FormOrder < state.Fields[j].FormOrder
	})

	return nil
}

// ensureSingleInitial enforces the exactly-one-initial invariant. When no
// state is flagged, the first state by order is promoted rather than failing
// the save; extra flags beyond the first are cleared.
func ensureSingleInitial(template *models.Template) {
	if len(template.States) == 0 {
		return
	}

	seen := false

	for i := range template.States {
		if !template.States[i].IsInitial {
			continue
		}

		if seen {
			template.States[i].IsInitial = false
			continue
		}

		seen = true
	}

	if !seen {
		template.States[0].IsInitial = true
	}
}

// cloneStates deep-copies state definitions so a clone never aliases its source.
func cloneStates(states []models.State) []models.State {
	cloned := make([]models.State, len(states))
	copy(cloned, states)

	for i := range cloned {
		cloned[i].Fields = append([]models.Field(nil), states[i].Fields...)
		cloned[i].Transitions = append([]models.Transition(nil), states[i].Transitions...)
		cloned[i].Actions = append([]models.AutomaticAction(nil), states[i].Actions...)
	}

	return cloned
}
