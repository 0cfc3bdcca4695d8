// Package lifecycle orchestrates record mutations end to end: creation with
// code minting, the guarded state-change transaction, completion checks and
// cloning. Every mutation lands as one atomic versioned write; events fire
// only after the write is durable.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gestia/gestia/pkg/directory"
	"github.com/gestia/gestia/pkg/eventbus"
	"github.com/gestia/gestia/pkg/events"
	"github.com/gestia/gestia/pkg/fields"
	"github.com/gestia/gestia/pkg/metrics"
	"github.com/gestia/gestia/pkg/models"
	"github.com/gestia/gestia/pkg/persistence"
	"github.com/gestia/gestia/pkg/sequence"
	"github.com/gestia/gestia/pkg/templates"
	"github.com/gestia/gestia/pkg/transitions"
)

// Engine drives the record lifecycle over a template definition.
type Engine struct {
	templates *templates.Store
	records   persistence.RecordRepository
	sequences *sequence.Generator
	validator *fields.Validator
	directory directory.Directory
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates a record lifecycle engine.
func NewEngine(
	templateStore *templates.Store,
	records persistence.RecordRepository,
	sequences *sequence.Generator,
	validator *fields.Validator,
	roleDirectory directory.Directory,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		templates: templateStore,
		records:   records,
		sequences: sequences,
		validator: validator,
		directory: roleDirectory,
		publisher: publisher,
		logger:    logger.With("module", "lifecycle"),
		now:       time.Now,
	}
}

// CreateRequest carries the inputs for a new record.
type CreateRequest struct {
	TemplateID  string
	Datos       map[string]any
	Actor       string
	Responsible string
	Priority    string
	Tags        []string
	DueDate     *time.Time
}

// Create builds a record in the template's initial state. Validation is
// soft: supplied values must be well-typed, but required fields may still be
// missing at creation time.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*models.Record, error) {
	template, err := e.templates.Get(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}

	initial, ok := template.InitialState()
	if !ok {
		return nil, persistence.NewTemplateError("Create", template.ID, persistence.ErrStateNotFound)
	}

	datos := models.CloneDatos(req.Datos)
	if datos == nil {
		datos = make(map[string]any)
	}

	if validationErr := e.validator.ValidateData(ctx, initial, datos, false); validationErr != nil {
		return nil, validationErr
	}

	e.validator.ComputeFormulas(initial, datos)

	code, err := e.mintCode(ctx, template)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()

	record := &models.Record{
		ID:             uuid.New().String(),
		Code:           code,
		TemplateID:     template.ID,
		OrganizationID: template.OrganizationID,
		CurrentState: models.CurrentState{
			StateID:   initial.ID,
			Name:      initial.Name,
			Color:     initial.Color,
			EnteredAt: now,
			ChangedBy: req.Actor,
		},
		Datos:       datos,
		Responsible: req.Responsible,
		Priority:    req.Priority,
		Tags:        req.Tags,
		DueDate:     req.DueDate,
		Version:     1,
		CreatedBy:   req.Actor,
		CreatedAt:   now,
		UpdatedAt:   now,
		Activity: []models.ActivityEntry{{
			Kind:    "creation",
			At:      now,
			Actor:   req.Actor,
			Message: "record created as " + code,
		}},
	}

	record.Metrics = metrics.Compute(record, initial, now)

	if err := e.records.Create(ctx, record); err != nil {
		return nil, err
	}

	e.publishAsync(events.RecordCreated{
		BaseEvent: e.baseEvent(events.RecordCreatedEvent, record.OrganizationID),
		RecordID:  record.ID, TemplateID: template.ID, Code: record.Code,
		StateID: initial.ID, Actor: req.Actor, Datos: models.CloneDatos(datos),
	}, record.ID)

	return record, nil
}

// ChangeStateRequest carries the inputs for a state transition. The caller's
// last-known version rides along for the optimistic concurrency check.
type ChangeStateRequest struct {
	RecordID        string
	TargetStateID   string
	Comment         string
	Actor           string
	ExpectedVersion int
}

// ChangeState moves a record to a new state. The whole mutation either
// commits as one versioned write or leaves the record untouched. Automatic
// actions fire asynchronously after the commit and never roll it back.
func (e *Engine) ChangeState(ctx context.Context, req ChangeStateRequest) (*models.Record, error) {
	record, err := e.loadRecord(ctx, req.RecordID)
	if err != nil {
		return nil, err
	}

	template, err := e.templates.Get(ctx, record.TemplateID)
	if err != nil {
		return nil, err
	}

	current, ok := template.StateByID(record.CurrentState.StateID)
	if !ok {
		return nil, persistence.NewRecordError("ChangeState", record.ID, persistence.ErrStateNotFound)
	}

	roles, err := e.directory.RolesOf(ctx, req.Actor)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve actor roles: %w", err)
	}

	if err := transitions.CanTransition(current, req.TargetStateID, record.Datos, req.Comment, roles); err != nil {
		return nil, err
	}

	if record.Locked {
		return nil, persistence.NewRecordError("ChangeState", record.ID, persistence.ErrRecordLocked)
	}

	if record.Version != req.ExpectedVersion {
		return nil, persistence.NewRecordError("ChangeState", record.ID, persistence.ErrConcurrencyConflict)
	}

	target, ok := template.StateByID(req.TargetStateID)
	if !ok {
		return nil, persistence.NewRecordError("ChangeState", record.ID, persistence.ErrStateNotFound)
	}

	now := e.now().UTC()
	days, hours := metrics.Elapsed(record.CurrentState.EnteredAt, now)

	record.History = append(record.History, models.HistoryEntry{
		StateID:       current.ID,
		StateName:     record.CurrentState.Name,
		StateColor:    record.CurrentState.Color,
		EnteredAt:     record.CurrentState.EnteredAt,
		ExitedAt:      now,
		DurationDays:  days,
		DurationHours: hours,
		Actor:         req.Actor,
		Comment:       req.Comment,
		Datos:         models.CloneDatos(record.Datos),
	})

	record.CurrentState = models.CurrentState{
		StateID:   target.ID,
		Name:      target.Name,
		Color:     target.Color,
		EnteredAt: now,
		ChangedBy: req.Actor,
	}

	record.Activity = append(record.Activity, models.ActivityEntry{
		Kind:    "state_change",
		At:      now,
		Actor:   req.Actor,
		Message: fmt.Sprintf("moved from %s to %s", current.Name, target.Name),
	})

	if target.IsFinal && record.CompletionDate == nil {
		record.CompletionDate = &now
	}

	e.validator.ComputeFormulas(target, record.Datos)

	record.Version++
	record.UpdatedAt = now
	record.Metrics = metrics.Compute(record, target, now)

	if err := e.records.Save(ctx, record, req.ExpectedVersion); err != nil {
		return nil, err
	}

	e.publishAsync(events.RecordStateChanged{
		BaseEvent:   e.baseEvent(events.RecordStateChangedEvent, record.OrganizationID),
		RecordID:    record.ID,
		TemplateID:  template.ID,
		FromStateID: current.ID,
		ToStateID:   target.ID,
		Actor:       req.Actor,
		Comment:     req.Comment,
	}, record.ID)

	return record, nil
}

// UpdateData applies direct field edits outside a transition. Values are
// validated against the current state's schema and the write carries the
// caller's expected version.
func (e *Engine) UpdateData(ctx context.Context, recordID string, changes map[string]any, actor string, expectedVersion int) (*models.Record, error) {
	record, err := e.loadRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}

	template, err := e.templates.Get(ctx, record.TemplateID)
	if err != nil {
		return nil, err
	}

	current, ok := template.StateByID(record.CurrentState.StateID)
	if !ok {
		return nil, persistence.NewRecordError("UpdateData", record.ID, persistence.ErrStateNotFound)
	}

	if record.Locked {
		return nil, persistence.NewRecordError("UpdateData", record.ID, persistence.ErrRecordLocked)
	}

	if record.Version != expectedVersion {
		return nil, persistence.NewRecordError("UpdateData", record.ID, persistence.ErrConcurrencyConflict)
	}

	datos := models.CloneDatos(record.Datos)
	if datos == nil {
		datos = make(map[string]any)
	}

	for code, value := range changes {
		if field, declared := current.FieldByCode(code); declared && field.ReadOnly {
			return nil, &persistence.ValidationError{Violations: []persistence.FieldViolation{
				{FieldCode: code, Reason: "field is read-only"},
			}}
		}

		datos[code] = value
	}

	if validationErr := e.validator.ValidateData(ctx, current, datos, false); validationErr != nil {
		return nil, validationErr
	}

	e.validator.ComputeFormulas(current, datos)

	now := e.now().UTC()
	record.Datos = datos
	record.Activity = append(record.Activity, models.ActivityEntry{
		Kind:    "data_update",
		At:      now,
		Actor:   actor,
		Message: fmt.Sprintf("%d field(s) updated", len(changes)),
	})
	record.Version++
	record.UpdatedAt = now
	record.Metrics = metrics.Compute(record, current, now)

	if err := e.records.Save(ctx, record, expectedVersion); err != nil {
		return nil, err
	}

	changed := make([]string, 0, len(changes))
	for code := range changes {
		changed = append(changed, code)
	}

	e.publishAsync(events.RecordUpdated{
		BaseEvent:  e.baseEvent(events.RecordUpdatedEvent, record.OrganizationID),
		RecordID:   record.ID,
		TemplateID: record.TemplateID,
		StateID:    record.CurrentState.StateID,
		Actor:      actor,
		Fields:     changed,
	}, record.ID)

	return record, nil
}

// ValidateCompletion checks that every required field of the record's
// current state holds a non-empty value. Callers run this before finalizing
// into a terminal state; intermediate states may tolerate incomplete data.
func (e *Engine) ValidateCompletion(ctx context.Context, recordID string) error {
	record, err := e.loadRecord(ctx, recordID)
	if err != nil {
		return err
	}

	template, err := e.templates.Get(ctx, record.TemplateID)
	if err != nil {
		return err
	}

	current, ok := template.StateByID(record.CurrentState.StateID)
	if !ok {
		return persistence.NewRecordError("ValidateCompletion", record.ID, persistence.ErrStateNotFound)
	}

	if validationErr := e.validator.ValidateData(ctx, current, record.Datos, true); validationErr != nil {
		return validationErr
	}

	return nil
}

// Clone duplicates a record's field data and assignment metadata into a
// fresh draft: new code, initial state, empty history and activity, version
// reset to 1.
func (e *Engine) Clone(ctx context.Context, recordID, actor string) (*models.Record, error) {
	source, err := e.loadRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}

	template, err := e.templates.Get(ctx, source.TemplateID)
	if err != nil {
		return nil, err
	}

	initial, ok := template.InitialState()
	if !ok {
		return nil, persistence.NewTemplateError("Clone", template.ID, persistence.ErrStateNotFound)
	}

	code, err := e.mintCode(ctx, template)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()

	clone := &models.Record{
		ID:             uuid.New().String(),
		Code:           code,
		TemplateID:     source.TemplateID,
		OrganizationID: source.OrganizationID,
		CurrentState: models.CurrentState{
			StateID:   initial.ID,
			Name:      initial.Name,
			Color:     initial.Color,
			EnteredAt: now,
			ChangedBy: actor,
		},
		Datos:       models.CloneDatos(source.Datos),
		Tags:        append([]string(nil), source.Tags...),
		Priority:    source.Priority,
		Responsible: source.Responsible,
		Secondary:   append([]string(nil), source.Secondary...),
		Observers:   append([]string(nil), source.Observers...),
		DueDate:     source.DueDate,
		Version:     1,
		CreatedBy:   actor,
		CreatedAt:   now,
		UpdatedAt:   now,
		Activity: []models.ActivityEntry{{
			Kind:    "creation",
			At:      now,
			Actor:   actor,
			Message: "cloned from " + source.Code,
		}},
	}

	clone.Metrics = metrics.Compute(clone, initial, now)

	if err := e.records.Create(ctx, clone); err != nil {
		return nil, err
	}

	e.publishAsync(events.RecordCloned{
		BaseEvent:      e.baseEvent(events.RecordClonedEvent, clone.OrganizationID),
		SourceRecordID: source.ID,
		RecordID:       clone.ID,
		TemplateID:     template.ID,
		Code:           clone.Code,
		Actor:          actor,
	}, clone.ID)

	return clone, nil
}

// NextSequenceCode mints the next code for a template's numbering policy
// without creating a record.
func (e *Engine) NextSequenceCode(ctx context.Context, templateID string) (string, error) {
	template, err := e.templates.Get(ctx, templateID)
	if err != nil {
		return "", err
	}

	return e.mintCode(ctx, template)
}

func (e *Engine) mintCode(ctx context.Context, template *models.Template) (string, error) {
	policy := template.Config.Numbering
	if policy.Prefix == "" {
		policy.Prefix = template.Code
	}

	scope := e.sequences.ScopeFor(template.OrganizationID, template.Code, policy)

	return e.sequences.NextCode(ctx, scope, models.SequenceFormat{
		Template:  policy.Format,
		Padding:   policy.Padding,
		Separator: policy.Separator,
		Suffix:    policy.Suffix,
	})
}

func (e *Engine) loadRecord(ctx context.Context, id string) (*models.Record, error) {
	record, err := e.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if record == nil {
		return nil, persistence.NewRecordError("Get", id, persistence.ErrRecordNotFound)
	}

	return record, nil
}

func (e *Engine) baseEvent(eventType events.EventType, organizationID string) events.BaseEvent {
	return events.BaseEvent{
		ID:             uuid.New().String(),
		Type:           eventType,
		Timestamp:      e.now().UTC(),
		OrganizationID: organizationID,
	}
}

// publishAsync fires an event after the owning write committed. Publish
// failures are logged and never surfaced to the mutation's caller.
func (e *Engine) publishAsync(event eventbus.Event, key string) {
	if e.publisher == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := e.publisher.Publish(ctx, key, event); err != nil {
			e.logger.Error("Failed to publish lifecycle event",
				"event_type", event.GetType(), "key", key, "error", err)
		}
	}()
}
