package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestia/gestia/pkg/directory"
	"github.com/gestia/gestia/pkg/eventbus"
	"github.com/gestia/gestia/pkg/events"
	"github.com/gestia/gestia/pkg/fields"
	"github.com/gestia/gestia/pkg/models"
	"github.com/gestia/gestia/pkg/persistence"
	"github.com/gestia/gestia/pkg/persistence/file"
	"github.com/gestia/gestia/pkg/relations"
	"github.com/gestia/gestia/pkg/sequence"
	"github.com/gestia/gestia/pkg/templates"
	"github.com/gestia/gestia/pkg/transitions"
)

// capturePublisher collects published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *capturePublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *capturePublisher) typesSeen() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := make([]events.EventType, 0, len(p.events))
	for _, event := range p.events {
		seen = append(seen, event.GetType())
	}

	return seen
}

type engineFixture struct {
	engine    *Engine
	store     *templates.Store
	records   persistence.RecordRepository
	publisher *capturePublisher
	template  *models.Template
}

func auditTemplate() *models.Template {
	return &models.Template{
		Code:           "AUD",
		Name:           "Internal Audit",
		OrganizationID: "org-7",
		Active:         true,
		States: []models.State{
			{
				ID:        "planned",
				Code:      "planned",
				Name:      "Planificada",
				Color:     "#2196f3",
				Order:     1,
				IsInitial: true,
				Fields: []models.Field{
					{Code: "titulo", Label: "Título", Type: models.FieldTypeText, Required: true, FormOrder: 1},
					{Code: "auditor", Label: "Auditor", Type: models.FieldTypeText, FormOrder: 2},
					{Code: "alcance", Label: "Alcance", Type: models.FieldTypeTextarea, FormOrder: 3},
				},
				Transitions: []models.Transition{
					{
						TargetStateID: "in_progress",
						Conditions: []models.Condition{
							{FieldID: "auditor", Operator: models.OperatorNotEmpty},
						},
					},
					{
						TargetStateID:   "cancelled",
						RequiresComment: true,
						AllowedRoles:    []string{"quality_manager"},
					},
				},
			},
			{
				ID:    "in_progress",
				Code:  "in_progress",
				Name:  "En Progreso",
				Order: 2,
				Fields: []models.Field{
					{Code: "titulo", Label: "Título", Type: models.FieldTypeText, Required: true, FormOrder: 1},
					{Code: "hallazgos", Label: "Hallazgos", Type: models.FieldTypeNumber, Required: true, FormOrder: 2},
				},
				Transitions: []models.Transition{
					{TargetStateID: "completed"},
				},
			},
			{ID: "completed", Code: "completed", Name: "Completada", Order: 3, IsFinal: true},
			{ID: "cancelled", Code: "cancelled", Name: "Cancelada", Order: 4, IsFinal: true},
		},
		Config: models.TemplateConfig{
			Numbering: models.NumberingPolicy{Prefix: "AUD", Reset: models.ResetAnnual},
		},
	}
}

func newFixture(t *testing.T) *engineFixture {
	t.Helper()

	logger := slog.Default()
	store := file.NewPersistence(t.TempDir())
	templateStore := templates.NewStore(store.TemplateRepository(), logger)

	created, err := templateStore.Create(context.Background(), auditTemplate(), "admin")
	require.NoError(t, err)

	roleDirectory := directory.NewStaticDirectory()
	roleDirectory.Grant("gerente", "quality_manager")
	roleDirectory.Grant("ana", "auditor")

	publisher := &capturePublisher{}

	engine := NewEngine(
		templateStore,
		store.RecordRepository(),
		sequence.NewGenerator(store.CounterRepository(), logger),
		fields.NewValidator(relations.NewStaticResolver()),
		roleDirectory,
		publisher,
		logger,
	)

	return &engineFixture{
		engine:    engine,
		store:     templateStore,
		records:   store.RecordRepository(),
		publisher: publisher,
		template:  created,
	}
}

func (f *engineFixture) createRecord(t *testing.T, datos map[string]any) *models.Record {
	t.Helper()

	record, err := f.engine.Create(context.Background(), CreateRequest{
		TemplateID: f.template.ID,
		Datos:      datos,
		Actor:      "ana",
	})
	require.NoError(t, err)

	return record
}

func waitForEvent(t *testing.T, publisher *capturePublisher, want events.EventType) {
	t.Helper()

	require.Eventually(t, func() bool {
		for _, seen := range publisher.typesSeen() {
			if seen == want {
				return true
			}
		}

		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCreateMintsCodeAndInitialState(t *testing.T) {
	f := newFixture(t)

	record := f.createRecord(t, map[string]any{"titulo": "ISO 9001 internal"})

	year := time.Now().UTC().Year()
	assert.Equal(t, fmt.Sprintf("AUD-%d-0001", year), record.Code)
	assert.Equal(t, "planned", record.CurrentState.StateID)
	assert.Equal(t, "Planificada", record.CurrentState.Name)
	assert.Equal(t, 1, record.Version)
	assert.Equal(t, "ana", record.CreatedBy)
	require.Len(t, record.Activity, 1)
	assert.Equal(t, "creation", record.Activity[0].Kind)

	second := f.createRecord(t, map[string]any{"titulo": "Follow-up"})
	assert.Equal(t, fmt.Sprintf("AUD-%d-0002", year), second.Code)

	waitForEvent(t, f.publisher, events.RecordCreatedEvent)
}

func TestCreateAllowsMissingRequiredFields(t *testing.T) {
	f := newFixture(t)

	record := f.createRecord(t, nil)
	assert.Equal(t, "planned", record.CurrentState.StateID)
}

func TestCreateRejectsIllTypedValues(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Create(context.Background(), CreateRequest{
		TemplateID: f.template.ID,
		Datos:      map[string]any{"titulo": 42},
		Actor:      "ana",
	})

	var validationErr *persistence.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Len(t, validationErr.Violations, 1)
	assert.Equal(t, "titulo", validationErr.Violations[0].FieldCode)
}

func TestChangeStateBlockedByConditionLeavesRecordUntouched(t *testing.T) {
	f := newFixture(t)

	record := f.createRecord(t, map[string]any{"titulo": "ISO 9001 internal"})

	_, err := f.engine.ChangeState(context.Background(), ChangeStateRequest{
		RecordID:        record.ID,
		TargetStateID:   "in_progress",
		Actor:           "ana",
		ExpectedVersion: record.Version,
	})

	var conditionErr *persistence.TransitionConditionError
	require.ErrorAs(t, err, &conditionErr)
	assert.Equal(t, "auditor", conditionErr.Violation.FieldID)

	reloaded, loadErr := f.records.GetByID(context.Background(), record.ID)
	require.NoError(t, loadErr)
	assert.Equal(t, "planned", reloaded.CurrentState.StateID)
	assert.Equal(t, 1, reloaded.Version)
	assert.Empty(t, reloaded.History)
}

func TestChangeStateSucceedsOnceConditionHolds(t *testing.T) {
	f := newFixture(t)

	record := f.createRecord(t, map[string]any{
		"titulo":  "ISO 9001 internal",
		"auditor": "X",
	})

	moved, err := f.engine.ChangeState(context.Background(), ChangeStateRequest{
		RecordID:        record.ID,
		TargetStateID:   "in_progress",
		Actor:           "ana",
		ExpectedVersion: record.Version,
	})
	require.NoError(t, err)

	assert.Equal(t, "in_progress", moved.CurrentState.StateID)
	assert.Equal(t, "En Progreso", moved.CurrentState.Name)
	assert.Equal(t, 2, moved.Version)
	require.Len(t, moved.History, 1)
	assert.Equal(t, "planned", moved.History[0].StateID)
	assert.Equal(t, "ana", moved.History[0].Actor)
	require.Len(t, moved.Activity, 2)
	assert.Equal(t, "state_change", moved.Activity[1].Kind)

	waitForEvent(t, f.publisher, events.RecordStateChangedEvent)
}

func TestHistorySnapshotDoesNotAliasLiveData(t *testing.T) {
	f := newFixture(t)

	record := f.createRecord(t, map[string]any{
		"titulo":  "ISO 9001 internal",
		"auditor": "X",
	})

	moved, err := f.engine.ChangeState(context.Background(), ChangeStateRequest{
		RecordID:        record.ID,
		TargetStateID:   "in_progress",
		Actor:           "ana",
		ExpectedVersion: record.Version,
	})
	require.NoError(t, err)

	moved.Datos["auditor"] = "tampered"

	assert.Equal(t, "X", moved.History[0].Datos["auditor"])
}

func TestChangeStateUnknownTarget(t *testing.T) {
	f := newFixture(t)

	record := f.createRecord(t, map[string]any{"titulo": "ISO 9001 internal"})

	_, err := f.engine.ChangeState(context.Background(), ChangeStateRequest{
		RecordID:        record.ID,
		TargetStateID:   "completed",
		Actor:           "ana",
		ExpectedVersion: record.Version,
	})
	require.ErrorIs(t, err, persistence.ErrInvalidTransition)
}

func TestChangeStateCommentAndRoleGates(t *testing.T) {
	f := newFixture(t)

	record := f.createRecord(t, map[string]any{"titulo": "ISO 9001 internal"})

	_, err := f.engine.ChangeState(context.Background(), ChangeStateRequest{
		RecordID:        record.ID,
		TargetStateID:   "cancelled",
		Actor:           "gerente",
		ExpectedVersion: record.Version,
	})
	require.ErrorIs(t, err, persistence.ErrCommentRequired)

	_, err = f.engine.ChangeState(context.Background(), ChangeStateRequest{
		RecordID:        record.ID,
		TargetStateID:   "cancelled",
		Comment:         "budget cut",
		Actor:           "ana",
		ExpectedVersion: record.Version,
	})
	require.ErrorIs(t, err, persistence.ErrPermissionDenied)

	moved, err := f.engine.ChangeState(context.Background(), ChangeStateRequest{
		RecordID:        record.ID,
		TargetStateID:   "cancelled",
		Comment:         "budget cut",
		Actor:           "gerente",
		ExpectedVersion: record.Version,
	})
	require.NoError(t, err)
	assert.Equal(t, "cancelled", moved.CurrentState.StateID)
	assert.Equal(t, "budget cut", moved.History[0].Comment)
	require.NotNil(t, moved.CompletionDate)
}

func TestChangeStateHonorsLock(t *testing.T) {
	f := newFixture(t)

	record := f.createRecord(t, map[string]any{
		"titulo":  "ISO 9001 internal",
		"auditor": "X",
	})

	record.Locked = true
	require.NoError(t, f.records.Save(context.Background(), record, record.Version))

	_, err := f.engine.ChangeState(context.Background(), ChangeStateRequest{
		RecordID:        record.ID,
		TargetStateID:   "in_progress",
		Actor:           "ana",
		ExpectedVersion: record.Version,
	})
	require.ErrorIs(t, err, persistence.ErrRecordLocked)
}

func TestChangeStateDetectsStaleVersion(t *testing.T) {
	f := newFixture(t)

	record := f.createRecord(t, map[string]any{
		"titulo":  "ISO 9001 internal",
		"auditor": "X",
	})

	_, err := f.engine.ChangeState(context.Background(), ChangeStateRequest{
		RecordID:        record.ID,
		TargetStateID:   "in_progress",
		Actor:           "ana",
		ExpectedVersion: record.Version,
	})
	require.NoError(t, err)

	_, err = f.engine.ChangeState(context.Background(), ChangeStateRequest{
		RecordID:        record.ID,
		TargetStateID:   "in_progress",
		Actor:           "ana",
		ExpectedVersion: record.Version,
	})
	require.True(t, persistence.IsConcurrencyConflict(err))
}

func TestValidateCompletionReportsAllMissingFields(t *testing.T) {
	f := newFixture(t)

	record := f.createRecord(t, map[string]any{
		"titulo":  "ISO 9001 internal",
		"auditor": "X",
	})

	moved, err := f.engine.ChangeState(context.Background(), ChangeStateRequest{
		RecordID:        record.ID,
		TargetStateID:   "in_progress",
		Actor:           "ana",
		ExpectedVersion: record.Version,
	})
	require.NoError(t, err)

	err = f.engine.ValidateCompletion(context.Background(), moved.ID)

	var validationErr *persistence.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Len(t, validationErr.Violations, 1)
	assert.Equal(t, "hallazgos", validationErr.Violations[0].FieldCode)

	_, err = f.engine.UpdateData(context.Background(), moved.ID,
		map[string]any{"hallazgos": 3}, "ana", moved.Version)
	require.NoError(t, err)

	require.NoError(t, f.engine.ValidateCompletion(context.Background(), moved.ID))
}

func TestUpdateDataValidatesAndBumpsVersion(t *testing.T) {
	f := newFixture(t)

	record := f.createRecord(t, map[string]any{"titulo": "ISO 9001 internal"})

	updated, err := f.engine.UpdateData(context.Background(), record.ID,
		map[string]any{"auditor": "X"}, "ana", record.Version)
	require.NoError(t, err)

	assert.Equal(t, "X", updated.Datos["auditor"])
	assert.Equal(t, 2, updated.Version)

	_, err = f.engine.UpdateData(context.Background(), record.ID,
		map[string]any{"titulo": 42}, "ana", updated.Version)

	var validationErr *persistence.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestCloneResetsHistoryAndMintsNewCode(t *testing.T) {
	f := newFixture(t)

	record := f.createRecord(t, map[string]any{
		"titulo":  "ISO 9001 internal",
		"auditor": "X",
	})

	moved, err := f.engine.ChangeState(context.Background(), ChangeStateRequest{
		RecordID:        record.ID,
		TargetStateID:   "in_progress",
		Actor:           "ana",
		ExpectedVersion: record.Version,
	})
	require.NoError(t, err)

	clone, err := f.engine.Clone(context.Background(), moved.ID, "gerente")
	require.NoError(t, err)

	assert.NotEqual(t, moved.ID, clone.ID)
	assert.NotEqual(t, moved.Code, clone.Code)
	assert.Equal(t, "planned", clone.CurrentState.StateID)
	assert.Equal(t, moved.Datos["titulo"], clone.Datos["titulo"])
	assert.Empty(t, clone.History)
	assert.Empty(t, clone.Comments)
	assert.Equal(t, 1, clone.Version)
	assert.Equal(t, "gerente", clone.CreatedBy)

	clone.Datos["titulo"] = "tampered"

	reloaded, err := f.records.GetByID(context.Background(), moved.ID)
	require.NoError(t, err)
	assert.Equal(t, "ISO 9001 internal", reloaded.Datos["titulo"])
}

func TestTransitionGuardConjunction(t *testing.T) {
	state := &models.State{
		ID:   "s1",
		Code: "s1",
		Name: "S1",
		Transitions: []models.Transition{{
			TargetStateID: "s2",
			Conditions: []models.Condition{
				{FieldID: "a", Operator: models.OperatorNotEmpty},
				{FieldID: "b", Operator: models.OperatorGreater, Value: 10},
			},
		}},
	}

	datos := map[string]any{"a": "set", "b": 11}
	require.NoError(t, transitions.CanTransition(state, "s2", datos, "", nil))

	datos["b"] = 9

	var conditionErr *persistence.TransitionConditionError
	require.ErrorAs(t, transitions.CanTransition(state, "s2", datos, "", nil), &conditionErr)
	assert.Equal(t, "b", conditionErr.Violation.FieldID)
}
