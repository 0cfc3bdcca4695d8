package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestia/gestia/pkg/channels/gochannel"
	"github.com/gestia/gestia/pkg/eventbus"
	"github.com/gestia/gestia/pkg/events"
	"github.com/gestia/gestia/pkg/lifecycle"
	"github.com/gestia/gestia/pkg/models"
	"github.com/gestia/gestia/pkg/persistence/file"
	"github.com/gestia/gestia/pkg/protocol"
	"github.com/gestia/gestia/pkg/registry"
	"github.com/gestia/gestia/pkg/templates"
)

// captureFactory records every execution it sees.
type captureFactory struct {
	id string

	mu         sync.Mutex
	executions []protocol.ActionContext
}

func (f *captureFactory) ID() string {
	return f.id
}

func (f *captureFactory) Create(_ map[string]any) (protocol.Action, error) {
	return &captureAction{factory: f}, nil
}

func (f *captureFactory) seen() []protocol.ActionContext {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]protocol.ActionContext(nil), f.executions...)
}

type captureAction struct {
	factory *captureFactory
}

func (a *captureAction) Execute(_ context.Context, actionCtx protocol.ActionContext, _ *slog.Logger) (any, error) {
	a.factory.mu.Lock()
	defer a.factory.mu.Unlock()

	a.factory.executions = append(a.factory.executions, actionCtx)

	return nil, nil
}

func TestWorkerFiresEnterAndExitActions(t *testing.T) {
	logger := slog.Default()
	store := file.NewPersistence(t.TempDir())
	templateStore := templates.NewStore(store.TemplateRepository(), logger)

	template, err := templateStore.Create(context.Background(), &models.Template{
		Code:           "NC",
		Name:           "Non-Conformity",
		OrganizationID: "org-1",
		Active:         true,
		States: []models.State{
			{
				ID:        "open",
				Code:      "open",
				Name:      "Abierta",
				Order:     1,
				IsInitial: true,
				Actions: []models.AutomaticAction{{
					Type:          models.ActionSendNotification,
					Trigger:       models.TriggerOnExit,
					Configuration: map[string]any{"recipients": []any{"quality@acme.test"}},
					Active:        true,
				}},
			},
			{
				ID:    "closed",
				Code:  "closed",
				Name:  "Cerrada",
				Order: 2,
				Actions: []models.AutomaticAction{
					{
						Type:          models.ActionSendNotification,
						Trigger:       models.TriggerOnEnter,
						Configuration: map[string]any{"recipients": []any{"quality@acme.test"}},
						Active:        true,
					},
					{
						Type:          models.ActionAssignUser,
						Trigger:       models.TriggerOnEnter,
						Configuration: map[string]any{"user_id": "u-9"},
						Active:        false,
					},
				},
			},
		},
	}, "admin")
	require.NoError(t, err)

	record := &models.Record{
		ID:             uuid.New().String(),
		Code:           "NC-0001",
		TemplateID:     template.ID,
		OrganizationID: "org-1",
		CurrentState:   models.CurrentState{StateID: "closed", Name: "Cerrada", EnteredAt: time.Now().UTC()},
		Version:        2,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.RecordRepository().Create(context.Background(), record))

	pub, sub, err := gochannel.CreateTestChannel(watermill.NewSlogLogger(logger))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	capture := &captureFactory{id: string(models.ActionSendNotification)}
	actionRegistry := registry.NewRegistry(logger)
	actionRegistry.RegisterAction(capture)

	worker := NewWorker(bus, templateStore, store.RecordRepository(), actionRegistry, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, worker.Start(ctx))

	err = bus.Publish(ctx, record.ID, events.RecordStateChanged{
		BaseEvent: events.BaseEvent{
			ID:             uuid.New().String(),
			Type:           events.RecordStateChangedEvent,
			Timestamp:      time.Now().UTC(),
			OrganizationID: "org-1",
		},
		RecordID:    record.ID,
		TemplateID:  template.ID,
		FromStateID: "open",
		ToStateID:   "closed",
		Actor:       "ana",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(capture.seen()) == 2
	}, 3*time.Second, 20*time.Millisecond)

	seen := capture.seen()
	triggers := map[models.ActionTrigger]bool{}

	for _, execution := range seen {
		triggers[execution.Trigger] = true
		assert.Equal(t, record.ID, execution.Record.ID)
	}

	assert.True(t, triggers[models.TriggerOnExit])
	assert.True(t, triggers[models.TriggerOnEnter])
}

func TestWorkerSkipsStatesWithoutActions(t *testing.T) {
	logger := slog.Default()
	store := file.NewPersistence(t.TempDir())
	templateStore := templates.NewStore(store.TemplateRepository(), logger)

	template, err := templateStore.Create(context.Background(), &models.Template{
		Code:           "PLAIN",
		Name:           "Plain Flow",
		OrganizationID: "org-1",
		Active:         true,
		States: []models.State{
			{ID: "a", Code: "a", Name: "A", Order: 1, IsInitial: true},
		},
	}, "admin")
	require.NoError(t, err)

	pub, sub, err := gochannel.CreateTestChannel(watermill.NewSlogLogger(logger))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	capture := &captureFactory{id: "log"}
	actionRegistry := registry.NewRegistry(logger)
	actionRegistry.RegisterAction(capture)

	worker := NewWorker(bus, templateStore, store.RecordRepository(), actionRegistry, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, worker.Start(ctx))

	err = bus.Publish(ctx, "r-1", events.RecordCreated{
		BaseEvent: events.BaseEvent{
			ID:             uuid.New().String(),
			Type:           events.RecordCreatedEvent,
			Timestamp:      time.Now().UTC(),
			OrganizationID: "org-1",
		},
		RecordID:   "r-1",
		TemplateID: template.ID,
		StateID:    "a",
		Actor:      "ana",
	})
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, capture.seen())
}

func TestOverdueScanFiresOverdueActions(t *testing.T) {
	logger := slog.Default()
	store := file.NewPersistence(t.TempDir())
	templateStore := templates.NewStore(store.TemplateRepository(), logger)

	template, err := templateStore.Create(context.Background(), &models.Template{
		Code:           "AUD",
		Name:           "Audit",
		OrganizationID: "org-1",
		Active:         true,
		States: []models.State{
			{
				ID:        "open",
				Code:      "open",
				Name:      "Abierta",
				Order:     1,
				IsInitial: true,
				Actions: []models.AutomaticAction{{
					Type:          models.ActionSendNotification,
					Trigger:       models.TriggerOnOverdue,
					Configuration: map[string]any{"recipients": []any{"quality@acme.test"}},
					Active:        true,
				}},
			},
		},
	}, "admin")
	require.NoError(t, err)

	pastDue := time.Now().UTC().Add(-48 * time.Hour)
	overdue := &models.Record{
		ID:             uuid.New().String(),
		Code:           "AUD-0001",
		TemplateID:     template.ID,
		OrganizationID: "org-1",
		CurrentState:   models.CurrentState{StateID: "open", Name: "Abierta", EnteredAt: pastDue},
		DueDate:        &pastDue,
		Version:        1,
		CreatedAt:      pastDue,
		UpdatedAt:      pastDue,
	}
	require.NoError(t, store.RecordRepository().Create(context.Background(), overdue))

	futureDue := time.Now().UTC().Add(48 * time.Hour)
	onTime := &models.Record{
		ID:             uuid.New().String(),
		Code:           "AUD-0002",
		TemplateID:     template.ID,
		OrganizationID: "org-1",
		CurrentState:   models.CurrentState{StateID: "open", Name: "Abierta", EnteredAt: time.Now().UTC()},
		DueDate:        &futureDue,
		Version:        1,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.RecordRepository().Create(context.Background(), onTime))

	pub, sub, err := gochannel.CreateTestChannel(watermill.NewSlogLogger(logger))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	capture := &captureFactory{id: string(models.ActionSendNotification)}
	actionRegistry := registry.NewRegistry(logger)
	actionRegistry.RegisterAction(capture)

	worker := NewWorker(bus, templateStore, store.RecordRepository(), actionRegistry, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, worker.Start(ctx))

	scanner := lifecycle.NewOverdueScanner(store.RecordRepository(), bus, logger, []string{"org-1"})
	require.NoError(t, scanner.Scan(ctx))

	require.Eventually(t, func() bool {
		return len(capture.seen()) == 1
	}, 3*time.Second, 20*time.Millisecond)

	// only the past-due record fires, and only with the overdue trigger
	time.Sleep(100 * time.Millisecond)

	seen := capture.seen()
	require.Len(t, seen, 1)
	assert.Equal(t, models.TriggerOnOverdue, seen[0].Trigger)
	assert.Equal(t, overdue.ID, seen[0].Record.ID)
	assert.Equal(t, "open", seen[0].StateID)
}
