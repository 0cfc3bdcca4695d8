// Package dispatch consumes lifecycle events from the bus and executes the
// matching automatic actions. Execution is best-effort and happens strictly
// after the triggering mutation committed; failures are logged, never
// retried here, and never reach the mutation's caller.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gestia/gestia/pkg/eventbus"
	"github.com/gestia/gestia/pkg/events"
	"github.com/gestia/gestia/pkg/models"
	"github.com/gestia/gestia/pkg/otelhelper"
	"github.com/gestia/gestia/pkg/persistence"
	"github.com/gestia/gestia/pkg/protocol"
	"github.com/gestia/gestia/pkg/registry"
	"github.com/gestia/gestia/pkg/templates"
)

// fallbackActionID handles action types with no registered factory, so a
// development setup without notification infrastructure still observes
// every dispatch.
const fallbackActionID = "log"

// Worker routes lifecycle events to state actions.
type Worker struct {
	bus       eventbus.EventBus
	templates *templates.Store
	records   persistence.RecordRepository
	registry  *registry.Registry
	tracer    trace.Tracer
	logger    *slog.Logger
}

// NewWorker creates a dispatch worker over the given bus and registry.
func NewWorker(
	bus eventbus.EventBus,
	templateStore *templates.Store,
	records persistence.RecordRepository,
	actionRegistry *registry.Registry,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		bus:       bus,
		templates: templateStore,
		records:   records,
		registry:  actionRegistry,
		logger:    logger.With("module", "dispatch"),
	}
}

// WithTracer enables span creation around action execution.
func (w *Worker) WithTracer(tracer trace.Tracer) *Worker {
	w.tracer = tracer

	return w
}

// Start registers the event handlers and begins consuming the bus.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.bus.Handle(events.RecordCreatedEvent, w.handleRecordCreated); err != nil {
		return err
	}

	if err := w.bus.Handle(events.RecordUpdatedEvent, w.handleRecordUpdated); err != nil {
		return err
	}

	if err := w.bus.Handle(events.RecordStateChangedEvent, w.handleStateChanged); err != nil {
		return err
	}

	if err := w.bus.Handle(events.RecordOverdueEvent, w.handleRecordOverdue); err != nil {
		return err
	}

	return w.bus.Subscribe(ctx)
}

func (w *Worker) handleRecordCreated(ctx context.Context, event interface{}) error {
	created, ok := event.(*events.RecordCreated)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	return w.fire(ctx, created.RecordID, created.TemplateID, created.StateID, models.TriggerOnCreate)
}

func (w *Worker) handleRecordUpdated(ctx context.Context, event interface{}) error {
	updated, ok := event.(*events.RecordUpdated)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	return w.fire(ctx, updated.RecordID, updated.TemplateID, updated.StateID, models.TriggerOnUpdate)
}

func (w *Worker) handleStateChanged(ctx context.Context, event interface{}) error {
	changed, ok := event.(*events.RecordStateChanged)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	if err := w.fire(ctx, changed.RecordID, changed.TemplateID, changed.FromStateID, models.TriggerOnExit); err != nil {
		return err
	}

	return w.fire(ctx, changed.RecordID, changed.TemplateID, changed.ToStateID, models.TriggerOnEnter)
}

func (w *Worker) handleRecordOverdue(ctx context.Context, event interface{}) error {
	overdue, ok := event.(*events.RecordOverdue)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	return w.fire(ctx, overdue.RecordID, overdue.TemplateID, overdue.StateID, models.TriggerOnOverdue)
}

// fire executes every active action of the state bound to the trigger.
// Handler errors are logged per action; the event is still acked so the bus
// never redelivers a mutation's side effects because one webhook was down.
func (w *Worker) fire(ctx context.Context, recordID, templateID, stateID string, trigger models.ActionTrigger) error {
	template, err := w.templates.Get(ctx, templateID)
	if err != nil {
		return fmt.Errorf("failed to load template %s: %w", templateID, err)
	}

	state, ok := template.StateByID(stateID)
	if !ok {
		w.logger.WarnContext(ctx, "Event references retired state",
			"template_id", templateID, "state_id", stateID)

		return nil
	}

	actions := state.ActionsFor(trigger)
	if len(actions) == 0 {
		return nil
	}

	record, err := w.records.GetByID(ctx, recordID)
	if err != nil {
		return fmt.Errorf("failed to load record %s: %w", recordID, err)
	}

	if record == nil {
		w.logger.WarnContext(ctx, "Event references missing record", "record_id", recordID)

		return nil
	}

	actionCtx := protocol.ActionContext{
		Record:   record,
		Template: template,
		Trigger:  trigger,
		StateID:  stateID,
	}

	for _, action := range actions {
		w.execute(ctx, actionCtx, action)
	}

	return nil
}

func (w *Worker) execute(ctx context.Context, actionCtx protocol.ActionContext, action models.AutomaticAction) {
	var span trace.Span

	if w.tracer != nil {
		ctx, span = otelhelper.StartSpan(ctx, w.tracer, "dispatch.execute",
			attribute.String(otelhelper.RecordIDKey, actionCtx.Record.ID),
			attribute.String(otelhelper.StateIDKey, actionCtx.StateID),
			attribute.String(otelhelper.ActionIDKey, action.ID),
			attribute.String(otelhelper.ActionTypeKey, string(action.Type)),
			attribute.String(otelhelper.TriggerKey, string(actionCtx.Trigger)),
		)
		defer span.End()
	}

	handler, err := w.registry.CreateAction(string(action.Type), action.Configuration)
	if err != nil {
		handler, err = w.registry.CreateAction(fallbackActionID, action.Configuration)
		if err != nil {
			w.logger.ErrorContext(ctx, "No handler for action",
				"action_id", action.ID, "action_type", action.Type)

			return
		}
	}

	if _, err := handler.Execute(ctx, actionCtx, w.logger); err != nil {
		w.logger.ErrorContext(ctx, "Action execution failed",
			"action_id", action.ID, "action_type", action.Type,
			"record_id", actionCtx.Record.ID, "error", err)

		if span != nil {
			otelhelper.SetError(span, err)
		}
	}
}
