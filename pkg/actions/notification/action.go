// Package notification provides the send_notification action handler. The
// engine's contract ends at handing the rendered payload to the delivery
// infrastructure; here delivery is a structured log entry, which is what
// development and test setups observe.
package notification

import (
	"context"
	"log/slog"

	"github.com/gestia/gestia/pkg/models"
	"github.com/gestia/gestia/pkg/protocol"
)

// ActionFactory creates notification action instances.
type ActionFactory struct{}

// NewActionFactory creates a notification action factory.
func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

// Create creates a notification action from the given configuration.
func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config), nil
}

// ID returns the action type this factory handles.
func (f *ActionFactory) ID() string {
	return string(models.ActionSendNotification)
}

// Action emits a notification for a record event.
type Action struct {
	recipients []string
	template   string
	channel    string
}

// NewAction creates a notification action from configuration.
func NewAction(config map[string]any) *Action {
	action := &Action{channel: "email"}

	if raw, ok := config["recipients"].([]any); ok {
		for _, entry := range raw {
			if recipient, ok := entry.(string); ok {
				action.recipients = append(action.recipients, recipient)
			}
		}
	}

	if template, ok := config["template"].(string); ok {
		action.template = template
	}

	if channel, ok := config["channel"].(string); ok && channel != "" {
		action.channel = channel
	}

	return action
}

// Execute hands the notification to the delivery layer.
func (a *Action) Execute(ctx context.Context, actionCtx protocol.ActionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("module", "notification_action")

	attrs := []any{
		"channel", a.channel,
		"recipients", a.recipients,
		"trigger", actionCtx.Trigger,
		"state_id", actionCtx.StateID,
	}

	if a.template != "" {
		attrs = append(attrs, "template", a.template)
	}

	if actionCtx.Record != nil {
		attrs = append(attrs, "record_id", actionCtx.Record.ID, "record_code", actionCtx.Record.Code)
	}

	logger.InfoContext(ctx, "Sending notification", attrs...)

	return map[string]any{
		"channel":    a.channel,
		"recipients": a.recipients,
	}, nil
}
