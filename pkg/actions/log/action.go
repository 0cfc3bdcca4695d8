// Package log_action provides a handler that logs the triggering record.
// It backs every action type in development setups where no real
// notification or webhook infrastructure is wired.
package log_action

import (
	"context"
	"log/slog"

	"github.com/gestia/gestia/pkg/protocol"
)

func NewLogActionFactory() *LogActionFactory {
	return &LogActionFactory{}
}

type LogActionFactory struct{}

func (*LogActionFactory) ID() string {
	return "log"
}

func (f *LogActionFactory) Create(config map[string]any) (protocol.Action, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewLogAction(config), nil
}

type LogAction struct {
	message string
}

func NewLogAction(config map[string]any) *LogAction {
	message, _ := config["message"].(string)

	return &LogAction{message: message}
}

func (a *LogAction) Execute(_ context.Context, actionCtx protocol.ActionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", "log")

	attrs := []any{
		"trigger", actionCtx.Trigger,
		"state_id", actionCtx.StateID,
	}

	if actionCtx.Record != nil {
		attrs = append(attrs, "record_id", actionCtx.Record.ID, "record_code", actionCtx.Record.Code)
	}

	if a.message != "" {
		attrs = append(attrs, "message", a.message)
	}

	logger.Info("Executing log action", attrs...)

	return map[string]any{}, nil
}
