// Package protocol defines the contracts between the record engine and
// external action handlers. The engine dispatches action payloads; what a
// notification or webhook actually does lives behind these interfaces.
package protocol

import (
	"context"
	"log/slog"

	"github.com/gestia/gestia/pkg/models"
)

// ActionContext carries everything a handler may need about the record that
// triggered it. Handlers must treat it as read-only.
type ActionContext struct {
	Record   *models.Record
	Template *models.Template
	Trigger  models.ActionTrigger
	StateID  string
}

// Action executes one automatic action instance. Execution is best-effort:
// errors are logged by the dispatcher and never affect the triggering
// record mutation.
type Action interface {
	Execute(ctx context.Context, actionCtx ActionContext, logger *slog.Logger) (any, error)
}

// ActionFactory builds actions of one type from their opaque configuration.
type ActionFactory interface {
	Create(config map[string]any) (Action, error)
	ID() string
}
