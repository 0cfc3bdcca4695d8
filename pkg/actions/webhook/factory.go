package webhook

import (
	"github.com/gestia/gestia/pkg/models"
	"github.com/gestia/gestia/pkg/protocol"
)

// ActionFactory creates webhook action instances.
type ActionFactory struct{}

// NewActionFactory creates a webhook action factory.
func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

// Create creates a webhook action from the given configuration.
func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

// ID returns the action type this factory handles.
func (f *ActionFactory) ID() string {
	return string(models.ActionCallWebhook)
}
