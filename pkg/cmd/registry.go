package cmd

import (
	"log/slog"

	logaction "github.com/gestia/gestia/pkg/actions/log"
	"github.com/gestia/gestia/pkg/actions/notification"
	"github.com/gestia/gestia/pkg/actions/webhook"
	"github.com/gestia/gestia/pkg/registry"
)

func registerNativeActions(reg *registry.Registry) {
	reg.RegisterAction(webhook.NewActionFactory())
	reg.RegisterAction(notification.NewActionFactory())
	reg.RegisterAction(logaction.NewLogActionFactory())
}

// NewRegistry builds the action registry with the native handlers. Action
// types without a native handler fall back to the log handler at dispatch
// time.
func NewRegistry(log *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(log)

	registerNativeActions(reg)

	return reg
}
