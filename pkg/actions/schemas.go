// Package actions defines the configuration contracts for automatic action
// types. The engine validates and dispatches action payloads; the business
// meaning of each action (mail bodies, webhook auth) lives in external
// handlers.
package actions

import (
	"encoding/json"
	"fmt"

	"github.com/gestia/gestia/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// schemas maps each action type to the JSON Schema its configuration payload
// must satisfy. Payloads are opaque to the engine beyond this check.
var schemas = map[models.ActionType]string{
	models.ActionSendNotification: `{
		"type": "object",
		"properties": {
			"recipients": {"type": "array", "items": {"type": "string"}, "minItems": 1},
			"template":   {"type": "string"},
			"channel":    {"type": "string", "enum": ["email", "sms", "push"]}
		},
		"required": ["recipients"],
		"additionalProperties": true
	}`,
	models.ActionAssignUser: `{
		"type": "object",
		"properties": {
			"user_id": {"type": "string", "minLength": 1},
			"role":    {"type": "string"}
		},
		"required": ["user_id"],
		"additionalProperties": true
	}`,
	models.ActionComputeField: `{
		"type": "object",
		"properties": {
			"field_code": {"type": "string", "minLength": 1},
			"formula":    {"type": "string", "minLength": 1}
		},
		"required": ["field_code", "formula"],
		"additionalProperties": false
	}`,
	models.ActionCreateTask: `{
		"type": "object",
		"properties": {
			"title":       {"type": "string", "minLength": 1},
			"assignee":    {"type": "string"},
			"due_in_days": {"type": "integer", "minimum": 0}
		},
		"required": ["title"],
		"additionalProperties": true
	}`,
	models.ActionCallWebhook: `{
		"type": "object",
		"properties": {
			"url":     {"type": "string", "format": "uri", "minLength": 1},
			"method":  {"type": "string", "enum": ["GET", "POST", "PUT", "PATCH", "DELETE"]},
			"headers": {"type": "object"}
		},
		"required": ["url"],
		"additionalProperties": true
	}`,
}

// SchemaFor returns the JSON Schema source for an action type.
func SchemaFor(actionType models.ActionType) (string, bool) {
	schema, ok := schemas[actionType]
	return schema, ok
}

// ValidateConfiguration checks an action's configuration payload against the
// schema of its type. Unknown action types are rejected.
func ValidateConfiguration(action models.AutomaticAction) error {
	schemaSource, ok := schemas[action.Type]
	if !ok {
		return fmt.Errorf("unknown action type %q", action.Type)
	}

	payload, err := json.Marshal(action.Configuration)
	if err != nil {
		return fmt.Errorf("failed to encode action configuration: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaSource),
		gojsonschema.NewBytesLoader(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to validate action configuration: %w", err)
	}

	if !result.Valid() {
		first := result.Errors()[0]
		return fmt.Errorf("invalid %s configuration: %s", action.Type, first.String())
	}

	return nil
}
