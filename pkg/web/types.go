// Package web provides HTTP request and response types for the record API.
package web

import (
	"time"

	"github.com/gestia/gestia/pkg/models"
)

// CreateTemplateRequest represents the request body for creating a new template.
type CreateTemplateRequest struct {
	Code           string                `json:"code"            validate:"required,min=2"`
	Name           string                `json:"name"            validate:"required,min=3"`
	Description    string                `json:"description,omitempty"`
	OrganizationID string                `json:"organization_id" validate:"required"`
	States         []models.State        `json:"states"          validate:"required,min=1"`
	Config         models.TemplateConfig `json:"config"`
	Permissions    models.PermissionSet  `json:"permissions"`
	Actor          string                `json:"actor"           validate:"required"`
}

// UpdateTemplateRequest represents the request body for updating a template.
// The submitted definition replaces the stored one; the audit trail keeps the
// previous versions.
type UpdateTemplateRequest struct {
	Name        string                `json:"name"        validate:"required,min=3"`
	Description string                `json:"description,omitempty"`
	States      []models.State        `json:"states"      validate:"required,min=1"`
	Config      models.TemplateConfig `json:"config"`
	Permissions models.PermissionSet  `json:"permissions"`
	Actor       string                `json:"actor"       validate:"required"`
}

// CloneTemplateRequest represents the request body for cloning a template.
type CloneTemplateRequest struct {
	Actor string `json:"actor" validate:"required"`
}

// CreateRecordRequest represents the request body for opening a new record.
type CreateRecordRequest struct {
	TemplateID  string         `json:"template_id" validate:"required"`
	Datos       map[string]any `json:"datos"`
	Responsible string         `json:"responsible"`
	Priority    string         `json:"priority"`
	Tags        []string       `json:"tags,omitempty"`
	DueDate     *time.Time     `json:"due_date,omitempty"`
	Actor       string         `json:"actor"       validate:"required"`
}

// ChangeStateRequest represents the request body for a state transition.
// ExpectedVersion carries the version the client last read; a stale value is
// rejected with a conflict.
type ChangeStateRequest struct {
	TargetStateID   string `json:"target_state_id"  validate:"required"`
	Comment         string `json:"comment,omitempty"`
	Actor           string `json:"actor"            validate:"required"`
	ExpectedVersion int    `json:"expected_version" validate:"gte=1"`
}

// UpdateRecordDataRequest represents the request body for editing record
// fields without leaving the current state.
type UpdateRecordDataRequest struct {
	Changes         map[string]any `json:"changes"          validate:"required,min=1"`
	Actor           string         `json:"actor"            validate:"required"`
	ExpectedVersion int            `json:"expected_version" validate:"gte=1"`
}

// CloneRecordRequest represents the request body for cloning a record.
type CloneRecordRequest struct {
	Actor string `json:"actor" validate:"required"`
}
