// Package events defines the lifecycle notifications emitted by the record
// engine. Events are published after a record mutation commits; consumers
// must tolerate redelivery.
package events

import (
	"time"
)

type EventType string

// Topic is the single stream all engine events are published on. Consumers
// filter by the event_type metadata entry.
const Topic = "gestia.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RecordCreatedEvent      EventType = "record.created"
	RecordUpdatedEvent      EventType = "record.updated"
	RecordStateChangedEvent EventType = "record.state_changed"
	RecordOverdueEvent      EventType = "record.overdue"
	RecordClonedEvent       EventType = "record.cloned"
	TemplateUpdatedEvent    EventType = "template.updated"
)

type BaseEvent struct {
	ID             string         `json:"id"`
	Type           EventType      `json:"type"`
	Timestamp      time.Time      `json:"timestamp"`
	OrganizationID string         `json:"organization_id"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// RecordCreated is emitted once a record exists with its minted code.
type RecordCreated struct {
	BaseEvent

	RecordID   string         `json:"record_id"`
	TemplateID string         `json:"template_id"`
	Code       string         `json:"code"`
	StateID    string         `json:"state_id"`
	Actor      string         `json:"actor"`
	Datos      map[string]any `json:"datos,omitempty"`
}

func (e RecordCreated) GetType() EventType {
	return RecordCreatedEvent
}

// RecordUpdated is emitted after a direct field edit commits.
type RecordUpdated struct {
	BaseEvent

	RecordID   string   `json:"record_id"`
	TemplateID string   `json:"template_id"`
	StateID    string   `json:"state_id"`
	Actor      string   `json:"actor"`
	Fields     []string `json:"fields,omitempty"`
}

func (e RecordUpdated) GetType() EventType {
	return RecordUpdatedEvent
}

// RecordStateChanged is emitted after a transition commits. FromStateID and
// ToStateID drive the on_exit and on_enter action triggers.
type RecordStateChanged struct {
	BaseEvent

	RecordID    string `json:"record_id"`
	TemplateID  string `json:"template_id"`
	FromStateID string `json:"from_state_id"`
	ToStateID   string `json:"to_state_id"`
	Actor       string `json:"actor"`
	Comment     string `json:"comment,omitempty"`
}

func (e RecordStateChanged) GetType() EventType {
	return RecordStateChangedEvent
}

// RecordOverdue is emitted by the overdue scanner when a record passes its
// due date without reaching a final state.
type RecordOverdue struct {
	BaseEvent

	RecordID   string    `json:"record_id"`
	TemplateID string    `json:"template_id"`
	StateID    string    `json:"state_id"`
	DueDate    time.Time `json:"due_date"`
}

func (e RecordOverdue) GetType() EventType {
	return RecordOverdueEvent
}

// RecordCloned is emitted when a record is duplicated into a fresh draft.
type RecordCloned struct {
	BaseEvent

	SourceRecordID string `json:"source_record_id"`
	RecordID       string `json:"record_id"`
	TemplateID     string `json:"template_id"`
	Code           string `json:"code"`
	Actor          string `json:"actor"`
}

func (e RecordCloned) GetType() EventType {
	return RecordClonedEvent
}

// TemplateUpdated is emitted after a template save so caches and workers can
// drop retired schema versions.
type TemplateUpdated struct {
	BaseEvent

	TemplateID string `json:"template_id"`
	Code       string `json:"code"`
	Version    int    `json:"version"`
	Actor      string `json:"actor"`
}

func (e TemplateUpdated) GetType() EventType {
	return TemplateUpdatedEvent
}
