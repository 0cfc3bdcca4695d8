// Package models defines the core domain models for template-driven record
// lifecycles: templates with stateful field schemas, guarded transitions,
// automatic actions, and scope-keyed sequence counters.
package models

import "time"

// PermissionSet lists the roles allowed to perform each operation on an
// entity. An empty slice means the operation is unrestricted.
type PermissionSet struct {
	Create []string `json:"create,omitempty"`
	View   []string `json:"view,omitempty"`
	Edit   []string `json:"edit,omitempty"`
	Delete []string `json:"delete,omitempty"`
}

// ConditionOperator is the comparison applied by a transition guard.
type ConditionOperator string

const (
	OperatorEqual       ConditionOperator = "equal"
	OperatorNotEqual    ConditionOperator = "not_equal"
	OperatorGreater     ConditionOperator = "greater"
	OperatorLess        ConditionOperator = "less"
	OperatorContains    ConditionOperator = "contains"
	OperatorNotContains ConditionOperator = "not_contains"
	OperatorEmpty       ConditionOperator = "empty"
	OperatorNotEmpty    ConditionOperator = "not_empty"
)

// Condition is a single predicate over a field's value guarding a transition.
type Condition struct {
	FieldID  string            `json:"field_id" validate:"required"`
	Operator ConditionOperator `json:"operator" validate:"required"`
	Value    any               `json:"value,omitempty"`
}

// Transition is a permitted, guarded move to another state. Conditions are
// combined with AND; a single failing condition blocks the move.
type Transition struct {
	TargetStateID       string      `json:"target_state_id" validate:"required"`
	Conditions          []Condition `json:"conditions,omitempty"`
	RequiresComment     bool        `json:"requires_comment"`
	AllowedRoles        []string    `json:"allowed_roles,omitempty"`
	ConfirmationMessage string      `json:"confirmation_message,omitempty"`
}

// ActionType identifies the side effect an automatic action performs.
type ActionType string

const (
	ActionSendNotification ActionType = "send_notification"
	ActionAssignUser       ActionType = "assign_user"
	ActionComputeField     ActionType = "compute_field"
	ActionCreateTask       ActionType = "create_task"
	ActionCallWebhook      ActionType = "call_webhook"
)

// ActionTrigger is the lifecycle moment at which an automatic action fires.
type ActionTrigger string

const (
	TriggerOnEnter   ActionTrigger = "on_enter"
	TriggerOnExit    ActionTrigger = "on_exit"
	TriggerOnOverdue ActionTrigger = "on_overdue"
	TriggerOnCreate  ActionTrigger = "on_create"
	TriggerOnUpdate  ActionTrigger = "on_update"
)

// AutomaticAction is a configured side effect attached to a state. The
// engine only validates and dispatches it; execution belongs to handlers.
type AutomaticAction struct {
	ID            string         `json:"id"`
	Type          ActionType     `json:"type"    validate:"required"`
	Trigger       ActionTrigger  `json:"trigger" validate:"required"`
	Configuration map[string]any `json:"configuration,omitempty"`
	Active        bool           `json:"active"`
}

// TimeLimit configures how long a record may stay in a state before it is
// considered overdue.
type TimeLimit struct {
	MaxDays         int  `json:"max_days,omitempty"`
	AlertDays       int  `json:"alert_days,omitempty"`
	ExcludeWeekends bool `json:"exclude_weekends,omitempty"`
	ExcludeHolidays bool `json:"exclude_holidays,omitempty"`
}

// StatePermissions controls who may act on records while they sit in a state.
type StatePermissions struct {
	Create   []string `json:"create,omitempty"`
	Edit     []string `json:"edit,omitempty"`
	MoveFrom []string `json:"move_from,omitempty"`
	MoveInto []string `json:"move_into,omitempty"`
}

// State is one stage of a template's lifecycle, owning its own field schema
// and outgoing transitions.
type State struct {
	ID          string            `json:"id"`
	Code        string            `json:"code" validate:"required"`
	Name        string            `json:"name" validate:"required"`
	Color       string            `json:"color,omitempty"`
	Order       int               `json:"order"`
	IsInitial   bool              `json:"is_initial"`
	IsFinal     bool              `json:"is_final"`
	Fields      []Field           `json:"fields,omitempty"`
	Transitions []Transition      `json:"transitions,omitempty"`
	Actions     []AutomaticAction `json:"actions,omitempty"`
	TimeLimit   *TimeLimit        `json:"time_limit,omitempty"`
	Permissions StatePermissions  `json:"permissions"`
}

// FieldByCode returns the field declared with the given code, if any.
func (s *State) FieldByCode(code string) (*Field, bool) {
	for i := range s.Fields {
		if s.Fields[i].Code == code {
			return &s.Fields[i], true
		}
	}

	return nil, false
}

// FieldByID returns the field declared with the given id, if any.
func (s *State) FieldByID(id string) (*Field, bool) {
	for i := range s.Fields {
		if s.Fields[i].ID == id {
			return &s.Fields[i], true
		}
	}

	return nil, false
}

// TransitionTo returns the outgoing transition targeting the given state.
func (s *State) TransitionTo(targetStateID string) (*Transition, bool) {
	for i := range s.Transitions {
		if s.Transitions[i].TargetStateID == targetStateID {
			return &s.Transitions[i], true
		}
	}

	return nil, false
}

// ActionsFor returns the active actions configured for the given trigger.
func (s *State) ActionsFor(trigger ActionTrigger) []AutomaticAction {
	actions := make([]AutomaticAction, 0)

	for _, action := range s.Actions {
		if action.Active && action.Trigger == trigger {
			actions = append(actions, action)
		}
	}

	return actions
}

// ResetPolicy controls when a sequence scope rolls its counter back to zero.
type ResetPolicy string

const (
	ResetNone    ResetPolicy = "none"
	ResetAnnual  ResetPolicy = "annual"
	ResetMonthly ResetPolicy = "monthly"
)

// NumberingPolicy is a template's record-code configuration.
type NumberingPolicy struct {
	Prefix    string      `json:"prefijo"`
	Format    string      `json:"format,omitempty"`
	Reset     ResetPolicy `json:"reset,omitempty"`
	Padding   int         `json:"padding,omitempty"`
	Separator string      `json:"separator,omitempty"`
	Suffix    string      `json:"suffix,omitempty"`
}

// TemplateConfig groups a template's advanced configuration.
type TemplateConfig struct {
	Numbering     NumberingPolicy `json:"numbering"`
	Versioning    bool            `json:"versioning,omitempty"`
	Notifications bool            `json:"notifications,omitempty"`
	Features      map[string]bool `json:"features,omitempty"`
}

// ChangeLogEntry records one template mutation for the audit trail.
type ChangeLogEntry struct {
	At      time.Time `json:"at"`
	Actor   string    `json:"actor"`
	Summary string    `json:"summary"`
}

// AuditTrail tracks who created a template and how it evolved.
type AuditTrail struct {
	CreatedBy string           `json:"created_by"`
	Version   int              `json:"version"`
	ChangeLog []ChangeLogEntry `json:"change_log,omitempty"`
}

// Template is a reusable definition of a record lifecycle. Invariants
// enforced at save time: exactly one initial state when states are non-empty,
// unique state codes and ids, unique field codes within a state, states
// sorted by order and fields by form order.
type Template struct {
	ID             string         `json:"id"`
	Code           string         `json:"code"         validate:"required"`
	Name           string         `json:"name"         validate:"required,min=3"`
	Description    string         `json:"description,omitempty"`
	OrganizationID string         `json:"organization_id" validate:"required"`
	Active         bool           `json:"active"`
	States         []State        `json:"states,omitempty"`
	Config         TemplateConfig `json:"config"`
	Permissions    PermissionSet  `json:"permissions"`
	Audit          AuditTrail     `json:"audit"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      *time.Time     `json:"deleted_at,omitempty"`
}

// StateByID returns the state with the given id, if any.
func (t *Template) StateByID(id string) (*State, bool) {
	for i := range t.States {
		if t.States[i].ID == id {
			return &t.States[i], true
		}
	}

	return nil, false
}

// InitialState returns the state flagged as initial, if any.
func (t *Template) InitialState() (*State, bool) {
	for i := range t.States {
		if t.States[i].IsInitial {
			return &t.States[i], true
		}
	}

	return nil, false
}
