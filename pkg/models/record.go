package models

import (
	"encoding/json"
	"time"
)

// CurrentState is the record's snapshot of the state it currently sits in.
type CurrentState struct {
	StateID   string    `json:"state_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	EnteredAt time.Time `json:"entered_at"`
	ChangedBy string    `json:"changed_by"`
}

// HistoryEntry is an immutable snapshot recorded each time a record exits a
// state. Datos is frozen at exit time and never aliases the live record.
type HistoryEntry struct {
	StateID       string         `json:"state_id"`
	StateName     string         `json:"state_name"`
	StateColor    string         `json:"state_color,omitempty"`
	EnteredAt     time.Time      `json:"entered_at"`
	ExitedAt      time.Time      `json:"exited_at"`
	DurationDays  float64        `json:"duration_days"`
	DurationHours float64        `json:"duration_hours"`
	Actor         string         `json:"actor"`
	Comment       string         `json:"comment,omitempty"`
	Datos         map[string]any `json:"datos,omitempty"`
}

// ActivityEntry is one line of a record's activity log.
type ActivityEntry struct {
	Kind    string    `json:"kind"`
	At      time.Time `json:"at"`
	Actor   string    `json:"actor"`
	Message string    `json:"message,omitempty"`
}

// Comment is a free-form note attached to a record.
type Comment struct {
	ID     string    `json:"id"`
	Author string    `json:"author"`
	Body   string    `json:"body"`
	At     time.Time `json:"at"`
}

// ChecklistItem is one entry of a record's checklist.
type ChecklistItem struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Completed bool   `json:"completed"`
}

// Attachment references an uploaded file by URL; the engine validates only
// metadata, never the bytes.
type Attachment struct {
	ID        string    `json:"id"`
	FieldCode string    `json:"field_code,omitempty"`
	Name      string    `json:"name"`
	Extension string    `json:"extension"`
	Size      int64     `json:"size"`
	URL       string    `json:"url"`
	UploadedA time.Time `json:"uploaded_at"`
}

// Signature is a digital sign-off captured on a record.
type Signature struct {
	Signer string    `json:"signer"`
	At     time.Time `json:"at"`
	Hash   string    `json:"hash"`
}

// Metrics are derived statistics about a record's progress and timeliness,
// recomputed on every mutation and never cached beyond the record snapshot.
type Metrics struct {
	ElapsedDays          float64 `json:"elapsed_days"`
	ElapsedHours         float64 `json:"elapsed_hours"`
	ChecklistCompletion  float64 `json:"checklist_completion"`
	FieldCompletionRatio float64 `json:"field_completion_ratio"`
	Overdue              bool    `json:"overdue"`
	Compliant            bool    `json:"compliant"`
}

// LockInfo describes who placed the cooperative business lock and why.
type LockInfo struct {
	LockedBy string    `json:"locked_by"`
	LockedAt time.Time `json:"locked_at"`
	Reason   string    `json:"reason,omitempty"`
}

// Record is a live instance progressing through a template's states. The
// version field implements optimistic concurrency: every state change carries
// the caller's last-known version and a mismatch aborts the mutation.
type Record struct {
	ID             string          `json:"id"`
	Code           string          `json:"code"`
	TemplateID     string          `json:"template_id" validate:"required"`
	OrganizationID string          `json:"organization_id" validate:"required"`
	CurrentState   CurrentState    `json:"current_state"`
	Datos          map[string]any  `json:"datos,omitempty"`
	Attachments    []Attachment    `json:"attachments,omitempty"`
	History        []HistoryEntry  `json:"history,omitempty"`
	Comments       []Comment       `json:"comments,omitempty"`
	Activity       []ActivityEntry `json:"activity,omitempty"`
	Checklist      []ChecklistItem `json:"checklist,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	Priority       string          `json:"priority,omitempty"`
	Responsible    string          `json:"responsible,omitempty"`
	Secondary      []string        `json:"secondary,omitempty"`
	Observers      []string        `json:"observers,omitempty"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	StartDate      *time.Time      `json:"start_date,omitempty"`
	CompletionDate *time.Time      `json:"completion_date,omitempty"`
	Metrics        Metrics         `json:"metrics"`
	Relations      []string        `json:"relations,omitempty"`
	Signatures     []Signature     `json:"signatures,omitempty"`
	Version        int             `json:"version"`
	Locked         bool            `json:"bloqueado"`
	LockInfo       *LockInfo       `json:"lock_info,omitempty"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      *time.Time      `json:"deleted_at,omitempty"`
}

// CloneDatos returns a deep copy of the record's field data. History
// snapshots must never alias the live map, so values are copied through
// JSON rather than shallow map assignment.
func CloneDatos(datos map[string]any) map[string]any {
	if datos == nil {
		return nil
	}

	raw, err := json.Marshal(datos)
	if err != nil {
		// Datos originates from JSON documents, so it is always marshalable;
		// fall back to a shallow copy for exotic in-process values.
		cloned := make(map[string]any, len(datos))
		for k, v := range datos {
			cloned[k] = v
		}

		return cloned
	}

	cloned := make(map[string]any, len(datos))
	if err := json.Unmarshal(raw, &cloned); err != nil {
		return nil
	}

	return cloned
}
