package models

import (
	"fmt"
	"time"
)

// SequenceScope identifies one correlative counter. Year and Month are only
// set when the scope's reset policy folds them into the key, so an annual
// counter in 2026 is a different counter than the same prefix in 2025.
type SequenceScope struct {
	OrganizationID string      `json:"organization_id"`
	EntityType     string      `json:"entity_type"`
	Prefix         string      `json:"prefijo"`
	Reset          ResetPolicy `json:"reset"`
	Year           int         `json:"year,omitempty"`
	Month          int         `json:"month,omitempty"`
}

// Key returns the stable storage key for this scope.
func (s SequenceScope) Key() string {
	key := fmt.Sprintf("%s:%s:%s", s.OrganizationID, s.EntityType, s.Prefix)

	switch s.Reset {
	case ResetAnnual:
		key = fmt.Sprintf("%s:%04d", key, s.Year)
	case ResetMonthly:
		key = fmt.Sprintf("%s:%04d:%02d", key, s.Year, s.Month)
	case ResetNone:
	}

	return key
}

// SequenceFormat controls how an issued number is rendered into a code.
type SequenceFormat struct {
	// Format template over {prefijo}, {año}, {mes} and {numero}. Empty means
	// the default "{prefijo}-{año}-{numero}" (or without {año} when the
	// reset policy is none).
	Template  string `json:"template,omitempty"`
	Padding   int    `json:"padding,omitempty"`
	Separator string `json:"separator,omitempty"`
	Suffix    string `json:"suffix,omitempty"`
}

// SequenceCounter is the persisted document backing one scope. LastNumber is
// only ever mutated through the storage layer's atomic increment.
type SequenceCounter struct {
	Key         string         `json:"key"`
	Scope       SequenceScope  `json:"scope"`
	LastNumber  int64          `json:"last_number"`
	Format      SequenceFormat `json:"format"`
	TotalIssued int64          `json:"total_issued"`
	LastIssued  *time.Time     `json:"last_issued,omitempty"`
	ErrorCount  int            `json:"consecutive_errors"`
	LastError   string         `json:"last_error,omitempty"`
}
