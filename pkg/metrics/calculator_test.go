package metrics

import (
	"testing"
	"time"

	"github.com/gestia/gestia/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestCompute(t *testing.T) {
	created := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	now := created.Add(36 * time.Hour)
	due := created.Add(24 * time.Hour)

	state := &models.State{
		Fields: []models.Field{
			{Code: "auditor", Type: models.FieldTypeText},
			{Code: "alcance", Type: models.FieldTypeNumber},
			{Code: "sep", Type: models.FieldTypeSeparator},
		},
	}

	record := &models.Record{
		CreatedAt: created,
		DueDate:   &due,
		Datos:     map[string]any{"auditor": "X", "alcance": ""},
		Checklist: []models.ChecklistItem{
			{Completed: true},
			{Completed: true},
			{Completed: false},
			{Completed: false},
		},
	}

	m := Compute(record, state, now)

	assert.InDelta(t, 36.0, m.ElapsedHours, 1e-9)
	assert.InDelta(t, 1.5, m.ElapsedDays, 1e-9)
	assert.InDelta(t, 0.5, m.ChecklistCompletion, 1e-9)
	// Separator is presentation-only and excluded from the declared count.
	assert.InDelta(t, 0.5, m.FieldCompletionRatio, 1e-9)
	assert.True(t, m.Overdue)
	assert.False(t, m.Compliant)
}

func TestCompute_NoChecklistKeepsPreviousValue(t *testing.T) {
	record := &models.Record{
		CreatedAt: time.Now().Add(-time.Hour),
		Metrics:   models.Metrics{ChecklistCompletion: 0.75},
	}

	m := Compute(record, &models.State{}, time.Now())
	assert.InDelta(t, 0.75, m.ChecklistCompletion, 1e-9)
	assert.False(t, m.Overdue)
	assert.True(t, m.Compliant)
}

func TestElapsed(t *testing.T) {
	from := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	days, hours := Elapsed(from, from.Add(12*time.Hour))

	assert.InDelta(t, 0.5, days, 1e-9)
	assert.InDelta(t, 12.0, hours, 1e-9)
}
