// Package metrics derives progress and timeliness statistics from a record
// snapshot. Everything is a pure function of its inputs; nothing is cached
// beyond the record document itself.
package metrics

import (
	"time"

	"github.com/gestia/gestia/pkg/fields"
	"github.com/gestia/gestia/pkg/models"
)

const hoursPerDay = 24

// Compute recalculates a record's metrics against its current state schema.
// Called after every mutation that could change the inputs.
func Compute(record *models.Record, state *models.State, now time.Time) models.Metrics {
	m := models.Metrics{
		ChecklistCompletion:  checklistCompletion(record.Checklist, record.Metrics.ChecklistCompletion),
		FieldCompletionRatio: fieldCompletion(record.Datos, state),
	}

	if !record.CreatedAt.IsZero() {
		elapsed := now.Sub(record.CreatedAt)
		m.ElapsedHours = elapsed.Hours()
		m.ElapsedDays = elapsed.Hours() / hoursPerDay
	}

	m.Overdue = record.DueDate != nil && record.DueDate.Before(now)
	m.Compliant = !m.Overdue

	return m
}

// checklistCompletion returns completed/total, or the previous value when the
// record has no checklist at all.
func checklistCompletion(checklist []models.ChecklistItem, previous float64) float64 {
	if len(checklist) == 0 {
		return previous
	}

	completed := 0

	for _, item := range checklist {
		if item.Completed {
			completed++
		}
	}

	return float64(completed) / float64(len(checklist))
}

// fieldCompletion is the ratio of non-empty datos entries to the data-bearing
// fields declared by the current state.
func fieldCompletion(datos map[string]any, state *models.State) float64 {
	if state == nil {
		return 0
	}

	declared := 0
	filled := 0

	for _, field := range state.Fields {
		if field.Type.PresentationOnly() {
			continue
		}

		declared++

		if value, ok := datos[field.Code]; ok && !fields.IsEmpty(value) {
			filled++
		}
	}

	if declared == 0 {
		return 0
	}

	return float64(filled) / float64(declared)
}

// Elapsed splits a duration into fractional days and hours, the form history
// entries record.
func Elapsed(from, to time.Time) (days, hours float64) {
	elapsed := to.Sub(from)
	hours = elapsed.Hours()
	days = hours / hoursPerDay

	return days, hours
}
