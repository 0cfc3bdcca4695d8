// Package sequence issues unique human-readable record codes from
// scope-keyed atomic counters, e.g. "AUD-2025-0004". The increment itself
// always happens at the storage layer; this package only scopes keys and
// renders formats.
package sequence

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gestia/gestia/pkg/models"
	"github.com/gestia/gestia/pkg/persistence"
)

const defaultPadding = 4

// Generator mints sequence numbers and renders them into codes.
type Generator struct {
	counters persistence.CounterRepository
	logger   *slog.Logger
	now      func() time.Time
}

// NewGenerator creates a generator over the given counter storage.
func NewGenerator(counters persistence.CounterRepository, logger *slog.Logger) *Generator {
	return &Generator{
		counters: counters,
		logger:   logger.With("module", "sequence"),
		now:      time.Now,
	}
}

// ScopeFor builds the counter scope for an organization's numbering policy
// at the current instant. Year and month are folded into the scope only when
// the reset policy calls for them, so an annual counter restarts at 1 when
// the year rolls over.
func (g *Generator) ScopeFor(organizationID, entityType string, policy models.NumberingPolicy) models.SequenceScope {
	now := g.now().UTC()

	scope := models.SequenceScope{
		OrganizationID: organizationID,
		EntityType:     entityType,
		Prefix:         policy.Prefix,
		Reset:          policy.Reset,
	}

	switch policy.Reset {
	case models.ResetAnnual:
		scope.Year = now.Year()
	case models.ResetMonthly:
		scope.Year = now.Year()
		scope.Month = int(now.Month())
	case models.ResetNone:
	}

	return scope
}

// NextNumber atomically issues the next number for the scope. Failures are
// recorded on the counter document for observability and surfaced wrapped in
// ErrSequenceFailure; callers back off and retry rather than fabricate codes.
func (g *Generator) NextNumber(ctx context.Context, scope models.SequenceScope) (int64, error) {
	number, err := g.counters.IncrementAndGet(ctx, scope)
	if err != nil {
		if recordErr := g.counters.RecordFailure(ctx, scope, err); recordErr != nil {
			g.logger.WarnContext(ctx, "Failed to record counter failure",
				"key", scope.Key(), "error", recordErr)
		}

		return 0, persistence.NewSequenceError("NextNumber", scope.Key(),
			fmt.Errorf("%w: %w", persistence.ErrSequenceFailure, err))
	}

	return number, nil
}

// NextCode issues the next number and renders it in one call.
func (g *Generator) NextCode(ctx context.Context, scope models.SequenceScope, format models.SequenceFormat) (string, error) {
	number, err := g.NextNumber(ctx, scope)
	if err != nil {
		return "", err
	}

	return Render(scope, format, number), nil
}

// Render applies the format template to an issued number. Supported tokens:
// {prefijo}, {año}, {mes}, {numero}. The result is upper-cased.
func Render(scope models.SequenceScope, format models.SequenceFormat, number int64) string {
	template := format.Template
	if template == "" {
		template = defaultTemplate(scope, format)
	}

	padding := format.Padding
	if padding <= 0 {
		padding = defaultPadding
	}

	replacer := strings.NewReplacer(
		"{prefijo}", scope.Prefix,
		"{año}", fmt.Sprintf("%04d", scope.Year),
		"{mes}", fmt.Sprintf("%02d", scope.Month),
		"{numero}", fmt.Sprintf("%0*d", padding, number),
	)

	code := replacer.Replace(template)

	if format.Suffix != "" {
		separator := format.Separator
		if separator == "" {
			separator = "-"
		}

		code += separator + format.Suffix
	}

	return strings.ToUpper(code)
}

func defaultTemplate(scope models.SequenceScope, format models.SequenceFormat) string {
	separator := format.Separator
	if separator == "" {
		separator = "-"
	}

	parts := []string{"{prefijo}"}

	switch scope.Reset {
	case models.ResetAnnual:
		parts = append(parts, "{año}")
	case models.ResetMonthly:
		parts = append(parts, "{año}", "{mes}")
	case models.ResetNone:
	}

	parts = append(parts, "{numero}")

	return strings.Join(parts, separator)
}
