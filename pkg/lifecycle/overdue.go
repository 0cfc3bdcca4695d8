package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/gestia/gestia/pkg/eventbus"
	"github.com/gestia/gestia/pkg/events"
	"github.com/gestia/gestia/pkg/persistence"
)

const overdueScanPageSize = 100

// OverdueScanner periodically walks an organization's open records and emits
// an overdue event for each one past its due date. Emitting is idempotent on
// the consumer side; the scanner itself keeps no state between passes.
type OverdueScanner struct {
	records       persistence.RecordRepository
	publisher     eventbus.EventPublisher
	logger        *slog.Logger
	cron          *cron.Cron
	organizations []string
	now           func() time.Time
}

// NewOverdueScanner creates a scanner over the given organizations.
func NewOverdueScanner(
	records persistence.RecordRepository,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	organizations []string,
) *OverdueScanner {
	return &OverdueScanner{
		records:       records,
		publisher:     publisher,
		logger:        logger.With("module", "overdue_scanner"),
		cron:          cron.New(),
		organizations: organizations,
		now:           time.Now,
	}
}

// Start schedules the scan with the given cron expression and runs until the
// context is cancelled.
func (s *OverdueScanner) Start(ctx context.Context, cronExpr string) error {
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	_, err := s.cron.AddFunc(cronExpr, func() {
		if err := s.Scan(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Overdue scan failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule overdue scan: %w", err)
	}

	s.cron.Start()

	go func() {
		<-ctx.Done()
		s.cron.Stop()
	}()

	s.logger.InfoContext(ctx, "Overdue scanner started", "cron", cronExpr)

	return nil
}

// Scan runs one pass over every configured organization.
func (s *OverdueScanner) Scan(ctx context.Context) error {
	now := s.now().UTC()

	for _, organizationID := range s.organizations {
		if err := s.scanOrganization(ctx, organizationID, now); err != nil {
			return err
		}
	}

	return nil
}

func (s *OverdueScanner) scanOrganization(ctx context.Context, organizationID string, now time.Time) error {
	offset := 0

	for {
		page, err := s.records.List(ctx, persistence.ListRecordsOptions{
			OrganizationID: organizationID,
			Limit:          overdueScanPageSize,
			Offset:         offset,
			SortBy:         "created_at",
			SortOrder:      "asc",
		})
		if err != nil {
			return fmt.Errorf("failed to list records for overdue scan: %w", err)
		}

		for _, record := range page.Records {
			if record.DueDate == nil || !record.DueDate.Before(now) {
				continue
			}

			if record.CompletionDate != nil {
				continue
			}

			event := events.RecordOverdue{
				BaseEvent: events.BaseEvent{
					ID:             uuid.New().String(),
					Type:           events.RecordOverdueEvent,
					Timestamp:      now,
					OrganizationID: organizationID,
				},
				RecordID:   record.ID,
				TemplateID: record.TemplateID,
				StateID:    record.CurrentState.StateID,
				DueDate:    *record.DueDate,
			}

			if err := s.publisher.Publish(ctx, record.ID, event); err != nil {
				s.logger.ErrorContext(ctx, "Failed to publish overdue event",
					"record_id", record.ID, "error", err)
			}
		}

		if !page.HasNextPage {
			return nil
		}

		offset += overdueScanPageSize
	}
}
