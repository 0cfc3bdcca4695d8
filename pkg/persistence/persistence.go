// Package persistence provides the storage abstraction for templates,
// records and sequence counters. Implementations must supply atomic
// read-modify-write for records (optimistic versioning) and a true atomic
// increment for counters.
package persistence

import (
	"context"

	"github.com/gestia/gestia/pkg/models"
)

// ListRecordsOptions filters and paginates record listings.
type ListRecordsOptions struct {
	TemplateID     string
	OrganizationID string
	StateID        string
	Responsible    string
	Limit          int
	Offset         int
	SortBy         string
	SortOrder      string
}

// RecordListResult is one page of records.
type RecordListResult struct {
	Records     []*models.Record
	TotalCount  int64
	HasNextPage bool
}

// TemplateRepository stores template documents. Templates are soft-deleted
// only; Get never returns deleted documents.
type TemplateRepository interface {
	GetByID(ctx context.Context, id string) (*models.Template, error)
	GetByCode(ctx context.Context, organizationID, code string) (*models.Template, error)
	GetAll(ctx context.Context, organizationID string) ([]*models.Template, error)
	Save(ctx context.Context, template *models.Template) error
	SoftDelete(ctx context.Context, id string) error
}

// RecordRepository stores record documents. Save enforces optimistic
// concurrency: the write succeeds only if the stored version still equals
// expectedVersion, otherwise ErrConcurrencyConflict is returned and the
// stored document is untouched.
type RecordRepository interface {
	GetByID(ctx context.Context, id string) (*models.Record, error)
	List(ctx context.Context, opts ListRecordsOptions) (*RecordListResult, error)
	Create(ctx context.Context, record *models.Record) error
	Save(ctx context.Context, record *models.Record, expectedVersion int) error
	SoftDelete(ctx context.Context, id string) error
}

// CounterRepository stores sequence counters. IncrementAndGet must be a
// single atomic increment-and-return at the storage layer; it is never
// allowed to be read-then-write in application code.
type CounterRepository interface {
	IncrementAndGet(ctx context.Context, scope models.SequenceScope) (int64, error)
	Get(ctx context.Context, scope models.SequenceScope) (*models.SequenceCounter, error)
	SaveFormat(ctx context.Context, scope models.SequenceScope, format models.SequenceFormat) error
	RecordFailure(ctx context.Context, scope models.SequenceScope, cause error) error
}

// Persistence aggregates the repositories of one storage provider.
type Persistence interface {
	TemplateRepository() TemplateRepository
	RecordRepository() RecordRepository
	CounterRepository() CounterRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
