package file

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gestia/gestia/pkg/models"
	"github.com/gestia/gestia/pkg/persistence"
)

func nowUTC() time.Time {
	return time.Now().UTC()
}

// RecordRepository stores record documents as JSON files. A repository-wide
// mutex makes the version-checked save an atomic read-modify-write within
// the process.
type RecordRepository struct {
	dir string
	mu  sync.Mutex
}

// NewRecordRepository creates a record repository under root/records.
func NewRecordRepository(root string) *RecordRepository {
	return &RecordRepository{dir: filepath.Join(root, "records")}
}

// GetByID loads a record; soft-deleted documents are treated as absent.
func (r *RecordRepository) GetByID(_ context.Context, id string) (*models.Record, error) {
	var record models.Record

	found, err := readDocument(r.dir, id, &record)
	if err != nil {
		return nil, err
	}

	if !found || record.DeletedAt != nil {
		return nil, nil
	}

	return &record, nil
}

// Create writes a brand-new record. A code collision is a correctness
// failure and reported as ErrDuplicateCode.
func (r *RecordRepository) Create(ctx context.Context, record *models.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, err := listDocuments(r.dir)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if id == record.ID {
			return persistence.NewRecordError("Create", record.ID, persistence.ErrDuplicateCode)
		}

		existing, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if existing != nil && existing.Code == record.Code && existing.OrganizationID == record.OrganizationID {
			return persistence.NewRecordError("Create", record.ID, persistence.ErrDuplicateCode)
		}
	}

	return writeDocument(r.dir, record.ID, record)
}

// Save replaces the record document only if the stored version still equals
// expectedVersion; otherwise the document is untouched and the caller must
// reload and retry.
func (r *RecordRepository) Save(_ context.Context, record *models.Record, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stored models.Record

	found, err := readDocument(r.dir, record.ID, &stored)
	if err != nil {
		return err
	}

	if !found {
		return persistence.NewRecordError("Save", record.ID, persistence.ErrRecordNotFound)
	}

	if stored.Version != expectedVersion {
		return persistence.NewRecordError("Save", record.ID, persistence.ErrConcurrencyConflict)
	}

	return writeDocument(r.dir, record.ID, record)
}

// SoftDelete marks a record deleted without removing the document.
func (r *RecordRepository) SoftDelete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var record models.Record

	found, err := readDocument(r.dir, id, &record)
	if err != nil {
		return err
	}

	if !found {
		return nil
	}

	now := nowUTC()
	record.DeletedAt = &now

	return writeDocument(r.dir, id, &record)
}

// List returns filtered, sorted, paginated records loaded in memory.
func (r *RecordRepository) List(ctx context.Context, opts persistence.ListRecordsOptions) (*persistence.RecordListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.SortBy == "" {
		opts.SortBy = "created_at"
	}

	if opts.SortOrder == "" {
		opts.SortOrder = "desc"
	}

	allowedSorts := map[string]bool{"created_at": true, "updated_at": true, "code": true}
	if !allowedSorts[opts.SortBy] {
		return nil, fmt.Errorf("%w: %s", persistence.ErrInvalidSortField, opts.SortBy)
	}

	ids, err := listDocuments(r.dir)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.Record, 0, len(ids))

	for _, id := range ids {
		record, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if record == nil {
			continue
		}

		if opts.TemplateID != "" && record.TemplateID != opts.TemplateID {
			continue
		}

		if opts.OrganizationID != "" && record.OrganizationID != opts.OrganizationID {
			continue
		}

		if opts.StateID != "" && record.CurrentState.StateID != opts.StateID {
			continue
		}

		if opts.Responsible != "" && record.Responsible != opts.Responsible {
			continue
		}

		filtered = append(filtered, record)
	}

	sortRecords(filtered, opts.SortBy, opts.SortOrder)

	totalCount := int64(len(filtered))

	start := opts.Offset
	if start > len(filtered) {
		start = len(filtered)
	}

	end := start + opts.Limit
	if end > len(filtered) {
		end = len(filtered)
	}

	return &persistence.RecordListResult{
		Records:     filtered[start:end],
		TotalCount:  totalCount,
		HasNextPage: end < len(filtered),
	}, nil
}

func sortRecords(records []*models.Record, sortBy, sortOrder string) {
	sort.SliceStable(records, func(i, j int) bool {
		var less bool

		switch sortBy {
		case "code":
			less = records[i].Code < records[j].Code
		case "updated_at":
			less = records[i].UpdatedAt.Before(records[j].UpdatedAt)
		default:
			less = records[i].CreatedAt.Before(records[j].CreatedAt)
		}

		if sortOrder == "desc" {
			return !less
		}

		return less
	})
}
