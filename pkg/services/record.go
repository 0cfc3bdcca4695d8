package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/gestia/gestia/pkg/lifecycle"
	"github.com/gestia/gestia/pkg/models"
	"github.com/gestia/gestia/pkg/persistence"
)

// Record exposes the record lifecycle to transport layers.
type Record struct {
	engine  *lifecycle.Engine
	records persistence.RecordRepository
	logger  *slog.Logger
}

// NewRecord creates a record service.
func NewRecord(engine *lifecycle.Engine, records persistence.RecordRepository, logger *slog.Logger) *Record {
	return &Record{
		engine:  engine,
		records: records,
		logger:  logger.With("module", "record_service"),
	}
}

// Get returns a record by id.
func (s *Record) Get(ctx context.Context, id string) (*models.Record, error) {
	record, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if record == nil {
		return nil, persistence.NewRecordError("Get", id, persistence.ErrRecordNotFound)
	}

	return record, nil
}

// ListRecordsRequest contains options for listing records.
type ListRecordsRequest struct {
	TemplateID     string
	OrganizationID string
	StateID        string
	Responsible    string
	Limit          int
	Offset         int
	SortBy         string
	SortOrder      string
}

// ListRecordsResponse contains one page of records.
type ListRecordsResponse struct {
	Records     []*models.Record `json:"records"`
	TotalCount  int64            `json:"total_count"`
	HasNextPage bool             `json:"has_next_page"`
}

// List retrieves records with filtering, sorting and pagination.
func (s *Record) List(ctx context.Context, req ListRecordsRequest) (*ListRecordsResponse, error) {
	if err := validateListRecordsRequest(&req); err != nil {
		return nil, err
	}

	result, err := s.records.List(ctx, persistence.ListRecordsOptions{
		TemplateID:     req.TemplateID,
		OrganizationID: req.OrganizationID,
		StateID:        req.StateID,
		Responsible:    req.Responsible,
		Limit:          req.Limit,
		Offset:         req.Offset,
		SortBy:         req.SortBy,
		SortOrder:      req.SortOrder,
	})
	if err != nil {
		if errors.Is(err, persistence.ErrInvalidSortField) {
			return nil, ErrInvalidSortField
		}

		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	return &ListRecordsResponse{
		Records:     result.Records,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

// Create builds a record in its template's initial state.
func (s *Record) Create(ctx context.Context, req lifecycle.CreateRequest) (*models.Record, error) {
	if req.Actor == "" {
		return nil, ErrEmptyActor
	}

	return s.engine.Create(ctx, req)
}

// ChangeState runs the guarded transition.
func (s *Record) ChangeState(ctx context.Context, req lifecycle.ChangeStateRequest) (*models.Record, error) {
	if req.Actor == "" {
		return nil, ErrEmptyActor
	}

	return s.engine.ChangeState(ctx, req)
}

// UpdateData applies direct field edits.
func (s *Record) UpdateData(ctx context.Context, recordID string, changes map[string]any, actor string, expectedVersion int) (*models.Record, error) {
	if actor == "" {
		return nil, ErrEmptyActor
	}

	if len(changes) == 0 {
		return nil, ErrInvalidRequest
	}

	return s.engine.UpdateData(ctx, recordID, changes, actor, expectedVersion)
}

// ValidateCompletion checks the record's required fields for its current state.
func (s *Record) ValidateCompletion(ctx context.Context, recordID string) error {
	return s.engine.ValidateCompletion(ctx, recordID)
}

// Clone duplicates a record into a fresh draft.
func (s *Record) Clone(ctx context.Context, recordID, actor string) (*models.Record, error) {
	if actor == "" {
		return nil, ErrEmptyActor
	}

	return s.engine.Clone(ctx, recordID, actor)
}

// Delete soft-deletes a record.
func (s *Record) Delete(ctx context.Context, id string) error {
	return s.records.SoftDelete(ctx, id)
}

// NextSequenceCode mints the next code for a template without creating a
// record.
func (s *Record) NextSequenceCode(ctx context.Context, templateID string) (string, error) {
	return s.engine.NextSequenceCode(ctx, templateID)
}

func validateListRecordsRequest(req *ListRecordsRequest) error {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.SortBy == "" {
		req.SortBy = "created_at"
	}

	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}

	if !slices.Contains([]string{"created_at", "updated_at", "code"}, req.SortBy) {
		return ErrInvalidSortField
	}

	if !slices.Contains([]string{"asc", "desc"}, req.SortOrder) {
		return ErrInvalidSortOrder
	}

	return nil
}
