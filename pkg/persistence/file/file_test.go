package file

import (
	"context"
	"sync"
	"testing"

	"github.com/gestia/gestia/pkg/models"
	"github.com/gestia/gestia/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(id, code string) *models.Record {
	return &models.Record{
		ID:             id,
		Code:           code,
		TemplateID:     "tpl-1",
		OrganizationID: "org-1",
		Version:        1,
	}
}

func TestRecordRepository_SaveEnforcesVersion(t *testing.T) {
	repo := NewRecordRepository(t.TempDir())
	ctx := context.Background()

	record := testRecord("rec-1", "AUD-2025-0001")
	require.NoError(t, repo.Create(ctx, record))

	record.Priority = "alta"
	record.Version = 2
	require.NoError(t, repo.Save(ctx, record, 1))

	// A stale writer still carrying version 1 must be rejected.
	stale := testRecord("rec-1", "AUD-2025-0001")
	stale.Priority = "baja"
	stale.Version = 2

	err := repo.Save(ctx, stale, 1)
	require.Error(t, err)
	assert.True(t, persistence.IsConcurrencyConflict(err))

	// The stored document is exactly what the first writer saved.
	stored, err := repo.GetByID(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "alta", stored.Priority)
	assert.Equal(t, 2, stored.Version)
}

func TestRecordRepository_CreateRejectsDuplicateCode(t *testing.T) {
	repo := NewRecordRepository(t.TempDir())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testRecord("rec-1", "AUD-2025-0001")))

	err := repo.Create(ctx, testRecord("rec-2", "AUD-2025-0001"))
	require.Error(t, err)
	assert.True(t, persistence.IsDuplicateCode(err))
}

func TestRecordRepository_SoftDeleteHidesRecord(t *testing.T) {
	repo := NewRecordRepository(t.TempDir())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testRecord("rec-1", "AUD-2025-0001")))
	require.NoError(t, repo.SoftDelete(ctx, "rec-1"))

	record, err := repo.GetByID(ctx, "rec-1")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestRecordRepository_ListFiltersAndPaginates(t *testing.T) {
	repo := NewRecordRepository(t.TempDir())
	ctx := context.Background()

	for _, record := range []*models.Record{
		testRecord("rec-1", "AUD-0001"),
		testRecord("rec-2", "AUD-0002"),
		testRecord("rec-3", "AUD-0003"),
	} {
		require.NoError(t, repo.Create(ctx, record))
	}

	other := testRecord("rec-4", "INC-0001")
	other.TemplateID = "tpl-2"
	require.NoError(t, repo.Create(ctx, other))

	result, err := repo.List(ctx, persistence.ListRecordsOptions{
		TemplateID: "tpl-1",
		SortBy:     "code",
		SortOrder:  "asc",
		Limit:      2,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3), result.TotalCount)
	assert.True(t, result.HasNextPage)
	require.Len(t, result.Records, 2)
	assert.Equal(t, "AUD-0001", result.Records[0].Code)

	_, err = repo.List(ctx, persistence.ListRecordsOptions{SortBy: "priority; DROP TABLE"})
	assert.ErrorIs(t, err, persistence.ErrInvalidSortField)
}

func TestTemplateRepository_RoundTripAndSoftDelete(t *testing.T) {
	repo := NewTemplateRepository(t.TempDir())
	ctx := context.Background()

	template := &models.Template{
		ID:             "tpl-1",
		Code:           "AUD",
		Name:           "Auditorias",
		OrganizationID: "org-1",
	}

	require.NoError(t, repo.Save(ctx, template))

	byCode, err := repo.GetByCode(ctx, "org-1", "AUD")
	require.NoError(t, err)
	require.NotNil(t, byCode)
	assert.Equal(t, "tpl-1", byCode.ID)

	require.NoError(t, repo.SoftDelete(ctx, "tpl-1"))

	gone, err := repo.GetByID(ctx, "tpl-1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestCounterRepository_ConcurrentIncrementsAreDistinct(t *testing.T) {
	repo := NewCounterRepository(t.TempDir())
	ctx := context.Background()

	scope := models.SequenceScope{
		OrganizationID: "org-1",
		EntityType:     "auditoria",
		Prefix:         "AUD",
		Reset:          models.ResetAnnual,
		Year:           2025,
	}

	const callers = 20

	numbers := make(chan int64, callers)

	var wg sync.WaitGroup

	for range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			number, err := repo.IncrementAndGet(ctx, scope)
			assert.NoError(t, err)
			numbers <- number
		}()
	}

	wg.Wait()
	close(numbers)

	seen := make(map[int64]bool, callers)
	for number := range numbers {
		assert.False(t, seen[number], "duplicate number %d", number)
		seen[number] = true
	}

	counter, err := repo.Get(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, int64(callers), counter.LastNumber)
	assert.Equal(t, int64(callers), counter.TotalIssued)
}

func TestCounterRepository_RecordFailure(t *testing.T) {
	repo := NewCounterRepository(t.TempDir())
	ctx := context.Background()

	scope := models.SequenceScope{OrganizationID: "org-1", EntityType: "auditoria", Prefix: "AUD"}

	require.NoError(t, repo.RecordFailure(ctx, scope, assert.AnError))
	require.NoError(t, repo.RecordFailure(ctx, scope, assert.AnError))

	counter, err := repo.Get(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, 2, counter.ErrorCount)
	assert.NotEmpty(t, counter.LastError)

	// A successful issue resets the streak.
	_, err = repo.IncrementAndGet(ctx, scope)
	require.NoError(t, err)

	counter, err = repo.Get(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, 0, counter.ErrorCount)
}
