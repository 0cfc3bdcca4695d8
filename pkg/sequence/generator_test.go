package sequence

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gestia/gestia/pkg/models"
	"github.com/gestia/gestia/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryCounters is a minimal in-memory CounterRepository for generator tests.
type memoryCounters struct {
	mu       sync.Mutex
	counters map[string]*models.SequenceCounter
	failWith error
}

func newMemoryCounters() *memoryCounters {
	return &memoryCounters{counters: make(map[string]*models.SequenceCounter)}
}

func (m *memoryCounters) IncrementAndGet(_ context.Context, scope models.SequenceScope) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return 0, m.failWith
	}

	key := scope.Key()

	counter, ok := m.counters[key]
	if !ok {
		counter = &models.SequenceCounter{Key: key, Scope: scope}
		m.counters[key] = counter
	}

	counter.LastNumber++
	counter.TotalIssued++
	counter.ErrorCount = 0

	return counter.LastNumber, nil
}

func (m *memoryCounters) Get(_ context.Context, scope models.SequenceScope) (*models.SequenceCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counter, ok := m.counters[scope.Key()]
	if !ok {
		return nil, persistence.ErrSequenceFailure
	}

	return counter, nil
}

func (m *memoryCounters) SaveFormat(_ context.Context, _ models.SequenceScope, _ models.SequenceFormat) error {
	return nil
}

func (m *memoryCounters) RecordFailure(_ context.Context, scope models.SequenceScope, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := scope.Key()

	counter, ok := m.counters[key]
	if !ok {
		counter = &models.SequenceCounter{Key: key, Scope: scope}
		m.counters[key] = counter
	}

	counter.ErrorCount++
	counter.LastError = cause.Error()

	return nil
}

func testGenerator(counters persistence.CounterRepository) *Generator {
	return NewGenerator(counters, slog.Default())
}

func TestNextCode_AnnualScope(t *testing.T) {
	counters := newMemoryCounters()
	generator := testGenerator(counters)
	generator.now = func() time.Time {
		return time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)
	}

	policy := models.NumberingPolicy{Prefix: "AUD", Reset: models.ResetAnnual}
	scope := generator.ScopeFor("7", "auditoria", policy)

	first, err := generator.NextCode(context.Background(), scope, models.SequenceFormat{})
	require.NoError(t, err)
	assert.Equal(t, "AUD-2025-0001", first)

	second, err := generator.NextCode(context.Background(), scope, models.SequenceFormat{})
	require.NoError(t, err)
	assert.Equal(t, "AUD-2025-0002", second)

	// Rolling into 2026 yields a fresh scope starting at 1.
	generator.now = func() time.Time {
		return time.Date(2026, time.January, 2, 10, 0, 0, 0, time.UTC)
	}
	scope2026 := generator.ScopeFor("7", "auditoria", policy)

	code, err := generator.NextCode(context.Background(), scope2026, models.SequenceFormat{})
	require.NoError(t, err)
	assert.Equal(t, "AUD-2026-0001", code)
}

func TestScopeKey_ResetPolicies(t *testing.T) {
	generator := testGenerator(newMemoryCounters())
	generator.now = func() time.Time {
		return time.Date(2025, time.July, 15, 0, 0, 0, 0, time.UTC)
	}

	none := generator.ScopeFor("7", "auditoria", models.NumberingPolicy{Prefix: "AUD", Reset: models.ResetNone})
	annual := generator.ScopeFor("7", "auditoria", models.NumberingPolicy{Prefix: "AUD", Reset: models.ResetAnnual})
	monthly := generator.ScopeFor("7", "auditoria", models.NumberingPolicy{Prefix: "AUD", Reset: models.ResetMonthly})

	assert.Equal(t, "7:auditoria:AUD", none.Key())
	assert.Equal(t, "7:auditoria:AUD:2025", annual.Key())
	assert.Equal(t, "7:auditoria:AUD:2025:07", monthly.Key())
}

func TestRender(t *testing.T) {
	scope := models.SequenceScope{Prefix: "inc", Reset: models.ResetMonthly, Year: 2025, Month: 3}

	tests := []struct {
		name   string
		format models.SequenceFormat
		number int64
		want   string
	}{
		{name: "default monthly", format: models.SequenceFormat{}, number: 7, want: "INC-2025-03-0007"},
		{
			name:   "custom template and padding",
			format: models.SequenceFormat{Template: "{prefijo}/{año}/{numero}", Padding: 6},
			number: 42,
			want:   "INC/2025/000042",
		},
		{
			name:   "suffix with separator",
			format: models.SequenceFormat{Template: "{prefijo}-{numero}", Suffix: "qa", Separator: "-"},
			number: 3,
			want:   "INC-0003-QA",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(scope, tt.format, tt.number))
		})
	}
}

func TestNextNumber_ConcurrentIssuanceIsUnique(t *testing.T) {
	counters := newMemoryCounters()
	generator := testGenerator(counters)
	scope := generator.ScopeFor("7", "auditoria", models.NumberingPolicy{Prefix: "AUD", Reset: models.ResetNone})

	const callers = 50

	results := make(chan int64, callers)

	var wg sync.WaitGroup

	for range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			number, err := generator.NextNumber(context.Background(), scope)
			assert.NoError(t, err)
			results <- number
		}()
	}

	wg.Wait()
	close(results)

	issued := make([]int64, 0, callers)
	for number := range results {
		issued = append(issued, number)
	}

	sort.Slice(issued, func(i, j int) bool { return issued[i] < issued[j] })

	require.Len(t, issued, callers)

	for i, number := range issued {
		// Distinct and gapless: 1..N.
		assert.Equal(t, int64(i+1), number)
	}
}

func TestNextNumber_FailureIsRecorded(t *testing.T) {
	counters := newMemoryCounters()
	counters.failWith = errors.New("storage down")

	generator := testGenerator(counters)
	scope := generator.ScopeFor("7", "auditoria", models.NumberingPolicy{Prefix: "AUD"})

	_, err := generator.NextNumber(context.Background(), scope)
	require.Error(t, err)
	assert.True(t, persistence.IsSequenceFailure(err))

	counters.failWith = nil

	counter, err := counters.Get(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, 1, counter.ErrorCount)
	assert.Contains(t, counter.LastError, "storage down")
}
