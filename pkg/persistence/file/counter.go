package file

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/gestia/gestia/pkg/models"
	"github.com/gestia/gestia/pkg/persistence"
)

// CounterRepository stores sequence counters as JSON files. The mutex makes
// increment-and-get atomic for a single process; multi-process deployments
// use the PostgreSQL or Redis counter providers instead.
type CounterRepository struct {
	dir string
	mu  sync.Mutex
}

// NewCounterRepository creates a counter repository under root/counters.
func NewCounterRepository(root string) *CounterRepository {
	return &CounterRepository{dir: filepath.Join(root, "counters")}
}

// IncrementAndGet issues the next number for the scope, creating the counter
// lazily on first use.
func (r *CounterRepository) IncrementAndGet(_ context.Context, scope models.SequenceScope) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counter, err := r.load(scope)
	if err != nil {
		return 0, err
	}

	counter.LastNumber++
	counter.TotalIssued++
	counter.ErrorCount = 0
	counter.LastError = ""

	now := nowUTC()
	counter.LastIssued = &now

	if err := writeDocument(r.dir, sanitizeKey(counter.Key), counter); err != nil {
		return 0, persistence.NewSequenceError("IncrementAndGet", counter.Key, err)
	}

	return counter.LastNumber, nil
}

// Get returns the counter document for a scope, or nil when never used.
func (r *CounterRepository) Get(_ context.Context, scope models.SequenceScope) (*models.SequenceCounter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var counter models.SequenceCounter

	found, err := readDocument(r.dir, sanitizeKey(scope.Key()), &counter)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, nil
	}

	return &counter, nil
}

// SaveFormat stores the scope's rendering configuration.
func (r *CounterRepository) SaveFormat(_ context.Context, scope models.SequenceScope, format models.SequenceFormat) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	counter, err := r.load(scope)
	if err != nil {
		return err
	}

	counter.Format = format

	return writeDocument(r.dir, sanitizeKey(counter.Key), counter)
}

// RecordFailure bumps the consecutive-error count for observability.
func (r *CounterRepository) RecordFailure(_ context.Context, scope models.SequenceScope, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	counter, err := r.load(scope)
	if err != nil {
		return err
	}

	counter.ErrorCount++
	counter.LastError = cause.Error()

	return writeDocument(r.dir, sanitizeKey(counter.Key), counter)
}

func (r *CounterRepository) load(scope models.SequenceScope) (*models.SequenceCounter, error) {
	key := scope.Key()

	var counter models.SequenceCounter

	found, err := readDocument(r.dir, sanitizeKey(key), &counter)
	if err != nil {
		return nil, err
	}

	if !found {
		counter = models.SequenceCounter{Key: key, Scope: scope}
	}

	return &counter, nil
}
