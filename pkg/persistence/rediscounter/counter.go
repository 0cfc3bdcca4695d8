// Package rediscounter provides a Redis-backed sequence counter. The
// increment is Redis INCR, so numbers are unique and gapless across
// processes without any application-level locking. Template and record
// storage stay on another provider; only the counter lives here.
package rediscounter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/gestia/gestia/pkg/models"
)

const keyPrefix = "gestia:seq:"

// CounterRepository implements persistence.CounterRepository on Redis.
type CounterRepository struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewCounterRepository connects to Redis and returns a counter repository.
func NewCounterRepository(ctx context.Context, logger *slog.Logger, addr, password string, db int) (*CounterRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", addr, "db", db)

	return &CounterRepository{
		client: client,
		logger: logger.With("module", "rediscounter"),
	}, nil
}

// IncrementAndGet atomically increments the counter for a scope and returns
// the new value.
func (r *CounterRepository) IncrementAndGet(ctx context.Context, scope models.SequenceScope) (int64, error) {
	number, err := r.client.Incr(ctx, counterKey(scope)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence counter: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	pipe := r.client.Pipeline()
	pipe.HIncrBy(ctx, metaKey(scope), "total_issued", 1)
	pipe.HSet(ctx, metaKey(scope), "last_issued", now, "consecutive_errors", 0, "last_error", "")

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.WarnContext(ctx, "Failed to update counter metadata", "key", scope.Key(), "error", err)
	}

	return number, nil
}

// Get returns the counter for a scope, or nil when none was ever issued.
func (r *CounterRepository) Get(ctx context.Context, scope models.SequenceScope) (*models.SequenceCounter, error) {
	number, err := r.client.Get(ctx, counterKey(scope)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load sequence counter: %w", err)
	}

	meta, err := r.client.HGetAll(ctx, metaKey(scope)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load counter metadata: %w", err)
	}

	if number == 0 && len(meta) == 0 {
		return nil, nil
	}

	counter := &models.SequenceCounter{
		Key:        scope.Key(),
		Scope:      scope,
		LastNumber: number,
		LastError:  meta["last_error"],
	}

	if issued := meta["total_issued"]; issued != "" {
		counter.TotalIssued, _ = strconv.ParseInt(issued, 10, 64)
	}

	if errCount := meta["consecutive_errors"]; errCount != "" {
		counter.ErrorCount, _ = strconv.Atoi(errCount)
	}

	if issuedAt := meta["last_issued"]; issuedAt != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, issuedAt); err == nil {
			counter.LastIssued = &parsed
		}
	}

	if formatRaw := meta["format"]; formatRaw != "" {
		if err := json.Unmarshal([]byte(formatRaw), &counter.Format); err != nil {
			return nil, fmt.Errorf("failed to unmarshal counter format: %w", err)
		}
	}

	return counter, nil
}

// SaveFormat stores the rendering format alongside the counter.
func (r *CounterRepository) SaveFormat(ctx context.Context, scope models.SequenceScope, format models.SequenceFormat) error {
	formatBytes, err := json.Marshal(format)
	if err != nil {
		return fmt.Errorf("failed to marshal counter format: %w", err)
	}

	if err := r.client.HSet(ctx, metaKey(scope), "format", string(formatBytes)).Err(); err != nil {
		return fmt.Errorf("failed to save counter format: %w", err)
	}

	return nil
}

// RecordFailure bumps the failure streak for a scope without consuming a
// number.
func (r *CounterRepository) RecordFailure(ctx context.Context, scope models.SequenceScope, cause error) error {
	message := ""
	if cause != nil {
		message = cause.Error()
	}

	pipe := r.client.Pipeline()
	pipe.HIncrBy(ctx, metaKey(scope), "consecutive_errors", 1)
	pipe.HSet(ctx, metaKey(scope), "last_error", message)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record counter failure: %w", err)
	}

	return nil
}

// Close releases the Redis connection.
func (r *CounterRepository) Close() error {
	return r.client.Close()
}

func counterKey(scope models.SequenceScope) string {
	return keyPrefix + scope.Key()
}

func metaKey(scope models.SequenceScope) string {
	return keyPrefix + scope.Key() + ":meta"
}
