// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/gestia/gestia/pkg/persistence"
	"github.com/gestia/gestia/pkg/persistence/file"
	"github.com/gestia/gestia/pkg/persistence/postgresql"
	"github.com/gestia/gestia/pkg/persistence/rediscounter"
)

var supportedPersistenceProviders = []string{"file", "postgresql", "postgres"}

// NewPersistence builds the storage layer from a database URL. A
// postgresql:// URL opens a PostgreSQL store and runs migrations; anything
// else is treated as a file path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgresql", "postgres":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

// NewCounterRepository selects the sequence counter backend. When a Redis
// URL is given the counters move to Redis so several API instances share the
// same atomic sequence; otherwise the main store's counters are used.
func NewCounterRepository(
	ctx context.Context,
	logger *slog.Logger,
	redisURL string,
	p persistence.Persistence,
) (persistence.CounterRepository, error) {
	if redisURL == "" {
		return p.CounterRepository(), nil
	}

	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	return rediscounter.NewCounterRepository(ctx, logger, options.Addr, options.Password, options.DB)
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
