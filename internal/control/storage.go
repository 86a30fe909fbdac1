package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/walletsync/internal/core/config"
	redisclient "github.com/vietddude/walletsync/internal/infra/redis"
	"github.com/vietddude/walletsync/internal/infra/storage"
	"github.com/vietddude/walletsync/internal/infra/storage/file"
	"github.com/vietddude/walletsync/internal/infra/storage/memory"
	"github.com/vietddude/walletsync/internal/infra/storage/postgres"
)

// Backend names accepted in storage.backend.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// OpenStore opens the configured key-value backend. For postgres the embedded
// migrations are applied and the returned *postgres.DB is non-nil.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (storage.KVStore, *postgres.DB, error) {
	switch cfg.Backend {
	case BackendMemory:
		slog.Info("Using memory storage")
		return memory.NewMemoryStorage(), nil, nil

	case BackendFile, "":
		s, err := file.Open(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open file storage: %w", err)
		}
		slog.Info("Using file storage", "path", cfg.Path)
		return s, nil, nil

	case BackendRedis:
		c, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Using Redis storage")
		return c, nil, nil

	case BackendPostgres:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		slog.Info("Using PostgreSQL storage", "driver", cfg.Database.Driver)
		return postgres.NewKVRepo(db), db, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
