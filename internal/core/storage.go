package core

import (
	"context"
	"fmt"

	"entitycache/internal/blob"
	"entitycache/internal/infra/persistence/memory"
	"entitycache/internal/infra/persistence/objectstore"
	"entitycache/internal/infra/persistence/postgres"
	"entitycache/internal/infra/persistence/sqlite"
	"entitycache/pkg/domain"
)

// StorageDriver identifies a snapshot storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-process only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageBlob     StorageDriver = "blob"     // objects in a blob store (fs, s3)
)

// StorageConfig selects and configures the snapshot backend. Empty Driver
// means sqlite.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string

	Blob            blob.Config
	BlobPrefix      string
	BlobCompression string
}

// OpenSnapshotStore opens the backend named by cfg.Driver.
func OpenSnapshotStore(ctx context.Context, cfg StorageConfig) (domain.SnapshotStore, error) {
	switch cfg.Driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite, "":
		return sqlite.NewStore(cfg.SQLitePath)
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	case StorageBlob:
		compression, err := objectstore.ParseCompression(cfg.BlobCompression)
		if err != nil {
			return nil, err
		}
		objects, err := blob.Open(ctx, cfg.Blob)
		if err != nil {
			return nil, fmt.Errorf("open blob store: %w", err)
		}
		return objectstore.New(objects, objectstore.WithPrefix(cfg.BlobPrefix), objectstore.WithCompression(compression))
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}
