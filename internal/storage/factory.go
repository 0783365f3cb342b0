package storage

import (
	"context"
	"fmt"

	"github.com/hyperjump/decora/internal/config"
)

// Open returns the Storage selected by cfg.Driver ("sqlite" or "mongo").
func Open(ctx context.Context, cfg *config.StorageConfig) (Storage, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLiteStorage(cfg.DatabasePath)
	case "mongo", "mongodb":
		return NewMongoStorage(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}
