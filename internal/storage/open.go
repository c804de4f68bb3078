// Package storage opens the configured store backend.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jengzang/drivesense-backend/internal/config"
	"github.com/jengzang/drivesense-backend/internal/database"
	"github.com/jengzang/drivesense-backend/internal/repository"
	"github.com/jengzang/drivesense-backend/internal/repository/mongo"
)

// CloseFunc releases the backend
type CloseFunc func(ctx context.Context) error

// Open connects to the backend named by cfg.DBDriver
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Stores, CloseFunc, error) {
	switch cfg.DBDriver {
	case "sqlite":
		db, err := database.Open(ctx, database.Config{Path: cfg.DBPath}, logger)
		if err != nil {
			return repository.Stores{}, nil, err
		}
		return repository.NewSQLiteStores(db), func(context.Context) error { return db.Close() }, nil

	case "mongo":
		store, err := mongo.Connect(ctx, cfg.MongoURI, cfg.DBName)
		if err != nil {
			return repository.Stores{}, nil, err
		}
		logger.Info("connected to MongoDB", "database", cfg.DBName)
		return store.Stores(), store.Close, nil
	}
	return repository.Stores{}, nil, fmt.Errorf("unknown store driver %q", cfg.DBDriver)
}
