package database

import (
	"fmt"
	"os"

	"ttl-cache-store/internal/config"
	"ttl-cache-store/internal/logger"
	"ttl-cache-store/internal/repository"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to the configured backend and prepares the collection.
// The caller owns the returned repository and must Close it.
func Open(cfg *config.Config, log *zap.Logger) (repository.Repository, error) {
	if log == nil {
		log = zap.NewNop()
	}

	switch cfg.Backend {
	case config.BackendMemory:
		log.Warn("using in-memory backend, entries do not survive a restart")
		return repository.NewMemoryRepository(), nil

	case config.BackendBolt:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("database: data dir: %w", err)
		}
		repo, err := repository.OpenBoltRepository(cfg.DatabasePath(), cfg.CollectionName)
		if err != nil {
			return nil, err
		}
		log.Info("bolt database opened", zap.String("path", cfg.DatabasePath()), zap.String("collection", cfg.CollectionName))
		return repo, nil

	case config.BackendSQLite:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("database: data dir: %w", err)
		}
		db, err := OpenSQLite(cfg.DatabasePath(), logger.GormLevel(cfg.LogLevel))
		if err != nil {
			return nil, err
		}
		repo, err := repository.NewGormRepository(db, cfg.CollectionName)
		if err != nil {
			if sqlDB, dbErr := db.DB(); dbErr == nil {
				_ = sqlDB.Close()
			}
			return nil, err
		}
		log.Info("sqlite database connected and migrated", zap.String("path", cfg.DatabasePath()), zap.String("collection", cfg.CollectionName))
		return repo, nil
	}

	return nil, fmt.Errorf("%w: backend: unknown backend %q", config.ErrInvalidConfig, cfg.Backend)
}

// OpenSQLite opens a SQLite database file with the pure Go driver (no CGO required).
// WAL mode lets readers proceed while a sweep is deleting rows.
func OpenSQLite(path string, level gormlogger.LogLevel) (*gorm.DB, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", repository.ErrStoreUnavailable, path, err)
	}
	return db, nil
}
