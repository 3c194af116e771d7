package testutil

import (
	"ttl-cache-store/internal/models"
	"ttl-cache-store/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewInMemoryDB creates an in-memory SQLite DB. The pool is pinned to one
// connection because every new :memory: connection is a separate database.
func NewInMemoryDB() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// NewInMemoryRepository creates an in-memory SQLite DB and migrates the
// default collection table.
func NewInMemoryRepository() (*repository.GormRepository, error) {
	db, err := NewInMemoryDB()
	if err != nil {
		return nil, err
	}
	return repository.NewGormRepository(db, models.DefaultCollection)
}
