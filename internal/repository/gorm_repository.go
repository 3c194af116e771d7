package repository

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"ttl-cache-store/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRepository stores entries in one SQL table per collection.
// Times are written in UTC so that expires_at compares correctly as stored.
type GormRepository struct {
	db    *gorm.DB
	table string
}

// NewGormRepository migrates the collection table and returns a repository over it.
func NewGormRepository(db *gorm.DB, collection string) (*GormRepository, error) {
	if collection == "" {
		collection = models.DefaultCollection
	}

	// Auto-migrate the entry table under the collection name
	if err := db.Table(collection).AutoMigrate(&models.Entry{}); err != nil {
		return nil, unavailable("migrate", err)
	}
	index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %q ON %q (expires_at)", "idx_"+collection+"_expires_at", collection)
	if err := db.Exec(index).Error; err != nil {
		return nil, unavailable("migrate", err)
	}

	return &GormRepository{db: db, table: collection}, nil
}

func (r *GormRepository) query(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table(r.table)
}

// CreateUnique implements Repository.CreateUnique.
func (r *GormRepository) CreateUnique(ctx context.Context, key string, expiresAt time.Time, payload []byte) error {
	entry := models.Entry{Key: key, ExpiresAt: expiresAt.UTC(), Payload: payload}
	result := r.query(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoNothing: true,
	}).Create(&entry)
	if result.Error != nil {
		return unavailable("create", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %q", ErrDuplicateKey, key)
	}
	return nil
}

// Find implements Repository.Find.
func (r *GormRepository) Find(ctx context.Context, key string) (*models.Entry, error) {
	var entry models.Entry
	err := r.query(ctx).Where("cache_key = ?", key).Take(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, unavailable("find", err)
	}
	return &entry, nil
}

// Upsert implements Repository.Upsert as a single INSERT ... ON CONFLICT statement.
func (r *GormRepository) Upsert(ctx context.Context, key string, expiresAt time.Time, payload []byte) error {
	entry := models.Entry{Key: key, ExpiresAt: expiresAt.UTC(), Payload: payload}
	err := r.query(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"expires_at", "payload", "updated_at"}),
	}).Create(&entry).Error
	return unavailable("upsert", err)
}

// Delete implements Repository.Delete.
func (r *GormRepository) Delete(ctx context.Context, key string) (bool, error) {
	result := r.query(ctx).Where("cache_key = ?", key).Delete(&models.Entry{})
	if result.Error != nil {
		return false, unavailable("delete", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// DeleteWhere implements Repository.DeleteWhere. SQLite has no regular
// expression operator, so key patterns are matched in Go and the matching
// keys are deleted in batches; the expiration condition is re-applied in
// every batch statement.
func (r *GormRepository) DeleteWhere(ctx context.Context, p Predicate) (int64, error) {
	if p.IsEmpty() {
		return r.DeleteAll(ctx)
	}

	filtered := func() *gorm.DB {
		q := r.query(ctx)
		if p.ExpiresAtOrBefore != nil {
			q = q.Where("expires_at <= ?", p.ExpiresAtOrBefore.UTC())
		}
		if p.KeyPrefix != "" {
			// LIKE is case-insensitive in SQLite, so compare the leading characters instead
			q = q.Where("substr(cache_key, 1, ?) = ?", utf8.RuneCountInString(p.KeyPrefix), p.KeyPrefix)
		}
		return q
	}

	if p.KeyPattern == nil {
		result := filtered().Delete(&models.Entry{})
		if result.Error != nil {
			return 0, unavailable("delete where", result.Error)
		}
		return result.RowsAffected, nil
	}

	var keys []string
	if err := filtered().Order("cache_key").Pluck("cache_key", &keys).Error; err != nil {
		return 0, unavailable("delete where", err)
	}

	matched := keys[:0]
	for _, k := range keys {
		if p.MatchesKey(k) {
			matched = append(matched, k)
		}
	}

	var deleted int64
	for start := 0; start < len(matched); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(matched))
		result := filtered().Where("cache_key IN ?", matched[start:end]).Delete(&models.Entry{})
		if result.Error != nil {
			return deleted, unavailable("delete where", result.Error)
		}
		deleted += result.RowsAffected
	}
	return deleted, nil
}

// DeleteAll implements Repository.DeleteAll.
func (r *GormRepository) DeleteAll(ctx context.Context) (int64, error) {
	result := r.query(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Entry{})
	if result.Error != nil {
		return 0, unavailable("delete all", result.Error)
	}
	return result.RowsAffected, nil
}

// Count implements Repository.Count.
func (r *GormRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.query(ctx).Count(&total).Error; err != nil {
		return 0, unavailable("count", err)
	}
	return total, nil
}

// List implements Repository.List.
func (r *GormRepository) List(ctx context.Context) ([]models.Entry, error) {
	var entries []models.Entry
	if err := r.query(ctx).Order("cache_key").Find(&entries).Error; err != nil {
		return nil, unavailable("list", err)
	}
	return entries, nil
}

// Close closes the underlying connection pool.
func (r *GormRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ Repository = (*GormRepository)(nil)
