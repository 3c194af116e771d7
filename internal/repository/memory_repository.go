package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ttl-cache-store/internal/models"
)

// MemoryRepository is a map-backed Repository for tests and throwaway
// deployments. Nothing survives a restart.
type MemoryRepository struct {
	mu   sync.RWMutex
	rows map[string]models.Entry

	// now stamps CreatedAt/UpdatedAt; it never decides expiration.
	now func() time.Time
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rows: make(map[string]models.Entry),
		now:  time.Now,
	}
}

func (r *MemoryRepository) lockR(ctx context.Context, op string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	r.mu.RLock()
	return r.mu.RUnlock, nil
}

func (r *MemoryRepository) lockW(ctx context.Context, op string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	r.mu.Lock()
	return r.mu.Unlock, nil
}

// CreateUnique implements Repository.CreateUnique.
func (r *MemoryRepository) CreateUnique(ctx context.Context, key string, expiresAt time.Time, payload []byte) error {
	unlock, err := r.lockW(ctx, "create")
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := r.rows[key]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateKey, key)
	}
	ts := r.now()
	r.rows[key] = models.Entry{
		Key:       key,
		ExpiresAt: expiresAt,
		Payload:   append([]byte{}, payload...),
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	return nil
}

// Find implements Repository.Find.
func (r *MemoryRepository) Find(ctx context.Context, key string) (*models.Entry, error) {
	unlock, err := r.lockR(ctx, "find")
	if err != nil {
		return nil, err
	}
	defer unlock()

	e, ok := r.rows[key]
	if !ok {
		return nil, nil
	}
	e.Payload = append([]byte{}, e.Payload...)
	return &e, nil
}

// Upsert implements Repository.Upsert.
func (r *MemoryRepository) Upsert(ctx context.Context, key string, expiresAt time.Time, payload []byte) error {
	unlock, err := r.lockW(ctx, "upsert")
	if err != nil {
		return err
	}
	defer unlock()

	ts := r.now()
	e, ok := r.rows[key]
	if !ok {
		e = models.Entry{Key: key, CreatedAt: ts}
	}
	e.ExpiresAt = expiresAt
	e.Payload = append([]byte{}, payload...)
	e.UpdatedAt = ts
	r.rows[key] = e
	return nil
}

// Delete implements Repository.Delete.
func (r *MemoryRepository) Delete(ctx context.Context, key string) (bool, error) {
	unlock, err := r.lockW(ctx, "delete")
	if err != nil {
		return false, err
	}
	defer unlock()

	_, ok := r.rows[key]
	delete(r.rows, key)
	return ok, nil
}

// DeleteWhere implements Repository.DeleteWhere.
func (r *MemoryRepository) DeleteWhere(ctx context.Context, p Predicate) (int64, error) {
	unlock, err := r.lockW(ctx, "delete where")
	if err != nil {
		return 0, err
	}
	defer unlock()

	var deleted int64
	for k, e := range r.rows {
		if p.Matches(k, e.ExpiresAt) {
			delete(r.rows, k)
			deleted++
		}
	}
	return deleted, nil
}

// DeleteAll implements Repository.DeleteAll.
func (r *MemoryRepository) DeleteAll(ctx context.Context) (int64, error) {
	unlock, err := r.lockW(ctx, "delete all")
	if err != nil {
		return 0, err
	}
	defer unlock()

	deleted := int64(len(r.rows))
	r.rows = make(map[string]models.Entry)
	return deleted, nil
}

// Count implements Repository.Count.
func (r *MemoryRepository) Count(ctx context.Context) (int64, error) {
	unlock, err := r.lockR(ctx, "count")
	if err != nil {
		return 0, err
	}
	defer unlock()
	return int64(len(r.rows)), nil
}

// List implements Repository.List.
func (r *MemoryRepository) List(ctx context.Context) ([]models.Entry, error) {
	unlock, err := r.lockR(ctx, "list")
	if err != nil {
		return nil, err
	}
	defer unlock()

	entries := make([]models.Entry, 0, len(r.rows))
	for _, e := range r.rows {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// Close implements Repository.Close. It is a no-op.
func (r *MemoryRepository) Close() error {
	return nil
}

// Ensure MemoryRepository implements Repository at compile time.
var _ Repository = (*MemoryRepository)(nil)
