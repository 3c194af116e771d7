// Package repository translates cache intents into operations on a backing
// store. It holds no TTL logic: expiration filtering belongs to the cache.
package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"ttl-cache-store/internal/models"
)

var (
	// ErrDuplicateKey is returned by CreateUnique when the key already exists.
	ErrDuplicateKey = errors.New("repository: duplicate key")
	// ErrStoreUnavailable wraps every failure of the underlying store.
	ErrStoreUnavailable = errors.New("repository: store unavailable")
)

// deleteBatchSize caps the number of keys removed per statement or lock hold
// during pattern deletes.
const deleteBatchSize = 300

// Repository is the narrow interface the cache needs from a persistent store.
// Implementations must make Upsert and Delete atomic per row.
type Repository interface {
	// CreateUnique inserts a new row and fails with ErrDuplicateKey if the key exists.
	CreateUnique(ctx context.Context, key string, expiresAt time.Time, payload []byte) error
	// Find returns the row for key, or nil when there is none. Expired rows are returned too.
	Find(ctx context.Context, key string) (*models.Entry, error)
	// Upsert inserts the row or replaces expires_at and payload of the existing one.
	Upsert(ctx context.Context, key string, expiresAt time.Time, payload []byte) error
	// Delete removes the row and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
	// DeleteWhere removes every row matching p and returns how many were removed.
	DeleteWhere(ctx context.Context, p Predicate) (int64, error)
	// DeleteAll removes every row.
	DeleteAll(ctx context.Context) (int64, error)
	// Count returns the number of rows, expired ones included.
	Count(ctx context.Context) (int64, error)
	// List returns every row ordered by key.
	List(ctx context.Context) ([]models.Entry, error)
	// Close releases the store handle.
	Close() error
}

// Predicate selects rows for DeleteWhere. Set fields are combined with AND;
// the zero Predicate matches every row.
type Predicate struct {
	// KeyPrefix restricts the predicate to keys starting with it.
	KeyPrefix string
	// KeyPattern matches against the key text after KeyPrefix.
	KeyPattern *regexp.Regexp
	// ExpiresAtOrBefore selects rows with expires_at <= the given instant.
	ExpiresAtOrBefore *time.Time
}

// Matches applies the predicate to a single row.
func (p Predicate) Matches(key string, expiresAt time.Time) bool {
	if !p.MatchesKey(key) {
		return false
	}
	if p.ExpiresAtOrBefore != nil && expiresAt.After(*p.ExpiresAtOrBefore) {
		return false
	}
	return true
}

// MatchesKey applies only the key conditions of the predicate.
func (p Predicate) MatchesKey(key string) bool {
	rest, ok := strings.CutPrefix(key, p.KeyPrefix)
	if !ok {
		return false
	}
	return p.KeyPattern == nil || p.KeyPattern.MatchString(rest)
}

// IsEmpty reports whether the predicate matches every row.
func (p Predicate) IsEmpty() bool {
	return p.KeyPrefix == "" && p.KeyPattern == nil && p.ExpiresAtOrBefore == nil
}

// unavailable wraps a backend error so callers can test it with errors.Is.
func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
