package cache

import (
	"context"
	"regexp"
	"time"
)

// Cache is the capability set a caller (HTTP adapter, application code)
// needs from a TTL cache backend.
type Cache interface {
	// Read returns the value and whether it was present and not expired.
	Read(ctx context.Context, key string) (any, bool, error)

	// Write stores the value. A zero ExpiresIn uses the default TTL.
	Write(ctx context.Context, key string, value any, opts WriteOptions) error

	// Delete removes a key whether or not it expired and reports if it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// DeleteMatched removes every key matching pattern.
	DeleteMatched(ctx context.Context, pattern *regexp.Regexp) (int64, error)

	// Cleanup removes expired entries.
	Cleanup(ctx context.Context) (int64, error)

	// Clear removes all entries.
	Clear(ctx context.Context) (int64, error)

	// Exist reports whether a key is present and not expired.
	Exist(ctx context.Context, key string) (bool, error)

	// Inspect returns row metadata, including expired rows, or nil when absent.
	Inspect(ctx context.Context, key string) (*EntryInfo, error)

	// Count returns the number of stored rows, expired ones included.
	Count(ctx context.Context) (int64, error)
}

// WriteOptions carries per-write settings.
type WriteOptions struct {
	// ExpiresIn overrides the default TTL when positive.
	ExpiresIn time.Duration
}

// EntryInfo describes a stored row without decoding its payload.
type EntryInfo struct {
	Key         string    `json:"key"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Expired     bool      `json:"expired"`
	PayloadSize int       `json:"payloadSize"`
	// CreatedAt and UpdatedAt are nil when the backend does not track them.
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Clock supplies the current time to the cache.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Ensure Store implements Cache at compile time.
var _ Cache = (*Store)(nil)
