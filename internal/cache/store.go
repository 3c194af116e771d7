// Package cache implements TTL semantics over a repository.Repository.
//
// Store holds no mutable state beyond its configuration, so one instance can
// be shared by any number of goroutines. Row-level atomicity comes from the
// repository. Every operation reads the clock once and uses that instant for
// all of its expiration comparisons.
package cache

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"ttl-cache-store/internal/codec"
	"ttl-cache-store/internal/models"
	"ttl-cache-store/internal/repository"

	"go.uber.org/zap"
)

// DefaultExpiresIn is the TTL used when Options.DefaultTTL is zero.
const DefaultExpiresIn = 24 * time.Hour

var (
	ErrInvalidKey     = errors.New("cache: key must not be empty")
	ErrInvalidPattern = errors.New("cache: pattern must not be nil")
	ErrInvalidTTL     = errors.New("cache: ttl must be positive")

	ErrDuplicateKey     = repository.ErrDuplicateKey
	ErrStoreUnavailable = repository.ErrStoreUnavailable
	ErrCorruptPayload   = codec.ErrCorruptPayload
)

// Options configures a Store. Zero values select the defaults.
type Options struct {
	// DefaultTTL applies to writes without ExpiresIn.
	DefaultTTL time.Duration
	// Namespace, when set, prefixes every key with Namespace + ":" and scopes
	// DeleteMatched, Cleanup and Clear to the namespace.
	Namespace string

	Clock    Clock
	Observer Observer
	Notifier Notifier
	Logger   *zap.Logger
}

// Store is the TTL cache engine.
type Store struct {
	repo       repository.Repository
	defaultTTL time.Duration
	prefix     string

	clock    Clock
	observer Observer
	notifier Notifier
	log      *zap.Logger
}

// New constructs a Store over repo.
func New(repo repository.Repository, opts Options) (*Store, error) {
	if repo == nil {
		return nil, errors.New("cache: repository is required")
	}
	if opts.DefaultTTL < 0 {
		return nil, fmt.Errorf("%w: default ttl %s", ErrInvalidTTL, opts.DefaultTTL)
	}

	s := &Store{
		repo:       repo,
		defaultTTL: opts.DefaultTTL,
		clock:      opts.Clock,
		observer:   opts.Observer,
		notifier:   opts.Notifier,
		log:        opts.Logger,
	}
	if s.defaultTTL == 0 {
		s.defaultTTL = DefaultExpiresIn
	}
	if opts.Namespace != "" {
		s.prefix = opts.Namespace + ":"
	}
	if s.clock == nil {
		s.clock = SystemClock
	}
	if s.observer == nil {
		s.observer = NoopObserver{}
	}
	if s.notifier == nil {
		s.notifier = noopNotifier{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s, nil
}

// DefaultTTL returns the TTL applied to writes without ExpiresIn.
func (s *Store) DefaultTTL() time.Duration {
	return s.defaultTTL
}

func (s *Store) storageKey(key string) string {
	return s.prefix + key
}

func (s *Store) ttl(opts WriteOptions) (time.Duration, error) {
	switch {
	case opts.ExpiresIn < 0:
		return 0, fmt.Errorf("%w: expires_in %s", ErrInvalidTTL, opts.ExpiresIn)
	case opts.ExpiresIn == 0:
		return s.defaultTTL, nil
	}
	return opts.ExpiresIn, nil
}

func (s *Store) finish(op Op, err error) {
	s.observer.Operation(op, err)
}

// Write encodes value and upserts it with expires_at = now + ttl. Writing an
// existing key replaces its payload and restarts its TTL from now.
func (s *Store) Write(ctx context.Context, key string, value any, opts WriteOptions) (err error) {
	defer func() { s.finish(OpWrite, err) }()

	if key == "" {
		return ErrInvalidKey
	}
	ttl, err := s.ttl(opts)
	if err != nil {
		return err
	}
	payload, err := codec.Encode(value)
	if err != nil {
		return fmt.Errorf("cache: write %q: %w", key, err)
	}

	now := s.clock.Now()
	if err := s.repo.Upsert(ctx, s.storageKey(key), now.Add(ttl), payload); err != nil {
		return fmt.Errorf("cache: write %q: %w", key, err)
	}

	s.notifier.Notify(Event{Op: OpWrite, Key: key, Count: 1, At: now})
	return nil
}

// CreateUnique stores value only if key has no row yet, expired or not.
func (s *Store) CreateUnique(ctx context.Context, key string, value any, opts WriteOptions) (err error) {
	defer func() { s.finish(OpCreate, err) }()

	if key == "" {
		return ErrInvalidKey
	}
	ttl, err := s.ttl(opts)
	if err != nil {
		return err
	}
	payload, err := codec.Encode(value)
	if err != nil {
		return fmt.Errorf("cache: create %q: %w", key, err)
	}

	now := s.clock.Now()
	if err := s.repo.CreateUnique(ctx, s.storageKey(key), now.Add(ttl), payload); err != nil {
		return fmt.Errorf("cache: create %q: %w", key, err)
	}

	s.notifier.Notify(Event{Op: OpCreate, Key: key, Count: 1, At: now})
	return nil
}

// lookup returns the live row for key, or nil when missing or expired.
func (s *Store) lookup(ctx context.Context, key string) (*models.Entry, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	entry, err := s.repo.Find(ctx, s.storageKey(key))
	if err != nil {
		return nil, err
	}
	if entry == nil || entry.ExpiredAt(s.clock.Now()) {
		return nil, nil
	}
	return entry, nil
}

// Read returns the value stored under key. Missing and expired keys both
// report ok == false; expired rows stay in place until Cleanup, Clear or Delete.
func (s *Store) Read(ctx context.Context, key string) (value any, ok bool, err error) {
	defer func() { s.finish(OpRead, err) }()

	entry, err := s.lookup(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("cache: read %q: %w", key, err)
	}
	s.observer.Lookup(entry != nil)
	if entry == nil {
		return nil, false, nil
	}

	value, err = codec.Decode(entry.Payload)
	if err != nil {
		s.log.Warn("undecodable cache payload", zap.String("key", key), zap.Error(err))
		return nil, false, fmt.Errorf("cache: read %q: %w", key, err)
	}
	return value, true, nil
}

// ReadPayload returns the encoded payload of a live entry without decoding it.
func (s *Store) ReadPayload(ctx context.Context, key string) (payload []byte, ok bool, err error) {
	defer func() { s.finish(OpRead, err) }()

	entry, err := s.lookup(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("cache: read %q: %w", key, err)
	}
	s.observer.Lookup(entry != nil)
	if entry == nil {
		return nil, false, nil
	}
	return entry.Payload, true, nil
}

// ReadMulti reads several keys and returns the live ones.
func (s *Store) ReadMulti(ctx context.Context, keys ...string) (map[string]any, error) {
	found := make(map[string]any, len(keys))
	for _, key := range keys {
		value, ok, err := s.Read(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			found[key] = value
		}
	}
	return found, nil
}

// Fetch returns the cached value for key, or computes, writes and returns it.
// Errors from compute are returned as-is and nothing is written.
func (s *Store) Fetch(ctx context.Context, key string, opts WriteOptions, compute func(context.Context) (any, error)) (any, error) {
	value, ok, err := s.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return value, nil
	}

	value, err = compute(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Write(ctx, key, value, opts); err != nil {
		return nil, err
	}
	return value, nil
}

// Exist reports whether key holds an unexpired value without decoding it.
func (s *Store) Exist(ctx context.Context, key string) (bool, error) {
	entry, err := s.lookup(ctx, key)
	if err != nil {
		return false, fmt.Errorf("cache: exist %q: %w", key, err)
	}
	return entry != nil, nil
}

// Inspect returns the stored row for key including its expired flag.
func (s *Store) Inspect(ctx context.Context, key string) (*EntryInfo, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	entry, err := s.repo.Find(ctx, s.storageKey(key))
	if err != nil {
		return nil, fmt.Errorf("cache: inspect %q: %w", key, err)
	}
	if entry == nil {
		return nil, nil
	}
	return &EntryInfo{
		Key:         key,
		ExpiresAt:   entry.ExpiresAt,
		Expired:     entry.ExpiredAt(s.clock.Now()),
		PayloadSize: len(entry.Payload),
		CreatedAt:   optionalTime(entry.CreatedAt),
		UpdatedAt:   optionalTime(entry.UpdatedAt),
	}, nil
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Delete removes key regardless of expiration and reports whether it existed.
func (s *Store) Delete(ctx context.Context, key string) (existed bool, err error) {
	defer func() { s.finish(OpDelete, err) }()

	if key == "" {
		return false, ErrInvalidKey
	}
	existed, err = s.repo.Delete(ctx, s.storageKey(key))
	if err != nil {
		return false, fmt.Errorf("cache: delete %q: %w", key, err)
	}
	if existed {
		s.observer.Removed(OpDelete, 1)
		s.notifier.Notify(Event{Op: OpDelete, Key: key, Count: 1, At: s.clock.Now()})
	}
	return existed, nil
}

// DeleteMatched removes every key matching pattern, expired or not.
func (s *Store) DeleteMatched(ctx context.Context, pattern *regexp.Regexp) (deleted int64, err error) {
	defer func() { s.finish(OpDeleteMatched, err) }()

	if pattern == nil {
		return 0, ErrInvalidPattern
	}
	deleted, err = s.repo.DeleteWhere(ctx, repository.Predicate{KeyPrefix: s.prefix, KeyPattern: pattern})
	if deleted > 0 {
		s.observer.Removed(OpDeleteMatched, deleted)
	}
	if err != nil {
		return deleted, fmt.Errorf("cache: delete matched %q: %w", pattern.String(), err)
	}

	s.log.Debug("deleted matching entries", zap.String("pattern", pattern.String()), zap.Int64("deleted", deleted))
	s.notifier.Notify(Event{Op: OpDeleteMatched, Pattern: pattern.String(), Count: deleted, At: s.clock.Now()})
	return deleted, nil
}

// Cleanup removes every entry whose expires_at is at or before now.
func (s *Store) Cleanup(ctx context.Context) (deleted int64, err error) {
	defer func() { s.finish(OpCleanup, err) }()

	now := s.clock.Now()
	deleted, err = s.repo.DeleteWhere(ctx, repository.Predicate{KeyPrefix: s.prefix, ExpiresAtOrBefore: &now})
	if deleted > 0 {
		s.observer.Removed(OpCleanup, deleted)
	}
	if err != nil {
		return deleted, fmt.Errorf("cache: cleanup: %w", err)
	}

	s.log.Debug("removed expired entries", zap.Int64("deleted", deleted), zap.Time("now", now))
	s.notifier.Notify(Event{Op: OpCleanup, Count: deleted, At: now})
	return deleted, nil
}

// Clear removes every entry regardless of expiration.
func (s *Store) Clear(ctx context.Context) (deleted int64, err error) {
	defer func() { s.finish(OpClear, err) }()

	if s.prefix == "" {
		deleted, err = s.repo.DeleteAll(ctx)
	} else {
		deleted, err = s.repo.DeleteWhere(ctx, repository.Predicate{KeyPrefix: s.prefix})
	}
	if deleted > 0 {
		s.observer.Removed(OpClear, deleted)
	}
	if err != nil {
		return deleted, fmt.Errorf("cache: clear: %w", err)
	}

	s.log.Info("cache cleared", zap.Int64("deleted", deleted))
	s.notifier.Notify(Event{Op: OpClear, Count: deleted, At: s.clock.Now()})
	return deleted, nil
}

// Count returns the number of rows in the collection, expired ones included.
func (s *Store) Count(ctx context.Context) (int64, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("cache: count: %w", err)
	}
	return n, nil
}
