package repository

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"ttl-cache-store/internal/models"

	bolt "go.etcd.io/bbolt"
)

var errShortRecord = errors.New("record shorter than expiration header")

// BoltRepository keeps entries in a bbolt bucket named after the collection.
// Each value is laid out as expires_at (8 bytes big endian Unix seconds, then
// 4 bytes of nanoseconds) followed by the payload. Every operation runs in one bbolt transaction.
type BoltRepository struct {
	db     *bolt.DB
	bucket []byte
}

// OpenBoltRepository opens (or creates) the bbolt file at path.
func OpenBoltRepository(path, collection string) (*BoltRepository, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, unavailable("open", err)
	}
	repo, err := NewBoltRepository(db, collection)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// NewBoltRepository ensures the collection bucket exists in db.
func NewBoltRepository(db *bolt.DB, collection string) (*BoltRepository, error) {
	if collection == "" {
		collection = models.DefaultCollection
	}
	bucket := []byte(collection)
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		return nil, unavailable("create bucket", err)
	}
	return &BoltRepository{db: db, bucket: bucket}, nil
}

const recordHeader = 12

func encodeRecord(expiresAt time.Time, payload []byte) []byte {
	buf := make([]byte, recordHeader+len(payload))
	binary.BigEndian.PutUint64(buf[:8], uint64(expiresAt.Unix()))
	binary.BigEndian.PutUint32(buf[8:recordHeader], uint32(expiresAt.Nanosecond()))
	copy(buf[recordHeader:], payload)
	return buf
}

func decodeRecord(key, v []byte) (models.Entry, error) {
	if len(v) < recordHeader {
		return models.Entry{}, fmt.Errorf("%w: key %q", errShortRecord, key)
	}
	sec := int64(binary.BigEndian.Uint64(v[:8]))
	nsec := int64(binary.BigEndian.Uint32(v[8:recordHeader]))
	return models.Entry{
		Key:       string(key),
		ExpiresAt: time.Unix(sec, nsec).UTC(),
		Payload:   append([]byte{}, v[recordHeader:]...),
	}, nil
}

func (r *BoltRepository) update(ctx context.Context, op string, fn func(b *bolt.Bucket) error) error {
	if err := ctx.Err(); err != nil {
		return unavailable(op, err)
	}
	err := r.db.Update(func(tx *bolt.Tx) error {
		return fn(tx.Bucket(r.bucket))
	})
	if err != nil && !errors.Is(err, ErrDuplicateKey) {
		return unavailable(op, err)
	}
	return err
}

func (r *BoltRepository) view(ctx context.Context, op string, fn func(b *bolt.Bucket) error) error {
	if err := ctx.Err(); err != nil {
		return unavailable(op, err)
	}
	return unavailable(op, r.db.View(func(tx *bolt.Tx) error {
		return fn(tx.Bucket(r.bucket))
	}))
}

// CreateUnique implements Repository.CreateUnique.
func (r *BoltRepository) CreateUnique(ctx context.Context, key string, expiresAt time.Time, payload []byte) error {
	return r.update(ctx, "create", func(b *bolt.Bucket) error {
		if b.Get([]byte(key)) != nil {
			return fmt.Errorf("%w: %q", ErrDuplicateKey, key)
		}
		return b.Put([]byte(key), encodeRecord(expiresAt, payload))
	})
}

// Find implements Repository.Find.
func (r *BoltRepository) Find(ctx context.Context, key string) (*models.Entry, error) {
	var found *models.Entry
	err := r.view(ctx, "find", func(b *bolt.Bucket) error {
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		entry, err := decodeRecord([]byte(key), v)
		if err != nil {
			return err
		}
		found = &entry
		return nil
	})
	return found, err
}

// Upsert implements Repository.Upsert.
func (r *BoltRepository) Upsert(ctx context.Context, key string, expiresAt time.Time, payload []byte) error {
	return r.update(ctx, "upsert", func(b *bolt.Bucket) error {
		return b.Put([]byte(key), encodeRecord(expiresAt, payload))
	})
}

// Delete implements Repository.Delete.
func (r *BoltRepository) Delete(ctx context.Context, key string) (bool, error) {
	var existed bool
	err := r.update(ctx, "delete", func(b *bolt.Bucket) error {
		existed = b.Get([]byte(key)) != nil
		if !existed {
			return nil
		}
		return b.Delete([]byte(key))
	})
	return existed, err
}

// DeleteWhere implements Repository.DeleteWhere. Matching and deleting
// happen inside one write transaction, so the sweep is atomic on this backend.
func (r *BoltRepository) DeleteWhere(ctx context.Context, p Predicate) (int64, error) {
	var deleted int64
	err := r.update(ctx, "delete where", func(b *bolt.Bucket) error {
		var victims [][]byte
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			entry, err := decodeRecord(k, v)
			if err != nil {
				return err
			}
			if p.Matches(entry.Key, entry.ExpiresAt) {
				victims = append(victims, bytes.Clone(k))
			}
		}
		for _, k := range victims {
			if err := b.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// DeleteAll implements Repository.DeleteAll by recreating the bucket.
func (r *BoltRepository) DeleteAll(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("delete all", err)
	}
	var deleted int64
	err := r.db.Update(func(tx *bolt.Tx) error {
		deleted = int64(tx.Bucket(r.bucket).Stats().KeyN)
		if err := tx.DeleteBucket(r.bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(r.bucket)
		return err
	})
	if err != nil {
		return 0, unavailable("delete all", err)
	}
	return deleted, nil
}

// Count implements Repository.Count.
func (r *BoltRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.view(ctx, "count", func(b *bolt.Bucket) error {
		total = int64(b.Stats().KeyN)
		return nil
	})
	return total, err
}

// List implements Repository.List. bbolt iterates keys in byte order.
func (r *BoltRepository) List(ctx context.Context) ([]models.Entry, error) {
	var entries []models.Entry
	err := r.view(ctx, "list", func(b *bolt.Bucket) error {
		return b.ForEach(func(k, v []byte) error {
			entry, err := decodeRecord(k, v)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	return entries, err
}

// Close closes the bbolt file.
func (r *BoltRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

var _ Repository = (*BoltRepository)(nil)
