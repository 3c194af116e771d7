package repository_test

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"ttl-cache-store/internal/repository"
	"ttl-cache-store/internal/testutil"

	"github.com/stretchr/testify/require"
)

var base = time.Date(2012, 1, 1, 13, 0, 0, 0, time.UTC)

type backend struct {
	name string
	open func(t *testing.T) repository.Repository
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) repository.Repository {
			return repository.NewMemoryRepository()
		}},
		{"sqlite", func(t *testing.T) repository.Repository {
			repo, err := testutil.NewInMemoryRepository()
			require.NoError(t, err)
			t.Cleanup(func() { _ = repo.Close() })
			return repo
		}},
		{"bolt", func(t *testing.T) repository.Repository {
			repo, err := repository.OpenBoltRepository(filepath.Join(t.TempDir(), "cache.bbolt"), "test_cache")
			require.NoError(t, err)
			t.Cleanup(func() { _ = repo.Close() })
			return repo
		}},
	}
}

// seed creates key_0..key_4 expiring hourly from base.
func seed(t *testing.T, repo repository.Repository) {
	t.Helper()
	for n := 0; n < 5; n++ {
		key := fmt.Sprintf("key_%d", n)
		require.NoError(t, repo.CreateUnique(context.Background(), key, base.Add(time.Duration(n)*time.Hour), []byte(key)))
	}
}

func keys(t *testing.T, repo repository.Repository) []string {
	t.Helper()
	entries, err := repo.List(context.Background())
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Key)
	}
	return out
}

func TestRepository_CreateUnique(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			repo := b.open(t)
			ctx := context.Background()

			require.NoError(t, repo.CreateUnique(ctx, "KEY_STRING", base, []byte("v1")))
			err := repo.CreateUnique(ctx, "KEY_STRING", base.Add(time.Hour), []byte("v2"))
			require.ErrorIs(t, err, repository.ErrDuplicateKey)

			entry, err := repo.Find(ctx, "KEY_STRING")
			require.NoError(t, err)
			require.NotNil(t, entry)
			require.Equal(t, "KEY_STRING", entry.Key)
			require.Equal(t, []byte("v1"), entry.Payload)
			require.True(t, base.Equal(entry.ExpiresAt), "expires_at %s", entry.ExpiresAt)
		})
	}
}

func TestRepository_FindMissing(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			entry, err := b.open(t).Find(context.Background(), "missing")
			require.NoError(t, err)
			require.Nil(t, entry)
		})
	}
}

func TestRepository_Upsert(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			repo := b.open(t)
			ctx := context.Background()

			require.NoError(t, repo.Upsert(ctx, "INITIAL KEY", base.Add(time.Hour), []byte("VALUE")))
			require.NoError(t, repo.Upsert(ctx, "INITIAL KEY", base.Add(24*time.Hour), []byte("VALUE 2")))

			count, err := repo.Count(ctx)
			require.NoError(t, err)
			require.EqualValues(t, 1, count)

			entry, err := repo.Find(ctx, "INITIAL KEY")
			require.NoError(t, err)
			require.Equal(t, []byte("VALUE 2"), entry.Payload)
			require.True(t, base.Add(24*time.Hour).Equal(entry.ExpiresAt))
		})
	}
}

func TestRepository_Delete(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			repo := b.open(t)
			ctx := context.Background()
			seed(t, repo)

			existed, err := repo.Delete(ctx, "key_2")
			require.NoError(t, err)
			require.True(t, existed)

			existed, err = repo.Delete(ctx, "key_2")
			require.NoError(t, err)
			require.False(t, existed)

			require.Equal(t, []string{"key_0", "key_1", "key_3", "key_4"}, keys(t, repo))
		})
	}
}

func TestRepository_DeleteWhereExpiry(t *testing.T) {
	cases := []struct {
		name string
		now  time.Time
		want int64
		left []string
	}{
		{"all expired", base.Add(5 * time.Hour), 5, []string{}},
		{"several expired", base.Add(2 * time.Hour), 3, []string{"key_3", "key_4"}},
		{"boundary only", base, 1, []string{"key_1", "key_2", "key_3", "key_4"}},
		{"none expired", base.Add(-time.Second), 0, []string{"key_0", "key_1", "key_2", "key_3", "key_4"}},
	}
	for _, b := range backends() {
		for _, tc := range cases {
			t.Run(b.name+"/"+tc.name, func(t *testing.T) {
				repo := b.open(t)
				seed(t, repo)

				now := tc.now
				deleted, err := repo.DeleteWhere(context.Background(), repository.Predicate{ExpiresAtOrBefore: &now})
				require.NoError(t, err)
				require.Equal(t, tc.want, deleted)
				require.Equal(t, tc.left, keys(t, repo))
			})
		}
	}
}

func TestRepository_FarFutureExpiry(t *testing.T) {
	// past the end of the int64 UnixNano range
	farFuture := base.Add(250 * 365 * 24 * time.Hour).Add(123 * time.Nanosecond)
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			repo := b.open(t)
			ctx := context.Background()
			require.NoError(t, repo.Upsert(ctx, "long_lived", farFuture, []byte("v")))

			entry, err := repo.Find(ctx, "long_lived")
			require.NoError(t, err)
			require.NotNil(t, entry)
			require.True(t, farFuture.Equal(entry.ExpiresAt), "got %s", entry.ExpiresAt)

			now := base
			deleted, err := repo.DeleteWhere(ctx, repository.Predicate{ExpiresAtOrBefore: &now})
			require.NoError(t, err)
			require.Zero(t, deleted)
			require.Equal(t, []string{"long_lived"}, keys(t, repo))
		})
	}
}

func TestRepository_DeleteWherePattern(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			repo := b.open(t)
			seed(t, repo)

			deleted, err := repo.DeleteWhere(context.Background(), repository.Predicate{
				KeyPattern: regexp.MustCompile(`key_[0-2]`),
			})
			require.NoError(t, err)
			require.EqualValues(t, 3, deleted)
			require.Equal(t, []string{"key_3", "key_4"}, keys(t, repo))
		})
	}
}

func TestRepository_DeleteWhereCombined(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			repo := b.open(t)
			seed(t, repo)

			now := base.Add(time.Hour)
			deleted, err := repo.DeleteWhere(context.Background(), repository.Predicate{
				KeyPattern:        regexp.MustCompile(`key_[1-4]`),
				ExpiresAtOrBefore: &now,
			})
			require.NoError(t, err)
			require.EqualValues(t, 1, deleted)
			require.Equal(t, []string{"key_0", "key_2", "key_3", "key_4"}, keys(t, repo))
		})
	}
}

func TestRepository_DeleteWherePatternLargeSet(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			repo := b.open(t)
			ctx := context.Background()
			for n := 0; n < 750; n++ {
				require.NoError(t, repo.Upsert(ctx, fmt.Sprintf("session:%04d", n), base, nil))
			}
			require.NoError(t, repo.Upsert(ctx, "user:1", base, nil))

			deleted, err := repo.DeleteWhere(ctx, repository.Predicate{KeyPattern: regexp.MustCompile(`^session:`)})
			require.NoError(t, err)
			require.EqualValues(t, 750, deleted)
			require.Equal(t, []string{"user:1"}, keys(t, repo))
		})
	}
}

func TestRepository_DeleteAll(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			repo := b.open(t)
			ctx := context.Background()
			seed(t, repo)

			deleted, err := repo.DeleteAll(ctx)
			require.NoError(t, err)
			require.EqualValues(t, 5, deleted)

			count, err := repo.Count(ctx)
			require.NoError(t, err)
			require.Zero(t, count)

			// the collection stays usable
			require.NoError(t, repo.Upsert(ctx, "again", base, []byte("x")))
			count, err = repo.Count(ctx)
			require.NoError(t, err)
			require.EqualValues(t, 1, count)
		})
	}
}

func TestRepository_CanceledContext(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			repo := b.open(t)
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			err := repo.Upsert(ctx, "k", base, nil)
			require.ErrorIs(t, err, repository.ErrStoreUnavailable)

			_, err = repo.Find(ctx, "k")
			require.ErrorIs(t, err, repository.ErrStoreUnavailable)
		})
	}
}

func TestPredicate_Matches(t *testing.T) {
	now := base
	p := repository.Predicate{KeyPattern: regexp.MustCompile(`^a`), ExpiresAtOrBefore: &now}
	require.True(t, p.Matches("abc", base))
	require.False(t, p.Matches("abc", base.Add(time.Nanosecond)))
	require.False(t, p.Matches("xbc", base.Add(-time.Hour)))
	require.True(t, repository.Predicate{}.Matches("anything", base))
}

func TestRepository_DeleteWherePrefix(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			repo := b.open(t)
			ctx := context.Background()
			for _, k := range []string{"a:key_0", "a:key_1", "a:other", "A:key_0", "b:key_0", "key_0"} {
				require.NoError(t, repo.Upsert(ctx, k, base, nil))
			}

			deleted, err := repo.DeleteWhere(ctx, repository.Predicate{
				KeyPrefix:  "a:",
				KeyPattern: regexp.MustCompile(`^key_`),
			})
			require.NoError(t, err)
			require.EqualValues(t, 2, deleted)
			require.Equal(t, []string{"A:key_0", "a:other", "b:key_0", "key_0"}, keys(t, repo))

			deleted, err = repo.DeleteWhere(ctx, repository.Predicate{KeyPrefix: "a:"})
			require.NoError(t, err)
			require.EqualValues(t, 1, deleted)
			require.Equal(t, []string{"A:key_0", "b:key_0", "key_0"}, keys(t, repo))
		})
	}
}
