package store_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/randalmurphal/memgraph/pkg/memgraph/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Len(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	require.NoError(t, s.Put(ctx, []string{"a"}, "1", nil))
	require.NoError(t, s.Put(ctx, []string{"a"}, "1", nil))
	require.NoError(t, s.Put(ctx, []string{"b"}, "1", nil))
	assert.Equal(t, 2, s.Len())
}

func TestSQLiteStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "memory.db")

	s1, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s1.Put(ctx, []string{"user_001", "profile"}, "name", map[string]any{"value": "Ada"}))
	require.NoError(t, s1.Close())

	s2, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s2.Close()

	item, err := s2.Get(ctx, []string{"user_001", "profile"}, "name")
	require.NoError(t, err)
	assert.Equal(t, "Ada", item.Value["value"])
}

func TestSQLiteStore_InvalidPath(t *testing.T) {
	_, err := store.NewSQLiteStore("/nonexistent/path/db.sqlite")
	assert.Error(t, err)
}

func TestSQLiteStore_WildcardComponents(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(ctx, []string{"user_%"}, "k", map[string]any{}))
	require.NoError(t, s.Put(ctx, []string{"userX1"}, "k", map[string]any{}))

	items, err := s.Search(ctx, []string{"user_%"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, []string{"user_%"}, items[0].Namespace)
}

func TestRedisStore_InvalidURL(t *testing.T) {
	_, err := store.NewRedisStore("")
	assert.Error(t, err)

	_, err = store.NewRedisStore("not-a-url://")
	assert.Error(t, err)
}

func TestRedisStore_KeyPrefix(t *testing.T) {
	ctx := context.Background()
	url := setupTestRedis(t)

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	a := store.NewRedisStoreFromClient(client, store.WithKeyPrefix("app-a"))
	b := store.NewRedisStoreFromClient(client, store.WithKeyPrefix("app-b"))

	require.NoError(t, a.Put(ctx, []string{"user_001"}, "k", map[string]any{"v": "a"}))

	_, err = b.Get(ctx, []string{"user_001"}, "k")
	assert.ErrorIs(t, err, store.ErrNotFound)

	exists, err := client.Exists(ctx, "app-a:namespaces").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)

	// Closing a store built from a client leaves the client usable
	require.NoError(t, a.Close())
	assert.NoError(t, client.Ping(ctx).Err())
}

func TestRedisStore_DeleteKeepsIndexInSync(t *testing.T) {
	ctx := context.Background()
	url := setupTestRedis(t)

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()
	s := store.NewRedisStoreFromClient(client, store.WithKeyPrefix("sync"))

	indexed := func(ns ...string) bool {
		t.Helper()
		nss, err := s.ListNamespaces(ctx, ns)
		require.NoError(t, err)
		return len(nss) > 0
	}

	ns := []string{"user_001", "logs"}
	require.NoError(t, s.Put(ctx, ns, "k1", map[string]any{"n": 1}))
	require.NoError(t, s.Put(ctx, ns, "k2", map[string]any{"n": 2}))

	require.NoError(t, s.Delete(ctx, ns, "k1"))
	assert.True(t, indexed(ns...), "namespace stays indexed while it has items")

	require.NoError(t, s.Delete(ctx, ns, "k2"))
	assert.False(t, indexed(ns...))

	// Deleting from a missing namespace is a no-op.
	require.NoError(t, s.Delete(ctx, []string{"nobody"}, "k"))

	// Puts racing deletes in the same namespace must never leave a stored
	// item outside the index.
	for i := 0; i < 50; i++ {
		ns := []string{"race", fmt.Sprintf("n%d", i)}
		require.NoError(t, s.Put(ctx, ns, "old", map[string]any{}))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Delete(ctx, ns, "old"))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Put(ctx, ns, "new", map[string]any{}))
		}()
		wg.Wait()

		items, err := s.Search(ctx, ns)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "new", items[0].Key)
	}
}
