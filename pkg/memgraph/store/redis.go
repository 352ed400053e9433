package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultKeyPrefix namespaces every Redis key the store writes.
const defaultKeyPrefix = "memgraph:store"

// luaDeleteItem removes one item and drops its namespace from the index
// when the hash is left empty, in one atomic step so a concurrent Put into
// the same namespace cannot be unindexed.
// KEYS[1] = namespace hash
// KEYS[2] = namespace index set
// ARGV[1] = item key
// ARGV[2] = encoded namespace
var luaDeleteItem = redis.NewScript(
	"redis.call('HDEL', KEYS[1], ARGV[1])\n" +
		"if redis.call('HLEN', KEYS[1]) == 0 then\n" +
		"  redis.call('SREM', KEYS[2], ARGV[2])\n" +
		"end\n" +
		"return 1\n",
)

// RedisStore persists items to Redis.
//
// Storage layout:
//
//	<prefix>:ns:<namespace>  -> hash [key -> Item(json)]
//	<prefix>:namespaces      -> set of namespaces with at least one item
//
// Search results are ordered by creation time, then key.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ownClient bool

	mu     sync.RWMutex
	closed bool
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the prefix of every key the store writes.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.keyPrefix = prefix
		}
	}
}

// NewRedisStore connects to Redis at url (see redis.ParseURL), e.g.
// "redis://localhost:6379/0".
func NewRedisStore(url string, opts ...RedisOption) (*RedisStore, error) {
	if url == "" {
		return nil, errors.New("redis url is required")
	}
	parsed, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:      []string{parsed.Addr},
		DB:         parsed.DB,
		Username:   parsed.Username,
		Password:   parsed.Password,
		Protocol:   parsed.Protocol,
		TLSConfig:  parsed.TLSConfig,
		MaxRetries: parsed.MaxRetries,
	})
	s := NewRedisStoreFromClient(client, opts...)
	s.ownClient = true
	return s, nil
}

// NewRedisStoreFromClient wraps an existing client. Close leaves the
// client open.
func NewRedisStoreFromClient(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, keyPrefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) hashKey(encoded string) string {
	return s.keyPrefix + ":ns:" + encoded
}

func (s *RedisStore) indexKey() string {
	return s.keyPrefix + ":namespaces"
}

func (s *RedisStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, namespace []string, key string, value map[string]any) error {
	if err := validateItem(namespace, key); err != nil {
		return err
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	if value == nil {
		value = map[string]any{}
	}

	encoded := encodeNamespace(namespace)
	hk := s.hashKey(encoded)
	now := time.Now().UTC()
	item := &Item{
		Namespace: namespace,
		Key:       key,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}

	prev, err := s.client.HGet(ctx, hk, key).Bytes()
	switch {
	case err == nil:
		var old Item
		if err := json.Unmarshal(prev, &old); err != nil {
			return fmt.Errorf("decode existing item: %w", err)
		}
		item.CreatedAt = old.CreatedAt
	case !errors.Is(err, redis.Nil):
		return fmt.Errorf("load existing item: %w", err)
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, hk, key, data)
		pipe.SAdd(ctx, s.indexKey(), encoded)
		return nil
	}); err != nil {
		return fmt.Errorf("save item: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, namespace []string, key string) (*Item, error) {
	if err := validateItem(namespace, key); err != nil {
		return nil, err
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	data, err := s.client.HGet(ctx, s.hashKey(encodeNamespace(namespace)), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load item: %w", err)
	}

	var item Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	return &item, nil
}

// namespaces returns the encoded namespaces under prefix, sorted.
func (s *RedisStore) namespaces(ctx context.Context, prefix []string) ([]string, error) {
	all, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}

	p := encodeNamespace(prefix)
	var out []string
	for _, ns := range all {
		if encodedHasPrefix(ns, p) {
			out = append(out, ns)
		}
	}
	slices.Sort(out)
	return out, nil
}

// Search implements Store.
func (s *RedisStore) Search(ctx context.Context, prefix []string, opts ...SearchOption) ([]*Item, error) {
	if err := validatePrefix(prefix); err != nil {
		return nil, err
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	o := newSearchOptions(opts)

	nss, err := s.namespaces(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if len(nss) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(nss))
	if _, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, ns := range nss {
			cmds[i] = pipe.HGetAll(ctx, s.hashKey(ns))
		}
		return nil
	}); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("search items: %w", err)
	}

	var items []*Item
	for _, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("search items: %w", err)
		}
		for _, raw := range fields {
			var item Item
			if err := json.Unmarshal([]byte(raw), &item); err != nil {
				return nil, fmt.Errorf("decode item: %w", err)
			}
			if o.matches(&item) {
				items = append(items, &item)
			}
		}
	}

	slices.SortFunc(items, func(a, b *Item) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if c := strings.Compare(encodeNamespace(a.Namespace), encodeNamespace(b.Namespace)); c != 0 {
			return c
		}
		return strings.Compare(a.Key, b.Key)
	})

	if o.limit > 0 && len(items) > o.limit {
		items = items[:o.limit]
	}
	return items, nil
}

// Delete implements Store.
// The namespace leaves the index once its last item is removed.
func (s *RedisStore) Delete(ctx context.Context, namespace []string, key string) error {
	if err := validateItem(namespace, key); err != nil {
		return err
	}
	if err := s.checkOpen(); err != nil {
		return err
	}

	encoded := encodeNamespace(namespace)
	if err := luaDeleteItem.Run(ctx, s.client,
		[]string{s.hashKey(encoded), s.indexKey()}, key, encoded,
	).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// ListNamespaces implements Store.
// Namespaces are returned in lexical order.
func (s *RedisStore) ListNamespaces(ctx context.Context, prefix []string) ([][]string, error) {
	if err := validatePrefix(prefix); err != nil {
		return nil, err
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	nss, err := s.namespaces(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([][]string, 0, len(nss))
	for _, ns := range nss {
		out = append(out, decodeNamespace(ns))
	}
	return out, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.ownClient {
		return s.client.Close()
	}
	return nil
}
