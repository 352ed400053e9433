package store

import (
	"context"
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type itemKey struct {
	namespace string
	key       string
}

// MemoryStore is an in-memory store.
// Search returns items in first-insertion order. Data is lost when the
// process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	items  *orderedmap.OrderedMap[itemKey, *Item]
	closed bool
	now    func() time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: orderedmap.New[itemKey, *Item](),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, namespace []string, key string, value map[string]any) error {
	if err := validateItem(namespace, key); err != nil {
		return err
	}
	normalized, err := normalizeValue(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	k := itemKey{namespace: encodeNamespace(namespace), key: key}
	now := m.now()
	item := &Item{
		Namespace: append([]string(nil), namespace...),
		Key:       key,
		Value:     normalized,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if prev, ok := m.items.Get(k); ok {
		item.CreatedAt = prev.CreatedAt
	}
	// Set keeps the original position of an existing key.
	m.items.Set(k, item)
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, namespace []string, key string) (*Item, error) {
	if err := validateItem(namespace, key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	item, ok := m.items.Get(itemKey{namespace: encodeNamespace(namespace), key: key})
	if !ok {
		return nil, ErrNotFound
	}
	return item.clone(), nil
}

// Search implements Store.
func (m *MemoryStore) Search(_ context.Context, prefix []string, opts ...SearchOption) ([]*Item, error) {
	if err := validatePrefix(prefix); err != nil {
		return nil, err
	}
	o := newSearchOptions(opts)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	var out []*Item
	for pair := m.items.Oldest(); pair != nil; pair = pair.Next() {
		if o.full(len(out)) {
			break
		}
		item := pair.Value
		if !hasPrefix(item.Namespace, prefix) || !o.matches(item) {
			continue
		}
		out = append(out, item.clone())
	}
	return out, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, namespace []string, key string) error {
	if err := validateItem(namespace, key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	m.items.Delete(itemKey{namespace: encodeNamespace(namespace), key: key})
	return nil
}

// ListNamespaces implements Store.
// Namespaces are returned in the order they first received an item.
func (m *MemoryStore) ListNamespaces(_ context.Context, prefix []string) ([][]string, error) {
	if err := validatePrefix(prefix); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	seen := make(map[string]bool)
	var out [][]string
	for pair := m.items.Oldest(); pair != nil; pair = pair.Next() {
		if seen[pair.Key.namespace] || !hasPrefix(pair.Value.Namespace, prefix) {
			continue
		}
		seen[pair.Key.namespace] = true
		out = append(out, append([]string(nil), pair.Value.Namespace...))
	}
	return out, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.items = orderedmap.New[itemKey, *Item]()
	return nil
}

// Len returns the number of stored items.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.items.Len()
}
