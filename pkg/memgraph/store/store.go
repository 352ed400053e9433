// Package store provides namespaced key/value storage: the long-term memory
// a graph shares across threads.
//
// Items live under a namespace, a tuple of string components such as
// ("user_001", "profile"). Search matches namespaces by component-wise
// prefix, so ("user_001") finds items under ("user_001", "profile") and
// ("user_001", "logs") but never under ("user_0012").
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Store persists items keyed by namespace and key.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put inserts or replaces the item at (namespace, key).
	// The last write wins; CreatedAt is preserved on overwrite.
	Put(ctx context.Context, namespace []string, key string, value map[string]any) error

	// Get returns the item at (namespace, key).
	// Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, namespace []string, key string) (*Item, error)

	// Search returns every item whose namespace starts with prefix.
	Search(ctx context.Context, prefix []string, opts ...SearchOption) ([]*Item, error)

	// Delete removes the item at (namespace, key). Deleting a missing item
	// is not an error.
	Delete(ctx context.Context, namespace []string, key string) error

	// ListNamespaces returns the distinct namespaces that start with prefix.
	ListNamespaces(ctx context.Context, prefix []string) ([][]string, error)

	// Close releases any resources (connections, files).
	Close() error
}

// Item is a stored value with its location and timestamps.
type Item struct {
	Namespace []string       `json:"namespace"`
	Key       string         `json:"key"`
	Value     map[string]any `json:"value"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates no item exists at the requested key.
	ErrNotFound = errors.New("item not found")

	// ErrInvalidNamespace indicates an empty namespace, an empty component,
	// or a component containing the separator.
	ErrInvalidNamespace = errors.New("invalid namespace")

	// ErrInvalidKey indicates an empty key.
	ErrInvalidKey = errors.New("invalid key")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("store closed")
)

// separator joins namespace components in encoded form.
const separator = "\x1f"

// SearchOption configures Search.
type SearchOption func(*searchOptions)

type searchOptions struct {
	limit  int
	filter map[string]any
}

// WithLimit caps the number of items Search returns. Zero means no limit.
func WithLimit(n int) SearchOption {
	return func(o *searchOptions) {
		if n > 0 {
			o.limit = n
		}
	}
}

// WithFilter keeps only items whose value holds every given top-level key
// with an equal value.
func WithFilter(filter map[string]any) SearchOption {
	return func(o *searchOptions) {
		o.filter = filter
	}
}

func newSearchOptions(opts []SearchOption) searchOptions {
	var o searchOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// full reports whether a result slice of length n has reached the limit.
func (o searchOptions) full(n int) bool {
	return o.limit > 0 && n >= o.limit
}

func (o searchOptions) matches(item *Item) bool {
	for k, want := range o.filter {
		got, ok := item.Value[k]
		if !ok || !valueEqual(got, want) {
			return false
		}
	}
	return true
}

// valueEqual compares values loosely enough that a filter on 3 matches a
// value decoded from JSON as 3.0.
func valueEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// validateNamespace checks a namespace used to address an item.
func validateNamespace(namespace []string) error {
	if len(namespace) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidNamespace)
	}
	return validatePrefix(namespace)
}

// validatePrefix checks a search prefix; an empty prefix matches everything.
func validatePrefix(prefix []string) error {
	for i, c := range prefix {
		if c == "" {
			return fmt.Errorf("%w: component %d is empty", ErrInvalidNamespace, i)
		}
		if strings.Contains(c, separator) {
			return fmt.Errorf("%w: component %d contains separator", ErrInvalidNamespace, i)
		}
	}
	return nil
}

func validateItem(namespace []string, key string) error {
	if err := validateNamespace(namespace); err != nil {
		return err
	}
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}

func encodeNamespace(namespace []string) string {
	return strings.Join(namespace, separator)
}

func decodeNamespace(encoded string) []string {
	return strings.Split(encoded, separator)
}

// hasPrefix reports whether namespace starts with prefix component-wise.
func hasPrefix(namespace, prefix []string) bool {
	if len(prefix) > len(namespace) {
		return false
	}
	for i := range prefix {
		if namespace[i] != prefix[i] {
			return false
		}
	}
	return true
}

// encodedHasPrefix is hasPrefix over encoded namespaces.
func encodedHasPrefix(encoded, prefix string) bool {
	if prefix == "" {
		return true
	}
	return encoded == prefix || strings.HasPrefix(encoded, prefix+separator)
}

// normalizeValue converts value to its JSON form: nested maps become
// map[string]any, slices []any and numbers float64, as every backend
// returns them. The result shares no memory with value.
func normalizeValue(value map[string]any) (map[string]any, error) {
	out := map[string]any{}
	if value == nil {
		return out, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return out, nil
}

// cloneValue deep-copies the maps and slices of a normalized value.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func (it *Item) clone() *Item {
	cp := *it
	cp.Namespace = append([]string(nil), it.Namespace...)
	cp.Value = cloneMap(it.Value)
	return &cp
}
