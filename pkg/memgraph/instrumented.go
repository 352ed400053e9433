package memgraph

import (
	"context"
	"errors"
	"log/slog"

	"github.com/randalmurphal/memgraph/pkg/memgraph/observability"
	"github.com/randalmurphal/memgraph/pkg/memgraph/store"
)

// instrumentedStore is the view of the long-term store that nodes get.
// Every call is counted and failures are logged; a missing key is not a
// failure.
type instrumentedStore struct {
	inner   store.Store
	metrics observability.MetricsRecorder
	logger  *slog.Logger
}

// storeFor returns the store nodes of one run see, or nil without a store.
func (cg *CompiledGraph[S]) storeFor(o *runOptions) store.Store {
	if cg.store == nil {
		return nil
	}
	return &instrumentedStore{inner: cg.store, metrics: o.metrics, logger: o.logger}
}

func (s *instrumentedStore) record(ctx context.Context, op string, namespace []string, err error) {
	if err != nil && errors.Is(err, store.ErrNotFound) {
		err = nil
	}
	s.metrics.RecordStoreOperation(ctx, op, err)
	if err != nil {
		observability.LogStoreError(s.logger, op, namespace, err)
	}
}

func (s *instrumentedStore) Put(ctx context.Context, namespace []string, key string, value map[string]any) error {
	err := s.inner.Put(ctx, namespace, key, value)
	s.record(ctx, "put", namespace, err)
	return err
}

func (s *instrumentedStore) Get(ctx context.Context, namespace []string, key string) (*store.Item, error) {
	item, err := s.inner.Get(ctx, namespace, key)
	s.record(ctx, "get", namespace, err)
	return item, err
}

func (s *instrumentedStore) Search(ctx context.Context, prefix []string, opts ...store.SearchOption) ([]*store.Item, error) {
	items, err := s.inner.Search(ctx, prefix, opts...)
	s.record(ctx, "search", prefix, err)
	return items, err
}

func (s *instrumentedStore) Delete(ctx context.Context, namespace []string, key string) error {
	err := s.inner.Delete(ctx, namespace, key)
	s.record(ctx, "delete", namespace, err)
	return err
}

func (s *instrumentedStore) ListNamespaces(ctx context.Context, prefix []string) ([][]string, error) {
	nss, err := s.inner.ListNamespaces(ctx, prefix)
	s.record(ctx, "list_namespaces", prefix, err)
	return nss, err
}

// Close is a no-op: the caller that passed the store to WithStore owns it.
func (s *instrumentedStore) Close() error {
	return nil
}
