package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists items to SQLite.
// Search returns items in first-insertion order.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a new SQLite store.
// The path should be a file path (e.g., "./memory.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS store_items (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			value BLOB NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (namespace, key)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Put implements Store.
// The upsert keeps the row's rowid, so an overwritten item keeps its
// position in search results.
func (s *SQLiteStore) Put(ctx context.Context, namespace []string, key string, value map[string]any) error {
	if err := validateItem(namespace, key); err != nil {
		return err
	}
	if value == nil {
		value = map[string]any{}
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO store_items (namespace, key, value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (namespace, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, encodeNamespace(namespace), key, data, now, now); err != nil {
		return fmt.Errorf("save item: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, namespace []string, key string) (*Item, error) {
	if err := validateItem(namespace, key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT namespace, key, value, created_at, updated_at
		FROM store_items WHERE namespace = ? AND key = ?
	`, encodeNamespace(namespace), key)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load item: %w", err)
	}
	return item, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*Item, error) {
	var (
		ns, key, created, updated string
		data                      []byte
	)
	if err := row.Scan(&ns, &key, &data, &created, &updated); err != nil {
		return nil, err
	}

	item := &Item{Namespace: decodeNamespace(ns), Key: key}
	if err := json.Unmarshal(data, &item.Value); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	var err error
	if item.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if item.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return item, nil
}

// prefixClause matches encoded namespaces equal to prefix or nested under it.
// substr avoids LIKE so components may contain % and _.
const prefixClause = `(? = '' OR namespace = ? OR substr(namespace, 1, length(?)) = ?)`

func prefixArgs(prefix []string) []any {
	p := encodeNamespace(prefix)
	nested := p + separator
	return []any{p, p, nested, nested}
}

// Search implements Store.
func (s *SQLiteStore) Search(ctx context.Context, prefix []string, opts ...SearchOption) ([]*Item, error) {
	if err := validatePrefix(prefix); err != nil {
		return nil, err
	}
	o := newSearchOptions(opts)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT namespace, key, value, created_at, updated_at
		FROM store_items WHERE `+prefixClause+`
		ORDER BY rowid
	`, prefixArgs(prefix)...)
	if err != nil {
		return nil, fmt.Errorf("search items: %w", err)
	}
	defer rows.Close()

	var out []*Item
	for rows.Next() {
		if o.full(len(out)) {
			break
		}
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if o.matches(item) {
			out = append(out, item)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return out, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, namespace []string, key string) error {
	if err := validateItem(namespace, key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM store_items WHERE namespace = ? AND key = ?`,
		encodeNamespace(namespace), key,
	); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// ListNamespaces implements Store.
// Namespaces are returned in the order they first received an item.
func (s *SQLiteStore) ListNamespaces(ctx context.Context, prefix []string) ([][]string, error) {
	if err := validatePrefix(prefix); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT namespace FROM store_items WHERE `+prefixClause+`
		GROUP BY namespace ORDER BY MIN(rowid)
	`, prefixArgs(prefix)...)
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, fmt.Errorf("scan namespace: %w", err)
		}
		out = append(out, decodeNamespace(ns))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate namespaces: %w", err)
	}
	return out, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
