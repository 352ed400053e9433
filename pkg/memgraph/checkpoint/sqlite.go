package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// historyPageSize bounds how many rows History reads per query.
const historyPageSize = 64

// SQLiteStore persists checkpoints to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a new SQLite checkpoint store.
// The path should be a file path (e.g., "./checkpoints.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps ":memory:" databases coherent and serializes
	// writers, which the step check in Put relies on.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			source TEXT NOT NULL,
			node TEXT NOT NULL,
			next TEXT NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (thread_id, step)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Put implements Saver.
// The step check and insert share one transaction, so a concurrent Latest
// observes either the previous or the new checkpoint, never a partial one.
func (s *SQLiteStore) Put(ctx context.Context, cp *Checkpoint) error {
	if err := cp.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	data, err := cp.Marshal()
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	var latest sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(step) FROM checkpoints WHERE thread_id = ?`, cp.ThreadID,
	).Scan(&latest); err != nil {
		return fmt.Errorf("read latest step: %w", err)
	}
	if latest.Valid && latest.Int64 >= int64(cp.Step) {
		return ErrStepExists
	}

	if err := insertCheckpoint(ctx, tx, cp, data); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

// PutThread implements ThreadWriter. The whole log is written in one
// transaction.
func (s *SQLiteStore) PutThread(ctx context.Context, threadID string, cps []*Checkpoint) error {
	if err := validateThread(threadID, cps); err != nil {
		return err
	}

	blobs := make([][]byte, len(cps))
	for i, cp := range cps {
		data, err := cp.Marshal()
		if err != nil {
			return fmt.Errorf("marshal checkpoint: %w", err)
		}
		blobs[i] = data
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM checkpoints WHERE thread_id = ?)`, threadID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check thread: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrThreadExists, threadID)
	}

	for i, cp := range cps {
		if err := insertCheckpoint(ctx, tx, cp, blobs[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit thread: %w", err)
	}
	return nil
}

func insertCheckpoint(ctx context.Context, tx *sql.Tx, cp *Checkpoint, data []byte) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, step, id, timestamp, source, node, next, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, cp.ThreadID, cp.Step, cp.ID, cp.Timestamp.Format(time.RFC3339Nano),
		string(cp.Metadata.Source), cp.Metadata.Node, cp.Metadata.Next, data); err != nil {
		return fmt.Errorf("save checkpoint step %d: %w", cp.Step, err)
	}
	return nil
}

// Latest implements Saver.
func (s *SQLiteStore) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT data FROM checkpoints
		WHERE thread_id = ?
		ORDER BY step DESC LIMIT 1
	`, threadID))
}

// Get implements Saver.
func (s *SQLiteStore) Get(ctx context.Context, threadID string, step int) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT data FROM checkpoints
		WHERE thread_id = ? AND step = ?
	`, threadID, step))
}

func (s *SQLiteStore) scanOne(row *sql.Row) (*Checkpoint, error) {
	var data []byte
	err := row.Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	cp, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return cp, nil
}

// History implements Saver.
// Rows are read a page at a time, so stopping early avoids loading the
// whole thread.
func (s *SQLiteStore) History(ctx context.Context, threadID string) iter.Seq2[*Checkpoint, error] {
	return func(yield func(*Checkpoint, error) bool) {
		before := int64(-1)
		for {
			page, err := s.historyPage(ctx, threadID, before)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, cp := range page {
				if !yield(cp, nil) {
					return
				}
			}
			if len(page) < historyPageSize {
				return
			}
			before = int64(page[len(page)-1].Step)
		}
	}
}

// historyPage returns up to historyPageSize checkpoints with step < before,
// newest first. A negative before starts from the latest checkpoint.
func (s *SQLiteStore) historyPage(ctx context.Context, threadID string, before int64) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM checkpoints
		WHERE thread_id = ? AND (? < 0 OR step < ?)
		ORDER BY step DESC
		LIMIT ?
	`, threadID, before, before, historyPageSize)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var page []*Checkpoint
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		cp, err := Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("decode checkpoint: %w", err)
		}
		page = append(page, cp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return page, nil
}

// Threads implements Saver.
func (s *SQLiteStore) Threads(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT thread_id FROM checkpoints ORDER BY thread_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threads: %w", err)
	}
	return ids, nil
}

// Close implements Saver.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
