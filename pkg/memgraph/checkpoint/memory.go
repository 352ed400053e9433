package checkpoint

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"
)

// MemoryStore is an in-memory checkpoint store.
// Data is lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string][]*Checkpoint // threadID -> checkpoints in step order
	closed  bool
}

// NewMemoryStore creates a new in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads: make(map[string][]*Checkpoint),
	}
}

// Put implements Saver.
func (m *MemoryStore) Put(_ context.Context, cp *Checkpoint) error {
	if err := cp.validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	log := m.threads[cp.ThreadID]
	if n := len(log); n > 0 && log[n-1].Step >= cp.Step {
		return ErrStepExists
	}

	// Copy to avoid retaining caller's memory
	m.threads[cp.ThreadID] = append(log, cp.Clone())
	return nil
}

// PutThread implements ThreadWriter.
func (m *MemoryStore) PutThread(_ context.Context, threadID string, cps []*Checkpoint) error {
	if err := validateThread(threadID, cps); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if len(m.threads[threadID]) > 0 {
		return fmt.Errorf("%w: %s", ErrThreadExists, threadID)
	}

	log := make([]*Checkpoint, len(cps))
	for i, cp := range cps {
		log[i] = cp.Clone()
	}
	m.threads[threadID] = log
	return nil
}

// Latest implements Saver.
func (m *MemoryStore) Latest(_ context.Context, threadID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	log := m.threads[threadID]
	if len(log) == 0 {
		return nil, ErrNotFound
	}
	return log[len(log)-1].Clone(), nil
}

// Get implements Saver.
func (m *MemoryStore) Get(_ context.Context, threadID string, step int) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	log := m.threads[threadID]
	i := sort.Search(len(log), func(i int) bool { return log[i].Step >= step })
	if i == len(log) || log[i].Step != step {
		return nil, ErrNotFound
	}
	return log[i].Clone(), nil
}

// History implements Saver.
// The log is captured when iteration starts; stored checkpoints are never
// mutated, so reading them after the lock is released is safe.
func (m *MemoryStore) History(_ context.Context, threadID string) iter.Seq2[*Checkpoint, error] {
	return func(yield func(*Checkpoint, error) bool) {
		m.mu.RLock()
		closed := m.closed
		log := m.threads[threadID]
		m.mu.RUnlock()

		if closed {
			yield(nil, ErrStoreClosed)
			return
		}
		for i := len(log) - 1; i >= 0; i-- {
			if !yield(log[i].Clone(), nil) {
				return
			}
		}
	}
}

// Threads implements Saver.
func (m *MemoryStore) Threads(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	ids := make([]string, 0, len(m.threads))
	for id := range m.threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close implements Saver.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.threads = nil
	return nil
}

// Len returns the total number of checkpoints across all threads.
// Useful for testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, log := range m.threads {
		count += len(log)
	}
	return count
}
