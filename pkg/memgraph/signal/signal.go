// Package signal provides a per-thread inbox for messages from outside a
// graph run, such as human approvals.
//
// Signals are fire-and-forget: an external actor sends one to a thread and
// returns immediately. The thread's approval node picks it up on its next
// run (Pending, then Ack), or a registered handler reacts to it right away,
// typically by resuming the interrupted thread.
package signal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Status represents the current state of a signal.
type Status string

// Signal status constants.
const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// Signal is a message sent to a thread.
type Signal struct {
	// ID uniquely identifies this signal.
	ID string `json:"id"`

	// Name is the signal type (e.g., "approve", "reject").
	Name string `json:"name"`

	// ThreadID is the thread the signal is addressed to.
	ThreadID string `json:"thread_id"`

	// Payload contains signal-specific data.
	Payload map[string]any `json:"payload,omitempty"`

	// SenderID identifies who sent the signal.
	SenderID string `json:"sender_id,omitempty"`

	// Status is the current signal status.
	Status Status `json:"status"`

	// Timestamps
	SentAt      time.Time  `json:"sent_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	// Error contains error details if processing failed.
	Error string `json:"error,omitempty"`
}

// NewSignal creates a pending signal with the given name for threadID.
func NewSignal(name, threadID string, payload map[string]any) *Signal {
	return &Signal{
		ID:       newID(),
		Name:     name,
		ThreadID: threadID,
		Payload:  payload,
		Status:   StatusPending,
		SentAt:   time.Now(),
	}
}

func newID() string {
	return "sig-" + uuid.New().String()[:8]
}

// WithSender sets the sender ID on the signal.
func (s *Signal) WithSender(senderID string) *Signal {
	s.SenderID = senderID
	return s
}

// Clone creates a deep copy of the signal.
func (s *Signal) Clone() *Signal {
	signalCopy := *s
	signalCopy.Payload = maps.Clone(s.Payload)
	if s.ProcessedAt != nil {
		t := *s.ProcessedAt
		signalCopy.ProcessedAt = &t
	}
	return &signalCopy
}

// Handler processes a signal sent to a thread.
type Handler func(ctx context.Context, threadID string, signal *Signal) error

// ResumeFunc continues an interrupted thread with value.
type ResumeFunc func(ctx context.Context, threadID string, value any) error

// ResumeHandler returns a handler that resumes the signal's thread with the
// signal payload as the resume value.
//
// Example:
//
//	registry.MustRegister("approve", signal.ResumeHandler(
//	    func(ctx context.Context, threadID string, value any) error {
//	        _, err := graph.Invoke(ctx, nil, cfg.WithThread(threadID), memgraph.WithResume(value))
//	        return err
//	    }))
func ResumeHandler(resume ResumeFunc) Handler {
	return func(ctx context.Context, threadID string, sig *Signal) error {
		return resume(ctx, threadID, sig.Payload)
	}
}

// Registry manages signal handlers by signal name.
type Registry struct {
	handlers map[string]Handler
	mu       sync.RWMutex
}

// NewRegistry creates a new signal registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for a signal name.
func (r *Registry) Register(signalName string, handler Handler) error {
	if signalName == "" {
		return errors.New("signal name is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[signalName]; exists {
		return fmt.Errorf("handler for signal %q already registered", signalName)
	}

	r.handlers[signalName] = handler
	return nil
}

// MustRegister registers a handler, panicking on error.
func (r *Registry) MustRegister(signalName string, handler Handler) {
	if err := r.Register(signalName, handler); err != nil {
		panic(err)
	}
}

// Get returns the handler for a signal name.
func (r *Registry) Get(signalName string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, exists := r.handlers[signalName]
	return handler, exists
}

// List returns all registered signal names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unregister removes a handler for a signal name.
func (r *Registry) Unregister(signalName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, signalName)
}

// ErrSignalNotFound is returned when a signal cannot be found.
var ErrSignalNotFound = errors.New("signal not found")

// ErrNoHandler is returned when no handler exists for a signal.
var ErrNoHandler = errors.New("no handler for signal")

// Store persists and retrieves signals.
type Store interface {
	// Enqueue adds a signal for delivery.
	Enqueue(ctx context.Context, signal *Signal) error

	// Pending returns the pending signals of a thread in the order sent.
	Pending(ctx context.Context, threadID string) ([]*Signal, error)

	// Get retrieves a signal by ID.
	Get(ctx context.Context, signalID string) (*Signal, error)

	// MarkProcessed marks a signal as successfully processed.
	MarkProcessed(ctx context.Context, signalID string) error

	// MarkFailed marks a signal as failed with an error.
	MarkFailed(ctx context.Context, signalID string, err error) error

	// ListByThread returns all signals of a thread in the order sent.
	ListByThread(ctx context.Context, threadID string) ([]*Signal, error)

	// Delete removes a signal.
	Delete(ctx context.Context, signalID string) error
}

// MemoryStore is an in-memory Store implementation.
// Signals are kept in the order they were enqueued.
type MemoryStore struct {
	signals *orderedmap.OrderedMap[string, *Signal]
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory signal store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		signals: orderedmap.New[string, *Signal](),
	}
}

// Enqueue adds a signal for delivery. Missing ID, timestamp and status are
// filled in on the caller's signal.
func (s *MemoryStore) Enqueue(_ context.Context, signal *Signal) error {
	if signal.ID == "" {
		signal.ID = newID()
	}
	if signal.SentAt.IsZero() {
		signal.SentAt = time.Now()
	}
	if signal.Status == "" {
		signal.Status = StatusPending
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.signals.Set(signal.ID, signal.Clone())
	return nil
}

// Pending returns the pending signals of a thread.
func (s *MemoryStore) Pending(_ context.Context, threadID string) ([]*Signal, error) {
	return s.filter(func(sig *Signal) bool {
		return sig.ThreadID == threadID && sig.Status == StatusPending
	}), nil
}

// ListByThread returns all signals of a thread.
func (s *MemoryStore) ListByThread(_ context.Context, threadID string) ([]*Signal, error) {
	return s.filter(func(sig *Signal) bool {
		return sig.ThreadID == threadID
	}), nil
}

func (s *MemoryStore) filter(keep func(*Signal) bool) []*Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Signal
	for pair := s.signals.Oldest(); pair != nil; pair = pair.Next() {
		if keep(pair.Value) {
			out = append(out, pair.Value.Clone())
		}
	}
	return out
}

// Get retrieves a signal by ID.
func (s *MemoryStore) Get(_ context.Context, signalID string) (*Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sig, exists := s.signals.Get(signalID)
	if !exists {
		return nil, ErrSignalNotFound
	}
	return sig.Clone(), nil
}

// MarkProcessed marks a signal as successfully processed.
func (s *MemoryStore) MarkProcessed(_ context.Context, signalID string) error {
	return s.mark(signalID, StatusProcessed, nil)
}

// MarkFailed marks a signal as failed.
func (s *MemoryStore) MarkFailed(_ context.Context, signalID string, err error) error {
	return s.mark(signalID, StatusFailed, err)
}

func (s *MemoryStore) mark(signalID string, status Status, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, exists := s.signals.Get(signalID)
	if !exists {
		return ErrSignalNotFound
	}

	now := time.Now()
	sig.Status = status
	sig.ProcessedAt = &now
	if err != nil {
		sig.Error = err.Error()
	}
	return nil
}

// Delete removes a signal.
func (s *MemoryStore) Delete(_ context.Context, signalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, present := s.signals.Delete(signalID); !present {
		return ErrSignalNotFound
	}
	return nil
}

// Dispatcher sends signals to threads and delivers them.
type Dispatcher struct {
	registry *Registry
	store    Store
	logger   *slog.Logger
}

// NewDispatcher creates a new signal dispatcher.
func NewDispatcher(registry *Registry, store Store) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		store:    store,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger for the dispatcher.
func (d *Dispatcher) WithLogger(logger *slog.Logger) *Dispatcher {
	d.logger = logger
	return d
}

// Send queues a signal for its thread.
func (d *Dispatcher) Send(ctx context.Context, signal *Signal) error {
	if signal.ThreadID == "" {
		return errors.New("thread ID is required")
	}
	if signal.Name == "" {
		return errors.New("signal name is required")
	}

	if err := d.store.Enqueue(ctx, signal); err != nil {
		return fmt.Errorf("failed to enqueue signal: %w", err)
	}

	d.logger.Debug("signal sent",
		"signal_id", signal.ID,
		"signal_name", signal.Name,
		"thread_id", signal.ThreadID,
	)

	return nil
}

// Pending returns the thread's pending signals named name, oldest first.
// An empty name matches every signal.
func (d *Dispatcher) Pending(ctx context.Context, threadID, name string) ([]*Signal, error) {
	signals, err := d.store.Pending(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending signals: %w", err)
	}
	if name == "" {
		return signals, nil
	}
	var out []*Signal
	for _, sig := range signals {
		if sig.Name == name {
			out = append(out, sig)
		}
	}
	return out, nil
}

// Ack marks a signal consumed by the node that read it.
func (d *Dispatcher) Ack(ctx context.Context, signalID string) error {
	if err := d.store.MarkProcessed(ctx, signalID); err != nil {
		return fmt.Errorf("failed to ack signal %s: %w", signalID, err)
	}
	return nil
}

// Process runs the registered handler of every pending signal of a thread,
// oldest first. A failing handler marks its signal failed and the remaining
// signals still run; the failures are returned joined, each wrapped with
// its signal ID.
func (d *Dispatcher) Process(ctx context.Context, threadID string) error {
	signals, err := d.store.Pending(ctx, threadID)
	if err != nil {
		return fmt.Errorf("failed to list pending signals: %w", err)
	}

	var errs []error
	for _, sig := range signals {
		if processErr := d.processOne(ctx, sig); processErr != nil {
			d.logger.Error("signal processing failed",
				"signal_id", sig.ID,
				"signal_name", sig.Name,
				"thread_id", threadID,
				"error", processErr,
			)
			errs = append(errs, fmt.Errorf("signal %s (%s): %w", sig.ID, sig.Name, processErr))
		}
	}
	return errors.Join(errs...)
}

// processOne processes a single signal.
func (d *Dispatcher) processOne(ctx context.Context, sig *Signal) error {
	handler, exists := d.registry.Get(sig.Name)
	if !exists {
		d.logger.Warn("no handler for signal",
			"signal_name", sig.Name,
			"signal_id", sig.ID,
		)
		d.markFailed(ctx, sig.ID, ErrNoHandler)
		return ErrNoHandler
	}

	if handleErr := handler(ctx, sig.ThreadID, sig); handleErr != nil {
		d.markFailed(ctx, sig.ID, handleErr)
		return handleErr
	}

	if markErr := d.store.MarkProcessed(ctx, sig.ID); markErr != nil {
		d.logger.Error("failed to mark signal as processed",
			"signal_id", sig.ID,
			"error", markErr,
		)
	}

	d.logger.Debug("signal processed",
		"signal_id", sig.ID,
		"signal_name", sig.Name,
		"thread_id", sig.ThreadID,
	)

	return nil
}

func (d *Dispatcher) markFailed(ctx context.Context, signalID string, cause error) {
	if markErr := d.store.MarkFailed(ctx, signalID, cause); markErr != nil {
		d.logger.Error("failed to mark signal as failed",
			"signal_id", signalID,
			"error", markErr,
		)
	}
}

// ProcessOne processes a specific signal by ID.
func (d *Dispatcher) ProcessOne(ctx context.Context, signalID string) error {
	sig, err := d.store.Get(ctx, signalID)
	if err != nil {
		return err
	}
	return d.processOne(ctx, sig)
}
