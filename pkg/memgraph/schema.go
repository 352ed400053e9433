package memgraph

import (
	"errors"
	"fmt"
	"maps"
	"sync/atomic"

	"github.com/randalmurphal/memgraph/pkg/memgraph/message"
)

// Reducer names how a field combines an update with its current value.
type Reducer string

// Reducers.
const (
	// ReducerReplace overwrites the field with the latest write.
	ReducerReplace Reducer = "replace"
	// ReducerAppend concatenates written elements after the existing ones.
	ReducerAppend Reducer = "append"
	// ReducerMerge unions written map entries into the field; written keys win.
	ReducerMerge Reducer = "merge"
)

// Field is a named state field with a reducer. Fields are created with
// ReplaceField, AppendField or MergeField and listed in a Schema.
type Field interface {
	Name() string
	Reducer() Reducer
	fieldID() uint64
}

// fieldIDs numbers field declarations. A schema accepts writes only from
// the declarations it lists, not from another field of the same name.
var fieldIDs atomic.Uint64

func nextFieldID() uint64 { return fieldIDs.Add(1) }

// Write is a single typed write to one state field.
type Write[S any] struct {
	field string
	id    uint64
	apply func(*S)
}

// Field returns the name of the field written.
func (w Write[S]) Field() string {
	return w.field
}

// Update is an ordered list of field writes returned by a node or passed
// as run input. The zero Update means "no change".
type Update[S any] []Write[S]

// Fields returns the written field names in write order.
func (u Update[S]) Fields() []string {
	names := make([]string, len(u))
	for i, w := range u {
		names[i] = w.field
	}
	return names
}

// ValueField is a field replaced by each write.
type ValueField[S, V any] struct {
	name     string
	id       uint64
	accessor func(*S) *V
}

// ReplaceField declares a field whose writes replace the current value.
// accessor returns a pointer to the field inside a state value.
//
// Panics if name is empty or accessor is nil.
func ReplaceField[S, V any](name string, accessor func(*S) *V) ValueField[S, V] {
	mustField(name, accessor == nil)
	return ValueField[S, V]{name: name, accessor: accessor, id: nextFieldID()}
}

func (f ValueField[S, V]) Name() string     { return f.name }
func (f ValueField[S, V]) fieldID() uint64  { return f.id }
func (f ValueField[S, V]) Reducer() Reducer { return ReducerReplace }

// Get reads the field from a state value.
func (f ValueField[S, V]) Get(s S) V {
	return *f.accessor(&s)
}

// Set returns a write that replaces the field with v. Zero values are
// written like any other value.
func (f ValueField[S, V]) Set(v V) Write[S] {
	return Write[S]{field: f.name, id: f.id, apply: func(s *S) { *f.accessor(s) = v }}
}

// ListField is a field whose writes append elements.
type ListField[S, E any] struct {
	name     string
	id       uint64
	accessor func(*S) *[]E
}

// AppendField declares a slice field whose writes append elements in order.
// Elements are never deduplicated.
//
// Panics if name is empty or accessor is nil.
func AppendField[S, E any](name string, accessor func(*S) *[]E) ListField[S, E] {
	mustField(name, accessor == nil)
	return ListField[S, E]{name: name, accessor: accessor, id: nextFieldID()}
}

func (f ListField[S, E]) Name() string     { return f.name }
func (f ListField[S, E]) fieldID() uint64  { return f.id }
func (f ListField[S, E]) Reducer() Reducer { return ReducerAppend }

// Get reads the field from a state value.
func (f ListField[S, E]) Get(s S) []E {
	return *f.accessor(&s)
}

// Append returns a write that appends values after the existing elements.
// The result is a new slice, so states from earlier steps never share a
// backing array with later ones.
func (f ListField[S, E]) Append(values ...E) Write[S] {
	values = append([]E(nil), values...)
	return Write[S]{field: f.name, id: f.id, apply: func(s *S) {
		p := f.accessor(s)
		out := make([]E, 0, len(*p)+len(values))
		out = append(out, *p...)
		*p = append(out, values...)
	}}
}

// MapField is a field whose writes union map entries.
type MapField[S any, K comparable, V any] struct {
	name     string
	id       uint64
	accessor func(*S) *map[K]V
}

// MergeField declares a map field whose writes add or overwrite entries.
//
// Panics if name is empty or accessor is nil.
func MergeField[S any, K comparable, V any](name string, accessor func(*S) *map[K]V) MapField[S, K, V] {
	mustField(name, accessor == nil)
	return MapField[S, K, V]{name: name, accessor: accessor, id: nextFieldID()}
}

func (f MapField[S, K, V]) Name() string     { return f.name }
func (f MapField[S, K, V]) fieldID() uint64  { return f.id }
func (f MapField[S, K, V]) Reducer() Reducer { return ReducerMerge }

// Get reads the field from a state value.
func (f MapField[S, K, V]) Get(s S) map[K]V {
	return *f.accessor(&s)
}

// Merge returns a write that copies entries into the field. The result is
// a new map.
func (f MapField[S, K, V]) Merge(entries map[K]V) Write[S] {
	entries = maps.Clone(entries)
	return Write[S]{field: f.name, id: f.id, apply: func(s *S) {
		p := f.accessor(s)
		out := make(map[K]V, len(*p)+len(entries))
		maps.Copy(out, *p)
		maps.Copy(out, entries)
		*p = out
	}}
}

func mustField(name string, nilAccessor bool) {
	if name == "" {
		panic("memgraph: field name cannot be empty")
	}
	if nilAccessor {
		panic("memgraph: field accessor cannot be nil")
	}
}

// Schema declares the fields of a state type and how each merges.
type Schema[S any] struct {
	fields []Field
	index  map[string]Field
}

// NewSchema creates a schema from fields. Duplicate or missing fields are
// reported by Validate, which Compile calls.
func NewSchema[S any](fields ...Field) *Schema[S] {
	s := &Schema[S]{
		fields: append([]Field(nil), fields...),
		index:  make(map[string]Field, len(fields)),
	}
	for _, f := range fields {
		if _, dup := s.index[f.Name()]; !dup {
			s.index[f.Name()] = f
		}
	}
	return s
}

// Fields returns the declared fields in declaration order.
func (s *Schema[S]) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Has reports whether name is a declared field.
func (s *Schema[S]) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Validate checks that the schema declares at least one field and no
// field twice.
func (s *Schema[S]) Validate() error {
	if s == nil || len(s.fields) == 0 {
		return fmt.Errorf("%w: no fields declared", ErrInvalidSchema)
	}
	var errs []error
	seen := make(map[string]bool, len(s.fields))
	for _, f := range s.fields {
		if seen[f.Name()] {
			errs = append(errs, fmt.Errorf("%w: duplicate field %q", ErrInvalidSchema, f.Name()))
		}
		seen[f.Name()] = true
	}
	return errors.Join(errs...)
}

// Apply merges update into state, applying writes left to right, and
// returns the new state with the names of the fields written.
// state itself is not modified.
//
// Returns ErrUnknownField if a write comes from a field the schema does
// not list, including another declaration that reuses a listed name; in
// that case none of the update is applied.
func (s *Schema[S]) Apply(state S, update Update[S]) (S, []string, error) {
	for _, w := range update {
		f, ok := s.index[w.field]
		if !ok {
			return state, nil, fmt.Errorf("%w: %q", ErrUnknownField, w.field)
		}
		if f.fieldID() != w.id {
			return state, nil, fmt.Errorf("%w: %q is declared by a different field", ErrUnknownField, w.field)
		}
	}
	if len(update) == 0 {
		return state, nil, nil
	}

	next := state
	for _, w := range update {
		w.apply(&next)
	}
	return next, update.Fields(), nil
}

// MessagesState is a ready-made state for chat graphs that only track the
// conversation.
type MessagesState struct {
	Messages []message.Message `json:"messages"`
}

// MessagesField is the conventional append-only "messages" field.
func MessagesField[S any](accessor func(*S) *[]message.Message) ListField[S, message.Message] {
	return AppendField("messages", accessor)
}

// Messages is the messages field of MessagesState.
var Messages = MessagesField(func(s *MessagesState) *[]message.Message { return &s.Messages })

// MessagesSchema returns the schema of MessagesState.
func MessagesSchema() *Schema[MessagesState] {
	return NewSchema[MessagesState](Messages)
}
