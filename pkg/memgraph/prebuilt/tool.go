// Package prebuilt provides ready-made nodes and branches for tool-calling
// chat graphs.
//
// A model node appends an assistant message carrying tool calls;
// ToolsCondition routes to the tool node, which runs every call and appends
// one tool message per call; the graph then loops back to the model:
//
//	graph := memgraph.NewGraph(memgraph.MessagesSchema()).
//	    AddNode("chatbot", chatbot).
//	    AddNode("tools", prebuilt.ToolNode(memgraph.Messages, tools)).
//	    AddEdge(memgraph.START, "chatbot").
//	    AddConditionalEdges("chatbot", prebuilt.ToolsCondition(memgraph.Messages),
//	        prebuilt.ToolsRoutes("tools")).
//	    AddEdge("tools", "chatbot")
package prebuilt

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"sync"
)

// Tool is a function a model can call by name.
type Tool interface {
	// Name is the identifier the model uses in a tool call.
	Name() string
	// Description tells the model what the tool does.
	Description() string
	// Call runs the tool with JSON-encoded arguments and returns the text
	// given back to the model.
	Call(ctx context.Context, args json.RawMessage) (string, error)
}

// FuncTool adapts a function to the Tool interface.
type FuncTool struct {
	name        string
	description string
	fn          func(ctx context.Context, args json.RawMessage) (string, error)
}

// NewFuncTool creates a tool from fn.
//
// Panics if name is empty or fn is nil.
func NewFuncTool(name, description string, fn func(ctx context.Context, args json.RawMessage) (string, error)) *FuncTool {
	if name == "" {
		panic("prebuilt: tool name cannot be empty")
	}
	if fn == nil {
		panic("prebuilt: tool function cannot be nil")
	}
	return &FuncTool{name: name, description: description, fn: fn}
}

func (t *FuncTool) Name() string        { return t.name }
func (t *FuncTool) Description() string { return t.description }

// Call implements Tool.
func (t *FuncTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	return t.fn(ctx, args)
}

// ToolSet is a thread-safe set of tools indexed by name.
type ToolSet struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolSet creates a set holding tools.
//
// Panics if a tool is nil or two tools share a name.
func NewToolSet(tools ...Tool) *ToolSet {
	s := &ToolSet{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		s.Register(t)
	}
	return s
}

// Register adds a tool.
//
// Panics if t is nil or a tool with the same name is already registered.
func (s *ToolSet) Register(t Tool) {
	if t == nil {
		panic("prebuilt: tool cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tools[t.Name()]; exists {
		panic("prebuilt: duplicate tool '" + t.Name() + "'")
	}
	s.tools[t.Name()] = t
}

// Get returns the tool registered under name.
func (s *ToolSet) Get(name string) (Tool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (s *ToolSet) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.tools))
}

// Len returns the number of registered tools.
func (s *ToolSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tools)
}
