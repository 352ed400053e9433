// Package message defines the conversation records carried in graph state.
package message

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Role identifies who produced a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// ToolCall is a request from the assistant to invoke a named tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Message is one entry of a conversation.
// Messages are appended to state in conversation order and never rewritten.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set on assistant messages that request tool execution.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool result back to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Name is the tool name on tool messages.
	Name string `json:"name,omitempty"`
}

func newMessage(role Role, content string) Message {
	return Message{
		ID:      uuid.New().String(),
		Role:    role,
		Content: content,
	}
}

// User creates a user message.
func User(content string) Message {
	return newMessage(RoleUser, content)
}

// Assistant creates an assistant message.
func Assistant(content string) Message {
	return newMessage(RoleAssistant, content)
}

// System creates a system message.
func System(content string) Message {
	return newMessage(RoleSystem, content)
}

// ToolResult creates a tool message answering the given call.
func ToolResult(call ToolCall, content string) Message {
	m := newMessage(RoleTool, content)
	m.ToolCallID = call.ID
	m.Name = call.Name
	return m
}

// AssistantToolCalls creates an assistant message that requests tool calls.
// Calls without an ID get one assigned.
func AssistantToolCalls(content string, calls ...ToolCall) Message {
	m := newMessage(RoleAssistant, content)
	m.ToolCalls = make([]ToolCall, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			c.ID = "call_" + uuid.New().String()[:8]
		}
		m.ToolCalls[i] = c
	}
	return m
}

// HasToolCalls reports whether the message requests any tool calls.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// Validate checks that the message has a known role and that tool
// messages reference a call.
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("message %s: unknown role %q", m.ID, m.Role)
	}
	if m.Role == RoleTool && m.ToolCallID == "" {
		return fmt.Errorf("message %s: tool message without tool_call_id", m.ID)
	}
	if len(m.ToolCalls) > 0 && m.Role != RoleAssistant {
		return fmt.Errorf("message %s: only assistant messages may carry tool calls", m.ID)
	}
	return nil
}

// Last returns the final message in msgs, or false if msgs is empty.
func Last(msgs []Message) (Message, bool) {
	if len(msgs) == 0 {
		return Message{}, false
	}
	return msgs[len(msgs)-1], true
}

// LastByRole returns the most recent message with the given role.
func LastByRole(msgs []Message, role Role) (Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == role {
			return msgs[i], true
		}
	}
	return Message{}, false
}
