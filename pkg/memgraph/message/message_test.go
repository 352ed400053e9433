package message_test

import (
	"encoding/json"
	"testing"

	"github.com/randalmurphal/memgraph/pkg/memgraph/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		msg  message.Message
		role message.Role
	}{
		{"user", message.User("hi"), message.RoleUser},
		{"assistant", message.Assistant("hello"), message.RoleAssistant},
		{"system", message.System("loaded"), message.RoleSystem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.role, tt.msg.Role)
			assert.NotEmpty(t, tt.msg.ID)
			assert.NoError(t, tt.msg.Validate())
		})
	}
}

func TestAssistantToolCalls_AssignsIDs(t *testing.T) {
	m := message.AssistantToolCalls("",
		message.ToolCall{Name: "lookup", Arguments: json.RawMessage(`{"q":"x"}`)},
		message.ToolCall{ID: "fixed", Name: "other"},
	)

	require.True(t, m.HasToolCalls())
	require.Len(t, m.ToolCalls, 2)
	assert.NotEmpty(t, m.ToolCalls[0].ID)
	assert.Equal(t, "fixed", m.ToolCalls[1].ID)
	assert.NoError(t, m.Validate())
}

func TestToolResult_LinksCall(t *testing.T) {
	call := message.ToolCall{ID: "call_1", Name: "weather"}
	m := message.ToolResult(call, "sunny")

	assert.Equal(t, message.RoleTool, m.Role)
	assert.Equal(t, "call_1", m.ToolCallID)
	assert.Equal(t, "weather", m.Name)
	assert.NoError(t, m.Validate())
}

func TestValidate_Rejects(t *testing.T) {
	t.Run("unknown role", func(t *testing.T) {
		m := message.Message{Role: "robot"}
		assert.Error(t, m.Validate())
	})

	t.Run("tool without call id", func(t *testing.T) {
		m := message.Message{Role: message.RoleTool, Content: "x"}
		assert.Error(t, m.Validate())
	})

	t.Run("tool calls on user message", func(t *testing.T) {
		m := message.User("x")
		m.ToolCalls = []message.ToolCall{{ID: "1", Name: "t"}}
		assert.Error(t, m.Validate())
	})
}

func TestLastAndLastByRole(t *testing.T) {
	_, ok := message.Last(nil)
	assert.False(t, ok)

	msgs := []message.Message{
		message.User("first"),
		message.Assistant("reply"),
		message.User("second"),
		message.System("note"),
	}

	last, ok := message.Last(msgs)
	require.True(t, ok)
	assert.Equal(t, "note", last.Content)

	user, ok := message.LastByRole(msgs, message.RoleUser)
	require.True(t, ok)
	assert.Equal(t, "second", user.Content)

	_, ok = message.LastByRole(msgs, message.RoleTool)
	assert.False(t, ok)
}
