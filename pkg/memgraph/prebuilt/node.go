package prebuilt

import (
	"fmt"
	"log/slog"

	"github.com/randalmurphal/memgraph/pkg/memgraph"
	"github.com/randalmurphal/memgraph/pkg/memgraph/message"
)

// Decisions returned by ToolsCondition.
const (
	DecisionTools memgraph.Decision = "tools"
	DecisionEnd   memgraph.Decision = "end"
)

// ToolNode returns a node that runs every tool call on the last message
// and appends one tool message per call, in call order.
//
// A failing or unknown tool does not fail the node: its error text becomes
// the tool message content so the model can react to it. If the last
// message carries no tool calls the node writes nothing.
func ToolNode[S any](messages memgraph.ListField[S, message.Message], tools *ToolSet) memgraph.NodeFunc[S] {
	if tools == nil {
		panic("prebuilt: tool set cannot be nil")
	}
	return func(ctx memgraph.Context, state S) (memgraph.Update[S], error) {
		last, ok := message.Last(messages.Get(state))
		if !ok || !last.HasToolCalls() {
			return nil, nil
		}

		results := make([]message.Message, 0, len(last.ToolCalls))
		for _, call := range last.ToolCalls {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			results = append(results, message.ToolResult(call, runTool(ctx, tools, call)))
		}
		return memgraph.Update[S]{messages.Append(results...)}, nil
	}
}

func runTool(ctx memgraph.Context, tools *ToolSet, call message.ToolCall) string {
	tool, ok := tools.Get(call.Name)
	if !ok {
		ctx.Logger().Warn("unknown tool requested",
			slog.String("tool", call.Name),
			slog.String("call_id", call.ID),
		)
		return fmt.Sprintf("error: unknown tool %q", call.Name)
	}

	out, err := tool.Call(ctx, call.Arguments)
	if err != nil {
		ctx.Logger().Warn("tool call failed",
			slog.String("tool", call.Name),
			slog.String("call_id", call.ID),
			slog.String("error", err.Error()),
		)
		return "error: " + err.Error()
	}

	ctx.Logger().Debug("tool call completed",
		slog.String("tool", call.Name),
		slog.String("call_id", call.ID),
	)
	return out
}

// ToolsCondition returns a branch that picks DecisionTools when the last
// message requests tool calls and DecisionEnd otherwise.
func ToolsCondition[S any](messages memgraph.ListField[S, message.Message]) memgraph.BranchFunc[S] {
	return func(_ memgraph.Context, state S) memgraph.Decision {
		if last, ok := message.Last(messages.Get(state)); ok && last.HasToolCalls() {
			return DecisionTools
		}
		return DecisionEnd
	}
}

// ToolsRoutes is the decision table for ToolsCondition: tool calls go to
// toolNode, anything else ends the run.
func ToolsRoutes(toolNode string) map[memgraph.Decision]string {
	return map[memgraph.Decision]string{
		DecisionTools: toolNode,
		DecisionEnd:   memgraph.END,
	}
}
