package memgraph

// START is the virtual source node. AddEdge(START, id) makes id the entry.
const START = "__start__"

// END is the terminal node identifier.
// Use this as an edge target to indicate the graph should terminate.
const END = "__end__"

// NodeFunc is the signature for all node functions.
// Nodes receive the execution context and a copy of the current state, and
// return a partial update that the graph merges through its schema.
// Returning an empty Update leaves the state unchanged.
//
// Example:
//
//	func chatbot(ctx memgraph.Context, s Chat) (memgraph.Update[Chat], error) {
//	    reply := message.Assistant("hello")
//	    return memgraph.Update[Chat]{messages.Append(reply)}, nil
//	}
type NodeFunc[S any] func(ctx Context, state S) (Update[S], error)

// Decision is the outcome of a BranchFunc. It selects the next node
// through the decision table given to AddConditionalEdges.
type Decision string

// BranchFunc picks the outgoing transition after a node has run.
// It sees the state with the node's update already merged.
//
// Example:
//
//	func route(ctx memgraph.Context, s Chat) memgraph.Decision {
//	    if last, ok := message.Last(s.Messages); ok && last.HasToolCalls() {
//	        return "tools"
//	    }
//	    return "done"
//	}
type BranchFunc[S any] func(ctx Context, state S) Decision
