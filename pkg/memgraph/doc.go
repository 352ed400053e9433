/*
Package memgraph provides a graph execution engine with per-thread
checkpointed state and a namespaced long-term store, for building chat
agents and other multi-step workflows.

# Overview

A graph is a set of named nodes joined by edges. Each node reads the
current state and returns a partial update; the graph merges the update
through a schema that gives every state field a reducer (replace, append
or merge). After every step the merged state is appended to a
checkpointer under the run's thread, so invoking the same thread again
continues the conversation instead of starting over.

# Basic Usage

Declare a state type and its schema, add nodes and edges, then compile and
invoke:

	type Chat struct {
	    Messages []message.Message `json:"messages"`
	    Turns    int               `json:"turns"`
	}

	var (
	    messages = memgraph.MessagesField(func(s *Chat) *[]message.Message { return &s.Messages })
	    turns    = memgraph.ReplaceField("turns", func(s *Chat) *int { return &s.Turns })
	)

	func echo(ctx memgraph.Context, s Chat) (memgraph.Update[Chat], error) {
	    last, _ := message.Last(s.Messages)
	    return memgraph.Update[Chat]{
	        messages.Append(message.Assistant(last.Content + "!")),
	        turns.Set(s.Turns + 1),
	    }, nil
	}

	graph, err := memgraph.NewGraph(memgraph.NewSchema[Chat](messages, turns)).
	    AddNode("echo", echo).
	    AddEdge(memgraph.START, "echo").
	    AddEdge("echo", memgraph.END).
	    Compile(memgraph.WithCheckpointer(checkpoint.NewMemoryStore()))
	if err != nil {
	    log.Fatal(err)
	}

	cfg := config.NewRunConfig("thread-1", nil)
	final, err := graph.Invoke(ctx, memgraph.Update[Chat]{
	    messages.Append(message.User("hi")),
	}, cfg)

# Conditional Edges

A branch function maps the merged state to a Decision, which the decision
table given to AddConditionalEdges turns into the next node:

	graph.AddConditionalEdges("chatbot", route, map[memgraph.Decision]string{
	    "tools": "tools",
	    "done":  memgraph.END,
	})

A decision missing from the table fails the run with an
*UnmappedBranchError. Loops are allowed and bounded by WithMaxSteps.

# Checkpoints and History

Each step appends exactly one checkpoint; nothing is ever overwritten. A
node that fails appends nothing, so the thread's latest checkpoint still
names the failed node as next and invoking the thread with empty input
retries it. GetState, GetStateAt and GetStateHistory read the log; Fork
copies a prefix of it into a new thread; UpdateState appends an external
edit.

# Streaming

Stream yields an event after every step. The sequence is pull-based: the
next node runs only when the consumer asks for the next event.

# Interrupts

A node can pause the run by returning Interrupt(payload). Invoke returns
an *InterruptError, and the thread is resumed with WithResume(value); the
re-run node reads value through Context.Resume.

# Long-Term Memory

The store package holds values addressed by a namespace and a key,
independent of any thread. Graphs compiled WithStore expose it to nodes
through Context.Store.

# Observability

Runs log through log/slog and can record OpenTelemetry metrics and traces:

	final, err := graph.Invoke(ctx, input, cfg,
	    memgraph.WithLogger(logger),
	    memgraph.WithMetrics(true),
	    memgraph.WithTracing(true))

Spans are named memgraph.run and memgraph.node.{id}.

# Thread Safety

  - Graph[S] is NOT safe for concurrent use during construction
  - CompiledGraph[S] IS safe for concurrent use (immutable)
  - Checkpoint savers and stores are safe for concurrent use

# Subpackages

  - checkpoint: Append-only checkpoint logs (memory, SQLite)
  - store: Namespaced long-term store (memory, SQLite, Redis)
  - config: Run configuration (thread_id, user_id) and file loading
  - message: Chat message records
  - prebuilt: Tool-calling node and routing helpers
  - signal: Per-thread inbox for human approvals
  - observability: Logging, metrics, and tracing helpers
*/
package memgraph
