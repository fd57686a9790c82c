// Package graph implements the workflow state machine that drives a
// planning run: named nodes over a shared state record, unconditional
// edges, conditional routers evaluated on post-node state, and a hard
// transition cap. Execution is sequential within a run; the graph itself
// is immutable after construction and safe to share across runs.
package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/tripwright/tripwright/pkg/models"
)

// End is the terminal sink name. Routing to End stops the run.
const End = "__end__"

// ErrRecursionLimit reports that a run exceeded its transition budget.
// This is an engine fault, distinct from the orchestrator's bounded-loop
// max_iters termination which ends a run normally.
var ErrRecursionLimit = errors.New("graph recursion limit exceeded")

// EngineError is a fatal graph-runtime failure: a broken route, an
// unknown node, or an exceeded transition budget.
type EngineError struct {
	Code string
	Node string
	Err  error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("graph engine error [%s] at node %q: %v", e.Code, e.Node, e.Err)
	}
	return fmt.Sprintf("graph engine error [%s] at node %q", e.Code, e.Node)
}

func (e *EngineError) Unwrap() error { return e.Err }

// Engine error codes.
const (
	CodeRecursionLimit = "RECURSION_LIMIT"
	CodeUnknownNode    = "UNKNOWN_NODE"
	CodeNoRoute        = "NO_ROUTE"
	CodeNodeFailed     = "NODE_FAILED"
	CodeCanceled       = "CANCELED"
)

// NodeFunc is one unit of work. Nodes mutate the state in place and
// return the same pointer; a non-nil error is fatal to the run.
type NodeFunc func(ctx context.Context, s *models.TripState) (*models.TripState, error)

// RouterFunc resolves the next node name from post-node state. Returning
// End terminates the run.
type RouterFunc func(s *models.TripState) string

// RunOptions tune one execution.
type RunOptions struct {
	// RecursionLimit caps node transitions. Zero selects
	// DefaultRecursionLimit.
	RecursionLimit int
}

// DefaultRecursionLimit bounds a run when the caller does not supply a
// budget. Drivers should pass at least 10x their orchestrator loop cap.
const DefaultRecursionLimit = 200

// Graph is a registry of nodes and edges with a designated entry point.
// Build it once, then Invoke or Stream it per run.
type Graph struct {
	nodes   map[string]NodeFunc
	edges   map[string]string
	routers map[string]RouterFunc
	entry   string
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes:   make(map[string]NodeFunc),
		edges:   make(map[string]string),
		routers: make(map[string]RouterFunc),
	}
}

// AddNode registers a named node. Registering a duplicate or empty name
// is a programming error and returns an error.
func (g *Graph) AddNode(name string, fn NodeFunc) error {
	if name == "" || name == End {
		return fmt.Errorf("invalid node name %q", name)
	}
	if fn == nil {
		return fmt.Errorf("node %q: nil func", name)
	}
	if _, ok := g.nodes[name]; ok {
		return fmt.Errorf("node %q already registered", name)
	}
	g.nodes[name] = fn
	return nil
}

// AddEdge registers an unconditional transition from one node to another
// (or to End).
func (g *Graph) AddEdge(from, to string) {
	g.edges[from] = to
}

// AddConditionalEdge registers a router consulted when no unconditional
// edge exists for the node.
func (g *Graph) AddConditionalEdge(from string, router RouterFunc) {
	g.routers[from] = router
}

// SetEntryPoint designates the node executed first.
func (g *Graph) SetEntryPoint(name string) {
	g.entry = name
}

// Invoke runs the graph to the sink and returns the final state.
func (g *Graph) Invoke(ctx context.Context, s *models.TripState, opts RunOptions) (*models.TripState, error) {
	return g.Stream(ctx, s, opts, nil)
}

// Stream runs the graph, calling fn (when non-nil) with a task event
// before each node and a task_result or task_error event after it.
// Observers must not mutate event state.
func (g *Graph) Stream(ctx context.Context, s *models.TripState, opts RunOptions, fn func(Event)) (*models.TripState, error) {
	limit := opts.RecursionLimit
	if limit <= 0 {
		limit = DefaultRecursionLimit
	}
	if g.entry == "" {
		return s, &EngineError{Code: CodeUnknownNode, Node: "", Err: errors.New("no entry point")}
	}

	current := g.entry
	transitions := 0
	for current != End {
		if err := ctx.Err(); err != nil {
			return s, &EngineError{Code: CodeCanceled, Node: current, Err: err}
		}
		if transitions >= limit {
			return s, &EngineError{Code: CodeRecursionLimit, Node: current, Err: ErrRecursionLimit}
		}

		node, ok := g.nodes[current]
		if !ok {
			return s, &EngineError{Code: CodeUnknownNode, Node: current}
		}

		emit(fn, Event{Type: EventTask, Payload: EventPayload{Name: current, State: s}})
		out, err := node(ctx, s)
		if err != nil {
			emit(fn, Event{Type: EventTaskError, Payload: EventPayload{Name: current, State: s, Err: err}})
			return s, &EngineError{Code: CodeNodeFailed, Node: current, Err: err}
		}
		if out != nil {
			s = out
		}
		emit(fn, Event{Type: EventTaskResult, Payload: EventPayload{Name: current, State: s}})

		next, err := g.route(current, s)
		if err != nil {
			return s, err
		}
		current = next
		transitions++
	}
	return s, nil
}

// route resolves the next node: exact edge first, then the router, then
// failure. Routing to a name that is neither a node nor End is fatal.
func (g *Graph) route(from string, s *models.TripState) (string, error) {
	next, ok := g.edges[from]
	if !ok {
		router, rok := g.routers[from]
		if !rok {
			return "", &EngineError{Code: CodeNoRoute, Node: from}
		}
		next = router(s)
	}
	if next == End {
		return End, nil
	}
	if _, ok := g.nodes[next]; !ok {
		return "", &EngineError{Code: CodeUnknownNode, Node: next}
	}
	return next, nil
}

func emit(fn func(Event), ev Event) {
	if fn != nil {
		fn(ev)
	}
}
