// Package graph builds the target dependency DAG from a frozen build
// model, detects cycles, and produces a topological order for the Driver to
// iterate targets in.
//
// The topological sort is Kahn's algorithm, breaking ties by insertion
// order instead of sorting names alphabetically, as SPEC_FULL.md §4.3
// requires for run-to-run stability. Cycle detection is a three-set DFS
// (unvisited/on-stack/done) adapted to return the actual cycle path
// instead of a boolean.
package graph

import (
	"fmt"
	"sync"

	"github.com/lbt-build/lbt/internal/errs"
	"github.com/lbt-build/lbt/internal/model"
)

// Node is one target in the dependency graph: its outgoing edges to
// dependency target names, plus the names it links against that did not
// resolve to a graph node (external/system libraries).
type Node struct {
	Name         string
	Edges        []string // dependency target names, edge Name -> Edges[i]
	ExternalLibs []string
}

// Graph is the acyclic target dependency graph. Reads are safe for
// concurrent use; it is never mutated after New returns.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	order []string // insertion order, mirrors model.TargetNames()
}

// New builds a Graph from a frozen model. One edge is added per explicit
// Target.Deps() entry and per Target.Links() entry that names another
// target; names that match no target are recorded as ExternalLibs instead
// of edges, per SPEC_FULL.md §4.3.
func New(m *model.Model) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*Node)}

	for _, name := range m.TargetNames() {
		g.nodes[name] = &Node{Name: name}
		g.order = append(g.order, name)
	}

	for _, t := range m.Targets() {
		n := g.nodes[t.Name()]
		seen := map[string]bool{}

		addEdge := func(depName string) {
			if depName == t.Name() {
				return // self-dependency is not a useful edge; ignored rather than erroring
			}
			if _, ok := g.nodes[depName]; !ok {
				n.ExternalLibs = appendUnique(n.ExternalLibs, depName)
				return
			}
			if !seen[depName] {
				seen[depName] = true
				n.Edges = append(n.Edges, depName)
			}
		}

		for _, dep := range t.Deps() {
			addEdge(dep)
		}
		for _, lib := range t.Links() {
			addEdge(lib)
		}
	}

	return g, nil
}

func appendUnique(s []string, v string) []string {
	for _, existing := range s {
		if existing == v {
			return s
		}
	}
	return append(s, v)
}

func (g *Graph) Node(name string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[name]
	return n, ok
}

// TopologicalOrder returns target names such that for every edge u -> v
// (u depends on v), v precedes u. Ties are broken by insertion order.
func (g *Graph) TopologicalOrder() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	// inDegree here counts, for node v, how many nodes depend on it (i.e.
	// how many outgoing edges point at v) -- v can be emitted once none of
	// its dependents remain unresolved... but we actually want dependency
	// order, so we instead track remaining *unresolved dependencies* per
	// node and emit a node once that count hits zero.
	remaining := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string, len(g.nodes)) // dep -> nodes that depend on it

	for _, name := range g.order {
		remaining[name] = len(g.nodes[name].Edges)
	}
	for _, name := range g.order {
		for _, dep := range g.nodes[name].Edges {
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var queue []string
	for _, name := range g.order {
		if remaining[name] == 0 {
			queue = append(queue, name)
		}
	}

	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		out = append(out, cur)

		for _, dependent := range dependents[cur] {
			remaining[dependent]--
			if remaining[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(out) != len(g.nodes) {
		path, _ := g.detectCycleLocked()
		return nil, &errs.CycleError{Path: path}
	}

	return out, nil
}

// DetectCycle runs a DFS with an explicit recursion stack and returns the
// first cycle found, as the sequence of node names on the stack at the
// closing back-edge.
func (g *Graph) DetectCycle() ([]string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.detectCycleLocked()
}

func (g *Graph) detectCycleLocked() ([]string, bool) {
	const (
		unvisited = 0
		onStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(g.nodes))
	var stack []string

	var visit func(name string) []string
	visit = func(name string) []string {
		state[name] = onStack
		stack = append(stack, name)

		for _, dep := range g.nodes[name].Edges {
			switch state[dep] {
			case onStack:
				// close the cycle: return the stack slice from dep's first
				// occurrence through the current node.
				for i, s := range stack {
					if s == dep {
						cycle := append([]string(nil), stack[i:]...)
						return append(cycle, dep)
					}
				}
			case unvisited:
				if cyc := visit(dep); cyc != nil {
					return cyc
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[name] = done
		return nil
	}

	for _, name := range g.order {
		if state[name] == unvisited {
			if cyc := visit(name); cyc != nil {
				return cyc, true
			}
		}
	}
	return nil, false
}

// ReverseClosure returns every target whose dependency closure contains
// name -- i.e. every node that (transitively) depends on name. Used for
// visibility propagation: if a target's include dirs change, everything in
// its reverse closure may need re-evaluation.
func (g *Graph) ReverseClosure(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	dependents := make(map[string][]string, len(g.nodes))
	for _, n := range g.nodes {
		for _, dep := range n.Edges {
			dependents[dep] = append(dependents[dep], n.Name)
		}
	}

	seen := map[string]bool{}
	var out []string
	var walk func(string)
	walk = func(cur string) {
		for _, dependent := range dependents[cur] {
			if !seen[dependent] {
				seen[dependent] = true
				out = append(out, dependent)
				walk(dependent)
			}
		}
	}
	walk(name)
	return out
}

func (g *Graph) String() string {
	return fmt.Sprintf("graph(%d nodes)", len(g.nodes))
}
