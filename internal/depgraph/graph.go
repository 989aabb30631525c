// Package depgraph validates the dependency relationships between managed
// processes and produces the order in which they must be started.
package depgraph

import (
	"fmt"
	"sort"
)

// color tracks three-color DFS state for cycle detection.
type color int

const (
	white color = iota // unvisited
	gray               // in progress (on the current DFS stack)
	black              // done
)

// Graph is the dependent -> dependencies adjacency built from process specs.
type Graph struct {
	nodes map[string][]string
}

// New builds a Graph from a map of process name to its depends_on list.
func New(dependsOn map[string][]string) *Graph {
	nodes := make(map[string][]string, len(dependsOn))
	for name, deps := range dependsOn {
		cp := make([]string, len(deps))
		copy(cp, deps)
		nodes[name] = cp
	}
	return &Graph{nodes: nodes}
}

// Validate checks that every dependency name exists and that the graph of
// dependent -> dependency edges is acyclic. Cycle detection uses three-color
// DFS: descending into a gray (in-progress) node means a cycle closes there.
func (g *Graph) Validate() error {
	for name, deps := range g.nodes {
		for _, dep := range deps {
			if _, ok := g.nodes[dep]; !ok {
				return fmt.Errorf("process %q depends on unknown process %q", name, dep)
			}
			if dep == name {
				return fmt.Errorf("process %q depends on itself", name)
			}
		}
	}

	colors := make(map[string]color, len(g.nodes))
	for name := range g.nodes {
		if colors[name] == white {
			if cycle := g.findCycle(name, colors, nil); cycle != "" {
				return fmt.Errorf("Cyclic dependency detected: %s", cycle)
			}
		}
	}
	return nil
}

func (g *Graph) findCycle(name string, colors map[string]color, path []string) string {
	colors[name] = gray
	path = append(path, name)

	for _, dep := range g.nodes[name] {
		switch colors[dep] {
		case gray:
			return cyclePath(path, dep)
		case white:
			if cycle := g.findCycle(dep, colors, path); cycle != "" {
				return cycle
			}
		}
	}

	colors[name] = black
	return ""
}

func cyclePath(path []string, closesAt string) string {
	start := 0
	for i, n := range path {
		if n == closesAt {
			start = i
			break
		}
	}
	segment := append(append([]string{}, path[start:]...), closesAt)
	out := segment[0]
	for _, n := range segment[1:] {
		out += " -> " + n
	}
	return out
}

// TopologicalSort returns start_order: every node appears after all of its
// dependencies. Tie-breaking among processes with no ordering constraint
// between them is alphabetical, for determinism of output shape only — callers
// must not rely on it beyond the dependency ordering guarantee.
func (g *Graph) TopologicalSort() ([]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	colors := make(map[string]color, len(g.nodes))
	order := make([]string, 0, len(g.nodes))

	var visit func(name string)
	visit = func(name string) {
		if colors[name] != white {
			return
		}
		colors[name] = gray
		deps := append([]string{}, g.nodes[name]...)
		sort.Strings(deps)
		for _, dep := range deps {
			visit(dep)
		}
		colors[name] = black
		order = append(order, name)
	}

	for _, name := range names {
		visit(name)
	}

	return order, nil
}

// StopOrder returns the reverse of start_order.
func StopOrder(startOrder []string) []string {
	n := len(startOrder)
	out := make([]string, n)
	for i, name := range startOrder {
		out[n-1-i] = name
	}
	return out
}
