// Package dag implements the dependency graph built during resolution.
//
// Nodes are keyed by package name. While the graph is being built a node
// may accumulate multiple candidate (version, source) pairs from different
// requesters; conflict resolution collapses each node to exactly one before
// the graph is finalized. Cycle detection uses depth-first search with
// white/gray/black coloring and reports the full cycle path. Topological
// sorting uses Kahn's algorithm with lexicographic tie-breaking so repeated
// resolutions of an unchanged manifest produce an identical build order.
//
// Edges point from consumer to dependency; TopoSort returns dependencies
// before their consumers (install order).
//
// The graph is not safe for concurrent use without external synchronization.
package dag

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/ccgo-build/ccgo/pkg/semver"
	"github.com/ccgo-build/ccgo/pkg/source"
)

var (
	// ErrInvalidNodeName is returned by AddNode when the package name is empty.
	ErrInvalidNodeName = errors.New("node name must not be empty")

	// ErrUnknownSourceNode is returned by AddEdge when the consumer node
	// does not exist in the graph.
	ErrUnknownSourceNode = errors.New("unknown source node")

	// ErrUnknownTargetNode is returned by AddEdge when the dependency node
	// does not exist in the graph. Resolution defers edge creation until
	// after node population, so hitting this indicates a resolver bug.
	ErrUnknownTargetNode = errors.New("unknown target node")

	// ErrUnresolvedNode is returned by Validate when a node still carries
	// multiple candidate versions after conflict resolution.
	ErrUnresolvedNode = errors.New("node has unresolved version candidates")
)

// CycleError reports a directed cycle, carrying the full path for
// diagnostics (first and last element are the same package).
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " -> "))
}

// Candidate is one requester's view of a package: the concrete version and
// source its requirement resolved to, plus enough context for conflict
// diagnostics.
type Candidate struct {
	Version    semver.Version
	Source     source.Descriptor
	RequiredBy string // consumer package name, or "(root)" for the top manifest
	Constraint string // textual constraint the requester declared, "" for pins

	// Available holds every selectable version when the requirement came
	// from a registry; conflict strategies choose among these. Empty for
	// git/path pins, which are not negotiable.
	Available []semver.Version
}

// Node is one package in the graph. Version and Source hold the resolved
// values; until conflict resolution finalizes a contested node they mirror
// the first candidate seen.
type Node struct {
	Name       string
	Version    semver.Version
	Source     source.Descriptor
	Checksum   string // sha256 of the fetched tree, "" for path sources
	Candidates []Candidate
}

// Contested reports whether candidates disagree on the version or on the
// effective source. Two pins of the same version from different git URLs
// are just as ambiguous as two different versions.
func (n *Node) Contested() bool {
	first := n.Candidates[0]
	for _, c := range n.Candidates[1:] {
		if !c.Version.Equal(first.Version) || !c.Source.Effective().Equal(first.Source.Effective()) {
			return true
		}
	}
	return false
}

// Graph is the mutable dependency graph under construction.
type Graph struct {
	nodes    map[string]*Node
	outgoing map[string][]string // consumer -> dependency names
	incoming map[string][]string // dependency -> consumer names
	edgeSet  map[[2]string]bool
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		outgoing: make(map[string][]string),
		incoming: make(map[string][]string),
		edgeSet:  make(map[[2]string]bool),
	}
}

// AddNode records a candidate for the named package. Adding an identical
// (version, source) pair again is idempotent; a conflicting pair is
// appended to the node's candidate list for later conflict resolution
// rather than rejected.
func (g *Graph) AddNode(name string, cand Candidate) error {
	if name == "" {
		return ErrInvalidNodeName
	}
	n, ok := g.nodes[name]
	if !ok {
		g.nodes[name] = &Node{
			Name:       name,
			Version:    cand.Version,
			Source:     cand.Source.Effective(),
			Candidates: []Candidate{cand},
		}
		return nil
	}
	for _, c := range n.Candidates {
		if c.Version.Equal(cand.Version) && c.Source.Equal(cand.Source) && c.RequiredBy == cand.RequiredBy {
			return nil
		}
	}
	n.Candidates = append(n.Candidates, cand)
	return nil
}

// Finalize collapses a node to the chosen version and source after
// conflict resolution.
func (g *Graph) Finalize(name string, version semver.Version, src source.Descriptor) error {
	n, ok := g.nodes[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSourceNode, name)
	}
	n.Version = version
	n.Source = src.Effective()
	return nil
}

// AddEdge records that consumer depends on dependency. Both nodes must
// already exist; duplicate edges are ignored.
func (g *Graph) AddEdge(consumer, dependency string) error {
	if _, ok := g.nodes[consumer]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSourceNode, consumer)
	}
	if _, ok := g.nodes[dependency]; !ok {
		return fmt.Errorf("%w: %s (required by %s)", ErrUnknownTargetNode, dependency, consumer)
	}
	key := [2]string{consumer, dependency}
	if g.edgeSet[key] {
		return nil
	}
	g.edgeSet[key] = true
	g.outgoing[consumer] = append(g.outgoing[consumer], dependency)
	g.incoming[dependency] = append(g.incoming[dependency], consumer)
	return nil
}

// Node returns the node for name, or false if absent. The pointer refers
// to the live node; Finalize-style mutations are visible through it.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Names returns all package names in lexicographic order.
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dependencies returns the names the given package depends on, sorted.
func (g *Graph) Dependencies(name string) []string {
	deps := slices.Clone(g.outgoing[name])
	sort.Strings(deps)
	return deps
}

// Dependents returns the names that depend on the given package, sorted.
func (g *Graph) Dependents(name string) []string {
	parents := slices.Clone(g.incoming[name])
	sort.Strings(parents)
	return parents
}

// NodeCount returns the number of packages in the graph.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of distinct dependency edges.
func (g *Graph) EdgeCount() int { return len(g.edgeSet) }

// Contested returns the names of packages whose candidates disagree on the
// version, sorted for deterministic conflict reporting.
func (g *Graph) Contested() []string {
	var out []string
	for name, n := range g.nodes {
		if n.Contested() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Validate checks finalization invariants: every node collapsed to one
// version and every edge endpoint present. It does not check acyclicity;
// use DetectCycles.
func (g *Graph) Validate() error {
	for _, name := range g.Names() {
		if g.nodes[name].Contested() {
			return fmt.Errorf("%w: %s", ErrUnresolvedNode, name)
		}
	}
	return nil
}

// DetectCycles runs a three-color depth-first search and returns a
// CycleError carrying the full cycle path if the graph is cyclic, or nil.
// Traversal order is deterministic (lexicographic), so an unchanged graph
// always reports the same cycle.
func (g *Graph) DetectCycles() *CycleError {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, len(g.nodes))
	var stack []string
	var cycle []string

	var dfs func(name string) bool
	dfs = func(name string) bool {
		color[name] = gray
		stack = append(stack, name)
		for _, dep := range g.Dependencies(name) {
			switch color[dep] {
			case white:
				if dfs(dep) {
					return true
				}
			case gray:
				// Back-edge: slice the cycle out of the current path.
				start := slices.Index(stack, dep)
				cycle = append(slices.Clone(stack[start:]), dep)
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
		return false
	}

	for _, name := range g.Names() {
		if color[name] == white && dfs(name) {
			return &CycleError{Path: cycle}
		}
	}
	return nil
}

// TopoSort returns package names in install order: every dependency before
// each of its consumers. Ties are broken lexicographically (Kahn's
// algorithm over a sorted ready set) so the order is reproducible. Returns
// a CycleError if the graph is cyclic.
func (g *Graph) TopoSort() ([]string, error) {
	// remaining[n] counts n's dependencies not yet placed.
	remaining := make(map[string]int, len(g.nodes))
	var ready []string
	for _, name := range g.Names() {
		remaining[name] = len(g.outgoing[name])
		if remaining[name] == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		sort.Strings(ready)
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		for _, consumer := range g.incoming[name] {
			remaining[consumer]--
			if remaining[consumer] == 0 {
				ready = append(ready, consumer)
			}
		}
	}

	if len(order) != len(g.nodes) {
		if cyc := g.DetectCycles(); cyc != nil {
			return nil, cyc
		}
		return nil, &CycleError{}
	}
	return order, nil
}
