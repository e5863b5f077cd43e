package dag

import (
	"errors"
	"slices"
	"testing"

	"github.com/ccgo-build/ccgo/pkg/semver"
	"github.com/ccgo-build/ccgo/pkg/source"
)

func v(t *testing.T, s string) semver.Version {
	t.Helper()
	ver, err := semver.Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return ver
}

func gitSrc(name string) source.Descriptor {
	return source.Git("https://github.com/test/"+name+".git", "v1.0.0", "", "")
}

func addNode(t *testing.T, g *Graph, name, version string) {
	t.Helper()
	if err := g.AddNode(name, Candidate{Version: v(t, version), Source: gitSrc(name), RequiredBy: "(root)"}); err != nil {
		t.Fatalf("AddNode(%s): %v", name, err)
	}
}

func addEdge(t *testing.T, g *Graph, from, to string) {
	t.Helper()
	if err := g.AddEdge(from, to); err != nil {
		t.Fatalf("AddEdge(%s -> %s): %v", from, to, err)
	}
}

func TestAddNodeIdempotent(t *testing.T) {
	g := New()
	cand := Candidate{Version: v(t, "1.0.0"), Source: gitSrc("a"), RequiredBy: "(root)"}
	if err := g.AddNode("a", cand); err != nil {
		t.Fatal(err)
	}
	if err := g.AddNode("a", cand); err != nil {
		t.Fatal(err)
	}
	n, _ := g.Node("a")
	if len(n.Candidates) != 1 {
		t.Errorf("identical re-insertion should be idempotent, got %d candidates", len(n.Candidates))
	}
}

func TestAddNodeDefersConflicts(t *testing.T) {
	g := New()
	addNode(t, g, "libC", "1.0.0")
	if err := g.AddNode("libC", Candidate{Version: v(t, "2.0.0"), Source: gitSrc("libC"), RequiredBy: "libB"}); err != nil {
		t.Fatalf("conflicting re-insertion must not error: %v", err)
	}

	n, _ := g.Node("libC")
	if !n.Contested() {
		t.Error("node with two versions should be contested")
	}
	if got := g.Contested(); !slices.Equal(got, []string{"libC"}) {
		t.Errorf("Contested() = %v", got)
	}
	if err := g.Validate(); !errors.Is(err, ErrUnresolvedNode) {
		t.Errorf("Validate on contested graph = %v", err)
	}

	if err := g.Finalize("libC", v(t, "2.0.0"), gitSrc("libC")); err != nil {
		t.Fatal(err)
	}
	n.Candidates = n.Candidates[1:2] // conflict resolution keeps the winner
	if err := g.Validate(); err != nil {
		t.Errorf("Validate after finalize: %v", err)
	}
}

func TestAddNodeEmptyName(t *testing.T) {
	g := New()
	if err := g.AddNode("", Candidate{}); !errors.Is(err, ErrInvalidNodeName) {
		t.Errorf("got %v", err)
	}
}

func TestAddEdgeDangling(t *testing.T) {
	g := New()
	addNode(t, g, "app", "1.0.0")

	if err := g.AddEdge("app", "missing"); !errors.Is(err, ErrUnknownTargetNode) {
		t.Errorf("missing target: got %v", err)
	}
	if err := g.AddEdge("ghost", "app"); !errors.Is(err, ErrUnknownSourceNode) {
		t.Errorf("missing source: got %v", err)
	}
}

func TestDetectCyclesReportsPath(t *testing.T) {
	g := New()
	for _, n := range []string{"a", "b", "c"} {
		addNode(t, g, n, "1.0.0")
	}
	addEdge(t, g, "a", "b")
	addEdge(t, g, "b", "c")
	addEdge(t, g, "c", "a")

	cyc := g.DetectCycles()
	if cyc == nil {
		t.Fatal("expected cycle")
	}
	want := []string{"a", "b", "c", "a"}
	if !slices.Equal(cyc.Path, want) {
		t.Errorf("cycle path = %v, want %v", cyc.Path, want)
	}

	if _, err := g.TopoSort(); err == nil {
		t.Error("TopoSort on cyclic graph should fail")
	}
}

func TestDetectCyclesAcyclic(t *testing.T) {
	g := New()
	for _, n := range []string{"app", "lib1", "lib2"} {
		addNode(t, g, n, "1.0.0")
	}
	addEdge(t, g, "app", "lib1")
	addEdge(t, g, "app", "lib2")
	addEdge(t, g, "lib2", "lib1")

	if cyc := g.DetectCycles(); cyc != nil {
		t.Fatalf("unexpected cycle: %v", cyc)
	}
}

func TestTopoSortDependenciesFirst(t *testing.T) {
	// Workspace scenario: app -> lib1, app -> lib2, lib2 -> lib1.
	g := New()
	for _, n := range []string{"app", "lib2", "lib1"} {
		addNode(t, g, n, "1.0.0")
	}
	addEdge(t, g, "app", "lib1")
	addEdge(t, g, "app", "lib2")
	addEdge(t, g, "lib2", "lib1")

	order, err := g.TopoSort()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"lib1", "lib2", "app"}
	if !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestTopoSortDeterministic(t *testing.T) {
	build := func(names []string) []string {
		g := New()
		for _, n := range names {
			addNode(t, g, n, "1.0.0")
		}
		addNode(t, g, "root", "1.0.0")
		for _, n := range names {
			addEdge(t, g, "root", n)
		}
		order, err := g.TopoSort()
		if err != nil {
			t.Fatal(err)
		}
		return order
	}

	a := build([]string{"zlib", "fmt", "catch2", "abseil"})
	b := build([]string{"catch2", "abseil", "zlib", "fmt"})
	if !slices.Equal(a, b) {
		t.Errorf("insertion order leaked into topological order: %v vs %v", a, b)
	}
	want := []string{"abseil", "catch2", "fmt", "zlib", "root"}
	if !slices.Equal(a, want) {
		t.Errorf("order = %v, want %v", a, want)
	}
}

func TestDependenciesAndDependents(t *testing.T) {
	g := New()
	for _, n := range []string{"app", "fmt", "zlib"} {
		addNode(t, g, n, "1.0.0")
	}
	addEdge(t, g, "app", "fmt")
	addEdge(t, g, "app", "zlib")
	addEdge(t, g, "app", "fmt") // duplicate ignored

	if deps := g.Dependencies("app"); !slices.Equal(deps, []string{"fmt", "zlib"}) {
		t.Errorf("Dependencies = %v", deps)
	}
	if parents := g.Dependents("fmt"); !slices.Equal(parents, []string{"app"}) {
		t.Errorf("Dependents = %v", parents)
	}
	if g.EdgeCount() != 2 {
		t.Errorf("EdgeCount = %d, want 2", g.EdgeCount())
	}
}

func TestContestedSourceDivergence(t *testing.T) {
	g := New()
	addNode(t, g, "zlib", "1.3.1")
	if err := g.AddNode("zlib", Candidate{
		Version:    v(t, "1.3.1"),
		Source:     source.Git("https://github.com/fork/zlib.git", "v1.0.0", "", ""),
		RequiredBy: "libpng",
	}); err != nil {
		t.Fatal(err)
	}

	n, _ := g.Node("zlib")
	if !n.Contested() {
		t.Error("same version from two different git URLs should be contested")
	}
	if got := g.Contested(); !slices.Equal(got, []string{"zlib"}) {
		t.Errorf("Contested() = %v", got)
	}
}
