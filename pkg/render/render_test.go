package render

import (
	"strings"
	"testing"

	"github.com/ccgo-build/ccgo/pkg/dag"
	"github.com/ccgo-build/ccgo/pkg/resolver"
	"github.com/ccgo-build/ccgo/pkg/semver"
	"github.com/ccgo-build/ccgo/pkg/source"
)

func testPlan(t *testing.T) *resolver.Plan {
	t.Helper()
	g := dag.New()
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(g.AddNode("app", dag.Candidate{
		Version: semver.MustParse("0.1.0"),
		Source:  source.Path("/work/app", ""),
	}))
	must(g.AddNode("fmt", dag.Candidate{
		Version: semver.MustParse("10.2.1"),
		Source:  source.Git("https://github.com/fmtlib/fmt.git", "10.2.1", "", ""),
	}))
	must(g.AddEdge("app", "fmt"))
	order, err := g.TopoSort()
	must(err)
	return &resolver.Plan{
		Graph:     g,
		Order:     order,
		Strategy:  resolver.StrategyFirst,
		Roots:     []string{"app"},
		Revisions: map[string]string{"fmt": "abcdef0123456789"},
		Patched:   map[string]source.Descriptor{},
	}
}

func TestToDOT(t *testing.T) {
	dot := ToDOT(testPlan(t), Options{})
	for _, want := range []string{
		`"fmt" [label="fmt 10.2.1"`,
		`"app" [label="app 0.1.0"`,
		`"app" -> "fmt";`,
		"digraph dependencies {",
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q:\n%s", want, dot)
		}
	}
}

func TestToDOTDetailed(t *testing.T) {
	dot := ToDOT(testPlan(t), Options{Detailed: true})
	if !strings.Contains(dot, "rev abcdef012345") {
		t.Errorf("detailed DOT should include the short revision:\n%s", dot)
	}
	if !strings.Contains(dot, "git https://github.com/fmtlib/fmt.git") {
		t.Errorf("detailed DOT should include the source:\n%s", dot)
	}
}

func TestToDOTMarksPatched(t *testing.T) {
	plan := testPlan(t)
	plan.Patched["fmt"] = source.Patched(
		source.Git("https://github.com/fmtlib/fmt.git", "10.2.1", "", ""),
		source.Path("/work/local-fmt", ""),
	)
	dot := ToDOT(plan, Options{})
	if !strings.Contains(dot, "dashed") {
		t.Errorf("patched node should be dashed:\n%s", dot)
	}
}

func TestToDOTDeterministic(t *testing.T) {
	plan := testPlan(t)
	if ToDOT(plan, Options{}) != ToDOT(plan, Options{}) {
		t.Error("repeated exports differ")
	}
}
