package lockfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ccgo-build/ccgo/pkg/dag"
	"github.com/ccgo-build/ccgo/pkg/errors"
	"github.com/ccgo-build/ccgo/pkg/manifest"
	"github.com/ccgo-build/ccgo/pkg/resolver"
	"github.com/ccgo-build/ccgo/pkg/semver"
	"github.com/ccgo-build/ccgo/pkg/source"
)

const fmtURL = "https://github.com/fmtlib/fmt.git"

func makePlan(t *testing.T) *resolver.Plan {
	t.Helper()
	g := dag.New()
	if err := g.AddNode("app", dag.Candidate{
		Version:    semver.MustParse("0.1.0"),
		Source:     source.Path("/work/app", ""),
		RequiredBy: "(root)",
	}); err != nil {
		t.Fatal(err)
	}
	fmtSrc := source.Git(fmtURL, "10.2.1", "", "")
	if err := g.AddNode("fmt", dag.Candidate{
		Version:    semver.MustParse("10.2.1"),
		Source:     fmtSrc,
		RequiredBy: "app",
		Constraint: "^10.1",
	}); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge("app", "fmt"); err != nil {
		t.Fatal(err)
	}
	node, _ := g.Node("fmt")
	node.Checksum = "sha256:" + strings.Repeat("ab", 32)

	order, err := g.TopoSort()
	if err != nil {
		t.Fatal(err)
	}
	return &resolver.Plan{
		Graph:     g,
		Order:     order,
		Strategy:  resolver.StrategyFirst,
		Roots:     []string{"app"},
		Revisions: map[string]string{"fmt": "abc123"},
		Patched:   map[string]source.Descriptor{},
	}
}

func manifestFor(t *testing.T, constraint string) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Parse([]byte(`
[package]
name = "app"
version = "0.1.0"

[dependencies]
fmt = "`+constraint+`"
`), "/work/app")
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestRoundTrip(t *testing.T) {
	plan := makePlan(t)
	path := filepath.Join(t.TempDir(), Filename)
	if err := Write(path, plan); err != nil {
		t.Fatal(err)
	}

	lf, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if lf.Strategy != "first" || len(lf.Packages) != 2 {
		t.Fatalf("lockfile = %+v", lf)
	}
	entry, ok := lf.Get("fmt")
	if !ok {
		t.Fatal("fmt entry missing")
	}
	if entry.Source != "git+"+fmtURL+"?tag=10.2.1#abc123" {
		t.Errorf("source = %q", entry.Source)
	}
	if entry.Checksum == "" {
		t.Error("checksum not recorded")
	}

	if ds := Verify(lf, manifestFor(t, "^10.1"), VerifyOptions{}); len(ds) != 0 {
		t.Errorf("round-trip verification found discrepancies: %v", ds)
	}
}

func TestWriteIsIdempotent(t *testing.T) {
	plan := makePlan(t)
	dir := t.TempDir()
	a := filepath.Join(dir, "a.lock")
	b := filepath.Join(dir, "b.lock")
	if err := Write(a, plan); err != nil {
		t.Fatal(err)
	}
	if err := Write(b, plan); err != nil {
		t.Fatal(err)
	}
	da, _ := os.ReadFile(a)
	db, _ := os.ReadFile(b)
	if string(da) != string(db) {
		t.Error("repeated writes of the same plan differ")
	}
}

func TestLoadMissingIsNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), Filename))
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), Filename)
	if err := os.WriteFile(path, []byte("version = 1\n[[package]]\nname = \"x\"\nversion = \"not-semver\"\nsource = \"path+/x\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, errors.ErrCodeInvalidLockfile) {
		t.Errorf("err = %v, want INVALID_LOCKFILE", err)
	}
}

func TestVerifyConstraintMismatch(t *testing.T) {
	plan := makePlan(t)
	lf, err := FromPlan(plan)
	if err != nil {
		t.Fatal(err)
	}

	ds := Verify(lf, manifestFor(t, "^11.0"), VerifyOptions{})
	if len(ds) != 1 {
		t.Fatalf("discrepancies = %v, want 1", ds)
	}
	if ds[0].Package != "fmt" || !strings.Contains(ds[0].Reason, "manifest requires ^11.0, locked at 10.2.1") {
		t.Errorf("discrepancy = %v", ds[0])
	}

	err = MismatchError(ds)
	if !errors.Is(err, errors.ErrCodeLockfileMismatch) {
		t.Fatalf("err = %v, want LOCKFILE_MISMATCH", err)
	}
	if !strings.Contains(err.Error(), "--locked") {
		t.Error("error should instruct re-running without --locked")
	}
}

func TestVerifyMissingEntry(t *testing.T) {
	lf := &Lockfile{Version: 1}
	ds := Verify(lf, manifestFor(t, "^10.1"), VerifyOptions{})
	if len(ds) != 1 || !strings.Contains(ds[0].Reason, "missing from lockfile") {
		t.Errorf("discrepancies = %v", ds)
	}
}

func TestVerifyGitPinChanged(t *testing.T) {
	plan := makePlan(t)
	lf, err := FromPlan(plan)
	if err != nil {
		t.Fatal(err)
	}

	m, err := manifest.Parse([]byte(`
[package]
name = "app"
version = "0.1.0"

[dependencies]
fmt = { git = "`+fmtURL+`", tag = "11.0.0" }
`), "/work/app")
	if err != nil {
		t.Fatal(err)
	}
	ds := Verify(lf, m, VerifyOptions{})
	if len(ds) != 1 || !strings.Contains(ds[0].Reason, "tag 11.0.0") {
		t.Errorf("discrepancies = %v", ds)
	}
}

func TestPatchProvenance(t *testing.T) {
	plan := makePlan(t)
	depSrc := source.Git("https://example.com/dep.git", "v0.1.0", "", "")
	localSrc := source.Path("/work/local-dep", "")
	if err := plan.Graph.AddNode("dep", dag.Candidate{
		Version:    semver.MustParse("0.1.0"),
		Source:     source.Patched(depSrc, localSrc),
		RequiredBy: "app",
	}); err != nil {
		t.Fatal(err)
	}
	if err := plan.Graph.AddEdge("app", "dep"); err != nil {
		t.Fatal(err)
	}
	plan.Patched["dep"] = source.Patched(depSrc, localSrc)
	order, err := plan.Graph.TopoSort()
	if err != nil {
		t.Fatal(err)
	}
	plan.Order = order

	path := filepath.Join(t.TempDir(), Filename)
	if err := Write(path, plan); err != nil {
		t.Fatal(err)
	}
	lf, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	entry, ok := lf.Get("dep")
	if !ok {
		t.Fatal("dep entry missing")
	}
	if entry.Patch == nil {
		t.Fatal("patch provenance missing")
	}
	if !entry.Patch.IsPathPatch {
		t.Error("is_path_patch not set")
	}
	if !strings.HasPrefix(entry.Patch.PatchedSource, "git+https://example.com/dep.git") {
		t.Errorf("patched_source = %q", entry.Patch.PatchedSource)
	}
	if !strings.HasPrefix(entry.Patch.ReplacementSource, "path+") {
		t.Errorf("replacement_source = %q", entry.Patch.ReplacementSource)
	}
	if entry.Checksum != "" {
		t.Error("path-patched entries cannot carry a checksum")
	}
}

func TestVerifyURLKeyedPatchOnRegistryDependency(t *testing.T) {
	g := dag.New()
	if err := g.AddNode("app", dag.Candidate{
		Version:    semver.MustParse("0.1.0"),
		Source:     source.Path("/work/app", ""),
		RequiredBy: "(root)",
	}); err != nil {
		t.Fatal(err)
	}
	regSrc := source.Registry("", semver.MustParseConstraint("^10.1"))
	localSrc := source.Path("/work/app/local-fmt", "")
	if err := g.AddNode("fmt", dag.Candidate{
		Version:    semver.MustParse("10.2.1"),
		Source:     source.Patched(regSrc, localSrc),
		RequiredBy: "app",
		Constraint: "^10.1",
	}); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge("app", "fmt"); err != nil {
		t.Fatal(err)
	}
	order, err := g.TopoSort()
	if err != nil {
		t.Fatal(err)
	}
	plan := &resolver.Plan{
		Graph:     g,
		Order:     order,
		Strategy:  resolver.StrategyFirst,
		Roots:     []string{"app"},
		Revisions: map[string]string{},
		Patched:   map[string]source.Descriptor{"fmt": source.Patched(regSrc, localSrc)},
	}

	path := filepath.Join(t.TempDir(), Filename)
	if err := Write(path, plan); err != nil {
		t.Fatal(err)
	}
	lf, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	entry, ok := lf.Get("fmt")
	if !ok {
		t.Fatal("fmt entry missing")
	}
	if entry.Patch == nil || !entry.Patch.IsPathPatch {
		t.Fatalf("patch provenance = %+v", entry.Patch)
	}

	// The manifest keys the patch by the index's git URL, not the
	// registry id the declaration carries. Verification must still pair
	// it with the locked patch entry.
	m, err := manifest.Parse([]byte(`
[package]
name = "app"
version = "0.1.0"

[dependencies]
fmt = "^10.1"

[patch."`+fmtURL+`"]
fmt = { path = "local-fmt" }
`), "/work/app")
	if err != nil {
		t.Fatal(err)
	}
	if ds := Verify(lf, m, VerifyOptions{}); len(ds) != 0 {
		t.Errorf("round-trip verification found discrepancies: %v", ds)
	}
}

func TestVerifyWorkspaceMembers(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "app"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, manifest.Filename), []byte(`
[workspace]
members = ["app"]
`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "app", manifest.Filename), []byte(`
[package]
name = "app"
version = "0.1.0"

[dependencies]
fmt = "^10.1"
`), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := manifest.Load(filepath.Join(root, manifest.Filename))
	if err != nil {
		t.Fatal(err)
	}
	members, err := m.MemberManifests()
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 1 {
		t.Fatalf("members = %d, want 1", len(members))
	}

	// A virtual root declares nothing itself; its members carry the real
	// dependencies and must be verified too.
	lf := &Lockfile{Version: 1}
	if ds := Verify(lf, m, VerifyOptions{}); len(ds) != 0 {
		t.Errorf("virtual root discrepancies = %v, want none", ds)
	}
	ds := Verify(lf, members[0], VerifyOptions{})
	if len(ds) != 1 || !strings.Contains(ds[0].Reason, "missing from lockfile") {
		t.Errorf("member discrepancies = %v", ds)
	}
}
