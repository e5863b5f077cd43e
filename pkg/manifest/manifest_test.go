package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ccgo-build/ccgo/pkg/errors"
	"github.com/ccgo-build/ccgo/pkg/source"
)

const basicManifest = `
[package]
name = "myapp"
version = "1.0.0"

[dependencies]
fmt = "^10.1"
spdlog = { git = "https://github.com/gabime/spdlog.git", tag = "v1.12.0" }
mylib = { path = "../mylib" }
zlib = { version = "~1.3", registry = "conan-center" }
boost = "github:boostorg/boost@boost-1.84.0"
`

func TestParseBasic(t *testing.T) {
	m, err := Parse([]byte(basicManifest), "/work/myapp")
	if err != nil {
		t.Fatal(err)
	}
	if m.Package.Name != "myapp" || m.Package.Version.String() != "1.0.0" {
		t.Errorf("package = %s %s", m.Package.Name, m.Package.Version)
	}

	names := make([]string, len(m.Dependencies))
	for i, d := range m.Dependencies {
		names[i] = d.Name
	}
	want := []string{"fmt", "spdlog", "mylib", "zlib", "boost"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("declaration order = %v, want %v", names, want)
		}
	}

	byName := make(map[string]Dependency)
	for _, d := range m.Dependencies {
		byName[d.Name] = d
	}

	if d := byName["fmt"]; d.Source.Kind != source.KindRegistry || d.ConstraintSpec != "^10.1" {
		t.Errorf("fmt = %+v", d)
	}
	if d := byName["spdlog"]; d.Source.Kind != source.KindGit || d.Source.Tag != "v1.12.0" {
		t.Errorf("spdlog = %+v", d)
	}
	if d := byName["mylib"]; d.Source.Path != filepath.Clean("/work/mylib") {
		t.Errorf("mylib path = %s, want /work/mylib", d.Source.Path)
	}
	if d := byName["zlib"]; d.Source.Registry != "conan-center" {
		t.Errorf("zlib registry = %q", d.Source.Registry)
	}
	if d := byName["boost"]; d.Source.Tag != "boost-1.84.0" {
		t.Errorf("boost tag = %q", d.Source.Tag)
	}
}

func TestParseAmbiguousGitRef(t *testing.T) {
	bad := `
[dependencies]
dep = { git = "https://example.com/a/b.git", tag = "v1.0.0", branch = "main" }
`
	_, err := Parse([]byte(bad), "/work")
	if !errors.Is(err, errors.ErrCodeAmbiguousGitRef) {
		t.Errorf("err = %v, want AMBIGUOUS_GIT_REF", err)
	}
}

func TestParseGitNoSelector(t *testing.T) {
	bad := `
[dependencies]
dep = { git = "https://example.com/a/b.git" }
`
	_, err := Parse([]byte(bad), "/work")
	if !errors.Is(err, errors.ErrCodeAmbiguousGitRef) {
		t.Errorf("err = %v, want AMBIGUOUS_GIT_REF", err)
	}
}

func TestParseMalformedTOML(t *testing.T) {
	_, err := Parse([]byte("[dependencies\nfmt = \"1.0\""), "/work")
	if !errors.Is(err, errors.ErrCodeInvalidManifest) {
		t.Errorf("err = %v, want INVALID_MANIFEST", err)
	}
}

func TestParseBadConstraint(t *testing.T) {
	_, err := Parse([]byte("[dependencies]\nfmt = \"^^1.0\""), "/work")
	if err == nil {
		t.Error("expected constraint error")
	}
}

func TestFeaturesAndOptional(t *testing.T) {
	src := `
[package]
name = "app"
version = "0.1.0"

[dependencies]
core = "^1.0"
gui = { version = "^2.0", optional = true }
audio = { version = "^3.0", optional = true }

[features]
desktop = ["gui", "audio"]
minimal = ["gui"]
`
	m, err := Parse([]byte(src), "/work")
	if err != nil {
		t.Fatal(err)
	}

	deps := m.DependenciesFor("linux", nil)
	if len(deps) != 1 || deps[0].Name != "core" {
		t.Errorf("no features: %v", deps)
	}

	deps = m.DependenciesFor("linux", []string{"minimal"})
	if len(deps) != 2 || deps[1].Name != "gui" {
		t.Errorf("minimal: %v", deps)
	}

	deps = m.DependenciesFor("linux", []string{"desktop"})
	if len(deps) != 3 {
		t.Errorf("desktop: %v", deps)
	}
}

func TestFeatureNamesNonOptionalDep(t *testing.T) {
	src := `
[dependencies]
core = "^1.0"

[features]
extra = ["core"]
`
	_, err := Parse([]byte(src), "/work")
	if !errors.Is(err, errors.ErrCodeInvalidManifest) {
		t.Errorf("err = %v, want INVALID_MANIFEST", err)
	}
}

func TestTargetConditionalDependencies(t *testing.T) {
	src := `
[dependencies]
common = "^1.0"

[target.'cfg(target_os = "windows")'.dependencies]
winreg = "^0.5"

[target.'cfg(unix)'.dependencies]
posixlib = "^2.0"
`
	m, err := Parse([]byte(src), "/work")
	if err != nil {
		t.Fatal(err)
	}

	got := m.DependenciesFor("windows", nil)
	if len(got) != 2 || got[1].Name != "winreg" {
		t.Errorf("windows deps: %v", got)
	}
	got = m.DependenciesFor("linux", nil)
	if len(got) != 2 || got[1].Name != "posixlib" {
		t.Errorf("linux deps: %v", got)
	}
	got = m.DependenciesFor("", nil)
	if len(got) != 1 {
		t.Errorf("platformless resolution should keep only unconditional deps: %v", got)
	}
}

func TestMalformedTargetPredicate(t *testing.T) {
	src := `
[target.'cfg('.dependencies]
x = "^1.0"
`
	_, err := Parse([]byte(src), "/work")
	if !errors.Is(err, errors.ErrCodeInvalidManifest) {
		t.Errorf("err = %v, want INVALID_MANIFEST", err)
	}
}

func TestPatches(t *testing.T) {
	src := `
[dependencies]
fmt = "^10.0"

[patch."https://github.com/gabime/spdlog.git"]
spdlog = { git = "https://github.com/myfork/spdlog.git", branch = "fix" }

[patch."registry"]
fmt = { path = "vendored/fmt" }
`
	m, err := Parse([]byte(src), "/work")
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Patches) != 2 {
		t.Fatalf("patches = %d, want 2", len(m.Patches))
	}
	byKey := make(map[string]Patch)
	for _, p := range m.Patches {
		byKey[p.Key] = p
	}
	if p := byKey["https://github.com/gabime/spdlog.git"]; p.Name != "spdlog" || p.Replacement.Branch != "fix" {
		t.Errorf("url patch = %+v", p)
	}
	if p := byKey["registry"]; p.Replacement.Kind != source.KindPath || p.Replacement.Path != filepath.Clean("/work/vendored/fmt") {
		t.Errorf("registry patch = %+v", p)
	}
}

func TestWorkspaceInheritance(t *testing.T) {
	root := `
[workspace]
members = ["lib1", "app"]

[workspace.dependencies]
fmt = "^10.0"
`
	member := `
[package]
name = "lib1"
version = "0.1.0"

[dependencies]
fmt = { workspace = true }
local = "^1.0"
`
	rm, err := Parse([]byte(root), "/ws")
	if err != nil {
		t.Fatal(err)
	}
	if rm.Workspace == nil || len(rm.Workspace.Members) != 2 {
		t.Fatalf("workspace = %+v", rm.Workspace)
	}

	mm, err := Parse([]byte(member), "/ws/lib1")
	if err != nil {
		t.Fatal(err)
	}
	if err := mm.ApplyWorkspace(rm.Workspace); err != nil {
		t.Fatal(err)
	}
	var fmtDep Dependency
	for _, d := range mm.Dependencies {
		if d.Name == "fmt" {
			fmtDep = d
		}
	}
	if fmtDep.ConstraintSpec != "^10.0" || fmtDep.Source.Kind != source.KindRegistry {
		t.Errorf("inherited fmt = %+v", fmtDep)
	}
}

func TestWorkspaceMissingSharedDeclaration(t *testing.T) {
	member := `
[package]
name = "lib1"

[dependencies]
fmt = { workspace = true }
`
	mm, err := Parse([]byte(member), "/ws/lib1")
	if err != nil {
		t.Fatal(err)
	}
	if err := mm.ApplyWorkspace(&Workspace{}); !errors.Is(err, errors.ErrCodeInvalidManifest) {
		t.Errorf("err = %v, want INVALID_MANIFEST", err)
	}
}

func TestLoadAndEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, Filename)
	if err := os.WriteFile(path, []byte(basicManifest), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if m.Dir != dir {
		t.Errorf("Dir = %s, want %s", m.Dir, dir)
	}

	if err := AddDependency(path, "catch2", "^3.4"); err != nil {
		t.Fatal(err)
	}
	m, err = Load(path)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, d := range m.Dependencies {
		if d.Name == "catch2" && d.ConstraintSpec == "^3.4" {
			found = true
		}
	}
	if !found {
		t.Error("added dependency missing after reload")
	}

	if err := RemoveDependency(path, "catch2"); err != nil {
		t.Fatal(err)
	}
	if err := RemoveDependency(path, "catch2"); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("removing absent dep: err = %v, want NOT_FOUND", err)
	}
}

func TestAddDependencyValidatesSpec(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, Filename)
	if err := os.WriteFile(path, []byte("[package]\nname = \"x\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := AddDependency(path, "bad", "not a constraint !!"); err == nil {
		t.Error("expected validation error")
	}
}
