// Package manifest reads and normalizes CCGO.toml files.
//
// Dependency entries come in two shapes: a bare string ("^10.1",
// "github:user/repo@v1.2.3") or a table ({ git = "...", tag = "..." }).
// Both are normalized into a [source.Descriptor] during load, before any
// resolver logic runs, so everything downstream is statically typed.
// Declaration order is preserved (it drives the "first" conflict strategy)
// and structural validation - including the exactly-one-git-ref rule -
// happens here, not at fetch time.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/ccgo-build/ccgo/pkg/errors"
	"github.com/ccgo-build/ccgo/pkg/semver"
	"github.com/ccgo-build/ccgo/pkg/source"
)

// Filename is the manifest file name looked up in package roots.
const Filename = "CCGO.toml"

// Package identifies the manifest's own package.
type Package struct {
	Name    string
	Version semver.Version
}

// Dependency is one normalized dependency declaration.
type Dependency struct {
	Name           string
	Source         source.Descriptor
	ConstraintSpec string // textual constraint for diagnostics, "" for pins
	Optional       bool   // materialized only when a feature enables it
	Cfg            string // platform predicate, "" for unconditional
	FromWorkspace  bool   // declared as { workspace = true }
}

// Patch rewrites the source of a named dependency whose pre-patch source
// matches Key (exact URL, path, or registry id).
type Patch struct {
	Key         string
	Name        string
	Replacement source.Descriptor
}

// Workspace is the optional monorepo table.
type Workspace struct {
	Members      []string
	Dependencies []Dependency // shared declarations members may inherit
}

// Manifest is a fully normalized CCGO.toml.
type Manifest struct {
	Package      Package
	Dependencies []Dependency // declaration order preserved
	Features     map[string][]string
	Patches      []Patch
	Registries   map[string]string // registry id -> index repository URL
	Workspace    *Workspace

	Dir  string // directory the manifest was loaded from (absolute)
	Path string // full path of the manifest file
}

// rawManifest is the untyped TOML shape before normalization.
type rawManifest struct {
	Package struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"package"`
	Dependencies map[string]any            `toml:"dependencies"`
	Features     map[string][]string       `toml:"features"`
	Patch        map[string]map[string]any `toml:"patch"`
	Registries   map[string]string         `toml:"registries"`
	Target       map[string]struct {
		Dependencies map[string]any `toml:"dependencies"`
	} `toml:"target"`
	Workspace *struct {
		Members      []string       `toml:"members"`
		Resolver     string         `toml:"resolver"`
		Dependencies map[string]any `toml:"dependencies"`
	} `toml:"workspace"`
}

// Load reads and normalizes the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "read %s", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(data, filepath.Dir(abs))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse %s", path)
	}
	m.Path = abs
	return m, nil
}

// Parse normalizes manifest bytes. dir anchors relative path dependencies.
func Parse(data []byte, dir string) (*Manifest, error) {
	var raw rawManifest
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "malformed TOML")
	}

	m := &Manifest{
		Package:    Package{Name: raw.Package.Name},
		Features:   raw.Features,
		Registries: raw.Registries,
		Dir:        dir,
	}
	if raw.Package.Version != "" {
		v, err := semver.Parse(raw.Package.Version)
		if err != nil {
			return nil, err
		}
		m.Package.Version = v
	}

	// Plain dependencies, in declaration order.
	for _, name := range keysInOrder(md, "dependencies") {
		dep, err := normalizeDependency(name, raw.Dependencies[name], dir, "")
		if err != nil {
			return nil, err
		}
		m.Dependencies = append(m.Dependencies, dep)
	}

	// Platform-conditional dependencies.
	for _, cfg := range keysInOrder(md, "target") {
		if err := validateCfg(cfg); err != nil {
			return nil, err
		}
		target := raw.Target[cfg]
		for _, name := range keysInOrder(md, "target", cfg, "dependencies") {
			dep, err := normalizeDependency(name, target.Dependencies[name], dir, cfg)
			if err != nil {
				return nil, err
			}
			m.Dependencies = append(m.Dependencies, dep)
		}
	}

	if err := m.normalizePatches(md, raw, dir); err != nil {
		return nil, err
	}
	if err := m.normalizeWorkspace(md, raw, dir); err != nil {
		return nil, err
	}
	if err := m.validateFeatures(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manifest) normalizePatches(md toml.MetaData, raw rawManifest, dir string) error {
	for _, key := range keysInOrder(md, "patch") {
		entries := raw.Patch[key]
		names := make([]string, 0, len(entries))
		for name := range entries {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			repl, err := normalizeDependency(name, entries[name], dir, "")
			if err != nil {
				return errors.Wrap(errors.ErrCodeInvalidManifest, err, "patch %q", key)
			}
			m.Patches = append(m.Patches, Patch{Key: key, Name: name, Replacement: repl.Source})
		}
	}
	return nil
}

func (m *Manifest) normalizeWorkspace(md toml.MetaData, raw rawManifest, dir string) error {
	if raw.Workspace == nil {
		return nil
	}
	ws := &Workspace{Members: raw.Workspace.Members}
	for _, name := range keysInOrder(md, "workspace", "dependencies") {
		dep, err := normalizeDependency(name, raw.Workspace.Dependencies[name], dir, "")
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidManifest, err, "workspace dependency %q", name)
		}
		if dep.FromWorkspace {
			return errors.New(errors.ErrCodeInvalidManifest,
				"workspace dependency %q cannot itself set workspace = true", name)
		}
		ws.Dependencies = append(ws.Dependencies, dep)
	}
	m.Workspace = ws
	return nil
}

func (m *Manifest) validateFeatures() error {
	optional := make(map[string]bool)
	for _, dep := range m.Dependencies {
		if dep.Optional {
			optional[dep.Name] = true
		}
	}
	for feature, deps := range m.Features {
		for _, name := range deps {
			if !optional[name] {
				return errors.New(errors.ErrCodeInvalidManifest,
					"feature %q enables %q, which is not an optional dependency", feature, name)
			}
		}
	}
	return nil
}

// normalizeDependency converts one raw entry (string or table) into a
// Dependency with a validated Descriptor.
func normalizeDependency(name string, value any, dir, cfg string) (Dependency, error) {
	dep := Dependency{Name: name, Cfg: cfg}

	switch v := value.(type) {
	case string:
		d, err := source.ParseShorthand(v)
		if err != nil {
			return Dependency{}, err
		}
		dep.Source = d
		if d.Kind == source.KindRegistry {
			dep.ConstraintSpec = d.Constraint.String()
		}

	case map[string]any:
		if err := fillFromTable(&dep, v, dir); err != nil {
			return Dependency{}, errors.Wrap(errors.ErrCodeInvalidManifest, err, "dependency %q", name)
		}

	default:
		return Dependency{}, errors.New(errors.ErrCodeInvalidManifest,
			"dependency %q must be a version string or a table, got %T", name, value)
	}

	if dep.FromWorkspace {
		// Placeholder until ApplyWorkspace substitutes the shared declaration.
		return dep, nil
	}
	if err := dep.Source.Validate(); err != nil {
		return Dependency{}, err
	}
	return dep, nil
}

func fillFromTable(dep *Dependency, table map[string]any, dir string) error {
	str := func(key string) (string, error) {
		v, ok := table[key]
		if !ok {
			return "", nil
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("%s must be a string, got %T", key, v)
		}
		return s, nil
	}
	boolean := func(key string) (bool, error) {
		v, ok := table[key]
		if !ok {
			return false, nil
		}
		b, ok := v.(bool)
		if !ok {
			return false, fmt.Errorf("%s must be a boolean, got %T", key, v)
		}
		return b, nil
	}

	for _, key := range []string{"optional", "workspace"} {
		b, err := boolean(key)
		if err != nil {
			return err
		}
		if key == "optional" {
			dep.Optional = b
		} else {
			dep.FromWorkspace = b
		}
	}

	gitURL, err := str("git")
	if err != nil {
		return err
	}
	pathVal, err := str("path")
	if err != nil {
		return err
	}
	versionSpec, err := str("version")
	if err != nil {
		return err
	}

	switch {
	case dep.FromWorkspace:
		if gitURL != "" || pathVal != "" || versionSpec != "" {
			return fmt.Errorf("workspace = true cannot be combined with git, path, or version")
		}
		return nil

	case gitURL != "":
		tag, _ := str("tag")
		branch, _ := str("branch")
		rev, _ := str("rev")
		dep.Source = source.Git(gitURL, tag, branch, rev)
		return nil

	case pathVal != "":
		dep.Source = source.Path(pathVal, dir)
		return nil

	case versionSpec != "":
		cons, err := semver.ParseConstraint(versionSpec)
		if err != nil {
			return err
		}
		registry, err := str("registry")
		if err != nil {
			return err
		}
		dep.Source = source.Registry(registry, cons)
		dep.ConstraintSpec = cons.String()
		return nil
	}
	return fmt.Errorf("table must declare one of git, path, version, or workspace = true")
}

// ApplyWorkspace substitutes { workspace = true } declarations with the
// shared declaration from ws, inheriting source and constraint verbatim.
// The optional flag and cfg predicate stay local to the member.
func (m *Manifest) ApplyWorkspace(ws *Workspace) error {
	if ws == nil {
		ws = &Workspace{}
	}
	shared := make(map[string]Dependency, len(ws.Dependencies))
	for _, dep := range ws.Dependencies {
		shared[dep.Name] = dep
	}
	for i, dep := range m.Dependencies {
		if !dep.FromWorkspace {
			continue
		}
		inherited, ok := shared[dep.Name]
		if !ok {
			return errors.New(errors.ErrCodeInvalidManifest,
				"%s: dependency %q sets workspace = true but [workspace.dependencies] does not declare it",
				m.Package.Name, dep.Name)
		}
		m.Dependencies[i].Source = inherited.Source
		m.Dependencies[i].ConstraintSpec = inherited.ConstraintSpec
	}
	return nil
}

// MemberManifests loads every workspace member's manifest with this
// manifest's workspace declarations applied. A manifest without a
// [workspace] table returns nil.
func (m *Manifest) MemberManifests() ([]*Manifest, error) {
	if m.Workspace == nil {
		return nil, nil
	}
	members := make([]*Manifest, 0, len(m.Workspace.Members))
	for _, rel := range m.Workspace.Members {
		member, err := Load(filepath.Join(m.Dir, rel, Filename))
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "workspace member %q", rel)
		}
		if err := member.ApplyWorkspace(m.Workspace); err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, nil
}

// DependenciesFor returns the dependencies active under the given platform
// and enabled feature set: unconditional deps, cfg-matching deps, and
// optional deps named by an enabled feature. Declaration order is kept.
func (m *Manifest) DependenciesFor(platform string, features []string) []Dependency {
	enabled := make(map[string]bool)
	for _, f := range features {
		for _, dep := range m.Features[f] {
			enabled[dep] = true
		}
	}

	var out []Dependency
	for _, dep := range m.Dependencies {
		if dep.Optional && !enabled[dep.Name] {
			continue
		}
		if dep.Cfg != "" && !cfgMatches(dep.Cfg, platform) {
			continue
		}
		out = append(out, dep)
	}
	return out
}

// keysInOrder returns the immediate child keys under prefix, in the order
// they appear in the file. toml.MetaData.Keys reports every defined key
// depth-first, so filtering to len(prefix)+1 yields direct children.
func keysInOrder(md toml.MetaData, prefix ...string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, key := range md.Keys() {
		if len(key) != len(prefix)+1 {
			continue
		}
		match := true
		for i, p := range prefix {
			if key[i] != p {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		name := key[len(prefix)]
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// validateCfg checks a target table's predicate shape at parse time.
func validateCfg(cfg string) error {
	if cfgParse(cfg) == nil {
		return errors.New(errors.ErrCodeInvalidManifest, "malformed target predicate %q", cfg)
	}
	return nil
}

type cfgPredicate struct {
	key   string
	value string
}

// cfgParse accepts cfg(target_os = "x") and bare cfg(name) forms.
func cfgParse(cfg string) *cfgPredicate {
	inner, ok := strings.CutPrefix(cfg, "cfg(")
	if !ok || !strings.HasSuffix(inner, ")") {
		return nil
	}
	inner = strings.TrimSuffix(inner, ")")

	if key, value, found := strings.Cut(inner, "="); found {
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"`)
		if key == "" || value == "" {
			return nil
		}
		return &cfgPredicate{key: key, value: value}
	}
	name := strings.TrimSpace(inner)
	if name == "" {
		return nil
	}
	return &cfgPredicate{key: name}
}

// cfgMatches evaluates a predicate against the resolution platform.
// cfg(target_os = "android") matches platform "android"; a bare cfg(unix)
// matches when the platform is one of the unix-family names.
func cfgMatches(cfg, platform string) bool {
	p := cfgParse(cfg)
	if p == nil || platform == "" {
		return false
	}
	switch p.key {
	case "target_os":
		return p.value == platform
	case "unix":
		switch platform {
		case "linux", "macos", "android", "ios", "ohos":
			return true
		}
		return false
	case "windows":
		return platform == "windows"
	}
	return false
}
