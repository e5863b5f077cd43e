// Package resolver turns manifests into a conflict-checked, cycle-free,
// topologically ordered build plan.
//
// A resolution pass moves through fixed stages: load manifests (workspace
// members included), expand and patch dependency sources, build the shared
// graph by walking transitive manifests, detect cycles, collapse contested
// packages per the selected conflict strategy, materialize checksums, and
// topologically sort. A failure at any stage aborts the whole pass; a plan
// is only produced from a complete, validated graph.
package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ccgo-build/ccgo/pkg/dag"
	"github.com/ccgo-build/ccgo/pkg/errors"
	"github.com/ccgo-build/ccgo/pkg/gitx"
	"github.com/ccgo-build/ccgo/pkg/manifest"
	"github.com/ccgo-build/ccgo/pkg/registry"
	"github.com/ccgo-build/ccgo/pkg/semver"
	"github.com/ccgo-build/ccgo/pkg/source"
)

// Strategy selects how contested packages collapse to one version.
type Strategy string

const (
	// StrategyFirst keeps the first version encountered in declaration
	// order and warns about incompatible later requirements.
	StrategyFirst Strategy = "first"
	// StrategyHighest picks the maximum version satisfying at least one
	// requester and hard-fails requesters it violates.
	StrategyHighest Strategy = "highest"
	// StrategyLowest is StrategyHighest with the minimum.
	StrategyLowest Strategy = "lowest"
	// StrategyStrict requires one version satisfying every requester.
	StrategyStrict Strategy = "strict"
)

// ParseStrategy validates a --conflict-strategy flag value.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyFirst, StrategyHighest, StrategyLowest, StrategyStrict:
		return Strategy(s), nil
	}
	return "", errors.New(errors.ErrCodeInvalidManifest,
		"unknown conflict strategy %q (want first, highest, lowest, or strict)", s)
}

// DefaultMaxDepth caps recursive manifest resolution.
const DefaultMaxDepth = 50

// rootRequester labels candidates declared by the top-level manifest.
const rootRequester = "(root)"

// Options parameterize one resolution pass.
type Options struct {
	Strategy          Strategy
	IncludePrerelease bool
	MaxDepth          int // 0 means DefaultMaxDepth
	Platform          string
	Features          []string
	Workers           int    // parallel source fetches, 0 means 8
	StrictPatches     bool   // stale patch entries error instead of warning
	Package           string // restrict resolution to one workspace member
}

func (o Options) maxDepth() int {
	if o.MaxDepth > 0 {
		return o.MaxDepth
	}
	return DefaultMaxDepth
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return 8
}

// Plan is the output of a successful pass: the finalized graph and its
// deterministic install order, plus the provenance the lockfile records.
type Plan struct {
	Graph    *dag.Graph
	Order    []string // topological, dependencies first
	Strategy Strategy
	Roots    []string // top-level and workspace member package names

	// Revisions maps package name to the pinned git revision, "" for
	// path sources.
	Revisions map[string]string

	// Patched maps package name to the full patched descriptor (original
	// plus replacement) for packages whose source was rewritten.
	Patched map[string]source.Descriptor
}

// Resolver orchestrates resolution passes over injected collaborators.
type Resolver struct {
	git  gitx.Client
	reg  *registry.Client
	opts Options

	graph     *dag.Graph
	visited   map[string]bool
	regOrigin map[string]string // package name -> registry id
	patches   []manifest.Patch
	applied   map[string]bool // patch Key|Name entries that matched
}

// New creates a resolver. The git client and registry client are the only
// external collaborators; both are substituted in tests.
func New(git gitx.Client, reg *registry.Client, opts Options) *Resolver {
	if opts.Strategy == "" {
		opts.Strategy = StrategyFirst
	}
	return &Resolver{git: git, reg: reg, opts: opts}
}

// Resolve runs a full pass over the manifest at path.
func (r *Resolver) Resolve(ctx context.Context, path string) (*Plan, error) {
	pass := uuid.NewString()[:8]
	logger := log.FromContext(ctx).With("pass", pass)
	ctx = log.WithContext(ctx, logger)

	// Fresh per-pass state; a Resolver may run multiple passes.
	r.graph = dag.New()
	r.visited = make(map[string]bool)
	r.regOrigin = make(map[string]string)
	r.applied = make(map[string]bool)

	root, members, err := r.loadManifests(ctx, path)
	if err != nil {
		return nil, err
	}
	logger.Debug("manifests loaded", "root", root.Package.Name, "members", len(members))

	r.patches = root.Patches
	if r.reg != nil {
		// Member [registries] tables are intentionally ignored; the root
		// manifest owns index configuration.
		r.reg = r.reg.WithURLs(root.Registries)
	}

	// A workspace root without a [package] table is virtual: it only
	// groups members and contributes no node of its own.
	tops := members
	if root.Package.Name != "" || root.Workspace == nil {
		tops = append([]*manifest.Manifest{root}, members...)
	}
	if r.opts.Package != "" {
		var picked []*manifest.Manifest
		for _, m := range tops {
			if m.Package.Name == r.opts.Package {
				picked = append(picked, m)
			}
		}
		if len(picked) == 0 {
			return nil, errors.New(errors.ErrCodeNotFound,
				"package %q is not the root package or a workspace member", r.opts.Package)
		}
		tops = picked
	}

	roots := make([]string, 0, len(tops))
	for _, m := range tops {
		name, err := r.addRootNode(m)
		if err != nil {
			return nil, err
		}
		roots = append(roots, name)
	}
	for _, m := range tops {
		if err := r.walk(ctx, m, m.Package.Name, 0); err != nil {
			return nil, err
		}
	}
	if err := r.checkStalePatches(ctx); err != nil {
		return nil, err
	}
	logger.Debug("graph built", "nodes", r.graph.NodeCount(), "edges", r.graph.EdgeCount())

	if cyc := r.graph.DetectCycles(); cyc != nil {
		return nil, errors.Wrap(errors.ErrCodeDependencyCycle, cyc, "resolution failed")
	}

	patched, err := r.resolveConflicts(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.graph.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "graph invariant violated")
	}

	revisions, err := r.materialize(ctx)
	if err != nil {
		return nil, err
	}

	order, err := r.graph.TopoSort()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDependencyCycle, err, "resolution failed")
	}
	logger.Info("resolved", "packages", len(order), "strategy", r.opts.Strategy)

	return &Plan{
		Graph:     r.graph,
		Order:     order,
		Strategy:  r.opts.Strategy,
		Roots:     roots,
		Revisions: revisions,
		Patched:   patched,
	}, nil
}

// loadManifests reads the root manifest and, for workspaces, every member
// manifest with workspace-level declarations substituted in.
func (r *Resolver) loadManifests(ctx context.Context, path string) (*manifest.Manifest, []*manifest.Manifest, error) {
	root, err := manifest.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if err := root.ApplyWorkspace(root.Workspace); err != nil {
		return nil, nil, err
	}

	members, err := root.MemberManifests()
	if err != nil {
		return nil, nil, err
	}
	return root, members, nil
}

// addRootNode registers a top-level or member package as a graph node with
// its own directory as a path source.
func (r *Resolver) addRootNode(m *manifest.Manifest) (string, error) {
	if m.Package.Name == "" {
		return "", errors.New(errors.ErrCodeInvalidManifest, "%s: [package] name is required", m.Path)
	}
	cand := dag.Candidate{
		Version:    m.Package.Version,
		Source:     source.Path(m.Dir, ""),
		RequiredBy: rootRequester,
	}
	if err := r.graph.AddNode(m.Package.Name, cand); err != nil {
		return "", err
	}
	r.visited[visitKey(m.Package.Name, cand.Version, cand.Source)] = true
	return m.Package.Name, nil
}

// walk resolves one manifest's active dependencies into the shared graph
// and recurses into dependencies that carry manifests of their own.
func (r *Resolver) walk(ctx context.Context, m *manifest.Manifest, consumer string, depth int) error {
	if depth > r.opts.maxDepth() {
		return errors.New(errors.ErrCodeMaxDepthExceeded,
			"manifest nesting exceeds %d at %s; check for self-referential path dependencies",
			r.opts.maxDepth(), m.Path)
	}

	deps := m.DependenciesFor(r.opts.Platform, r.opts.Features)

	// Source expansion is the only network-bound stage; fetch in parallel
	// and join before any graph mutation.
	results := make([]expanded, len(deps))
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(r.opts.workers())
	for i, dep := range deps {
		eg.Go(func() error {
			ex, err := r.expand(ectx, dep)
			if err != nil {
				return err
			}
			results[i] = ex
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for _, ex := range results {
		// Shared resolver state only mutates here, after the join.
		if ex.fromRegistry {
			r.regOrigin[ex.dep.Name] = ex.regID
		}
		if ex.patch != nil {
			r.markApplied(*ex.patch)
		}
		cand := dag.Candidate{
			Version:    ex.version,
			Source:     ex.full,
			RequiredBy: consumer,
			Constraint: ex.dep.ConstraintSpec,
			Available:  ex.available,
		}
		if err := r.graph.AddNode(ex.dep.Name, cand); err != nil {
			return err
		}
		if err := r.graph.AddEdge(consumer, ex.dep.Name); err != nil {
			return errors.Wrap(errors.ErrCodeDanglingDependency, err, "record dependency edge")
		}

		key := visitKey(ex.dep.Name, ex.version, ex.effective)
		if r.visited[key] {
			continue
		}
		r.visited[key] = true
		if ex.sub != nil {
			if err := r.walk(ctx, ex.sub, ex.dep.Name, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func visitKey(name string, v semver.Version, src source.Descriptor) string {
	return fmt.Sprintf("%s@%s|%s", name, v, src)
}

// materialize fetches every finalized git source to pin its revision and
// compute its tree checksum. Path sources carry neither.
func (r *Resolver) materialize(ctx context.Context) (map[string]string, error) {
	names := r.graph.Names()
	type pin struct {
		rev      string
		checksum string
	}
	pins := make([]pin, len(names))

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(r.opts.workers())
	for i, name := range names {
		node, _ := r.graph.Node(name)
		if node.Source.Kind != source.KindGit {
			continue
		}
		src := node.Source
		eg.Go(func() error {
			dir, rev, err := r.git.Fetch(ectx, src.URL, gitx.RefOf(src))
			if err != nil {
				return err
			}
			sum, err := gitx.TreeChecksum(dir)
			if err != nil {
				return errors.Wrap(errors.ErrCodeInternal, err, "checksum %s", src.URL)
			}
			pins[i] = pin{rev: rev, checksum: sum}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	revisions := make(map[string]string, len(names))
	for i, name := range names {
		node, _ := r.graph.Node(name)
		node.Checksum = pins[i].checksum
		revisions[name] = pins[i].rev
	}
	return revisions, nil
}

// loadSubManifest reads a fetched dependency's own manifest, if present.
func loadSubManifest(dir string) (*manifest.Manifest, error) {
	path := filepath.Join(dir, manifest.Filename)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	m, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}
	// A dependency cannot inherit workspace declarations from its consumer;
	// surface any { workspace = true } leftovers as errors.
	if err := m.ApplyWorkspace(m.Workspace); err != nil {
		return nil, err
	}
	return m, nil
}
