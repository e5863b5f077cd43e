package resolver

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/ccgo-build/ccgo/pkg/errors"
	"github.com/ccgo-build/ccgo/pkg/gitx"
	"github.com/ccgo-build/ccgo/pkg/manifest"
	"github.com/ccgo-build/ccgo/pkg/registry"
	"github.com/ccgo-build/ccgo/pkg/semver"
	"github.com/ccgo-build/ccgo/pkg/source"
)

// expanded is one dependency after patching and source expansion: a
// concrete git or path descriptor, a concrete version, and the fetched
// sub-manifest when the dependency carries one. Expansion runs on worker
// goroutines, so facts destined for shared resolver state (the registry
// origin and the matched patch) ride along here and are recorded in the
// sequential join loop.
type expanded struct {
	dep       manifest.Dependency
	full      source.Descriptor // post-patch, possibly KindPatched
	effective source.Descriptor // concrete git or path descriptor
	version   semver.Version
	available []semver.Version // selectable registry versions, nil for pins
	sub       *manifest.Manifest

	regID        string // registry id the dependency resolved through
	fromRegistry bool
	patch        *manifest.Patch // matched [patch] entry, nil when none
}

// expand turns one declared dependency into a concrete source. Registry
// lookups select a version and resolve to the index's git source before
// patch matching, so URL-keyed patches can outrank registry-id ones; git
// latest-tag shorthands pin the highest release tag; git and path trees
// are fetched so their manifests can be walked.
func (r *Resolver) expand(ctx context.Context, dep manifest.Dependency) (expanded, error) {
	ex := expanded{dep: dep}
	declared := dep.Source

	var patch *manifest.Patch
	if declared.Kind == source.KindRegistry {
		pick, release, versions, err := r.selectRegistry(ctx, dep.Name, declared)
		if err != nil {
			return expanded{}, err
		}
		patch, err = r.matchPatch(dep.Name, release.URL, declared.PatchKey())
		if err != nil {
			return expanded{}, err
		}
		if patch == nil {
			ex.version = pick
			ex.available = versions
			ex.effective = release.Source()
			ex.regID = declared.Registry
			ex.fromRegistry = true
			if err := r.fetchTree(ctx, &ex); err != nil {
				return expanded{}, err
			}
			ex.full = ex.effective
			return ex, nil
		}
	} else {
		var err error
		patch, err = r.matchPatch(dep.Name, declared.PatchKey(), "")
		if err != nil {
			return expanded{}, err
		}
	}

	target := declared
	if patch != nil {
		ex.patch = patch
		log.FromContext(ctx).Debug("patched dependency",
			"package", dep.Name, "key", patch.Key, "replacement", patch.Replacement.String())
		target = patch.Replacement
	}

	if err := r.expandConcrete(ctx, &ex, target); err != nil {
		return expanded{}, err
	}

	if patch != nil {
		// Record provenance around the concrete form actually used.
		ex.full = source.Patched(declared, ex.effective)
	} else {
		ex.full = ex.effective
	}
	return ex, nil
}

// expandConcrete resolves a non-patch-eligible descriptor (a declared git
// or path source, or a patch replacement of any kind) to a concrete tree.
func (r *Resolver) expandConcrete(ctx context.Context, ex *expanded, desc source.Descriptor) error {
	switch desc.Kind {
	case source.KindRegistry:
		pick, release, versions, err := r.selectRegistry(ctx, ex.dep.Name, desc)
		if err != nil {
			return err
		}
		ex.version = pick
		ex.available = versions
		ex.effective = release.Source()
		ex.regID = desc.Registry
		ex.fromRegistry = true
		return r.fetchTree(ctx, ex)

	case source.KindGit:
		if desc.Latest {
			tag, v, err := gitx.LatestTag(ctx, r.git, desc.URL, r.opts.IncludePrerelease)
			if err != nil {
				return err
			}
			log.FromContext(ctx).Debug("pinned latest tag", "package", ex.dep.Name, "tag", tag)
			desc.Latest = false
			desc.Tag = tag
			ex.version = v
		} else if v, ok := semver.ParseTag(desc.Tag); ok {
			ex.version = v
		}
		ex.effective = desc
		return r.fetchTree(ctx, ex)

	case source.KindPath:
		ex.effective = desc
		sub, err := loadSubManifest(desc.Path)
		if err != nil {
			return err
		}
		ex.sub = sub
		if ex.version.String() == "0.0.0" && sub != nil {
			ex.version = sub.Package.Version
		}
		return nil
	}
	return errors.New(errors.ErrCodeInternal, "unexpandable source %s for %q", desc, ex.dep.Name)
}

// selectRegistry picks the best-satisfying index version under the active
// strategy and returns its release record.
func (r *Resolver) selectRegistry(ctx context.Context, name string, desc source.Descriptor) (semver.Version, registry.Release, []semver.Version, error) {
	if r.reg == nil {
		return semver.Version{}, registry.Release{}, nil,
			errors.New(errors.ErrCodeInternal, "registry dependency %q without a registry client", name)
	}
	versions, err := r.reg.Versions(ctx, desc.Registry, name)
	if err != nil {
		return semver.Version{}, registry.Release{}, nil, err
	}

	pick, ok := desc.Constraint.HighestSatisfying(versions, r.opts.IncludePrerelease)
	if r.opts.Strategy == StrategyLowest {
		pick, ok = desc.Constraint.LowestSatisfying(versions, r.opts.IncludePrerelease)
	}
	if !ok {
		return semver.Version{}, registry.Release{}, nil,
			errors.New(errors.ErrCodeNoMatchingVersion,
				"no version of %s satisfies %s (available: %s)", name, desc.Constraint, versionHint(versions))
	}

	release, err := r.reg.Lookup(ctx, desc.Registry, name, pick)
	if err != nil {
		return semver.Version{}, registry.Release{}, nil, err
	}
	return pick, release, versions, nil
}

// fetchTree materializes the effective git tree and loads its manifest.
// Branch and rev pins take their version from that manifest.
func (r *Resolver) fetchTree(ctx context.Context, ex *expanded) error {
	dir, _, err := r.git.Fetch(ctx, ex.effective.URL, gitx.RefOf(ex.effective))
	if err != nil {
		return err
	}
	sub, err := loadSubManifest(dir)
	if err != nil {
		return err
	}
	ex.sub = sub
	if ex.version.String() == "0.0.0" && sub != nil {
		ex.version = sub.Package.Version
	}
	return nil
}

// versionHint renders the closest available versions for diagnostics.
func versionHint(versions []semver.Version) string {
	if len(versions) == 0 {
		return "none"
	}
	start := 0
	if len(versions) > 3 {
		start = len(versions) - 3
	}
	parts := make([]string, 0, 3)
	for _, v := range versions[start:] {
		parts = append(parts, v.String())
	}
	return strings.Join(parts, ", ")
}
