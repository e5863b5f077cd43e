package lockfile

import (
	"fmt"
	"strings"

	"github.com/ccgo-build/ccgo/pkg/errors"
	"github.com/ccgo-build/ccgo/pkg/manifest"
	"github.com/ccgo-build/ccgo/pkg/semver"
	"github.com/ccgo-build/ccgo/pkg/source"
)

// Discrepancy is one way a lockfile disagrees with the manifest.
type Discrepancy struct {
	Package string
	Reason  string
}

func (d Discrepancy) String() string {
	return fmt.Sprintf("%s: %s", d.Package, d.Reason)
}

// VerifyOptions mirror the resolution parameters that decide which
// declared dependencies are active.
type VerifyOptions struct {
	Platform string
	Features []string
}

// Verify checks a loaded lockfile against a manifest for locked runs:
// every active declared dependency must have an entry whose version
// satisfies the declared constraint and whose recorded source still
// matches the declared source, with active [patch] entries accounted for.
// It returns every discrepancy found rather than stopping at the first.
func Verify(lf *Lockfile, m *manifest.Manifest, opts VerifyOptions) []Discrepancy {
	var out []Discrepancy
	report := func(name, format string, args ...any) {
		out = append(out, Discrepancy{Package: name, Reason: fmt.Sprintf(format, args...)})
	}

	// exactPatch matches on the declared source's own patch key. For
	// registry dependencies the resolver also honors patches keyed by the
	// index's recorded git URL; that URL is unknowable here, so any other
	// patch naming the dependency counts as a loose match.
	patchesFor := func(dep manifest.Dependency) (exact, loose *manifest.Patch) {
		key := dep.Source.PatchKey()
		for i, p := range m.Patches {
			if p.Name != dep.Name {
				continue
			}
			if p.Key == key {
				exact = &m.Patches[i]
			} else if dep.Source.Kind == source.KindRegistry {
				loose = &m.Patches[i]
			}
		}
		return exact, loose
	}

	for _, dep := range m.DependenciesFor(opts.Platform, opts.Features) {
		entry, ok := lf.Get(dep.Name)
		if !ok {
			report(dep.Name, "declared in manifest but missing from lockfile")
			continue
		}
		locked, err := semver.Parse(entry.Version)
		if err != nil {
			report(dep.Name, "unparseable locked version %q", entry.Version)
			continue
		}

		if dep.ConstraintSpec != "" {
			cons, err := semver.ParseConstraint(dep.ConstraintSpec)
			if err == nil && !cons.Matches(locked) {
				report(dep.Name, "manifest requires %s, locked at %s", dep.ConstraintSpec, locked)
			}
		}

		exact, loose := patchesFor(dep)
		switch {
		case entry.Patch != nil:
			p := exact
			if p == nil {
				p = loose
			}
			if p == nil {
				report(dep.Name, "lockfile records a patch the manifest no longer declares")
			} else if p.Replacement.Effective().Kind == source.KindPath && !entry.Patch.IsPathPatch {
				report(dep.Name, "patch replacement is a path but the lockfile entry is not flagged is_path_patch")
			}
			continue
		case exact != nil:
			report(dep.Name, "manifest patches this dependency but the lockfile records no patch")
			continue
		}
		// A loose (URL-keyed) patch on a registry dependency may simply not
		// have matched the index URL at resolve time; that is the stale
		// patch case, which resolution already reports.
		if reason := sourceMatches(dep.Source, entry.Source); reason != "" {
			report(dep.Name, "%s", reason)
		}
	}
	return out
}

// sourceMatches checks a declared source against the locked source URL.
// Registry declarations pin to the index's git source at resolve time, so
// only the scheme is checkable; git and path declarations must match
// exactly.
func sourceMatches(declared source.Descriptor, lockedSrc string) string {
	locked, _, err := source.ParseLockURL(lockedSrc)
	if err != nil {
		return fmt.Sprintf("unparseable locked source %q", lockedSrc)
	}

	switch declared.Effective().Kind {
	case source.KindGit:
		d := declared.Effective()
		if locked.Kind != source.KindGit || locked.URL != d.URL {
			return fmt.Sprintf("manifest declares git %s, locked source is %s", d.URL, lockedSrc)
		}
		if d.Latest {
			return ""
		}
		dk, dv := d.RefSelector()
		lk, lv := locked.RefSelector()
		if dk != lk || dv != lv {
			return fmt.Sprintf("manifest pins %s %s, locked source pins %s %s", dk, dv, lk, lv)
		}
	case source.KindPath:
		if locked.Kind != source.KindPath || locked.Path != declared.Effective().Path {
			return fmt.Sprintf("manifest declares path %s, locked source is %s", declared.Effective().Path, lockedSrc)
		}
	case source.KindRegistry:
		if locked.Kind != source.KindGit {
			return fmt.Sprintf("registry dependency locked to non-git source %s", lockedSrc)
		}
	}
	return ""
}

// MismatchError folds discrepancies into the hard error a locked run
// surfaces. Returns nil for an empty list.
func MismatchError(discrepancies []Discrepancy) error {
	if len(discrepancies) == 0 {
		return nil
	}
	lines := make([]string, len(discrepancies))
	for i, d := range discrepancies {
		lines[i] = d.String()
	}
	return errors.New(errors.ErrCodeLockfileMismatch,
		"lockfile does not match the manifest:\n  %s\nre-run without --locked to update the lockfile",
		strings.Join(lines, "\n  "))
}
