package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/ccgo-build/ccgo/pkg/dag"
	"github.com/ccgo-build/ccgo/pkg/errors"
	"github.com/ccgo-build/ccgo/pkg/semver"
	"github.com/ccgo-build/ccgo/pkg/source"
)

// resolveConflicts collapses every contested package to one version per
// the active strategy, finalizes the graph nodes, and returns the patch
// provenance map for the lockfile.
func (r *Resolver) resolveConflicts(ctx context.Context) (map[string]source.Descriptor, error) {
	logger := log.FromContext(ctx)

	for _, name := range r.graph.Contested() {
		node, _ := r.graph.Node(name)
		logger.Debug("contested package", "package", name, "requesters", len(node.Candidates))

		var chosen semver.Version
		var src source.Descriptor
		var err error
		switch r.opts.Strategy {
		case StrategyFirst:
			chosen, src, err = r.chooseFirst(ctx, name, node)
		case StrategyHighest:
			chosen, src, err = r.chooseExtreme(ctx, name, node, false)
		case StrategyLowest:
			chosen, src, err = r.chooseExtreme(ctx, name, node, true)
		case StrategyStrict:
			chosen, src, err = r.chooseStrict(ctx, name, node)
		default:
			err = errors.New(errors.ErrCodeInternal, "unknown strategy %q", r.opts.Strategy)
		}
		if err != nil {
			return nil, err
		}

		if err := r.graph.Finalize(name, chosen, src); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "finalize %s", name)
		}
		node.Candidates = []dag.Candidate{{Version: chosen, Source: src}}
		logger.Info("conflict resolved", "package", name, "version", chosen, "strategy", r.opts.Strategy)
	}

	// Collect patch provenance off the finalized sources.
	patched := make(map[string]source.Descriptor)
	for _, name := range r.graph.Names() {
		node, _ := r.graph.Node(name)
		for _, c := range node.Candidates {
			if c.Source.Kind == source.KindPatched && c.Source.Effective().Equal(node.Source) {
				patched[name] = c.Source
				break
			}
		}
	}
	return patched, nil
}

// chooseFirst keeps the first-declared candidate and warns about later
// requirements it does not satisfy, including same-version pins that name
// a different source.
func (r *Resolver) chooseFirst(ctx context.Context, name string, node *dag.Node) (semver.Version, source.Descriptor, error) {
	first := node.Candidates[0]
	for _, c := range node.Candidates[1:] {
		switch {
		case !candidateAccepts(c, first.Version, r.opts.IncludePrerelease):
			log.FromContext(ctx).Warn("keeping first-declared version despite incompatible requirement",
				"package", name, "version", first.Version,
				"requester", c.RequiredBy, "constraint", requirementOf(c))
		case !c.Source.Effective().Equal(first.Source.Effective()):
			log.FromContext(ctx).Warn("keeping first-declared source despite divergent requirement",
				"package", name, "source", first.Source.Effective().String(),
				"requester", c.RequiredBy, "requested", c.Source.Effective().String())
		}
	}
	return first.Version, first.Source, nil
}

// chooseExtreme implements the highest and lowest strategies: among all
// versions satisfying at least one requester, pick the extreme, then fail
// hard on every requester the choice violates.
func (r *Resolver) chooseExtreme(ctx context.Context, name string, node *dag.Node, lowest bool) (semver.Version, source.Descriptor, error) {
	universe := candidateUniverse(node)

	var pick semver.Version
	found := false
	for _, v := range universe {
		accepted := false
		for _, c := range node.Candidates {
			if candidateAccepts(c, v, r.opts.IncludePrerelease) {
				accepted = true
				break
			}
		}
		if !accepted {
			continue
		}
		if !found || (lowest && v.Less(pick)) || (!lowest && pick.Less(v)) {
			pick = v
			found = true
		}
	}
	if !found {
		return semver.Version{}, source.Descriptor{}, conflictError(name, node)
	}

	var violated []string
	for _, c := range node.Candidates {
		if !candidateAccepts(c, pick, r.opts.IncludePrerelease) {
			violated = append(violated, fmt.Sprintf("%s requires %s", c.RequiredBy, requirementOf(c)))
		}
	}
	if len(violated) > 0 {
		return semver.Version{}, source.Descriptor{}, errors.New(errors.ErrCodeVersionConflict,
			"%s resolved to %s, violating: %s", name, pick, strings.Join(violated, "; "))
	}
	src, err := r.sourceFor(ctx, name, node, pick)
	return pick, src, err
}

// chooseStrict requires one version acceptable to every requester and
// picks the highest such version.
func (r *Resolver) chooseStrict(ctx context.Context, name string, node *dag.Node) (semver.Version, source.Descriptor, error) {
	var pick semver.Version
	found := false
	for _, v := range candidateUniverse(node) {
		ok := true
		for _, c := range node.Candidates {
			if !candidateAccepts(c, v, r.opts.IncludePrerelease) {
				ok = false
				break
			}
		}
		if ok && (!found || pick.Less(v)) {
			pick = v
			found = true
		}
	}
	if !found {
		return semver.Version{}, source.Descriptor{}, conflictError(name, node)
	}
	src, err := r.sourceFor(ctx, name, node, pick)
	return pick, src, err
}

// candidateUniverse is every version any requester could accept: the union
// of registry-available versions plus each candidate's own pin.
func candidateUniverse(node *dag.Node) []semver.Version {
	seen := make(map[string]bool)
	var out []semver.Version
	add := func(v semver.Version) {
		if !seen[v.String()] {
			seen[v.String()] = true
			out = append(out, v)
		}
	}
	for _, c := range node.Candidates {
		add(c.Version)
		for _, v := range c.Available {
			add(v)
		}
	}
	semver.SortVersions(out)
	return out
}

// candidateAccepts reports whether one requester's requirement admits v.
// Constraint-backed requesters match their constraint with prerelease
// gating; git and path pins admit only their exact pinned version.
func candidateAccepts(c dag.Candidate, v semver.Version, includePre bool) bool {
	if c.Constraint == "" {
		return c.Version.Equal(v)
	}
	cons, err := semver.ParseConstraint(c.Constraint)
	if err != nil {
		return false
	}
	if v.IsPrerelease() && !includePre && !cons.HasPrerelease() {
		return false
	}
	return cons.Matches(v)
}

// sourceFor returns the descriptor backing the chosen version: a
// requester's own source when one pinned exactly that version, otherwise
// the registry release for it. Requesters pinning the chosen version from
// different sources are a hard conflict; there is no safe winner.
func (r *Resolver) sourceFor(ctx context.Context, name string, node *dag.Node, v semver.Version) (source.Descriptor, error) {
	var picked *dag.Candidate
	for i := range node.Candidates {
		c := &node.Candidates[i]
		if !c.Version.Equal(v) {
			continue
		}
		if picked == nil {
			picked = c
			continue
		}
		if !c.Source.Effective().Equal(picked.Source.Effective()) {
			return source.Descriptor{}, errors.New(errors.ErrCodeVersionConflict,
				"%s %s is required from different sources: %s by %s; %s by %s",
				name, v, picked.Source.Effective(), picked.RequiredBy, c.Source.Effective(), c.RequiredBy)
		}
	}
	if picked != nil {
		return picked.Source, nil
	}
	reg, ok := r.regOrigin[name]
	if !ok || r.reg == nil {
		return source.Descriptor{}, errors.New(errors.ErrCodeInternal,
			"no source for chosen version %s of %s", v, name)
	}
	release, err := r.reg.Lookup(ctx, reg, name, v)
	if err != nil {
		return source.Descriptor{}, err
	}
	return release.Source(), nil
}

func requirementOf(c dag.Candidate) string {
	if c.Constraint != "" {
		return c.Constraint
	}
	return "=" + c.Version.String()
}

func conflictError(name string, node *dag.Node) error {
	parts := make([]string, 0, len(node.Candidates))
	for _, c := range node.Candidates {
		parts = append(parts, fmt.Sprintf("%s requires %s", c.RequiredBy, requirementOf(c)))
	}
	return errors.New(errors.ErrCodeVersionConflict,
		"no version of %s satisfies all requesters: %s", name, strings.Join(parts, "; "))
}
