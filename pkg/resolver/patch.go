package resolver

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/ccgo-build/ccgo/pkg/errors"
	"github.com/ccgo-build/ccgo/pkg/manifest"
)

// matchPatch finds the root [patch] entry applying to a dependency.
// urlKey is the exact source URL or path (for registry dependencies, the
// index's recorded git URL); registryKey is the registry id key, "" when
// not applicable. A URL-keyed patch outranks a registry-id one; multiple
// applicable patches of the same specificity are a hard error rather than
// an insertion-order guess.
func (r *Resolver) matchPatch(name, urlKey, registryKey string) (*manifest.Patch, error) {
	var byURL, byRegistry []manifest.Patch
	for _, p := range r.patches {
		if p.Name != name {
			continue
		}
		switch p.Key {
		case urlKey:
			byURL = append(byURL, p)
		case registryKey:
			if registryKey != "" {
				byRegistry = append(byRegistry, p)
			}
		}
	}

	if len(byURL) > 1 {
		return nil, errors.New(errors.ErrCodeInvalidManifest,
			"%d patches keyed by source %q apply to %q; remove all but one", len(byURL), urlKey, name)
	}
	if len(byURL) == 1 {
		return &byURL[0], nil
	}
	if len(byRegistry) > 1 {
		return nil, errors.New(errors.ErrCodeInvalidManifest,
			"%d patches keyed by registry %q apply to %q; remove all but one", len(byRegistry), registryKey, name)
	}
	if len(byRegistry) == 1 {
		return &byRegistry[0], nil
	}
	return nil, nil
}

func (r *Resolver) markApplied(p manifest.Patch) {
	r.applied[p.Key+"|"+p.Name] = true
}

// checkStalePatches reports [patch] entries that matched nothing anywhere
// in the walked graph. Stale entries tolerate upstream refactors, so they
// warn by default; StrictPatches promotes them to errors to catch typos.
func (r *Resolver) checkStalePatches(ctx context.Context) error {
	for _, p := range r.patches {
		if r.applied[p.Key+"|"+p.Name] {
			continue
		}
		if r.opts.StrictPatches {
			return errors.New(errors.ErrCodeInvalidManifest,
				"patch for %q keyed by %q matched no dependency", p.Name, p.Key)
		}
		log.FromContext(ctx).Warn("patch matched no dependency", "package", p.Name, "key", p.Key)
	}
	return nil
}
