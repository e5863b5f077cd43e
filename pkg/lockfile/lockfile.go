// Package lockfile reads and writes CCGO.lock.
//
// The lockfile is the serialized snapshot of a resolved plan: one
// [[package]] entry per graph node in topological order, each pinning a
// name, version, source URL with revision, checksum, dependency names, and
// patch provenance where a [patch] entry rewrote the source. It is written
// only on full resolution success, to a temp file renamed into place, so a
// partial lockfile is never visible. Loaded lockfiles are distinct values
// from any in-flight resolution; verification compares them explicitly.
package lockfile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/ccgo-build/ccgo/pkg/errors"
	"github.com/ccgo-build/ccgo/pkg/resolver"
	"github.com/ccgo-build/ccgo/pkg/semver"
	"github.com/ccgo-build/ccgo/pkg/source"
)

// Filename is the lockfile name, written next to the root manifest.
const Filename = "CCGO.lock"

// formatVersion guards future schema changes.
const formatVersion = 1

// Package is one pinned entry.
type Package struct {
	Name         string   `toml:"name"`
	Version      string   `toml:"version"`
	Source       string   `toml:"source"`
	Checksum     string   `toml:"checksum,omitempty"`
	Dependencies []string `toml:"dependencies,omitempty"`
	Patch        *Patch   `toml:"patch,omitempty"`
}

// Patch records why a package's source differs from its declaration.
type Patch struct {
	PatchedSource     string `toml:"patched_source"`
	ReplacementSource string `toml:"replacement_source"`
	IsPathPatch       bool   `toml:"is_path_patch,omitempty"`
}

// Lockfile is the parsed CCGO.lock.
type Lockfile struct {
	Version  int       `toml:"version"`
	Strategy string    `toml:"strategy"`
	Packages []Package `toml:"package"`
}

// Get returns the entry for name, or false.
func (l *Lockfile) Get(name string) (Package, bool) {
	for _, p := range l.Packages {
		if p.Name == name {
			return p, true
		}
	}
	return Package{}, false
}

// FromPlan builds the lockfile value for a resolved plan, entries in the
// plan's topological order.
func FromPlan(plan *resolver.Plan) (*Lockfile, error) {
	lf := &Lockfile{
		Version:  formatVersion,
		Strategy: string(plan.Strategy),
		Packages: make([]Package, 0, len(plan.Order)),
	}
	for _, name := range plan.Order {
		node, ok := plan.Graph.Node(name)
		if !ok {
			return nil, errors.New(errors.ErrCodeInternal, "ordered package %q missing from graph", name)
		}
		src, err := source.EncodeLockURL(node.Source, plan.Revisions[name])
		if err != nil {
			return nil, err
		}
		entry := Package{
			Name:         name,
			Version:      node.Version.String(),
			Source:       src,
			Checksum:     node.Checksum,
			Dependencies: plan.Graph.Dependencies(name),
		}
		if patched, ok := plan.Patched[name]; ok && patched.Original != nil {
			orig, err := source.EncodeLockURL(*patched.Original, "")
			if err == nil {
				entry.Patch = &Patch{
					PatchedSource:     orig,
					ReplacementSource: src,
					IsPathPatch:       patched.IsPathPatch(),
				}
			} else if patched.Original.Kind == source.KindRegistry {
				entry.Patch = &Patch{
					PatchedSource:     "registry+" + patched.Original.PatchKey(),
					ReplacementSource: src,
					IsPathPatch:       patched.IsPathPatch(),
				}
			} else {
				return nil, err
			}
		}
		lf.Packages = append(lf.Packages, entry)
	}
	return lf, nil
}

// Write serializes a plan to path via temp file and atomic rename; an
// interrupted run never leaves a partial lockfile visible.
func Write(path string, plan *resolver.Plan) error {
	lf, err := FromPlan(plan)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Generated by ccgo. Do not edit by hand.\n\n")
	if err := toml.NewEncoder(&buf).Encode(lf); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode lockfile")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".ccgo-lock-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads the lockfile at path. A missing file is NOT_FOUND so callers
// can distinguish first runs from corrupt lockfiles.
func Load(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeNotFound, "no lockfile at %s", path)
		}
		return nil, err
	}
	var lf Lockfile
	if _, err := toml.Decode(string(data), &lf); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLockfile, err, "parse %s", path)
	}
	if lf.Version != formatVersion {
		return nil, errors.New(errors.ErrCodeInvalidLockfile,
			"%s: unsupported lockfile version %d", path, lf.Version)
	}
	for _, p := range lf.Packages {
		if _, err := semver.Parse(p.Version); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidLockfile, err, "%s: package %q", path, p.Name)
		}
	}
	return &lf, nil
}
