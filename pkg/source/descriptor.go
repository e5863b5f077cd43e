// Package source models where a dependency's code comes from.
//
// A Descriptor is a tagged union over the supported origins: a git
// repository pinned by exactly one ref selector, a local filesystem path, a
// registry lookup (name + version constraint), or a patched source
// recording both the original and its replacement. Manifest shorthand
// strings ("github:user/repo@v1.2.3", "owner/repo", bare constraints) are
// normalized into Descriptors before any resolver logic runs.
package source

import (
	"fmt"
	"path/filepath"

	"github.com/ccgo-build/ccgo/pkg/errors"
	"github.com/ccgo-build/ccgo/pkg/semver"
)

// Kind discriminates the Descriptor union.
type Kind int

const (
	// KindGit is a git repository with exactly one ref selector.
	KindGit Kind = iota
	// KindPath is a local filesystem path, stored absolute.
	KindPath
	// KindRegistry is a (name, constraint, registry) lookup.
	KindRegistry
	// KindPatched wraps an original descriptor with its replacement.
	KindPatched
)

func (k Kind) String() string {
	switch k {
	case KindGit:
		return "git"
	case KindPath:
		return "path"
	case KindRegistry:
		return "registry"
	case KindPatched:
		return "patched"
	}
	return "unknown"
}

// Descriptor describes a dependency source. Exactly the fields for its Kind
// are meaningful; the rest stay zero.
type Descriptor struct {
	Kind Kind

	// Git fields. Exactly one of Tag, Branch, Rev is set on a valid
	// descriptor (checked by Validate at manifest-parse time). Latest marks
	// a shorthand without an @version suffix: the resolver fills Tag with
	// the highest release tag during source expansion.
	URL    string
	Tag    string
	Branch string
	Rev    string
	Latest bool

	// Path field, absolute after normalization.
	Path string

	// Registry fields. Registry is empty for the default registry.
	Registry   string
	Constraint semver.Constraint

	// Patched fields.
	Original    *Descriptor
	Replacement *Descriptor
}

// Git builds a git descriptor. Ref selector validity is checked by Validate.
func Git(url, tag, branch, rev string) Descriptor {
	return Descriptor{Kind: KindGit, URL: url, Tag: tag, Branch: branch, Rev: rev}
}

// Path builds a path descriptor, resolving p against baseDir when relative.
func Path(p, baseDir string) Descriptor {
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	return Descriptor{Kind: KindPath, Path: filepath.Clean(p)}
}

// Registry builds a registry descriptor for the given constraint.
func Registry(registry string, cons semver.Constraint) Descriptor {
	return Descriptor{Kind: KindRegistry, Registry: registry, Constraint: cons}
}

// Patched wraps original with its replacement.
func Patched(original, replacement Descriptor) Descriptor {
	return Descriptor{Kind: KindPatched, Original: &original, Replacement: &replacement}
}

// Effective returns the descriptor that resolution should actually use:
// the replacement for patched sources, the descriptor itself otherwise.
func (d Descriptor) Effective() Descriptor {
	if d.Kind == KindPatched && d.Replacement != nil {
		return d.Replacement.Effective()
	}
	return d
}

// IsPathPatch reports whether the descriptor is a patch whose replacement
// is a local path override.
func (d Descriptor) IsPathPatch() bool {
	return d.Kind == KindPatched && d.Replacement != nil && d.Replacement.Effective().Kind == KindPath
}

// Validate checks structural invariants. A git descriptor with zero or
// multiple ref selectors fails with AMBIGUOUS_GIT_REF; this runs at
// manifest-parse time, before any network access.
func (d Descriptor) Validate() error {
	switch d.Kind {
	case KindGit:
		if d.URL == "" {
			return errors.New(errors.ErrCodeInvalidManifest, "git source missing URL")
		}
		n := 0
		for _, ref := range []string{d.Tag, d.Branch, d.Rev} {
			if ref != "" {
				n++
			}
		}
		if d.Latest && n != 0 {
			return errors.New(errors.ErrCodeAmbiguousGitRef,
				"git source %s requests the latest tag but also sets a ref selector", d.URL)
		}
		if !d.Latest && n != 1 {
			return errors.New(errors.ErrCodeAmbiguousGitRef,
				"git source %s must set exactly one of tag, branch, rev (got %d)", d.URL, n)
		}
	case KindPath:
		if d.Path == "" {
			return errors.New(errors.ErrCodeInvalidManifest, "path source missing path")
		}
	case KindRegistry:
		if d.Constraint.IsZero() {
			return errors.New(errors.ErrCodeInvalidManifest, "registry source missing version constraint")
		}
	case KindPatched:
		if d.Original == nil || d.Replacement == nil {
			return errors.New(errors.ErrCodeInvalidManifest, "patched source missing original or replacement")
		}
		if err := d.Original.Validate(); err != nil {
			return err
		}
		return d.Replacement.Validate()
	}
	return nil
}

// RefSelector returns the git ref selector kind and value ("tag", "v1.0").
// Only meaningful for KindGit descriptors that passed Validate.
func (d Descriptor) RefSelector() (kind, value string) {
	switch {
	case d.Tag != "":
		return "tag", d.Tag
	case d.Branch != "":
		return "branch", d.Branch
	case d.Rev != "":
		return "rev", d.Rev
	}
	return "", ""
}

// PatchKey is the string a [patch] table entry matches against: the exact
// URL for git sources, the absolute path for path sources, and the
// registry id (or "registry" for the default) for registry sources.
func (d Descriptor) PatchKey() string {
	switch d.Effective().Kind {
	case KindGit:
		return d.Effective().URL
	case KindPath:
		return d.Effective().Path
	case KindRegistry:
		if r := d.Effective().Registry; r != "" {
			return r
		}
		return "registry"
	}
	return ""
}

// Equal reports whether two descriptors describe the same source.
// Constraints compare by their textual spec; patched sources compare
// structurally.
func (d Descriptor) Equal(o Descriptor) bool {
	if d.Kind != o.Kind {
		return false
	}
	switch d.Kind {
	case KindGit:
		return d.URL == o.URL && d.Tag == o.Tag && d.Branch == o.Branch && d.Rev == o.Rev && d.Latest == o.Latest
	case KindPath:
		return d.Path == o.Path
	case KindRegistry:
		return d.Registry == o.Registry && d.Constraint.String() == o.Constraint.String()
	case KindPatched:
		if (d.Original == nil) != (o.Original == nil) || (d.Replacement == nil) != (o.Replacement == nil) {
			return false
		}
		return d.Original.Equal(*o.Original) && d.Replacement.Equal(*o.Replacement)
	}
	return false
}

// String renders a human-readable form for logs and diagnostics.
func (d Descriptor) String() string {
	switch d.Kind {
	case KindGit:
		kind, val := d.RefSelector()
		if kind == "" {
			return fmt.Sprintf("git %s", d.URL)
		}
		return fmt.Sprintf("git %s (%s %s)", d.URL, kind, val)
	case KindPath:
		return fmt.Sprintf("path %s", d.Path)
	case KindRegistry:
		reg := d.Registry
		if reg == "" {
			reg = "default"
		}
		return fmt.Sprintf("registry %s (%s)", reg, d.Constraint)
	case KindPatched:
		return fmt.Sprintf("%s (patched from %s)", d.Replacement, d.Original)
	}
	return "unknown source"
}
