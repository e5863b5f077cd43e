package source

import (
	"fmt"
	"strings"

	"github.com/ccgo-build/ccgo/pkg/errors"
	"github.com/ccgo-build/ccgo/pkg/semver"
)

// providerHosts maps shorthand provider prefixes to git hosts.
var providerHosts = map[string]string{
	"github":    "github.com",
	"gh":        "github.com",
	"gitlab":    "gitlab.com",
	"gl":        "gitlab.com",
	"bitbucket": "bitbucket.org",
	"bb":        "bitbucket.org",
	"gitee":     "gitee.com",
}

// ParseShorthand normalizes a manifest shorthand string into a Descriptor.
//
// Recognized forms:
//   - "github:user/repo@v1.2.3" (and gh:, gitlab:, gl:, bitbucket:, bb:, gitee:)
//   - "user/repo@v1.2.3" (bare owner/repo is assumed GitHub)
//   - "^10.1", "1.2.3", ">=1.0, <2.0" (registry constraint, default registry)
//
// An "@version" suffix on a git form sets the tag ref selector. A git form
// without a suffix is returned without a selector; the caller resolves the
// latest tag (an external collaborator operation) before use.
func ParseShorthand(spec string) (Descriptor, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Descriptor{}, errors.New(errors.ErrCodeInvalidManifest, "empty dependency spec")
	}

	if host, rest, ok := splitProvider(spec); ok {
		return gitShorthand(host, rest, spec)
	}
	if looksLikeRepoPath(spec) {
		return gitShorthand("github.com", spec, spec)
	}

	cons, err := semver.ParseConstraint(spec)
	if err != nil {
		return Descriptor{}, err
	}
	return Registry("", cons), nil
}

func splitProvider(spec string) (host, rest string, ok bool) {
	i := strings.IndexByte(spec, ':')
	if i <= 0 {
		return "", "", false
	}
	host, ok = providerHosts[strings.ToLower(spec[:i])]
	return host, spec[i+1:], ok
}

// looksLikeRepoPath reports whether spec is a bare "owner/repo" reference
// rather than a version constraint.
func looksLikeRepoPath(spec string) bool {
	at := spec
	if i := strings.IndexByte(spec, '@'); i >= 0 {
		at = spec[:i]
	}
	parts := strings.Split(at, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return false
	}
	return !strings.ContainsAny(at, " \t^~<>=*,")
}

func gitShorthand(host, rest, spec string) (Descriptor, error) {
	var tag string
	if i := strings.IndexByte(rest, '@'); i >= 0 {
		tag = rest[i+1:]
		rest = rest[:i]
		if tag == "" {
			return Descriptor{}, errors.New(errors.ErrCodeInvalidManifest, "empty version in dependency spec %q", spec)
		}
	}
	rest = strings.TrimSuffix(rest, ".git")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Descriptor{}, errors.New(errors.ErrCodeInvalidManifest, "malformed repository %q in dependency spec %q", rest, spec)
	}
	url := fmt.Sprintf("https://%s/%s/%s.git", host, parts[0], parts[1])
	d := Git(url, tag, "", "")
	d.Latest = tag == ""
	return d, nil
}
