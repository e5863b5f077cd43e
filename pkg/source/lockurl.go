package source

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ccgo-build/ccgo/pkg/errors"
)

// Lockfile source strings pin a resolved source as a single URL:
//
//	git+https://github.com/user/repo.git?tag=v1.0.0#<revision>
//	git+https://github.com/user/repo.git?branch=main#<revision>
//	path+/abs/path/to/dep
//
// The query key records which ref selector was declared; the fragment is
// the exact revision the ref resolved to. Path sources have no revision.

// EncodeLockURL renders the pinned lockfile form of a resolved descriptor.
// rev is the resolved git revision; it is ignored for path sources.
func EncodeLockURL(d Descriptor, rev string) (string, error) {
	eff := d.Effective()
	switch eff.Kind {
	case KindGit:
		kind, val := eff.RefSelector()
		if kind == "" {
			return "", errors.New(errors.ErrCodeInternal, "unresolved git ref for %s", eff.URL)
		}
		s := fmt.Sprintf("git+%s?%s=%s", eff.URL, kind, url.QueryEscape(val))
		if rev != "" {
			s += "#" + rev
		}
		return s, nil
	case KindPath:
		return "path+" + eff.Path, nil
	default:
		return "", errors.New(errors.ErrCodeInternal, "cannot encode %s source in lockfile", eff.Kind)
	}
}

// ParseLockURL decodes a lockfile source string back into a descriptor and
// the pinned revision.
func ParseLockURL(s string) (Descriptor, string, error) {
	switch {
	case strings.HasPrefix(s, "path+"):
		p := strings.TrimPrefix(s, "path+")
		if p == "" {
			return Descriptor{}, "", errors.New(errors.ErrCodeInvalidLockfile, "empty path source")
		}
		return Descriptor{Kind: KindPath, Path: p}, "", nil

	case strings.HasPrefix(s, "git+"):
		rest := strings.TrimPrefix(s, "git+")
		var rev string
		if i := strings.LastIndexByte(rest, '#'); i >= 0 {
			rev = rest[i+1:]
			rest = rest[:i]
		}
		var query string
		if i := strings.LastIndexByte(rest, '?'); i >= 0 {
			query = rest[i+1:]
			rest = rest[:i]
		}
		d := Descriptor{Kind: KindGit, URL: rest}
		if query != "" {
			vals, err := url.ParseQuery(query)
			if err != nil {
				return Descriptor{}, "", errors.Wrap(errors.ErrCodeInvalidLockfile, err, "malformed source query in %q", s)
			}
			d.Tag = vals.Get("tag")
			d.Branch = vals.Get("branch")
			d.Rev = vals.Get("rev")
		}
		if err := d.Validate(); err != nil {
			return Descriptor{}, "", errors.Wrap(errors.ErrCodeInvalidLockfile, err, "malformed source %q", s)
		}
		return d, rev, nil
	}
	return Descriptor{}, "", errors.New(errors.ErrCodeInvalidLockfile, "unrecognized source scheme in %q", s)
}
