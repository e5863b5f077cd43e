// Package semver implements semantic version parsing, ordering, and the
// constraint grammar used by CCGO.toml dependency declarations.
//
// Versions follow the usual major.minor.patch form with an optional
// prerelease tag and optional build metadata. Build metadata is carried
// through formatting but never participates in ordering or equality.
//
// Constraints support exact versions, caret (^) and tilde (~) ranges,
// comparison operators (>=, <=, >, <), trailing wildcards (1.2.*), and
// comma-separated AND-combinations (">=1.2.0, <2.0.0").
package semver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ccgo-build/ccgo/pkg/errors"
)

// Version is a parsed semantic version.
type Version struct {
	Major, Minor, Patch int
	Pre                 string // prerelease tag without leading '-', empty if none
	Build               string // build metadata without leading '+', ignored in ordering
}

// Parse parses a full three-segment semantic version, with optional
// prerelease and build metadata suffixes. A leading "v" is not accepted;
// use ParseTag for git tag forms.
func Parse(s string) (Version, error) {
	v, precision, err := parsePartial(s)
	if err != nil {
		return Version{}, err
	}
	if precision != 3 {
		return Version{}, errors.New(errors.ErrCodeInvalidVersion, "incomplete version %q: expected major.minor.patch", s)
	}
	return v, nil
}

// MustParse is Parse for compile-time constants; it panics on error.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// ParseTag parses a git tag as a version, tolerating a leading "v" or "V".
// The second return is false if the tag is not a well-formed version.
func ParseTag(tag string) (Version, bool) {
	s := strings.TrimPrefix(strings.TrimPrefix(tag, "v"), "V")
	v, err := Parse(s)
	return v, err == nil
}

// parsePartial parses a version with one to three numeric segments and
// returns how many segments were explicit. "10.1" yields precision 2 with
// Patch zeroed. Prerelease and build suffixes are only accepted on the
// final segment.
func parsePartial(s string) (Version, int, error) {
	if s == "" {
		return Version{}, 0, errors.New(errors.ErrCodeInvalidVersion, "empty version")
	}

	var v Version
	rest := s
	if i := strings.IndexByte(rest, '+'); i >= 0 {
		v.Build = rest[i+1:]
		rest = rest[:i]
		if v.Build == "" {
			return Version{}, 0, errors.New(errors.ErrCodeInvalidVersion, "empty build metadata in %q", s)
		}
	}
	if i := strings.IndexByte(rest, '-'); i >= 0 {
		v.Pre = rest[i+1:]
		rest = rest[:i]
		if v.Pre == "" {
			return Version{}, 0, errors.New(errors.ErrCodeInvalidVersion, "empty prerelease tag in %q", s)
		}
	}

	parts := strings.Split(rest, ".")
	if len(parts) == 0 || len(parts) > 3 {
		return Version{}, 0, errors.New(errors.ErrCodeInvalidVersion, "malformed version %q", s)
	}
	nums := [3]int{}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || (len(p) > 1 && p[0] == '0') {
			return Version{}, 0, errors.New(errors.ErrCodeInvalidVersion, "malformed version segment %q in %q", p, s)
		}
		nums[i] = n
	}
	v.Major, v.Minor, v.Patch = nums[0], nums[1], nums[2]
	return v, len(parts), nil
}

// String formats the version, including prerelease and build suffixes.
func (v Version) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Pre != "" {
		b.WriteByte('-')
		b.WriteString(v.Pre)
	}
	if v.Build != "" {
		b.WriteByte('+')
		b.WriteString(v.Build)
	}
	return b.String()
}

// IsPrerelease reports whether the version carries a prerelease tag.
func (v Version) IsPrerelease() bool { return v.Pre != "" }

// Equal reports whether two versions have the same precedence.
// Build metadata is ignored.
func (v Version) Equal(o Version) bool { return Compare(v, o) == 0 }

// Less reports whether v orders strictly before o.
func (v Version) Less(o Version) bool { return Compare(v, o) < 0 }

// Compare orders two versions by semver precedence: numeric segments first,
// then prerelease (a prerelease sorts before the corresponding release).
// Build metadata never affects the result.
func Compare(a, b Version) int {
	if c := cmpInt(a.Major, b.Major); c != 0 {
		return c
	}
	if c := cmpInt(a.Minor, b.Minor); c != 0 {
		return c
	}
	if c := cmpInt(a.Patch, b.Patch); c != 0 {
		return c
	}
	return comparePre(a.Pre, b.Pre)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// comparePre orders prerelease tags per semver: an empty tag (a release)
// sorts after any prerelease; otherwise dot-separated identifiers compare
// left to right, numeric identifiers numerically and before alphanumeric.
func comparePre(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	}

	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		ai, aNum := parseNum(as[i])
		bi, bNum := parseNum(bs[i])
		switch {
		case aNum && bNum:
			if c := cmpInt(ai, bi); c != 0 {
				return c
			}
		case aNum:
			return -1
		case bNum:
			return 1
		default:
			if c := strings.Compare(as[i], bs[i]); c != 0 {
				return c
			}
		}
	}
	return cmpInt(len(as), len(bs))
}

func parseNum(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	return n, err == nil
}
