package semver

import (
	"slices"
	"strings"

	"github.com/ccgo-build/ccgo/pkg/errors"
)

type clauseOp int

const (
	opExact clauseOp = iota
	opCaret
	opTilde
	opGE
	opGT
	opLE
	opLT
	opWildcard
)

// clause is a single requirement. For caret, tilde, and wildcard forms the
// version may be partial; precision records how many segments were explicit.
type clause struct {
	op        clauseOp
	ver       Version
	precision int
}

// Constraint is a parsed version requirement. All clauses must hold for a
// version to satisfy the constraint (comma means AND).
type Constraint struct {
	raw     string
	clauses []clause
}

// ParseConstraint parses a constraint spec such as "1.2.3", "^10.1",
// "~0.4.2", ">=1.2.0, <2.0.0", or "1.2.*". It fails with an
// INVALID_CONSTRAINT error on malformed input: unknown operators, operators
// applied to partial versions, non-trailing or repeated wildcards, and
// empty clauses.
func ParseConstraint(spec string) (Constraint, error) {
	parts := strings.Split(spec, ",")
	c := Constraint{raw: strings.TrimSpace(spec)}
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return Constraint{}, errors.New(errors.ErrCodeInvalidConstraint, "empty clause in constraint %q", spec)
		}
		cl, err := parseClause(part, spec)
		if err != nil {
			return Constraint{}, err
		}
		c.clauses = append(c.clauses, cl)
	}
	if len(c.clauses) == 0 {
		return Constraint{}, errors.New(errors.ErrCodeInvalidConstraint, "empty constraint")
	}
	return c, nil
}

// MustParseConstraint is ParseConstraint that panics on error, for tests
// and compile-time-known specs.
func MustParseConstraint(spec string) Constraint {
	c, err := ParseConstraint(spec)
	if err != nil {
		panic(err)
	}
	return c
}

func parseClause(part, spec string) (clause, error) {
	switch {
	case strings.HasPrefix(part, "^"):
		v, prec, err := parsePartial(strings.TrimSpace(part[1:]))
		if err != nil {
			return clause{}, wrapSyntax(err, spec)
		}
		return clause{op: opCaret, ver: v, precision: prec}, nil

	case strings.HasPrefix(part, "~"):
		v, prec, err := parsePartial(strings.TrimSpace(part[1:]))
		if err != nil {
			return clause{}, wrapSyntax(err, spec)
		}
		return clause{op: opTilde, ver: v, precision: prec}, nil

	case strings.HasPrefix(part, ">="), strings.HasPrefix(part, "<="):
		op := opGE
		if part[0] == '<' {
			op = opLE
		}
		return parseCmpClause(op, part[2:], spec)

	case strings.HasPrefix(part, ">"), strings.HasPrefix(part, "<"):
		op := opGT
		if part[0] == '<' {
			op = opLT
		}
		return parseCmpClause(op, part[1:], spec)

	case strings.HasPrefix(part, "="):
		return parseCmpClause(opExact, part[1:], spec)

	case strings.Contains(part, "*"):
		return parseWildcard(part, spec)

	default:
		v, prec, err := parsePartial(part)
		if err != nil {
			return clause{}, wrapSyntax(err, spec)
		}
		if prec != 3 {
			return clause{}, errors.New(errors.ErrCodeInvalidConstraint,
				"partial version %q in constraint %q: use a wildcard (%s.*) or range operator", part, spec, part)
		}
		return clause{op: opExact, ver: v, precision: prec}, nil
	}
}

func parseCmpClause(op clauseOp, rest, spec string) (clause, error) {
	rest = strings.TrimSpace(rest)
	if strings.Contains(rest, "*") {
		return clause{}, errors.New(errors.ErrCodeInvalidConstraint, "wildcard cannot be combined with an operator in %q", spec)
	}
	v, prec, err := parsePartial(rest)
	if err != nil {
		return clause{}, wrapSyntax(err, spec)
	}
	if prec != 3 {
		return clause{}, errors.New(errors.ErrCodeInvalidConstraint,
			"comparison operator requires a full version in %q, got %q", spec, rest)
	}
	return clause{op: op, ver: v, precision: prec}, nil
}

func parseWildcard(part, spec string) (clause, error) {
	if part == "*" {
		return clause{op: opWildcard, precision: 0}, nil
	}
	segs := strings.Split(part, ".")
	if segs[len(segs)-1] != "*" {
		return clause{}, errors.New(errors.ErrCodeInvalidConstraint, "wildcard must be the trailing segment in %q", spec)
	}
	explicit := segs[:len(segs)-1]
	if len(explicit) > 2 || slices.Contains(explicit, "*") {
		return clause{}, errors.New(errors.ErrCodeInvalidConstraint, "malformed wildcard constraint %q", spec)
	}
	v, prec, err := parsePartial(strings.Join(explicit, "."))
	if err != nil {
		return clause{}, wrapSyntax(err, spec)
	}
	if v.Pre != "" || v.Build != "" {
		return clause{}, errors.New(errors.ErrCodeInvalidConstraint, "wildcard constraint %q cannot carry a prerelease tag", spec)
	}
	return clause{op: opWildcard, ver: v, precision: prec}, nil
}

func wrapSyntax(err error, spec string) error {
	return errors.Wrap(errors.ErrCodeInvalidConstraint, err, "invalid constraint %q", spec)
}

// String returns the constraint as originally written (whitespace-trimmed).
func (c Constraint) String() string { return c.raw }

// IsZero reports whether the constraint is the unparsed zero value.
func (c Constraint) IsZero() bool { return len(c.clauses) == 0 }

// HasPrerelease reports whether any clause explicitly names a prerelease
// version, which opts prerelease candidates into selection.
func (c Constraint) HasPrerelease() bool {
	for _, cl := range c.clauses {
		if cl.ver.Pre != "" {
			return true
		}
	}
	return false
}

// Matches reports whether v satisfies every clause of the constraint.
// Prerelease gating is a selection-time concern; Matches compares purely
// by precedence (see HighestSatisfying).
func (c Constraint) Matches(v Version) bool {
	for _, cl := range c.clauses {
		if !cl.matches(v) {
			return false
		}
	}
	return len(c.clauses) > 0
}

func (cl clause) matches(v Version) bool {
	// Ordering comparisons ignore build metadata by construction.
	cmp := Compare(v, cl.ver)
	switch cl.op {
	case opExact:
		return cmp == 0
	case opGE:
		return cmp >= 0
	case opGT:
		return cmp > 0
	case opLE:
		return cmp <= 0
	case opLT:
		return cmp < 0
	case opCaret:
		if cmp < 0 || v.Major != cl.ver.Major {
			return false
		}
		// For 0.x the minor acts as the compatibility boundary, when declared.
		if cl.ver.Major == 0 && cl.precision >= 2 && v.Minor != cl.ver.Minor {
			return false
		}
		return true
	case opTilde:
		if cmp < 0 || v.Major != cl.ver.Major {
			return false
		}
		if cl.precision >= 2 && v.Minor != cl.ver.Minor {
			return false
		}
		return true
	case opWildcard:
		if cl.precision >= 1 && v.Major != cl.ver.Major {
			return false
		}
		if cl.precision >= 2 && v.Minor != cl.ver.Minor {
			return false
		}
		return true
	}
	return false
}

// HighestSatisfying returns the maximum candidate satisfying the constraint.
// Prerelease candidates are skipped unless includePre is true or the
// constraint itself names a prerelease. The second return is false when no
// candidate satisfies the constraint.
func (c Constraint) HighestSatisfying(candidates []Version, includePre bool) (Version, bool) {
	return c.selectSatisfying(candidates, includePre, func(best, v Version) bool { return best.Less(v) })
}

// LowestSatisfying is the minimum-selecting counterpart of HighestSatisfying.
func (c Constraint) LowestSatisfying(candidates []Version, includePre bool) (Version, bool) {
	return c.selectSatisfying(candidates, includePre, func(best, v Version) bool { return v.Less(best) })
}

func (c Constraint) selectSatisfying(candidates []Version, includePre bool, better func(best, v Version) bool) (Version, bool) {
	allowPre := includePre || c.HasPrerelease()
	var best Version
	found := false
	for _, v := range candidates {
		if v.IsPrerelease() && !allowPre {
			continue
		}
		if !c.Matches(v) {
			continue
		}
		if !found || better(best, v) {
			best = v
			found = true
		}
	}
	return best, found
}

// SortVersions sorts versions ascending by precedence, in place.
func SortVersions(vs []Version) {
	slices.SortFunc(vs, Compare)
}
