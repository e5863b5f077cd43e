// Package gitx wraps the git binary behind a small client interface.
//
// The resolver treats git as an external collaborator: listing remote tags,
// resolving a ref to a revision, and materializing a (url, ref) tree into
// the local cache. Fetched trees are immutable once committed; clones land
// in a temp directory and are renamed into place atomically so concurrent
// resolution runs sharing the cache never observe a partial clone.
//
// Tests substitute an in-memory implementation of [Client]; nothing above
// this package shells out directly.
package gitx

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ccgo-build/ccgo/pkg/cache"
	"github.com/ccgo-build/ccgo/pkg/errors"
	"github.com/ccgo-build/ccgo/pkg/fetch"
	"github.com/ccgo-build/ccgo/pkg/semver"
	"github.com/ccgo-build/ccgo/pkg/source"
)

// Ref selects what to fetch from a repository.
type Ref struct {
	Kind  string // "tag", "branch", or "rev"
	Value string
}

// RefOf extracts the ref selector from a validated git descriptor.
func RefOf(d source.Descriptor) Ref {
	kind, value := d.RefSelector()
	return Ref{Kind: kind, Value: value}
}

func (r Ref) String() string { return r.Kind + "=" + r.Value }

// Client is the git collaborator interface consumed by the resolver.
type Client interface {
	// ListTags returns the repository's tag names.
	ListTags(ctx context.Context, url string) ([]string, error)
	// ResolveRef resolves a ref to its commit revision without fetching.
	ResolveRef(ctx context.Context, url string, ref Ref) (string, error)
	// Fetch materializes the tree for (url, ref) on local disk and returns
	// its directory and resolved revision. Previously fetched trees are
	// reused without network access.
	Fetch(ctx context.Context, url string, ref Ref) (dir string, rev string, err error)
}

// ExecClient implements Client by shelling out to the git binary.
type ExecClient struct {
	cacheDir string
	retry    fetch.Strategy
	offline  bool
}

// NewExecClient creates a git client cloning into cacheDir/repos.
// In offline mode only already-fetched trees are served; anything else
// fails with SOURCE_UNAVAILABLE.
func NewExecClient(cacheDir string, retry fetch.Strategy, offline bool) *ExecClient {
	return &ExecClient{cacheDir: cacheDir, retry: retry, offline: offline}
}

// revMarker records the resolved revision inside a committed clone so
// offline runs can answer Fetch without the network.
const revMarker = ".ccgo-rev"

// ListTags lists remote tags via ls-remote.
func (c *ExecClient) ListTags(ctx context.Context, url string) ([]string, error) {
	if c.offline {
		return nil, errors.New(errors.ErrCodeSourceUnavailable, "offline: cannot list tags of %s", url)
	}
	var out []byte
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var runErr error
		out, runErr = c.git(ctx, "", "ls-remote", "--tags", "--refs", url)
		return runErr
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSourceUnavailable, err, "list tags of %s", url)
	}

	var tags []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 {
			continue
		}
		if tag, ok := strings.CutPrefix(fields[1], "refs/tags/"); ok {
			tags = append(tags, tag)
		}
	}
	return tags, nil
}

// ResolveRef resolves a tag or branch to its revision via ls-remote; a rev
// ref resolves to itself.
func (c *ExecClient) ResolveRef(ctx context.Context, url string, ref Ref) (string, error) {
	if ref.Kind == "rev" {
		return ref.Value, nil
	}
	if c.offline {
		if _, rev, err := c.cached(url, ref); err == nil {
			return rev, nil
		}
		return "", errors.New(errors.ErrCodeSourceUnavailable, "offline: cannot resolve %s of %s", ref, url)
	}

	pattern := "refs/tags/" + ref.Value
	if ref.Kind == "branch" {
		pattern = "refs/heads/" + ref.Value
	}
	var out []byte
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var runErr error
		out, runErr = c.git(ctx, "", "ls-remote", url, pattern)
		return runErr
	})
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeSourceUnavailable, err, "resolve %s of %s", ref, url)
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return "", errors.New(errors.ErrCodeSourceUnavailable, "%s: no %s %q", url, ref.Kind, ref.Value)
	}
	return fields[0], nil
}

// Fetch returns the cached tree for (url, ref), cloning it first if needed.
func (c *ExecClient) Fetch(ctx context.Context, url string, ref Ref) (string, string, error) {
	if dir, rev, err := c.cached(url, ref); err == nil {
		return dir, rev, nil
	}
	if c.offline {
		return "", "", errors.New(errors.ErrCodeSourceUnavailable, "offline: %s (%s) not in cache", url, ref)
	}

	dest := c.repoDir(url, ref)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", "", err
	}
	tmp, err := os.MkdirTemp(filepath.Dir(dest), ".clone-*")
	if err != nil {
		return "", "", err
	}
	defer os.RemoveAll(tmp)

	var rev string
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		rev = ""
		if err := c.clone(ctx, url, ref, tmp); err != nil {
			return err
		}
		out, err := c.git(ctx, tmp, "rev-parse", "HEAD")
		if err != nil {
			return err
		}
		rev = strings.TrimSpace(string(out))
		return nil
	})
	if err != nil {
		return "", "", errors.Wrap(errors.ErrCodeSourceUnavailable, err, "fetch %s (%s)", url, ref)
	}

	if err := os.WriteFile(filepath.Join(tmp, revMarker), []byte(rev+"\n"), 0o644); err != nil {
		return "", "", err
	}
	if err := os.Rename(tmp, dest); err != nil {
		// A concurrent run committed the same (url, ref) first; use theirs.
		if dir, cachedRev, cerr := c.cached(url, ref); cerr == nil {
			return dir, cachedRev, nil
		}
		return "", "", err
	}
	return dest, rev, nil
}

func (c *ExecClient) clone(ctx context.Context, url string, ref Ref, dest string) error {
	switch ref.Kind {
	case "tag", "branch":
		_, err := c.git(ctx, "", "clone", "--depth", "1", "--branch", ref.Value, url, dest)
		return err
	case "rev":
		if _, err := c.git(ctx, "", "clone", url, dest); err != nil {
			return err
		}
		_, err := c.git(ctx, dest, "checkout", "--detach", ref.Value)
		return err
	}
	return errors.New(errors.ErrCodeInternal, "unknown ref kind %q", ref.Kind)
}

func (c *ExecClient) cached(url string, ref Ref) (string, string, error) {
	dir := c.repoDir(url, ref)
	data, err := os.ReadFile(filepath.Join(dir, revMarker))
	if err != nil {
		return "", "", err
	}
	return dir, strings.TrimSpace(string(data)), nil
}

func (c *ExecClient) repoDir(url string, ref Ref) string {
	return filepath.Join(c.cacheDir, "repos", cache.Hash([]byte(url+"|"+ref.String())))
}

// git runs a git command, classifying failures: unreachable hosts and
// timeouts are transient (retried); missing repositories and auth failures
// are permanent.
func (c *ExecClient) git(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		wrapped := fmt.Errorf("git %s: %s", args[0], firstLine(msg))
		if isTransient(msg) {
			return nil, fetch.Retryable(wrapped)
		}
		return nil, wrapped
	}
	return stdout.Bytes(), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func isTransient(stderr string) bool {
	for _, marker := range []string{
		"Could not resolve host",
		"unable to access",
		"Connection timed out",
		"Connection refused",
		"early EOF",
		"RPC failed",
	} {
		if strings.Contains(stderr, marker) {
			return true
		}
	}
	return false
}

// LatestTag returns the highest release tag of the repository as
// (tag, version). Prerelease tags are skipped unless includePre is set;
// tags that are not well-formed versions are ignored.
func LatestTag(ctx context.Context, c Client, url string, includePre bool) (string, semver.Version, error) {
	tags, err := c.ListTags(ctx, url)
	if err != nil {
		return "", semver.Version{}, err
	}

	var bestTag string
	var best semver.Version
	for _, tag := range tags {
		v, ok := semver.ParseTag(tag)
		if !ok || (v.IsPrerelease() && !includePre) {
			continue
		}
		if bestTag == "" || best.Less(v) {
			bestTag, best = tag, v
		}
	}
	if bestTag == "" {
		return "", semver.Version{}, errors.New(errors.ErrCodeNoMatchingVersion, "%s has no release tags", url)
	}
	return bestTag, best, nil
}
