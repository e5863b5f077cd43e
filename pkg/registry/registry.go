// Package registry reads git-hosted package indexes.
//
// An index is a plain git repository holding an index.json metadata file
// and one JSON document per package at a sharded path derived from the
// package name. The index repository is synced through the git client and
// individual lookups are memoized for the lifetime of a Client, so a
// resolution pass reads each package file at most once. A byte cache sits
// in front of the index checkout for cross-run reuse keyed by the synced
// revision.
package registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ccgo-build/ccgo/pkg/cache"
	"github.com/ccgo-build/ccgo/pkg/errors"
	"github.com/ccgo-build/ccgo/pkg/gitx"
	"github.com/ccgo-build/ccgo/pkg/semver"
	"github.com/ccgo-build/ccgo/pkg/source"
)

// DefaultIndexURL is the index used when a manifest names no registry.
const DefaultIndexURL = "https://github.com/ccgo-build/registry-index.git"

// indexBranch is the branch registries publish on.
const indexBranch = "main"

// entryTTL bounds how long cached per-package lookups are trusted. The key
// embeds the index revision, so this only limits garbage accumulation.
const entryTTL = 7 * 24 * time.Hour

// Metadata is the registry-level index.json document.
type Metadata struct {
	Name         string `json:"name"`
	PackageCount int    `json:"package_count"`
	UpdatedAt    string `json:"updated_at"`
}

// Entry is one package's index document.
type Entry struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Repository  string    `json:"repository"`
	License     string    `json:"license,omitempty"`
	Platforms   []string  `json:"platforms,omitempty"`
	Releases    []Release `json:"versions"`
}

// Release is one published version of a package. Name and URL are copied
// from the enclosing entry when its index file is decoded.
type Release struct {
	Version  string `json:"version"`
	Tag      string `json:"git_tag"`
	Checksum string `json:"checksum,omitempty"`
	Yanked   bool   `json:"yanked,omitempty"`

	Name string `json:"-"`
	URL  string `json:"-"`
}

// Source returns the git descriptor that fetches this release.
func (r Release) Source() source.Descriptor {
	return source.Git(r.URL, r.Tag, "", "")
}

// Client looks up package releases across one or more indexes.
type Client struct {
	git   gitx.Client
	store cache.Cache
	urls  map[string]string // registry id -> index repository URL

	mu     sync.Mutex
	synced map[string]syncedIndex
	memo   map[string][]Release
}

type syncedIndex struct {
	dir string
	rev string
}

// New creates a client over the given git collaborator. urls maps manifest
// registry ids to index repository URLs; the empty id falls back to
// DefaultIndexURL. store may be a NullCache.
func New(git gitx.Client, store cache.Cache, urls map[string]string) *Client {
	return &Client{
		git:    git,
		store:  store,
		urls:   urls,
		synced: make(map[string]syncedIndex),
		memo:   make(map[string][]Release),
	}
}

// WithURLs merges manifest-declared [registries] entries into the client
// and returns it. Later declarations win over construction-time ones.
func (c *Client) WithURLs(urls map[string]string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.urls == nil {
		c.urls = make(map[string]string, len(urls))
	}
	for id, url := range urls {
		c.urls[id] = url
	}
	return c
}

// IndexURL resolves a manifest registry id to its index repository URL.
func (c *Client) IndexURL(registry string) (string, error) {
	if registry == "" {
		return DefaultIndexURL, nil
	}
	if url, ok := c.urls[registry]; ok {
		return url, nil
	}
	return "", errors.New(errors.ErrCodeInvalidManifest, "unknown registry %q (declare it under [registries])", registry)
}

// Releases returns every published release of name in the given registry,
// yanked ones included, sorted by ascending version. An empty registry id
// means the default index. A package absent from the index is NOT_FOUND.
func (c *Client) Releases(ctx context.Context, registry, name string) ([]Release, error) {
	url, err := c.IndexURL(registry)
	if err != nil {
		return nil, err
	}
	idx, err := c.sync(ctx, url)
	if err != nil {
		return nil, err
	}

	memoKey := url + "|" + name
	c.mu.Lock()
	if releases, ok := c.memo[memoKey]; ok {
		c.mu.Unlock()
		return releases, nil
	}
	c.mu.Unlock()

	releases, err := c.load(ctx, idx, name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.memo[memoKey] = releases
	c.mu.Unlock()
	return releases, nil
}

// Versions returns the selectable versions of name: non-yanked releases in
// ascending order.
func (c *Client) Versions(ctx context.Context, registry, name string) ([]semver.Version, error) {
	releases, err := c.Releases(ctx, registry, name)
	if err != nil {
		return nil, err
	}
	var out []semver.Version
	for _, r := range releases {
		if r.Yanked {
			continue
		}
		v, err := semver.Parse(r.Version)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	semver.SortVersions(out)
	return out, nil
}

// Lookup returns the release of name at exactly version.
func (c *Client) Lookup(ctx context.Context, registry, name string, version semver.Version) (Release, error) {
	releases, err := c.Releases(ctx, registry, name)
	if err != nil {
		return Release{}, err
	}
	for _, r := range releases {
		v, err := semver.Parse(r.Version)
		if err == nil && v.Equal(version) {
			return r, nil
		}
	}
	return Release{}, errors.New(errors.ErrCodeNotFound, "%s has no release %s in the index", name, version)
}

// sync materializes the index checkout once per Client.
func (c *Client) sync(ctx context.Context, url string) (syncedIndex, error) {
	c.mu.Lock()
	if idx, ok := c.synced[url]; ok {
		c.mu.Unlock()
		return idx, nil
	}
	c.mu.Unlock()

	dir, rev, err := c.git.Fetch(ctx, url, gitx.Ref{Kind: "branch", Value: indexBranch})
	if err != nil {
		return syncedIndex{}, errors.Wrap(errors.ErrCodeSourceUnavailable, err, "sync index %s", url)
	}

	logger := log.FromContext(ctx)
	if data, err := os.ReadFile(filepath.Join(dir, "index.json")); err == nil {
		var meta Metadata
		if json.Unmarshal(data, &meta) == nil {
			logger.Debug("synced registry index",
				"url", url, "rev", rev, "name", meta.Name, "packages", meta.PackageCount)
		}
	} else {
		logger.Debug("synced registry index", "url", url, "rev", rev)
	}

	idx := syncedIndex{dir: dir, rev: rev}
	c.mu.Lock()
	c.synced[url] = idx
	c.mu.Unlock()
	return idx, nil
}

func (c *Client) load(ctx context.Context, idx syncedIndex, name string) ([]Release, error) {
	key := cache.Key("registry", idx.rev, strings.ToLower(name))
	if data, ok, err := c.store.Get(ctx, key); err == nil && ok {
		if releases, err := decodeEntry(data, name); err == nil {
			return releases, nil
		}
	}

	data, err := os.ReadFile(filepath.Join(idx.dir, ShardPath(name)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeNotFound, "package %q is not in the index", name)
		}
		return nil, errors.Wrap(errors.ErrCodeSourceUnavailable, err, "read index entry for %q", name)
	}

	releases, err := decodeEntry(data, name)
	if err != nil {
		return nil, err
	}
	_ = c.store.Set(ctx, key, data, entryTTL)
	return releases, nil
}

// decodeEntry parses a package index document, stamping each release with
// the entry-level name and repository URL.
func decodeEntry(data []byte, name string) ([]Release, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "malformed index entry for %q", name)
	}
	releases := e.Releases
	for i := range releases {
		releases[i].Name = e.Name
		releases[i].URL = e.Repository
	}
	return releases, nil
}

// ShardPath returns the index-relative file for a package name. Short
// names get their own top-level buckets; longer names shard on the first
// four characters to keep directories small.
func ShardPath(name string) string {
	name = strings.ToLower(name)
	switch len(name) {
	case 0:
		return ""
	case 1:
		return filepath.Join("1", name+".json")
	case 2:
		return filepath.Join("2", name+".json")
	case 3:
		return filepath.Join("3", name[:1], name+".json")
	default:
		return filepath.Join(name[:2], name[2:4], name+".json")
	}
}
