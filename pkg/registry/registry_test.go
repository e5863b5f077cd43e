package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ccgo-build/ccgo/pkg/cache"
	"github.com/ccgo-build/ccgo/pkg/errors"
	"github.com/ccgo-build/ccgo/pkg/gitx"
	"github.com/ccgo-build/ccgo/pkg/semver"
)

// fakeGit serves a pre-built index checkout and counts fetches.
type fakeGit struct {
	dir     string
	rev     string
	fetches int
}

func (f *fakeGit) ListTags(ctx context.Context, url string) ([]string, error) { return nil, nil }

func (f *fakeGit) ResolveRef(ctx context.Context, url string, ref gitx.Ref) (string, error) {
	return f.rev, nil
}

func (f *fakeGit) Fetch(ctx context.Context, url string, ref gitx.Ref) (string, string, error) {
	f.fetches++
	return f.dir, f.rev, nil
}

func writeIndex(t *testing.T, dir, name, doc string) {
	t.Helper()
	path := filepath.Join(dir, ShardPath(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeGit) {
	t.Helper()
	dir := t.TempDir()
	writeIndex(t, dir, "fmt", `{
		"name": "fmt",
		"repository": "https://github.com/fmtlib/fmt.git",
		"license": "MIT",
		"versions": [
			{"version": "10.0.0", "git_tag": "10.0.0"},
			{"version": "10.1.0", "git_tag": "10.1.0"},
			{"version": "10.1.1", "git_tag": "10.1.1", "yanked": true},
			{"version": "10.2.1", "git_tag": "10.2.1", "checksum": "sha256:abc"}
		]
	}`)
	git := &fakeGit{dir: dir, rev: "rev-1"}
	return New(git, cache.NewNullCache(), nil), git
}

func TestVersionsSkipsYanked(t *testing.T) {
	c, _ := newTestClient(t)
	vs, err := c.Versions(context.Background(), "", "fmt")
	if err != nil {
		t.Fatal(err)
	}
	got := make([]string, len(vs))
	for i, v := range vs {
		got[i] = v.String()
	}
	want := []string{"10.0.0", "10.1.0", "10.2.1"}
	if len(got) != len(want) {
		t.Fatalf("versions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("versions = %v, want %v", got, want)
		}
	}
}

func TestLookup(t *testing.T) {
	c, _ := newTestClient(t)
	v := semver.MustParse("10.2.1")
	r, err := c.Lookup(context.Background(), "", "fmt", v)
	if err != nil {
		t.Fatal(err)
	}
	if r.Tag != "10.2.1" || r.Checksum != "sha256:abc" {
		t.Errorf("release = %+v", r)
	}
	src := r.Source()
	if src.URL != "https://github.com/fmtlib/fmt.git" || src.Tag != "10.2.1" {
		t.Errorf("source = %s", src)
	}

	if _, err := c.Lookup(context.Background(), "", "fmt", semver.MustParse("9.0.0")); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("missing version: err = %v", err)
	}
}

func TestUnknownPackage(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.Releases(context.Background(), "", "no-such-package")
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestUnknownRegistryID(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.Releases(context.Background(), "corp", "fmt")
	if !errors.Is(err, errors.ErrCodeInvalidManifest) {
		t.Errorf("err = %v, want INVALID_MANIFEST", err)
	}
}

func TestSyncAndMemoizationFetchOnce(t *testing.T) {
	c, git := newTestClient(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.Releases(ctx, "", "fmt"); err != nil {
			t.Fatal(err)
		}
	}
	if git.fetches != 1 {
		t.Errorf("index fetched %d times, want 1", git.fetches)
	}
}

func TestShardPath(t *testing.T) {
	cases := map[string]string{
		"z":     filepath.Join("1", "z.json"),
		"ab":    filepath.Join("2", "ab.json"),
		"fmt":   filepath.Join("3", "f", "fmt.json"),
		"boost": filepath.Join("bo", "os", "boost.json"),
		"FMT":   filepath.Join("3", "f", "fmt.json"),
	}
	for name, want := range cases {
		if got := ShardPath(name); got != want {
			t.Errorf("ShardPath(%q) = %q, want %q", name, got, want)
		}
	}
}
