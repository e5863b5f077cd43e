package manifest

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/ccgo-build/ccgo/pkg/errors"
)

// AddDependency inserts or replaces a [dependencies] entry in the manifest
// file at path and rewrites it atomically. spec is stored verbatim, so
// shorthand forms stay shorthand, but it is validated first.
func AddDependency(path, name, spec string) error {
	if _, err := normalizeDependency(name, any(spec), filepath.Dir(path), ""); err != nil {
		return err
	}
	return rewrite(path, func(doc map[string]any) error {
		deps, ok := doc["dependencies"].(map[string]any)
		if !ok {
			deps = make(map[string]any)
			doc["dependencies"] = deps
		}
		deps[name] = spec
		return nil
	})
}

// AddDependencyTable inserts or replaces a table-form [dependencies] entry
// (git, path, tag, branch, rev keys) and rewrites the file atomically.
func AddDependencyTable(path, name string, table map[string]any) error {
	if _, err := normalizeDependency(name, any(table), filepath.Dir(path), ""); err != nil {
		return err
	}
	return rewrite(path, func(doc map[string]any) error {
		deps, ok := doc["dependencies"].(map[string]any)
		if !ok {
			deps = make(map[string]any)
			doc["dependencies"] = deps
		}
		deps[name] = table
		return nil
	})
}

// RemoveDependency deletes a [dependencies] entry and rewrites the file.
// Removing a name that is not declared is an error, so typos surface.
func RemoveDependency(path, name string) error {
	return rewrite(path, func(doc map[string]any) error {
		deps, ok := doc["dependencies"].(map[string]any)
		if !ok {
			return errors.New(errors.ErrCodeNotFound, "%s declares no dependencies", path)
		}
		if _, ok := deps[name]; !ok {
			return errors.New(errors.ErrCodeNotFound, "%s does not depend on %q", path, name)
		}
		delete(deps, name)
		return nil
	})
}

// rewrite decodes the manifest into a generic document, applies fn, and
// writes the re-encoded result via temp file and rename. Comments in the
// original file are not preserved.
func rewrite(path string, fn func(doc map[string]any) error) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidManifest, err, "read %s", path)
	}
	var doc map[string]any
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse %s", path)
	}
	if err := fn(doc); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode %s", path)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".ccgo-toml-*")
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
