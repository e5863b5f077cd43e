// Package pkg provides the core libraries for ccgo dependency management.
//
// # Overview
//
// ccgo resolves C/C++ project dependencies declared in a CCGO.toml manifest
// into a reproducible dependency graph and lockfile. The pkg directory is
// organized around the resolution pipeline:
//
//	CCGO.toml manifest
//	         ↓
//	    [manifest] package (parse, validate, workspace inheritance)
//	         ↓
//	    [resolver] package (constraint solving, conflict strategies, patches)
//	         ↓
//	    [dag] package (graph structure, cycle detection, topological order)
//	         ↓
//	    [lockfile] package (CCGO.lock read/write/verify)
//
// # Main Packages
//
// [manifest] - CCGO.toml parsing: dependency tables, shorthand specs,
// features, target predicates, [patch] sections, and workspace inheritance.
//
// [semver] - Semantic versions and the constraint grammar (caret, tilde,
// comparison operators, comma-separated conjunctions, wildcard suffixes).
//
// [source] - Source descriptors for the four origin kinds (git, path,
// registry, patched) and the lock URL encoding.
//
// [registry] - Git-backed registry index client: sharded package files,
// release metadata, yanked-version filtering.
//
// [resolver] - The resolution state machine. Walks manifests depth-first,
// fetches sources in parallel, applies patches, and settles version
// conflicts per the configured strategy (first, highest, lowest, strict).
//
// [dag] - Directed graph of resolved packages with deterministic
// dependencies-first topological ordering.
//
// [lockfile] - CCGO.lock serialization plus verification of an existing
// lockfile against the manifest for --locked installs.
//
// [render] - Graphviz DOT/SVG/PNG rendering of resolved graphs.
//
// # Infrastructure
//
// [gitx] - Git transport: shallow clones, tag listing, tree checksums.
//
// [cache] - Cache backends for registry index data. FileCache for the CLI,
// RedisCache for shared environments, NullCache for tests.
//
// [fetch] - Retry policy with exponential backoff for transient failures.
//
// [errors] - Structured error codes shared across all packages.
//
// [buildinfo] - Build-time version information injected via ldflags.
//
// # Quick Start
//
// Resolve a project and write its lockfile:
//
//	import (
//	    "context"
//	    "github.com/ccgo-build/ccgo/pkg/lockfile"
//	    "github.com/ccgo-build/ccgo/pkg/resolver"
//	)
//
//	r := resolver.New(git, reg, resolver.Options{Strategy: resolver.StrategyFirst})
//	plan, err := r.Resolve(context.Background(), "CCGO.toml")
//	if err != nil {
//	    return err
//	}
//	return lockfile.Write("CCGO.lock", lockfile.FromPlan(plan))
//
// # Testing
//
// Run tests:
//
//	go test ./pkg/...          # All tests
//	go test ./pkg/resolver/... # Specific package
//
// [manifest]: https://pkg.go.dev/github.com/ccgo-build/ccgo/pkg/manifest
// [semver]: https://pkg.go.dev/github.com/ccgo-build/ccgo/pkg/semver
// [source]: https://pkg.go.dev/github.com/ccgo-build/ccgo/pkg/source
// [registry]: https://pkg.go.dev/github.com/ccgo-build/ccgo/pkg/registry
// [resolver]: https://pkg.go.dev/github.com/ccgo-build/ccgo/pkg/resolver
// [dag]: https://pkg.go.dev/github.com/ccgo-build/ccgo/pkg/dag
// [lockfile]: https://pkg.go.dev/github.com/ccgo-build/ccgo/pkg/lockfile
// [render]: https://pkg.go.dev/github.com/ccgo-build/ccgo/pkg/render
// [gitx]: https://pkg.go.dev/github.com/ccgo-build/ccgo/pkg/gitx
// [cache]: https://pkg.go.dev/github.com/ccgo-build/ccgo/pkg/cache
// [fetch]: https://pkg.go.dev/github.com/ccgo-build/ccgo/pkg/fetch
// [errors]: https://pkg.go.dev/github.com/ccgo-build/ccgo/pkg/errors
// [buildinfo]: https://pkg.go.dev/github.com/ccgo-build/ccgo/pkg/buildinfo
package pkg
