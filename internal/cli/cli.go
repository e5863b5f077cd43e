// Package cli implements the ccgo command-line interface.
//
// Commands cover the dependency workflow: install resolves the manifest
// and writes CCGO.lock, update re-resolves past the lockfile, add and
// remove edit the manifest, vendor copies resolved sources into the tree,
// graph exports the resolved dependency graph, and cache manages the
// on-disk fetch cache.
//
// All commands support --verbose (-v) for debug-level logging. Loggers are
// passed through context.Context so library code can log structured
// progress without global state.
package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ccgo-build/ccgo/pkg/buildinfo"
	"github.com/ccgo-build/ccgo/pkg/cache"
	"github.com/ccgo-build/ccgo/pkg/fetch"
	"github.com/ccgo-build/ccgo/pkg/gitx"
	"github.com/ccgo-build/ccgo/pkg/lockfile"
	"github.com/ccgo-build/ccgo/pkg/manifest"
	"github.com/ccgo-build/ccgo/pkg/registry"
	"github.com/ccgo-build/ccgo/pkg/resolver"
)

// appName is the application name used for directories and display.
const appName = "ccgo"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: log.NewWithOptions(w, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.00",
			Level:           level,
		}),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "ccgo",
		Short:        "ccgo resolves and locks C/C++ dependencies",
		Long:         `ccgo reads CCGO.toml manifests, resolves git, path, and registry dependencies into a conflict-checked build order, and pins the result in CCGO.lock for reproducible builds.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Make the logger reachable from library code.
			cmd.SetContext(log.WithContext(cmd.Context(), c.Logger))
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	root.AddCommand(c.installCommand())
	root.AddCommand(c.updateCommand())
	root.AddCommand(c.addCommand())
	root.AddCommand(c.removeCommand())
	root.AddCommand(c.vendorCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// resolveFlags are the resolution parameters shared by install, update,
// vendor, and graph.
type resolveFlags struct {
	strategy      string
	offline       bool
	prerelease    bool
	platform      string
	features      []string
	strictPatches bool
	workers       int
	pkg           string
}

func (f *resolveFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.strategy, "conflict-strategy", "first", "conflict strategy: first, highest, lowest, strict")
	cmd.Flags().BoolVar(&f.offline, "offline", false, "use only cached sources, no network access")
	cmd.Flags().BoolVar(&f.prerelease, "prerelease", false, "allow prerelease versions during selection")
	cmd.Flags().StringVar(&f.platform, "platform", "", "resolve [target] conditionals for this platform")
	cmd.Flags().StringSliceVar(&f.features, "features", nil, "enable optional dependencies by feature name")
	cmd.Flags().BoolVar(&f.strictPatches, "strict-patches", false, "treat patches matching no dependency as errors")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "parallel source fetches (0 = default)")
	cmd.Flags().StringVar(&f.pkg, "package", "", "resolve only this workspace member")
}

// newResolver wires a resolver over the shared cache and git binary.
func (c *CLI) newResolver(ctx context.Context, f resolveFlags) (*resolver.Resolver, error) {
	strategy, err := resolver.ParseStrategy(f.strategy)
	if err != nil {
		return nil, err
	}
	dir, err := cacheDir()
	if err != nil {
		return nil, err
	}
	store, err := newStore(ctx, dir)
	if err != nil {
		return nil, err
	}

	git := gitx.NewExecClient(dir, fetch.Default(), f.offline)
	reg := registry.New(git, store, nil)
	return resolver.New(git, reg, resolver.Options{
		Strategy:          strategy,
		IncludePrerelease: f.prerelease,
		Platform:          f.platform,
		Features:          f.features,
		StrictPatches:     f.strictPatches,
		Workers:           f.workers,
		Package:           f.pkg,
	}), nil
}

// newStore picks the byte cache backing registry lookups: Redis when
// CCGO_REDIS_URL is set (shared CI runners), the file cache otherwise.
func newStore(ctx context.Context, dir string) (cache.Cache, error) {
	if url := os.Getenv("CCGO_REDIS_URL"); url != "" {
		return cache.NewRedisCache(ctx, url)
	}
	store, err := cache.NewFileCache(filepath.Join(dir, "registry"))
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return store, nil
}

// cacheDir returns the cache directory, honoring CCGO_CACHE_DIR and the
// XDG standard (~/.cache/ccgo/).
func cacheDir() (string, error) {
	if dir := os.Getenv("CCGO_CACHE_DIR"); dir != "" {
		return dir, nil
	}
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// manifestPath locates CCGO.toml from the --manifest flag or the working
// directory.
func manifestPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, manifest.Filename), nil
}

// lockPath is the lockfile location next to a manifest.
func lockPath(manifestFile string) string {
	return filepath.Join(filepath.Dir(manifestFile), lockfile.Filename)
}
