package cli

import (
	"github.com/spf13/cobra"

	"github.com/ccgo-build/ccgo/pkg/lockfile"
	"github.com/ccgo-build/ccgo/pkg/manifest"
)

// installCommand creates the install command.
func (c *CLI) installCommand() *cobra.Command {
	var (
		flags        resolveFlags
		manifestFlag string
		locked       bool
		workspace    bool
	)

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Resolve dependencies and write the lockfile",
		Long: `Install resolves the manifest's dependency graph, detects cycles,
collapses version conflicts, and writes the pinned result to CCGO.lock.

With --locked the existing lockfile is verified against the manifest and
no re-resolution happens; any discrepancy is a hard error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := manifestPath(manifestFlag)
			if err != nil {
				return err
			}
			if locked {
				return c.runLocked(cmd, path, flags)
			}

			r, err := c.newResolver(cmd.Context(), flags)
			if err != nil {
				return err
			}

			sp := newSpinnerWithContext(cmd.Context(), "Resolving dependencies...")
			sp.Start()
			plan, err := r.Resolve(cmd.Context(), path)
			sp.Stop()
			if err != nil {
				return err
			}

			lock := lockPath(path)
			if err := lockfile.Write(lock, plan); err != nil {
				return err
			}

			printSuccess("Resolved %d packages (%s strategy)", len(plan.Order), plan.Strategy)
			printStats(plan.Graph.NodeCount(), plan.Graph.EdgeCount())
			printFile(lock)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&manifestFlag, "manifest", "", "path to CCGO.toml (default: ./CCGO.toml)")
	cmd.Flags().BoolVar(&locked, "locked", false, "verify the lockfile instead of re-resolving")
	cmd.Flags().BoolVar(&workspace, "workspace", false, "resolve every workspace member (the default when a [workspace] table is present)")
	cmd.MarkFlagsMutuallyExclusive("workspace", "package")
	return cmd
}

// runLocked verifies CCGO.lock against the manifest, workspace members
// included, without resolving.
func (c *CLI) runLocked(cmd *cobra.Command, path string, flags resolveFlags) error {
	m, err := manifest.Load(path)
	if err != nil {
		return err
	}
	if err := m.ApplyWorkspace(m.Workspace); err != nil {
		return err
	}
	members, err := m.MemberManifests()
	if err != nil {
		return err
	}
	lf, err := lockfile.Load(lockPath(path))
	if err != nil {
		return err
	}

	opts := lockfile.VerifyOptions{Platform: flags.platform, Features: flags.features}
	discrepancies := lockfile.Verify(lf, m, opts)
	for _, member := range members {
		discrepancies = append(discrepancies, lockfile.Verify(lf, member, opts)...)
	}
	if err := lockfile.MismatchError(discrepancies); err != nil {
		return err
	}

	printSuccess("Lockfile matches the manifest (%d packages)", len(lf.Packages))
	return nil
}
