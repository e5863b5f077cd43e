package cli

import (
	"github.com/spf13/cobra"

	"github.com/ccgo-build/ccgo/pkg/errors"
	"github.com/ccgo-build/ccgo/pkg/lockfile"
)

// updateCommand creates the update command.
func (c *CLI) updateCommand() *cobra.Command {
	var (
		flags        resolveFlags
		manifestFlag string
		dryRun       bool
	)

	cmd := &cobra.Command{
		Use:   "update [package]",
		Short: "Re-resolve dependencies past the lockfile",
		Long: `Update ignores the pinned lockfile and re-resolves the manifest,
picking up newly published versions. With a package argument only changes
affecting that package are reported. --dry-run prints what would change
without touching the lockfile.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := manifestPath(manifestFlag)
			if err != nil {
				return err
			}
			target := ""
			if len(args) == 1 {
				target = args[0]
			}

			old, err := lockfile.Load(lockPath(path))
			if err != nil && !errors.Is(err, errors.ErrCodeNotFound) {
				return err
			}

			r, err := c.newResolver(cmd.Context(), flags)
			if err != nil {
				return err
			}
			sp := newSpinnerWithContext(cmd.Context(), "Re-resolving dependencies...")
			sp.Start()
			plan, err := r.Resolve(cmd.Context(), path)
			sp.Stop()
			if err != nil {
				return err
			}

			fresh, err := lockfile.FromPlan(plan)
			if err != nil {
				return err
			}
			changes := diffLockfiles(old, fresh, target)
			for _, line := range changes {
				printDetail("%s", line)
			}
			if len(changes) == 0 {
				printInfo("Everything up to date")
			}

			if dryRun {
				printInfo("Dry run, lockfile unchanged")
				return nil
			}
			if err := lockfile.Write(lockPath(path), plan); err != nil {
				return err
			}
			printSuccess("Updated lockfile, %d packages", len(plan.Order))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&manifestFlag, "manifest", "", "path to CCGO.toml (default: ./CCGO.toml)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report changes without writing the lockfile")
	return cmd
}

// diffLockfiles reports version and source changes between lockfiles,
// optionally filtered to one package name.
func diffLockfiles(old, fresh *lockfile.Lockfile, target string) []string {
	var out []string
	for _, p := range fresh.Packages {
		if target != "" && p.Name != target {
			continue
		}
		if old == nil {
			out = append(out, "+ "+p.Name+" "+p.Version)
			continue
		}
		prev, ok := old.Get(p.Name)
		switch {
		case !ok:
			out = append(out, "+ "+p.Name+" "+p.Version)
		case prev.Version != p.Version:
			out = append(out, "~ "+p.Name+" "+prev.Version+" -> "+p.Version)
		case prev.Source != p.Source:
			out = append(out, "~ "+p.Name+" source changed")
		}
	}
	if old != nil {
		for _, p := range old.Packages {
			if target != "" && p.Name != target {
				continue
			}
			if _, ok := fresh.Get(p.Name); !ok {
				out = append(out, "- "+p.Name+" "+p.Version)
			}
		}
	}
	return out
}
