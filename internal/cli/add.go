package cli

import (
	"github.com/spf13/cobra"

	"github.com/ccgo-build/ccgo/pkg/errors"
	"github.com/ccgo-build/ccgo/pkg/fetch"
	"github.com/ccgo-build/ccgo/pkg/gitx"
	"github.com/ccgo-build/ccgo/pkg/manifest"
)

// addCommand creates the add command.
func (c *CLI) addCommand() *cobra.Command {
	var (
		manifestFlag string
		gitURL       string
		pathDep      string
		tag          string
		branch       string
		rev          string
		latest       bool
		prerelease   bool
	)

	cmd := &cobra.Command{
		Use:   "add <name> [version-or-shorthand]",
		Short: "Add a dependency to the manifest",
		Long: `Add writes a dependency entry to CCGO.toml. The second argument is a
constraint ("^1.2") or shorthand ("github:user/repo@v1.0.0"); --git,
--path, and the ref flags write a table entry instead. --latest queries
the repository's tags and pins the highest release.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := manifestPath(manifestFlag)
			if err != nil {
				return err
			}
			name := args[0]

			switch {
			case gitURL != "":
				if latest {
					dir, err := cacheDir()
					if err != nil {
						return err
					}
					git := gitx.NewExecClient(dir, fetch.Default(), false)
					pinned, _, err := gitx.LatestTag(cmd.Context(), git, gitURL, prerelease)
					if err != nil {
						return err
					}
					tag = pinned
					printInfo("Pinned %s to latest tag %s", name, tag)
				}
				table := map[string]any{"git": gitURL}
				for key, val := range map[string]string{"tag": tag, "branch": branch, "rev": rev} {
					if val != "" {
						table[key] = val
					}
				}
				if err := manifest.AddDependencyTable(path, name, table); err != nil {
					return err
				}

			case pathDep != "":
				if err := manifest.AddDependencyTable(path, name, map[string]any{"path": pathDep}); err != nil {
					return err
				}

			case len(args) == 2:
				if err := manifest.AddDependency(path, name, args[1]); err != nil {
					return err
				}

			default:
				return errors.New(errors.ErrCodeInvalidManifest,
					"add needs a constraint argument, --git, or --path")
			}

			printSuccess("Added %s", name)
			printNextStep("Resolve and lock it", "ccgo install")
			return nil
		},
	}

	cmd.Flags().StringVar(&manifestFlag, "manifest", "", "path to CCGO.toml (default: ./CCGO.toml)")
	cmd.Flags().StringVar(&gitURL, "git", "", "git repository URL")
	cmd.Flags().StringVar(&pathDep, "path", "", "local path dependency")
	cmd.Flags().StringVar(&tag, "tag", "", "git tag ref selector")
	cmd.Flags().StringVar(&branch, "branch", "", "git branch ref selector")
	cmd.Flags().StringVar(&rev, "rev", "", "git revision ref selector")
	cmd.Flags().BoolVar(&latest, "latest", false, "pin the highest release tag (requires --git)")
	cmd.Flags().BoolVar(&prerelease, "prerelease", false, "allow prerelease tags with --latest")
	return cmd
}

// removeCommand creates the remove command.
func (c *CLI) removeCommand() *cobra.Command {
	var manifestFlag string

	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a dependency from the manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := manifestPath(manifestFlag)
			if err != nil {
				return err
			}
			if err := manifest.RemoveDependency(path, args[0]); err != nil {
				return err
			}
			printSuccess("Removed %s", args[0])
			printNextStep("Refresh the lockfile", "ccgo install")
			return nil
		},
	}

	cmd.Flags().StringVar(&manifestFlag, "manifest", "", "path to CCGO.toml (default: ./CCGO.toml)")
	return cmd
}
