package cli

import (
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ccgo-build/ccgo/pkg/fetch"
	"github.com/ccgo-build/ccgo/pkg/gitx"
	"github.com/ccgo-build/ccgo/pkg/source"
)

// vendorCommand creates the vendor command.
func (c *CLI) vendorCommand() *cobra.Command {
	var (
		flags        resolveFlags
		manifestFlag string
		noDelete     bool
	)

	cmd := &cobra.Command{
		Use:   "vendor",
		Short: "Copy resolved dependency sources into vendor/",
		Long: `Vendor resolves the manifest and copies every git dependency's tree
into vendor/<name> next to the manifest. Stale vendor directories are
removed unless --no-delete is set. Path dependencies stay in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := manifestPath(manifestFlag)
			if err != nil {
				return err
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

			dir, err := cacheDir()
			if err != nil {
				return err
			}
			git := gitx.NewExecClient(dir, fetch.Default(), flags.offline)
			vendorDir := filepath.Join(filepath.Dir(path), "vendor")

			vendored := make(map[string]bool)
			for _, name := range plan.Order {
				node, _ := plan.Graph.Node(name)
				if node.Source.Kind != source.KindGit {
					continue
				}
				tree, _, err := git.Fetch(cmd.Context(), node.Source.URL, gitx.RefOf(node.Source))
				if err != nil {
					return err
				}
				dest := filepath.Join(vendorDir, name)
				if err := copyTree(tree, dest); err != nil {
					return err
				}
				vendored[name] = true
				printDetail("%s %s", name, node.Version)
			}

			if !noDelete {
				if err := pruneVendor(vendorDir, vendored); err != nil {
					return err
				}
			}

			printSuccess("Vendored %d packages", len(vendored))
			printFile(vendorDir)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&manifestFlag, "manifest", "", "path to CCGO.toml (default: ./CCGO.toml)")
	cmd.Flags().BoolVar(&noDelete, "no-delete", false, "keep vendor directories no longer in the graph")
	return cmd
}

// copyTree replaces dest with a copy of src, staging into a temp sibling
// and renaming so readers never see a half-copied tree.
func copyTree(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp, err := os.MkdirTemp(filepath.Dir(dest), ".vendor-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	err = filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if base := filepath.Base(rel); base == ".git" {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		target := filepath.Join(tmp, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		return copyFile(path, target, info.Mode())
	})
	if err != nil {
		return err
	}

	if err := os.RemoveAll(dest); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}

func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// pruneVendor removes vendor subdirectories not in the resolved graph.
func pruneVendor(vendorDir string, keep map[string]bool) error {
	entries, err := os.ReadDir(vendorDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() && !keep[e.Name()] {
			if err := os.RemoveAll(filepath.Join(vendorDir, e.Name())); err != nil {
				return err
			}
			printDetail("removed stale %s", e.Name())
		}
	}
	return nil
}
