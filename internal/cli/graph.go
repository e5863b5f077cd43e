package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ccgo-build/ccgo/pkg/errors"
	"github.com/ccgo-build/ccgo/pkg/render"
)

// graphCommand creates the graph export command.
func (c *CLI) graphCommand() *cobra.Command {
	var (
		flags        resolveFlags
		manifestFlag string
		output       string
		detailed     bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Export the resolved dependency graph",
		Long: `Graph resolves the manifest and exports the dependency graph. The
output format follows the file extension: .dot, .svg, or .png. Without
--output the DOT text is printed to stdout.`,
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

			dot := render.ToDOT(plan, render.Options{Detailed: detailed})
			if output == "" {
				cmd.Println(dot)
				return nil
			}

			var data []byte
			switch strings.ToLower(filepath.Ext(output)) {
			case ".dot":
				data = []byte(dot)
			case ".svg":
				data, err = render.RenderSVG(cmd.Context(), dot)
			case ".png":
				data, err = render.RenderPNG(cmd.Context(), dot)
			default:
				return errors.New(errors.ErrCodeInvalidManifest,
					"unsupported output extension %q (want .dot, .svg, or .png)", filepath.Ext(output))
			}
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}

			printSuccess("Exported %d packages", plan.Graph.NodeCount())
			printFile(output)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&manifestFlag, "manifest", "", "path to CCGO.toml (default: ./CCGO.toml)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (.dot, .svg, .png)")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "include sources and checksums in node labels")
	return cmd
}
