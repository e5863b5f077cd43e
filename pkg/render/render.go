// Package render exports resolved dependency graphs as Graphviz DOT and
// rasterized images for the graph command.
package render

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/ccgo-build/ccgo/pkg/resolver"
	"github.com/ccgo-build/ccgo/pkg/source"
)

// Options configures DOT export.
type Options struct {
	// Detailed includes source and checksum lines in node labels.
	// When false, only name and version are shown.
	Detailed bool
}

// ToDOT converts a resolved plan to Graphviz DOT. Nodes appear in
// topological order so repeated exports of the same plan are identical.
// Patched packages are rendered with dashed outlines, workspace roots with
// a bold border.
func ToDOT(plan *resolver.Plan, opts Options) string {
	roots := make(map[string]bool, len(plan.Roots))
	for _, name := range plan.Roots {
		roots[name] = true
	}

	var buf bytes.Buffer
	buf.WriteString("digraph dependencies {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("\n")

	for _, name := range plan.Order {
		node, ok := plan.Graph.Node(name)
		if !ok {
			continue
		}
		attrs := []string{fmt.Sprintf("label=%q", label(plan, name, opts.Detailed))}
		if _, patched := plan.Patched[name]; patched {
			attrs = append(attrs, "style=\"rounded,filled,dashed\"", "fillcolor=lightyellow")
		}
		if roots[name] {
			attrs = append(attrs, "penwidth=2")
		}
		if node.Source.Kind == source.KindPath && !roots[name] {
			attrs = append(attrs, "fillcolor=lightgrey")
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", name, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, name := range plan.Order {
		for _, dep := range plan.Graph.Dependencies(name) {
			fmt.Fprintf(&buf, "  %q -> %q;\n", name, dep)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func label(plan *resolver.Plan, name string, detailed bool) string {
	node, _ := plan.Graph.Node(name)
	lines := []string{fmt.Sprintf("%s %s", name, node.Version)}
	if !detailed {
		return lines[0]
	}
	lines = append(lines, node.Source.String())
	if rev := plan.Revisions[name]; rev != "" {
		lines = append(lines, "rev "+short(rev))
	}
	if node.Checksum != "" {
		lines = append(lines, short(strings.TrimPrefix(node.Checksum, "sha256:")))
	}
	return strings.Join(lines, "\n")
}

func short(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

// RenderSVG renders DOT to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	return renderFormat(ctx, dot, graphviz.SVG)
}

// RenderPNG renders DOT to PNG using Graphviz.
func RenderPNG(ctx context.Context, dot string) ([]byte, error) {
	return renderFormat(ctx, dot, graphviz.PNG)
}

func renderFormat(ctx context.Context, dot string, format graphviz.Format) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, format, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
