package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/list"
	"github.com/spf13/cobra"

	"github.com/ashita-ai/tracelens/internal/service/traceview"
)

func newTreeCmd(root *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "tree [FILE]",
		Short: "Span forest per trace with category, outcome and duration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFormat(format)
			if err != nil {
				return err
			}
			spans, err := root.loadSpans(cmd.Context(), args)
			if err != nil {
				return err
			}
			a := traceview.Assemble(spans)
			if f != formatTable {
				return outputNonTabular(cmd, f, a)
			}
			renderTree(cmd, a)
			return nil
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

func renderTree(cmd *cobra.Command, a traceview.Assembly) {
	lw := list.NewWriter()
	lw.SetOutputMirror(cmd.OutOrStdout())
	lw.SetStyle(list.StyleConnectedRounded)

	for _, f := range a.Traces {
		m := traceview.Aggregate(f.Spans)
		lw.AppendItem(fmt.Sprintf("trace %s (%s)", f.TraceID, m.Summary()))
		lw.Indent()
		for _, n := range f.Roots {
			appendNode(lw, n)
		}
		lw.UnIndent()
	}
	lw.Render()

	for _, w := range a.Warnings {
		cmd.PrintErrf("warning: %s: %s\n", w.Kind, w.Message)
	}
}

// appendNode writes n and its subtree. Depth is bounded by the assembler,
// which breaks cycles before nodes are linked.
func appendNode(lw list.Writer, n *traceview.Node) {
	lw.AppendItem(nodeLabel(n))
	if len(n.Children) == 0 {
		return
	}
	lw.Indent()
	for _, c := range n.Children {
		appendNode(lw, c)
	}
	lw.UnIndent()
}

func nodeLabel(n *traceview.Node) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s", n.Span.Name, n.Category, n.Duration)
	if n.Outcome != traceview.OutcomeSuccess {
		fmt.Fprintf(&b, " %s", strings.ToUpper(string(n.Outcome)))
		if n.Span.Status != nil && n.Span.Status.Message != "" {
			fmt.Fprintf(&b, ": %s", n.Span.Status.Message)
		}
	}
	if len(n.Anomalies) > 0 {
		kinds := make([]string, len(n.Anomalies))
		for i, k := range n.Anomalies {
			kinds[i] = string(k)
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(kinds, ", "))
	}
	return b.String()
}
