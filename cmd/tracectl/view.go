package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/tracelens/internal/service/traceview"
)

func newViewCmd(root *rootOptions) *cobra.Command {
	var groupBy, format string

	cmd := &cobra.Command{
		Use:   "view [FILE]",
		Short: "Traces, groups, metrics and anomalies of a span collection",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dim, err := traceview.ParseDimension(groupBy)
			if err != nil {
				return err
			}
			f, err := parseFormat(format)
			if err != nil {
				return err
			}
			spans, err := root.loadSpans(cmd.Context(), args)
			if err != nil {
				return err
			}

			v := traceview.BuildView(spans, dim)
			if f != formatTable {
				return outputNonTabular(cmd, f, v)
			}
			renderView(cmd, v)
			return nil
		},
	}
	cmd.Flags().StringVarP(&groupBy, "group-by", "g", string(traceview.DimensionNone), "group spans by: service, operation, none")
	addFormatFlag(cmd, &format)
	return cmd
}

var traceColumns = []column[traceview.Trace]{
	leftColumn("TRACE", func(t traceview.Trace) any { return t.TraceID }),
	rightColumn("SPANS", func(t traceview.Trace) any { return t.Metrics.TotalSpans }),
	rightColumn("ERRORS", func(t traceview.Trace) any { return t.Metrics.ErrorCount }),
	rightColumn("WALL CLOCK", func(t traceview.Trace) any { return t.Window.WallClock }),
	leftColumn("OPERATIONS", func(t traceview.Trace) any { return t.Summary }),
}

var groupColumns = []column[traceview.Group]{
	leftColumn("GROUP", func(g traceview.Group) any { return g.Key }),
	rightColumn("SPANS", func(g traceview.Group) any { return len(g.Spans) }),
	rightColumn("ERRORS", func(g traceview.Group) any { return traceview.Aggregate(g.Spans).ErrorCount }),
	rightColumn("TOTAL", func(g traceview.Group) any { return traceview.Aggregate(g.Spans).TotalDuration }),
}

var warningColumns = []column[traceview.Warning]{
	leftColumn("KIND", func(w traceview.Warning) any { return w.Kind }),
	leftColumn("TRACE", func(w traceview.Warning) any { return w.TraceID }),
	leftColumn("SPAN", func(w traceview.Warning) any { return w.SpanID }),
	leftColumn("MESSAGE", func(w traceview.Warning) any { return w.Message }),
}

func renderView(cmd *cobra.Command, v traceview.View) {
	renderTable(cmd, "Traces", traceColumns, v.Traces)
	if v.Dimension != traceview.DimensionNone {
		cmd.Println()
		renderTable(cmd, fmt.Sprintf("Groups by %s", v.Dimension), groupColumns, v.Groups)
	}
	cmd.Println()
	renderMetrics(cmd, v.Metrics, v.Window)
	if len(v.Warnings) > 0 {
		cmd.Println()
		renderTable(cmd, "Warnings", warningColumns, v.Warnings)
	}
}
