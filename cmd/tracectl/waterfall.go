package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/tracelens/internal/service/traceview"
)

// barWidth is the number of cells of the timeline column.
const barWidth = 40

func newWaterfallCmd(root *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "waterfall [FILE]",
		Short: "Timeline rows per trace",
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
			wfs, warnings := traceview.Waterfalls(spans)
			if f != formatTable {
				return outputNonTabular(cmd, f, map[string]any{"waterfalls": wfs, "warnings": warnings})
			}
			for i, wf := range wfs {
				if i > 0 {
					cmd.Println()
				}
				title := fmt.Sprintf("%s  %s  wall clock %s", wf.TraceID, wf.Summary, wf.Window.WallClock)
				renderTable(cmd, title, rowColumns, wf.Rows)
			}
			for _, w := range warnings {
				cmd.PrintErrf("warning: %s: %s\n", w.Kind, w.Message)
			}
			return nil
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

var rowColumns = []column[traceview.Row]{
	leftColumn("SPAN", func(r traceview.Row) any { return strings.Repeat("  ", r.Depth) + r.Name }),
	leftColumn("SERVICE", func(r traceview.Row) any { return r.Service }),
	leftColumn("CATEGORY", func(r traceview.Row) any { return r.Category }),
	leftColumn("OUTCOME", func(r traceview.Row) any { return r.Outcome }),
	rightColumn("OFFSET", func(r traceview.Row) any {
		switch {
		case !r.HasTiming:
			return traceview.NotAvailable
		case r.OffsetMs <= 0:
			return "0ms"
		}
		return traceview.FormatDuration(r.OffsetMs)
	}),
	rightColumn("DURATION", func(r traceview.Row) any { return r.Duration }),
	leftColumn("TIMELINE", func(r traceview.Row) any { return bar(r) }),
}

// bar draws a row on a fixed-width timeline. Rows without timing are blank.
func bar(r traceview.Row) string {
	if !r.HasTiming {
		return strings.Repeat(" ", barWidth)
	}
	start := int(math.Round(r.StartPct / 100 * barWidth))
	width := int(math.Round(r.WidthPct / 100 * barWidth))
	start = min(max(start, 0), barWidth-1)
	width = min(max(width, 1), barWidth-start)
	return strings.Repeat(" ", start) + strings.Repeat("█", width) + strings.Repeat(" ", barWidth-start-width)
}
