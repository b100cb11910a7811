package main

import (
	"github.com/spf13/cobra"

	"github.com/ashita-ai/tracelens/internal/service/traceview"
)

// metricsOutput is the non-tabular shape of the metrics command.
type metricsOutput struct {
	Metrics traceview.Metrics `json:"metrics"`
	Window  traceview.Window  `json:"window"`
	Summary string            `json:"summary"`
}

func newMetricsCmd(root *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "metrics [FILE]",
		Short: "Span counts per category, errors and durations",
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
			m := traceview.Aggregate(spans)
			w := traceview.TimeWindow(spans)
			if f != formatTable {
				return outputNonTabular(cmd, f, metricsOutput{Metrics: m, Window: w, Summary: m.Summary()})
			}
			renderMetrics(cmd, m, w)
			return nil
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

func renderMetrics(cmd *cobra.Command, m traceview.Metrics, w traceview.Window) {
	pairs := [][2]any{
		{"Spans", m.TotalSpans},
		{"Errors", m.ErrorCount},
		{"Total duration", m.TotalDuration},
		{"Wall clock", w.WallClock},
		{"Started", w.Start},
	}
	for _, c := range traceview.Categories {
		pairs = append(pairs, [2]any{string(c), m.Count(c)})
	}
	pairs = append(pairs, [2]any{"Summary", m.Summary()})
	keyValue(cmd, "Metrics", pairs)
}
