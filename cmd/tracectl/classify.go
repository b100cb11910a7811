package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/tracelens/internal/model"
	"github.com/ashita-ai/tracelens/internal/service/traceview"
)

// classification is the output of the classify command.
type classification struct {
	Name      string             `json:"name"`
	Category  traceview.Category `json:"category"`
	Operation string             `json:"operation"`
	Outcome   traceview.Outcome  `json:"outcome"`
	Icon      string             `json:"icon"`
}

func newClassifyCmd(_ *rootOptions) *cobra.Command {
	var (
		attrs  []string
		status string
		format string
	)

	cmd := &cobra.Command{
		Use:   "classify NAME",
		Short: "Show how a span name and attributes are classified",
		Example: `  tracectl classify llm.completion
  tracectl classify lookup --attr db.system=postgresql
  tracectl classify tts.synthesize --status ERROR`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFormat(format)
			if err != nil {
				return err
			}
			attributes, err := parseAttrs(attrs)
			if err != nil {
				return err
			}
			var st *model.SpanStatus
			if status != "" {
				st = &model.SpanStatus{Code: model.StatusName(strings.ToUpper(status))}
			}

			c := traceview.Classify(args[0], attributes)
			out := classification{
				Name:      args[0],
				Category:  c,
				Operation: traceview.OperationLabel(c),
				Outcome:   traceview.ResolveStatus(st),
				Icon:      traceview.Hints[c].Icon,
			}
			if f != formatTable {
				return outputNonTabular(cmd, f, out)
			}
			keyValue(cmd, "", [][2]any{
				{"Name", out.Name},
				{"Category", out.Category},
				{"Operation", out.Operation},
				{"Outcome", out.Outcome},
				{"Icon", out.Icon},
			})
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&attrs, "attr", "a", nil, "span attribute as key=value (repeatable)")
	cmd.Flags().StringVar(&status, "status", "", "status code: OK, ERROR, UNSET")
	addFormatFlag(cmd, &format)
	return cmd
}

// parseAttrs turns key=value pairs into attributes. Values that parse as
// booleans or numbers keep that type, matching what exporters send.
func parseAttrs(pairs []string) (model.Attributes, error) {
	attrs := make(model.Attributes, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("--attr %q: want key=value", p)
		}
		if b, err := strconv.ParseBool(v); err == nil {
			attrs[k] = b
		} else if n, err := strconv.ParseFloat(v, 64); err == nil {
			attrs[k] = n
		} else {
			attrs[k] = v
		}
	}
	return attrs, nil
}
