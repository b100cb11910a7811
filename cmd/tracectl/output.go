package main

import (
	"encoding/json"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type outputFormat string

const (
	formatTable outputFormat = "table"
	formatJSON  outputFormat = "json"
	formatYAML  outputFormat = "yaml"
)

func parseFormat(s string) (outputFormat, error) {
	switch f := outputFormat(s); f {
	case formatTable, formatJSON, formatYAML:
		return f, nil
	}
	return "", fmt.Errorf("invalid format %q (want table, json or yaml)", s)
}

func addFormatFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "format", "o", string(formatTable), "output format: table, json, yaml")
}

// outputNonTabular writes v as JSON or YAML. YAML goes through JSON first
// so both formats share the json field names.
func outputNonTabular(cmd *cobra.Command, format outputFormat, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return err
		}
		b, err := yaml.Marshal(doc)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(b)
		return err
	}
	return fmt.Errorf("invalid format %q", format)
}

// column is one table column and how to render it for T.
type column[T any] struct {
	table.ColumnConfig
	Value func(T) any
}

func renderTable[T any](cmd *cobra.Command, title string, columns []column[T], items []T) {
	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	tw.SetStyle(table.StyleLight)
	if title != "" {
		tw.SetTitle(title)
	}

	configs := make([]table.ColumnConfig, len(columns))
	header := make(table.Row, len(columns))
	for i, c := range columns {
		cfg := c.ColumnConfig
		cfg.Number = i + 1
		configs[i] = cfg
		header[i] = c.Name
	}
	tw.SetColumnConfigs(configs)
	tw.AppendHeader(header)

	for _, item := range items {
		row := make(table.Row, len(columns))
		for i, c := range columns {
			row[i] = c.Value(item)
		}
		tw.AppendRow(row)
	}
	tw.Render()
}

// keyValue is a two-column table without header.
func keyValue(cmd *cobra.Command, title string, pairs [][2]any) {
	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	tw.SetStyle(table.StyleLight)
	if title != "" {
		tw.SetTitle(title)
	}
	for _, p := range pairs {
		tw.AppendRow(table.Row{p[0], p[1]})
	}
	tw.Render()
}

var rightAligned = table.ColumnConfig{Align: text.AlignRight, AlignHeader: text.AlignRight}

func rightColumn[T any](name string, value func(T) any) column[T] {
	cfg := rightAligned
	cfg.Name = name
	return column[T]{ColumnConfig: cfg, Value: value}
}

func leftColumn[T any](name string, value func(T) any) column[T] {
	return column[T]{ColumnConfig: table.ColumnConfig{Name: name}, Value: value}
}
