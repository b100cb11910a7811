package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ashita-ai/tracelens/internal/service/traceview"
)

const turnFile = "testdata/turn.json"

// execute runs tracectl with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestView_JSON(t *testing.T) {
	out, _, err := execute(t, "view", turnFile, "--group-by", "service", "--format", "json")
	require.NoError(t, err)

	var v struct {
		GroupBy string `json:"group_by"`
		Traces  []struct {
			TraceID string `json:"trace_id"`
			Summary string `json:"summary"`
		} `json:"traces"`
		Groups []struct {
			Key   string            `json:"key"`
			Spans []json.RawMessage `json:"spans"`
		} `json:"groups"`
		Warnings []json.RawMessage `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "service", v.GroupBy)
	require.Len(t, v.Traces, 1)
	assert.Equal(t, "1 LLM • 1 TTS • 1 STT • 1 Database • 1 Other", v.Traces[0].Summary)
	require.Len(t, v.Groups, 2)
	assert.Equal(t, "voice-gateway", v.Groups[0].Key)
	assert.Len(t, v.Groups[0].Spans, 3)
	assert.Equal(t, "agent-core", v.Groups[1].Key)
	assert.Empty(t, v.Warnings)
}

func TestView_Table(t *testing.T) {
	out, _, err := execute(t, "view", turnFile, "-g", "operation")
	require.NoError(t, err)
	assert.Contains(t, out, "Groups by operation")
	assert.Contains(t, out, "Text-to-Speech")
	assert.Contains(t, out, "4bf92f3577b34da6a3ce929d0e0e4736")
	assert.Contains(t, out, "2.37s")
	assert.NotContains(t, out, "Warnings")
}

func TestTree(t *testing.T) {
	out, stderr, err := execute(t, "tree", turnFile)
	require.NoError(t, err)
	assert.Contains(t, out, "agent.turn [Other] 1.20s")
	assert.Contains(t, out, "SELECT customers [Database] 12.0ms")
	assert.Contains(t, out, "tts.synthesize [TTS] 380.0ms ERROR: upstream 503")
	assert.Empty(t, stderr)

	// Children are rendered below their parent.
	assert.Less(t, strings.Index(out, "llm.completion"), strings.Index(out, "SELECT customers"))
}

func TestMetrics_YAML(t *testing.T) {
	out, _, err := execute(t, "metrics", turnFile, "--format", "yaml")
	require.NoError(t, err)

	var m struct {
		Metrics struct {
			TotalSpans    int    `yaml:"total_spans"`
			ErrorCount    int    `yaml:"error_count"`
			TotalDuration string `yaml:"total_duration"`
		} `yaml:"metrics"`
		Window struct {
			WallClock string `yaml:"wall_clock"`
		} `yaml:"window"`
		Summary string `yaml:"summary"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &m))
	assert.Equal(t, 5, m.Metrics.TotalSpans)
	assert.Equal(t, 1, m.Metrics.ErrorCount)
	assert.Equal(t, "2.37s", m.Metrics.TotalDuration)
	assert.Equal(t, "1.20s", m.Window.WallClock)
	assert.Equal(t, "1 LLM • 1 TTS • 1 STT • 1 Database • 1 Other", m.Summary)
}

func TestWaterfall_Table(t *testing.T) {
	out, _, err := execute(t, "waterfall", turnFile)
	require.NoError(t, err)
	assert.Contains(t, out, "wall clock")
	assert.Contains(t, out, "1.20s")
	assert.Contains(t, out, "200.0ms", "llm offset")
	assert.Contains(t, out, "█")

	lines := strings.Split(out, "\n")
	var order []string
	for _, l := range lines {
		for _, name := range []string{"agent.turn", "stt.transcribe", "llm.completion", "SELECT customers", "tts.synthesize"} {
			if strings.Contains(l, name) {
				order = append(order, name)
			}
		}
	}
	assert.Equal(t, []string{"agent.turn", "stt.transcribe", "llm.completion", "SELECT customers", "tts.synthesize"}, order)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		wantCategory string
		wantOutcome  string
	}{
		{"name", []string{"llm.completion"}, "LLM", "Success"},
		{"attribute", []string{"lookup", "--attr", "db.system=postgresql"}, "Database", "Success"},
		{"error status", []string{"tts.synthesize", "--status", "error"}, "TTS", "Error"},
		{"other", []string{"agent.turn"}, "Other", "Success"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, append(append([]string{"classify"}, tt.args...), "-o", "json")...)
			require.NoError(t, err)
			var c classification
			require.NoError(t, json.Unmarshal([]byte(out), &c))
			assert.EqualValues(t, tt.wantCategory, c.Category)
			assert.EqualValues(t, tt.wantOutcome, c.Outcome)
		})
	}
}

func TestImportAndReadSQLite(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sessions.db")

	out, _, err := execute(t, "import", turnFile, "--sqlite", db)
	require.NoError(t, err)
	assert.Equal(t, "imported 1 sessions (5 spans)\n", out)

	out, _, err = execute(t, "metrics", "--sqlite", db, "--session", "sess-001", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"summary": "1 LLM • 1 TTS • 1 STT • 1 Database • 1 Other"`)

	_, _, err = execute(t, "metrics", "--sqlite", db, "--session", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no input", []string{"view"}, "a span file, --sqlite or --database-url is required"},
		{"database without session", []string{"tree", "--sqlite", "x.db"}, "--session is required"},
		{"bad group-by", []string{"view", turnFile, "--group-by", "colour"}, "colour"},
		{"bad format", []string{"metrics", turnFile, "--format", "xml"}, `invalid format "xml"`},
		{"missing file", []string{"tree", "testdata/missing.json"}, "missing.json"},
		{"unknown session in file", []string{"tree", turnFile, "--session", "nope"}, "not found"},
		{"import without target", []string{"import", turnFile}, "--sqlite or --database-url"},
		{"bad attr", []string{"classify", "x", "--attr", "novalue"}, "want key=value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBar(t *testing.T) {
	tests := []struct {
		name      string
		startPct  float64
		widthPct  float64
		hasTiming bool
		wantLead  int
		wantFill  int
	}{
		{"full width", 0, 100, true, 0, barWidth},
		{"second half", 50, 50, true, barWidth / 2, barWidth / 2},
		{"tiny span stays visible", 99, 0.5, true, barWidth - 1, 1},
		{"no timing", 0, 0, false, barWidth, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := []rune(bar(rowWith(tt.startPct, tt.widthPct, tt.hasTiming)))
			assert.Len(t, got, barWidth)
			lead := 0
			for lead < len(got) && got[lead] == ' ' {
				lead++
			}
			assert.Equal(t, tt.wantLead, lead)
			assert.Equal(t, tt.wantFill, strings.Count(string(got), "█"))
		})
	}
}

func TestParseAttrs(t *testing.T) {
	attrs, err := parseAttrs([]string{"db.system=postgresql", "llm.request.type=true", "http.status_code=503", "note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, "postgresql", attrs["db.system"])
	assert.Equal(t, true, attrs["llm.request.type"])
	assert.Equal(t, 503.0, attrs["http.status_code"])
	assert.Equal(t, "a=b", attrs["note"])

	_, err = parseAttrs([]string{"=x"})
	assert.Error(t, err)
}

func rowWith(startPct, widthPct float64, hasTiming bool) traceview.Row {
	return traceview.Row{StartPct: startPct, WidthPct: widthPct, HasTiming: hasTiming}
}
