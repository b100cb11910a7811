// Package spanfile reads span dumps from disk. A dump is JSON or YAML and
// holds one of three shapes:
//
//	[ {span}, {span}, ... ]                      one session, bare spans
//	{ "session_id": ..., "spans": [...] }        one SessionTrace
//	{ "sessions": [ {SessionTrace}, ... ] }      several sessions
//
// YAML documents are converted to JSON before decoding so both formats share
// the tolerant span decoding in the model package.
package spanfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ashita-ai/tracelens/internal/model"
)

// Format is the encoding of a span dump.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks a format from a file extension. Anything that is not
// .yaml or .yml is read as JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads and decodes the dump at path. Sessions without an id are named
// after the file.
func Load(path string) ([]model.SessionTrace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("spanfile: read %q: %w", path, err)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	sessions, err := Decode(data, FormatFor(path), base)
	if err != nil {
		return nil, fmt.Errorf("spanfile: %q: %w", path, err)
	}
	return sessions, nil
}

// Decode parses a dump. defaultID names a session that carries no
// session_id; with several such sessions a 1-based suffix is appended.
func Decode(data []byte, format Format, defaultID string) ([]model.SessionTrace, error) {
	if format == FormatYAML {
		converted, err := yamlToJSON(data)
		if err != nil {
			return nil, err
		}
		data = converted
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty document")
	}

	switch trimmed[0] {
	case '[':
		var spans []model.Span
		if err := json.Unmarshal(trimmed, &spans); err != nil {
			return nil, fmt.Errorf("decode span array: %w", err)
		}
		return []model.SessionTrace{finish(model.SessionTrace{Spans: spans}, defaultID)}, nil

	case '{':
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		if raw, ok := probe["sessions"]; ok {
			var sessions []model.SessionTrace
			if err := json.Unmarshal(raw, &sessions); err != nil {
				return nil, fmt.Errorf("decode sessions: %w", err)
			}
			for i := range sessions {
				id := defaultID
				if len(sessions) > 1 {
					id = fmt.Sprintf("%s-%d", defaultID, i+1)
				}
				sessions[i] = finish(sessions[i], id)
			}
			return sessions, nil
		}
		var st model.SessionTrace
		if err := json.Unmarshal(trimmed, &st); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
		return []model.SessionTrace{finish(st, defaultID)}, nil

	default:
		return nil, fmt.Errorf("expected a span array or an object, got %q", trimmed[0])
	}
}

// finish fills the bookkeeping fields a dump may leave out.
func finish(st model.SessionTrace, defaultID string) model.SessionTrace {
	if st.SessionID == "" {
		st.SessionID = defaultID
	}
	if st.TraceID == "" {
		for _, s := range st.Spans {
			if s.TraceID != "" {
				st.TraceID = s.TraceID
				break
			}
		}
	}
	st.TotalSpans = len(st.Spans)
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = st.CreatedAt
	}
	return st
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	out, err := json.Marshal(jsonCompatible(doc))
	if err != nil {
		return nil, fmt.Errorf("convert yaml: %w", err)
	}
	return out, nil
}

// jsonCompatible rewrites maps with non-string keys, which yaml.v3 produces
// for documents like {1: a}, into map[string]any.
func jsonCompatible(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = jsonCompatible(val)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = jsonCompatible(val)
		}
		return m
	case []any:
		for i, val := range t {
			t[i] = jsonCompatible(val)
		}
		return t
	default:
		return v
	}
}
