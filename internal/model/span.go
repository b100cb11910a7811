// Package model defines the span data model served by tracelens.
//
// Spans arrive from external stores and exporters whose shapes are not
// validated upstream. Decoding is therefore tolerant: a span field with an
// unexpected shape decodes as absent, and unexpected status shapes are
// retained as malformed. One bad field never fails the whole payload.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// SpanKind represents the OTEL span kind.
type SpanKind string

const (
	SpanKindUnspecified SpanKind = ""
	SpanKindInternal    SpanKind = "INTERNAL"
	SpanKindServer      SpanKind = "SERVER"
	SpanKindClient      SpanKind = "CLIENT"
	SpanKindProducer    SpanKind = "PRODUCER"
	SpanKindConsumer    SpanKind = "CONSUMER"
)

// otlpKinds maps the numeric OTLP enum to span kinds.
var otlpKinds = map[int]SpanKind{
	1: SpanKindInternal,
	2: SpanKindServer,
	3: SpanKindClient,
	4: SpanKindProducer,
	5: SpanKindConsumer,
}

// ParseSpanKind normalizes "server", "SERVER" and "SPAN_KIND_SERVER" to
// SpanKindServer. Unrecognized input yields SpanKindUnspecified.
func ParseSpanKind(s string) SpanKind {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "SPAN_KIND_")
	switch k := SpanKind(s); k {
	case SpanKindInternal, SpanKindServer, SpanKindClient, SpanKindProducer, SpanKindConsumer:
		return k
	}
	return SpanKindUnspecified
}

// UnmarshalJSON accepts kind names in any case, the SPAN_KIND_ prefix, and
// the numeric OTLP enum. Anything else decodes as unspecified.
func (k *SpanKind) UnmarshalJSON(b []byte) error {
	*k = SpanKindUnspecified
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	switch t := v.(type) {
	case string:
		*k = ParseSpanKind(t)
	case float64:
		*k = otlpKinds[int(t)]
	}
	return nil
}

// Number is a numeric span field whose unit is decided by the field it was
// read from. Numbers and numeric strings decode as valid; every other JSON
// value (null, bool, object, unparseable string, NaN/Inf) decodes as absent.
type Number struct {
	Value float64
	Valid bool
}

// Num returns a valid Number. Non-finite values are treated as absent.
func Num(v float64) Number {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Number{}
	}
	return Number{Value: v, Valid: true}
}

// IsZero reports whether the number is absent, so `omitzero` drops it.
func (n Number) IsZero() bool { return !n.Valid }

// MarshalJSON emits the value, or null when absent.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// UnmarshalJSON never fails; malformed input decodes as absent.
func (n *Number) UnmarshalJSON(b []byte) error {
	*n = Number{}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	switch t := v.(type) {
	case float64:
		*n = Num(t)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			*n = Num(f)
		}
	}
	return nil
}

// StatusCode is the OTEL status code. It is carried either as a string
// ("OK", "ERROR", "UNSET") or as a legacy number (0, 1, 2), and keeps the
// form it was received in.
type StatusCode struct {
	name    string
	number  float64
	numeric bool
	set     bool
}

// StatusName builds a string status code.
func StatusName(name string) StatusCode {
	return StatusCode{name: name, set: true}
}

// StatusNumber builds a legacy numeric status code.
func StatusNumber(n float64) StatusCode {
	return StatusCode{number: n, numeric: true, set: true}
}

// IsSet reports whether a code was present at all.
func (c StatusCode) IsSet() bool { return c.set }

// IsError reports "ERROR" or legacy 2.
func (c StatusCode) IsError() bool {
	if c.numeric {
		return c.number == 2
	}
	return c.set && c.name == "ERROR"
}

// IsOK reports "OK" or legacy 1.
func (c StatusCode) IsOK() bool {
	if c.numeric {
		return c.number == 1
	}
	return c.set && c.name == "OK"
}

// String returns the code as received ("ERROR", "2"), or "" when unset.
func (c StatusCode) String() string {
	switch {
	case !c.set:
		return ""
	case c.numeric:
		return strconv.FormatFloat(c.number, 'f', -1, 64)
	default:
		return c.name
	}
}

// MarshalJSON emits the code in the form it was received.
func (c StatusCode) MarshalJSON() ([]byte, error) {
	switch {
	case !c.set:
		return []byte("null"), nil
	case c.numeric:
		return json.Marshal(c.number)
	default:
		return json.Marshal(c.name)
	}
}

// UnmarshalJSON accepts a string or a number. Other shapes leave the code unset.
func (c *StatusCode) UnmarshalJSON(b []byte) error {
	*c = StatusCode{}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	switch t := v.(type) {
	case string:
		*c = StatusName(t)
	case float64:
		*c = StatusNumber(t)
	}
	return nil
}

// SpanStatus is the OTEL span status object.
type SpanStatus struct {
	Code    StatusCode `json:"code"`
	Message string     `json:"message,omitempty"`

	// Malformed is set when a status value was present but was not an object.
	Malformed bool `json:"-"`
}

// UnmarshalJSON decodes the status object field by field so a bad code or
// message does not discard the rest of the span.
func (s *SpanStatus) UnmarshalJSON(b []byte) error {
	*s = SpanStatus{}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		s.Malformed = true
		return nil
	}
	if code, ok := raw["code"]; ok {
		_ = json.Unmarshal(code, &s.Code)
	}
	if msg, ok := raw["message"]; ok {
		var m string
		if json.Unmarshal(msg, &m) == nil {
			s.Message = m
		}
	}
	return nil
}

// Attributes is an open attribute bag keyed by semantic-convention names.
// Lookups on a nil bag or a missing key report absence; they never panic.
type Attributes map[string]any

// UnmarshalJSON accepts an object or the OTLP key/value list
// ([{"key":"k","value":{"stringValue":"v"}}]). Any other shape decodes as an
// empty bag.
func (a *Attributes) UnmarshalJSON(b []byte) error {
	*a = nil
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	switch t := v.(type) {
	case map[string]any:
		*a = Attributes(t)
	case []any:
		*a = fromKeyValues(t)
	}
	return nil
}

// fromKeyValues converts an OTLP KeyValue list. Entries without a string
// key are skipped.
func fromKeyValues(list []any) Attributes {
	out := make(Attributes, len(list))
	for _, item := range list {
		kv, ok := item.(map[string]any)
		if !ok {
			continue
		}
		key, ok := kv["key"].(string)
		if !ok || key == "" {
			continue
		}
		out[key] = anyValue(kv["value"])
	}
	return out
}

// anyValue unwraps an OTLP AnyValue. intValue arrives as a string in OTLP
// JSON and is returned as a float64 like every other JSON number. Values
// that are not a single-key AnyValue object pass through unchanged.
func anyValue(v any) any {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return v
	}
	for k, inner := range m {
		switch k {
		case "stringValue", "boolValue", "doubleValue", "bytesValue":
			return inner
		case "intValue":
			if s, ok := inner.(string); ok {
				if f, err := strconv.ParseFloat(s, 64); err == nil {
					return f
				}
			}
			return inner
		case "arrayValue":
			wrapped, _ := inner.(map[string]any)
			values, _ := wrapped["values"].([]any)
			out := make([]any, len(values))
			for i, e := range values {
				out[i] = anyValue(e)
			}
			return out
		case "kvlistValue":
			wrapped, _ := inner.(map[string]any)
			values, _ := wrapped["values"].([]any)
			return map[string]any(fromKeyValues(values))
		}
	}
	return v
}

// Get returns the raw value for key.
func (a Attributes) Get(key string) (any, bool) {
	v, ok := a[key]
	return v, ok
}

// Has reports whether key is present, regardless of its value.
func (a Attributes) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// String returns the value for key when it is a string.
func (a Attributes) String(key string) (string, bool) {
	s, ok := a[key].(string)
	return s, ok
}

// Truthy reports whether key holds a meaningful value: present, non-nil,
// not false, not an empty string, and not a zero or NaN number.
// Classification rules use this test for their attribute markers.
func (a Attributes) Truthy(key string) bool {
	v, ok := a[key]
	if !ok {
		return false
	}
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0 && !math.IsNaN(t)
	case float32:
		return t != 0 && !math.IsNaN(float64(t))
	case int:
		return t != 0
	case int64:
		return t != 0
	case int32:
		return t != 0
	case uint64:
		return t != 0
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0 && !math.IsNaN(f)
	}
	return true
}

// Text returns a display string for a truthy value. Strings are returned
// as-is; other primitives are formatted with fmt.
func (a Attributes) Text(key string) (string, bool) {
	if !a.Truthy(key) {
		return "", false
	}
	if s, ok := a[key].(string); ok {
		return s, true
	}
	return fmt.Sprint(a[key]), true
}

// SpanEvent is a timestamped annotation on a span. Passed through as-is.
type SpanEvent struct {
	Name       string     `json:"name"`
	Timestamp  Number     `json:"timestamp,omitzero"`
	Attributes Attributes `json:"attributes,omitempty"`
}

// SpanLink is a reference to a span in another trace. Passed through as-is.
type SpanLink struct {
	TraceID    string     `json:"trace_id"`
	SpanID     string     `json:"span_id"`
	TraceState string     `json:"trace_state,omitempty"`
	Attributes Attributes `json:"attributes,omitempty"`
}

// Scope identifies the instrumentation library that produced a span.
type Scope struct {
	Name       string     `json:"name"`
	Version    string     `json:"version,omitempty"`
	Attributes Attributes `json:"attributes,omitempty"`
}

// Span is a single timed operation within a distributed trace. Spans are
// read-only once decoded; nothing in tracelens mutates them.
//
// Time fields are kept raw. Fields whose key declares a unit (*_ns,
// duration_ms) are converted by that unit; start_time, end_time and
// duration carry no unit and are normalized heuristically.
type Span struct {
	TraceID      string   `json:"trace_id"`
	SpanID       string   `json:"span_id"`
	ParentSpanID string   `json:"parent_span_id,omitempty"`
	Name         string   `json:"name"`
	Kind         SpanKind `json:"kind,omitempty"`

	StartTimeNs Number `json:"start_time_ns,omitzero"`
	EndTimeNs   Number `json:"end_time_ns,omitzero"`
	DurationNs  Number `json:"duration_ns,omitzero"`
	DurationMs  Number `json:"duration_ms,omitzero"`
	StartTime   Number `json:"start_time,omitzero"`
	EndTime     Number `json:"end_time,omitzero"`
	Duration    Number `json:"duration,omitzero"`

	Status     *SpanStatus `json:"status,omitempty"`
	Attributes Attributes  `json:"attributes,omitempty"`
	Events     []SpanEvent `json:"events,omitempty"`
	Links      []SpanLink  `json:"links,omitempty"`
	Resource   Attributes  `json:"resource,omitempty"`
	Scope      *Scope      `json:"scope,omitempty"`
}

// UnmarshalJSON decodes a span field by field. A field with an unexpected
// shape decodes as absent; ids and names given as numbers keep their
// digits. A span that is not an object decodes as an empty span, which the
// assembler reports as missing its ids.
func (s *Span) UnmarshalJSON(b []byte) error {
	*s = Span{}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}

	s.TraceID = text(raw["trace_id"])
	s.SpanID = text(raw["span_id"])
	s.ParentSpanID = text(raw["parent_span_id"])
	s.Name = text(raw["name"])
	if r, ok := raw["kind"]; ok {
		_ = s.Kind.UnmarshalJSON(r)
	}

	for key, n := range map[string]*Number{
		"start_time_ns": &s.StartTimeNs,
		"end_time_ns":   &s.EndTimeNs,
		"duration_ns":   &s.DurationNs,
		"duration_ms":   &s.DurationMs,
		"start_time":    &s.StartTime,
		"end_time":      &s.EndTime,
		"duration":      &s.Duration,
	} {
		if r, ok := raw[key]; ok {
			_ = n.UnmarshalJSON(r)
		}
	}

	if r, ok := raw["status"]; ok && !isNull(r) {
		s.Status = &SpanStatus{}
		_ = s.Status.UnmarshalJSON(r)
	}
	if r, ok := raw["attributes"]; ok {
		_ = s.Attributes.UnmarshalJSON(r)
	}
	if r, ok := raw["resource"]; ok {
		_ = s.Resource.UnmarshalJSON(r)
	}
	if r, ok := raw["events"]; ok {
		var events []SpanEvent
		if json.Unmarshal(r, &events) == nil {
			s.Events = events
		}
	}
	if r, ok := raw["links"]; ok {
		var links []SpanLink
		if json.Unmarshal(r, &links) == nil {
			s.Links = links
		}
	}
	if r, ok := raw["scope"]; ok && !isNull(r) {
		var scope Scope
		if json.Unmarshal(r, &scope) == nil {
			s.Scope = &scope
		}
	}
	return nil
}

// text reads a string field. Numbers keep their literal digits; every other
// shape is empty.
func text(r json.RawMessage) string {
	if len(r) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(r, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(r, &n) == nil {
		return n.String()
	}
	return ""
}

func isNull(r json.RawMessage) bool {
	return string(bytes.TrimSpace(r)) == "null"
}

// SessionTrace is the stored record for one voice-agent session: every span
// exported for the session plus bookkeeping timestamps.
type SessionTrace struct {
	SessionID  string    `json:"session_id"`
	AgentID    string    `json:"agent_id,omitempty"`
	TraceID    string    `json:"trace_id"`
	TotalSpans int       `json:"total_spans"`
	Spans      []Span    `json:"spans"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SessionSummary is a SessionTrace without its spans, used for listings.
type SessionSummary struct {
	SessionID  string    `json:"session_id"`
	AgentID    string    `json:"agent_id,omitempty"`
	TraceID    string    `json:"trace_id"`
	TotalSpans int       `json:"total_spans"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SessionFilter narrows session listings.
type SessionFilter struct {
	AgentID string
	Limit   int
	Offset  int
}
