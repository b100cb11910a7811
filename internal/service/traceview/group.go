package traceview

import (
	"fmt"

	"github.com/ashita-ai/tracelens/internal/model"
)

// Dimension selects how GroupSpans partitions a span collection.
type Dimension string

const (
	DimensionNone      Dimension = "none"
	DimensionService   Dimension = "service"
	DimensionOperation Dimension = "operation"
)

// Group labels.
const (
	AllSpansKey       = "All Spans"
	UnknownServiceKey = "Unknown Service"
)

// operationLabels maps each category to its operation bucket label.
var operationLabels = map[Category]string{
	CategoryLLM:      "LLM Operations",
	CategoryTTS:      "Text-to-Speech",
	CategorySTT:      "Speech-to-Text",
	CategoryDatabase: "Database Operations",
	CategoryHTTP:     "HTTP Requests",
	CategoryOther:    "Other Operations",
}

// OperationLabel returns the bucket label for a category.
func OperationLabel(c Category) string {
	if l, ok := operationLabels[c]; ok {
		return l
	}
	return operationLabels[CategoryOther]
}

// ParseDimension validates a group_by value. The empty string means none.
func ParseDimension(s string) (Dimension, error) {
	switch d := Dimension(s); d {
	case "":
		return DimensionNone, nil
	case DimensionNone, DimensionService, DimensionOperation:
		return d, nil
	}
	return "", fmt.Errorf("group_by must be one of service, operation, none (got %q)", s)
}

// Group is one bucket of spans. Members keep input order.
type Group struct {
	Key   string       `json:"key"`
	Spans []model.Span `json:"spans"`
}

// GroupSpans partitions spans by dimension. Groups are ordered by the first
// appearance of their key; every span lands in exactly one group. Empty
// input yields no groups. An unrecognized dimension groups as none.
func GroupSpans(spans []model.Span, dim Dimension) []Group {
	if len(spans) == 0 {
		return nil
	}
	if dim != DimensionService && dim != DimensionOperation {
		return []Group{{Key: AllSpansKey, Spans: append([]model.Span(nil), spans...)}}
	}

	var groups []Group
	pos := make(map[string]int)
	for _, s := range spans {
		var key string
		if dim == DimensionService {
			key = ServiceName(s)
		} else {
			key = OperationLabel(ClassifySpan(s))
		}
		i, ok := pos[key]
		if !ok {
			i = len(groups)
			pos[key] = i
			groups = append(groups, Group{Key: key})
		}
		groups[i].Spans = append(groups[i].Spans, s)
	}
	return groups
}

// ServiceName returns the span's service name from its attributes, then its
// resource, then UnknownServiceKey.
func ServiceName(s model.Span) string {
	if v, ok := s.Attributes.Text(model.AttrServiceName); ok {
		return v
	}
	if v, ok := s.Resource.Text(model.AttrServiceName); ok {
		return v
	}
	return UnknownServiceKey
}
