package traceview

import (
	"strings"

	"github.com/ashita-ai/tracelens/internal/model"
)

// Category is the semantic operation a span represents.
type Category string

const (
	CategoryLLM      Category = "LLM"
	CategoryTTS      Category = "TTS"
	CategorySTT      Category = "STT"
	CategoryDatabase Category = "Database"
	CategoryHTTP     Category = "HTTP"
	CategoryOther    Category = "Other"
)

// Categories lists every category in rule order, Other last.
var Categories = []Category{
	CategoryLLM,
	CategoryTTS,
	CategorySTT,
	CategoryDatabase,
	CategoryHTTP,
	CategoryOther,
}

// rule matches a span when its name contains substr or when the attribute
// marker holds a truthy value. Name matching is case-sensitive.
type rule struct {
	category Category
	substr   string
	marker   string
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{CategoryLLM, "llm", model.AttrLLMRequestType},
	{CategoryTTS, "tts", model.AttrTTSProvider},
	{CategorySTT, "stt", model.AttrSTTProvider},
	{CategoryDatabase, "database", model.AttrDBSystem},
	{CategoryHTTP, "http", model.AttrHTTPMethod},
}

func (r rule) match(name string, attrs model.Attributes) bool {
	return strings.Contains(name, r.substr) || attrs.Truthy(r.marker)
}

// Classify maps a span name and attribute bag to a category. It is pure:
// identical input always yields the same category.
func Classify(name string, attrs model.Attributes) Category {
	for _, r := range rules {
		if r.match(name, attrs) {
			return r.category
		}
	}
	return CategoryOther
}

// ClassifySpan is Classify over a span's name and attributes.
func ClassifySpan(s model.Span) Category {
	return Classify(s.Name, s.Attributes)
}

// ParseCategory accepts a category name in any case.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if strings.EqualFold(string(c), s) {
			return c, true
		}
	}
	return "", false
}

// Outcome is the resolved status of a span.
type Outcome string

const (
	OutcomeSuccess Outcome = "Success"
	OutcomeError   Outcome = "Error"
	OutcomeUnknown Outcome = "Unknown"
)

// ResolveStatus maps a span status to an outcome. ERROR or legacy 2 is an
// error; OK, legacy 1, or no status at all is a success. UNSET, other codes
// and malformed status values are unknown.
func ResolveStatus(st *model.SpanStatus) Outcome {
	switch {
	case st == nil:
		return OutcomeSuccess
	case st.Malformed:
		return OutcomeUnknown
	case st.Code.IsError():
		return OutcomeError
	case st.Code.IsOK():
		return OutcomeSuccess
	default:
		return OutcomeUnknown
	}
}

// Hint is the presentation metadata for a category or outcome. Icons are
// lucide icon names; colors are tailwind palette tokens.
type Hint struct {
	Icon       string `json:"icon"`
	Color      string `json:"color"`
	Background string `json:"background,omitempty"`
}

// Hints maps each category to its presentation hint.
var Hints = map[Category]Hint{
	CategoryLLM:      {Icon: "brain", Color: "purple-600", Background: "purple-100"},
	CategoryTTS:      {Icon: "volume-2", Color: "green-600", Background: "green-100"},
	CategorySTT:      {Icon: "mic", Color: "blue-600", Background: "blue-100"},
	CategoryDatabase: {Icon: "database", Color: "orange-600", Background: "orange-100"},
	CategoryHTTP:     {Icon: "network", Color: "indigo-600", Background: "indigo-100"},
	CategoryOther:    {Icon: "activity", Color: "gray-600", Background: "gray-100"},
}

// OutcomeHints maps each outcome to its presentation hint.
var OutcomeHints = map[Outcome]Hint{
	OutcomeSuccess: {Icon: "check-circle-2", Color: "green-600"},
	OutcomeError:   {Icon: "x-circle", Color: "red-600"},
	OutcomeUnknown: {Icon: "alert-circle", Color: "yellow-600"},
}
