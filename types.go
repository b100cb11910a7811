package tracelens

import (
	"github.com/ashita-ai/tracelens/internal/model"
	"github.com/ashita-ai/tracelens/internal/service/traceview"
)

// Category is the functional kind of a span.
type Category string

const (
	CategoryLLM      Category = "LLM"
	CategoryTTS      Category = "TTS"
	CategorySTT      Category = "STT"
	CategoryDatabase Category = "Database"
	CategoryHTTP     Category = "HTTP"
	CategoryOther    Category = "Other"
)

// Classify returns the category of a span from its name and attributes, the
// same way the server classifies stored spans. attributes may be nil.
func Classify(name string, attributes map[string]any) Category {
	return Category(traceview.Classify(name, model.Attributes(attributes)))
}
