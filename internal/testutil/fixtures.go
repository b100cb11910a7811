package testutil

import (
	"time"

	"github.com/ashita-ai/tracelens/internal/model"
)

// Fixture ids.
const (
	SessionID = "sess-001"
	AgentID   = "agent-support"
	TraceID   = "4bf92f3577b34da6a3ce929d0e0e4736"
)

// fixtureStartNs is 2023-11-14T22:13:20Z in nanoseconds.
const fixtureStartNs = 1_700_000_000_000_000_000

// VoiceSession returns one voice-agent turn: a root span with STT, LLM and
// TTS children, one database lookup under the LLM call, and a failed TTS
// request. Times are epoch nanoseconds.
func VoiceSession() model.SessionTrace {
	at := func(ms float64) model.Number { return model.Num(fixtureStartNs + ms*1e6) }
	created := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	gateway := model.Attributes{model.AttrServiceName: "voice-gateway"}

	spans := []model.Span{
		{
			TraceID: TraceID, SpanID: "root", Name: "agent.turn", Kind: model.SpanKindServer,
			StartTimeNs: at(0), EndTimeNs: at(1200), Attributes: gateway,
			Resource: model.Attributes{model.AttrServiceName: "voice-gateway"},
		},
		{
			TraceID: TraceID, SpanID: "stt", ParentSpanID: "root", Name: "stt.transcribe", Kind: model.SpanKindClient,
			StartTimeNs: at(0), DurationNs: model.Num(180e6),
			Attributes: model.Attributes{model.AttrSTTProvider: "deepgram", model.AttrServiceName: "voice-gateway"},
		},
		{
			TraceID: TraceID, SpanID: "llm", ParentSpanID: "root", Name: "llm.completion", Kind: model.SpanKindClient,
			StartTimeNs: at(200), DurationNs: model.Num(600e6),
			Attributes: model.Attributes{model.AttrLLMRequestType: "chat", model.AttrLLMModel: "gpt-4o", model.AttrServiceName: "agent-core"},
			Status:     &model.SpanStatus{Code: model.StatusName("OK")},
		},
		{
			TraceID: TraceID, SpanID: "db", ParentSpanID: "llm", Name: "SELECT customers", Kind: model.SpanKindClient,
			StartTimeNs: at(250), DurationNs: model.Num(12e6),
			Attributes: model.Attributes{model.AttrDBSystem: "postgresql", model.AttrServiceName: "agent-core"},
		},
		{
			TraceID: TraceID, SpanID: "tts", ParentSpanID: "root", Name: "tts.synthesize", Kind: model.SpanKindClient,
			StartTimeNs: at(820), DurationNs: model.Num(380e6),
			Attributes: model.Attributes{model.AttrTTSProvider: "elevenlabs", model.AttrServiceName: "voice-gateway"},
			Status:     &model.SpanStatus{Code: model.StatusName("ERROR"), Message: "upstream 503"},
		},
	}
	return model.SessionTrace{
		SessionID:  SessionID,
		AgentID:    AgentID,
		TraceID:    TraceID,
		TotalSpans: len(spans),
		Spans:      spans,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}
