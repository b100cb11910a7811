package model

// Attribute keys consulted by classification, grouping and display.
// These follow the OpenTelemetry semantic conventions plus the LLM, TTS and
// STT extensions emitted by voice-agent instrumentation.
const (
	AttrServiceName    = "service.name"
	AttrServiceVersion = "service.version"

	AttrLLMRequestType      = "llm.request.type"
	AttrLLMProvider         = "llm.provider"
	AttrLLMModel            = "llm.model"
	AttrLLMPromptTokens     = "llm.usage.prompt_tokens"
	AttrLLMCompletionTokens = "llm.usage.completion_tokens"
	AttrLLMTotalTokens      = "llm.usage.total_tokens"

	AttrTTSProvider   = "tts.provider"
	AttrTTSVoice      = "tts.voice"
	AttrTTSCharacters = "tts.characters"

	AttrSTTProvider   = "stt.provider"
	AttrSTTLanguage   = "stt.language"
	AttrSTTConfidence = "stt.confidence"

	AttrHTTPMethod     = "http.method"
	AttrHTTPURL        = "http.url"
	AttrHTTPStatusCode = "http.status_code"

	AttrDBSystem    = "db.system"
	AttrDBName      = "db.name"
	AttrDBOperation = "db.operation"
	AttrDBStatement = "db.statement"

	AttrSessionID    = "session.id"
	AttrAgentID      = "agent.id"
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)
