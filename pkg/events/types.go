// Package events defines the typed progress events streamed to clients over
// SSE, and the per-request Stream that delivers them.
//
// Every payload carries a "type" field that discriminates the event kind.
// Within one request, events are emitted in causal order: the Pilot's
// thinking precedes its instruction, the instruction precedes the Executor's
// tool events, and those precede the next Pilot turn. Across requests there
// is no ordering guarantee.
package events

// Pilot orchestration events.
const (
	EventTypePilotThinking        = "pilot_thinking"
	EventTypePilotResponse        = "pilot_response"
	EventTypeInstructingExecutor  = "pilot_instructing_executor"
	EventTypeExecutorCallingTool  = "executor_calling_tool"
	EventTypeExecutorToolResult   = "executor_tool_result"
	EventTypeAnalysisPhase        = "analysis_phase"
	EventTypeAnalysisOperationRes = "analysis_operation_result"
	EventTypeUICreating           = "ui_creating"
)

// Native chat events.
const (
	EventTypeToolCalling = "tool_calling"
	EventTypeToolSuccess = "tool_success"
	EventTypeToolError   = "tool_error"
)

// Learning run events.
const (
	EventTypeLearningToolCall     = "tool_call"
	EventTypeLearningToolResponse = "tool_response"
	EventTypeSubToolCreated       = "subtool_created"
	EventTypeInputDocumented      = "input_documented"
)

// Terminal events. Every stream ends with exactly one of these.
const (
	EventTypeComplete = "complete"
	EventTypeError    = "error"
)
