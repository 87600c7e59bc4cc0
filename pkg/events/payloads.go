package events

import (
	"github.com/pilotdeck/pilotdeck/pkg/llm"
)

// PilotThinkingPayload is emitted when a Pilot turn starts deliberating.
type PilotThinkingPayload struct {
	Type    string `json:"type"` // always EventTypePilotThinking
	Turn    int    `json:"turn"`
	Message string `json:"message,omitempty"`
}

// PilotResponsePayload carries the Pilot's REPLY text.
type PilotResponsePayload struct {
	Type    string `json:"type"` // always EventTypePilotResponse
	Message string `json:"message"`
}

// InstructingExecutorPayload carries one Pilot instruction to the Executor.
type InstructingExecutorPayload struct {
	Type        string `json:"type"` // always EventTypeInstructingExecutor
	Turn        int    `json:"turn"`
	Instruction string `json:"instruction"`
}

// ExecutorCallingToolPayload is emitted when the Executor dispatches a tool.
type ExecutorCallingToolPayload struct {
	Type     string `json:"type"` // always EventTypeExecutorCallingTool
	Tool     string `json:"tool"`
	Variable string `json:"variable,omitempty"` // destination variable, if any
}

// ExecutorToolResultPayload carries the Executor's report back to the client.
type ExecutorToolResultPayload struct {
	Type    string `json:"type"` // always EventTypeExecutorToolResult
	Tool    string `json:"tool"`
	Report  string `json:"report"`
	IsError bool   `json:"is_error,omitempty"`
}

// AnalysisPhasePayload marks a phase transition inside an llm() analysis run.
type AnalysisPhasePayload struct {
	Type  string `json:"type"`  // always EventTypeAnalysisPhase
	Phase string `json:"phase"` // planning, executing, reporting
}

// AnalysisOperationResultPayload carries one executed plan line and its result.
type AnalysisOperationResultPayload struct {
	Type      string `json:"type"` // always EventTypeAnalysisOperationRes
	Output    string `json:"output"`
	Operation string `json:"operation"`
	Result    string `json:"result"`
}

// UICreatingPayload is emitted before a visual is rendered to DSL.
type UICreatingPayload struct {
	Type string `json:"type"` // always EventTypeUICreating
	Kind string `json:"kind"` // table, line-chart, card, alert
}

// ToolCallingPayload is emitted in native chat mode before an MCP call.
type ToolCallingPayload struct {
	Type string         `json:"type"` // always EventTypeToolCalling
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolSuccessPayload is emitted in native chat mode after a successful call.
type ToolSuccessPayload struct {
	Type string `json:"type"` // always EventTypeToolSuccess
	Tool string `json:"tool"`
}

// ToolErrorPayload is emitted in native chat mode after a failed call.
type ToolErrorPayload struct {
	Type  string `json:"type"` // always EventTypeToolError
	Tool  string `json:"tool"`
	Error string `json:"error"`
}

// LearningToolCallPayload is emitted when the learning agent calls a tool.
type LearningToolCallPayload struct {
	Type string         `json:"type"` // always EventTypeLearningToolCall
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// LearningToolResponsePayload is emitted when a learning tool call returns.
type LearningToolResponsePayload struct {
	Type    string `json:"type"` // always EventTypeLearningToolResponse
	Tool    string `json:"tool"`
	Chars   int    `json:"chars"` // size of the injected observation
	IsError bool   `json:"is_error,omitempty"`
}

// SubToolCreatedPayload is emitted when the learning agent records a sub-tool.
type SubToolCreatedPayload struct {
	Type string `json:"type"` // always EventTypeSubToolCreated
	ID   string `json:"id"`
	Name string `json:"name"`
}

// InputDocumentedPayload is emitted when the learning agent documents an input.
type InputDocumentedPayload struct {
	Type string `json:"type"` // always EventTypeInputDocumented
	Tool string `json:"tool"`
	Name string `json:"name"`
}

// CompletePayload is the terminal success event. DSL, History, and SessionID
// are set for Pilot runs; Files for learning runs.
type CompletePayload struct {
	Type      string        `json:"type"` // always EventTypeComplete
	SessionID string        `json:"session_id,omitempty"`
	Message   string        `json:"message"`
	DSL       []string      `json:"dsl,omitempty"`
	History   []llm.Message `json:"history,omitempty"`
	Files     []string      `json:"files,omitempty"`
}

// ErrorPayload is the terminal failure event.
type ErrorPayload struct {
	Type  string `json:"type"` // always EventTypeError
	Error string `json:"error"`
}
