// Package subtool implements the learned sub-tool catalog and its executor.
// Sub-tools are focused invocations of a parent MCP tool with preset default
// args, a declared input set, and an output projection; they are produced by
// the learning agent and loaded from per-MCP learning files at startup.
package subtool

import "time"

// Input types a learned sub-tool may declare.
const (
	InputTypeEnum      = "enum"
	InputTypeString    = "string"
	InputTypeNumber    = "number"
	InputTypeDate      = "date"
	InputTypeReference = "reference"
	InputTypeFormat    = "format"
)

// SubTool is one learned invocation shape of a parent MCP tool.
type SubTool struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Description       string         `json:"description"`
	ParentTool        string         `json:"parent_tool"`
	ParentDefaultArgs map[string]any `json:"parent_default_args,omitempty"`
	RequiresFirst     []Dependency   `json:"requires_first,omitempty"`
	Inputs            []Input        `json:"inputs,omitempty"`
	JSONPath          string         `json:"json_path,omitempty"`
	OutputFields      []OutputField  `json:"output_fields,omitempty"`
	OutputExample     any            `json:"output_example,omitempty"`

	// ServerName is recorded at learning time from the parent tool's catalog
	// entry so per-MCP grouping never has to split sanitized names.
	ServerName string `json:"server_name,omitempty"`
}

// Dependency names another sub-tool whose output feeds this one. Advisory for
// planners; the executor does not auto-fulfill dependencies.
type Dependency struct {
	SubTool      string `json:"sub_tool"`
	Reason       string `json:"reason,omitempty"`
	ExtractField string `json:"extract_field,omitempty"`
	FromPath     string `json:"from_path,omitempty"`
}

// Input is one declared caller-facing input of a sub-tool.
type Input struct {
	Name           string       `json:"name"`
	Type           string       `json:"type"`
	Required       bool         `json:"required"`
	Description    string       `json:"description,omitempty"`
	MapToParentArg string       `json:"map_to_parent_arg"`
	Options        []string     `json:"options,omitempty"`
	Format         string       `json:"format,omitempty"`
	Source         *InputSource `json:"source,omitempty"`
	Default        any          `json:"default,omitempty"`
}

// InputSource points at the sub-tool (and path within its output) that can
// supply valid values for a reference-typed input.
type InputSource struct {
	Tool     string `json:"tool"`
	FromPath string `json:"from_path,omitempty"`
}

// OutputField maps one raw payload path to a published schema field.
type OutputField struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// DocumentedInput is free-standing input documentation captured during
// learning (option lists, formats, examples for a parent tool's argument).
type DocumentedInput struct {
	Tool        string   `json:"tool"`
	Name        string   `json:"name"`
	Type        string   `json:"type,omitempty"`
	Description string   `json:"description,omitempty"`
	Options     []string `json:"options,omitempty"`
	Format      string   `json:"format,omitempty"`
	Example     any      `json:"example,omitempty"`
}

// Workflow is a learned multi-step recipe for a recurring user task.
type Workflow struct {
	ID             string   `json:"id"`
	UserTask       string   `json:"userTask"`
	Category       string   `json:"category,omitempty"`
	Steps          []string `json:"steps"`
	AnswerTemplate string   `json:"answerTemplate,omitempty"`
	DecisionPoints []string `json:"decisionPoints,omitempty"`
	ServerName     string   `json:"server_name,omitempty"`
}

// OriginalTool records one native tool that was visible during learning.
type OriginalTool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// LearningFile is the on-disk artifact of one learned MCP.
type LearningFile struct {
	MCPName          string            `json:"mcpName"`
	Version          int               `json:"version"`
	LearnedAt        time.Time         `json:"learnedAt"`
	ModelUsed        string            `json:"modelUsed,omitempty"`
	OriginalTools    []OriginalTool    `json:"originalTools,omitempty"`
	SubTools         []SubTool         `json:"subTools"`
	DocumentedInputs []DocumentedInput `json:"documentedInputs,omitempty"`
	Workflows        []Workflow        `json:"workflows,omitempty"`
	Insights         []string          `json:"insights,omitempty"`
}
