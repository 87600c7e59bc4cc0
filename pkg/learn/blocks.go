// Package learn drives the tool-learning agent: a bounded LLM loop that
// explores the native tools of one or more MCP servers and distills them
// into sub-tools, documented inputs, and workflows, written as one learning
// file per MCP.
package learn

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BlockKind identifies one tagged block in a learning-agent reply.
type BlockKind string

const (
	BlockCallTool     BlockKind = "CALL_TOOL"
	BlockBrowseWeb    BlockKind = "BROWSE_WEB"
	BlockInputLearned BlockKind = "INPUT_LEARNED"
	BlockSubTool      BlockKind = "SUB_TOOL"
	BlockWorkflow     BlockKind = "WORKFLOW"
	BlockComplete     BlockKind = "LEARNING_COMPLETE"
)

var blockKinds = []BlockKind{
	BlockCallTool,
	BlockBrowseWeb,
	BlockInputLearned,
	BlockSubTool,
	BlockWorkflow,
	BlockComplete,
}

// CallToolPayload is the body of a [CALL_TOOL] block.
type CallToolPayload struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// BrowseWebPayload is the body of a [BROWSE_WEB] block.
type BrowseWebPayload struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// CompletePayload is the body of a [LEARNING_COMPLETE] block.
type CompletePayload struct {
	Insights []string `json:"insights"`
}

// ParsedReply is the result of parsing one learning-agent reply.
type ParsedReply struct {
	// Preamble is free text the model emitted before the block.
	Preamble string

	Kind BlockKind
	Body json.RawMessage

	IsMalformed  bool
	ErrorMessage string
}

// DecodeBody unmarshals the block body into v.
func (p *ParsedReply) DecodeBody(v any) error {
	if err := json.Unmarshal(p.Body, v); err != nil {
		return fmt.Errorf("decoding %s body: %w", p.Kind, err)
	}
	return nil
}

// ParseReply scans a reply for the first recognized tagged block. The parser
// is intentionally forgiving: a missing close tag lets the body run to the
// end of the text, and a fenced ```json wrapper around the body is stripped.
// A reply with no recognizable block, or a body that is not a JSON object,
// is malformed.
func ParseReply(text string) *ParsedReply {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return &ParsedReply{IsMalformed: true, ErrorMessage: "empty reply"}
	}

	kind, start := findFirstTag(trimmed)
	if start < 0 {
		return &ParsedReply{
			Preamble:     trimmed,
			IsMalformed:  true,
			ErrorMessage: "no tagged block found",
		}
	}

	openTag := "[" + string(kind) + "]"
	closeTag := "[/" + string(kind) + "]"

	bodyStart := start + len(openTag)
	body := trimmed[bodyStart:]
	if end := strings.Index(body, closeTag); end >= 0 {
		body = body[:end]
	}
	body = stripFence(strings.TrimSpace(body))

	preamble := strings.TrimSpace(trimmed[:start])

	if !strings.HasPrefix(body, "{") || !json.Valid([]byte(body)) {
		return &ParsedReply{
			Preamble:     preamble,
			Kind:         kind,
			IsMalformed:  true,
			ErrorMessage: fmt.Sprintf("%s body is not a valid JSON object", kind),
		}
	}

	return &ParsedReply{
		Preamble: preamble,
		Kind:     kind,
		Body:     json.RawMessage(body),
	}
}

// findFirstTag returns the kind and offset of the earliest open tag in text,
// or -1 when none is present.
func findFirstTag(text string) (BlockKind, int) {
	best := -1
	var bestKind BlockKind
	for _, kind := range blockKinds {
		idx := strings.Index(text, "["+string(kind)+"]")
		if idx >= 0 && (best < 0 || idx < best) {
			best = idx
			bestKind = kind
		}
	}
	return bestKind, best
}

// stripFence removes a surrounding markdown code fence, if present.
func stripFence(body string) string {
	if !strings.HasPrefix(body, "```") {
		return body
	}
	rest := body[3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	} else {
		return body
	}
	if end := strings.LastIndex(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}
