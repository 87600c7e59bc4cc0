// Package pilot implements the planning agent: a single-step strategist that
// instructs an Executor one action at a time and decides when the user's
// request is done. The loop host enforces the turn budget and retry policy.
package pilot

import "strings"

// DecisionKind discriminates the two Pilot outputs.
type DecisionKind string

const (
	KindExecutor DecisionKind = "executor"
	KindReply    DecisionKind = "reply"
)

// Decision is one parsed Pilot turn.
type Decision struct {
	Kind DecisionKind
	Text string

	// Heuristic reports that no EXECUTOR:/REPLY: prefix was present and the
	// kind was inferred from tool-name mentions.
	Heuristic bool
}

// ParseDecision parses a Pilot reply. The parser is forgiving: the prefix may
// appear after preamble lines, in any case, or wrapped in markdown emphasis.
// When no prefix is found at all, a mention of any known tool name makes the
// text an Executor instruction; otherwise it is treated as the final reply.
func ParseDecision(text string, knownTools []string) Decision {
	trimmed := strings.TrimSpace(text)
	lines := strings.Split(trimmed, "\n")

	for i, raw := range lines {
		line := strings.TrimLeft(strings.TrimSpace(raw), "*#> ")
		upper := strings.ToUpper(line)

		if strings.HasPrefix(upper, "EXECUTOR:") {
			content := trailingContent(line[len("EXECUTOR:"):], lines[i+1:])
			if content != "" {
				return Decision{Kind: KindExecutor, Text: content}
			}
		}
		if strings.HasPrefix(upper, "REPLY:") {
			content := trailingContent(line[len("REPLY:"):], lines[i+1:])
			if content != "" {
				return Decision{Kind: KindReply, Text: content}
			}
		}
	}

	lower := strings.ToLower(trimmed)
	for _, tool := range knownTools {
		if tool != "" && strings.Contains(lower, strings.ToLower(tool)) {
			return Decision{Kind: KindExecutor, Text: trimmed, Heuristic: true}
		}
	}
	return Decision{Kind: KindReply, Text: trimmed, Heuristic: true}
}

// trailingContent joins the prefix line's remainder with all following lines.
func trailingContent(rest string, following []string) string {
	rest = strings.TrimLeft(rest, "* ")
	parts := []string{rest}
	parts = append(parts, following...)
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
