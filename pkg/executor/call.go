// Package executor hosts the tool-calling agent: it turns one Pilot
// instruction into a single tool call, runs it, and reports the outcome in a
// form the Pilot reads on its next turn. The call syntax is compact:
//
//	var_name: tool_name(arg1: value1, arg2: "quoted", list: [a, b])
//	DONE: <brief report>
//
// with the leading variable name optional and multi-line argument bodies
// allowed.
package executor

import (
	"fmt"
	"strings"
)

// Call is one parsed tool invocation.
type Call struct {
	Variable string
	Tool     string
	Args     []Arg
	Done     string
}

// Arg is one argument as written. Key is empty for positional arguments;
// Text keeps the raw value, quotes included.
type Arg struct {
	Key  string
	Text string
}

// Get returns the raw text of the first argument with the given key.
func (c *Call) Get(key string) (string, bool) {
	for _, arg := range c.Args {
		if arg.Key == key {
			return arg.Text, true
		}
	}
	return "", false
}

// ParseCall extracts the tool call from an executor reply. The parser is
// forgiving about preamble and markdown but requires one call whose
// parentheses balance; anything else is a parse failure the Pilot hears
// about.
func ParseCall(reply string) (*Call, error) {
	lines := strings.Split(reply, "\n")

	var done string
	callLine := -1
	var variable, tool string
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		line = strings.TrimLeft(line, "-*#> ")
		upper := strings.ToUpper(line)
		if done == "" && strings.HasPrefix(upper, "DONE:") {
			done = strings.TrimSpace(line[len("DONE:"):])
			continue
		}
		if callLine != -1 || strings.HasPrefix(line, "```") {
			continue
		}
		if v, t, ok := parseCallHeader(line); ok {
			callLine = i
			variable, tool = v, t
		}
	}
	if callLine == -1 {
		return nil, fmt.Errorf("no tool call found in reply")
	}

	text := strings.Join(lines[callLine:], "\n")
	body, err := callBody(text)
	if err != nil {
		return nil, err
	}

	call := &Call{Variable: variable, Tool: tool, Done: done}
	for _, piece := range splitCallArgs(body) {
		call.Args = append(call.Args, splitKV(piece))
	}
	return call, nil
}

// parseCallHeader reads the text before the first parenthesis of a line into
// an optional variable name and a tool name. Lines whose pre-paren text does
// not end in a plausible tool name are not calls.
func parseCallHeader(line string) (variable, tool string, ok bool) {
	open := strings.Index(line, "(")
	if open <= 0 {
		return "", "", false
	}
	header := strings.TrimSpace(line[:open])
	if colon := strings.Index(header, ":"); colon > 0 {
		left := strings.TrimSpace(header[:colon])
		if isIdentifier(left) {
			variable = left
			header = strings.TrimSpace(header[colon+1:])
		}
	}
	// tolerate prose before the tool name; the name is the last token
	if space := strings.LastIndexAny(header, " \t"); space != -1 {
		header = header[space+1:]
	}
	if !isToolName(header) {
		return "", "", false
	}
	return variable, header, true
}

// callBody returns the argument text between the call's outer parentheses,
// balancing across lines and ignoring parentheses inside quotes.
func callBody(text string) (string, error) {
	open := strings.Index(text, "(")
	if open == -1 {
		return "", fmt.Errorf("no opening parenthesis")
	}
	depth := 0
	inQuote := rune(0)
	for i, r := range text[open:] {
		switch {
		case inQuote != 0:
			if r == inQuote {
				inQuote = 0
			}
		case r == '"' || r == '\'':
			inQuote = r
		case r == '(' || r == '[':
			depth++
		case r == ')' || r == ']':
			depth--
			if depth == 0 && r == ')' {
				return text[open+1 : open+i], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced parentheses in tool call")
}

// splitCallArgs splits the argument body on top-level commas, tracking
// bracket and parenthesis depth and quotes.
func splitCallArgs(body string) []string {
	var (
		pieces  []string
		depth   int
		inQuote rune
		start   int
	)
	for i, r := range body {
		switch {
		case inQuote != 0:
			if r == inQuote {
				inQuote = 0
			}
		case r == '"' || r == '\'':
			inQuote = r
		case r == '(' || r == '[':
			depth++
		case r == ')' || r == ']':
			depth--
		case r == ',' && depth == 0:
			if piece := strings.TrimSpace(body[start:i]); piece != "" {
				pieces = append(pieces, piece)
			}
			start = i + 1
		}
	}
	if piece := strings.TrimSpace(body[start:]); piece != "" {
		pieces = append(pieces, piece)
	}
	return pieces
}

// splitKV splits one argument piece on the first : or = outside quotes and
// brackets. Pieces without a separator (or with an implausible key) are
// positional.
func splitKV(piece string) Arg {
	depth := 0
	inQuote := rune(0)
	for i, r := range piece {
		switch {
		case inQuote != 0:
			if r == inQuote {
				inQuote = 0
			}
		case r == '"' || r == '\'':
			inQuote = r
		case r == '[' || r == '(':
			depth++
		case r == ']' || r == ')':
			depth--
		case (r == ':' || r == '=') && depth == 0:
			key := strings.TrimSpace(piece[:i])
			if isIdentifier(key) {
				return Arg{Key: key, Text: strings.TrimSpace(piece[i+1:])}
			}
			return Arg{Text: strings.TrimSpace(piece)}
		}
	}
	return Arg{Text: strings.TrimSpace(piece)}
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// isToolName accepts sanitized MCP names, sub-tool ids, and built-ins like
// line-chart.
func isToolName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r == '_' || r == '.' || r == '-' || r == ':':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
