package analysis

import (
	"strconv"
	"strings"
)

// Prop is one key: value argument of a visual directive. An unkeyed argument
// keeps an empty Key. Order is preserved because table column order follows
// argument order.
type Prop struct {
	Key   string
	Value string
}

// Visual is one VISUAL_n directive parsed from reporter output.
type Visual struct {
	Index int
	Kind  string
	Props []Prop
	Raw   string
}

// Prop returns the value of the first prop with the given key.
func (v Visual) Prop(key string) (string, bool) {
	for _, p := range v.Props {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Report is parsed reporter output: narrative text, visual directives, and
// the summary handed back to the caller.
type Report struct {
	Narrative string
	Visuals   []Visual
	Summary   string
}

// ParseReport parses the reporter's [report] and [summary] blocks. Parsing
// is forgiving: a missing [report] block treats the whole text as narrative,
// and a missing [summary] falls back to the narrative.
func ParseReport(text string) *Report {
	rep := &Report{}

	summary, remainder := extractBlock(text, "summary")
	rep.Summary = strings.TrimSpace(summary)

	body, found := blockInner(remainder, "report")
	if !found {
		body = remainder
	}
	var narrative []string
	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		if visual, ok := parseVisualLine(line); ok {
			rep.Visuals = append(rep.Visuals, visual)
			continue
		}
		narrative = append(narrative, line)
	}
	rep.Narrative = strings.TrimSpace(strings.Join(narrative, "\n"))
	if rep.Summary == "" {
		rep.Summary = rep.Narrative
	}
	return rep
}

// parseVisualLine parses one "VISUAL_n: kind(args)" directive.
func parseVisualLine(line string) (Visual, bool) {
	upper := strings.ToUpper(line)
	if !strings.HasPrefix(upper, "VISUAL_") {
		return Visual{}, false
	}
	rest := line[len("VISUAL_"):]
	colon := strings.Index(rest, ":")
	if colon <= 0 {
		return Visual{}, false
	}
	index, err := strconv.Atoi(strings.TrimSpace(rest[:colon]))
	if err != nil {
		return Visual{}, false
	}
	call := strings.TrimSpace(rest[colon+1:])
	open := strings.Index(call, "(")
	if open <= 0 || !strings.HasSuffix(call, ")") {
		return Visual{}, false
	}
	kind := strings.ToLower(strings.TrimSpace(call[:open]))
	if !isVisualKind(kind) {
		return Visual{}, false
	}
	visual := Visual{Index: index, Kind: kind, Raw: line}
	for _, arg := range splitTopLevel(call[open+1 : len(call)-1]) {
		visual.Props = append(visual.Props, splitProp(arg))
	}
	return visual, true
}

func isVisualKind(kind string) bool {
	for _, r := range kind {
		switch {
		case r == '_' || r == '-':
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return kind != ""
}

// splitProp splits "key: value" on the first colon outside quotes and
// brackets.
func splitProp(arg string) Prop {
	depth := 0
	inQuote := rune(0)
	for i, r := range arg {
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
		case r == ':' && depth == 0:
			return Prop{
				Key:   strings.TrimSpace(arg[:i]),
				Value: strings.TrimSpace(arg[i+1:]),
			}
		}
	}
	return Prop{Value: strings.TrimSpace(arg)}
}

// extractBlock removes a [tag]...[/tag] block, returning its inner text and
// the text with the block cut out.
func extractBlock(text, tag string) (inner, remainder string) {
	openTag, closeTag := "["+tag+"]", "[/"+tag+"]"
	lower := strings.ToLower(text)
	start := strings.Index(lower, openTag)
	if start == -1 {
		return "", text
	}
	bodyStart := start + len(openTag)
	end := strings.Index(lower[bodyStart:], closeTag)
	if end == -1 {
		return text[bodyStart:], text[:start]
	}
	bodyEnd := bodyStart + end
	return text[bodyStart:bodyEnd], text[:start] + text[bodyEnd+len(closeTag):]
}

// blockInner returns the inner text of a [tag]...[/tag] block.
func blockInner(text, tag string) (string, bool) {
	inner, remainder := extractBlock(text, tag)
	return inner, remainder != text || inner != ""
}
