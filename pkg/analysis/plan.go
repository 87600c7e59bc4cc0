package analysis

import "strings"

// PlanLine is one parsed operation of a calculation plan:
//
//	output_var: operation(arg1, arg2)  # optional comment
type PlanLine struct {
	Output  string
	Op      string
	Args    []string
	Comment string
	Raw     string
}

// ParsePlan extracts plan lines from planner output. Parsing is forgiving:
// preamble, blank lines, fences, and anything that does not match the line
// grammar are skipped rather than failing the whole plan.
func ParsePlan(text string) []PlanLine {
	var lines []PlanLine
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		line = strings.TrimLeft(line, "-* ")
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		body, comment := splitComment(line)
		body = strings.TrimSpace(body)

		colon := strings.Index(body, ":")
		if colon <= 0 {
			continue
		}
		output := strings.TrimSpace(body[:colon])
		if !isIdentifier(output) {
			continue
		}
		call := strings.TrimSpace(body[colon+1:])
		open := strings.Index(call, "(")
		if open <= 0 || !strings.HasSuffix(call, ")") {
			continue
		}
		op := strings.TrimSpace(call[:open])
		if !isIdentifier(op) {
			continue
		}
		argText := call[open+1 : len(call)-1]
		lines = append(lines, PlanLine{
			Output:  output,
			Op:      op,
			Args:    splitTopLevel(argText),
			Comment: comment,
			Raw:     line,
		})
	}
	return lines
}

// splitComment separates a trailing # comment from the operation body. A #
// inside quotes stays part of the body.
func splitComment(line string) (body, comment string) {
	inQuote := rune(0)
	for i, r := range line {
		switch {
		case inQuote != 0:
			if r == inQuote {
				inQuote = 0
			}
		case r == '"' || r == '\'':
			inQuote = r
		case r == '#':
			return line[:i], strings.TrimSpace(line[i+1:])
		}
	}
	return line, ""
}

// splitTopLevel splits on commas outside parentheses, brackets, and quotes.
func splitTopLevel(s string) []string {
	var (
		args    []string
		depth   int
		inQuote rune
		start   int
	)
	for i, r := range s {
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
			if arg := strings.TrimSpace(s[start:i]); arg != "" {
				args = append(args, arg)
			}
			start = i + 1
		}
	}
	if arg := strings.TrimSpace(s[start:]); arg != "" {
		args = append(args, arg)
	}
	return args
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
