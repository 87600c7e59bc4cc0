package executor

import (
	"math"
	"strconv"
	"strings"
)

// CoerceValue interprets one raw argument value. Quoted strings keep their
// text verbatim; bracketed lists coerce element-wise; booleans, null, and
// numbers become their Go types; everything else stays a string.
func CoerceValue(text string) any {
	text = strings.TrimSpace(text)
	if inner, ok := unquote(text); ok {
		return inner
	}
	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		parts := splitCallArgs(text[1 : len(text)-1])
		list := make([]any, 0, len(parts))
		for _, part := range parts {
			list = append(list, CoerceValue(part))
		}
		return list
	}

	lower := strings.ToLower(text)
	switch lower {
	case "true":
		return true
	case "false":
		return false
	case "null", "none":
		return nil
	}
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		// NaN/Inf are not valid JSON
		if !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f
		}
	}
	return text
}

// RefParts reads a var_name[field] reference. Quoted text is never a
// reference.
func RefParts(text string) (name, field string, ok bool) {
	text = strings.TrimSpace(text)
	if _, quoted := unquote(text); quoted {
		return "", "", false
	}
	open := strings.Index(text, "[")
	if open <= 0 || !strings.HasSuffix(text, "]") {
		return "", "", false
	}
	name = strings.TrimSpace(text[:open])
	field = strings.TrimSpace(text[open+1 : len(text)-1])
	if !isIdentifier(name) || field == "" {
		return "", "", false
	}
	return name, field, true
}

// RefList reads a data argument into reference names: either a bracketed
// list of names or a single name. Quotes around individual names are
// dropped.
func RefList(text string) []string {
	text = strings.TrimSpace(text)
	var parts []string
	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		parts = splitCallArgs(text[1 : len(text)-1])
	} else if text != "" {
		parts = []string{text}
	}
	refs := make([]string, 0, len(parts))
	for _, part := range parts {
		if inner, ok := unquote(strings.TrimSpace(part)); ok {
			part = inner
		}
		if part = strings.TrimSpace(part); part != "" {
			refs = append(refs, part)
		}
	}
	return refs
}

func unquote(s string) (string, bool) {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1], true
		}
	}
	return s, false
}
