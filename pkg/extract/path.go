package extract

import (
	"fmt"
	"strconv"
	"strings"
)

// CleanPath canonicalizes a projection path.
//
// Accepted input shapes: optional leading "$." (or a bare "$"), dotted
// segments with "[N]" indices, and "[*]" wildcards. Learning-time paths
// sometimes include the envelope prefix that unwrapping already removed, so
// leading "result[*].", "result." and a bare "result" are stripped. The
// stripping loops until stable, which makes CleanPath idempotent. An empty
// result means "the unwrapped payload as-is".
func CleanPath(path string) string {
	p := strings.TrimSpace(path)
	if p == "$" {
		return ""
	}
	p = strings.TrimPrefix(p, "$.")

	for {
		switch {
		case p == "result" || p == "result[*]":
			p = ""
		case strings.HasPrefix(p, "result[*]."):
			p = p[len("result[*]."):]
		case strings.HasPrefix(p, "result."):
			p = p[len("result."):]
		default:
			return p
		}
	}
}

// Extract evaluates a path against a value. The boolean reports whether the
// path resolved to a defined value.
//
// Evaluation follows three rules:
//  1. A path without wildcards walks dotted segments; any missing step makes
//     the whole result undefined.
//  2. "[*]" splits the path; at each wildcard boundary an array fans the
//     remaining segment out over its elements, flattening one level when the
//     per-element result is itself an array. Non-arrays descend normally.
//  3. When the whole path misses on an array input, the path is re-applied to
//     each element and the defined results are concatenated.
func Extract(value any, path string) (any, bool) {
	clean := CleanPath(path)
	if clean == "" {
		return value, true
	}

	if result, ok := evaluate(value, clean); ok {
		return result, true
	}

	// Top-level miss on an array: retry per element.
	if arr, isArr := value.([]any); isArr {
		var results []any
		for _, el := range arr {
			v, ok := evaluate(el, clean)
			if !ok {
				continue
			}
			if inner, isInner := v.([]any); isInner {
				results = append(results, inner...)
			} else {
				results = append(results, v)
			}
		}
		if len(results) > 0 {
			return results, true
		}
	}

	return nil, false
}

// ValidatePath rejects path shapes outside the supported subset.
func ValidatePath(path string) error {
	clean := CleanPath(path)
	if clean == "" {
		return nil
	}
	if strings.Contains(clean, "..") {
		return fmt.Errorf("recursive descent is not supported in %q", path)
	}
	for _, seg := range splitSegments(clean) {
		if _, _, err := parseSegment(seg); err != nil {
			return fmt.Errorf("invalid path %q: %w", path, err)
		}
	}
	return nil
}

// evaluate handles both simple and wildcard paths.
func evaluate(value any, clean string) (any, bool) {
	if !strings.Contains(clean, "[*]") {
		return walk(value, clean)
	}

	parts := strings.Split(clean, "[*]")

	cur, ok := walk(value, strings.TrimSuffix(parts[0], "."))
	if !ok {
		return nil, false
	}

	for _, part := range parts[1:] {
		part = strings.TrimPrefix(part, ".")

		arr, isArr := cur.([]any)
		if !isArr {
			// Wildcard over a non-array: descend normally.
			cur, ok = walk(cur, part)
			if !ok {
				return nil, false
			}
			continue
		}

		out := make([]any, 0, len(arr))
		for _, el := range arr {
			v, ok := walk(el, part)
			if !ok {
				continue
			}
			if inner, isInner := v.([]any); isInner {
				out = append(out, inner...)
			} else {
				out = append(out, v)
			}
		}
		cur = out
	}

	return cur, true
}

// walk descends dotted segments with optional [N] indices. An empty path
// returns the value unchanged.
func walk(value any, path string) (any, bool) {
	if path == "" {
		return value, true
	}

	cur := value
	for _, seg := range splitSegments(path) {
		name, indices, err := parseSegment(seg)
		if err != nil {
			return nil, false
		}

		if name != "" {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			cur, ok = m[name]
			if !ok {
				return nil, false
			}
		}

		for _, idx := range indices {
			arr, ok := cur.([]any)
			if !ok || idx < 0 || idx >= len(arr) {
				return nil, false
			}
			cur = arr[idx]
		}
	}
	return cur, true
}

// splitSegments splits a dotted path into segments, keeping index suffixes
// attached to their field ("a.b[2].c" → ["a", "b[2]", "c"]).
func splitSegments(path string) []string {
	return strings.Split(path, ".")
}

// parseSegment splits one segment into its field name and index list.
// "b[2]" → ("b", [2]); "[0][1]" → ("", [0, 1]); "b" → ("b", nil).
func parseSegment(seg string) (name string, indices []int, err error) {
	if seg == "" {
		return "", nil, fmt.Errorf("empty segment")
	}

	open := strings.IndexByte(seg, '[')
	if open == -1 {
		if strings.ContainsAny(seg, "]*") {
			return "", nil, fmt.Errorf("malformed segment %q", seg)
		}
		return seg, nil, nil
	}

	name = seg[:open]
	rest := seg[open:]
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, fmt.Errorf("malformed segment %q", seg)
		}
		close := strings.IndexByte(rest, ']')
		if close == -1 {
			return "", nil, fmt.Errorf("unterminated index in segment %q", seg)
		}
		idx, convErr := strconv.Atoi(rest[1:close])
		if convErr != nil {
			return "", nil, fmt.Errorf("non-numeric index in segment %q", seg)
		}
		indices = append(indices, idx)
		rest = rest[close+1:]
	}
	return name, indices, nil
}
