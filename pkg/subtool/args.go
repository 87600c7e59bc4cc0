package subtool

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// pathSegment is one step of a map_to_parent_arg path: either an object key
// or an array index.
type pathSegment struct {
	key     string
	index   int
	isIndex bool
}

func (s pathSegment) String() string {
	if s.isIndex {
		return "[" + strconv.Itoa(s.index) + "]"
	}
	return s.key
}

// CloneArgs deep-clones a default-args map through JSON so executions never
// mutate the catalog's stored defaults.
func CloneArgs(src map[string]any) map[string]any {
	if len(src) == 0 {
		return map[string]any{}
	}
	data, err := json.Marshal(src)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

// AssignPath writes value into target at a dotted + indexed path such as
// "date_ranges[0].start_date". Missing intermediate containers are
// materialized: an object when the next segment is a key, an array when it is
// an index. Arrays are grown with placeholder containers as needed.
func AssignPath(target map[string]any, path string, value any) error {
	segs, err := parseArgPath(path)
	if err != nil {
		return err
	}
	if segs[0].isIndex {
		return fmt.Errorf("path %q: top level of parent args is an object, not an array", path)
	}
	_, err = assignSegments(target, segs, value)
	if err != nil {
		return fmt.Errorf("path %q: %w", path, err)
	}
	return nil
}

// assignSegments assigns into container and returns it (arrays reallocate
// when grown, so the caller must store the returned container back).
func assignSegments(container any, segs []pathSegment, value any) (any, error) {
	seg := segs[0]
	last := len(segs) == 1

	if seg.isIndex {
		arr, ok := container.([]any)
		if !ok {
			if container == nil {
				arr = []any{}
			} else {
				return nil, fmt.Errorf("segment %s: expected array, found %T", seg, container)
			}
		}
		for len(arr) <= seg.index {
			if last {
				arr = append(arr, nil)
			} else {
				arr = append(arr, emptyContainerFor(segs[1]))
			}
		}
		if last {
			arr[seg.index] = value
			return arr, nil
		}
		child := arr[seg.index]
		if child == nil {
			child = emptyContainerFor(segs[1])
		}
		updated, err := assignSegments(child, segs[1:], value)
		if err != nil {
			return nil, err
		}
		arr[seg.index] = updated
		return arr, nil
	}

	obj, ok := container.(map[string]any)
	if !ok {
		if container == nil {
			obj = map[string]any{}
		} else {
			return nil, fmt.Errorf("segment %q: expected object, found %T", seg.key, container)
		}
	}
	if last {
		obj[seg.key] = value
		return obj, nil
	}
	child := obj[seg.key]
	if child == nil {
		child = emptyContainerFor(segs[1])
	}
	updated, err := assignSegments(child, segs[1:], value)
	if err != nil {
		return nil, err
	}
	obj[seg.key] = updated
	return obj, nil
}

func emptyContainerFor(next pathSegment) any {
	if next.isIndex {
		return []any{}
	}
	return map[string]any{}
}

// parseArgPath splits "a.b[2].c" into [a b [2] c]. Consecutive indices
// ("rows[0][1]") are allowed.
func parseArgPath(path string) ([]pathSegment, error) {
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}

	var segs []pathSegment
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return nil, fmt.Errorf("empty segment in path %q", path)
		}
		rest := part
		// Leading key before any bracket.
		if idx := strings.IndexByte(rest, '['); idx != 0 {
			key := rest
			if idx > 0 {
				key = rest[:idx]
				rest = rest[idx:]
			} else {
				rest = ""
			}
			segs = append(segs, pathSegment{key: key})
		}
		// Bracketed indices.
		for rest != "" {
			if rest[0] != '[' {
				return nil, fmt.Errorf("unexpected %q after index in path %q", rest, path)
			}
			close := strings.IndexByte(rest, ']')
			if close < 0 {
				return nil, fmt.Errorf("unclosed bracket in path %q", path)
			}
			numeral := rest[1:close]
			n, err := strconv.Atoi(numeral)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid array index %q in path %q", numeral, path)
			}
			segs = append(segs, pathSegment{index: n, isIndex: true})
			rest = rest[close+1:]
		}
	}
	return segs, nil
}
