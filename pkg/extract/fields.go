package extract

// FieldMapping renames one raw payload field to its published schema name.
// Path may reach beyond one level ("dimension_values[0].value").
type FieldMapping struct {
	Name string
	Path string
}

// RenameFields transforms a projected payload so every record exposes the
// schema names instead of the raw fields. Arrays map elementwise; a record
// maps to {Name: value-at-Path} for each mapping that resolves; scalars and
// payloads without mappings pass through unchanged.
func RenameFields(data any, fields []FieldMapping) any {
	if len(fields) == 0 {
		return data
	}

	switch v := data.(type) {
	case []any:
		out := make([]any, 0, len(v))
		for _, el := range v {
			out = append(out, renameRecord(el, fields))
		}
		return out
	case map[string]any:
		return renameRecord(v, fields)
	default:
		return data
	}
}

// renameRecord maps a single record. Non-record elements (scalars inside a
// projected array) pass through unchanged.
func renameRecord(el any, fields []FieldMapping) any {
	rec, ok := el.(map[string]any)
	if !ok {
		return el
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, found := walk(rec, CleanPath(f.Path)); found {
			out[f.Name] = v
		}
	}
	if len(out) == 0 {
		return el
	}
	return out
}
