package subtool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/pilotdeck/pilotdeck/pkg/extract"
	"github.com/pilotdeck/pilotdeck/pkg/mcp"
	"github.com/pilotdeck/pilotdeck/pkg/variables"
)

var (
	// ErrSubToolNotFound indicates the requested sub-tool is not in the catalog.
	ErrSubToolNotFound = errors.New("sub-tool not found")
	// ErrMissingInputs indicates required inputs were not supplied.
	ErrMissingInputs = errors.New("missing required inputs")
	// ErrInvalidArgs indicates assembled parent args violate the parent schema.
	ErrInvalidArgs = errors.New("invalid arguments")
	// ErrParentCallFailed wraps a failed parent MCP call.
	ErrParentCallFailed = errors.New("parent call failed")
)

// ParentCaller is the slice of the MCP manager the executor needs.
type ParentCaller interface {
	Call(ctx context.Context, sanitizedName string, args map[string]any) (*mcp.CallResult, error)
	Lookup(sanitizedName string) (*mcp.ToolInfo, bool)
}

// Result is a completed sub-tool execution: the published schema and the
// projected, field-renamed payload. ExtractionFallback marks runs where the
// projection path missed and the unwrapped payload was returned instead.
type Result struct {
	Schema             map[string]variables.FieldSpec
	Data               any
	ExtractionFallback bool
}

// Executor runs sub-tools: merges defaults, assembles nested parent args,
// validates them against the parent's input schema, performs the MCP call,
// and projects the response.
type Executor struct {
	catalog *Catalog
	caller  ParentCaller
	logger  *slog.Logger

	// Compiled parent schemas, keyed by sanitized parent tool name.
	// Tools whose schema fails to compile skip validation (warned once).
	schemaMu     sync.Mutex
	schemas      map[string]*jsonschema.Schema
	schemaFailed map[string]bool
}

// NewExecutor creates an executor over the catalog and MCP manager.
func NewExecutor(catalog *Catalog, caller ParentCaller) *Executor {
	return &Executor{
		catalog:      catalog,
		caller:       caller,
		logger:       slog.Default().With("component", "subtool.executor"),
		schemas:      make(map[string]*jsonschema.Schema),
		schemaFailed: make(map[string]bool),
	}
}

// Catalog exposes the executor's catalog.
func (e *Executor) Catalog() *Catalog {
	return e.catalog
}

// Execute runs one sub-tool with the supplied input values.
func (e *Executor) Execute(ctx context.Context, subToolID string, args map[string]any) (*Result, error) {
	st, ok := e.catalog.Get(subToolID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSubToolNotFound, subToolID)
	}

	// 1. Start from the learned defaults.
	parentArgs := CloneArgs(st.ParentDefaultArgs)

	// 2. Map declared inputs into the parent arg tree. Inputs with a learned
	// default fill in when the caller omitted them.
	var missing []string
	for _, input := range st.Inputs {
		value, supplied := args[input.Name]
		if !supplied {
			if input.Default != nil {
				value = input.Default
			} else {
				if input.Required {
					missing = append(missing, input.Name)
				}
				continue
			}
		}
		if input.MapToParentArg == "" {
			continue
		}
		if err := AssignPath(parentArgs, input.MapToParentArg, value); err != nil {
			return nil, fmt.Errorf("input %q: %w", input.Name, err)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingInputs, strings.Join(missing, ", "))
	}

	for name := range args {
		if !st.declaresInput(name) {
			e.logger.Debug("Ignoring undeclared input", "sub_tool", st.ID, "input", name)
		}
	}

	// 3. Validate against the parent's input schema before spending a call.
	if err := e.validateParentArgs(st.ParentTool, parentArgs); err != nil {
		return nil, err
	}

	// 4. Parent MCP call.
	callResult, err := e.caller.Call(ctx, st.ParentTool, parentArgs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrParentCallFailed, err.Error())
	}
	if callResult.IsError {
		return nil, fmt.Errorf("%w: %s", ErrParentCallFailed, callResult.Text)
	}

	// 5. Unwrap and project.
	unwrapped := extract.Unwrap(callResult.Envelope)
	data := unwrapped
	fallback := false
	if st.JSONPath != "" {
		extracted, found := extract.Extract(unwrapped, st.JSONPath)
		if found {
			data = extracted
		} else {
			fallback = true
			e.logger.Warn("Projection path missed, returning unwrapped payload",
				"sub_tool", st.ID, "json_path", st.JSONPath)
		}
	}

	// 6. Rename raw fields to the published schema.
	data = extract.RenameFields(data, fieldMappings(st.OutputFields))

	return &Result{
		Schema:             st.OutputSchema(),
		Data:               data,
		ExtractionFallback: fallback,
	}, nil
}

func (st *SubTool) declaresInput(name string) bool {
	for _, input := range st.Inputs {
		if input.Name == name {
			return true
		}
	}
	return false
}

// OutputSchema derives the published field schema from the output fields.
func (st *SubTool) OutputSchema() map[string]variables.FieldSpec {
	schema := make(map[string]variables.FieldSpec, len(st.OutputFields))
	for _, f := range st.OutputFields {
		schema[f.Name] = variables.FieldSpec{
			Description: f.Description,
			DataType:    f.Type,
			SourcePath:  f.Path,
		}
	}
	return schema
}

func fieldMappings(fields []OutputField) []extract.FieldMapping {
	out := make([]extract.FieldMapping, 0, len(fields))
	for _, f := range fields {
		out = append(out, extract.FieldMapping{Name: f.Name, Path: f.Path})
	}
	return out
}

// validateParentArgs checks assembled args against the parent tool's input
// schema. Missing parent tools and uncompilable schemas skip validation.
func (e *Executor) validateParentArgs(parentTool string, parentArgs map[string]any) error {
	schema := e.parentSchema(parentTool)
	if schema == nil {
		return nil
	}

	// Round-trip through JSON so numeric types match what the wire carries.
	normalized, err := jsonNormalize(parentArgs)
	if err != nil {
		return nil
	}
	if err := schema.Validate(normalized); err != nil {
		return fmt.Errorf("%w for %s: %s", ErrInvalidArgs, parentTool, err.Error())
	}
	return nil
}

// parentSchema returns the compiled schema for a parent tool, compiling and
// caching on first use. Returns nil when no usable schema exists.
func (e *Executor) parentSchema(parentTool string) *jsonschema.Schema {
	e.schemaMu.Lock()
	defer e.schemaMu.Unlock()

	if schema, ok := e.schemas[parentTool]; ok {
		return schema
	}
	if e.schemaFailed[parentTool] {
		return nil
	}

	info, ok := e.caller.Lookup(parentTool)
	if !ok || len(info.InputSchema) == 0 {
		e.schemaFailed[parentTool] = true
		return nil
	}

	schema, err := compileSchema(info.InputSchema)
	if err != nil {
		e.schemaFailed[parentTool] = true
		e.logger.Warn("Parent input schema does not compile, skipping validation",
			"tool", parentTool, "error", err)
		return nil
	}
	e.schemas[parentTool] = schema
	return schema
}

func compileSchema(doc map[string]any) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", normalizeSchemaDoc(doc)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// normalizeSchemaDoc round-trips the schema document through JSON so the
// compiler sees canonical JSON value types.
func normalizeSchemaDoc(doc map[string]any) any {
	data, err := json.Marshal(doc)
	if err != nil {
		return doc
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return doc
	}
	return out
}

func jsonNormalize(v map[string]any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
