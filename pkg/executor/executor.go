package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pilotdeck/pilotdeck/pkg/analysis"
	"github.com/pilotdeck/pilotdeck/pkg/events"
	"github.com/pilotdeck/pilotdeck/pkg/llm"
	"github.com/pilotdeck/pilotdeck/pkg/mcp"
	"github.com/pilotdeck/pilotdeck/pkg/prompt"
	"github.com/pilotdeck/pilotdeck/pkg/render"
	"github.com/pilotdeck/pilotdeck/pkg/subtool"
	"github.com/pilotdeck/pilotdeck/pkg/variables"
)

// maxCompletionRetries is how many times the executor's completion is
// retried before the step fails.
const maxCompletionRetries = 3

// defaultExtractName is the variable name for extractor results when the
// model did not pick one.
const defaultExtractName = "extracted"

// Executor is the per-request tool-calling agent. One instance serves one
// request: it accumulates the request's DSL output and writes variables into
// the session store.
type Executor struct {
	client   llm.Client
	subTools *subtool.Executor
	vars     *variables.Store
	pub      events.Publisher
	builder  *prompt.Builder
	logger   *slog.Logger
	dsl      []string
}

// New creates an executor over the session's variable store. pub receives
// progress events for the request this executor serves.
func New(client llm.Client, subTools *subtool.Executor, vars *variables.Store, pub events.Publisher) *Executor {
	if pub == nil {
		pub = events.Discard
	}
	return &Executor{
		client:   client,
		subTools: subTools,
		vars:     vars,
		pub:      pub,
		builder:  prompt.NewBuilder(),
		logger:   slog.With("component", "executor"),
	}
}

// DSL returns the DSL strings accumulated so far, in emission order.
func (e *Executor) DSL() []string {
	return append([]string(nil), e.dsl...)
}

// Execute turns one Pilot instruction into a single tool call and reports
// the outcome. Tool-level failures come back as reports the Pilot can react
// to; only parse failures, exhausted completions, and cancellation surface
// as errors.
func (e *Executor) Execute(ctx context.Context, instruction string) (string, error) {
	catalog := e.subTools.Catalog()
	matched := catalog.Match(instruction)
	if len(matched) == 0 {
		matched = catalog.All()
	}

	resp, err := llm.CompleteWithRetry(ctx, e.client, llm.Request{
		System:   e.builder.BuildExecutorSystem(matched, e.vars.Summaries()),
		Messages: []llm.Message{{Role: llm.RoleUser, Content: instruction}},
	}, maxCompletionRetries)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("executor completion failed: %w", err)
	}

	call, err := ParseCall(resp.Content)
	if err != nil {
		e.logger.Warn("Executor reply did not parse", "error", err)
		return "", fmt.Errorf("PARSE_FAILED: %v", err)
	}
	e.pub.Publish(events.ExecutorCallingToolPayload{
		Type:     events.EventTypeExecutorCallingTool,
		Tool:     call.Tool,
		Variable: call.Variable,
	})

	report, isErr, err := e.dispatch(ctx, call)
	if err != nil {
		return "", err
	}
	e.pub.Publish(events.ExecutorToolResultPayload{
		Type:    events.EventTypeExecutorToolResult,
		Tool:    call.Tool,
		Report:  report,
		IsError: isErr,
	})
	return report, nil
}

func (e *Executor) dispatch(ctx context.Context, call *Call) (string, bool, error) {
	switch call.Tool {
	case "llm":
		return e.runAnalysis(ctx, call)
	case "extractor":
		return e.runExtractor(ctx, call)
	case "table", "line-chart", "card", "alert":
		return e.runUI(call)
	}
	return e.runSubTool(ctx, call)
}

// runSubTool executes a catalog sub-tool and stores the projected result as
// a session variable.
func (e *Executor) runSubTool(ctx context.Context, call *Call) (string, bool, error) {
	st, ok := e.subTools.Catalog().Get(call.Tool)
	if !ok {
		return fmt.Sprintf("NEEDS_INFO: tool %q is not available. Use one of the documented tools or a built-in.", call.Tool), true, nil
	}

	args, problem := e.assembleArgs(st, call)
	if problem != "" {
		return "NEEDS_INFO: " + problem, true, nil
	}

	res, err := e.subTools.Execute(ctx, st.ID, args)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		if errors.Is(err, subtool.ErrMissingInputs) {
			return fmt.Sprintf("NEEDS_INFO: %v.", err), true, nil
		}
		return fmt.Sprintf("success:false. The tool call failed: %v", err), true, nil
	}

	name := call.Variable
	if name == "" {
		name = defaultVariableName(st)
	}
	variable := variables.Variable{
		Name:        name,
		Schema:      res.Schema,
		ActualData:  res.Data,
		Description: st.Description,
		CreatedBy:   st.ID,
	}
	if err := e.vars.Put(variable); err != nil {
		return "", false, fmt.Errorf("storing %s: %w", name, err)
	}

	report := fmt.Sprintf("Stored in '%s'.", name)
	if fields := variable.FieldNames(); len(fields) > 0 {
		refs := make([]string, 0, len(fields))
		for _, f := range fields {
			refs = append(refs, fmt.Sprintf("%s[%s]", name, f))
		}
		report += " Available: " + strings.Join(refs, ", ")
	}
	if res.ExtractionFallback {
		report += " Note: the learned extraction path missed, the unprojected payload was stored."
	}
	return report, false, nil
}

// assembleArgs builds the sub-tool input map: keyed arguments directly,
// positional arguments mapped to declared input names in order, variable
// references resolved against the session store.
func (e *Executor) assembleArgs(st *subtool.SubTool, call *Call) (map[string]any, string) {
	args := make(map[string]any, len(call.Args))
	positional := 0
	for _, arg := range call.Args {
		value := e.resolveArg(arg.Text)
		if arg.Key != "" {
			args[arg.Key] = value
			continue
		}
		if positional >= len(st.Inputs) {
			return nil, fmt.Sprintf("too many positional arguments for %s; it declares %d inputs.", st.ID, len(st.Inputs))
		}
		args[st.Inputs[positional].Name] = value
		positional++
	}
	return args, ""
}

// resolveArg turns raw argument text into a value. var[field] references to
// stored variables inline the projected data; everything else coerces as a
// literal.
func (e *Executor) resolveArg(text string) any {
	if name, field, ok := RefParts(text); ok {
		if v, found := e.vars.Get(name); found {
			if projected, ok := projectVariableField(v, field); ok {
				return projected
			}
			e.logger.Debug("Reference field not found, passing literal text",
				"variable", name, "field", field)
		}
	}
	return CoerceValue(text)
}

// runAnalysis routes llm(data, question) to the analysis pipeline. The Pilot
// gets the summary; rendered visuals go to the DSL accumulator.
func (e *Executor) runAnalysis(ctx context.Context, call *Call) (string, bool, error) {
	question, ok := call.Get("question")
	if q, quoted := unquote(strings.TrimSpace(question)); quoted {
		question = q
	}
	if !ok || strings.TrimSpace(question) == "" {
		return "NEEDS_INFO: llm needs a question argument.", true, nil
	}
	dataText, _ := call.Get("data")
	refs := RefList(dataText)

	outcome, err := analysis.NewRunner(e.client, e.vars).Analyze(ctx, refs, question, e.pub)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		return fmt.Sprintf("The analysis failed: %v. Try rephrasing the question or referencing different data.", err), true, nil
	}

	renderer := render.New(outcome.Runtime, e.vars)
	for _, visual := range outcome.Report.Visuals {
		rendered, err := renderer.Render(visual)
		if err != nil {
			e.logger.Warn("Skipping visual that failed to render", "kind", visual.Kind, "error", err)
			continue
		}
		e.pub.Publish(events.UICreatingPayload{Type: events.EventTypeUICreating, Kind: visual.Kind})
		e.dsl = append(e.dsl, rendered)
	}

	summary := outcome.Report.Summary
	if summary == "" {
		summary = "The analysis ran but produced no summary."
	}
	if call.Variable != "" {
		_ = e.vars.Put(variables.Variable{
			Name:        call.Variable,
			Schema:      map[string]variables.FieldSpec{"summary": {DataType: "string", Description: "analysis summary"}},
			ActualData:  map[string]any{"summary": summary},
			Description: "Analysis summary: " + question,
			CreatedBy:   "llm",
		})
	}
	return summary, false, nil
}

// runExtractor performs the single-shot extraction call over inlined
// variable data.
func (e *Executor) runExtractor(ctx context.Context, call *Call) (string, bool, error) {
	extract, ok := call.Get("extract")
	if inner, quoted := unquote(strings.TrimSpace(extract)); quoted {
		extract = inner
	}
	if !ok || strings.TrimSpace(extract) == "" {
		return "NEEDS_INFO: extractor needs an extract argument describing the value to find.", true, nil
	}
	dataText, _ := call.Get("data")
	refs := RefList(dataText)
	dataBlock, found := e.inlineRefs(refs)
	if !found {
		return "NEEDS_INFO: extractor needs data references to stored variables.", true, nil
	}

	resp, err := llm.CompleteWithRetry(ctx, e.client, llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: e.builder.BuildExtractorPrompt(extract, dataBlock)}},
	}, maxCompletionRetries)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		return fmt.Sprintf("The extraction failed: %v.", err), true, nil
	}

	value := strings.TrimSpace(resp.Content)
	if value == "NOT_FOUND" {
		return "NOT_FOUND", false, nil
	}

	name := call.Variable
	if name == "" {
		name = defaultExtractName
	}
	_ = e.vars.Put(variables.Variable{
		Name:        name,
		Schema:      map[string]variables.FieldSpec{"value": {DataType: "string", Description: extract}},
		ActualData:  map[string]any{"value": value},
		Description: "Extracted: " + extract,
		CreatedBy:   "extractor",
	})
	return fmt.Sprintf("Stored in '%s'.", name), false, nil
}

// runUI renders one UI tool call straight to DSL.
func (e *Executor) runUI(call *Call) (string, bool, error) {
	props := make([]analysis.Prop, 0, len(call.Args))
	for _, arg := range call.Args {
		props = append(props, analysis.Prop{Key: arg.Key, Value: arg.Text})
	}
	rendered, err := render.New(nil, e.vars).Render(analysis.Visual{Kind: call.Tool, Props: props})
	if err != nil {
		return fmt.Sprintf("Could not display the %s: %v. Check the referenced variables.", call.Tool, err), true, nil
	}
	e.pub.Publish(events.UICreatingPayload{Type: events.EventTypeUICreating, Kind: call.Tool})
	e.dsl = append(e.dsl, rendered)
	return "Displayed to user", false, nil
}

// inlineRefs renders referenced variables as fenced JSON blocks for the
// extraction prompt, truncated to the prompt budget.
func (e *Executor) inlineRefs(refs []string) (string, bool) {
	var blocks []string
	for _, ref := range refs {
		name := ref
		field := ""
		if n, f, ok := RefParts(ref); ok {
			name, field = n, f
		}
		v, ok := e.vars.Get(name)
		if !ok {
			continue
		}
		data := v.ActualData
		if field != "" {
			if projected, ok := projectVariableField(v, field); ok {
				data = projected
			}
		}
		encoded, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			encoded = []byte(fmt.Sprintf("%v", data))
		}
		blocks = append(blocks, fmt.Sprintf("Variable %s:\n```json\n%s\n```", ref, encoded))
	}
	if len(blocks) == 0 {
		return "", false
	}
	return mcp.TruncateForPrompt(strings.Join(blocks, "\n\n")), true
}

// projectVariableField extracts one field from a stored variable: across
// list rows, or directly from an object. Single-element projections collapse
// to the element.
func projectVariableField(v variables.Variable, field string) (any, bool) {
	switch data := v.ActualData.(type) {
	case []any:
		col := make([]any, 0, len(data))
		for _, row := range data {
			if m, ok := row.(map[string]any); ok {
				if cell, ok := m[field]; ok {
					col = append(col, cell)
				}
			}
		}
		if len(col) == 0 {
			return nil, false
		}
		if len(col) == 1 {
			return col[0], true
		}
		return col, true
	case map[string]any:
		cell, ok := data[field]
		return cell, ok
	}
	return nil, false
}

// defaultVariableName derives a variable name from the sub-tool's display
// name, falling back to its id.
func defaultVariableName(st *subtool.SubTool) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(st.Name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return st.ID
	}
	return name
}
