package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilotdeck/pilotdeck/pkg/events"
	"github.com/pilotdeck/pilotdeck/pkg/llm"
	"github.com/pilotdeck/pilotdeck/pkg/mcp"
	"github.com/pilotdeck/pilotdeck/pkg/subtool"
	"github.com/pilotdeck/pilotdeck/pkg/variables"
)

type scriptedClient struct {
	t        *testing.T
	replies  []string
	requests []llm.Request
	err      error
}

func (c *scriptedClient) Provider() string { return "scripted" }

func (c *scriptedClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	c.requests = append(c.requests, req)
	if c.err != nil {
		return llm.Response{}, c.err
	}
	if len(c.requests) > len(c.replies) {
		c.t.Fatalf("script exhausted after %d requests", len(c.requests))
	}
	return llm.Response{Content: c.replies[len(c.requests)-1]}, nil
}

type fakeCaller struct {
	lastTool string
	lastArgs map[string]any
	calls    int
	result   *mcp.CallResult
	err      error
}

func (f *fakeCaller) Call(_ context.Context, name string, args map[string]any) (*mcp.CallResult, error) {
	f.calls++
	f.lastTool = name
	f.lastArgs = args
	return f.result, f.err
}

func (f *fakeCaller) Lookup(string) (*mcp.ToolInfo, bool) { return nil, false }

type recordingPublisher struct {
	payloads []any
}

func (p *recordingPublisher) Publish(payload any) bool {
	p.payloads = append(p.payloads, payload)
	return true
}

func usersEnvelope() map[string]any {
	return map[string]any{
		"content": []any{
			map[string]any{"type": "text", "text": `{"rows": [
				{"metric_values": {"value": 120}},
				{"metric_values": {"value": 95}}
			]}`},
		},
	}
}

func usersSubTool() *subtool.SubTool {
	return &subtool.SubTool{
		ID:          "get_active_users",
		Name:        "Get Active Users",
		Description: "Daily active user counts",
		ParentTool:  "vibefam__run_report",
		ServerName:  "vibefam",
		JSONPath:    "rows[*].metric_values",
		OutputFields: []subtool.OutputField{
			{Name: "users", Path: "value", Type: "number", Description: "daily active users"},
		},
		ParentDefaultArgs: map[string]any{"report": "active_users"},
		Inputs: []subtool.Input{
			{Name: "start", Type: subtool.InputTypeDate, Required: true, MapToParentArg: "date_ranges[0].start_date"},
			{Name: "end", Type: subtool.InputTypeDate, Required: true, MapToParentArg: "date_ranges[0].end_date"},
		},
	}
}

func newExecutor(t *testing.T, client llm.Client, caller *fakeCaller, vars *variables.Store, pub events.Publisher) *Executor {
	t.Helper()
	catalog := subtool.NewCatalog()
	st := usersSubTool()
	catalog.AddFile(&subtool.LearningFile{MCPName: st.ServerName, SubTools: []subtool.SubTool{*st}})
	return New(client, subtool.NewExecutor(catalog, caller), vars, pub)
}

func TestExecute_SubToolStoresVariable(t *testing.T) {
	client := &scriptedClient{t: t, replies: []string{
		"result: get_active_users(start: 2025-11-01, end: 2025-11-30)\nDONE: fetched the active users",
	}}
	caller := &fakeCaller{result: &mcp.CallResult{Envelope: usersEnvelope()}}
	vars := variables.NewStore()
	pub := &recordingPublisher{}
	ex := newExecutor(t, client, caller, vars, pub)

	report, err := ex.Execute(context.Background(), "Fetch active users for November using Get Active Users")
	require.NoError(t, err)
	assert.Equal(t, "Stored in 'result'. Available: result[users]", report)

	stored, ok := vars.Get("result")
	require.True(t, ok)
	assert.Equal(t, []any{
		map[string]any{"users": float64(120)},
		map[string]any{"users": float64(95)},
	}, stored.ActualData)
	assert.Equal(t, "get_active_users", stored.CreatedBy)

	// parent args assembled from the call's keyed values
	assert.Equal(t, "vibefam__run_report", caller.lastTool)
	assert.Equal(t, map[string]any{
		"report": "active_users",
		"date_ranges": []any{
			map[string]any{"start_date": "2025-11-01", "end_date": "2025-11-30"},
		},
	}, caller.lastArgs)

	// instruction matched the sub-tool, so its docs were in the system prompt
	require.NotEmpty(t, client.requests)
	assert.Contains(t, client.requests[0].System, "Get Active Users")

	require.Len(t, pub.payloads, 2)
	calling, ok := pub.payloads[0].(events.ExecutorCallingToolPayload)
	require.True(t, ok)
	assert.Equal(t, "get_active_users", calling.Tool)
	assert.Equal(t, "result", calling.Variable)
	result, ok := pub.payloads[1].(events.ExecutorToolResultPayload)
	require.True(t, ok)
	assert.False(t, result.IsError)
	assert.Contains(t, result.Report, "Stored in 'result'")
}

func TestExecute_PositionalArgsMapToDeclaredInputs(t *testing.T) {
	client := &scriptedClient{t: t, replies: []string{
		"result: get_active_users(2025-11-01, 2025-11-30)",
	}}
	caller := &fakeCaller{result: &mcp.CallResult{Envelope: usersEnvelope()}}
	ex := newExecutor(t, client, caller, variables.NewStore(), events.Discard)

	_, err := ex.Execute(context.Background(), "fetch users")
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"start_date": "2025-11-01", "end_date": "2025-11-30"},
	}, caller.lastArgs["date_ranges"])
}

func TestExecute_ReferenceArgResolves(t *testing.T) {
	client := &scriptedClient{t: t, replies: []string{
		"result: get_active_users(start: range[from], end: 2025-11-30)",
	}}
	caller := &fakeCaller{result: &mcp.CallResult{Envelope: usersEnvelope()}}
	vars := variables.NewStore()
	require.NoError(t, vars.Put(variables.Variable{
		Name:       "range",
		ActualData: map[string]any{"from": "2025-11-01"},
	}))
	ex := newExecutor(t, client, caller, vars, events.Discard)

	_, err := ex.Execute(context.Background(), "fetch users")
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"start_date": "2025-11-01", "end_date": "2025-11-30"},
	}, caller.lastArgs["date_ranges"])
}

func TestExecute_DefaultVariableName(t *testing.T) {
	client := &scriptedClient{t: t, replies: []string{
		"get_active_users(start: 2025-11-01, end: 2025-11-30)",
	}}
	caller := &fakeCaller{result: &mcp.CallResult{Envelope: usersEnvelope()}}
	vars := variables.NewStore()
	ex := newExecutor(t, client, caller, vars, events.Discard)

	report, err := ex.Execute(context.Background(), "fetch users")
	require.NoError(t, err)
	assert.Contains(t, report, "Stored in 'get_active_users'")
	_, ok := vars.Get("get_active_users")
	assert.True(t, ok)
}

func TestExecute_UnknownToolNeedsInfo(t *testing.T) {
	client := &scriptedClient{t: t, replies: []string{"fetch_unicorns(color: pink)"}}
	caller := &fakeCaller{}
	pub := &recordingPublisher{}
	ex := newExecutor(t, client, caller, variables.NewStore(), pub)

	report, err := ex.Execute(context.Background(), "find unicorns")
	require.NoError(t, err)
	assert.Contains(t, report, "NEEDS_INFO")
	assert.Contains(t, report, "fetch_unicorns")
	assert.Zero(t, caller.calls)

	result, ok := pub.payloads[len(pub.payloads)-1].(events.ExecutorToolResultPayload)
	require.True(t, ok)
	assert.True(t, result.IsError)
}

func TestExecute_MissingInputsNeedsInfo(t *testing.T) {
	client := &scriptedClient{t: t, replies: []string{
		"result: get_active_users(start: 2025-11-01)",
	}}
	caller := &fakeCaller{}
	ex := newExecutor(t, client, caller, variables.NewStore(), events.Discard)

	report, err := ex.Execute(context.Background(), "fetch users")
	require.NoError(t, err)
	assert.Contains(t, report, "NEEDS_INFO")
	assert.Contains(t, report, "end")
	assert.Zero(t, caller.calls)
}

func TestExecute_ParentFailureReport(t *testing.T) {
	client := &scriptedClient{t: t, replies: []string{
		"result: get_active_users(start: 2025-11-01, end: 2025-11-30)",
	}}
	caller := &fakeCaller{err: errors.New("connection reset")}
	ex := newExecutor(t, client, caller, variables.NewStore(), events.Discard)

	report, err := ex.Execute(context.Background(), "fetch users")
	require.NoError(t, err)
	assert.Contains(t, report, "success:false")
	assert.Contains(t, report, "connection reset")
}

func TestExecute_ParseFailure(t *testing.T) {
	client := &scriptedClient{t: t, replies: []string{
		"I am not sure which tool to use here.",
	}}
	pub := &recordingPublisher{}
	ex := newExecutor(t, client, &fakeCaller{}, variables.NewStore(), pub)

	_, err := ex.Execute(context.Background(), "do something")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PARSE_FAILED")
	assert.Empty(t, pub.payloads, "no tool events when nothing was parsed")
}

func TestExecute_UIToolAppendsDSL(t *testing.T) {
	client := &scriptedClient{t: t, replies: []string{
		`card(title: "Total", value: 42)` + "\nDONE: displayed the total",
	}}
	pub := &recordingPublisher{}
	ex := newExecutor(t, client, &fakeCaller{}, variables.NewStore(), pub)

	report, err := ex.Execute(context.Background(), "show the total as a card")
	require.NoError(t, err)
	assert.Equal(t, "Displayed to user", report)
	require.Len(t, ex.DSL(), 1)
	assert.Equal(t, `[card title="Total" value="42.00"]`, ex.DSL()[0])

	var kinds []string
	for _, payload := range pub.payloads {
		if p, ok := payload.(events.UICreatingPayload); ok {
			kinds = append(kinds, p.Kind)
		}
	}
	assert.Equal(t, []string{"card"}, kinds)
}

func TestExecute_UIFailureReportsToPilot(t *testing.T) {
	client := &scriptedClient{t: t, replies: []string{
		"card(title: \"Total\")",
	}}
	ex := newExecutor(t, client, &fakeCaller{}, variables.NewStore(), events.Discard)

	report, err := ex.Execute(context.Background(), "show a card")
	require.NoError(t, err)
	assert.Contains(t, report, "Could not display the card")
	assert.Empty(t, ex.DSL())
}

func TestExecute_AnalysisFlow(t *testing.T) {
	client := &scriptedClient{t: t, replies: []string{
		`insights: llm(data:[active_users], question: "How many users total?")`,
		"total_users: sum(active_users[users])",
		"[report]\nVISUAL_1: card(title: \"Total users\", value: total_users)\n[/report]\n[summary]\nThere were 215 active users in total.\n[/summary]",
	}}
	vars := variables.NewStore()
	require.NoError(t, vars.Put(variables.Variable{
		Name:   "active_users",
		Schema: map[string]variables.FieldSpec{"users": {DataType: "number"}},
		ActualData: []any{
			map[string]any{"users": float64(120)},
			map[string]any{"users": float64(95)},
		},
	}))
	pub := &recordingPublisher{}
	ex := newExecutor(t, client, &fakeCaller{}, vars, pub)

	report, err := ex.Execute(context.Background(), "analyze the active users")
	require.NoError(t, err)
	assert.Equal(t, "There were 215 active users in total.", report)

	require.Len(t, ex.DSL(), 1)
	assert.Equal(t, `[card title="Total users" value="215.00"]`, ex.DSL()[0])

	stored, ok := vars.Get("insights")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"summary": "There were 215 active users in total."}, stored.ActualData)

	var phases []string
	for _, payload := range pub.payloads {
		if p, ok := payload.(events.AnalysisPhasePayload); ok {
			phases = append(phases, p.Phase)
		}
	}
	assert.Equal(t, []string{"planning", "executing", "reporting"}, phases)
}

func TestExecute_AnalysisNeedsQuestion(t *testing.T) {
	client := &scriptedClient{t: t, replies: []string{"llm(data:[active_users])"}}
	ex := newExecutor(t, client, &fakeCaller{}, variables.NewStore(), events.Discard)

	report, err := ex.Execute(context.Background(), "analyze")
	require.NoError(t, err)
	assert.Contains(t, report, "NEEDS_INFO")
	assert.Contains(t, report, "question")
}

func TestExecute_ExtractorStoresValue(t *testing.T) {
	client := &scriptedClient{t: t, replies: []string{
		`peak: extractor(data:[active_users], extract: "the highest user count")`,
		"120",
	}}
	vars := variables.NewStore()
	require.NoError(t, vars.Put(variables.Variable{
		Name:       "active_users",
		ActualData: []any{map[string]any{"users": float64(120)}},
	}))
	ex := newExecutor(t, client, &fakeCaller{}, vars, events.Discard)

	report, err := ex.Execute(context.Background(), "extract the peak")
	require.NoError(t, err)
	assert.Equal(t, "Stored in 'peak'.", report)

	stored, ok := vars.Get("peak")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"value": "120"}, stored.ActualData)

	// extraction prompt carried the inlined variable data
	require.Len(t, client.requests, 2)
	assert.Contains(t, client.requests[1].Messages[0].Content, "active_users")
	assert.Contains(t, client.requests[1].Messages[0].Content, "120")
}

func TestExecute_ExtractorNotFound(t *testing.T) {
	client := &scriptedClient{t: t, replies: []string{
		`missing: extractor(data:[active_users], extract: "the CFO's shoe size")`,
		"NOT_FOUND",
	}}
	vars := variables.NewStore()
	require.NoError(t, vars.Put(variables.Variable{
		Name:       "active_users",
		ActualData: []any{map[string]any{"users": float64(120)}},
	}))
	ex := newExecutor(t, client, &fakeCaller{}, vars, events.Discard)

	report, err := ex.Execute(context.Background(), "extract something odd")
	require.NoError(t, err)
	assert.Equal(t, "NOT_FOUND", report)
	_, ok := vars.Get("missing")
	assert.False(t, ok)
}

func TestExecute_ExtractorWithoutDataNeedsInfo(t *testing.T) {
	client := &scriptedClient{t: t, replies: []string{
		`extractor(extract: "anything")`,
	}}
	ex := newExecutor(t, client, &fakeCaller{}, variables.NewStore(), events.Discard)

	report, err := ex.Execute(context.Background(), "extract")
	require.NoError(t, err)
	assert.Contains(t, report, "NEEDS_INFO")
}

func TestExecute_CompletionFailure(t *testing.T) {
	client := &scriptedClient{t: t, err: errors.New("upstream 500")}
	ex := newExecutor(t, client, &fakeCaller{}, variables.NewStore(), events.Discard)

	_, err := ex.Execute(context.Background(), "do anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executor completion failed")
	assert.Len(t, client.requests, maxCompletionRetries+1)
}

func TestExecute_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &scriptedClient{t: t, replies: []string{"unused"}}
	ex := newExecutor(t, client, &fakeCaller{}, variables.NewStore(), events.Discard)

	_, err := ex.Execute(ctx, "anything")
	require.ErrorIs(t, err, context.Canceled)
}
