package learn

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pilotdeck/pilotdeck/pkg/events"
	"github.com/pilotdeck/pilotdeck/pkg/extract"
	"github.com/pilotdeck/pilotdeck/pkg/llm"
	"github.com/pilotdeck/pilotdeck/pkg/mcp"
	"github.com/pilotdeck/pilotdeck/pkg/prompt"
	"github.com/pilotdeck/pilotdeck/pkg/subtool"
)

// DefaultMaxIterations bounds one learning run. Format-error feedback turns
// count toward the bound.
const DefaultMaxIterations = 50

// ToolSource is the slice of the MCP manager the learner depends on.
type ToolSource interface {
	ToolsForServer(serverName string) []*mcp.ToolInfo
	Lookup(sanitizedName string) (*mcp.ToolInfo, bool)
	Call(ctx context.Context, sanitizedName string, args map[string]any) (*mcp.CallResult, error)
}

// Learner hosts the learning loop and writes the per-MCP learning files.
type Learner struct {
	tools   ToolSource
	client  llm.Client
	model   string
	dir     string
	builder *prompt.Builder
	logger  *slog.Logger

	// MaxIterations may be adjusted before Run.
	MaxIterations int
}

// NewLearner creates a Learner writing files under dir. model is recorded in
// each learning file as modelUsed.
func NewLearner(tools ToolSource, client llm.Client, model, dir string) *Learner {
	return &Learner{
		tools:         tools,
		client:        client,
		model:         model,
		dir:           dir,
		builder:       prompt.NewBuilder(),
		logger:        slog.With("component", "learn"),
		MaxIterations: DefaultMaxIterations,
	}
}

// runState accumulates everything the agent emits before completion.
type runState struct {
	subTools  []subtool.SubTool
	inputs    []subtool.DocumentedInput
	workflows []subtool.Workflow
	insights  []string
}

// Run learns the given servers' tools and returns the learning file paths it
// wrote. Progress is published to pub; pass events.Discard when nothing is
// listening. The run survives client disconnects when the caller hands it a
// non-request context.
func (l *Learner) Run(ctx context.Context, servers []string, pub events.Publisher) ([]string, error) {
	var native []*mcp.ToolInfo
	for _, server := range servers {
		native = append(native, l.tools.ToolsForServer(server)...)
	}
	if len(native) == 0 {
		return nil, fmt.Errorf("no tools discovered for %s", strings.Join(servers, ", "))
	}

	system := l.builder.BuildLearningSystem(native)
	messages := []llm.Message{{
		Role:    llm.RoleUser,
		Content: "Begin learning the tools now.",
	}}

	state := &runState{}
	l.logger.Info("Learning run started", "servers", strings.Join(servers, ","), "tools", len(native))

	for iteration := 1; iteration <= l.MaxIterations; iteration++ {
		resp, err := l.client.Complete(ctx, llm.Request{System: system, Messages: messages})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.logger.Warn("Learning completion failed", "iteration", iteration, "error", err)
			messages = append(messages, llm.Message{
				Role:    llm.RoleUser,
				Content: fmt.Sprintf("The previous request failed (%v). Continue from where you left off.", err),
			})
			continue
		}
		if resp.Empty() {
			messages = append(messages, llm.Message{
				Role:    llm.RoleUser,
				Content: "Your reply was empty. Continue with exactly one tagged block.",
			})
			continue
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})

		parsed := ParseReply(resp.Content)
		if parsed.IsMalformed {
			l.logger.Debug("Malformed learning reply", "iteration", iteration, "error", parsed.ErrorMessage)
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt.LearningFormatReminder})
			continue
		}

		feedback, done, err := l.handleBlock(ctx, parsed, state, pub)
		if err != nil {
			return nil, err
		}
		if done {
			return l.writeFiles(state, native, servers)
		}
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: feedback})
	}

	// Bound exhausted without [LEARNING_COMPLETE]: salvage whatever was
	// accumulated rather than discarding paid-for tool exploration.
	if len(state.subTools)+len(state.inputs)+len(state.workflows) > 0 {
		l.logger.Warn("Learning hit the iteration bound, writing partial results",
			"sub_tools", len(state.subTools))
		return l.writeFiles(state, native, servers)
	}
	return nil, fmt.Errorf("learning did not complete within %d iterations", l.MaxIterations)
}

// handleBlock dispatches one parsed block. It returns the user-turn feedback
// for the next iteration, or done=true on [LEARNING_COMPLETE].
func (l *Learner) handleBlock(ctx context.Context, parsed *ParsedReply, state *runState, pub events.Publisher) (feedback string, done bool, err error) {
	switch parsed.Kind {
	case BlockCallTool:
		var call CallToolPayload
		if decodeErr := parsed.DecodeBody(&call); decodeErr != nil || call.Tool == "" {
			return "The CALL_TOOL body must be {\"tool\": \"...\", \"args\": {...}}. Try again.", false, nil
		}
		pub.Publish(events.LearningToolCallPayload{
			Type: events.EventTypeLearningToolCall,
			Tool: call.Tool,
			Args: call.Args,
		})
		observation, isErr := l.callTool(ctx, call)
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		pub.Publish(events.LearningToolResponsePayload{
			Type:    events.EventTypeLearningToolResponse,
			Tool:    call.Tool,
			Chars:   len(observation),
			IsError: isErr,
		})
		return observation, false, nil

	case BlockBrowseWeb:
		return "Web browsing is unavailable in this environment. Continue with tool calls and what you already know.", false, nil

	case BlockInputLearned:
		var input subtool.DocumentedInput
		if decodeErr := parsed.DecodeBody(&input); decodeErr != nil || input.Tool == "" || input.Name == "" {
			return "The INPUT_LEARNED body must name at least \"tool\" and \"name\". Try again.", false, nil
		}
		state.inputs = append(state.inputs, input)
		pub.Publish(events.InputDocumentedPayload{
			Type: events.EventTypeInputDocumented,
			Tool: input.Tool,
			Name: input.Name,
		})
		return fmt.Sprintf("Recorded input %q for %s. Continue.", input.Name, input.Tool), false, nil

	case BlockSubTool:
		var st subtool.SubTool
		if decodeErr := parsed.DecodeBody(&st); decodeErr != nil || st.ID == "" || st.ParentTool == "" {
			return "The SUB_TOOL body must include at least \"id\" and \"parent_tool\". Try again.", false, nil
		}
		state.subTools = append(state.subTools, st)
		pub.Publish(events.SubToolCreatedPayload{
			Type: events.EventTypeSubToolCreated,
			ID:   st.ID,
			Name: st.Name,
		})
		return fmt.Sprintf("Recorded sub-tool %q. Continue, or emit [LEARNING_COMPLETE] when the tools are covered.", st.ID), false, nil

	case BlockWorkflow:
		var wf subtool.Workflow
		if decodeErr := parsed.DecodeBody(&wf); decodeErr != nil || wf.UserTask == "" {
			return "The WORKFLOW body must include at least \"userTask\" and \"steps\". Try again.", false, nil
		}
		state.workflows = append(state.workflows, wf)
		return fmt.Sprintf("Recorded workflow %q. Continue.", wf.ID), false, nil

	case BlockComplete:
		var complete CompletePayload
		if decodeErr := parsed.DecodeBody(&complete); decodeErr != nil {
			return "The LEARNING_COMPLETE body must be {\"insights\": [...]}. Try again.", false, nil
		}
		state.insights = append(state.insights, complete.Insights...)
		return "", true, nil
	}

	return prompt.LearningFormatReminder, false, nil
}

// callTool executes one [CALL_TOOL] request and renders the observation that
// becomes the next user turn: the unwrapped payload as fenced JSON, truncated
// to the prompt injection limit.
func (l *Learner) callTool(ctx context.Context, call CallToolPayload) (observation string, isErr bool) {
	if _, ok := l.tools.Lookup(call.Tool); !ok {
		return fmt.Sprintf("Tool %q does not exist. Check the available tools list and use the exact name.", call.Tool), true
	}

	result, err := l.tools.Call(ctx, call.Tool, call.Args)
	if err != nil {
		return fmt.Sprintf("Tool call failed: %v. Adjust the arguments or try another tool.", err), true
	}

	payload := extract.Unwrap(result.Envelope)
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		data = []byte(result.Text)
	}

	fenced := "Result of " + call.Tool + ":\n```json\n" + string(data) + "\n```"
	return mcp.TruncateForPrompt(fenced), result.IsError
}

// writeFiles partitions the accumulated state by MCP server and writes one
// learning file per server. Returns the written paths in server order.
func (l *Learner) writeFiles(state *runState, native []*mcp.ToolInfo, servers []string) ([]string, error) {
	files := make(map[string]*subtool.LearningFile)
	ensure := func(server string) *subtool.LearningFile {
		if f, ok := files[server]; ok {
			return f
		}
		f := &subtool.LearningFile{
			MCPName:   server,
			Version:   l.nextVersion(server),
			LearnedAt: time.Now().UTC(),
			ModelUsed: l.model,
		}
		files[server] = f
		return f
	}

	for _, info := range native {
		f := ensure(info.ServerName)
		f.OriginalTools = append(f.OriginalTools, subtool.OriginalTool{
			Name:        info.Name,
			Description: info.Description,
		})
	}

	// Index sub-tool id -> server for workflow partitioning below.
	subToolServer := make(map[string]string)
	for i := range state.subTools {
		st := &state.subTools[i]
		server := l.serverFor(st.ParentTool)
		st.ServerName = server
		subToolServer[st.ID] = server
		f := ensure(server)
		f.SubTools = append(f.SubTools, *st)
	}

	for _, input := range state.inputs {
		f := ensure(l.serverFor(input.Tool))
		f.DocumentedInputs = append(f.DocumentedInputs, input)
	}

	for i := range state.workflows {
		wf := &state.workflows[i]
		server := l.workflowServer(wf, subToolServer, servers)
		wf.ServerName = server
		f := ensure(server)
		f.Workflows = append(f.Workflows, *wf)
	}

	// Insights are run-wide; replicate into every written file.
	for _, f := range files {
		f.Insights = state.insights
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating learnings directory: %w", err)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	paths := make([]string, 0, len(names))
	for _, name := range names {
		data, err := json.MarshalIndent(files[name], "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding learning file for %s: %w", name, err)
		}
		path := filepath.Join(l.dir, name+".json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", path, err)
		}
		l.logger.Info("Learning file written",
			"path", path,
			"sub_tools", len(files[name].SubTools),
			"workflows", len(files[name].Workflows))
		paths = append(paths, path)
	}
	return paths, nil
}

// serverFor resolves the owning MCP server of a sanitized tool name, falling
// back to the name's server prefix when the tool is no longer in the catalog.
func (l *Learner) serverFor(sanitizedName string) string {
	if info, ok := l.tools.Lookup(sanitizedName); ok {
		return info.ServerName
	}
	if i := strings.Index(sanitizedName, "__"); i > 0 {
		return sanitizedName[:i]
	}
	return sanitizedName
}

// workflowServer picks the MCP a workflow belongs to: the server of the first
// step that names a recorded sub-tool, else the run's first server.
func (l *Learner) workflowServer(wf *subtool.Workflow, subToolServer map[string]string, servers []string) string {
	if wf.ServerName != "" {
		return wf.ServerName
	}
	for _, step := range wf.Steps {
		for id, server := range subToolServer {
			if strings.Contains(step, id) {
				return server
			}
		}
	}
	if len(servers) > 0 {
		return servers[0]
	}
	return "unknown"
}

// nextVersion returns 1 or the stored version + 1 when the MCP was learned
// before.
func (l *Learner) nextVersion(server string) int {
	data, err := os.ReadFile(filepath.Join(l.dir, server+".json"))
	if err != nil {
		return 1
	}
	var existing subtool.LearningFile
	if err := json.Unmarshal(data, &existing); err != nil {
		return 1
	}
	return existing.Version + 1
}
