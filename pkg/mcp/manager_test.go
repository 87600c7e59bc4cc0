package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilotdeck/pilotdeck/pkg/config"
)

// emptySchema is a minimal valid JSON Schema for test tools.
var emptySchema = json.RawMessage(`{"type":"object"}`)

// testMCPServer holds an in-memory MCP server and its transport pair.
type testMCPServer struct {
	server          *mcpsdk.Server
	clientTransport *mcpsdk.InMemoryTransport
	serverTransport *mcpsdk.InMemoryTransport
}

// startTestServer creates an in-memory MCP server with given tools and connects it.
func startTestServer(t *testing.T, name string, tools map[string]mcpsdk.ToolHandler) *testMCPServer {
	t.Helper()

	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name: name, Version: "test",
	}, nil)

	for toolName, handler := range tools {
		server.AddTool(&mcpsdk.Tool{
			Name:        toolName,
			Description: "test tool: " + toolName,
			InputSchema: emptySchema,
		}, handler)
	}

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	// Start server in background
	go func() {
		_ = server.Run(context.Background(), serverTransport)
	}()

	return &testMCPServer{
		server:          server,
		clientTransport: clientTransport,
		serverTransport: serverTransport,
	}
}

// connectManagerDirect creates a Manager with a pre-wired in-memory transport.
// Bypasses createTransport for unit testing the manager itself.
func connectManagerDirect(t *testing.T, serverName string, transport *mcpsdk.InMemoryTransport) *Manager {
	t.Helper()
	ctx := context.Background()

	m := NewManager(map[string]config.MCPServerConfig{})

	sdkClient := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name: "pilotdeck-test", Version: "test",
	}, nil)

	session, err := sdkClient.Connect(ctx, transport, nil)
	require.NoError(t, err)

	require.NoError(t, m.InjectSession(ctx, serverName, sdkClient, session))

	t.Cleanup(func() { _ = m.Close() })
	return m
}

func echoHandler(text string) mcpsdk.ToolHandler {
	return func(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
		}, nil
	}
}

func TestManager_CatalogsToolsUnderSanitizedNames(t *testing.T) {
	ts := startTestServer(t, "files-server", map[string]mcpsdk.ToolHandler{
		"list_files": echoHandler("ok"),
		"read_file":  echoHandler("ok"),
	})

	m := connectManagerDirect(t, "files", ts.clientTransport)

	tools := m.Tools()
	require.Len(t, tools, 2)

	names := make([]string, len(tools))
	for i, info := range tools {
		names[i] = info.Name
	}
	assert.Contains(t, names, "files__list_files")
	assert.Contains(t, names, "files__read_file")

	info, ok := m.Lookup("files__read_file")
	require.True(t, ok)
	assert.Equal(t, "read_file", info.OriginalName)
	assert.Equal(t, "files", info.ServerName)
	assert.Equal(t, "object", info.InputSchema["type"])

	// Tools() is sorted by sanitized name.
	assert.Equal(t, "files__list_files", tools[0].Name)
	assert.Equal(t, "files__read_file", tools[1].Name)

	assert.Len(t, m.ToolsForServer("files"), 2)
	assert.Empty(t, m.ToolsForServer("unknown"))
}

func TestManager_Call(t *testing.T) {
	ts := startTestServer(t, "weather-server", map[string]mcpsdk.ToolHandler{
		"get_forecast": func(_ context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			var parsed map[string]any
			if err := json.Unmarshal(req.Params.Arguments, &parsed); err != nil {
				return &mcpsdk.CallToolResult{
					Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "parse error: " + err.Error()}},
					IsError: true,
				}, nil
			}
			city, _ := parsed["city"].(string)
			return &mcpsdk.CallToolResult{
				Content: []mcpsdk.Content{&mcpsdk.TextContent{
					Text: `{"city": "` + city + `", "temp_c": 21}`,
				}},
			}, nil
		},
	})

	m := connectManagerDirect(t, "weather", ts.clientTransport)

	result, err := m.Call(context.Background(), "weather__get_forecast", map[string]any{"city": "Oslo"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, `{"city": "Oslo", "temp_c": 21}`, result.Text)
	require.NotNil(t, result.Envelope)
	assert.Contains(t, result.Envelope, "content")
}

func TestManager_Call_ToolErrorIsContent(t *testing.T) {
	ts := startTestServer(t, "flaky-server", map[string]mcpsdk.ToolHandler{
		"always_fails": func(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			return &mcpsdk.CallToolResult{
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "database unavailable"}},
				IsError: true,
			}, nil
		},
	})

	m := connectManagerDirect(t, "flaky", ts.clientTransport)

	// Tool-level errors come back as a result, not a Go error.
	result, err := m.Call(context.Background(), "flaky__always_fails", nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "database unavailable", result.Text)
}

func TestManager_Call_UnknownTool(t *testing.T) {
	m := NewManager(map[string]config.MCPServerConfig{})

	_, err := m.Call(context.Background(), "nope__missing", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrToolNotFound))
}

func TestManager_ToolDefinitions_ProviderLimit(t *testing.T) {
	tools := make(map[string]mcpsdk.ToolHandler, 130)
	for i := 0; i < 130; i++ {
		tools[fmt.Sprintf("tool_%03d", i)] = echoHandler("ok")
	}
	ts := startTestServer(t, "big-server", tools)

	m := connectManagerDirect(t, "big", ts.clientTransport)
	require.Len(t, m.Tools(), 130)

	// OpenAI's function declarations cap at 128; others get the full list.
	assert.Len(t, m.ToolDefinitions(config.ProviderOpenAI), 128)
	assert.Len(t, m.ToolDefinitions(config.ProviderAnthropic), 130)

	defs := m.ToolDefinitions(config.ProviderAnthropic)
	assert.Equal(t, "big__tool_000", defs[0].Name)
	assert.Equal(t, "object", defs[0].InputSchema["type"])
	assert.NotEmpty(t, defs[0].Description)
}

func TestManager_ServerStatuses(t *testing.T) {
	ts := startTestServer(t, "alpha-server", map[string]mcpsdk.ToolHandler{
		"ping_tool": echoHandler("pong"),
	})

	m := NewManager(map[string]config.MCPServerConfig{
		"alpha": {Name: "alpha", Command: "unused"},
		"beta":  {Name: "beta", Command: "unused"},
	})
	t.Cleanup(func() { _ = m.Close() })

	sdkClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "pilotdeck-test", Version: "test"}, nil)
	session, err := sdkClient.Connect(context.Background(), ts.clientTransport, nil)
	require.NoError(t, err)
	require.NoError(t, m.InjectSession(context.Background(), "alpha", sdkClient, session))

	m.mu.Lock()
	m.failedServers["beta"] = "connection refused"
	m.mu.Unlock()

	statuses := m.ServerStatuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "alpha", statuses[0].Name)
	assert.True(t, statuses[0].Connected)
	assert.Equal(t, 1, statuses[0].ToolCount)
	assert.Equal(t, "beta", statuses[1].Name)
	assert.False(t, statuses[1].Connected)
	assert.Equal(t, "connection refused", statuses[1].Error)

	failed := m.FailedServers()
	assert.Equal(t, map[string]string{"beta": "connection refused"}, failed)
}

func TestManager_Close_ClearsCatalog(t *testing.T) {
	ts := startTestServer(t, "closing-server", map[string]mcpsdk.ToolHandler{
		"some_tool": echoHandler("ok"),
	})

	m := connectManagerDirect(t, "closing", ts.clientTransport)
	require.Len(t, m.Tools(), 1)
	require.True(t, m.HasSession("closing"))

	require.NoError(t, m.Close())
	assert.Empty(t, m.Tools())
	assert.False(t, m.HasSession("closing"))
}

func TestManager_RegisterTool_Collision(t *testing.T) {
	m := NewManager(map[string]config.MCPServerConfig{})

	// Two distinct originals that sanitize to the same exposed name.
	m.registerTool("srv", &mcpsdk.Tool{Name: "get it", InputSchema: emptySchema})
	m.registerTool("srv", &mcpsdk.Tool{Name: "get?it", InputSchema: emptySchema})

	infos := m.ToolsForServer("srv")
	require.Len(t, infos, 2)
	assert.NotEqual(t, infos[0].Name, infos[1].Name)

	// Both remain resolvable to their own originals.
	first, ok := m.Lookup(infos[0].Name)
	require.True(t, ok)
	second, ok := m.Lookup(infos[1].Name)
	require.True(t, ok)
	assert.NotEqual(t, first.OriginalName, second.OriginalName)
}
