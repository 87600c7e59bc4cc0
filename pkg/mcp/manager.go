// Package mcp provides MCP (Model Context Protocol) client infrastructure:
// connecting to configured servers, cataloguing their tools under sanitized
// names, and executing tool calls with retry and session recovery.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pilotdeck/pilotdeck/pkg/config"
	"github.com/pilotdeck/pilotdeck/pkg/llm"
	"github.com/pilotdeck/pilotdeck/pkg/version"
)

// ErrToolNotFound indicates a sanitized tool name has no catalog entry.
var ErrToolNotFound = errors.New("tool not found")

// maxOpenAIFunctions is the function-declaration cap of the OpenAI tools API.
const maxOpenAIFunctions = 128

// ToolInfo is one catalogued tool: the exposed sanitized name plus the
// provenance needed to dispatch a call back to its server.
type ToolInfo struct {
	Name         string         `json:"name"`
	OriginalName string         `json:"original_name"`
	ServerName   string         `json:"server_name"`
	Description  string         `json:"description"`
	InputSchema  map[string]any `json:"input_schema"`
}

// ServerStatus summarizes one configured server for status endpoints.
type ServerStatus struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
	ToolCount int    `json:"tool_count"`
}

// Manager owns MCP SDK sessions for all configured servers and the tool
// catalog built from them. One Manager lives for the whole process.
// Thread-safe: sessions and the catalog are accessed from concurrent requests.
type Manager struct {
	servers map[string]config.MCPServerConfig

	mu            sync.RWMutex
	sessions      map[string]*mcpsdk.ClientSession // server name → session
	clients       map[string]*mcpsdk.Client        // server name → client (for reconnection)
	failedServers map[string]string                // server name → error message

	// Tool catalog under sanitized names.
	// Lock ordering: never acquire mu while holding toolMu.
	toolMu   sync.RWMutex
	tools    map[string]*ToolInfo
	byServer map[string][]string // server name → sanitized names, discovery order

	// Per-server mutex for session (re)creation to prevent thundering herd
	reinitMu sync.Map // server name → *sync.Mutex

	logger *slog.Logger
}

// NewManager creates a Manager for the given server definitions.
func NewManager(servers map[string]config.MCPServerConfig) *Manager {
	return &Manager{
		servers:       servers,
		sessions:      make(map[string]*mcpsdk.ClientSession),
		clients:       make(map[string]*mcpsdk.Client),
		failedServers: make(map[string]string),
		tools:         make(map[string]*ToolInfo),
		byServer:      make(map[string][]string),
		logger:        slog.Default(),
	}
}

// Initialize connects to all configured servers and catalogs their tools.
// Servers that fail are recorded in failedServers and skipped; their absence
// is not fatal. Always returns nil today; the error return is retained so the
// signature can evolve without breaking callers.
func (m *Manager) Initialize(ctx context.Context) error {
	for _, name := range m.ServerNames() {
		if err := m.InitializeServer(ctx, name); err != nil {
			m.mu.Lock()
			m.failedServers[name] = err.Error()
			m.mu.Unlock()
			m.logger.Warn("MCP server failed to initialize",
				"server", name, "error", err)
		}
	}
	return nil
}

// InitializeServer connects to a single server and catalogs its tools.
// Returns nil if already connected. Used for startup, lazy recovery, and the
// health monitor's reconnection attempts.
func (m *Manager) InitializeServer(ctx context.Context, serverName string) error {
	muI, _ := m.reinitMu.LoadOrStore(serverName, &sync.Mutex{})
	mu := muI.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	return m.initializeServerLocked(ctx, serverName)
}

// initializeServerLocked performs the actual connection and tool discovery.
// Caller must hold the per-server reinitMu lock.
func (m *Manager) initializeServerLocked(ctx context.Context, serverName string) error {
	// Already connected? (under per-server lock, no TOCTOU race)
	m.mu.RLock()
	if _, exists := m.sessions[serverName]; exists {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()

	serverCfg, ok := m.servers[serverName]
	if !ok {
		return fmt.Errorf("server %q is not configured", serverName)
	}

	transport, err := createTransport(serverCfg)
	if err != nil {
		return fmt.Errorf("failed to create transport for %q: %w", serverName, err)
	}

	initCtx, cancel := context.WithTimeout(ctx, MCPInitTimeout)
	defer cancel()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.GitCommit,
	}, nil)

	session, err := client.Connect(initCtx, transport, nil)
	if err != nil {
		// Close the transport if it implements io.Closer to avoid leaking
		// stdio child processes on failed handshakes.
		if closer, ok := transport.(io.Closer); ok {
			_ = closer.Close()
		}
		return fmt.Errorf("failed to connect to %q: %w", serverName, err)
	}

	if err := m.discoverTools(ctx, serverName, session); err != nil {
		_ = session.Close()
		return fmt.Errorf("tool discovery for %q: %w", serverName, err)
	}

	m.mu.Lock()
	m.sessions[serverName] = session
	m.clients[serverName] = client
	delete(m.failedServers, serverName)
	m.mu.Unlock()

	m.logger.Info("MCP server connected",
		"server", serverName, "tools", len(m.ToolsForServer(serverName)))
	return nil
}

// discoverTools lists the server's tools and registers them under sanitized
// names, replacing any previous registration for this server.
func (m *Manager) discoverTools(ctx context.Context, serverName string, session *mcpsdk.ClientSession) error {
	opCtx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	result, err := session.ListTools(opCtx, nil)
	if err != nil {
		return fmt.Errorf("list tools: %w", err)
	}

	m.unregisterServer(serverName)
	for _, tool := range result.Tools {
		m.registerTool(serverName, tool)
	}
	return nil
}

func (m *Manager) registerTool(serverName string, tool *mcpsdk.Tool) {
	name := SanitizeToolName(serverName, tool.Name)

	m.toolMu.Lock()
	defer m.toolMu.Unlock()

	if existing, taken := m.tools[name]; taken &&
		(existing.ServerName != serverName || existing.OriginalName != tool.Name) {
		resolved := disambiguate(name, serverName, tool.Name)
		m.logger.Warn("Sanitized tool name collision",
			"name", name,
			"server", serverName,
			"tool", tool.Name,
			"resolved", resolved)
		name = resolved
	}

	m.tools[name] = &ToolInfo{
		Name:         name,
		OriginalName: tool.Name,
		ServerName:   serverName,
		Description:  tool.Description,
		InputSchema:  decodeSchema(tool.InputSchema),
	}
	m.byServer[serverName] = append(m.byServer[serverName], name)
}

func (m *Manager) unregisterServer(serverName string) {
	m.toolMu.Lock()
	defer m.toolMu.Unlock()
	for _, name := range m.byServer[serverName] {
		delete(m.tools, name)
	}
	delete(m.byServer, serverName)
}

// decodeSchema converts an SDK input schema into a plain map. A nil or
// undecodable schema degrades to the permissive object schema.
func decodeSchema(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil || out == nil {
		return map[string]any{"type": "object"}
	}
	return out
}

// Lookup resolves a sanitized name to its catalog entry.
func (m *Manager) Lookup(sanitizedName string) (*ToolInfo, bool) {
	m.toolMu.RLock()
	defer m.toolMu.RUnlock()
	info, ok := m.tools[sanitizedName]
	return info, ok
}

// Tools returns the whole catalog sorted by sanitized name.
func (m *Manager) Tools() []*ToolInfo {
	m.toolMu.RLock()
	defer m.toolMu.RUnlock()
	out := make([]*ToolInfo, 0, len(m.tools))
	for _, info := range m.tools {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ToolsForServer returns one server's tools in discovery order.
func (m *Manager) ToolsForServer(serverName string) []*ToolInfo {
	m.toolMu.RLock()
	defer m.toolMu.RUnlock()
	names := m.byServer[serverName]
	out := make([]*ToolInfo, 0, len(names))
	for _, name := range names {
		if info, ok := m.tools[name]; ok {
			out = append(out, info)
		}
	}
	return out
}

// ToolDefinitions adapts the catalog to the function-declaration shape of the
// given provider. Providers with a declaration cap get a truncated list.
func (m *Manager) ToolDefinitions(provider string) []llm.ToolDefinition {
	infos := m.Tools()
	if provider == config.ProviderOpenAI && len(infos) > maxOpenAIFunctions {
		m.logger.Warn("Tool catalog exceeds provider function limit, truncating",
			"provider", provider,
			"total", len(infos),
			"limit", maxOpenAIFunctions)
		infos = infos[:maxOpenAIFunctions]
	}

	defs := make([]llm.ToolDefinition, 0, len(infos))
	for _, info := range infos {
		defs = append(defs, llm.ToolDefinition{
			Name:        info.Name,
			Description: info.Description,
			InputSchema: info.InputSchema,
		})
	}
	return defs
}

// Call executes a tool by sanitized name. Transport failures are retried once
// with a jittered backoff, recreating the session when the failure class
// calls for it.
func (m *Manager) Call(ctx context.Context, sanitizedName string, args map[string]any) (*CallResult, error) {
	info, ok := m.Lookup(sanitizedName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrToolNotFound, sanitizedName)
	}

	params := &mcpsdk.CallToolParams{
		Name:      info.OriginalName,
		Arguments: args,
	}

	result, err := m.callToolOnce(ctx, info.ServerName, params)
	if err == nil {
		return envelopeFromResult(result)
	}

	action := ClassifyError(err)
	if action == NoRetry {
		return nil, err
	}

	m.logger.Info("MCP call failed, retrying",
		"server", info.ServerName, "tool", info.OriginalName,
		"action", action, "error", err)

	backoff := RetryBackoffMin + time.Duration(rand.Int64N(int64(RetryBackoffMax-RetryBackoffMin)))
	select {
	case <-time.After(backoff):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if action == RetryNewSession {
		if err := m.recreateSession(ctx, info.ServerName); err != nil {
			return nil, fmt.Errorf("session recreation failed for %q: %w", info.ServerName, err)
		}
	}

	result, err = m.callToolOnce(ctx, info.ServerName, params)
	if err != nil {
		return nil, fmt.Errorf("retry failed for %s.%s: %w", info.ServerName, info.OriginalName, err)
	}
	return envelopeFromResult(result)
}

func (m *Manager) callToolOnce(ctx context.Context, serverName string, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error) {
	m.mu.RLock()
	session, exists := m.sessions[serverName]
	m.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("no session for server %q", serverName)
	}

	opCtx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	return session.CallTool(opCtx, params)
}

// recreateSession tears down and recreates the session for a server,
// re-running tool discovery. Uses the per-server mutex so concurrent
// recoveries do not stampede.
func (m *Manager) recreateSession(ctx context.Context, serverName string) error {
	muI, _ := m.reinitMu.LoadOrStore(serverName, &sync.Mutex{})
	mu := muI.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	m.mu.Lock()
	if session, exists := m.sessions[serverName]; exists {
		_ = session.Close()
		delete(m.sessions, serverName)
		delete(m.clients, serverName)
	}
	m.mu.Unlock()

	reinitCtx, cancel := context.WithTimeout(ctx, ReinitTimeout)
	defer cancel()

	return m.initializeServerLocked(reinitCtx, serverName)
}

// Ping probes a server's session liveness.
func (m *Manager) Ping(ctx context.Context, serverName string) error {
	m.mu.RLock()
	session, exists := m.sessions[serverName]
	m.mu.RUnlock()
	if !exists {
		return fmt.Errorf("no session for server %q", serverName)
	}
	return session.Ping(ctx, &mcpsdk.PingParams{})
}

// HasSession checks if a server has an active session.
func (m *Manager) HasSession(serverName string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.sessions[serverName]
	return exists
}

// FailedServers returns the servers that failed to initialize and their
// error messages.
func (m *Manager) FailedServers() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]string, len(m.failedServers))
	for k, v := range m.failedServers {
		result[k] = v
	}
	return result
}

// ServerNames returns the configured server names, sorted.
func (m *Manager) ServerNames() []string {
	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServerStatuses summarizes every configured server, sorted by name.
func (m *Manager) ServerStatuses() []ServerStatus {
	statuses := make([]ServerStatus, 0, len(m.servers))
	for _, name := range m.ServerNames() {
		status := ServerStatus{
			Name:      name,
			Connected: m.HasSession(name),
			ToolCount: len(m.ToolsForServer(name)),
		}
		m.mu.RLock()
		status.Error = m.failedServers[name]
		m.mu.RUnlock()
		statuses = append(statuses, status)
	}
	return statuses
}

// Close shuts down all sessions and transports gracefully.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for name, session := range m.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close session %q: %w", name, err)
		}
	}

	m.sessions = make(map[string]*mcpsdk.ClientSession)
	m.clients = make(map[string]*mcpsdk.Client)
	m.failedServers = make(map[string]string)

	// Lock ordering note: mu → toolMu is safe here because no other code
	// path holds toolMu while acquiring mu.
	m.toolMu.Lock()
	m.tools = make(map[string]*ToolInfo)
	m.byServer = make(map[string][]string)
	m.toolMu.Unlock()

	return firstErr
}
