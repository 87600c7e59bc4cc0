package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// InjectSession injects a pre-connected MCP SDK session into the Manager and
// catalogs the server's tools from it. This is intended for test
// infrastructure that needs to wire in-memory MCP servers without going
// through the real Initialize() transport creation path.
func (m *Manager) InjectSession(ctx context.Context, serverName string, sdkClient *mcpsdk.Client, session *mcpsdk.ClientSession) error {
	if err := m.discoverTools(ctx, serverName, session); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[serverName] = session
	m.clients[serverName] = sdkClient
	delete(m.failedServers, serverName)
	return nil
}
