package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// HealthStatus captures the health check result for a single MCP server.
type HealthStatus struct {
	Server    string    `json:"server"`
	Healthy   bool      `json:"healthy"`
	LastCheck time.Time `json:"last_check"`
	Error     string    `json:"error,omitempty"`
	ToolCount int       `json:"tool_count"`
}

// HealthMonitor periodically probes each configured MCP server through the
// Manager. Servers that failed at startup get reconnection attempts; broken
// sessions are recreated.
type HealthMonitor struct {
	manager *Manager

	checkInterval time.Duration
	pingTimeout   time.Duration

	// Current status per server
	statuses   map[string]*HealthStatus
	statusesMu sync.RWMutex

	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger
}

// NewHealthMonitor creates a health monitor over the given manager.
func NewHealthMonitor(manager *Manager) *HealthMonitor {
	return &HealthMonitor{
		manager:       manager,
		checkInterval: MCPHealthInterval,
		pingTimeout:   MCPHealthPingTimeout,
		statuses:      make(map[string]*HealthStatus),
		logger:        slog.Default(),
	}
}

// Start launches the background health check loop.
// Calling Start on an already-running monitor is a no-op.
func (m *HealthMonitor) Start(ctx context.Context) {
	if m.cancel != nil {
		return // already started
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go m.loop(ctx)
}

// Stop gracefully shuts down the health monitor.
// After Stop returns, Start may be called again.
func (m *HealthMonitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.done != nil {
		<-m.done
	}

	// Clear stale health data so a subsequent Start begins with a clean slate
	// and IsHealthy() doesn't return results for removed/changed servers.
	m.statusesMu.Lock()
	m.statuses = make(map[string]*HealthStatus)
	m.statusesMu.Unlock()

	// Reset so Start can be called again.
	m.cancel = nil
	m.done = nil
}

func (m *HealthMonitor) loop(ctx context.Context) {
	defer close(m.done)

	// Run first check immediately
	m.checkAll(ctx)

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

func (m *HealthMonitor) checkAll(ctx context.Context) {
	for _, name := range m.manager.ServerNames() {
		m.checkServer(ctx, name)
	}
}

func (m *HealthMonitor) checkServer(ctx context.Context, serverName string) {
	// Servers without a session (failed at startup, or torn down) get a
	// reconnection attempt before being reported unhealthy.
	if !m.manager.HasSession(serverName) {
		connCtx, connCancel := context.WithTimeout(ctx, ReinitTimeout)
		defer connCancel()

		if err := m.manager.InitializeServer(connCtx, serverName); err != nil {
			m.setStatus(serverName, false, fmt.Sprintf("not connected: %s", err.Error()), 0)
			return
		}
		m.logger.Info("Health monitor: server reconnected", "server", serverName)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, m.pingTimeout)
	defer pingCancel()

	if err := m.manager.Ping(pingCtx, serverName); err != nil {
		m.logger.Debug("Health check ping failed, attempting session recreation",
			"server", serverName, "error", err)

		reconCtx, reconCancel := context.WithTimeout(ctx, ReinitTimeout)
		defer reconCancel()

		if reinitErr := m.manager.recreateSession(reconCtx, serverName); reinitErr != nil {
			m.setStatus(serverName, false, fmt.Sprintf("health check failed: %s", err.Error()), 0)
			m.logger.Warn("MCP server is unhealthy",
				"server", serverName, "error", err)
			return
		}

		// Retry after reinit with a fresh timeout context
		retryCtx, retryCancel := context.WithTimeout(ctx, m.pingTimeout)
		defer retryCancel()

		if err := m.manager.Ping(retryCtx, serverName); err != nil {
			m.setStatus(serverName, false, fmt.Sprintf("health check failed after reinit: %s", err.Error()), 0)
			m.logger.Warn("MCP server is unhealthy after session recreation",
				"server", serverName, "error", err)
			return
		}
	}

	// Healthy
	m.setStatus(serverName, true, "", len(m.manager.ToolsForServer(serverName)))
}

func (m *HealthMonitor) setStatus(serverName string, healthy bool, errMsg string, toolCount int) {
	m.statusesMu.Lock()
	defer m.statusesMu.Unlock()
	m.statuses[serverName] = &HealthStatus{
		Server:    serverName,
		Healthy:   healthy,
		LastCheck: time.Now(),
		Error:     errMsg,
		ToolCount: toolCount,
	}
}

// GetStatuses returns the current health status of all monitored servers.
func (m *HealthMonitor) GetStatuses() map[string]*HealthStatus {
	m.statusesMu.RLock()
	defer m.statusesMu.RUnlock()
	result := make(map[string]*HealthStatus, len(m.statuses))
	for k, v := range m.statuses {
		cp := *v
		result[k] = &cp
	}
	return result
}

// IsHealthy returns true if all monitored servers are healthy.
// Returns false when no statuses exist yet (before first check completes).
func (m *HealthMonitor) IsHealthy() bool {
	m.statusesMu.RLock()
	defer m.statusesMu.RUnlock()
	if len(m.statuses) == 0 {
		return false
	}
	for _, s := range m.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}
