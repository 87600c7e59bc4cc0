package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilotdeck/pilotdeck/pkg/config"
	"github.com/pilotdeck/pilotdeck/pkg/llm"
	"github.com/pilotdeck/pilotdeck/pkg/mcp"
	"github.com/pilotdeck/pilotdeck/pkg/session"
	"github.com/pilotdeck/pilotdeck/pkg/subtool"
)

func TestLearnHandler_Validation(t *testing.T) {
	cfg := &config.Config{Settings: *config.DefaultSettings()}
	cfg.LearningsDir = t.TempDir()

	registry := new(llm.Registry)
	registry.Register(config.ProviderOpenAI, "gpt-test", &scriptedClient{})

	// One configured server that was never connected.
	manager := mcp.NewManager(map[string]config.MCPServerConfig{
		"vibefam": {Command: "/usr/bin/true"},
	})
	s := NewServer(cfg, registry, manager, subtool.NewCatalog(), session.NewManager())

	tests := []struct {
		name     string
		target   string
		wantCode int
		wantMsg  string
	}{
		{
			name:     "missing mcps parameter",
			target:   "/learn-mcp",
			wantCode: http.StatusBadRequest,
			wantMsg:  "mcps query parameter is required",
		},
		{
			name:     "blank mcps parameter",
			target:   "/learn-mcp?mcps=%20,%20",
			wantCode: http.StatusBadRequest,
			wantMsg:  "mcps query parameter is required",
		},
		{
			name:     "unknown server",
			target:   "/learn-mcp?mcps=ghost",
			wantCode: http.StatusNotFound,
			wantMsg:  "unknown MCP server",
		},
		{
			name:     "known server without a session",
			target:   "/learn-mcp?mcps=vibefam",
			wantCode: http.StatusServiceUnavailable,
			wantMsg:  "not connected",
		},
		{
			name:     "server validation precedes provider validation",
			target:   "/learn-mcp?mcps=vibefam&provider=bedrock",
			wantCode: http.StatusServiceUnavailable,
			wantMsg:  "not connected",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(s, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantMsg)
		})
	}
}

func TestLearnHandler_MixedKnownAndUnknownServers(t *testing.T) {
	cfg := &config.Config{Settings: *config.DefaultSettings()}
	cfg.LearningsDir = t.TempDir()

	registry := new(llm.Registry)
	registry.Register(config.ProviderOpenAI, "gpt-test", &scriptedClient{})

	manager := mcp.NewManager(map[string]config.MCPServerConfig{
		"vibefam": {Command: "/usr/bin/true"},
	})
	s := NewServer(cfg, registry, manager, subtool.NewCatalog(), session.NewManager())

	// The unknown name must be rejected before any learning starts.
	rec := do(s, http.MethodGet, "/learn-mcp?mcps=vibefam,ghost", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `unknown MCP server "ghost"`)
}
