package api

import (
	"encoding/json"
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

func TestHealthHandler_Healthy(t *testing.T) {
	s := newTestServer(t, &scriptedClient{}, vibefamCatalog())

	rec := do(s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, healthStatusHealthy, resp.Status)
	assert.NotEmpty(t, resp.Version)
	assert.Equal(t, healthStatusHealthy, resp.Checks["llm"].Status)
	assert.Contains(t, resp.Checks["llm"].Message, config.ProviderOpenAI)
	assert.Equal(t, healthStatusHealthy, resp.Checks["mcp"].Status)
	assert.Equal(t, "no servers configured", resp.Checks["mcp"].Message)
	assert.Equal(t, 0, resp.Sessions)
	assert.Equal(t, 2, resp.SubTools)
}

func TestHealthHandler_UnhealthyWithoutProviders(t *testing.T) {
	cfg := &config.Config{Settings: *config.DefaultSettings()}
	cfg.LearningsDir = t.TempDir()

	// A registry with no clients cannot answer anything.
	s := NewServer(cfg, new(llm.Registry), mcp.NewManager(nil), subtool.NewCatalog(), session.NewManager())

	rec := do(s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, healthStatusUnhealthy, resp.Status)
	assert.Equal(t, healthStatusUnhealthy, resp.Checks["llm"].Status)
}

func TestHealthHandler_CountsLiveSessions(t *testing.T) {
	client := &scriptedClient{replies: textReplies("REPLY: Hi!")}
	s := newTestServer(t, client, nil)

	rec := do(s, http.MethodPost, "/tool-calling-agent", `{"message": "hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Sessions)
}
