package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilotdeck/pilotdeck/pkg/config"
	"github.com/pilotdeck/pilotdeck/pkg/llm"
	"github.com/pilotdeck/pilotdeck/pkg/mcp"
	"github.com/pilotdeck/pilotdeck/pkg/session"
	"github.com/pilotdeck/pilotdeck/pkg/subtool"
)

// scriptedClient returns canned completions in order and records every
// request it served.
type scriptedClient struct {
	replies  []llm.Response
	requests []llm.Request
}

func (c *scriptedClient) Provider() string { return config.ProviderOpenAI }

func (c *scriptedClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	c.requests = append(c.requests, req)
	if len(c.replies) == 0 {
		return llm.Response{}, fmt.Errorf("script exhausted after %d requests", len(c.requests))
	}
	resp := c.replies[0]
	c.replies = c.replies[1:]
	return resp, nil
}

func textReplies(texts ...string) []llm.Response {
	out := make([]llm.Response, 0, len(texts))
	for _, text := range texts {
		out = append(out, llm.Response{Content: text})
	}
	return out
}

func newTestServer(t *testing.T, client llm.Client, catalog *subtool.Catalog) *Server {
	t.Helper()

	cfg := &config.Config{Settings: *config.DefaultSettings()}
	cfg.LearningsDir = t.TempDir()

	registry := new(llm.Registry)
	registry.Register(config.ProviderOpenAI, "gpt-test", client)

	if catalog == nil {
		catalog = subtool.NewCatalog()
	}
	return NewServer(cfg, registry, mcp.NewManager(nil), catalog, session.NewManager())
}

// do runs one request through the full router, middleware included.
func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

// sseEvents parses the data: frames out of an SSE body.
func sseEvents(t *testing.T, body string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var payload map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload))
		out = append(out, payload)
	}
	return out
}

// eventTypes projects the type field of each parsed event.
func eventTypes(events []map[string]any) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		kind, _ := ev["type"].(string)
		out = append(out, kind)
	}
	return out
}

func TestUnknownRouteReturns404(t *testing.T) {
	s := newTestServer(t, &scriptedClient{}, nil)

	rec := do(s, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSecurityHeadersOnEveryRoute(t *testing.T) {
	s := newTestServer(t, &scriptedClient{}, nil)

	rec := do(s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
	assert.Equal(t, "camera=(), microphone=(), geolocation=()", rec.Header().Get("Permissions-Policy"))
}

func TestSSEResponseHeaders(t *testing.T) {
	client := &scriptedClient{replies: textReplies("REPLY: Hello!")}
	s := newTestServer(t, client, nil)

	rec := do(s, http.MethodPost, "/tool-calling-agent", `{"message": "hi"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
}

func TestReloadCatalogSwapsInNewLearnings(t *testing.T) {
	s := newTestServer(t, &scriptedClient{}, nil)
	require.Equal(t, 0, s.Catalog().Len())

	file := `{"mcpName": "vibefam", "version": 2, "subTools": [{"id": "get_active_users", "name": "Get Active Users", "parent_tool": "vibefam__run_report"}]}`
	require.NoError(t, os.WriteFile(filepath.Join(s.cfg.LearningsDir, "vibefam.json"), []byte(file), 0o644))

	s.reloadCatalog()

	assert.Equal(t, 1, s.Catalog().Len())
	st, ok := s.Catalog().Get("get_active_users")
	require.True(t, ok)
	assert.Equal(t, "vibefam", st.ServerName)
}
