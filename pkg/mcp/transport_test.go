package mcp

import (
	"net/http"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilotdeck/pilotdeck/pkg/config"
)

func TestCreateTransport(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.MCPServerConfig
		want    any
		wantErr string
	}{
		{
			name: "stdio from command",
			cfg:  config.MCPServerConfig{Name: "files", Command: "npx", Args: []string{"-y", "server-files"}},
			want: &mcpsdk.CommandTransport{},
		},
		{
			name: "streamable-http is the default for url servers",
			cfg:  config.MCPServerConfig{Name: "api", URL: "https://mcp.example.com/mcp"},
			want: &mcpsdk.StreamableClientTransport{},
		},
		{
			name: "sse when requested explicitly",
			cfg:  config.MCPServerConfig{Name: "api", URL: "https://mcp.example.com/sse", Transport: config.TransportSSE},
			want: &mcpsdk.SSEClientTransport{},
		},
		{
			name:    "stdio without command",
			cfg:     config.MCPServerConfig{Name: "bad", Transport: config.TransportStdio},
			wantErr: "requires command",
		},
		{
			name:    "sse without url",
			cfg:     config.MCPServerConfig{Name: "bad", Transport: config.TransportSSE},
			wantErr: "requires url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport, err := createTransport(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, transport)
		})
	}
}

func TestCreateTransport_RequestHeaders(t *testing.T) {
	cfg := config.MCPServerConfig{
		Name: "secure",
		URL:  "https://mcp.example.com/mcp",
		RequestInit: &config.RequestInit{
			Headers: map[string]string{"Authorization": "Bearer token-123"},
		},
	}

	transport, err := createTransport(cfg)
	require.NoError(t, err)

	streamable, ok := transport.(*mcpsdk.StreamableClientTransport)
	require.True(t, ok)
	require.NotNil(t, streamable.HTTPClient, "header-injecting client should be set")
}

// recordingRoundTripper captures the request it receives.
type recordingRoundTripper struct {
	got *http.Request
}

func (rt *recordingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.got = req
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
}

func TestHeaderTransport_InjectsHeaders(t *testing.T) {
	recorder := &recordingRoundTripper{}
	ht := &headerTransport{
		base:    recorder,
		headers: map[string]string{"Authorization": "Bearer abc", "X-Api-Key": "k1"},
	}

	req, err := http.NewRequest(http.MethodPost, "https://mcp.example.com/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ht.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NotNil(t, recorder.got)
	assert.Equal(t, "Bearer abc", recorder.got.Header.Get("Authorization"))
	assert.Equal(t, "k1", recorder.got.Header.Get("X-Api-Key"))
	assert.Equal(t, "application/json", recorder.got.Header.Get("Content-Type"))

	// Original request is not mutated.
	assert.Empty(t, req.Header.Get("Authorization"))
}
