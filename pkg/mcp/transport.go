package mcp

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pilotdeck/pilotdeck/pkg/config"
)

// createTransport creates an MCP SDK transport from a server definition.
func createTransport(cfg config.MCPServerConfig) (mcpsdk.Transport, error) {
	switch kind := cfg.Kind(); kind {
	case config.TransportStdio:
		return createStdioTransport(cfg)
	case config.TransportStreamableHTTP:
		return createStreamableTransport(cfg)
	case config.TransportSSE:
		return createSSETransport(cfg)
	default:
		return nil, fmt.Errorf("unsupported transport kind: %s", kind)
	}
}

func createStdioTransport(cfg config.MCPServerConfig) (*mcpsdk.CommandTransport, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("stdio transport requires command")
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)

	// Inherit parent environment + per-server overrides.
	env := os.Environ()
	for k, v := range cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = env

	return &mcpsdk.CommandTransport{Command: cmd}, nil
}

func createStreamableTransport(cfg config.MCPServerConfig) (*mcpsdk.StreamableClientTransport, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("streamable-http transport requires url")
	}
	transport := &mcpsdk.StreamableClientTransport{
		Endpoint: cfg.URL,
	}
	if hasRequestHeaders(cfg) {
		transport.HTTPClient = buildHTTPClient(cfg)
	}
	return transport, nil
}

func createSSETransport(cfg config.MCPServerConfig) (*mcpsdk.SSEClientTransport, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("sse transport requires url")
	}
	transport := &mcpsdk.SSEClientTransport{
		Endpoint: cfg.URL,
	}
	if hasRequestHeaders(cfg) {
		transport.HTTPClient = buildHTTPClient(cfg)
	}
	return transport, nil
}

func hasRequestHeaders(cfg config.MCPServerConfig) bool {
	return cfg.RequestInit != nil && len(cfg.RequestInit.Headers) > 0
}

// buildHTTPClient creates an http.Client that injects the configured
// requestInit headers on every request (auth tokens, API keys).
func buildHTTPClient(cfg config.MCPServerConfig) *http.Client {
	return &http.Client{
		Transport: &headerTransport{
			base:    http.DefaultTransport,
			headers: cfg.RequestInit.Headers,
		},
	}
}

// headerTransport wraps an http.RoundTripper to add static headers.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}
