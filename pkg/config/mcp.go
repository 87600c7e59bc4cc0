package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Transport kinds accepted in mcp-config.json.
const (
	TransportStdio          = "stdio"
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable-http"
)

// MCPServerConfig describes one entry under "mcpServers" in mcp-config.json.
// A server is either a subprocess (Command) or a remote endpoint (URL +
// Transport).
type MCPServerConfig struct {
	// Name is the map key from mcp-config.json, filled in by the loader.
	Name string `json:"-"`

	// Subprocess servers.
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// Remote servers.
	URL         string       `json:"url,omitempty"`
	Transport   string       `json:"transport,omitempty"`
	RequestInit *RequestInit `json:"requestInit,omitempty"`
}

// RequestInit carries extra HTTP request settings for remote servers.
type RequestInit struct {
	Headers map[string]string `json:"headers,omitempty"`
}

// Kind returns the effective transport kind for this server.
// Remote servers without an explicit transport default to streamable HTTP.
func (c MCPServerConfig) Kind() string {
	if c.Command != "" {
		return TransportStdio
	}
	if c.Transport != "" {
		return c.Transport
	}
	return TransportStreamableHTTP
}

// mcpConfigFile is the on-disk shape of mcp-config.json.
type mcpConfigFile struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
}

// loadMCPServers reads mcp-config.json and returns the server map with each
// entry's Name set to its key. A missing file is not an error — the server
// can run with zero MCPs (learning and chat still work).
func loadMCPServers(path string) (map[string]MCPServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]MCPServerConfig{}, nil
		}
		return nil, NewLoadError(path, err)
	}

	var file mcpConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidJSON, err))
	}

	servers := make(map[string]MCPServerConfig, len(file.MCPServers))
	for name, server := range file.MCPServers {
		server.Name = name
		if err := validateMCPServer(server); err != nil {
			return nil, NewValidationError("mcp_server", name, "", err)
		}
		servers[name] = server
	}
	return servers, nil
}

// validateMCPServer checks a single server entry.
func validateMCPServer(server MCPServerConfig) error {
	hasCommand := server.Command != ""
	hasURL := server.URL != ""

	switch {
	case hasCommand && hasURL:
		return fmt.Errorf("%w: specify either command or url, not both", ErrInvalidValue)
	case !hasCommand && !hasURL:
		return fmt.Errorf("%w: either command or url is required", ErrMissingRequiredField)
	}

	if hasCommand && server.Transport != "" && server.Transport != TransportStdio {
		return fmt.Errorf("%w: transport %q conflicts with command", ErrInvalidValue, server.Transport)
	}

	if hasURL {
		switch server.Transport {
		case "", TransportSSE, TransportStreamableHTTP:
		default:
			return fmt.Errorf("%w: unknown transport %q (expected %q or %q)",
				ErrInvalidValue, server.Transport, TransportSSE, TransportStreamableHTTP)
		}
	}

	return nil
}
