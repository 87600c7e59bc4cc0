// Package api exposes pilotdeck over HTTP: the Pilot and native-chat SSE
// endpoints, MCP status and learning endpoints, prompt introspection, and
// health.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/pilotdeck/pilotdeck/pkg/config"
	"github.com/pilotdeck/pilotdeck/pkg/llm"
	"github.com/pilotdeck/pilotdeck/pkg/mcp"
	"github.com/pilotdeck/pilotdeck/pkg/session"
	"github.com/pilotdeck/pilotdeck/pkg/subtool"
)

// Server wires the HTTP surface to the orchestration components. One Server
// serves the whole process.
type Server struct {
	cfg      *config.Config
	registry *llm.Registry
	manager  *mcp.Manager
	sessions *session.Manager

	// The catalog is swapped wholesale after a learning run; handlers take
	// one snapshot per request and never see a half-rebuilt catalog.
	catalogMu sync.RWMutex
	catalog   *subtool.Catalog

	echo   *echo.Echo
	http   *http.Server
	logger *slog.Logger
}

// NewServer builds the server and registers all routes.
func NewServer(cfg *config.Config, registry *llm.Registry, manager *mcp.Manager, catalog *subtool.Catalog, sessions *session.Manager) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		manager:  manager,
		sessions: sessions,
		catalog:  catalog,
		logger:   slog.With("component", "api"),
	}

	e := echo.New()
	e.Use(requestLogger())
	e.Use(recoverPanics())
	e.Use(securityHeaders())

	e.POST("/chat", s.chatHandler)
	e.POST("/tool-calling-agent", s.agentHandler)
	e.GET("/mcps", s.mcpsHandler)
	e.GET("/mcp-learning-preview", s.learningPreviewHandler)
	e.GET("/agent-prompts", s.agentPromptsHandler)
	e.GET("/learn-mcp", s.learnHandler)
	e.GET("/healthz", s.healthHandler)

	s.echo = e
	// No write timeout: /chat, /tool-calling-agent, and /learn-mcp hold the
	// response open for the whole run.
	s.http = &http.Server{
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start begins serving on addr and blocks. Returns http.ErrServerClosed
// after a graceful Shutdown.
func (s *Server) Start(addr string) error {
	s.http.Addr = addr
	s.logger.Info("HTTP server listening", "addr", addr)
	return s.http.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests
// until the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Catalog returns the current sub-tool catalog snapshot.
func (s *Server) Catalog() *subtool.Catalog {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	return s.catalog
}

// reloadCatalog rebuilds the catalog from the learnings directory and swaps
// it in. Called after a learning run rewrites the per-MCP files.
func (s *Server) reloadCatalog() {
	rebuilt, err := subtool.LoadCatalog(s.cfg.LearningsDir)
	if err != nil {
		s.logger.Error("Catalog reload failed, keeping previous catalog", "error", err)
		return
	}
	s.catalogMu.Lock()
	s.catalog = rebuilt
	s.catalogMu.Unlock()
	s.logger.Info("Sub-tool catalog reloaded",
		"sub_tools", rebuilt.Len(), "mcps", len(rebuilt.MCPNames()))
}
