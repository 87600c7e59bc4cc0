// Pilotdeck is an MCP gateway that learns compact sub-tool catalogs from
// connected servers and drives them through a Pilot/Executor agent loop.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pilotdeck/pilotdeck/pkg/api"
	"github.com/pilotdeck/pilotdeck/pkg/cleanup"
	"github.com/pilotdeck/pilotdeck/pkg/config"
	"github.com/pilotdeck/pilotdeck/pkg/llm"
	"github.com/pilotdeck/pilotdeck/pkg/mcp"
	"github.com/pilotdeck/pilotdeck/pkg/session"
	"github.com/pilotdeck/pilotdeck/pkg/subtool"
	"github.com/pilotdeck/pilotdeck/pkg/version"
)

// mcpInitTimeout bounds the initial connection pass over all configured MCP
// servers. Servers that miss it are picked up later by the health monitor.
const mcpInitTimeout = 60 * time.Second

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func setupLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

func main() {
	settingsPath := flag.String("config",
		getEnv("PILOTDECK_CONFIG", "./pilotdeck.yaml"),
		"Path to the settings file")
	flag.Parse()

	setupLogging()

	// Load .env before configuration reads the environment. Missing files
	// are fine; deployments usually inject real environment variables.
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	slog.Info("Starting pilotdeck",
		"version", version.Full(),
		"config", *settingsPath)

	ctx := context.Background()

	// 1. Configuration: settings file, MCP server definitions, provider keys.
	cfg, err := config.Initialize(*settingsPath)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. LLM providers. No usable provider means no request can ever be
	// served, so this one is fatal.
	registry, err := llm.NewRegistry(cfg)
	if err != nil {
		slog.Error("Failed to initialize LLM providers", "error", err)
		os.Exit(1)
	}

	// 3. MCP servers. Connection failures are logged and skipped, never
	// fatal; the health monitor retries them in the background and /mcps
	// reports them in the meantime.
	manager := mcp.NewManager(cfg.MCPServers)
	initCtx, initCancel := context.WithTimeout(ctx, mcpInitTimeout)
	if err := manager.Initialize(initCtx); err != nil {
		slog.Warn("MCP initialization reported errors", "error", err)
	}
	initCancel()
	defer func() {
		if err := manager.Close(); err != nil {
			slog.Error("Error closing MCP sessions", "error", err)
		}
	}()
	if failed := manager.FailedServers(); len(failed) > 0 {
		slog.Warn("Continuing without unreachable MCP servers",
			"failed", len(failed), "configured", len(cfg.MCPServers))
	}

	var healthMonitor *mcp.HealthMonitor
	if len(cfg.MCPServers) > 0 {
		healthMonitor = mcp.NewHealthMonitor(manager)
		healthMonitor.Start(ctx)
		defer healthMonitor.Stop()
	}

	// 4. Learned sub-tool catalog. An absent learnings directory yields an
	// empty catalog; the agents fall back to raw MCP tools until /learn-mcp
	// has run.
	catalog, err := subtool.LoadCatalog(cfg.LearningsDir)
	if err != nil {
		slog.Error("Failed to load sub-tool catalog",
			"dir", cfg.LearningsDir, "error", err)
		os.Exit(1)
	}

	// 5. Sessions and the idle-session janitor.
	sessions := session.NewManager()
	janitor := cleanup.NewService(cfg.Sessions, sessions)
	janitor.Start(ctx)
	defer janitor.Stop()

	// 6. HTTP server.
	httpServer := api.NewServer(cfg, registry, manager, catalog, sessions)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + strconv.Itoa(cfg.Port)
		if err := httpServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("Pilotdeck started",
		"port", cfg.Port,
		"providers", registry.Providers(),
		"mcp_servers", len(cfg.MCPServers),
		"sub_tools", catalog.Len())

	// 7. Wait for a shutdown signal or a server error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("HTTP server error", "error", err)
	}

	// 8. Graceful shutdown. In-flight streams get a short window to finish;
	// detached learning runs keep writing files until the process exits.
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
