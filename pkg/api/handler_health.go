package api

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/pilotdeck/pilotdeck/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// HealthCheck is one component's entry in the health response.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status   string                 `json:"status"`
	Version  string                 `json:"version"`
	Checks   map[string]HealthCheck `json:"checks"`
	Sessions int                    `json:"sessions"`
	SubTools int                    `json:"sub_tools"`
}

// healthHandler handles GET /healthz. MCP servers are external dependencies:
// their failures degrade the response but never mark the service unhealthy,
// so an orchestrator will not restart pilotdeck over someone else's outage.
// Unhealthy is reserved for the service being unable to answer at all.
func (s *Server) healthHandler(c *echo.Context) error {
	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if _, err := s.registry.Client(""); err != nil {
		status = healthStatusUnhealthy
		checks["llm"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["llm"] = HealthCheck{
			Status:  healthStatusHealthy,
			Message: strings.Join(s.registry.Providers(), ", "),
		}
	}

	total := len(s.manager.ServerNames())
	failed := s.manager.FailedServers()
	switch {
	case total == 0:
		checks["mcp"] = HealthCheck{Status: healthStatusHealthy, Message: "no servers configured"}
	case len(failed) == 0:
		checks["mcp"] = HealthCheck{Status: healthStatusHealthy, Message: fmt.Sprintf("%d connected", total)}
	default:
		if status == healthStatusHealthy {
			status = healthStatusDegraded
		}
		names := make([]string, 0, len(failed))
		for name := range failed {
			names = append(names, name)
		}
		sort.Strings(names)
		checks["mcp"] = HealthCheck{
			Status:  healthStatusDegraded,
			Message: fmt.Sprintf("%d of %d servers unavailable: %s", len(failed), total, strings.Join(names, ", ")),
		}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &HealthResponse{
		Status:   status,
		Version:  version.GitCommit,
		Checks:   checks,
		Sessions: s.sessions.Count(),
		SubTools: s.Catalog().Len(),
	})
}
