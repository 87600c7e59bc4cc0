package api

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/pilotdeck/pilotdeck/pkg/events"
	"github.com/pilotdeck/pilotdeck/pkg/learn"
)

// learnHandler handles GET /learn-mcp?mcps=a,b: runs the learning agent over
// the named servers and streams its progress. Learning rewrites the per-MCP
// files and swaps in a rebuilt catalog when it finishes.
func (s *Server) learnHandler(c *echo.Context) error {
	var servers []string
	for _, part := range strings.Split(c.QueryParam("mcps"), ",") {
		if name := strings.TrimSpace(part); name != "" {
			servers = append(servers, name)
		}
	}
	if len(servers) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "mcps query parameter is required")
	}

	known := s.manager.ServerNames()
	for _, name := range servers {
		if !slices.Contains(known, name) {
			return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown MCP server %q", name))
		}
		if !s.manager.HasSession(name) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, fmt.Sprintf("MCP server %q is not connected", name))
		}
	}

	client, err := s.registry.Client(c.QueryParam("provider"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	stream, err := openStream(c)
	if err != nil {
		return err
	}

	// Learning writes files worth keeping, so once started the run outlives
	// the request; events simply stop reaching a disconnected client.
	runCtx := context.WithoutCancel(c.Request().Context())

	learner := learn.NewLearner(s.manager, client, s.registry.Model(client.Provider()), s.cfg.LearningsDir)
	if n := s.cfg.Learning.MaxIterations; n > 0 {
		learner.MaxIterations = n
	}
	files, err := learner.Run(runCtx, servers, stream)
	if err != nil {
		s.logger.Error("Learning run failed",
			"servers", strings.Join(servers, ","), "error", err)
		stream.Publish(events.ErrorPayload{Type: events.EventTypeError, Error: err.Error()})
		return nil
	}

	s.reloadCatalog()

	stream.Publish(events.CompletePayload{
		Type:    events.EventTypeComplete,
		Message: fmt.Sprintf("Learned %d MCP server(s)", len(servers)),
		Files:   files,
	})
	return nil
}
