package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/pilotdeck/pilotdeck/pkg/prompt"
)

// AgentPromptsResponse is returned by GET /agent-prompts.
type AgentPromptsResponse struct {
	Pilot    string `json:"pilot"`
	Executor string `json:"executor"`
	Learning string `json:"learning"`
}

// agentPromptsHandler handles GET /agent-prompts: the system prompts exactly
// as the agents would receive them right now, rendered against the live
// catalog and an empty variable store.
func (s *Server) agentPromptsHandler(c *echo.Context) error {
	catalog := s.Catalog()
	builder := prompt.NewBuilder()

	return c.JSON(http.StatusOK, &AgentPromptsResponse{
		Pilot:    builder.BuildPilotSystem(catalog.All(), nil, time.Now().Format("2006-01-02")),
		Executor: builder.BuildExecutorSystem(catalog.All(), nil),
		Learning: builder.BuildLearningSystem(s.manager.Tools()),
	})
}
