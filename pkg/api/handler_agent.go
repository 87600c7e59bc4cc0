package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/pilotdeck/pilotdeck/pkg/events"
	"github.com/pilotdeck/pilotdeck/pkg/executor"
	"github.com/pilotdeck/pilotdeck/pkg/llm"
	"github.com/pilotdeck/pilotdeck/pkg/pilot"
	"github.com/pilotdeck/pilotdeck/pkg/subtool"
)

// AgentRequest is the request body for POST /tool-calling-agent. History is
// the prior conversation as returned by the last complete event; Message is
// the new user turn. A request carrying at most one inbound message starts
// the session over.
type AgentRequest struct {
	Message   string        `json:"message"`
	History   []llm.Message `json:"history,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	Provider  string        `json:"provider,omitempty"`
}

// agentHandler handles POST /tool-calling-agent. It resolves the session,
// streams progress events over SSE, and drives the Pilot until REPLY or the
// turn budget. The terminal frame carries the reply, the DSL accumulated by
// this request's Executor, and the full history to send back next turn.
func (s *Server) agentHandler(c *echo.Context) error {
	var req AgentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	inbound := append([]llm.Message(nil), req.History...)
	if req.Message != "" {
		inbound = append(inbound, llm.Message{Role: llm.RoleUser, Content: req.Message})
	}
	if len(inbound) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	if inbound[len(inbound)-1].Role != llm.RoleUser {
		return echo.NewHTTPError(http.StatusBadRequest, "history must end with a user message")
	}

	client, err := s.registry.Client(req.Provider)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	sess := s.sessions.Resolve(req.SessionID, len(inbound))

	stream, err := openStream(c)
	if err != nil {
		return err
	}
	runCtx, pub := newGuardedPublisher(c.Request().Context(), stream)
	defer pub.Close()

	catalog := s.Catalog()
	exec := executor.New(client, subtool.NewExecutor(catalog, s.manager), sess.Vars(), pub)
	p := pilot.New(client, catalog)
	if n := s.cfg.Pilot.MaxTurns; n > 0 {
		p.MaxTurns = n
	}
	if n := s.cfg.Pilot.MaxRetries; n > 0 {
		p.MaxRetries = n
	}

	message, history, err := p.Run(runCtx, inbound, sess.Vars(), exec, pub)
	if err != nil {
		if runCtx.Err() != nil {
			s.logger.Debug("Pilot run abandoned, client disconnected", "session_id", sess.ID)
			return nil
		}
		pub.Publish(events.ErrorPayload{Type: events.EventTypeError, Error: err.Error()})
		return nil
	}

	sess.SetHistory(history)
	pub.Publish(events.CompletePayload{
		Type:      events.EventTypeComplete,
		SessionID: sess.ID,
		Message:   message,
		DSL:       exec.DSL(),
		History:   history,
	})
	return nil
}
