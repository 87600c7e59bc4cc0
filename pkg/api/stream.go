package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/pilotdeck/pilotdeck/pkg/events"
)

// openStream switches the response to server-sent events.
func openStream(c *echo.Context) (*events.Stream, error) {
	stream, err := events.NewStream(c.Response(), c.Request())
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "streaming is not supported on this connection")
	}
	return stream, nil
}

// guardedPublisher stops a run once its client is gone. The first failed
// Publish cancels the derived context, so the in-flight LLM or tool call
// finishes on its own and the next one never starts. The derived context is
// otherwise detached from the request, which is what lets the in-flight call
// complete instead of being torn down mid-write.
type guardedPublisher struct {
	inner  events.Publisher
	cancel context.CancelFunc
	gone   bool
}

// newGuardedPublisher derives the run context for one streaming request.
// Close must be called when the run ends.
func newGuardedPublisher(reqCtx context.Context, inner events.Publisher) (context.Context, *guardedPublisher) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(reqCtx))
	return ctx, &guardedPublisher{inner: inner, cancel: cancel}
}

func (g *guardedPublisher) Publish(payload any) bool {
	if g.gone {
		return false
	}
	if !g.inner.Publish(payload) {
		g.gone = true
		g.cancel()
		return false
	}
	return true
}

// Close releases the run context.
func (g *guardedPublisher) Close() {
	g.cancel()
}
