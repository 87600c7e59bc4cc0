package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// Publisher delivers progress events to one client. Publish reports whether
// the event was delivered; callers use a false return to stop emitting but
// must let in-flight work finish on its own.
type Publisher interface {
	Publish(payload any) bool
}

// Discard is a Publisher that drops every event. Used where no client is
// listening.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(any) bool { return true }

// Stream writes events onto one HTTP response as server-sent events.
// Frames are "data: {json}\n\n"; the kind travels in the payload's "type"
// field, not in an SSE event name. Not safe for concurrent Publish calls;
// each request's pipeline is sequential.
type Stream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	ctx     context.Context
	logger  *slog.Logger
}

// NewStream prepares SSE headers on the response and returns a Stream bound
// to the request's context. Fails when the writer cannot flush.
func NewStream(w http.ResponseWriter, r *http.Request) (*Stream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	return &Stream{
		w:       w,
		flusher: flusher,
		ctx:     r.Context(),
		logger:  slog.With("component", "events"),
	}, nil
}

// Publish writes one event frame. Returns false once the client has
// disconnected or the payload cannot be marshaled.
func (s *Stream) Publish(payload any) bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("Dropping unmarshalable event", "error", err)
		return false
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		s.logger.Debug("SSE write failed, client disconnected", "error", err)
		return false
	}
	s.flusher.Flush()
	return true
}
