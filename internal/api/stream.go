package api

import (
	"fmt"
	"net/http"
	"time"

	"korty/internal/apperr"
	"korty/internal/events"

	"github.com/labstack/echo/v4"
)

// Stream is the server-sent-events feed. Rooms come from the authenticated
// capability and only from it: the client cannot ask for a scope, it gets
// the rooms its role grants and nothing else. Heartbeat comments keep
// proxies from reaping idle connections.
func (h *Handlers) Stream(c echo.Context) error {
	cap := capabilityFrom(c)
	if cap == nil {
		return writeError(c, apperr.Unauthorized("missing credential"))
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	sub := h.hub.Subscribe(cap.Rooms())
	defer sub.Close()

	h.logger.Debug().
		Str("user_id", cap.UserID).
		Str("role", cap.Role.String()).
		Strs("rooms", cap.Rooms()).
		Msg("stream attached")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := writeFrame(w, env); err != nil {
				return nil
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

// writeFrame emits one SSE frame. Payloads are compact JSON, so the single
// data line never splits.
func writeFrame(w *echo.Response, env *events.Envelope) error {
	if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", env.ID, env.Kind, env.Payload); err != nil {
		return err
	}
	w.Flush()
	return nil
}
