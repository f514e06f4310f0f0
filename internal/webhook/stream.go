package webhook

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hookflow/hookflow/internal/server"
)

// heartbeatInterval keeps intermediary proxies from timing out an idle
// stream.
const heartbeatInterval = 30 * time.Second

// HandleEvents upgrades the connection to a server-push stream and forwards
// every hub event for the workflow as a data frame. Comment-only heartbeat
// frames are emitted while the stream is idle. The subscription is
// deregistered synchronously when the client disconnects.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "id")
	server.AddLogField(r.Context(), "workflow_id", workflowID)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.hub.Subscribe(workflowID)
	defer h.hub.Unsubscribe(sub)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			frame, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", frame); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
