// Package webhook exposes the HTTP boundary of the coordination core: the
// inbound webhook endpoints backed by the synchronization bridge, the
// workflow event stream backed by the broadcast hub, and the node-invocation
// endpoints consumed by the workflow executor.
package webhook

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hookflow/hookflow/internal/agent"
	"github.com/hookflow/hookflow/internal/bridge"
	"github.com/hookflow/hookflow/internal/hub"
	"github.com/hookflow/hookflow/internal/server"
)

const (
	defaultListenTimeout = 30 * time.Second
	maxListenTimeout     = 5 * time.Minute
)

// Handler serves the webhook and streaming endpoints.
type Handler struct {
	bridge          *bridge.Bridge
	hub             *hub.Hub
	runner          *agent.Runner
	logger          *slog.Logger
	responseTimeout time.Duration
}

// NewHandler creates the HTTP handler set.
func NewHandler(b *bridge.Bridge, h *hub.Hub, runner *agent.Runner, logger *slog.Logger, responseTimeout time.Duration) *Handler {
	if responseTimeout <= 0 {
		responseTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		bridge:          b,
		hub:             h,
		runner:          runner,
		logger:          logger,
		responseTimeout: responseTimeout,
	}
}

// Register mounts all routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Handle("/webhook/*", http.HandlerFunc(h.HandleWebhook))
	r.Get("/webhook-listen/*", h.HandleListen)
	r.Post("/webhook-listen/*", h.HandleListenAdmin)
	r.Get("/workflow/{id}/events", h.HandleEvents)
	r.Post("/workflow/{id}/respond", h.HandleRespond)
	r.Post("/agent/run", h.HandleAgentRun)
}

// HandleWebhook stores the inbound event for pollers, then suspends until
// the workflow delivers a response for the same key or the wait times out.
// The caller always receives some HTTP response; an internal coordination
// timeout is acknowledged with 200, never surfaced as a 5xx.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	server.AddLogField(r.Context(), "webhook_key", bridge.NormalizeKey(key))

	event := &bridge.InboundEvent{
		Body:      parseBody(r),
		Query:     queryValues(r),
		Headers:   sanitizedHeaders(r.Header),
		Method:    r.Method,
		Path:      r.URL.Path,
		Timestamp: time.Now().UTC(),
	}
	h.bridge.StoreEvent(key, event)

	resp, ok := h.bridge.Await(r.Context(), key, h.responseTimeout)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"message":   "received",
			"path":      bridge.NormalizeKey(key),
			"method":    r.Method,
			"timestamp": event.Timestamp.Format(time.RFC3339),
		})
		return
	}

	for name, values := range resp.Headers {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	w.Write(resp.Body)
}

// HandleListen wraps Protocol B polling: it blocks up to the requested
// timeout for an unconsumed inbound event under the key.
func (h *Handler) HandleListen(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	timeout := listenTimeout(r)

	event, received := h.bridge.Poll(r.Context(), key, timeout)
	body := map[string]any{
		"success":  true,
		"received": received,
	}
	if received {
		body["data"] = event
	}
	writeJSON(w, http.StatusOK, body)
}

// HandleListenAdmin clears or re-arms a stored inbound event.
func (h *Handler) HandleListenAdmin(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")

	var req struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "invalid request body",
		})
		return
	}

	switch req.Action {
	case "clear":
		h.bridge.Clear(key)
	case "reset":
		h.bridge.Reset(key)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "action must be \"clear\" or \"reset\"",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// HandleRespond is the workflow executor's entry point for delivering the
// HTTP response artifact that resumes a suspended webhook request.
func (h *Handler) HandleRespond(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "id")

	var req struct {
		NodeID     string            `json:"nodeId,omitempty"`
		StatusCode int               `json:"statusCode,omitempty"`
		Headers    map[string]string `json:"headers,omitempty"`
		Body       json.RawMessage   `json:"body,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "invalid request body",
		})
		return
	}

	key := workflowID
	if req.NodeID != "" {
		key = workflowID + "/" + req.NodeID
	}

	resp := &bridge.Response{
		StatusCode: req.StatusCode,
		Headers:    http.Header{},
		Body:       responseBody(req.Body),
	}
	for name, value := range req.Headers {
		resp.Headers.Set(name, value)
	}

	delivered := h.bridge.Deliver(key, resp)
	if !delivered {
		h.logger.Debug("no waiter for delivered response, stored for pickup",
			slog.String("key", bridge.NormalizeKey(key)))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"delivered": delivered,
	})
}

// HandleAgentRun invokes one agent node directly with resolved input and
// per-node configuration, returning the uniform run result.
func (h *Handler) HandleAgentRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkflowID string         `json:"workflowId"`
		NodeID     string         `json:"nodeId"`
		Config     agent.Config   `json:"config"`
		Input      map[string]any `json:"input,omitempty"`
		Trigger    any            `json:"trigger,omitempty"`
		Upstream   any            `json:"upstream,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "invalid request body",
		})
		return
	}

	result := h.runner.Run(r.Context(), req.Config, agent.RunInput{
		WorkflowID:     req.WorkflowID,
		NodeID:         req.NodeID,
		Fields:         req.Input,
		TriggerBody:    req.Trigger,
		UpstreamOutput: req.Upstream,
	})
	writeJSON(w, http.StatusOK, result)
}

// responseBody passes JSON strings through as their literal text and keeps
// any other JSON value verbatim.
func responseBody(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []byte(s)
	}
	return []byte(raw)
}

func listenTimeout(r *http.Request) time.Duration {
	ms, err := strconv.Atoi(r.URL.Query().Get("timeout"))
	if err != nil || ms <= 0 {
		return defaultListenTimeout
	}
	timeout := time.Duration(ms) * time.Millisecond
	if timeout > maxListenTimeout {
		return maxListenTimeout
	}
	return timeout
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are already written; nothing recoverable remains.
		return
	}
}
