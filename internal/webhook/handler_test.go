package webhook

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hookflow/hookflow/internal/agent"
	"github.com/hookflow/hookflow/internal/bridge"
	"github.com/hookflow/hookflow/internal/hub"
	"github.com/hookflow/hookflow/internal/tool"
)

// newTestServer mounts the handler set with coordination timeouts short
// enough for tests.
func newTestServer(t *testing.T, responseTimeout time.Duration) (*httptest.Server, *hub.Hub) {
	t.Helper()

	h := hub.New()
	b := bridge.New(bridge.WithPollInterval(5 * time.Millisecond))
	runner := agent.NewRunner(h, nil, tool.Deps{}, nil)

	r := chi.NewRouter()
	NewHandler(b, h, runner, nil, responseTimeout).Register(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, h
}

func decodeJSON(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(body).Decode(&m); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return m
}

func TestHandleWebhook_TimeoutAcknowledges(t *testing.T) {
	srv, _ := newTestServer(t, 50*time.Millisecond)

	resp, err := http.Post(srv.URL+"/webhook/hooks/wf1/", "application/json", strings.NewReader(`{"order":42}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, a coordination timeout must not surface as an error", resp.StatusCode)
	}
	body := decodeJSON(t, resp.Body)
	if body["success"] != true || body["message"] != "received" {
		t.Errorf("body = %v", body)
	}
	if body["path"] != "hooks/wf1" {
		t.Errorf("path = %v, want the normalized key", body["path"])
	}
	if body["method"] != "POST" {
		t.Errorf("method = %v", body["method"])
	}
	if _, err := time.Parse(time.RFC3339, body["timestamp"].(string)); err != nil {
		t.Errorf("timestamp is not RFC3339: %v", body["timestamp"])
	}
}

func TestHandleWebhook_RespondResumesSuspendedRequest(t *testing.T) {
	srv, _ := newTestServer(t, 5*time.Second)

	type webhookResult struct {
		resp *http.Response
		body []byte
		err  error
	}
	done := make(chan webhookResult, 1)
	go func() {
		resp, err := http.Get(srv.URL + "/webhook/wf1/n1")
		if err != nil {
			done <- webhookResult{err: err}
			return
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		done <- webhookResult{resp: resp, body: body, err: err}
	}()

	// Give the webhook request time to suspend before responding.
	time.Sleep(100 * time.Millisecond)

	payload := `{"nodeId":"n1","statusCode":201,"headers":{"X-Flow":"done"},"body":"created"}`
	resp, err := http.Post(srv.URL+"/workflow/wf1/respond", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	defer resp.Body.Close()
	respondBody := decodeJSON(t, resp.Body)
	if respondBody["delivered"] != true {
		t.Fatalf("respond body = %v, want delivered=true", respondBody)
	}

	select {
	case result := <-done:
		if result.err != nil {
			t.Fatalf("webhook request: %v", result.err)
		}
		if result.resp.StatusCode != 201 {
			t.Errorf("status = %d, want the delivered 201", result.resp.StatusCode)
		}
		if result.resp.Header.Get("X-Flow") != "done" {
			t.Errorf("delivered header missing, got %v", result.resp.Header)
		}
		if string(result.body) != "created" {
			t.Errorf("body = %q, want the literal delivered text", result.body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook request was never resumed")
	}
}

func TestHandleRespond_NoWaiterStillSucceeds(t *testing.T) {
	srv, _ := newTestServer(t, 50*time.Millisecond)

	resp, err := http.Post(srv.URL+"/workflow/wf9/respond", "application/json",
		strings.NewReader(`{"body":"late"}`))
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	defer resp.Body.Close()

	body := decodeJSON(t, resp.Body)
	if body["success"] != true || body["delivered"] != false {
		t.Errorf("body = %v, want success with delivered=false", body)
	}
}

func TestHandleListen_ReceivesStoredEvent(t *testing.T) {
	srv, _ := newTestServer(t, 20*time.Millisecond)

	resp, err := http.Post(srv.URL+"/webhook/orders", "application/json", strings.NewReader(`{"id":7}`))
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/webhook-listen/orders?timeout=200")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer resp.Body.Close()

	body := decodeJSON(t, resp.Body)
	if body["received"] != true {
		t.Fatalf("body = %v", body)
	}
	data := body["data"].(map[string]any)
	if data["method"] != "POST" {
		t.Errorf("data.method = %v", data["method"])
	}
	if data["body"].(map[string]any)["id"] != float64(7) {
		t.Errorf("data.body = %v", data["body"])
	}

	// Consumption is at-most-once: a second poll sees nothing.
	resp, err = http.Get(srv.URL + "/webhook-listen/orders?timeout=50")
	if err != nil {
		t.Fatalf("second listen: %v", err)
	}
	defer resp.Body.Close()
	body = decodeJSON(t, resp.Body)
	if body["received"] != false {
		t.Errorf("second poll body = %v, want received=false", body)
	}
}

func TestHandleListenAdmin_ResetReArmsEvent(t *testing.T) {
	srv, _ := newTestServer(t, 20*time.Millisecond)

	resp, _ := http.Post(srv.URL+"/webhook/orders", "application/json", strings.NewReader(`{"id":1}`))
	resp.Body.Close()
	resp, _ = http.Get(srv.URL + "/webhook-listen/orders?timeout=100")
	resp.Body.Close()

	resp, err := http.Post(srv.URL+"/webhook-listen/orders", "application/json",
		strings.NewReader(`{"action":"reset"}`))
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/webhook-listen/orders?timeout=100")
	if err != nil {
		t.Fatalf("listen after reset: %v", err)
	}
	defer resp.Body.Close()
	body := decodeJSON(t, resp.Body)
	if body["received"] != true {
		t.Errorf("reset must re-arm the stored event, got %v", body)
	}
}

func TestHandleListenAdmin_RejectsUnknownAction(t *testing.T) {
	srv, _ := newTestServer(t, 20*time.Millisecond)

	resp, err := http.Post(srv.URL+"/webhook-listen/orders", "application/json",
		strings.NewReader(`{"action":"detonate"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleAgentRun_RejectsInvalidBody(t *testing.T) {
	srv, _ := newTestServer(t, 20*time.Millisecond)

	resp, err := http.Post(srv.URL+"/agent/run", "application/json", strings.NewReader(`{not json`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleEvents_StreamsHubEvents(t *testing.T) {
	srv, h := newTestServer(t, 20*time.Millisecond)

	resp, err := http.Get(srv.URL + "/workflow/wf1/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readFrame := func() map[string]any {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read frame: %v", err)
			}
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var ev map[string]any
			if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &ev); err != nil {
				t.Fatalf("frame is not JSON: %v", err)
			}
			return ev
		}
	}

	// The stream opens with the connected event; everything published for
	// the workflow afterwards arrives as data frames.
	if ev := readFrame(); ev["type"] != "connected" {
		t.Fatalf("first frame type = %v, want connected", ev["type"])
	}

	h.Publish("wf1", hub.Event{Type: hub.EventAgentStart, NodeID: "n1", Timestamp: time.Now().UTC()})
	if ev := readFrame(); ev["type"] != "agent_start" || ev["nodeId"] != "n1" {
		t.Errorf("frame = %v", ev)
	}
}

func TestParseBody_ContentTypes(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        any
	}{
		{
			name:        "json object",
			contentType: "application/json",
			body:        `{"a":1}`,
			want:        map[string]any{"a": float64(1)},
		},
		{
			name:        "json with charset parameter",
			contentType: "application/json; charset=utf-8",
			body:        `[1,2]`,
			want:        []any{float64(1), float64(2)},
		},
		{
			name:        "malformed json becomes empty object",
			contentType: "application/json",
			body:        `{broken`,
			want:        map[string]any{},
		},
		{
			name:        "form encoded first values",
			contentType: "application/x-www-form-urlencoded",
			body:        "a=1&a=2&b=x",
			want:        map[string]any{"a": "1", "b": "x"},
		},
		{
			name:        "plain text stays a string",
			contentType: "text/plain",
			body:        "hello there",
			want:        "hello there",
		},
		{
			name:        "unknown type best-effort json",
			contentType: "application/octet-stream",
			body:        `{"ok":true}`,
			want:        map[string]any{"ok": true},
		},
		{
			name:        "unknown type non-json becomes empty object",
			contentType: "application/octet-stream",
			body:        "\x00\x01",
			want:        map[string]any{},
		},
		{
			name:        "empty body becomes empty object",
			contentType: "application/json",
			body:        "",
			want:        map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhook/x", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)

			got := parseBody(req)
			wantJSON, _ := json.Marshal(tt.want)
			gotJSON, _ := json.Marshal(got)
			if !bytes.Equal(wantJSON, gotJSON) {
				t.Errorf("parseBody() = %s, want %s", gotJSON, wantJSON)
			}
		})
	}
}

func TestSanitizedHeaders_StripsSensitiveAndLowercases(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer secret")
	h.Set("Cookie", "session=abc")
	h.Set("X-Request-Id", "r1")

	got := sanitizedHeaders(h)
	if _, ok := got["authorization"]; ok {
		t.Error("authorization must be stripped")
	}
	if _, ok := got["cookie"]; ok {
		t.Error("cookie must be stripped")
	}
	if got["x-request-id"] != "r1" {
		t.Errorf("headers = %v, want lowercased x-request-id", got)
	}
}

func TestResponseBody(t *testing.T) {
	if got := responseBody(json.RawMessage(`"plain text"`)); string(got) != "plain text" {
		t.Errorf("string body = %q, want the unwrapped literal", got)
	}
	if got := responseBody(json.RawMessage(`{"a":1}`)); string(got) != `{"a":1}` {
		t.Errorf("object body = %q, want verbatim JSON", got)
	}
	if got := responseBody(nil); got != nil {
		t.Errorf("empty body = %q, want nil", got)
	}
}

func TestListenTimeout(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/webhook-listen/x", nil)
	if got := listenTimeout(req); got != defaultListenTimeout {
		t.Errorf("default = %v", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/webhook-listen/x?timeout=250", nil)
	if got := listenTimeout(req); got != 250*time.Millisecond {
		t.Errorf("explicit = %v", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/webhook-listen/x?timeout=99999999", nil)
	if got := listenTimeout(req); got != maxListenTimeout {
		t.Errorf("cap = %v", got)
	}
}
